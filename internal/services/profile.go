package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tsureben-backend/internal/logger"
	"tsureben-backend/internal/models"
)

// Mock exam results recorded on the settings page.
const (
	TestAprilCommon = "4月河合塾全統共テ模試"
	TestMayWritten  = "5月河合記述模試"
)

var (
	Grades = []string{"中1", "中2", "中3", "高1", "高2", "高3"}

	scoreTests = []string{TestAprilCommon, TestMayWritten}
)

const (
	maxClass  = 9
	maxNumber = 45
	minScore  = 30
	maxScore  = 80
)

type ProfileService struct {
	users   UserStore
	plans   PlanStore
	jobs    JobStore
	queue   JobQueue
	renames Limiter
}

func NewProfileService(users UserStore, plans PlanStore, jobs JobStore, queue JobQueue) *ProfileService {
	return &ProfileService{users: users, plans: plans, jobs: jobs, queue: queue}
}

// LimitRenames caps how often a user may queue bulk renames.
func (s *ProfileService) LimitRenames(l Limiter) {
	s.renames = l
}

func (s *ProfileService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Message: "User not found"}
	}
	return user, err
}

// Setup stores the profile entered on first sign-in. Scores are left alone.
func (s *ProfileService) Setup(ctx context.Context, userID string, req models.ProfileRequest) (*models.User, error) {
	req.Scores = nil
	return s.UpdateSettings(ctx, userID, req)
}

func (s *ProfileService) UpdateSettings(ctx context.Context, userID string, req models.ProfileRequest) (*models.User, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	req.Grade = strings.TrimSpace(req.Grade)
	req.Class = strings.TrimSpace(req.Class)
	req.Number = strings.TrimSpace(req.Number)
	if req.ShareScope == "" {
		req.ShareScope = models.ScopeGrade
	}

	fields := make(map[string]string)
	if !user.Teacher {
		if !slices.Contains(Grades, req.Grade) {
			fields["grade"] = "Select a grade"
		}
		if !inRange(req.Class, 1, maxClass) {
			fields["class"] = fmt.Sprintf("Class must be 1-%d", maxClass)
		}
		if !inRange(req.Number, 1, maxNumber) {
			fields["number"] = fmt.Sprintf("Number must be 1-%d", maxNumber)
		}
	}
	if !req.ShareScope.Valid() {
		fields["shareScope"] = "Unknown share scope"
	}
	if req.Scores != nil {
		if !user.Teacher && req.Grade != "高3" {
			fields["scores"] = "Scores are only recorded for 高3"
		}
		for _, sc := range req.Scores {
			if !slices.Contains(scoreTests, sc.TestName) {
				fields["scores"] = "Unknown test: " + sc.TestName
			} else if sc.Value < minScore || sc.Value > maxScore {
				fields["scores"] = fmt.Sprintf("Scores must be %d-%d", minScore, maxScore)
			}
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	if err := s.users.UpdateProfile(ctx, userID, req); err != nil {
		return nil, err
	}
	logger.Info("profile updated", "user", userID, "grade", req.Grade, "class", req.Class)
	return s.Me(ctx, userID)
}

func inRange(v string, lo, hi int) bool {
	n, err := strconv.Atoi(v)
	return err == nil && n >= lo && n <= hi
}

// PlanHistory collects subject → topic → books over every stored plan.
func (s *ProfileService) PlanHistory(ctx context.Context, userID string) (models.PlanHistory, error) {
	doc, err := s.plans.All(ctx, userID)
	if err != nil {
		return nil, err
	}
	history := make(models.PlanHistory)
	for _, day := range doc {
		for _, entry := range day.Flatten() {
			topics, ok := history[entry.Subject]
			if !ok {
				topics = make(map[string][]string)
				history[entry.Subject] = topics
			}
			if !slices.Contains(topics[entry.Topic], entry.Book) {
				topics[entry.Topic] = append(topics[entry.Topic], entry.Book)
			}
		}
	}
	for _, topics := range history {
		for _, books := range topics {
			sort.Strings(books)
		}
	}
	return history, nil
}

// Students lists one grade (optionally one class) for a teacher.
func (s *ProfileService) Students(ctx context.Context, userID, grade, class string) ([]models.User, error) {
	me, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !me.Teacher {
		return nil, &ForbiddenError{Message: "Only teachers can list students"}
	}
	if !slices.Contains(Grades, grade) {
		return nil, &ValidationError{Fields: map[string]string{"grade": "Select a grade"}}
	}
	return s.users.ListByGradeClass(ctx, grade, class)
}

// EnqueueBulkRename queues a rename of topic and book across all plans and
// logs of the user.
func (s *ProfileService) EnqueueBulkRename(ctx context.Context, userID string, req models.BulkRenameRequest) (*models.Job, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	req.NewTopic = strings.TrimSpace(req.NewTopic)
	req.Book = strings.TrimSpace(req.Book)
	req.NewBook = strings.TrimSpace(req.NewBook)

	if req.Topic == "" && req.Book == "" {
		return nil, &ValidationError{Fields: map[string]string{"topic": "Select a topic or a book to rename"}}
	}
	if req.NewTopic == "" && req.NewBook == "" {
		return nil, &ValidationError{Fields: map[string]string{"new_topic": "Enter a new name"}}
	}
	if s.renames != nil && !s.renames.Allow(userID) {
		return nil, &RateLimitError{Message: "Too many rename requests, try again later"}
	}

	config, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	job := &models.Job{
		UserID:     userID,
		Type:       models.JobTypeBulkRename,
		ConfigJSON: config,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

func (s *ProfileService) Job(ctx context.Context, userID string, id string) (*models.Job, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return nil, &NotFoundError{Message: "Job not found"}
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && job.UserID != userID) {
		return nil, &NotFoundError{Message: "Job not found"}
	}
	return job, err
}
