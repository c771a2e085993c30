package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tsureben-backend/internal/database"
	"tsureben-backend/internal/logger"
	"tsureben-backend/internal/models"
)

const maxAttempts = 3

type JobStatusStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

type PlanRewriter interface {
	UpdateAll(ctx context.Context, userID string, fn func(models.PlanDocument) (models.PlanDocument, error)) error
}

type LogRewriter interface {
	UpdateAll(ctx context.Context, userID string, fn func(models.LogDocument) (models.LogDocument, error)) error
}

type Publisher interface {
	Publish(ctx context.Context, channel string, msg any) error
}

type Pool struct {
	redis       *redis.Client
	jobs        JobStatusStore
	plans       PlanRewriter
	logs        LogRewriter
	pub         Publisher
	workerCount int
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewPool(redisClient *redis.Client, jobs JobStatusStore, plans PlanRewriter, logs LogRewriter, pub Publisher, workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		redis:       redisClient,
		jobs:        jobs,
		plans:       plans,
		logs:        logs,
		pub:         pub,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Info("worker pool started", "workers", p.workerCount, "queue", database.BulkRenameQueue)
}

// Stop signals the workers and waits for jobs in progress. A worker blocked
// in BLPOP notices on its next timeout.
func (p *Pool) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			logger.Info("worker shutting down", "worker", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 5s timeout
		result, err := p.redis.BLPop(ctx, 5*time.Second, database.BulkRenameQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			logger.Warn("failed to parse job", "worker", id, "err", err)
			continue
		}

		lockKey := database.JobLockKey(job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		logger.Info("processing job", "worker", id, "job", job.ID, "type", job.Type)
		p.Process(ctx, &job)
		p.redis.Del(ctx, lockKey)
	}
}

// Process runs one job and records the outcome.
func (p *Pool) Process(ctx context.Context, job *models.Job) {
	p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusProcessing)

	var processErr error
	switch job.Type {
	case models.JobTypeBulkRename:
		processErr = p.processBulkRename(ctx, job)
	default:
		processErr = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if processErr != nil {
		p.handleFailure(ctx, job, processErr)
	} else {
		p.handleSuccess(ctx, job)
	}
}

func (p *Pool) processBulkRename(ctx context.Context, job *models.Job) error {
	var req models.BulkRenameRequest
	if err := json.Unmarshal(job.ConfigJSON, &req); err != nil {
		return fmt.Errorf("invalid bulk rename config: %w", err)
	}

	var planCount, logCount int
	err := p.plans.UpdateAll(ctx, job.UserID, func(doc models.PlanDocument) (models.PlanDocument, error) {
		planCount = RenamePlans(doc, req)
		return doc, nil
	})
	if err != nil {
		return fmt.Errorf("rename plans: %w", err)
	}
	err = p.logs.UpdateAll(ctx, job.UserID, func(doc models.LogDocument) (models.LogDocument, error) {
		logCount = RenameLogs(doc, req)
		return doc, nil
	})
	if err != nil {
		return fmt.Errorf("rename logs: %w", err)
	}

	logger.Info("bulk rename applied", "job", job.ID, "user", job.UserID, "plans", planCount, "logs", logCount)
	return nil
}

// rename returns the new topic and book of one entry. A blank new value
// leaves the field unchanged.
func rename(topic, book string, req models.BulkRenameRequest) (string, string, bool) {
	changed := false
	if req.Topic != "" && topic == req.Topic && req.NewTopic != "" && req.NewTopic != topic {
		topic = req.NewTopic
		changed = true
	}
	if req.Book != "" && book == req.Book && req.NewBook != "" && req.NewBook != book {
		book = req.NewBook
		changed = true
	}
	return topic, book, changed
}

// RenamePlans rewrites doc in place and returns the number of changed entries.
func RenamePlans(doc models.PlanDocument, req models.BulkRenameRequest) int {
	n := 0
	for _, day := range doc {
		for _, entries := range day {
			for i := range entries {
				topic, book, changed := rename(entries[i].Topic, entries[i].Book, req)
				if changed {
					entries[i].Topic, entries[i].Book = topic, book
					n++
				}
			}
		}
	}
	return n
}

// RenameLogs rewrites doc in place and returns the number of changed entries.
func RenameLogs(doc models.LogDocument, req models.BulkRenameRequest) int {
	n := 0
	for _, entries := range doc {
		for i := range entries {
			topic, book, changed := rename(entries[i].Topic, entries[i].Book, req)
			if changed {
				entries[i].Topic, entries[i].Book = topic, book
				n++
			}
		}
	}
	return n
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusCompleted)
	p.publish(ctx, job.UserID, models.WSMessage{
		Type:    models.WSTypeJobCompleted,
		Payload: models.JobEvent{JobID: job.ID.String(), Type: job.Type},
	})
	logger.Info("job completed", "job", job.ID)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	if job.RetryCount < maxAttempts {
		logger.Warn("job failed, retrying", "job", job.ID, "attempt", job.RetryCount, "err", errMsg)
		p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusPending)
		p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		// Re-queue after backoff
		jobBytes, _ := json.Marshal(job)
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		if p.redis != nil {
			time.AfterFunc(backoff, func() {
				p.redis.LPush(context.Background(), database.BulkRenameQueue, string(jobBytes))
			})
		}
		return
	}

	logger.Error("job failed permanently", "job", job.ID, "err", errMsg)
	p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusFailed)
	p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
	p.publish(ctx, job.UserID, models.WSMessage{
		Type:    models.WSTypeJobFailed,
		Payload: models.JobEvent{JobID: job.ID.String(), Type: job.Type, ErrorMessage: errMsg},
	})
}

func (p *Pool) publish(ctx context.Context, userID string, msg models.WSMessage) {
	if p.pub == nil {
		return
	}
	if err := p.pub.Publish(ctx, database.UserUpdatesChannel(userID), msg); err != nil {
		logger.Warn("job event publish failed", "user", userID, "err", err)
	}
}
