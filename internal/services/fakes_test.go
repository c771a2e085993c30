package services

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tsureben-backend/internal/models"
	"tsureben-backend/internal/pomodoro"
	"tsureben-backend/internal/repository"
)

var jst = time.FixedZone("JST", 9*60*60)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUsers(users ...models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*models.User)}
	for _, u := range users {
		u := u
		f.users[u.Email] = &u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.Email]; ok {
		return pgx.ErrNoRows
	}
	cp := *u
	f.users[u.Email] = &cp
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	cp.TurebenRequests = slices.Clone(u.TurebenRequests)
	cp.HiddenRequests = slices.Clone(u.HiddenRequests)
	cp.HiddenMates = slices.Clone(u.HiddenMates)
	return &cp, nil
}

func (f *fakeUsers) List(ctx context.Context) ([]models.User, error) {
	f.mu.Lock()
	emails := make([]string, 0, len(f.users))
	for e := range f.users {
		emails = append(emails, e)
	}
	f.mu.Unlock()
	sort.Strings(emails)

	out := make([]models.User, 0, len(emails))
	for _, e := range emails {
		u, _ := f.GetByEmail(ctx, e)
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUsers) ListByGradeClass(ctx context.Context, grade, class string) ([]models.User, error) {
	all, _ := f.List(ctx)
	var out []models.User
	for _, u := range all {
		if !u.Teacher && u.Grade == grade && (class == "" || u.Class == class) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) SearchByName(ctx context.Context, name, exclude string, limit int) ([]models.User, error) {
	all, _ := f.List(ctx)
	var out []models.User
	for _, u := range all {
		if u.Email != exclude && strings.Contains(u.Name, name) && len(out) < limit {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, email string, p models.ProfileRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return pgx.ErrNoRows
	}
	u.Grade, u.Class, u.Number, u.ShareScope = p.Grade, p.Class, p.Number, p.ShareScope
	if p.Scores != nil {
		u.Scores = p.Scores
	}
	return nil
}

func (f *fakeUsers) list(u *models.User, column string) *[]string {
	switch column {
	case repository.ListTurebenRequests:
		return &u.TurebenRequests
	case repository.ListHiddenRequests:
		return &u.HiddenRequests
	default:
		return &u.HiddenMates
	}
}

func (f *fakeUsers) AddToList(_ context.Context, email, column string, values ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil
	}
	l := f.list(u, column)
	for _, v := range values {
		if !slices.Contains(*l, v) {
			*l = append(*l, v)
		}
	}
	return nil
}

func (f *fakeUsers) RemoveFromList(_ context.Context, email, column, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil
	}
	l := f.list(u, column)
	*l = slices.DeleteFunc(*l, func(v string) bool { return v == value })
	return nil
}

type fakePlans struct {
	mu   sync.Mutex
	docs map[string]models.PlanDocument
}

func newFakePlans() *fakePlans {
	return &fakePlans{docs: make(map[string]models.PlanDocument)}
}

func copyDay(day models.DayPlans) models.DayPlans {
	if day == nil {
		return nil
	}
	out := make(models.DayPlans, len(day))
	for h, entries := range day {
		cp := make([]models.StudyPlanEntry, len(entries))
		for i, e := range entries {
			e.Hour = h
			cp[i] = e
		}
		out[h] = cp
	}
	return out
}

func (f *fakePlans) put(userID string, entries ...models.StudyPlanEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[userID]
	if !ok {
		doc = make(models.PlanDocument)
		f.docs[userID] = doc
	}
	for _, e := range entries {
		day := doc[e.Date]
		if day == nil {
			day = models.DayPlans{}
			doc[e.Date] = day
		}
		bucket := e.Start[:2]
		day[bucket] = append(day[bucket], e)
	}
}

func (f *fakePlans) GetDay(_ context.Context, userID, date string) (models.DayPlans, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyDay(f.docs[userID][date]), nil
}

func (f *fakePlans) All(_ context.Context, userID string) (models.PlanDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(models.PlanDocument)
	for date, day := range f.docs[userID] {
		out[date] = copyDay(day)
	}
	return out, nil
}

func (f *fakePlans) UpdateDay(_ context.Context, userID, date string, fn func(models.DayPlans) (models.DayPlans, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, err := fn(copyDay(f.docs[userID][date]))
	if err != nil {
		return err
	}
	doc, ok := f.docs[userID]
	if !ok {
		doc = make(models.PlanDocument)
		f.docs[userID] = doc
	}
	for h, entries := range next {
		if len(entries) == 0 {
			delete(next, h)
		}
	}
	if len(next) == 0 {
		delete(doc, date)
		return nil
	}
	doc[date] = next
	return nil
}

type fakeLogs struct {
	mu   sync.Mutex
	docs map[string]models.LogDocument
}

func newFakeLogs() *fakeLogs {
	return &fakeLogs{docs: make(map[string]models.LogDocument)}
}

func (f *fakeLogs) GetDay(_ context.Context, userID, date string) ([]models.PomodoroLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.docs[userID][date]), nil
}

func (f *fakeLogs) All(_ context.Context, userID string) (models.LogDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(models.LogDocument)
	for d, entries := range f.docs[userID] {
		out[d] = slices.Clone(entries)
	}
	return out, nil
}

func (f *fakeLogs) ListAll(ctx context.Context) (map[string]models.LogDocument, error) {
	f.mu.Lock()
	users := make([]string, 0, len(f.docs))
	for u := range f.docs {
		users = append(users, u)
	}
	f.mu.Unlock()
	out := make(map[string]models.LogDocument)
	for _, u := range users {
		out[u], _ = f.All(ctx, u)
	}
	return out, nil
}

func (f *fakeLogs) Append(_ context.Context, userID, date string, e models.PomodoroLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[userID]
	if !ok {
		doc = make(models.LogDocument)
		f.docs[userID] = doc
	}
	doc[date] = append(doc[date], e)
	return nil
}

func (f *fakeLogs) UpdateDay(_ context.Context, userID, date string, fn func([]models.PomodoroLogEntry) ([]models.PomodoroLogEntry, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, err := fn(slices.Clone(f.docs[userID][date]))
	if err != nil {
		return err
	}
	doc, ok := f.docs[userID]
	if !ok {
		doc = make(models.LogDocument)
		f.docs[userID] = doc
	}
	doc[date] = next
	return nil
}

func minutes(n int) *int { return &n }

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]models.ActiveSession
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]models.ActiveSession)}
}

func (f *fakeSessions) Put(_ context.Context, userID string, a models.ActiveSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[userID] = a
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, userID)
	return nil
}

func (f *fakeSessions) List(context.Context) ([]models.ActiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ActiveSession, 0, len(f.sessions))
	for _, a := range f.sessions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

type fakeSummaries struct {
	docs map[string]models.WindowSummary
}

func (f *fakeSummaries) Put(_ context.Context, window string, doc models.WindowSummary) error {
	if f.docs == nil {
		f.docs = make(map[string]models.WindowSummary)
	}
	f.docs[window] = doc
	return nil
}

func (f *fakeSummaries) Get(_ context.Context, window string) (models.WindowSummary, time.Time, error) {
	doc, ok := f.docs[window]
	if !ok {
		return nil, time.Time{}, pgx.ErrNoRows
	}
	return doc, time.Date(2024, 6, 1, 0, 0, 0, 0, jst), nil
}

type fakeJobs struct {
	jobs map[uuid.UUID]*models.Job
}

func (f *fakeJobs) Create(_ context.Context, j *models.Job) error {
	if f.jobs == nil {
		f.jobs = make(map[uuid.UUID]*models.Job)
	}
	j.ID = uuid.New()
	j.Status = models.JobStatusPending
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeJobs) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return j, nil
}

type fakeQueue struct {
	jobs []models.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, j *models.Job) error {
	q.jobs = append(q.jobs, *j)
	return nil
}

type fakeAnchors struct {
	mu      sync.Mutex
	anchors map[string]pomodoro.Anchor
}

func newFakeAnchors() *fakeAnchors {
	return &fakeAnchors{anchors: make(map[string]pomodoro.Anchor)}
}

func (f *fakeAnchors) Load(_ context.Context, userID string) (*pomodoro.Anchor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.anchors[userID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeAnchors) Save(_ context.Context, userID string, a pomodoro.Anchor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anchors[userID] = a
	return nil
}

func (f *fakeAnchors) Clear(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.anchors, userID)
	return nil
}

type fakeRefresh struct {
	tokens map[string]string
}

func (f *fakeRefresh) Save(_ context.Context, token, userID string, _ time.Duration) error {
	if f.tokens == nil {
		f.tokens = make(map[string]string)
	}
	f.tokens[token] = userID
	return nil
}

func (f *fakeRefresh) Take(_ context.Context, token string) (string, error) {
	id, ok := f.tokens[token]
	if !ok {
		return "", ErrRefreshTokenNotFound
	}
	delete(f.tokens, token)
	return id, nil
}

func (f *fakeRefresh) Delete(_ context.Context, token string) error {
	delete(f.tokens, token)
	return nil
}

type published struct {
	channel string
	msg     models.WSMessage
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) Publish(_ context.Context, channel string, msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, _ := json.Marshal(msg)
	var m models.WSMessage
	json.Unmarshal(data, &m)
	p.msgs = append(p.msgs, published{channel: channel, msg: m})
	return nil
}

func (p *fakePublisher) count(channel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.msgs {
		if m.channel == channel {
			n++
		}
	}
	return n
}

type fakeChanges struct {
	ch chan struct{}
}

func (f *fakeChanges) Changes(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-f.ch:
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

type fakeIssuer struct{}

func (fakeIssuer) GenerateAccessToken(email string, teacher bool) (string, error) {
	if teacher {
		return "access:teacher:" + email, nil
	}
	return "access:" + email, nil
}
