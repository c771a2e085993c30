package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"tsureben-backend/internal/database"
	"tsureben-backend/internal/logger"
	"tsureben-backend/internal/models"
	"tsureben-backend/internal/pomodoro"
	"tsureben-backend/internal/schedule"
)

type PomodoroStatus struct {
	pomodoro.Snapshot
	CurrentPlan *models.StudyPlanEntry `json:"current_plan"`
	Orphaned    string                 `json:"orphaned,omitempty"`
}

// PomodoroService keeps one live timer per user. Timers are rebuilt from their
// redis anchor the first time a user is seen after a restart.
type PomodoroService struct {
	plans    *PlanService
	logs     LogStore
	users    UserStore
	sessions SessionStore
	anchors  AnchorStore
	pub      Publisher
	opts     pomodoro.Options

	mu     sync.Mutex
	timers map[string]*pomodoro.Timer
}

func NewPomodoroService(plans *PlanService, logs LogStore, users UserStore, sessions SessionStore, anchors AnchorStore, pub Publisher, opts pomodoro.Options) *PomodoroService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &PomodoroService{
		plans:    plans,
		logs:     logs,
		users:    users,
		sessions: sessions,
		anchors:  anchors,
		pub:      pub,
		opts:     opts,
		timers:   make(map[string]*pomodoro.Timer),
	}
}

func (s *PomodoroService) timerFor(ctx context.Context, userID string) (*pomodoro.Timer, error) {
	s.mu.Lock()
	t, ok := s.timers[userID]
	s.mu.Unlock()
	if ok {
		return t, nil
	}

	anchor, err := s.anchors.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[userID]; ok {
		return t, nil
	}

	store := &userSessionStore{svc: s, userID: userID}
	opts := s.userOptions(userID)
	if anchor != nil && (anchor.State == pomodoro.StateRunning || anchor.State == pomodoro.StatePaused) {
		t = pomodoro.Restore(*anchor, store, opts)
		logger.Info("timer restored", "user", userID, "session", anchor.SessionID, "state", anchor.State)
	} else {
		t = pomodoro.NewTimer(store, opts)
	}
	s.timers[userID] = t
	return t, nil
}

func (s *PomodoroService) userOptions(userID string) pomodoro.Options {
	opts := s.opts
	opts.OnTick = func(snap pomodoro.Snapshot) {
		s.publishTimer(context.Background(), userID, snap)
	}
	opts.OnError = func(op string, err error) {
		logger.Warn("pomodoro side effect failed", "user", userID, "op", op, "err", err)
	}
	return opts
}

func (s *PomodoroService) publishTimer(ctx context.Context, userID string, snap pomodoro.Snapshot) {
	if s.pub == nil {
		return
	}
	msg := models.WSMessage{
		Type: models.WSTypeTimer,
		Payload: models.TimerEvent{
			State:          string(snap.State),
			ElapsedSeconds: snap.ElapsedSeconds,
			SessionID:      snap.SessionID,
		},
	}
	if err := s.pub.Publish(ctx, database.UserUpdatesChannel(userID), msg); err != nil {
		logger.Debug("timer publish failed", "user", userID, "err", err)
	}
}

// CurrentPlan returns the plan entry covering now, or nil.
func (s *PomodoroService) CurrentPlan(ctx context.Context, userID string) (*models.StudyPlanEntry, error) {
	now := s.opts.Now()
	date := now.In(s.opts.Location).Format(schedule.DateFormat)
	ix, err := s.plans.Index(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	entry, ok := ix.FindCovering(now)
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *PomodoroService) Status(ctx context.Context, userID string) (*PomodoroStatus, error) {
	t, err := s.timerFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan, err := s.CurrentPlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	status := &PomodoroStatus{Snapshot: t.Snapshot(), CurrentPlan: plan}

	if status.State != pomodoro.StateRunning && status.State != pomodoro.StatePaused {
		today := s.opts.Now().In(s.opts.Location).Format(schedule.DateFormat)
		dayLogs, err := s.logs.GetDay(ctx, userID, today)
		if err != nil {
			return nil, err
		}
		if err := pomodoro.DetectOrphan(nil, dayLogs); err != nil {
			logger.Warn("orphaned session entry", "user", userID, "err", err)
			status.Orphaned = err.Error()
		}
	}
	return status, nil
}

// Start begins a session on the plan entry covering now. Starting while
// running returns the current session unchanged.
func (s *PomodoroService) Start(ctx context.Context, userID string) (pomodoro.Snapshot, error) {
	t, err := s.timerFor(ctx, userID)
	if err != nil {
		return pomodoro.Snapshot{}, err
	}
	if t.State() == pomodoro.StateRunning {
		return t.Snapshot(), nil
	}

	plan, err := s.CurrentPlan(ctx, userID)
	if err != nil {
		return pomodoro.Snapshot{}, err
	}
	if err := t.Start(ctx, plan); err != nil {
		return pomodoro.Snapshot{}, err
	}
	snap := t.Snapshot()
	s.publishTimer(ctx, userID, snap)
	logger.Info("session started", "user", userID, "session", snap.SessionID, "topic", snap.Plan.Topic)
	return snap, nil
}

func (s *PomodoroService) Pause(ctx context.Context, userID string) (pomodoro.Snapshot, error) {
	return s.transition(ctx, userID, (*pomodoro.Timer).Pause)
}

func (s *PomodoroService) Resume(ctx context.Context, userID string) (pomodoro.Snapshot, error) {
	return s.transition(ctx, userID, (*pomodoro.Timer).Resume)
}

func (s *PomodoroService) Discard(ctx context.Context, userID string) (pomodoro.Snapshot, error) {
	snap, err := s.transition(ctx, userID, (*pomodoro.Timer).Discard)
	if err == nil {
		logger.Info("session discarded", "user", userID)
	}
	return snap, err
}

func (s *PomodoroService) transition(ctx context.Context, userID string, fn func(*pomodoro.Timer, context.Context) error) (pomodoro.Snapshot, error) {
	t, err := s.timerFor(ctx, userID)
	if err != nil {
		return pomodoro.Snapshot{}, err
	}
	if err := fn(t, ctx); err != nil {
		return pomodoro.Snapshot{}, err
	}
	snap := t.Snapshot()
	s.publishTimer(ctx, userID, snap)
	return snap, nil
}

// Finish records the running or paused session. See pomodoro.Timer.Finish
// for how identity and manual are consulted.
func (s *PomodoroService) Finish(ctx context.Context, userID string, identity pomodoro.Identity, manual pomodoro.ManualEntry) (pomodoro.FinishResult, error) {
	t, err := s.timerFor(ctx, userID)
	if err != nil {
		return pomodoro.FinishResult{}, err
	}
	result, err := t.Finish(ctx, identity, manual)
	if err != nil {
		if errors.Is(err, pomodoro.ErrEntryCancelled) {
			s.publishTimer(ctx, userID, t.Snapshot())
		}
		return pomodoro.FinishResult{}, err
	}
	s.publishTimer(ctx, userID, t.Snapshot())
	logger.Info("session finished", "user", userID, "date", result.Date, "minutes", result.Minutes,
		"manual", result.Manual, "appended", result.Appended)
	return result, nil
}

// Shutdown stops every tick source. Sessions stay anchored and resume on the
// next request.
func (s *PomodoroService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Close()
		delete(s.timers, id)
	}
}

// userSessionStore is the pomodoro.Store of one user.
type userSessionStore struct {
	svc    *PomodoroService
	userID string
}

func (u *userSessionStore) AppendLog(ctx context.Context, date string, entry models.PomodoroLogEntry) error {
	return u.svc.logs.Append(ctx, u.userID, date, entry)
}

func (u *userSessionStore) UpdateLogs(ctx context.Context, date string, fn func([]models.PomodoroLogEntry) ([]models.PomodoroLogEntry, error)) error {
	return u.svc.logs.UpdateDay(ctx, u.userID, date, fn)
}

// Announce snapshots the profile into the presence record.
func (u *userSessionStore) Announce(ctx context.Context, entry models.PomodoroLogEntry) error {
	user, err := u.svc.users.GetByEmail(ctx, u.userID)
	if err != nil {
		return err
	}
	session := models.ActiveSession{
		Email:           user.Email,
		Name:            user.Name,
		Grade:           user.Grade,
		Class:           user.Class,
		ShareScope:      user.ShareScope,
		TurebenRequests: user.TurebenRequests,
		HiddenRequests:  user.HiddenRequests,
		HiddenMates:     user.HiddenMates,
		Subject:         entry.Subject,
		Topic:           entry.Topic,
		Book:            entry.Book,
		Content:         entry.Content,
		StartTime:       entry.StartTime,
		UpdatedAt:       u.svc.opts.Now(),
	}
	if err := u.svc.sessions.Put(ctx, u.userID, session); err != nil {
		return err
	}
	u.notifyPresence(ctx)
	return nil
}

func (u *userSessionStore) Withdraw(ctx context.Context) error {
	if err := u.svc.sessions.Delete(ctx, u.userID); err != nil {
		return err
	}
	u.notifyPresence(ctx)
	return nil
}

func (u *userSessionStore) notifyPresence(ctx context.Context) {
	if u.svc.pub == nil {
		return
	}
	msg := models.WSMessage{Type: models.WSTypePresence, Payload: map[string]string{"user": u.userID}}
	if err := u.svc.pub.Publish(ctx, database.PresenceChannel, msg); err != nil {
		logger.Warn("presence publish failed", "user", u.userID, "err", err)
	}
}

func (u *userSessionStore) SaveAnchor(ctx context.Context, a pomodoro.Anchor) error {
	return u.svc.anchors.Save(ctx, u.userID, a)
}

func (u *userSessionStore) ClearAnchor(ctx context.Context) error {
	return u.svc.anchors.Clear(ctx, u.userID)
}
