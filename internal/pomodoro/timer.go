// Package pomodoro implements the study session timer: start, pause, resume
// and finish, reconciled against the in-progress log entry written at start.
package pomodoro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tsureben-backend/internal/models"
	"tsureben-backend/internal/schedule"
)

type Options struct {
	Location       *time.Location
	TickInterval   time.Duration
	OnTick         func(Snapshot)
	OnError        func(op string, err error)
	Now            func() time.Time
	LookupAttempts int
	LookupBackoff  time.Duration
}

// Timer is one user's session state machine. All methods are safe for
// concurrent use; the lock is held across storage calls so a repeated Start
// waits for the first one and then sees Running.
type Timer struct {
	mu    sync.Mutex
	store Store
	opts  Options

	state         State
	sessionID     string
	date          string
	initialStart  time.Time
	start         time.Time
	pausedElapsed time.Duration
	plan          models.StudyPlanEntry

	tickStop chan struct{}
}

func NewTimer(store Store, opts Options) *Timer {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LookupAttempts < 1 {
		opts.LookupAttempts = 1
	}
	return &Timer{store: store, opts: opts, state: StateIdle}
}

// Restore rebuilds a timer from a persisted anchor.
func Restore(a Anchor, store Store, opts Options) *Timer {
	t := NewTimer(store, opts)
	t.state = a.State
	t.sessionID = a.SessionID
	t.date = a.Date
	t.initialStart = a.InitialStart
	t.start = a.Start
	t.pausedElapsed = a.PausedElapsed
	t.plan = a.Plan
	if t.state == StateRunning {
		t.startTicker()
	}
	return t
}

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(t.opts.Now())
}

func (t *Timer) snapshotLocked(now time.Time) Snapshot {
	s := Snapshot{State: t.state}
	if t.state != StateRunning && t.state != StatePaused {
		return s
	}
	plan := t.plan
	s.ElapsedSeconds = int64(t.elapsedLocked(now) / time.Second)
	s.SessionID = t.sessionID
	s.Date = t.date
	s.StartTime = t.initialStart.In(t.opts.Location).Format(schedule.TimeFormat)
	s.Plan = &plan
	return s
}

// elapsedLocked is always recomputed from the anchors, never accumulated.
// It keeps full precision; callers truncate.
func (t *Timer) elapsedLocked(now time.Time) time.Duration {
	if t.state != StateRunning {
		return t.pausedElapsed
	}
	run := now.Sub(t.start)
	if run < 0 {
		run = 0
	}
	return run + t.pausedElapsed
}

func (t *Timer) anchorLocked() Anchor {
	return Anchor{
		SessionID:     t.sessionID,
		Date:          t.date,
		InitialStart:  t.initialStart,
		Start:         t.start,
		PausedElapsed: t.pausedElapsed,
		State:         t.state,
		Plan:          t.plan,
	}
}

// Start begins a session on plan. It is a no-op while Running.
func (t *Timer) Start(ctx context.Context, plan *models.StudyPlanEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateRunning:
		return nil
	case StatePaused:
		return fmt.Errorf("%w: start while paused", ErrInvalidTransition)
	}
	if plan == nil {
		return ErrNoActivePlan
	}

	now := t.opts.Now()
	local := now.In(t.opts.Location)
	date := local.Format(schedule.DateFormat)
	placeholder := models.PomodoroLogEntry{
		Date:      date,
		StartTime: local.Format(schedule.TimeFormat),
		Subject:   plan.Subject,
		Topic:     plan.Topic,
		Book:      plan.Book,
		Content:   plan.Content,
	}
	if err := t.store.AppendLog(ctx, date, placeholder); err != nil {
		return fmt.Errorf("write placeholder: %w", err)
	}

	t.state = StateRunning
	t.sessionID = uuid.New().String()
	t.date = date
	t.initialStart = now
	t.start = now
	t.pausedElapsed = 0
	t.plan = *plan

	if err := t.store.Announce(ctx, placeholder); err != nil {
		t.report("announce", err)
	}
	t.saveAnchorLocked(ctx)
	t.startTicker()
	return nil
}

func (t *Timer) Pause(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateRunning {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, t.state)
	}
	t.pausedElapsed = t.elapsedLocked(t.opts.Now())
	t.state = StatePaused
	t.stopTicker()
	t.saveAnchorLocked(ctx)
	return nil
}

func (t *Timer) Resume(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StatePaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, t.state)
	}
	t.start = t.opts.Now()
	t.state = StateRunning
	t.saveAnchorLocked(ctx)
	t.startTicker()
	return nil
}

// Finish records the session. When identity cannot be renewed or the measured
// duration is out of range, manual is asked for a minute count before anything
// is written; with a nil manual the cause is returned and the timer is left as
// it was.
func (t *Timer) Finish(ctx context.Context, identity Identity, manual ManualEntry) (FinishResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateRunning && t.state != StatePaused {
		return FinishResult{}, fmt.Errorf("%w: finish from %s", ErrInvalidTransition, t.state)
	}

	var cause error
	if identity != nil && !identity.Valid(ctx) {
		if err := identity.Reauthenticate(ctx); err != nil {
			cause = fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}
	}

	result := FinishResult{Date: t.date}
	if cause == nil {
		result.Minutes = int(t.elapsedLocked(t.opts.Now()) / time.Minute)
		cause = ValidateMinutes(result.Minutes)
	}

	if cause != nil {
		if manual == nil {
			return FinishResult{}, cause
		}
		for {
			if err := ctx.Err(); err != nil {
				return FinishResult{}, err
			}
			m, err := manual.Minutes(ctx, cause)
			if errors.Is(err, ErrEntryCancelled) {
				t.discardLocked(context.WithoutCancel(ctx))
				return FinishResult{}, ErrEntryCancelled
			}
			if err != nil {
				return FinishResult{}, err
			}
			if cause = ValidateMinutes(m); cause == nil {
				result.Minutes = m
				result.Manual = true
				break
			}
		}
	}

	rec, err := t.recordLocked(ctx, result.Minutes)
	if err != nil {
		return FinishResult{}, err
	}
	result.Appended = rec.appended
	if rec.existing != nil {
		result.Minutes = *rec.existing
		result.Manual = false
	}

	// The log is written; cleanup must not depend on the caller staying.
	t.clearLocked(context.WithoutCancel(ctx))
	t.state = StateFinished
	return result, nil
}

type recordOutcome struct {
	appended bool
	// existing is set when the session had already been recorded by an
	// earlier finish whose cleanup did not complete.
	existing *int
}

// recordLocked sets the duration of the placeholder written at start. The
// placeholder is looked up in freshly read data up to LookupAttempts times; if
// it never shows up the session is appended as a completed entry.
func (t *Timer) recordLocked(ctx context.Context, minutes int) (recordOutcome, error) {
	startTime := t.initialStart.In(t.opts.Location).Format(schedule.TimeFormat)
	var out recordOutcome
	setDuration := func(entries []models.PomodoroLogEntry) ([]models.PomodoroLogEntry, error) {
		i := LocatePlaceholder(entries, startTime)
		if i < 0 {
			if j := LocateRecorded(entries, startTime); j >= 0 {
				d := *entries[j].Duration
				out.existing = &d
				return nil, errAlreadyRecorded
			}
			return nil, errPlaceholderMissing
		}
		d := minutes
		entries[i].Duration = &d
		return entries, nil
	}

	for attempt := 0; attempt < t.opts.LookupAttempts; attempt++ {
		if attempt > 0 && t.opts.LookupBackoff > 0 {
			select {
			case <-ctx.Done():
				return recordOutcome{}, ctx.Err()
			case <-time.After(t.opts.LookupBackoff):
			}
		}
		err := t.store.UpdateLogs(ctx, t.date, setDuration)
		if err == nil || errors.Is(err, errAlreadyRecorded) {
			return out, nil
		}
		if !errors.Is(err, errPlaceholderMissing) {
			return recordOutcome{}, fmt.Errorf("update log: %w", err)
		}
	}

	d := minutes
	entry := models.PomodoroLogEntry{
		Date:      t.date,
		StartTime: startTime,
		Duration:  &d,
		Subject:   t.plan.Subject,
		Topic:     t.plan.Topic,
		Book:      t.plan.Book,
		Content:   t.plan.Content,
	}
	if err := t.store.AppendLog(ctx, t.date, entry); err != nil {
		return recordOutcome{}, fmt.Errorf("append log: %w", err)
	}
	return recordOutcome{appended: true}, nil
}

// Discard abandons the current session without writing a duration. The
// placeholder entry stays in the log.
func (t *Timer) Discard(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateRunning && t.state != StatePaused {
		return fmt.Errorf("%w: discard from %s", ErrInvalidTransition, t.state)
	}
	t.discardLocked(context.WithoutCancel(ctx))
	return nil
}

func (t *Timer) discardLocked(ctx context.Context) {
	t.clearLocked(ctx)
	t.state = StateIdle
}

// clearLocked withdraws the announcement, drops the anchor and resets the
// session fields.
func (t *Timer) clearLocked(ctx context.Context) {
	if err := t.store.Withdraw(ctx); err != nil {
		t.report("withdraw", err)
	}
	if err := t.store.ClearAnchor(ctx); err != nil {
		t.report("clear anchor", err)
	}
	t.stopTicker()
	t.resetLocked()
}

func (t *Timer) resetLocked() {
	t.sessionID = ""
	t.date = ""
	t.initialStart = time.Time{}
	t.start = time.Time{}
	t.pausedElapsed = 0
	t.plan = models.StudyPlanEntry{}
}

// Close stops the tick source. The session itself is untouched.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTicker()
}

func (t *Timer) saveAnchorLocked(ctx context.Context) {
	if err := t.store.SaveAnchor(ctx, t.anchorLocked()); err != nil {
		t.report("save anchor", err)
	}
}

func (t *Timer) report(op string, err error) {
	if t.opts.OnError != nil {
		t.opts.OnError(op, err)
	}
}

// startTicker must be called with the lock held.
func (t *Timer) startTicker() {
	t.stopTicker()
	if t.opts.OnTick == nil || t.opts.TickInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	t.tickStop = stop
	go t.tickLoop(stop)
}

// stopTicker must be called with the lock held. It does not wait for the loop
// to exit; a loop that wakes after being stopped sees a stale channel and quits.
func (t *Timer) stopTicker() {
	if t.tickStop != nil {
		close(t.tickStop)
		t.tickStop = nil
	}
}

func (t *Timer) tickLoop(stop chan struct{}) {
	ticker := time.NewTicker(t.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.tickStop != stop {
				t.mu.Unlock()
				return
			}
			snap := t.snapshotLocked(t.opts.Now())
			t.mu.Unlock()
			t.opts.OnTick(snap)
		}
	}
}
