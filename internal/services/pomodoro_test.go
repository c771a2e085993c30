package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tsureben-backend/internal/database"
	"tsureben-backend/internal/models"
	"tsureben-backend/internal/pomodoro"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pomodoroFixture struct {
	svc      *PomodoroService
	clock    *testClock
	plans    *fakePlans
	logs     *fakeLogs
	users    *fakeUsers
	sessions *fakeSessions
	anchors  *fakeAnchors
	pub      *fakePublisher
}

func newPomodoroFixture() *pomodoroFixture {
	f := &pomodoroFixture{
		clock:    &testClock{now: time.Date(2024, 6, 1, 9, 45, 0, 0, jst)},
		plans:    newFakePlans(),
		logs:     newFakeLogs(),
		users:    newFakeUsers(models.User{Email: planUser, Name: "太郎", Grade: "高2", Class: "3", ShareScope: models.ScopeClass}),
		sessions: newFakeSessions(),
		anchors:  newFakeAnchors(),
		pub:      &fakePublisher{},
	}
	f.plans.put(planUser, models.StudyPlanEntry{
		Date: "2024-06-01", Start: "09:00", End: "10:30", Subject: "数学", Topic: "数II", Book: "青チャート", Content: "微分",
	})
	f.svc = f.newService()
	return f
}

func (f *pomodoroFixture) newService() *PomodoroService {
	return NewPomodoroService(NewPlanService(f.plans, jst), f.logs, f.users, f.sessions, f.anchors, f.pub,
		pomodoro.Options{Location: jst, Now: f.clock.Now, LookupAttempts: 2})
}

func TestPomodoroStartAnnouncesAndAnchors(t *testing.T) {
	f := newPomodoroFixture()
	ctx := context.Background()

	snap, err := f.svc.Start(ctx, planUser)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.State != pomodoro.StateRunning || snap.Plan.Topic != "数II" || snap.StartTime != "09:45" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	day, _ := f.logs.GetDay(ctx, planUser, "2024-06-01")
	if len(day) != 1 || !day[0].InProgress() || day[0].StartTime != "09:45" {
		t.Fatalf("expected placeholder, got %+v", day)
	}
	active, _ := f.sessions.List(ctx)
	if len(active) != 1 || active[0].Class != "3" || active[0].ShareScope != models.ScopeClass || active[0].Topic != "数II" {
		t.Fatalf("expected profile snapshot in announcement, got %+v", active)
	}
	if _, ok := f.anchors.anchors[planUser]; !ok {
		t.Fatalf("expected anchor saved")
	}
	if f.pub.count(database.PresenceChannel) != 1 || f.pub.count(database.UserUpdatesChannel(planUser)) != 1 {
		t.Fatalf("expected presence and timer events, got %+v", f.pub.msgs)
	}

	again, err := f.svc.Start(ctx, planUser)
	if err != nil || again.SessionID != snap.SessionID {
		t.Fatalf("expected repeated start to be a no-op, got %+v %v", again, err)
	}
	day, _ = f.logs.GetDay(ctx, planUser, "2024-06-01")
	if len(day) != 1 {
		t.Fatalf("expected one placeholder, got %d", len(day))
	}
}

func TestPomodoroStartWithoutPlan(t *testing.T) {
	f := newPomodoroFixture()
	f.clock.Advance(2 * time.Hour)

	if _, err := f.svc.Start(context.Background(), planUser); !errors.Is(err, pomodoro.ErrNoActivePlan) {
		t.Fatalf("expected ErrNoActivePlan, got %v", err)
	}
	day, _ := f.logs.GetDay(context.Background(), planUser, "2024-06-01")
	if len(day) != 0 {
		t.Fatalf("expected no writes, got %+v", day)
	}
}

func TestPomodoroPauseResumeFinish(t *testing.T) {
	f := newPomodoroFixture()
	ctx := context.Background()

	f.svc.Start(ctx, planUser)
	f.clock.Advance(10 * time.Minute)
	if _, err := f.svc.Pause(ctx, planUser); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.clock.Advance(15 * time.Minute)
	snap, err := f.svc.Resume(ctx, planUser)
	if err != nil || snap.ElapsedSeconds != 600 {
		t.Fatalf("expected 600s after resume, got %+v %v", snap, err)
	}
	f.clock.Advance(15 * time.Minute)

	result, err := f.svc.Finish(ctx, planUser, nil, nil)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if result.Minutes != 25 || result.Appended {
		t.Fatalf("expected 25 minutes on the placeholder, got %+v", result)
	}
	day, _ := f.logs.GetDay(ctx, planUser, "2024-06-01")
	if len(day) != 1 || day[0].Duration == nil || *day[0].Duration != 25 {
		t.Fatalf("expected recorded duration, got %+v", day)
	}
	if active, _ := f.sessions.List(ctx); len(active) != 0 {
		t.Fatalf("expected announcement withdrawn")
	}
	if _, ok := f.anchors.anchors[planUser]; ok {
		t.Fatalf("expected anchor cleared")
	}
}

func TestPomodoroRestoreAfterRestart(t *testing.T) {
	f := newPomodoroFixture()
	ctx := context.Background()

	started, _ := f.svc.Start(ctx, planUser)
	f.svc.Shutdown()

	f.clock.Advance(20 * time.Minute)
	restarted := f.newService()
	status, err := restarted.Status(ctx, planUser)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != pomodoro.StateRunning || status.SessionID != started.SessionID || status.ElapsedSeconds != 1200 {
		t.Fatalf("expected restored session, got %+v", status)
	}
	if status.Orphaned != "" {
		t.Fatalf("running session must not be reported as orphaned")
	}

	result, err := restarted.Finish(ctx, planUser, nil, nil)
	if err != nil || result.Minutes != 20 {
		t.Fatalf("expected 20 minutes, got %+v %v", result, err)
	}
}

func TestPomodoroFinishTooShortNeedsManualEntry(t *testing.T) {
	f := newPomodoroFixture()
	ctx := context.Background()
	f.svc.Start(ctx, planUser)
	f.clock.Advance(30 * time.Second)

	if _, err := f.svc.Finish(ctx, planUser, nil, nil); !errors.Is(err, pomodoro.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	status, _ := f.svc.Status(ctx, planUser)
	if status.State != pomodoro.StateRunning {
		t.Fatalf("session must survive until a manual value is given, got %s", status.State)
	}
}

func TestPomodoroStatusReportsOrphan(t *testing.T) {
	f := newPomodoroFixture()
	ctx := context.Background()
	f.logs.Append(ctx, planUser, "2024-06-01", models.PomodoroLogEntry{Date: "2024-06-01", StartTime: "08:00", Topic: "英語"})

	status, err := f.svc.Status(ctx, planUser)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Orphaned == "" {
		t.Fatalf("expected orphan reported")
	}
	if status.CurrentPlan == nil || status.CurrentPlan.Topic != "数II" {
		t.Fatalf("expected current plan, got %+v", status.CurrentPlan)
	}
	day, _ := f.logs.GetDay(ctx, planUser, "2024-06-01")
	if !day[0].InProgress() {
		t.Fatalf("orphan must be left untouched")
	}
}

func TestPomodoroDiscard(t *testing.T) {
	f := newPomodoroFixture()
	ctx := context.Background()
	f.svc.Start(ctx, planUser)

	snap, err := f.svc.Discard(ctx, planUser)
	if err != nil || snap.State != pomodoro.StateIdle {
		t.Fatalf("expected idle after discard, got %+v %v", snap, err)
	}
	if active, _ := f.sessions.List(ctx); len(active) != 0 {
		t.Fatalf("expected announcement withdrawn")
	}
	if _, err := f.svc.Pause(ctx, planUser); !errors.Is(err, pomodoro.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}
