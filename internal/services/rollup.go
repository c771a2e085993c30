package services

import (
	"context"
	"time"

	"tsureben-backend/internal/logger"
	"tsureben-backend/internal/models"
	"tsureben-backend/internal/schedule"
)

const rollupPollInterval = 1 * time.Hour

// LogArchive reads the session logs of every user.
type LogArchive interface {
	ListAll(ctx context.Context) (map[string]models.LogDocument, error)
}

// RunMarker remembers the local date of the last completed rollup.
type RunMarker interface {
	LastRun(ctx context.Context) (string, error)
	MarkRun(ctx context.Context, date string) error
}

// rollupScore is the May written exam score, else the April common test
// score. Zero means the user has no score.
func rollupScore(u models.User) float64 {
	var april, may float64
	for _, s := range u.Scores {
		switch s.TestName {
		case TestAprilCommon:
			april = s.Value
		case TestMayWritten:
			may = s.Value
		}
	}
	if may != 0 {
		return may
	}
	return april
}

// ComputeRollup totals recorded minutes per user over the yesterday, week and
// month windows ending at today. Users without a score are skipped and only
// positive totals are kept.
func ComputeRollup(users []models.User, logs map[string]models.LogDocument, today time.Time) map[string]models.WindowSummary {
	since := map[string]string{
		models.WindowYesterday: today.AddDate(0, 0, -1).Format(schedule.DateFormat),
		models.WindowWeek:      today.AddDate(0, 0, -7).Format(schedule.DateFormat),
		models.WindowMonth:     today.AddDate(0, -1, 0).Format(schedule.DateFormat),
	}
	out := make(map[string]models.WindowSummary, len(since))
	for w := range since {
		out[w] = models.WindowSummary{}
	}

	for _, u := range users {
		score := rollupScore(u)
		if score == 0 {
			continue
		}
		doc, ok := logs[u.Email]
		if !ok {
			continue
		}
		for window, from := range since {
			total := 0
			for date, entries := range doc {
				if date >= from {
					total += sumMinutes(entries)
				}
			}
			if total > 0 {
				out[window][u.Email] = models.SummaryPoint{TotalMinutes: total, Score: score}
			}
		}
	}
	return out
}

type Rollup struct {
	users     UserStore
	logs      LogArchive
	summaries SummaryStore
	loc       *time.Location
}

func NewRollup(users UserStore, logs LogArchive, summaries SummaryStore, loc *time.Location) *Rollup {
	return &Rollup{users: users, logs: logs, summaries: summaries, loc: loc}
}

// Run computes and stores all windows as of now.
func (r *Rollup) Run(ctx context.Context, now time.Time) (map[string]models.WindowSummary, error) {
	users, err := r.users.List(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := r.logs.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	result := ComputeRollup(users, logs, now.In(r.loc))
	for _, window := range []string{models.WindowYesterday, models.WindowWeek, models.WindowMonth} {
		if err := r.summaries.Put(ctx, window, result[window]); err != nil {
			return nil, err
		}
	}
	logger.Info("rollup written",
		"yesterday", len(result[models.WindowYesterday]),
		"week", len(result[models.WindowWeek]),
		"month", len(result[models.WindowMonth]))
	return result, nil
}

// RollupScheduler runs the rollup once per local day, on the first poll after
// midnight.
type RollupScheduler struct {
	rollup   *Rollup
	marker   RunMarker
	stopChan chan struct{}
	now      func() time.Time
}

func NewRollupScheduler(rollup *Rollup, marker RunMarker) *RollupScheduler {
	return &RollupScheduler{
		rollup:   rollup,
		marker:   marker,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

func (s *RollupScheduler) Start() {
	if s.rollup == nil || s.marker == nil {
		return
	}
	go s.loop()
	logger.Info("rollup scheduler started")
}

func (s *RollupScheduler) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *RollupScheduler) loop() {
	// Run on startup as well as by interval.
	s.runIfDue(context.Background())

	ticker := time.NewTicker(rollupPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runIfDue(context.Background())
		}
	}
}

// runIfDue reports whether a rollup ran.
func (s *RollupScheduler) runIfDue(ctx context.Context) bool {
	now := s.now()
	today := now.In(s.rollup.loc).Format(schedule.DateFormat)

	last, err := s.marker.LastRun(ctx)
	if err != nil {
		logger.Warn("rollup: failed to read last run", "err", err)
		return false
	}
	if last == today {
		return false
	}

	if _, err := s.rollup.Run(ctx, now); err != nil {
		logger.Error("rollup failed", "err", err)
		return false
	}
	if err := s.marker.MarkRun(ctx, today); err != nil {
		logger.Warn("rollup: failed to persist last run", "date", today, "err", err)
	}
	return true
}
