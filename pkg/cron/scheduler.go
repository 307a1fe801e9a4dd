// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the expiry sweep once an hour.
const DefaultSchedule = "@hourly"

// SessionExpirer cancels import sessions idle for longer than ttl.
type SessionExpirer interface {
	ExpireStaleSessions(ctx context.Context, ttl time.Duration) (int64, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	expirer  SessionExpirer
	ttl      time.Duration
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a new job scheduler. An empty schedule selects
// DefaultSchedule.
func NewScheduler(expirer SessionExpirer, ttl time.Duration, schedule string, logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	if schedule == "" {
		schedule = DefaultSchedule
	}

	return &Scheduler{
		cron:     c,
		expirer:  expirer,
		ttl:      ttl,
		schedule: schedule,
		timeout:  5 * time.Minute,
		logger:   logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.expireStaleSessions() }); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("expiry_schedule", s.schedule),
		slog.Duration("session_ttl", s.ttl),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs. The returned context is done
// once running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow runs the expiry sweep synchronously and returns the number of
// sessions cancelled.
func (s *Scheduler) RunNow() int64 {
	return s.expireStaleSessions()
}

func (s *Scheduler) expireStaleSessions() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.expirer.ExpireStaleSessions(ctx, s.ttl)
	if err != nil {
		s.logger.Error("import session expiry failed", slog.Any("error", err))
		return 0
	}

	s.logger.Info("import session expiry completed",
		slog.Int64("sessions_expired", n),
		slog.Duration("took", time.Since(start)),
	)
	return n
}
