package roster

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time after now. Returns 0 on parse error.
func nextCronDuration(expr string, now time.Time) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Scheduler runs a job on a cron schedule until its context is cancelled.
type Scheduler struct {
	expr string
	job  func(ctx context.Context) error
	now  func() time.Time
}

// NewScheduler validates expr and returns a Scheduler that runs job at each
// fire time.
func NewScheduler(expr string, job func(ctx context.Context) error) (*Scheduler, error) {
	if _, err := cronParser.Parse(expr); err != nil {
		return nil, fmt.Errorf("roster: schedule %q: %w", expr, err)
	}
	return &Scheduler{expr: expr, job: job, now: time.Now}, nil
}

// Next returns the wait until the next fire time.
func (s *Scheduler) Next() time.Duration {
	return nextCronDuration(s.expr, s.now())
}

// Run blocks until ctx is done, running the job at each fire time. Job
// errors are logged and do not stop the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(s.Next())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if err := s.job(ctx); err != nil {
				log.Error().Err(err).Str("schedule", s.expr).Msg("scheduled roster sync failed")
			}
			timer.Reset(s.Next())
		}
	}
}
