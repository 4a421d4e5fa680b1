package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is a scheduled unit of work. Jobs receive the scheduler's context and
// are expected to handle their own errors; the scheduler only triggers them.
type Job func(ctx context.Context)

type entry struct {
	name    string
	hour    int
	minute  int
	catchUp bool
	job     Job
}

// Scheduler fires registered jobs once per day at a fixed wall-clock time in
// the configured timezone. It is the only component that reads the clock;
// the scrape and dump entry points just get invoked.
type Scheduler struct {
	loc     *time.Location
	entries []entry
	logger  *slog.Logger
}

func New(timezone string, logger *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}

	return &Scheduler{
		loc:    loc,
		logger: logger.With("component", "scheduler"),
	}, nil
}

// AddDaily registers job to run every day at "HH:MM". With catchUp set the
// job also fires once at startup when today's slot has already passed.
func (s *Scheduler) AddDaily(name, at string, catchUp bool, job Job) error {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return fmt.Errorf("invalid schedule time %q: %w", at, err)
	}

	s.entries = append(s.entries, entry{
		name:    name,
		hour:    t.Hour(),
		minute:  t.Minute(),
		catchUp: catchUp,
		job:     job,
	})

	return nil
}

// Run blocks until the context is cancelled, firing jobs at their times.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, e := range s.entries {
		s.logger.Info("scheduled daily job",
			"job", e.name,
			"at", fmt.Sprintf("%02d:%02d", e.hour, e.minute),
			"timezone", s.loc.String())

		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			s.runEntry(ctx, e)
		}(e)
	}

	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) runEntry(ctx context.Context, e entry) {
	if e.catchUp {
		now := time.Now().In(s.loc)
		slot := time.Date(now.Year(), now.Month(), now.Day(), e.hour, e.minute, 0, 0, s.loc)
		if now.After(slot) {
			s.logger.Info("today's slot already passed, running job immediately", "job", e.name)
			e.job(ctx)
		}
	}

	for {
		now := time.Now().In(s.loc)
		next := NextOccurrence(now, e.hour, e.minute)

		s.logger.Info("next run scheduled", "job", e.name, "at", next)

		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			s.logger.Info("triggering job", "job", e.name)
			e.job(ctx)
		}
	}
}

// NextOccurrence returns the next time hour:minute comes around, strictly
// after now.
func NextOccurrence(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
