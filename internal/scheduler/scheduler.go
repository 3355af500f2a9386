package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Job is one full pipeline pass: scan, calendar sync, notification gate.
type Job func(ctx context.Context)

// Scheduler fires the job at fixed local times each day. Runs are strictly
// sequential: the next timer is armed only after the job returns, so two
// scans can never overlap. The job itself performs no locking and relies on
// this single-flight contract.
type Scheduler struct {
	times []timeOfDay
	job   Job
}

type timeOfDay struct {
	hour   int
	minute int
}

// New creates a scheduler firing at each "HH:MM" time of day.
func New(times []string, job Job) (*Scheduler, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("no schedule times configured")
	}

	parsed := make([]timeOfDay, len(times))
	for i, t := range times {
		var td timeOfDay
		if _, err := fmt.Sscanf(t, "%d:%d", &td.hour, &td.minute); err != nil {
			return nil, fmt.Errorf("parse schedule time %q: %w", t, err)
		}
		if td.hour < 0 || td.hour > 23 || td.minute < 0 || td.minute > 59 {
			return nil, fmt.Errorf("schedule time %q out of range", t)
		}
		parsed[i] = td
	}

	sort.Slice(parsed, func(i, j int) bool {
		if parsed[i].hour != parsed[j].hour {
			return parsed[i].hour < parsed[j].hour
		}
		return parsed[i].minute < parsed[j].minute
	})

	return &Scheduler{times: parsed, job: job}, nil
}

// Run blocks until ctx is cancelled, firing the job at each scheduled time.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.NextRun(time.Now())
		slog.Info("next scheduled run", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.job(ctx)
		}
	}
}

// NextRun returns the first scheduled occurrence strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	for _, td := range s.times {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), td.hour, td.minute, 0, 0, now.Location())
		if candidate.After(now) {
			return candidate
		}
	}
	// All of today's slots have passed; first slot tomorrow.
	first := s.times[0]
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), first.hour, first.minute, 0, 0, now.Location())
}
