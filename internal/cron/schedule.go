package cron

import (
	"context"
	"time"
)

// Job is one sweep run by the cron worker. Run returns what the sweep scanned or changed,
// keyed by item name, even when it also returns an error.
type Job interface {
	Name() string
	Run(ctx context.Context) (Tally, error)
}

// Tally counts rows touched by a job run.
type Tally map[string]int64

type scheduled struct {
	job   Job
	every time.Duration
	next  time.Time
}

// Schedule gives each job its own cadence on top of the worker tick. A job added with a
// zero cadence runs on every tick.
type Schedule struct {
	entries []*scheduled
}

func NewSchedule() *Schedule {
	return &Schedule{}
}

// Add registers job. Nil jobs are ignored.
func (s *Schedule) Add(job Job, every time.Duration) *Schedule {
	if job != nil {
		s.entries = append(s.entries, &scheduled{job: job, every: every})
	}
	return s
}

// Due returns the jobs whose next run is at or before now, in registration order, and
// moves each of them to its following slot.
func (s *Schedule) Due(now time.Time) []Job {
	var due []Job
	for _, e := range s.entries {
		if now.Before(e.next) {
			continue
		}
		due = append(due, e.job)
		e.next = now.Add(e.every)
	}
	return due
}

// Names lists the registered jobs for startup logging.
func (s *Schedule) Names() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.job.Name())
	}
	return names
}
