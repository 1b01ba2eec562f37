// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job is a named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs background jobs on gocron. Jobs never overlap with themselves.
type Scheduler struct {
	sched gocron.Scheduler
	ctx   context.Context
}

func NewScheduler(ctx context.Context) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{sched: sched, ctx: ctx}, nil
}

// Add registers job; it first runs immediately, then every job.Interval.
func (s *Scheduler) Add(job Job) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(job.Interval),
		gocron.NewTask(func() {
			if err := job.Run(s.ctx); err != nil {
				log.Printf("[SCHED] ❌ %s failed: %v", job.Name, err)
			}
		}),
		gocron.WithName(job.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	log.Printf("[SCHED] ⏱️  %s every %s", job.Name, job.Interval)
	return nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

// Shutdown waits for running jobs to finish.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
