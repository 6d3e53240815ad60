package analysis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Refresher on a cron spec with a seconds field.
type Scheduler struct {
	Cron      *cron.Cron
	Refresher *Refresher
	Timeout   time.Duration
	Ctx       context.Context
}

func NewScheduler(ctx context.Context, r *Refresher) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Refresher: r,
		Timeout:   10 * time.Minute,
		Ctx:       ctx,
	}
}

// Register adds the refresh task under spec, e.g. "0 2 0 * * *".
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.RunNow); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Printf("analysis scheduler started entries=%d", len(s.Cron.Entries()))
}

// Stop stops the cron and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Printf("analysis scheduler stopped")
}

// RunNow runs one refresh synchronously.
func (s *Scheduler) RunNow() {
	if s.Ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.Ctx, s.Timeout)
	defer cancel()
	if err := s.Refresher.Refresh(ctx); err != nil {
		log.Printf("analysis refresh failed: %v", err)
	}
}

// Next returns the next scheduled run, or the zero time when nothing is registered.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.Cron.Entries() {
		if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}
