package fakesales

import (
	"context"
	"sync"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/logger"
)

// Scheduler runs a job once on Start and then on every tick until Stop.
type Scheduler struct {
	interval time.Duration
	job      func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(interval time.Duration, job func(ctx context.Context)) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{interval: interval, job: job}
}

// Start launches the loop. It returns false if the loop is already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	logger.Info("fake sales scheduler started", "interval", s.interval)
	return true
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.job(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.job(ctx)
		}
	}
}

// Stop cancels the loop and waits for a running job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
	logger.Info("fake sales scheduler stopped")
}

func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
