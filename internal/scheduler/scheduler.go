// Package scheduler drives the evaluator on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/harrierlabs/harrier/internal/logging"
)

// Task is one unit of periodic work.
type Task interface {
	EvaluateAll(ctx context.Context) error
}

// Scheduler runs a task on a fixed interval until stopped. The first run
// happens immediately on Start.
type Scheduler struct {
	task     Task
	interval time.Duration
	logger   *logging.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler for the task.
func New(task Task, interval time.Duration, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		task:     task,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start launches the evaluation loop in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info("evaluation scheduler started", "interval", s.interval)
}

// Stop signals the loop to exit and waits for the in-flight run to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.logger.Info("evaluation scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.evaluate(ctx)

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evaluate(ctx)
		}
	}
}

func (s *Scheduler) evaluate(ctx context.Context) {
	if err := s.task.EvaluateAll(ctx); err != nil {
		s.logger.Error("evaluation cycle failed", "error", err)
	}
}
