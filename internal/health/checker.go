// Package health runs periodic pipeline self-checks and notifies operators
// when a backend degrades.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/models"
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Queue reports work-queue connectivity.
type Queue interface {
	IsConnected() bool
}

// Notifier delivers a health report to operators.
type Notifier interface {
	SendHealth(ctx context.Context, recipients []string, report *models.HealthReport) bool
}

// Checker probes the pipeline's backends on a fixed interval. A degraded
// check produces a report sent to the configured recipients; healthy passes
// stay quiet.
type Checker struct {
	db         Pinger
	queue      Queue
	notifier   Notifier
	recipients []string
	interval   time.Duration
	logger     *logging.Logger
	now        func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Checker.
type Option func(*Checker)

// WithClock overrides the wall clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// New creates a Checker. queue may be nil when the pipeline runs without a
// work queue; the queue check is then skipped.
func New(db Pinger, queue Queue, notifier Notifier, recipients []string, interval time.Duration, logger *logging.Logger, opts ...Option) *Checker {
	c := &Checker{
		db:         db,
		queue:      queue,
		notifier:   notifier,
		recipients: recipients,
		interval:   interval,
		logger:     logger,
		now:        time.Now,
		stopChan:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check probes each backend and assembles a report. Never fails: probe
// errors lower the status and land in the report metrics.
func (c *Checker) Check(ctx context.Context) *models.HealthReport {
	status := models.HealthStatusHealthy
	checks := map[string]any{}

	if err := c.db.Ping(ctx); err != nil {
		status = models.HealthStatusCritical
		checks["database"] = "unreachable: " + err.Error()
	} else {
		checks["database"] = "ok"
	}

	if c.queue != nil {
		if c.queue.IsConnected() {
			checks["queue"] = "connected"
		} else {
			checks["queue"] = "disconnected"
			if status == models.HealthStatusHealthy {
				status = models.HealthStatusWarning
			}
		}
	}

	return &models.HealthReport{
		Component: "pipeline",
		Status:    status,
		Metrics:   checks,
		Timestamp: c.now().UTC(),
	}
}

// RunOnce performs a single check and notifies on degradation.
func (c *Checker) RunOnce(ctx context.Context) *models.HealthReport {
	report := c.Check(ctx)

	if report.Status == models.HealthStatusHealthy {
		c.logger.Debug("health check passed")
		return report
	}

	c.logger.Warn("health check degraded", "status", string(report.Status), "checks", report.Metrics)
	if c.notifier != nil && len(c.recipients) > 0 {
		c.notifier.SendHealth(ctx, c.recipients, report)
	}
	return report
}

// Start launches the periodic check loop.
func (c *Checker) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.logger.Info("health checker started", "interval", c.interval.String())
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stopChan:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RunOnce(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight check to finish.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()
	c.logger.Info("health checker stopped")
}
