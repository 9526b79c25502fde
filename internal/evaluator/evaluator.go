// Package evaluator runs alert rules against the enriched event store. Each
// evaluation cycle counts matching events per rule inside its time window and
// fires an alert when the threshold is met, unless the rule already fired
// inside that window.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/harrierlabs/harrier/internal/filter"
	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/metrics"
	"github.com/harrierlabs/harrier/internal/models"
)

// RuleSource lists the rules to evaluate.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]*models.AlertRule, error)
}

// EventCounter counts enriched events matching a filter inside a window.
type EventCounter interface {
	CountEnriched(ctx context.Context, expr filter.Expr, since time.Time) (int, error)
}

// AlertLog records fired alerts and answers dedup queries.
type AlertLog interface {
	AppendAlertEvent(ctx context.Context, alert *models.AlertEvent) error
	HasAlertEventSince(ctx context.Context, ruleID string, since time.Time) (bool, error)
	MarkAlertNotified(ctx context.Context, alertID string) error
}

// Notifier dispatches alert notifications. SendAlert reports success; it
// never returns an error because a notification failure must not fail the
// evaluation cycle.
type Notifier interface {
	SendAlert(ctx context.Context, rule *models.AlertRule, alert *models.AlertEvent) bool
}

// Evaluator evaluates all active rules on demand.
type Evaluator struct {
	rules    RuleSource
	events   EventCounter
	alerts   AlertLog
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// New creates an Evaluator. notifier may be nil, in which case fired alerts
// stay recorded with notified=false.
func New(rules RuleSource, events EventCounter, alerts AlertLog, notifier Notifier, logger *logging.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		rules:    rules,
		events:   events,
		alerts:   alerts,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateAll evaluates every active rule independently. A failure in one
// rule is logged and does not stop the others; the returned error covers
// only the inability to list rules at all.
func (e *Evaluator) EvaluateAll(ctx context.Context) error {
	rules, err := e.rules.ListActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("list active rules: %w", err)
	}

	for _, rule := range rules {
		e.evaluateRule(ctx, rule)
	}

	return nil
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule *models.AlertRule) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule evaluation panicked", "rule_id", rule.ID, "rule_name", rule.Name, "panic", r)
		}
	}()

	metrics.RulesEvaluated.Inc()

	switch rule.Kind {
	case models.RuleThreshold:
		if err := e.evaluateThreshold(ctx, rule); err != nil {
			e.logger.Error("rule evaluation failed", "rule_id", rule.ID, "rule_name", rule.Name, "error", err)
		}
	case models.RuleCorrelation:
		// Declared but not evaluated.
		e.logger.Debug("skipping correlation rule", "rule_id", rule.ID, "rule_name", rule.Name)
	default:
		e.logger.Warn("unknown rule kind", "rule_id", rule.ID, "kind", rule.Kind)
	}
}

func (e *Evaluator) evaluateThreshold(ctx context.Context, rule *models.AlertRule) error {
	windowStart := e.now().UTC().Add(-rule.Window())
	expr := filter.Parse(rule.FilterQuery)

	count, err := e.events.CountEnriched(ctx, expr, windowStart)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}

	if count < rule.ThresholdCount {
		return nil
	}

	fired, err := e.alerts.HasAlertEventSince(ctx, rule.ID, windowStart)
	if err != nil {
		return fmt.Errorf("check existing alerts: %w", err)
	}
	if fired {
		metrics.AlertsSuppressed.Inc()
		e.logger.Debug("alert suppressed, already fired in window", "rule_id", rule.ID, "rule_name", rule.Name)
		return nil
	}

	alert := &models.AlertEvent{
		RuleID:      rule.ID,
		TriggeredAt: e.now().UTC(),
		EventCount:  count,
		Details: map[string]any{
			"rule_name":    rule.Name,
			"threshold":    rule.ThresholdCount,
			"actual_count": count,
			"time_window":  rule.TimeWindowMinutes,
		},
	}

	if err := e.alerts.AppendAlertEvent(ctx, alert); err != nil {
		return fmt.Errorf("record alert: %w", err)
	}

	metrics.AlertsFired.Inc()
	e.logger.Info("alert fired", "rule_id", rule.ID, "rule_name", rule.Name, "count", count, "threshold", rule.ThresholdCount)

	if e.notifier == nil {
		return nil
	}
	if !e.notifier.SendAlert(ctx, rule, alert) {
		// The alert stays recorded with notified=false.
		e.logger.Warn("alert notification failed", "alert_id", alert.ID, "rule_id", rule.ID)
		return nil
	}

	if err := e.alerts.MarkAlertNotified(ctx, alert.ID); err != nil {
		return fmt.Errorf("mark alert notified: %w", err)
	}
	alert.Notified = true

	return nil
}
