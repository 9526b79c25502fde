package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrierlabs/harrier/internal/filter"
	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/models"
)

type fakeRuleSource struct {
	rules []*models.AlertRule
	err   error
}

func (s *fakeRuleSource) ListActiveRules(ctx context.Context) ([]*models.AlertRule, error) {
	return s.rules, s.err
}

type fakeCounter struct {
	countFn func(ctx context.Context, expr filter.Expr, since time.Time) (int, error)
	calls   []filter.Expr
}

func (c *fakeCounter) CountEnriched(ctx context.Context, expr filter.Expr, since time.Time) (int, error) {
	c.calls = append(c.calls, expr)
	if c.countFn != nil {
		return c.countFn(ctx, expr, since)
	}
	return 0, nil
}

type fakeAlertLog struct {
	appendFn   func(ctx context.Context, alert *models.AlertEvent) error
	hasSinceFn func(ctx context.Context, ruleID string, since time.Time) (bool, error)

	appended []*models.AlertEvent
	notified []string
}

func (l *fakeAlertLog) AppendAlertEvent(ctx context.Context, alert *models.AlertEvent) error {
	if l.appendFn != nil {
		if err := l.appendFn(ctx, alert); err != nil {
			return err
		}
	}
	if alert.ID == "" {
		alert.ID = "alert-1"
	}
	l.appended = append(l.appended, alert)
	return nil
}

func (l *fakeAlertLog) HasAlertEventSince(ctx context.Context, ruleID string, since time.Time) (bool, error) {
	if l.hasSinceFn != nil {
		return l.hasSinceFn(ctx, ruleID, since)
	}
	for _, a := range l.appended {
		if a.RuleID == ruleID && !a.TriggeredAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeAlertLog) MarkAlertNotified(ctx context.Context, alertID string) error {
	l.notified = append(l.notified, alertID)
	return nil
}

type fakeNotifier struct {
	ok    bool
	calls int
}

func (n *fakeNotifier) SendAlert(ctx context.Context, rule *models.AlertRule, alert *models.AlertEvent) bool {
	n.calls++
	return n.ok
}

func thresholdRule(id string, threshold, windowMinutes int) *models.AlertRule {
	return &models.AlertRule{
		ID:                id,
		Name:              "ssh brute force",
		Kind:              models.RuleThreshold,
		FilterQuery:       `event_type="ssh_login_failed"`,
		ThresholdCount:    threshold,
		TimeWindowMinutes: windowMinutes,
		Recipients:        []string{"soc@example.com"},
		IsActive:          true,
	}
}

func testEvaluator(rules *fakeRuleSource, counter *fakeCounter, alerts *fakeAlertLog, notifier Notifier) *Evaluator {
	return New(rules, counter, alerts, notifier, logging.New("error", "text"))
}

func TestEvaluateAll_ThresholdMetFiresOnce(t *testing.T) {
	rules := &fakeRuleSource{rules: []*models.AlertRule{thresholdRule("r1", 5, 5)}}
	counter := &fakeCounter{countFn: func(ctx context.Context, expr filter.Expr, since time.Time) (int, error) {
		return 5, nil
	}}
	alerts := &fakeAlertLog{}
	notifier := &fakeNotifier{ok: true}

	ev := testEvaluator(rules, counter, alerts, notifier)
	require.NoError(t, ev.EvaluateAll(context.Background()))

	require.Len(t, alerts.appended, 1)
	alert := alerts.appended[0]
	assert.Equal(t, "r1", alert.RuleID)
	assert.Equal(t, 5, alert.EventCount)
	assert.Equal(t, "ssh brute force", alert.Details["rule_name"])
	assert.Equal(t, 5, alert.Details["threshold"])
	assert.Equal(t, 5, alert.Details["actual_count"])
	assert.Equal(t, 5, alert.Details["time_window"])
	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, []string{"alert-1"}, alerts.notified)
	assert.True(t, alert.Notified)
}

func TestEvaluateAll_BelowThresholdNoAlert(t *testing.T) {
	rules := &fakeRuleSource{rules: []*models.AlertRule{thresholdRule("r1", 5, 5)}}
	counter := &fakeCounter{countFn: func(ctx context.Context, expr filter.Expr, since time.Time) (int, error) {
		return 4, nil
	}}
	alerts := &fakeAlertLog{}
	notifier := &fakeNotifier{ok: true}

	ev := testEvaluator(rules, counter, alerts, notifier)
	require.NoError(t, ev.EvaluateAll(context.Background()))

	assert.Empty(t, alerts.appended)
	assert.Zero(t, notifier.calls)
}

func TestEvaluateAll_DedupSuppressesSecondFiring(t *testing.T) {
	rules := &fakeRuleSource{rules: []*models.AlertRule{thresholdRule("r1", 5, 5)}}
	counter := &fakeCounter{countFn: func(ctx context.Context, expr filter.Expr, since time.Time) (int, error) {
		return 6, nil
	}}
	alerts := &fakeAlertLog{}
	notifier := &fakeNotifier{ok: true}

	ev := testEvaluator(rules, counter, alerts, notifier)
	require.NoError(t, ev.EvaluateAll(context.Background()))
	require.NoError(t, ev.EvaluateAll(context.Background()))

	assert.Len(t, alerts.appended, 1, "re-evaluation inside the window must not fire again")
	assert.Equal(t, 1, notifier.calls)
}

func TestEvaluateAll_NotificationFailureLeavesAlertRecorded(t *testing.T) {
	rules := &fakeRuleSource{rules: []*models.AlertRule{thresholdRule("r1", 5, 5)}}
	counter := &fakeCounter{countFn: func(ctx context.Context, expr filter.Expr, since time.Time) (int, error) {
		return 5, nil
	}}
	alerts := &fakeAlertLog{}
	notifier := &fakeNotifier{ok: false}

	ev := testEvaluator(rules, counter, alerts, notifier)
	require.NoError(t, ev.EvaluateAll(context.Background()))

	require.Len(t, alerts.appended, 1)
	assert.False(t, alerts.appended[0].Notified)
	assert.Empty(t, alerts.notified)
}

func TestEvaluateAll_RuleFailureDoesNotStopOthers(t *testing.T) {
	rules := &fakeRuleSource{rules: []*models.AlertRule{
		thresholdRule("r1", 5, 5),
		thresholdRule("r2", 3, 5),
	}}
	failFirst := &fakeCounter{}
	failFirst.countFn = func(ctx context.Context, expr filter.Expr, since time.Time) (int, error) {
		if len(failFirst.calls) == 1 {
			return 0, errors.New("storage down")
		}
		return 3, nil
	}

	alerts := &fakeAlertLog{}
	ev := testEvaluator(rules, failFirst, alerts, &fakeNotifier{ok: true})
	require.NoError(t, ev.EvaluateAll(context.Background()))

	require.Len(t, alerts.appended, 1)
	assert.Equal(t, "r2", alerts.appended[0].RuleID)
}

func TestEvaluateAll_PanicInOneRuleIsContained(t *testing.T) {
	rules := &fakeRuleSource{rules: []*models.AlertRule{
		thresholdRule("r1", 5, 5),
		thresholdRule("r2", 3, 5),
	}}

	counter := &fakeCounter{}
	counter.countFn = func(ctx context.Context, expr filter.Expr, since time.Time) (int, error) {
		if len(counter.calls) == 1 {
			panic("bad rule state")
		}
		return 3, nil
	}

	alerts := &fakeAlertLog{}
	ev := testEvaluator(rules, counter, alerts, &fakeNotifier{ok: true})
	require.NoError(t, ev.EvaluateAll(context.Background()))

	require.Len(t, alerts.appended, 1)
	assert.Equal(t, "r2", alerts.appended[0].RuleID)
}

func TestEvaluateAll_CorrelationRuleIsNoOp(t *testing.T) {
	rule := thresholdRule("r1", 1, 5)
	rule.Kind = models.RuleCorrelation

	rules := &fakeRuleSource{rules: []*models.AlertRule{rule}}
	counter := &fakeCounter{countFn: func(ctx context.Context, expr filter.Expr, since time.Time) (int, error) {
		return 100, nil
	}}
	alerts := &fakeAlertLog{}

	ev := testEvaluator(rules, counter, alerts, &fakeNotifier{ok: true})
	require.NoError(t, ev.EvaluateAll(context.Background()))

	assert.Empty(t, counter.calls, "correlation rules must not query events")
	assert.Empty(t, alerts.appended)
}

func TestEvaluateAll_FilterParsedFromRuleQuery(t *testing.T) {
	rules := &fakeRuleSource{rules: []*models.AlertRule{thresholdRule("r1", 5, 5)}}
	counter := &fakeCounter{}

	ev := testEvaluator(rules, counter, &fakeAlertLog{}, nil)
	require.NoError(t, ev.EvaluateAll(context.Background()))

	require.Len(t, counter.calls, 1)
	assert.Equal(t, filter.Equals{Field: "event_type", Value: "ssh_login_failed"}, counter.calls[0])
}

func TestEvaluateAll_UnrecognizedFilterCountsWholeWindow(t *testing.T) {
	rule := thresholdRule("r1", 5, 5)
	rule.FilterQuery = "count > 5 AND weird"

	rules := &fakeRuleSource{rules: []*models.AlertRule{rule}}
	counter := &fakeCounter{}

	ev := testEvaluator(rules, counter, &fakeAlertLog{}, nil)
	require.NoError(t, ev.EvaluateAll(context.Background()))

	require.Len(t, counter.calls, 1)
	assert.Equal(t, filter.MatchAll{}, counter.calls[0])
}

func TestEvaluateAll_ListRulesFailure(t *testing.T) {
	rules := &fakeRuleSource{err: errors.New("db down")}
	ev := testEvaluator(rules, &fakeCounter{}, &fakeAlertLog{}, nil)

	assert.Error(t, ev.EvaluateAll(context.Background()))
}

func TestEvaluateAll_WindowStartUsesClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rules := &fakeRuleSource{rules: []*models.AlertRule{thresholdRule("r1", 5, 10)}}

	var gotSince time.Time
	counter := &fakeCounter{countFn: func(ctx context.Context, expr filter.Expr, since time.Time) (int, error) {
		gotSince = since
		return 0, nil
	}}

	ev := New(rules, counter, &fakeAlertLog{}, nil, logging.New("error", "text"), WithClock(func() time.Time { return now }))
	require.NoError(t, ev.EvaluateAll(context.Background()))

	assert.Equal(t, now.Add(-10*time.Minute), gotSince)
}
