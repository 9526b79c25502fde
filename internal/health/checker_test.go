package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/models"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(ctx context.Context) error { return p.err }

type fakeQueue struct {
	connected bool
}

func (q *fakeQueue) IsConnected() bool { return q.connected }

type fakeNotifier struct {
	reports    []*models.HealthReport
	recipients [][]string
}

func (n *fakeNotifier) SendHealth(ctx context.Context, recipients []string, report *models.HealthReport) bool {
	n.reports = append(n.reports, report)
	n.recipients = append(n.recipients, recipients)
	return true
}

func testChecker(db Pinger, queue Queue, notifier Notifier, opts ...Option) *Checker {
	return New(db, queue, notifier, []string{"admin@example.com"}, time.Minute, logging.New("error", "text"), opts...)
}

func TestRunOnce_HealthyStaysQuiet(t *testing.T) {
	notifier := &fakeNotifier{}
	c := testChecker(&fakePinger{}, &fakeQueue{connected: true}, notifier)

	report := c.RunOnce(context.Background())

	assert.Equal(t, models.HealthStatusHealthy, report.Status)
	assert.Equal(t, "ok", report.Metrics["database"])
	assert.Equal(t, "connected", report.Metrics["queue"])
	assert.Empty(t, notifier.reports, "healthy checks must not notify")
}

func TestRunOnce_DatabaseDownIsCritical(t *testing.T) {
	fixedNow := time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)
	notifier := &fakeNotifier{}
	c := testChecker(&fakePinger{err: errors.New("connection refused")}, nil, notifier,
		WithClock(func() time.Time { return fixedNow }))

	report := c.RunOnce(context.Background())

	assert.Equal(t, models.HealthStatusCritical, report.Status)
	assert.Equal(t, "unreachable: connection refused", report.Metrics["database"])
	assert.Equal(t, fixedNow, report.Timestamp)

	require.Len(t, notifier.reports, 1)
	assert.Equal(t, []string{"admin@example.com"}, notifier.recipients[0])
	assert.Equal(t, "pipeline", notifier.reports[0].Component)
}

func TestRunOnce_QueueDisconnectedIsWarning(t *testing.T) {
	notifier := &fakeNotifier{}
	c := testChecker(&fakePinger{}, &fakeQueue{connected: false}, notifier)

	report := c.RunOnce(context.Background())

	assert.Equal(t, models.HealthStatusWarning, report.Status)
	assert.Equal(t, "disconnected", report.Metrics["queue"])
	require.Len(t, notifier.reports, 1)
}

func TestRunOnce_DatabaseDownOutranksQueue(t *testing.T) {
	c := testChecker(&fakePinger{err: errors.New("down")}, &fakeQueue{connected: false}, &fakeNotifier{})

	report := c.RunOnce(context.Background())
	assert.Equal(t, models.HealthStatusCritical, report.Status)
}

func TestCheck_NilQueueSkipsQueueProbe(t *testing.T) {
	c := testChecker(&fakePinger{}, nil, &fakeNotifier{})

	report := c.Check(context.Background())
	assert.Equal(t, models.HealthStatusHealthy, report.Status)
	assert.NotContains(t, report.Metrics, "queue")
}

func TestRunOnce_NoRecipientsSkipsNotify(t *testing.T) {
	notifier := &fakeNotifier{}
	c := New(&fakePinger{err: errors.New("down")}, nil, notifier, nil, time.Minute, logging.New("error", "text"))

	c.RunOnce(context.Background())
	assert.Empty(t, notifier.reports)
}

func TestStartStop(t *testing.T) {
	notifier := &fakeNotifier{}
	c := New(&fakePinger{err: errors.New("down")}, nil, notifier, []string{"admin@example.com"},
		15*time.Millisecond, logging.New("error", "text"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	c.Stop()

	assert.NotEmpty(t, notifier.reports, "loop should have run at least one check")

	c.Stop() // idempotent
}
