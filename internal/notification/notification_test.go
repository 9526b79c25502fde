package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/models"
)

type fakeTransport struct {
	sendFn     func(ctx context.Context, recipients []string, msg []byte) error
	recipients []string
	messages   [][]byte
}

func (t *fakeTransport) Send(ctx context.Context, recipients []string, msg []byte) error {
	t.recipients = append(t.recipients, recipients...)
	t.messages = append(t.messages, msg)
	if t.sendFn != nil {
		return t.sendFn(ctx, recipients, msg)
	}
	return nil
}

func testRule() *models.AlertRule {
	return &models.AlertRule{
		ID:                "r1",
		Name:              "ssh brute force",
		Description:       "Repeated SSH login failures",
		Kind:              models.RuleThreshold,
		ThresholdCount:    5,
		TimeWindowMinutes: 5,
		Recipients:        []string{"soc@example.com", "oncall@example.com"},
	}
}

func testAlert() *models.AlertEvent {
	return &models.AlertEvent{
		ID:          "a1",
		RuleID:      "r1",
		TriggeredAt: time.Date(2026, 1, 5, 10, 30, 0, 0, time.UTC),
		EventCount:  7,
	}
}

func TestBuildAlertMessage(t *testing.T) {
	msg := BuildAlertMessage(testRule(), testAlert())

	assert.Equal(t, "Security Alert: ssh brute force", msg.Subject)
	assert.Contains(t, msg.TextBody, "Alert Rule: ssh brute force")
	assert.Contains(t, msg.TextBody, "Threshold: 5 events in 5 minutes")
	assert.Contains(t, msg.TextBody, "Actual Count: 7 events")
	assert.Contains(t, msg.HTMLBody, "<h3>ssh brute force</h3>")
	assert.Contains(t, msg.HTMLBody, "7 events")
}

func TestBuildAlertMessage_EscapesHTML(t *testing.T) {
	rule := testRule()
	rule.Name = `<script>alert("x")</script>`

	msg := BuildAlertMessage(rule, testAlert())
	assert.NotContains(t, msg.HTMLBody, "<script>")
	assert.Contains(t, msg.HTMLBody, "&lt;script&gt;")
}

func TestBuildHealthMessage_SeverityMarkers(t *testing.T) {
	cases := []struct {
		status models.HealthStatus
		marker string
	}{
		{models.HealthStatusCritical, "[CRITICAL]"},
		{models.HealthStatusWarning, "[WARNING]"},
		{models.HealthStatusHealthy, "[INFO]"},
	}

	for _, tc := range cases {
		report := &models.HealthReport{
			Component: "ingest",
			Status:    tc.status,
			Metrics:   map[string]any{"queue_depth": 42},
			Timestamp: time.Now().UTC(),
		}
		msg := BuildHealthMessage(report)
		assert.Contains(t, msg.Subject, tc.marker)
		assert.Contains(t, msg.TextBody, "queue_depth: 42")
	}
}

func TestEncode_MultipartAlternative(t *testing.T) {
	msg := BuildAlertMessage(testRule(), testAlert())
	raw := string(msg.Encode("alerts@harrier.local", []string{"soc@example.com"}))

	assert.Contains(t, raw, "From: alerts@harrier.local")
	assert.Contains(t, raw, "To: soc@example.com")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "text/plain")
	assert.Contains(t, raw, "text/html")
}

func TestEncode_PlainTextOnly(t *testing.T) {
	msg := Message{Subject: "hello", TextBody: "body"}
	raw := string(msg.Encode("a@b.c", []string{"d@e.f"}))

	assert.Contains(t, raw, "Content-Type: text/plain")
	assert.NotContains(t, raw, "multipart")
}

func TestEncode_Attachments(t *testing.T) {
	msg := Message{
		Subject:  "with file",
		TextBody: "see attached",
		Attachments: []Attachment{
			{Filename: "report.csv", Content: []byte(strings.Repeat("a,b,c\n", 50))},
		},
	}
	raw := string(msg.Encode("a@b.c", []string{"d@e.f"}))

	assert.Contains(t, raw, "multipart/mixed")
	assert.Contains(t, raw, `filename="report.csv"`)
	assert.Contains(t, raw, "base64")
}

func TestDispatcher_SendAlertSuccess(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(transport, "alerts@harrier.local", logging.New("error", "text"))

	ok := d.SendAlert(context.Background(), testRule(), testAlert())

	assert.True(t, ok)
	assert.Equal(t, []string{"soc@example.com", "oncall@example.com"}, transport.recipients)
	require.Len(t, transport.messages, 1)
	assert.Contains(t, string(transport.messages[0]), "Security Alert")
}

func TestDispatcher_SendAlertFailureReturnsFalse(t *testing.T) {
	transport := &fakeTransport{
		sendFn: func(ctx context.Context, recipients []string, msg []byte) error {
			return errors.New("connection refused")
		},
	}
	d := NewDispatcher(transport, "alerts@harrier.local", logging.New("error", "text"))

	assert.False(t, d.SendAlert(context.Background(), testRule(), testAlert()))
}

func TestDispatcher_NoRecipients(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(transport, "alerts@harrier.local", logging.New("error", "text"))

	rule := testRule()
	rule.Recipients = nil

	assert.False(t, d.SendAlert(context.Background(), rule, testAlert()))
	assert.Empty(t, transport.messages)
}

func TestDispatcher_SendHealth(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(transport, "alerts@harrier.local", logging.New("error", "text"))

	report := &models.HealthReport{
		Component: "evaluator",
		Status:    models.HealthStatusCritical,
		Timestamp: time.Now().UTC(),
	}

	assert.True(t, d.SendHealth(context.Background(), []string{"ops@example.com"}, report))
	require.Len(t, transport.messages, 1)
	assert.Contains(t, string(transport.messages[0]), "CRITICAL")
}
