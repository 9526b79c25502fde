package notification

import (
	"context"

	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/metrics"
	"github.com/harrierlabs/harrier/internal/models"
)

// Transport delivers an encoded message to a set of recipients.
type Transport interface {
	Send(ctx context.Context, recipients []string, msg []byte) error
}

// Dispatcher formats and sends notifications. All Send methods report
// success as a boolean and swallow the underlying error after logging it.
type Dispatcher struct {
	transport Transport
	from      string
	logger    *logging.Logger
}

// NewDispatcher creates a dispatcher sending from the given address.
func NewDispatcher(transport Transport, from string, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{transport: transport, from: from, logger: logger}
}

// SendAlert notifies the rule's recipients about a fired alert.
func (d *Dispatcher) SendAlert(ctx context.Context, rule *models.AlertRule, alert *models.AlertEvent) bool {
	if len(rule.Recipients) == 0 {
		d.logger.Warn("alert rule has no recipients", "rule_id", rule.ID, "rule_name", rule.Name)
		return false
	}

	msg := BuildAlertMessage(rule, alert)
	return d.send(ctx, rule.Recipients, msg, "alert", alert.ID)
}

// SendHealth notifies recipients about a component health report.
func (d *Dispatcher) SendHealth(ctx context.Context, recipients []string, report *models.HealthReport) bool {
	if len(recipients) == 0 {
		return false
	}

	msg := BuildHealthMessage(report)
	return d.send(ctx, recipients, msg, "health", report.Component)
}

func (d *Dispatcher) send(ctx context.Context, recipients []string, msg Message, kind, ref string) bool {
	if err := d.transport.Send(ctx, recipients, msg.Encode(d.from, recipients)); err != nil {
		metrics.NotificationErrors.Inc()
		d.logger.Error("notification dispatch failed", "kind", kind, "ref", ref, "recipients", len(recipients), "error", err)
		return false
	}

	metrics.NotificationsSent.Inc()
	d.logger.Info("notification sent", "kind", kind, "ref", ref, "recipients", len(recipients))
	return true
}
