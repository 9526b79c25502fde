// Package notification formats and dispatches alert emails. Dispatch reports
// success or failure as a boolean; a failed notification never propagates an
// error into the evaluation cycle.
package notification

import (
	"encoding/base64"
	"fmt"
	"mime"
	"sort"
	"strings"
	"time"

	"github.com/harrierlabs/harrier/internal/models"
)

// Attachment is a file attached to an outgoing message.
type Attachment struct {
	Filename string
	Content  []byte
}

// Message is an email ready for encoding.
type Message struct {
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// BuildAlertMessage formats the notification for a fired alert.
func BuildAlertMessage(rule *models.AlertRule, alert *models.AlertEvent) Message {
	subject := fmt.Sprintf("Security Alert: %s", rule.Name)
	triggered := alert.TriggeredAt.UTC().Format(time.RFC1123Z)

	text := fmt.Sprintf(`SECURITY ALERT

Alert Rule: %s
Description: %s

Event Details:
- Threshold: %d events in %d minutes
- Actual Count: %d events
- Triggered At: %s

Please investigate this security event immediately.

---
This is an automated message.`,
		rule.Name, rule.Description,
		rule.ThresholdCount, rule.TimeWindowMinutes,
		alert.EventCount, triggered,
	)

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<style>
body { font-family: Arial, sans-serif; margin: 20px; }
.alert-box { background-color: #f8d7da; border: 1px solid #f5c6cb; color: #721c24; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
.details { background-color: #f8f9fa; padding: 15px; border-radius: 5px; }
.metric { margin: 5px 0; }
.footer { margin-top: 20px; font-size: 12px; color: #666; }
</style>
</head>
<body>
<div class="alert-box"><h2>SECURITY ALERT</h2><h3>%s</h3></div>
<div class="details">
<h4>Alert Details</h4>
<div class="metric"><strong>Description:</strong> %s</div>
<div class="metric"><strong>Threshold:</strong> %d events in %d minutes</div>
<div class="metric"><strong>Actual Count:</strong> %d events</div>
<div class="metric"><strong>Triggered At:</strong> %s</div>
</div>
<p><strong>Action Required:</strong> Please investigate this security event immediately.</p>
<div class="footer">This is an automated message.</div>
</body>
</html>`,
		htmlEscape(rule.Name), htmlEscape(rule.Description),
		rule.ThresholdCount, rule.TimeWindowMinutes,
		alert.EventCount, triggered,
	)

	return Message{Subject: subject, TextBody: text, HTMLBody: html}
}

// BuildHealthMessage formats a component health notification. The subject
// carries the severity marker so it is visible before opening the message.
func BuildHealthMessage(report *models.HealthReport) Message {
	var subject string
	switch report.Status {
	case models.HealthStatusCritical:
		subject = fmt.Sprintf("[CRITICAL] %s Health Alert", report.Component)
	case models.HealthStatusWarning:
		subject = fmt.Sprintf("[WARNING] %s Health Alert", report.Component)
	default:
		subject = fmt.Sprintf("[INFO] %s Health Update", report.Component)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SYSTEM HEALTH NOTIFICATION\n\n")
	fmt.Fprintf(&b, "Component: %s\n", report.Component)
	fmt.Fprintf(&b, "Status: %s\n", strings.ToUpper(string(report.Status)))
	fmt.Fprintf(&b, "Timestamp: %s\n\nMetrics:\n", report.Timestamp.UTC().Format(time.RFC1123Z))

	keys := make([]string, 0, len(report.Metrics))
	for k := range report.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %v\n", k, report.Metrics[k])
	}

	b.WriteString("\n---\nThis is an automated message.\n")

	return Message{Subject: subject, TextBody: b.String()}
}

// Encode serializes the message as a MIME email. A message with both text
// and HTML bodies becomes multipart/alternative; attachments wrap the whole
// thing in multipart/mixed.
func (m Message) Encode(from string, recipients []string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")

	const altBoundary = "harrier-alt"
	const mixedBoundary = "harrier-mixed"

	writeBodies := func(w *strings.Builder) {
		if m.HTMLBody == "" {
			w.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
			w.WriteString(m.TextBody)
			w.WriteString("\r\n")
			return
		}
		fmt.Fprintf(w, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altBoundary)
		fmt.Fprintf(w, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", altBoundary, m.TextBody)
		fmt.Fprintf(w, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", altBoundary, m.HTMLBody)
		fmt.Fprintf(w, "--%s--\r\n", altBoundary)
	}

	if len(m.Attachments) == 0 {
		writeBodies(&b)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mixedBoundary)
	fmt.Fprintf(&b, "--%s\r\n", mixedBoundary)
	writeBodies(&b)

	for _, att := range m.Attachments {
		fmt.Fprintf(&b, "--%s\r\n", mixedBoundary)
		b.WriteString("Content-Type: application/octet-stream\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", att.Filename)
		b.WriteString(wrapBase64(att.Content))
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", mixedBoundary)

	return []byte(b.String())
}

// wrapBase64 encodes content with 76-character lines per RFC 2045.
func wrapBase64(content []byte) string {
	encoded := base64.StdEncoding.EncodeToString(content)
	var b strings.Builder
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded)
	return b.String()
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func htmlEscape(s string) string {
	return htmlEscaper.Replace(s)
}
