// Package extractor turns raw log lines into typed events. Extraction is
// tiered: well-formed JSON objects are taken apart key by key, then an
// ordered pattern list is tried, and anything left over is tagged unknown
// with the raw text preserved. Extract never fails.
package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/metrics"
	"github.com/harrierlabs/harrier/internal/models"
)

// Extractor applies the pattern tiers to raw records.
type Extractor struct {
	patterns []Pattern
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock overrides the wall clock, used by the timestamp fallback and the
// syslog year substitution.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New creates an Extractor over the given ordered pattern list.
func New(patterns []Pattern, logger *logging.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		patterns: patterns,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract converts a raw record into a ParsedEvent. It is total: every input
// yields an event with a non-empty type and a timestamp. A payload that
// defeats every tier comes back tagged unknown, and an unexpected fault
// during matching yields a parse_error event carrying the original text.
func (e *Extractor) Extract(rec *models.RawRecord) (event *models.ParsedEvent) {
	start := time.Now()
	defer func() {
		metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			e.logger.Error("panic during extraction", "raw_id", rec.ID, "panic", fmt.Sprint(r))
			metrics.ExtractionFallbacks.WithLabelValues(models.EventTypeParseError).Inc()
			event = &models.ParsedEvent{
				EventType: models.EventTypeParseError,
				Timestamp: e.now().UTC(),
				Fields: map[string]string{
					"error": fmt.Sprint(r),
					"raw":   rec.Payload.Raw,
				},
				Message: fmt.Sprintf("parse error: %v", r),
			}
		}
	}()

	raw := rec.Payload.Raw

	if fields, ok := decodeJSONObject(raw); ok {
		eventType := models.EventTypeJSON
		if t, ok := fields["event_type"]; ok && t != "" {
			eventType = t
		}
		return &models.ParsedEvent{
			EventType: eventType,
			Timestamp: e.resolveTimestamp(rec.ID, fields["timestamp"]),
			Fields:    fields,
			Message:   raw,
		}
	}

	for _, p := range e.patterns {
		match := p.re.FindStringSubmatch(raw)
		if match == nil {
			continue
		}
		fields := make(map[string]string)
		for i, name := range p.re.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			fields[name] = match[i]
		}
		return &models.ParsedEvent{
			EventType: p.EventType,
			Timestamp: e.resolveTimestamp(rec.ID, fields["timestamp"]),
			Fields:    fields,
			Message:   raw,
		}
	}

	metrics.ExtractionFallbacks.WithLabelValues(models.EventTypeUnknown).Inc()
	return &models.ParsedEvent{
		EventType: models.EventTypeUnknown,
		Timestamp: e.now().UTC(),
		Fields:    map[string]string{"raw": raw},
		Message:   raw,
	}
}

// resolveTimestamp parses the extracted timestamp field, falling back to the
// current time. The fallback is logged as a reduced-confidence signal, never
// an error.
func (e *Extractor) resolveTimestamp(rawID, value string) time.Time {
	if ts, ok := parseTimestamp(value, e.now); ok {
		return ts
	}
	if value != "" {
		e.logger.Warn("could not parse timestamp, using current time", "raw_id", rawID, "value", value)
	}
	return e.now().UTC()
}

// decodeJSONObject reports whether raw is a JSON object, and if so returns
// its top-level keys with values rendered as strings. Nested structures keep
// their compact JSON encoding.
func decodeJSONObject(raw string) (map[string]string, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}

	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		fields[k] = stringifyValue(v)
	}
	return fields, true
}

func stringifyValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(encoded)
	}
}
