// Package models defines the entities that flow through the event pipeline:
// raw records in, parsed and enriched events through, alert rules and alert
// events out.
package models

import "time"

// Event type tags produced by the extractor when no specific pattern applies.
const (
	EventTypeUnknown    = "unknown"
	EventTypeJSON       = "json_event"
	EventTypeParseError = "parse_error"
)

// RawPayload is the opaque payload delivered by a collection agent.
type RawPayload struct {
	Timestamp string            `json:"timestamp,omitempty"`
	Raw       string            `json:"raw"`
	AgentInfo map[string]string `json:"agent_info,omitempty"`
}

// RawRecord is one unparsed log line plus provenance. It is immutable once
// persisted; reprocessing re-derives downstream events rather than editing it.
type RawRecord struct {
	ID         string     `json:"id"`
	ReceivedAt time.Time  `json:"received_at"`
	Source     string     `json:"source"`
	Host       string     `json:"host,omitempty"`
	Payload    RawPayload `json:"payload"`
}

// ParsedEvent is the extractor's structured interpretation of a RawRecord.
// It exists only between extraction and enrichment unless the caller persists
// the derived EnrichedEvent.
type ParsedEvent struct {
	EventType string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields"`
	Message   string            `json:"message"`
}

// GeoInfo holds geolocation data for a single IP address. Missing database
// fields default to "Unknown" rather than failing the record.
type GeoInfo struct {
	Country         string   `json:"country"`
	CountryCode     string   `json:"country_code"`
	City            string   `json:"city"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	AccuracyRadius  *uint16  `json:"accuracy_radius"`
	Timezone        string   `json:"timezone,omitempty"`
	Subdivision     string   `json:"subdivision,omitempty"`
	SubdivisionCode string   `json:"subdivision_code,omitempty"`
	PostalCode      string   `json:"postal_code,omitempty"`
	ASN             uint     `json:"asn,omitempty"`
	ASNOrganization string   `json:"asn_organization,omitempty"`
	IsPrivate       bool     `json:"is_private"`
}

// IPContext is the enrichment assembled for one IP-bearing field.
type IPContext struct {
	GeoIP    *GeoInfo `json:"geoip,omitempty"`
	Hostname string   `json:"hostname,omitempty"`
}

// Enrichment is the bag of contextual data attached to an event. IPs is keyed
// by the field name the address was found in; only syntactically valid IP
// values ever appear as keys.
type Enrichment struct {
	IPs        map[string]IPContext `json:"ips,omitempty"`
	ThreatTags []string             `json:"threat_intel,omitempty"`
}

// EnrichedEvent is the persisted, enrichment-augmented event derived from a
// ParsedEvent. Append-only: created once, never mutated, removed only by
// retention sweeps.
type EnrichedEvent struct {
	ID         string            `json:"id"`
	RawID      string            `json:"raw_id"`
	Timestamp  time.Time         `json:"ts"`
	Source     string            `json:"source"`
	Host       string            `json:"host,omitempty"`
	EventType  string            `json:"event_type"`
	Message    string            `json:"message"`
	Enrichment Enrichment        `json:"enrichment"`
	Fields     map[string]string `json:"fields"`
}

// RuleKind discriminates alert rule evaluation strategies.
type RuleKind string

const (
	// RuleThreshold fires when a windowed event count reaches a threshold.
	RuleThreshold RuleKind = "threshold"

	// RuleCorrelation is recognized but evaluation is a no-op. The kind is
	// reserved so existing rule definitions round-trip unchanged.
	RuleCorrelation RuleKind = "correlation"
)

// AlertRule is an operator-defined detection definition. Read-only to the
// evaluator; managed through the rules surface.
type AlertRule struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Kind              RuleKind  `json:"rule_type"`
	FilterQuery       string    `json:"filter_query"`
	ThresholdCount    int       `json:"threshold_count"`
	TimeWindowMinutes int       `json:"time_window_minutes"`
	Recipients        []string  `json:"recipients,omitempty"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	CreatedBy         string    `json:"created_by,omitempty"`
}

// Window returns the rule's evaluation window as a duration.
func (r *AlertRule) Window() time.Duration {
	return time.Duration(r.TimeWindowMinutes) * time.Minute
}

// AlertEvent records one firing of an AlertRule. Created exactly once per
// firing; only the Notified flag may change afterwards.
type AlertEvent struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"rule_id"`
	TriggeredAt time.Time      `json:"triggered_at"`
	EventCount  int            `json:"event_count"`
	Details     map[string]any `json:"details,omitempty"`
	Notified    bool           `json:"notified"`
}

// HealthStatus is the severity tier of a component health report.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusWarning  HealthStatus = "warning"
	HealthStatusCritical HealthStatus = "critical"
)

// HealthReport describes the state of one pipeline component, suitable for
// operator notification.
type HealthReport struct {
	Component string         `json:"component"`
	Status    HealthStatus   `json:"status"`
	Metrics   map[string]any `json:"metrics,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
