package repository

import (
	"context"
	"errors"
	"time"

	"github.com/harrierlabs/harrier/internal/filter"
	"github.com/harrierlabs/harrier/internal/models"
)

var (
	ErrRawNotFound  = errors.New("raw event not found")
	ErrRuleNotFound = errors.New("alert rule not found")
)

// RawStore persists raw event records. Raws are written before any
// processing so a crash never loses the original payload.
type RawStore interface {
	AppendRaw(ctx context.Context, rec *models.RawRecord) (string, error)
	GetRaw(ctx context.Context, id string) (*models.RawRecord, error)

	// ListOrphanRawIDs returns raw records older than the cutoff that have
	// no enriched counterpart, oldest first.
	ListOrphanRawIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
}

// EnrichedStore persists and counts enriched events.
type EnrichedStore interface {
	AppendEnriched(ctx context.Context, event *models.EnrichedEvent) (string, error)

	// CountEnriched counts enriched events after since that match filter.
	CountEnriched(ctx context.Context, expr filter.Expr, since time.Time) (int, error)
}

// RuleStore manages alert rule definitions.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *models.AlertRule) error
	GetRule(ctx context.Context, id string) (*models.AlertRule, error)
	ListRules(ctx context.Context) ([]*models.AlertRule, error)
	ListActiveRules(ctx context.Context) ([]*models.AlertRule, error)
	UpdateRule(ctx context.Context, rule *models.AlertRule) error
	DeleteRule(ctx context.Context, id string) error
}

// AlertStore records fired alerts and their notification state.
type AlertStore interface {
	AppendAlertEvent(ctx context.Context, alert *models.AlertEvent) error

	// HasAlertEventSince reports whether the rule already fired at or after
	// the given time. Used to suppress duplicate alerts inside a window.
	HasAlertEventSince(ctx context.Context, ruleID string, since time.Time) (bool, error)

	MarkAlertNotified(ctx context.Context, alertID string) error
	ListAlertEvents(ctx context.Context, limit, offset int) ([]*models.AlertEvent, int, error)
}

// Repository is the full persistence surface of the pipeline.
type Repository interface {
	RawStore
	EnrichedStore
	RuleStore
	AlertStore

	Ping(ctx context.Context) error
	Close() error
}
