package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harrierlabs/harrier/internal/filter"
	"github.com/harrierlabs/harrier/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// AppendRaw stores a raw event record. An empty ID gets a fresh UUIDv7 so
// raws sort by insertion time.
func (r *PostgresRepository) AppendRaw(ctx context.Context, rec *models.RawRecord) (string, error) {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("failed to generate raw id: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal raw payload: %w", err)
	}

	query := `
		INSERT INTO events_raw (id, received_at, source, host, payload)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.pool.Exec(ctx, query, rec.ID, rec.ReceivedAt, rec.Source, rec.Host, payload); err != nil {
		return "", fmt.Errorf("failed to insert raw event: %w", err)
	}

	return rec.ID, nil
}

// GetRaw retrieves a raw event record by ID.
func (r *PostgresRepository) GetRaw(ctx context.Context, id string) (*models.RawRecord, error) {
	query := `
		SELECT id, received_at, source, host, payload
		FROM events_raw
		WHERE id = $1
	`

	rec := &models.RawRecord{}
	var payload []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(&rec.ID, &rec.ReceivedAt, &rec.Source, &rec.Host, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRawNotFound
		}
		return nil, fmt.Errorf("failed to get raw event: %w", err)
	}

	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw payload: %w", err)
	}

	return rec, nil
}

// ListOrphanRawIDs finds raw records older than the cutoff with no enriched
// counterpart. Oldest first so reconciliation drains the backlog in order.
func (r *PostgresRepository) ListOrphanRawIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	query := `
		SELECT r.id
		FROM events_raw r
		LEFT JOIN events_enriched e ON e.raw_id = r.id
		WHERE e.id IS NULL AND r.received_at < $1
		ORDER BY r.received_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan raws: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan orphan raw id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

// AppendEnriched stores an enriched event. The enrichment bag and field map
// go into JSONB columns.
func (r *PostgresRepository) AppendEnriched(ctx context.Context, event *models.EnrichedEvent) (string, error) {
	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("failed to generate event id: %w", err)
		}
		event.ID = id.String()
	}

	enrichment, err := json.Marshal(event.Enrichment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enrichment: %w", err)
	}
	fields, err := json.Marshal(event.Fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}

	query := `
		INSERT INTO events_enriched (id, raw_id, ts, source, host, event_type, message, enrichment, fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if _, err := r.pool.Exec(ctx, query,
		event.ID, event.RawID, event.Timestamp, event.Source, event.Host,
		event.EventType, event.Message, enrichment, fields,
	); err != nil {
		return "", fmt.Errorf("failed to insert enriched event: %w", err)
	}

	return event.ID, nil
}

// CountEnriched counts enriched events after since that match the filter
// expression. Equality predicates translate to SQL; everything else counts
// the whole window.
func (r *PostgresRepository) CountEnriched(ctx context.Context, expr filter.Expr, since time.Time) (int, error) {
	query := "SELECT COUNT(*) FROM events_enriched WHERE ts >= $1"
	args := []interface{}{since}

	if eq, ok := expr.(filter.Equals); ok {
		switch eq.Field {
		case "event_type":
			query += " AND event_type = $2"
		case "source":
			query += " AND source = $2"
		case "host":
			query += " AND host = $2"
		default:
			query += " AND fields->>$2 = $3"
			args = append(args, eq.Field)
		}
		args = append(args, eq.Value)
	}

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count enriched events: %w", err)
	}

	return count, nil
}

// CreateRule creates a new alert rule.
func (r *PostgresRepository) CreateRule(ctx context.Context, rule *models.AlertRule) error {
	if rule.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate rule id: %w", err)
		}
		rule.ID = id.String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	recipients, err := json.Marshal(rule.Recipients)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients: %w", err)
	}

	query := `
		INSERT INTO alert_rules (id, name, description, kind, filter_query, threshold_count,
			time_window_minutes, recipients, is_active, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	if _, err := r.pool.Exec(ctx, query,
		rule.ID, rule.Name, rule.Description, rule.Kind, rule.FilterQuery,
		rule.ThresholdCount, rule.TimeWindowMinutes, recipients, rule.IsActive,
		rule.CreatedAt, rule.CreatedBy,
	); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

// GetRule retrieves an alert rule by ID.
func (r *PostgresRepository) GetRule(ctx context.Context, id string) (*models.AlertRule, error) {
	query := ruleSelect + " WHERE id = $1"

	rule, err := scanRule(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// ListRules retrieves all alert rules, newest first.
func (r *PostgresRepository) ListRules(ctx context.Context) ([]*models.AlertRule, error) {
	return r.listRules(ctx, ruleSelect+" ORDER BY created_at DESC")
}

// ListActiveRules retrieves the rules the evaluator should run.
func (r *PostgresRepository) ListActiveRules(ctx context.Context) ([]*models.AlertRule, error) {
	return r.listRules(ctx, ruleSelect+" WHERE is_active ORDER BY created_at DESC")
}

func (r *PostgresRepository) listRules(ctx context.Context, query string) ([]*models.AlertRule, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules := []*models.AlertRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return rules, nil
}

// UpdateRule replaces the mutable fields of an existing rule.
func (r *PostgresRepository) UpdateRule(ctx context.Context, rule *models.AlertRule) error {
	recipients, err := json.Marshal(rule.Recipients)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients: %w", err)
	}

	query := `
		UPDATE alert_rules
		SET name = $1, description = $2, kind = $3, filter_query = $4,
			threshold_count = $5, time_window_minutes = $6, recipients = $7, is_active = $8
		WHERE id = $9
	`

	result, err := r.pool.Exec(ctx, query,
		rule.Name, rule.Description, rule.Kind, rule.FilterQuery,
		rule.ThresholdCount, rule.TimeWindowMinutes, recipients, rule.IsActive,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// DeleteRule removes an alert rule.
func (r *PostgresRepository) DeleteRule(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM alert_rules WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// AppendAlertEvent records a fired alert.
func (r *PostgresRepository) AppendAlertEvent(ctx context.Context, alert *models.AlertEvent) error {
	if alert.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate alert id: %w", err)
		}
		alert.ID = id.String()
	}
	if alert.TriggeredAt.IsZero() {
		alert.TriggeredAt = time.Now().UTC()
	}

	details, err := json.Marshal(alert.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal alert details: %w", err)
	}

	query := `
		INSERT INTO alert_events (id, rule_id, triggered_at, event_count, details, notified)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := r.pool.Exec(ctx, query,
		alert.ID, alert.RuleID, alert.TriggeredAt, alert.EventCount, details, alert.Notified,
	); err != nil {
		return fmt.Errorf("failed to insert alert event: %w", err)
	}

	return nil
}

// HasAlertEventSince reports whether the rule already fired at or after since.
func (r *PostgresRepository) HasAlertEventSince(ctx context.Context, ruleID string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM alert_events
			WHERE rule_id = $1 AND triggered_at >= $2
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, ruleID, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check alert existence: %w", err)
	}

	return exists, nil
}

// MarkAlertNotified flips the notified flag after a successful dispatch.
func (r *PostgresRepository) MarkAlertNotified(ctx context.Context, alertID string) error {
	_, err := r.pool.Exec(ctx, "UPDATE alert_events SET notified = TRUE WHERE id = $1", alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert notified: %w", err)
	}
	return nil
}

// ListAlertEvents retrieves a paginated list of fired alerts, newest first.
func (r *PostgresRepository) ListAlertEvents(ctx context.Context, limit, offset int) ([]*models.AlertEvent, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM alert_events").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alert events: %w", err)
	}

	query := `
		SELECT id, rule_id, triggered_at, event_count, details, notified
		FROM alert_events
		ORDER BY triggered_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alert events: %w", err)
	}
	defer rows.Close()

	alerts := []*models.AlertEvent{}
	for rows.Next() {
		a := &models.AlertEvent{}
		var details []byte
		if err := rows.Scan(&a.ID, &a.RuleID, &a.TriggeredAt, &a.EventCount, &details, &a.Notified); err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert event: %w", err)
		}
		if err := json.Unmarshal(details, &a.Details); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal alert details: %w", err)
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	return alerts, total, nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const ruleSelect = `
	SELECT id, name, description, kind, filter_query, threshold_count,
		time_window_minutes, recipients, is_active, created_at, created_by
	FROM alert_rules`

func scanRule(row pgx.Row) (*models.AlertRule, error) {
	rule := &models.AlertRule{}
	var recipients []byte
	if err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Kind, &rule.FilterQuery,
		&rule.ThresholdCount, &rule.TimeWindowMinutes, &recipients, &rule.IsActive,
		&rule.CreatedAt, &rule.CreatedBy,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recipients, &rule.Recipients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipients: %w", err)
	}
	return rule, nil
}
