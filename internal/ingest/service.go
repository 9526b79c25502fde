// Package ingest coordinates the event pipeline: persist the raw record
// first, then extract and enrich. In sync mode processing happens inline; in
// async mode a notice goes onto the work queue and a worker picks it up.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrierlabs/harrier/internal/enrichment"
	"github.com/harrierlabs/harrier/internal/extractor"
	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/messaging"
	"github.com/harrierlabs/harrier/internal/metrics"
	"github.com/harrierlabs/harrier/internal/models"
	"github.com/harrierlabs/harrier/internal/repository"
)

// ErrValidation marks a rejected ingest request.
var ErrValidation = errors.New("invalid ingest request")

// Publisher puts raw event notices on the work queue.
type Publisher interface {
	PublishSync(ctx context.Context, subject string, data []byte) error
}

// Request is one incoming event submission. Agents send either a flat body
// with a top-level raw line or a nested payload object; when both are present
// the nested payload wins field by field.
type Request struct {
	Source    string            `json:"source"`
	Host      string            `json:"host,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	Raw       string            `json:"raw,omitempty"`
	AgentInfo map[string]string `json:"agent_info,omitempty"`
	Payload   *RequestPayload   `json:"payload,omitempty"`
}

// RequestPayload is the nested payload form.
type RequestPayload struct {
	Timestamp string            `json:"timestamp,omitempty"`
	Raw       string            `json:"raw"`
	AgentInfo map[string]string `json:"agent_info,omitempty"`
}

// payload collapses the two request shapes into the stored payload.
func (r *Request) payload() models.RawPayload {
	p := models.RawPayload{
		Timestamp: r.Timestamp,
		Raw:       r.Raw,
		AgentInfo: r.AgentInfo,
	}
	if r.Payload != nil {
		if r.Payload.Raw != "" {
			p.Raw = r.Payload.Raw
		}
		if r.Payload.Timestamp != "" {
			p.Timestamp = r.Payload.Timestamp
		}
		if r.Payload.AgentInfo != nil {
			p.AgentInfo = r.Payload.AgentInfo
		}
	}
	return p
}

// Service runs the ingestion pipeline.
type Service struct {
	raws      repository.RawStore
	extractor *extractor.Extractor
	enricher  *enrichment.Enricher
	publisher Publisher
	logger    *logging.Logger
}

// NewService creates the coordinator. A nil publisher selects sync mode:
// extraction and enrichment run inline after the raw write.
func NewService(raws repository.RawStore, ex *extractor.Extractor, en *enrichment.Enricher, publisher Publisher, logger *logging.Logger) *Service {
	return &Service{
		raws:      raws,
		extractor: ex,
		enricher:  en,
		publisher: publisher,
		logger:    logger,
	}
}

// Ingest validates and persists an incoming event, then hands it to
// processing. The raw write is the only step that can fail the request;
// downstream processing failures are logged and recovered later by
// reconciliation.
func (s *Service) Ingest(ctx context.Context, req *Request) (string, error) {
	if req.Source == "" {
		metrics.IngestRejected.Inc()
		return "", fmt.Errorf("%w: source is required", ErrValidation)
	}
	payload := req.payload()
	if payload.Raw == "" {
		metrics.IngestRejected.Inc()
		return "", fmt.Errorf("%w: raw payload is required", ErrValidation)
	}

	rec := &models.RawRecord{
		Source:  req.Source,
		Host:    req.Host,
		Payload: payload,
	}

	rawID, err := s.raws.AppendRaw(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("persist raw event: %w", err)
	}
	metrics.EventsIngested.WithLabelValues(req.Source).Inc()

	if s.publisher != nil {
		if err := s.publishNotice(ctx, rawID); err != nil {
			// The raw is safe; reconciliation will pick it up.
			s.logger.ErrorContext(ctx, "failed to enqueue raw event", "raw_id", rawID, "error", err)
		}
		return rawID, nil
	}

	if err := s.Process(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "inline processing failed", "raw_id", rawID, "error", err)
	}

	return rawID, nil
}

// Process runs extraction, field normalization and enrichment for a
// persisted raw record. Aliased field names are canonicalized before
// enrichment so IP scanning and rule filters see one naming scheme.
// Idempotent with respect to the raw record: re-running appends another
// enriched event derived from the same input.
func (s *Service) Process(ctx context.Context, rec *models.RawRecord) error {
	parsed := s.extractor.Extract(rec)
	parsed.Fields = extractor.NormalizeFields(parsed.Fields)

	if _, err := s.enricher.Enrich(ctx, rec, parsed); err != nil {
		return fmt.Errorf("enrich raw %s: %w", rec.ID, err)
	}

	return nil
}

// ProcessByID loads a raw record and processes it. Used by queue workers and
// reconciliation.
func (s *Service) ProcessByID(ctx context.Context, rawID string) error {
	rec, err := s.raws.GetRaw(ctx, rawID)
	if err != nil {
		return fmt.Errorf("load raw %s: %w", rawID, err)
	}
	return s.Process(ctx, rec)
}

// Reconcile finds raw records older than the cutoff that never produced an
// enriched event and reprocesses them. Returns the number recovered.
func (s *Service) Reconcile(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	ids, err := s.raws.ListOrphanRawIDs(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list orphan raws: %w", err)
	}

	recovered := 0
	for _, id := range ids {
		if err := s.ProcessByID(ctx, id); err != nil {
			s.logger.Error("reconcile failed for raw event", "raw_id", id, "error", err)
			continue
		}
		recovered++
	}

	s.logger.Info("reconciliation pass complete", "orphans", len(ids), "recovered", recovered)
	return recovered, nil
}

func (s *Service) publishNotice(ctx context.Context, rawID string) error {
	data, err := encodeNotice(rawID)
	if err != nil {
		return err
	}
	return s.publisher.PublishSync(ctx, messaging.SubjectEventsRaw, data)
}
