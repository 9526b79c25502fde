package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrierlabs/harrier/internal/enrichment"
	"github.com/harrierlabs/harrier/internal/extractor"
	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/messaging"
	"github.com/harrierlabs/harrier/internal/models"
)

type fakeRawStore struct {
	appendFn  func(ctx context.Context, rec *models.RawRecord) (string, error)
	orphanFn  func(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
	raws      map[string]*models.RawRecord
	nextRawID int
}

func newFakeRawStore() *fakeRawStore {
	return &fakeRawStore{raws: map[string]*models.RawRecord{}}
}

func (s *fakeRawStore) AppendRaw(ctx context.Context, rec *models.RawRecord) (string, error) {
	if s.appendFn != nil {
		return s.appendFn(ctx, rec)
	}
	s.nextRawID++
	rec.ID = string(rune('a' + s.nextRawID - 1))
	rec.ReceivedAt = time.Now().UTC()
	s.raws[rec.ID] = rec
	return rec.ID, nil
}

func (s *fakeRawStore) GetRaw(ctx context.Context, id string) (*models.RawRecord, error) {
	rec, ok := s.raws[id]
	if !ok {
		return nil, errors.New("raw event not found")
	}
	return rec, nil
}

func (s *fakeRawStore) ListOrphanRawIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	if s.orphanFn != nil {
		return s.orphanFn(ctx, olderThan, limit)
	}
	return nil, nil
}

type fakeEnrichedStore struct {
	appendFn func(ctx context.Context, event *models.EnrichedEvent) (string, error)
	events   []*models.EnrichedEvent
}

func (s *fakeEnrichedStore) AppendEnriched(ctx context.Context, event *models.EnrichedEvent) (string, error) {
	s.events = append(s.events, event)
	if s.appendFn != nil {
		return s.appendFn(ctx, event)
	}
	return "evt-1", nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, subject string, data []byte) error
	subjects  []string
	payloads  [][]byte
}

func (p *fakePublisher) PublishSync(ctx context.Context, subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	if p.publishFn != nil {
		return p.publishFn(ctx, subject, data)
	}
	return nil
}

func testService(raws *fakeRawStore, enriched *fakeEnrichedStore, publisher Publisher) *Service {
	logger := logging.New("error", "text")
	ex := extractor.New(extractor.DefaultPatterns(), logger)
	en := enrichment.New(enriched, nil, nil, nil, enrichment.Config{}, logger)
	return NewService(raws, ex, en, publisher, logger)
}

func TestIngest_SyncModeProcessesInline(t *testing.T) {
	raws := newFakeRawStore()
	enriched := &fakeEnrichedStore{}
	svc := testService(raws, enriched, nil)

	rawID, err := svc.Ingest(context.Background(), &Request{
		Source: "auth",
		Host:   "host1",
		Raw:    "Jan 5 10:22:31 host1 sshd[123]: Failed password for root from 10.0.0.5 port 22 ssh2",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, rawID)
	require.Len(t, enriched.events, 1)
	assert.Equal(t, "ssh_login_failed", enriched.events[0].EventType)
	assert.Equal(t, rawID, enriched.events[0].RawID)
	assert.Equal(t, "auth", enriched.events[0].Source)
}

func TestIngest_CanonicalizesAliasedFields(t *testing.T) {
	raws := newFakeRawStore()
	enriched := &fakeEnrichedStore{}
	svc := testService(raws, enriched, nil)

	_, err := svc.Ingest(context.Background(), &Request{
		Source: "auth",
		Host:   "host1",
		Raw:    "Jan 5 10:22:31 host1 sshd[123]: Failed password for root from 10.0.0.5",
	})

	require.NoError(t, err)
	require.Len(t, enriched.events, 1)
	fields := enriched.events[0].Fields
	assert.Equal(t, "root", fields["username"])
	assert.NotContains(t, fields, "user", "alias must be renamed, not kept")
	assert.Equal(t, "10.0.0.5", fields["src_ip"])
}

func TestIngest_NestedPayloadRaw(t *testing.T) {
	raws := newFakeRawStore()
	enriched := &fakeEnrichedStore{}
	svc := testService(raws, enriched, nil)

	rawID, err := svc.Ingest(context.Background(), &Request{
		Source: "web",
		Payload: &RequestPayload{
			Raw:       `{"event_type": "custom_app", "level": "error"}`,
			AgentInfo: map[string]string{"agent": "filebeat"},
		},
	})

	require.NoError(t, err)
	rec, err := raws.GetRaw(context.Background(), rawID)
	require.NoError(t, err)
	assert.Equal(t, `{"event_type": "custom_app", "level": "error"}`, rec.Payload.Raw)
	assert.Equal(t, "filebeat", rec.Payload.AgentInfo["agent"])
	require.Len(t, enriched.events, 1)
	assert.Equal(t, "custom_app", enriched.events[0].EventType)
}

func TestIngest_NestedPayloadWinsOverTopLevel(t *testing.T) {
	raws := newFakeRawStore()
	svc := testService(raws, &fakeEnrichedStore{}, nil)

	rawID, err := svc.Ingest(context.Background(), &Request{
		Source:  "web",
		Raw:     "top level line",
		Payload: &RequestPayload{Raw: "nested line"},
	})

	require.NoError(t, err)
	rec, err := raws.GetRaw(context.Background(), rawID)
	require.NoError(t, err)
	assert.Equal(t, "nested line", rec.Payload.Raw)
}

func TestIngest_EmptyNestedPayloadRejected(t *testing.T) {
	svc := testService(newFakeRawStore(), &fakeEnrichedStore{}, nil)

	_, err := svc.Ingest(context.Background(), &Request{
		Source:  "web",
		Payload: &RequestPayload{},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIngest_ValidationRejectsMissingSource(t *testing.T) {
	svc := testService(newFakeRawStore(), &fakeEnrichedStore{}, nil)

	_, err := svc.Ingest(context.Background(), &Request{Raw: "hello"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIngest_ValidationRejectsMissingRaw(t *testing.T) {
	svc := testService(newFakeRawStore(), &fakeEnrichedStore{}, nil)

	_, err := svc.Ingest(context.Background(), &Request{Source: "auth"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIngest_RawWriteFailurePropagates(t *testing.T) {
	raws := newFakeRawStore()
	raws.appendFn = func(ctx context.Context, rec *models.RawRecord) (string, error) {
		return "", errors.New("db down")
	}
	svc := testService(raws, &fakeEnrichedStore{}, nil)

	_, err := svc.Ingest(context.Background(), &Request{Source: "auth", Raw: "x"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestIngest_ProcessingFailureDoesNotFailRequest(t *testing.T) {
	raws := newFakeRawStore()
	enriched := &fakeEnrichedStore{
		appendFn: func(ctx context.Context, event *models.EnrichedEvent) (string, error) {
			return "", errors.New("store down")
		},
	}
	svc := testService(raws, enriched, nil)

	rawID, err := svc.Ingest(context.Background(), &Request{Source: "auth", Raw: "some line"})

	require.NoError(t, err, "the raw is persisted, so the request succeeds")
	assert.NotEmpty(t, rawID)
}

func TestIngest_AsyncModePublishesNotice(t *testing.T) {
	raws := newFakeRawStore()
	enriched := &fakeEnrichedStore{}
	publisher := &fakePublisher{}
	svc := testService(raws, enriched, publisher)

	rawID, err := svc.Ingest(context.Background(), &Request{Source: "auth", Raw: "some line"})

	require.NoError(t, err)
	assert.Empty(t, enriched.events, "async mode must not process inline")
	require.Len(t, publisher.subjects, 1)
	assert.Equal(t, messaging.SubjectEventsRaw, publisher.subjects[0])

	notice, err := decodeNotice(publisher.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, rawID, notice.RawID)
}

func TestIngest_PublishFailureDoesNotFailRequest(t *testing.T) {
	raws := newFakeRawStore()
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, subject string, data []byte) error {
			return errors.New("nats down")
		},
	}
	svc := testService(raws, &fakeEnrichedStore{}, publisher)

	rawID, err := svc.Ingest(context.Background(), &Request{Source: "auth", Raw: "some line"})
	require.NoError(t, err)
	assert.NotEmpty(t, rawID)
}

func TestProcessByID(t *testing.T) {
	raws := newFakeRawStore()
	enriched := &fakeEnrichedStore{}
	svc := testService(raws, enriched, &fakePublisher{})

	rawID, err := svc.Ingest(context.Background(), &Request{Source: "web", Raw: `{"event_type": "custom_app", "level": "error"}`})
	require.NoError(t, err)

	require.NoError(t, svc.ProcessByID(context.Background(), rawID))
	require.Len(t, enriched.events, 1)
	assert.Equal(t, "custom_app", enriched.events[0].EventType)
	assert.Equal(t, "error", enriched.events[0].Fields["level"])
}

func TestProcessByID_UnknownRaw(t *testing.T) {
	svc := testService(newFakeRawStore(), &fakeEnrichedStore{}, nil)
	assert.Error(t, svc.ProcessByID(context.Background(), "missing"))
}

func TestReconcile_ReprocessesOrphans(t *testing.T) {
	raws := newFakeRawStore()
	enriched := &fakeEnrichedStore{}
	publisher := &fakePublisher{}
	svc := testService(raws, enriched, publisher)

	id1, err := svc.Ingest(context.Background(), &Request{Source: "auth", Raw: "line one"})
	require.NoError(t, err)
	id2, err := svc.Ingest(context.Background(), &Request{Source: "auth", Raw: "line two"})
	require.NoError(t, err)

	raws.orphanFn = func(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
		return []string{id1, id2}, nil
	}

	recovered, err := svc.Reconcile(context.Background(), time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)
	assert.Len(t, enriched.events, 2)
}

func TestReconcile_FailureOnOneOrphanContinues(t *testing.T) {
	raws := newFakeRawStore()
	enriched := &fakeEnrichedStore{}
	svc := testService(raws, enriched, &fakePublisher{})

	id1, err := svc.Ingest(context.Background(), &Request{Source: "auth", Raw: "line one"})
	require.NoError(t, err)

	raws.orphanFn = func(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
		return []string{"missing", id1}, nil
	}

	recovered, err := svc.Reconcile(context.Background(), time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
}

func TestNoticeRoundTrip(t *testing.T) {
	data, err := encodeNotice("raw-42")
	require.NoError(t, err)

	notice, err := decodeNotice(data)
	require.NoError(t, err)
	assert.Equal(t, "raw-42", notice.RawID)
}

func TestDecodeNotice_Invalid(t *testing.T) {
	_, err := decodeNotice([]byte("not json"))
	assert.Error(t, err)

	_, err = decodeNotice([]byte(`{}`))
	assert.Error(t, err)
}
