package repository

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/harrierlabs/harrier/internal/filter"
	"github.com/harrierlabs/harrier/internal/models"
)

// OpenSearchConfig holds connection settings for the enriched-event index.
type OpenSearchConfig struct {
	URL      string
	Username string
	Password string
	Insecure bool
	Index    string
}

// OpenSearchStore implements EnrichedStore on an OpenSearch index. It is an
// alternate backend for enriched events; raws, rules and alerts stay in
// PostgreSQL either way.
type OpenSearchStore struct {
	client *opensearch.Client
	index  string
}

// NewOpenSearchStore connects to OpenSearch and ensures the enriched-event
// index exists with keyword mappings for the filterable attributes.
func NewOpenSearchStore(ctx context.Context, cfg OpenSearchConfig) (*OpenSearchStore, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	store := &OpenSearchStore{client: client, index: cfg.Index}
	if err := store.ensureIndex(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureIndex creates the index with explicit mappings. Dynamic string fields
// inside the extracted field bag map to keyword so equality filters work
// without analysis surprises.
func (s *OpenSearchStore) ensureIndex(ctx context.Context) error {
	exists, err := s.client.Indices.Exists(
		[]string{s.index},
		s.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer exists.Body.Close()

	if exists.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"raw_id":     map[string]interface{}{"type": "keyword"},
				"ts":         map[string]interface{}{"type": "date"},
				"source":     map[string]interface{}{"type": "keyword"},
				"host":       map[string]interface{}{"type": "keyword"},
				"event_type": map[string]interface{}{"type": "keyword"},
				"message":    map[string]interface{}{"type": "text"},
				"fields": map[string]interface{}{
					"type":    "object",
					"dynamic": true,
				},
			},
			"dynamic_templates": []interface{}{
				map[string]interface{}{
					"fields_as_keyword": map[string]interface{}{
						"path_match":         "fields.*",
						"match_mapping_type": "string",
						"mapping":            map[string]interface{}{"type": "keyword"},
					},
				},
			},
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	res, err := s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("failed to create index: %s - %s", res.Status(), string(bodyBytes))
	}

	return nil
}

type enrichedDoc struct {
	RawID      string            `json:"raw_id"`
	Timestamp  time.Time         `json:"ts"`
	Source     string            `json:"source"`
	Host       string            `json:"host"`
	EventType  string            `json:"event_type"`
	Message    string            `json:"message"`
	Enrichment models.Enrichment `json:"enrichment"`
	Fields     map[string]string `json:"fields"`
}

// AppendEnriched indexes an enriched event document.
func (s *OpenSearchStore) AppendEnriched(ctx context.Context, event *models.EnrichedEvent) (string, error) {
	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("failed to generate event id: %w", err)
		}
		event.ID = id.String()
	}

	doc := enrichedDoc{
		RawID:      event.RawID,
		Timestamp:  event.Timestamp,
		Source:     event.Source,
		Host:       event.Host,
		EventType:  event.EventType,
		Message:    event.Message,
		Enrichment: event.Enrichment,
		Fields:     event.Fields,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched event: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithDocumentID(event.ID),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("failed to index enriched event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("failed to index enriched event: %s - %s", res.Status(), string(bodyBytes))
	}

	return event.ID, nil
}

// CountEnriched counts enriched events after since that match the filter
// expression, using a bool query with a range clause and, for equality
// predicates, a term clause.
func (s *OpenSearchStore) CountEnriched(ctx context.Context, expr filter.Expr, since time.Time) (int, error) {
	must := []interface{}{
		map[string]interface{}{
			"range": map[string]interface{}{
				"ts": map[string]interface{}{"gte": since.Format(time.RFC3339Nano)},
			},
		},
	}

	if eq, ok := expr.(filter.Equals); ok {
		field := eq.Field
		switch field {
		case "event_type", "source", "host":
		default:
			field = "fields." + field
		}
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{field: eq.Value},
		})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return 0, err
	}

	res, err := s.client.Count(
		s.client.Count.WithIndex(s.index),
		s.client.Count.WithBody(bytes.NewReader(body)),
		s.client.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count enriched events: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("failed to count enriched events: %s - %s", res.Status(), string(bodyBytes))
	}

	var result struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}

	return result.Count, nil
}
