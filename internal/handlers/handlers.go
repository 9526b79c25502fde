// Package handlers implements the HTTP API: event submission, rule
// management, alert listing and health.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/harrierlabs/harrier/internal/httputil"
	"github.com/harrierlabs/harrier/internal/ingest"
	"github.com/harrierlabs/harrier/internal/logging"
	"github.com/harrierlabs/harrier/internal/models"
	"github.com/harrierlabs/harrier/internal/repository"
)

const (
	defaultAlertsLimit = 50
	maxAlertsLimit     = 500
)

// Pinger checks backend connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler carries the dependencies of all HTTP endpoints.
type Handler struct {
	ingest *ingest.Service
	rules  repository.RuleStore
	alerts repository.AlertStore
	pinger Pinger
	logger *logging.Logger
}

// New creates the API handler.
func New(svc *ingest.Service, rules repository.RuleStore, alerts repository.AlertStore, pinger Pinger, logger *logging.Logger) *Handler {
	return &Handler{
		ingest: svc,
		rules:  rules,
		alerts: alerts,
		pinger: pinger,
		logger: logger,
	}
}

// IngestEvent handles POST /api/v1/events.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rawID, err := h.ingest.Ingest(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ingest.ErrValidation) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "ingest failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to ingest event")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"event_id": rawID})
}

// CreateRule handles POST /api/v1/rules.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg, ok := validateRule(&rule); !ok {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.rules.CreateRule(r.Context(), &rule); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create rule", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create rule")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, rule)
}

// ListRules handles GET /api/v1/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListRules(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list rules", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// GetRule handles GET /api/v1/rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.rules.GetRule(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "rule not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get rule", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get rule")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, rule)
}

// UpdateRule handles PUT /api/v1/rules/{id}.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.ID = r.PathValue("id")

	if msg, ok := validateRule(&rule); !ok {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.rules.UpdateRule(r.Context(), &rule); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "rule not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to update rule", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update rule")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/v1/rules/{id}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "rule not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to delete rule", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListAlerts handles GET /api/v1/alerts with limit/offset pagination.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultAlertsLimit)
	if limit < 1 || limit > maxAlertsLimit {
		limit = defaultAlertsLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	alerts, total, err := h.alerts.ListAlertEvents(r.Context(), limit, offset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list alerts", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// HealthCheck handles GET /healthz.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func validateRule(rule *models.AlertRule) (string, bool) {
	if rule.Name == "" {
		return "name is required", false
	}
	switch rule.Kind {
	case models.RuleThreshold, models.RuleCorrelation:
	case "":
		rule.Kind = models.RuleThreshold
	default:
		return "unknown rule kind", false
	}
	if rule.ThresholdCount < 1 {
		return "threshold_count must be positive", false
	}
	if rule.TimeWindowMinutes < 1 {
		return "time_window_minutes must be positive", false
	}
	return "", true
}

func queryInt(r *http.Request, key string, def int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}
