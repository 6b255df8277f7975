package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/explain"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/signature"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	store        domain.Store
	coord        *cache.Coordinator
	bus          domain.EventBus
	orchestrator *rules.Orchestrator
	exprs        *rules.ExpressionEngine
	signatures   *signature.Service
	explainer    *explain.Service
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(store domain.Store, coord *cache.Coordinator, bus domain.EventBus, orchestrator *rules.Orchestrator, exprs *rules.ExpressionEngine, signatures *signature.Service, explainer *explain.Service, version string) *Handler {
	return &Handler{
		store:        store,
		coord:        coord,
		bus:          bus,
		orchestrator: orchestrator,
		exprs:        exprs,
		signatures:   signatures,
		explainer:    explainer,
		version:      version,
	}
}

// Evaluate handles POST /api/v1/evaluate: synchronous ingest and
// evaluation of one transaction.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	eval, err := h.orchestrator.EvaluateTransaction(ctx, tenantID, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// IngestTransaction handles POST /api/v1/transactions: the transaction
// is persisted and queued for asynchronous evaluation by a worker.
func (h *Handler) IngestTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	tx, err := h.orchestrator.IngestTransaction(ctx, tenantID, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"txId":   tx.ID,
		"status": "queued",
	})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	tx, err := h.store.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	evalID := chi.URLParam(r, "id")

	eval, err := h.store.GetEvaluation(ctx, tenantID, evalID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// ExplainEvaluation narrates a stored evaluation rule by rule.
func (h *Handler) ExplainEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	evalID := chi.URLParam(r, "id")

	report, err := h.explainer.ExplainEvaluation(ctx, tenantID, evalID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ExplainRule narrates one rule version against a stored transaction.
// The transaction is selected by the txId query parameter.
func (h *Handler) ExplainRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleVersionID := chi.URLParam(r, "id")
	txID := r.URL.Query().Get("txId")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "txId query parameter is required",
		})
		return
	}

	re, err := h.explainer.ExplainRule(ctx, tenantID, ruleVersionID, txID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, re)
}

// GetAlert retrieves an alert by ID.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	alertID := chi.URLParam(r, "id")

	alert, err := h.store.GetAlert(ctx, tenantID, alertID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// UpdateAlertStatus transitions an alert's status.
func (h *Handler) UpdateAlertStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	alertID := chi.URLParam(r, "id")

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	alert, err := h.store.GetAlert(ctx, tenantID, alertID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := alert.TransitionTo(body.Status); err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.UpdateAlertStatus(ctx, tenantID, alert); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors to HTTP statuses: validation and bad
// input map to 400, missing records to 404, terminal-state transitions
// to 409, everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err) || errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case domain.IsStateConflict(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
