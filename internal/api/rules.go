package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/rules"
)

// CreateRuleVersionRequest is the request body for POST /rules.
type CreateRuleVersionRequest struct {
	TemplateID  string `json:"templateId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Conditions *domain.Condition   `json:"conditions,omitempty"`
	Expression string              `json:"expression,omitempty"`
	Actions    []domain.RuleAction `json:"actions"`
	Window     *domain.Window      `json:"window,omitempty"`

	Priority int `json:"priority"`
}

// CreateRuleVersion creates a new immutable rule version. If the
// template already has an active version it is deactivated at the new
// version's activation instant, so exactly one version per template is
// ever active. The rule-set cache is invalidated before the write is
// acknowledged.
func (h *Handler) CreateRuleVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateRuleVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	now := time.Now().UTC()
	rv := &domain.RuleVersion{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		TemplateID:  req.TemplateID,
		Version:     1,
		Name:        req.Name,
		Description: req.Description,
		Conditions:  req.Conditions,
		Expression:  req.Expression,
		Actions:     req.Actions,
		Window:      req.Window,
		Priority:    req.Priority,
		Enabled:     true,
		ActivatedAt: now,
		CreatedAt:   now,
	}

	if err := rules.ValidateRuleVersion(rv, h.exprs); err != nil {
		writeError(w, err)
		return
	}

	// Supersede the current version, if any.
	existing, err := h.store.ListRuleVersions(ctx, tenantID, req.TemplateID)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, prev := range existing {
		if prev.Version >= rv.Version {
			rv.Version = prev.Version + 1
		}
		if prev.ActiveAt(now) {
			if err := h.store.DeactivateRuleVersion(ctx, tenantID, prev.ID, now); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	if err := h.store.SaveRuleVersion(ctx, tenantID, rv); err != nil {
		writeError(w, err)
		return
	}

	h.coord.InvalidateRules(ctx, tenantID)

	slog.Info("rule version created",
		"tenant_id", tenantID,
		"template_id", rv.TemplateID,
		"version", rv.Version,
		"rule_version_id", rv.ID,
	)
	writeJSON(w, http.StatusCreated, rv)
}

// ListRuleVersions returns all versions of a template, newest first.
func (h *Handler) ListRuleVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "templateId")

	versions, err := h.store.ListRuleVersions(ctx, tenantID, templateID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"versions": versions,
		"count":    len(versions),
	})
}

// GetRuleVersion retrieves one rule version by ID.
func (h *Handler) GetRuleVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	rv, err := h.store.GetRuleVersion(ctx, tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rv)
}

// DeactivateRuleVersion closes a version's activation interval. The
// rule-set cache is invalidated before the write is acknowledged so the
// version cannot match transactions evaluated after this call returns.
func (h *Handler) DeactivateRuleVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	if err := h.store.DeactivateRuleVersion(ctx, tenantID, id, time.Now().UTC()); err != nil {
		writeError(w, err)
		return
	}

	h.coord.InvalidateRules(ctx, tenantID)

	slog.Info("rule version deactivated",
		"tenant_id", tenantID,
		"rule_version_id", id,
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": "deactivated",
	})
}
