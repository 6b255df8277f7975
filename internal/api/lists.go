package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/lists"
)

// CreateListRequest is the request body for POST /lists.
type CreateListRequest struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	EntityType string `json:"entityType"`
}

// CreateList creates a compliance list.
func (h *Handler) CreateList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Code == "" {
		writeError(w, domain.NewValidationError("code", "code is required"))
		return
	}
	if req.Kind != domain.ListBlacklist && req.Kind != domain.ListWhitelist {
		writeError(w, domain.NewValidationError("kind", "kind must be BLACKLIST or WHITELIST"))
		return
	}
	if !lists.KnownEntityType(req.EntityType) {
		writeError(w, domain.NewValidationError("entityType", "unknown entity type "+req.EntityType))
		return
	}

	list := &domain.ComplianceList{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Code:       req.Code,
		Name:       req.Name,
		Kind:       req.Kind,
		EntityType: strings.ToUpper(req.EntityType),
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.store.SaveList(ctx, tenantID, list); err != nil {
		writeError(w, err)
		return
	}

	h.coord.InvalidateLists(ctx, tenantID)

	slog.Info("compliance list created",
		"tenant_id", tenantID,
		"code", list.Code,
		"kind", list.Kind,
	)
	writeJSON(w, http.StatusCreated, list)
}

// ListLists returns the tenant's active compliance lists.
func (h *Handler) ListLists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	all, err := h.store.ListLists(ctx, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lists": all,
		"count": len(all),
	})
}

// GetList retrieves one list by code.
func (h *Handler) GetList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	code := chi.URLParam(r, "code")

	list, err := h.store.GetListByCode(ctx, tenantID, code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// DeleteList soft-deletes a list. The list-fact cache is invalidated
// before the write is acknowledged: entries of a deleted list must not
// match any evaluation started after this call returns.
func (h *Handler) DeleteList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	code := chi.URLParam(r, "code")

	if err := h.store.DeleteList(ctx, tenantID, code); err != nil {
		writeError(w, err)
		return
	}

	h.coord.InvalidateLists(ctx, tenantID)

	slog.Info("compliance list deleted", "tenant_id", tenantID, "code", code)
	writeJSON(w, http.StatusOK, map[string]string{
		"code":   code,
		"status": "deleted",
	})
}

// AddListEntryRequest is the request body for adding a list entry.
type AddListEntryRequest struct {
	Value    string         `json:"value"`
	Label    string         `json:"label,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AddListEntry adds one entry to a list.
func (h *Handler) AddListEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	code := chi.URLParam(r, "code")

	var req AddListEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Value == "" {
		writeError(w, domain.NewValidationError("value", "value is required"))
		return
	}

	list, err := h.store.GetListByCode(ctx, tenantID, code)
	if err != nil {
		writeError(w, err)
		return
	}

	entry := &domain.ComplianceListEntry{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		ListID:    list.ID,
		Value:     req.Value,
		Label:     req.Label,
		Metadata:  req.Metadata,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.SaveListEntry(ctx, tenantID, entry); err != nil {
		writeError(w, err)
		return
	}

	h.coord.InvalidateLists(ctx, tenantID)

	writeJSON(w, http.StatusCreated, entry)
}

// RemoveListEntry soft-deletes one entry by value.
func (h *Handler) RemoveListEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	code := chi.URLParam(r, "code")
	value := chi.URLParam(r, "value")

	list, err := h.store.GetListByCode(ctx, tenantID, code)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.DeleteListEntry(ctx, tenantID, list.ID, value); err != nil {
		writeError(w, err)
		return
	}

	h.coord.InvalidateLists(ctx, tenantID)

	writeJSON(w, http.StatusOK, map[string]string{
		"value":  value,
		"status": "deleted",
	})
}
