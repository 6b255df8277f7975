package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/harrier/internal/domain"
)

// CreateSignatureRuleRequest is the request body for POST /signatures/rules.
type CreateSignatureRuleRequest struct {
	Schema     string                `json:"schema"`
	Faculty    string                `json:"faculty"`
	Definition *domain.SignatureNode `json:"ruleDefinition"`
	Priority   int                   `json:"priority"`
}

// CreateSignatureRule creates a signature rule.
func (h *Handler) CreateSignatureRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateSignatureRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	rule, err := h.signatures.CreateRule(ctx, tenantID, &domain.SignatureRule{
		Schema:     req.Schema,
		Faculty:    req.Faculty,
		Definition: req.Definition,
		Priority:   req.Priority,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

// GetSignatureRule retrieves a signature rule by ID.
func (h *Handler) GetSignatureRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	rule, err := h.store.GetSignatureRule(ctx, tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// GetCombinations returns the minimal satisfying group combinations
// for a signature rule.
func (h *Handler) GetCombinations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	combos, err := h.signatures.PossibleCombinations(ctx, tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ruleId":       id,
		"combinations": combos,
	})
}

// CreateSignerGroup creates a signer group.
func (h *Handler) CreateSignerGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	group, err := h.signatures.CreateGroup(ctx, tenantID, &domain.SignerGroup{
		Name: req.Name,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

// CreateSigner creates a signer with group memberships.
func (h *Handler) CreateSigner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req struct {
		Name     string   `json:"name"`
		GroupIDs []string `json:"groupIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	signer, err := h.signatures.CreateSigner(ctx, tenantID, &domain.Signer{
		Name:     req.Name,
		GroupIDs: req.GroupIDs,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, signer)
}

// CreateSignatureRequest opens a signature request against a rule.
func (h *Handler) CreateSignatureRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req struct {
		RuleID string `json:"ruleId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	sigReq, err := h.signatures.CreateRequest(ctx, tenantID, req.RuleID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sigReq)
}

// GetSignatureRequest retrieves a signature request with its signatures.
func (h *Handler) GetSignatureRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	req, err := h.store.GetSignatureRequest(ctx, tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	sigs, err := h.store.GetSignaturesByRequest(ctx, tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"request":    req,
		"signatures": sigs,
	})
}

// AddSignature attaches a pending signature to an open request.
func (h *Handler) AddSignature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	requestID := chi.URLParam(r, "id")

	var req struct {
		SignerID string `json:"signerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	sig, err := h.signatures.AddSignature(ctx, tenantID, requestID, req.SignerID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sig)
}

// SignSignature completes a pending signature and re-evaluates the
// request, which may transition it to SATISFIED.
func (h *Handler) SignSignature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	req, err := h.signatures.Sign(ctx, tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// RejectSignature rejects a pending signature, which rejects the
// whole request.
func (h *Handler) RejectSignature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	req, err := h.signatures.Reject(ctx, tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}
