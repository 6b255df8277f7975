package signature

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
)

// Service manages signature rules, requests and signature state
// transitions, re-evaluating request satisfaction after every change.
type Service struct {
	store domain.Store
	bus   domain.EventBus
}

// NewService wires the signature service.
func NewService(store domain.Store, bus domain.EventBus) *Service {
	return &Service{store: store, bus: bus}
}

// CreateRule validates and persists a signature rule.
func (s *Service) CreateRule(ctx context.Context, tenantID string, rule *domain.SignatureRule) (*domain.SignatureRule, error) {
	if rule.Schema == "" || rule.Faculty == "" {
		return nil, domain.NewValidationError("schema", "schema and faculty are required")
	}
	if err := ValidateDefinition(rule.Definition); err != nil {
		return nil, err
	}

	rule.ID = uuid.New().String()
	rule.TenantID = tenantID
	rule.Active = true
	rule.CreatedAt = time.Now().UTC()
	if err := s.store.SaveSignatureRule(ctx, tenantID, rule); err != nil {
		return nil, fmt.Errorf("save signature rule: %w", err)
	}
	return rule, nil
}

// CreateGroup persists a signer group.
func (s *Service) CreateGroup(ctx context.Context, tenantID string, group *domain.SignerGroup) (*domain.SignerGroup, error) {
	if group.Name == "" {
		return nil, domain.NewValidationError("name", "group name is required")
	}
	group.ID = uuid.New().String()
	group.TenantID = tenantID
	if err := s.store.SaveSignerGroup(ctx, tenantID, group); err != nil {
		return nil, fmt.Errorf("save signer group: %w", err)
	}
	return group, nil
}

// CreateSigner persists a signer and its group memberships.
func (s *Service) CreateSigner(ctx context.Context, tenantID string, signer *domain.Signer) (*domain.Signer, error) {
	if signer.Name == "" {
		return nil, domain.NewValidationError("name", "signer name is required")
	}
	signer.ID = uuid.New().String()
	signer.TenantID = tenantID
	if err := s.store.SaveSigner(ctx, tenantID, signer); err != nil {
		return nil, fmt.Errorf("save signer: %w", err)
	}
	return signer, nil
}

// CreateRequest opens a pending signature request against a rule.
func (s *Service) CreateRequest(ctx context.Context, tenantID, ruleID string) (*domain.SignatureRequest, error) {
	if _, err := s.store.GetSignatureRule(ctx, tenantID, ruleID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	req := &domain.SignatureRequest{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		RuleID:    ruleID,
		Status:    domain.RequestPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveSignatureRequest(ctx, tenantID, req); err != nil {
		return nil, fmt.Errorf("save signature request: %w", err)
	}
	metrics.SignatureRequestStatus(tenantID, req.Status)
	return req, nil
}

// AddSignature attaches a pending signature for a signer to a request.
// Only pending requests accept new signatures.
func (s *Service) AddSignature(ctx context.Context, tenantID, requestID, signerID string) (*domain.Signature, error) {
	req, err := s.store.GetSignatureRequest(ctx, tenantID, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestPending {
		return nil, &domain.StateConflictError{Entity: "signature request", ID: req.ID, State: req.Status}
	}
	if _, err := s.store.GetSigner(ctx, tenantID, signerID); err != nil {
		return nil, err
	}

	sig := &domain.Signature{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		RequestID: requestID,
		SignerID:  signerID,
		Status:    domain.SignaturePending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveSignature(ctx, tenantID, sig); err != nil {
		return nil, fmt.Errorf("save signature: %w", err)
	}
	return sig, nil
}

// Sign completes a pending signature and re-evaluates its request.
// Signing a non-pending signature is a state conflict, never a no-op.
func (s *Service) Sign(ctx context.Context, tenantID, signatureID string) (*domain.SignatureRequest, error) {
	return s.transition(ctx, tenantID, signatureID, (*domain.Signature).Sign)
}

// Reject rejects a pending signature. A single rejection rejects the
// whole request.
func (s *Service) Reject(ctx context.Context, tenantID, signatureID string) (*domain.SignatureRequest, error) {
	return s.transition(ctx, tenantID, signatureID, (*domain.Signature).Reject)
}

func (s *Service) transition(ctx context.Context, tenantID, signatureID string, apply func(*domain.Signature) error) (*domain.SignatureRequest, error) {
	sig, err := s.store.GetSignature(ctx, tenantID, signatureID)
	if err != nil {
		return nil, err
	}
	if err := apply(sig); err != nil {
		return nil, err
	}
	if err := s.store.UpdateSignature(ctx, tenantID, sig); err != nil {
		return nil, fmt.Errorf("update signature: %w", err)
	}
	return s.EvaluateRequest(ctx, tenantID, sig.RequestID)
}

// EvaluateRequest recomputes a request's status from its signatures: any
// rejected signature rejects the request; otherwise the request is
// satisfied exactly when the signed signatures satisfy the rule tree.
// Terminal statuses never regress.
func (s *Service) EvaluateRequest(ctx context.Context, tenantID, requestID string) (*domain.SignatureRequest, error) {
	req, err := s.store.GetSignatureRequest(ctx, tenantID, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestPending {
		return req, nil
	}

	rule, err := s.store.GetSignatureRule(ctx, tenantID, req.RuleID)
	if err != nil {
		return nil, err
	}
	sigs, err := s.store.GetSignaturesByRequest(ctx, tenantID, requestID)
	if err != nil {
		return nil, err
	}

	next := domain.RequestPending
	for _, sig := range sigs {
		if sig.Status == domain.SignatureRejected {
			next = domain.RequestRejected
			break
		}
	}

	if next == domain.RequestPending {
		signers := make(map[string]*domain.Signer)
		for _, sig := range sigs {
			if _, ok := signers[sig.SignerID]; ok {
				continue
			}
			signer, err := s.store.GetSigner(ctx, tenantID, sig.SignerID)
			if err != nil {
				return nil, err
			}
			signers[sig.SignerID] = signer
		}
		if Satisfied(rule.Definition, CollectCounts(sigs, signers)) {
			next = domain.RequestSatisfied
		}
	}

	if next == req.Status {
		return req, nil
	}

	req.Status = next
	req.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateSignatureRequest(ctx, tenantID, req); err != nil {
		return nil, fmt.Errorf("update signature request: %w", err)
	}
	metrics.SignatureRequestStatus(tenantID, next)

	if next == domain.RequestSatisfied {
		s.publishCompleted(tenantID, req)
	}
	return req, nil
}

// PossibleCombinations enumerates a rule's minimal satisfying
// combinations for clients that plan signer collection ahead of time.
func (s *Service) PossibleCombinations(ctx context.Context, tenantID, ruleID string) ([]domain.GroupCount, error) {
	rule, err := s.store.GetSignatureRule(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	return Combinations(rule.Definition), nil
}

func (s *Service) publishCompleted(tenantID string, req *domain.SignatureRequest) {
	payload, err := json.Marshal(req)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.bus.Publish(ctx, tenantID, domain.TopicSignatureCompleted, payload); err != nil {
		slog.Warn("signature completion publish failed",
			"tenant_id", tenantID, "request_id", req.ID, "error", err)
	}
}
