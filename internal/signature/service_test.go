package signature

import (
	"context"
	"sync"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

type fakeStore struct {
	domain.Store
	mu       sync.Mutex
	rules    map[string]*domain.SignatureRule
	groups   map[string]*domain.SignerGroup
	signers  map[string]*domain.Signer
	requests map[string]*domain.SignatureRequest
	sigs     map[string]*domain.Signature
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rules:    make(map[string]*domain.SignatureRule),
		groups:   make(map[string]*domain.SignerGroup),
		signers:  make(map[string]*domain.Signer),
		requests: make(map[string]*domain.SignatureRequest),
		sigs:     make(map[string]*domain.Signature),
	}
}

func (f *fakeStore) SaveSignatureRule(ctx context.Context, tenantID string, r *domain.SignatureRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[r.ID] = r
	return nil
}

func (f *fakeStore) GetSignatureRule(ctx context.Context, tenantID, id string) (*domain.SignatureRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[id]
	if !ok || r.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) SaveSignerGroup(ctx context.Context, tenantID string, g *domain.SignerGroup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[g.ID] = g
	return nil
}

func (f *fakeStore) SaveSigner(ctx context.Context, tenantID string, s *domain.Signer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signers[s.ID] = s
	return nil
}

func (f *fakeStore) GetSigner(ctx context.Context, tenantID, id string) (*domain.Signer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.signers[id]
	if !ok || s.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) SaveSignatureRequest(ctx context.Context, tenantID string, r *domain.SignatureRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[r.ID] = r
	return nil
}

func (f *fakeStore) GetSignatureRequest(ctx context.Context, tenantID, id string) (*domain.SignatureRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) UpdateSignatureRequest(ctx context.Context, tenantID string, r *domain.SignatureRequest) error {
	return f.SaveSignatureRequest(ctx, tenantID, r)
}

func (f *fakeStore) SaveSignature(ctx context.Context, tenantID string, s *domain.Signature) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sigs[s.ID] = s
	return nil
}

func (f *fakeStore) GetSignature(ctx context.Context, tenantID, id string) (*domain.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sigs[id]
	if !ok || s.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) GetSignaturesByRequest(ctx context.Context, tenantID, requestID string) ([]*domain.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Signature
	for _, s := range f.sigs {
		if s.TenantID == tenantID && s.RequestID == requestID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateSignature(ctx context.Context, tenantID string, s *domain.Signature) error {
	return f.SaveSignature(ctx, tenantID, s)
}

type noopBus struct{}

func (noopBus) Publish(ctx context.Context, tenantID, topic string, payload []byte) error { return nil }
func (noopBus) Subscribe(ctx context.Context, tenantID, topic string, h domain.MessageHandler) (domain.Subscription, error) {
	return nil, nil
}
func (noopBus) Ping(ctx context.Context) error { return nil }
func (noopBus) Close() error                   { return nil }

// setup creates a rule requiring one director and one auditor, a signer
// in each group and an open request.
func setup(t *testing.T) (*Service, *fakeStore, *domain.SignatureRequest, *domain.Signer, *domain.Signer) {
	t.Helper()
	store := newFakeStore()
	svc := NewService(store, noopBus{})
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, "org-1", &domain.SignatureRule{
		Schema:  "payments",
		Faculty: "approve",
		Definition: &domain.SignatureNode{
			All: []domain.SignatureNode{
				{Group: "directors", Min: 1},
				{Group: "auditors", Min: 1},
			},
		},
	})
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	director, err := svc.CreateSigner(ctx, "org-1", &domain.Signer{Name: "dana", GroupIDs: []string{"directors"}})
	if err != nil {
		t.Fatal(err)
	}
	auditor, err := svc.CreateSigner(ctx, "org-1", &domain.Signer{Name: "avery", GroupIDs: []string{"auditors"}})
	if err != nil {
		t.Fatal(err)
	}

	req, err := svc.CreateRequest(ctx, "org-1", rule.ID)
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	return svc, store, req, director, auditor
}

func TestRequestSatisfiedWhenCombinationComplete(t *testing.T) {
	svc, _, req, director, auditor := setup(t)
	ctx := context.Background()

	s1, err := svc.AddSignature(ctx, "org-1", req.ID, director.ID)
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Sign(ctx, "org-1", s1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RequestPending {
		t.Errorf("one of two signatures should leave the request pending, got %s", got.Status)
	}

	s2, err := svc.AddSignature(ctx, "org-1", req.ID, auditor.ID)
	if err != nil {
		t.Fatal(err)
	}
	got, err = svc.Sign(ctx, "org-1", s2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RequestSatisfied {
		t.Errorf("expected SATISFIED, got %s", got.Status)
	}
}

func TestRejectionRejectsRequest(t *testing.T) {
	svc, _, req, director, _ := setup(t)
	ctx := context.Background()

	sig, err := svc.AddSignature(ctx, "org-1", req.ID, director.ID)
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Reject(ctx, "org-1", sig.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RequestRejected {
		t.Errorf("expected REJECTED, got %s", got.Status)
	}

	// Terminal requests accept no further signatures.
	if _, err := svc.AddSignature(ctx, "org-1", req.ID, director.ID); !domain.IsStateConflict(err) {
		t.Errorf("expected StateConflictError, got %v", err)
	}
}

func TestDoubleSignIsConflict(t *testing.T) {
	svc, _, req, director, _ := setup(t)
	ctx := context.Background()

	sig, err := svc.AddSignature(ctx, "org-1", req.ID, director.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Sign(ctx, "org-1", sig.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Sign(ctx, "org-1", sig.ID); !domain.IsStateConflict(err) {
		t.Errorf("signing twice must conflict, got %v", err)
	}
	if _, err := svc.Reject(ctx, "org-1", sig.ID); !domain.IsStateConflict(err) {
		t.Errorf("rejecting a signed signature must conflict, got %v", err)
	}
}

func TestSameSignerCountsOncePerGroup(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, noopBus{})
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, "org-1", &domain.SignatureRule{
		Schema:     "payments",
		Faculty:    "approve",
		Definition: &domain.SignatureNode{Group: "directors", Min: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	director, _ := svc.CreateSigner(ctx, "org-1", &domain.Signer{Name: "dana", GroupIDs: []string{"directors"}})
	req, _ := svc.CreateRequest(ctx, "org-1", rule.ID)

	s1, _ := svc.AddSignature(ctx, "org-1", req.ID, director.ID)
	s2, _ := svc.AddSignature(ctx, "org-1", req.ID, director.ID)
	svc.Sign(ctx, "org-1", s1.ID)
	got, err := svc.Sign(ctx, "org-1", s2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RequestPending {
		t.Errorf("one signer signing twice must not satisfy min 2, got %s", got.Status)
	}
}

func TestCreateRuleValidatesDefinition(t *testing.T) {
	svc := NewService(newFakeStore(), noopBus{})
	_, err := svc.CreateRule(context.Background(), "org-1", &domain.SignatureRule{
		Schema:     "payments",
		Faculty:    "approve",
		Definition: &domain.SignatureNode{Group: "directors", Min: 0},
	})
	if !domain.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestPossibleCombinations(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, noopBus{})
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, "org-1", &domain.SignatureRule{
		Schema:  "payments",
		Faculty: "approve",
		Definition: &domain.SignatureNode{
			Any: []domain.SignatureNode{
				{Group: "A", Min: 1},
				{Group: "B", Min: 2},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	combos, err := svc.PossibleCombinations(ctx, "org-1", rule.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.GroupCount{{"A": 1}, {"B": 2}}
	if !combosEqual(combos, want) {
		t.Errorf("got %v, want %v", combos, want)
	}
}
