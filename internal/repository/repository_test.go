package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

func newTestRepo(t *testing.T) domain.Store {
	t.Helper()
	repo, err := New(domain.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "harrier_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tx := &domain.Transaction{
		ID:             "tx-1",
		TenantID:       "org-1",
		AccountID:      "acc-1",
		Type:           "transfer",
		Amount:         decimal.RequireFromString("10000.01"),
		Currency:       "USD",
		BaseAmount:     decimal.RequireFromString("10000.01"),
		BaseCurrency:   "USD",
		CounterpartyID: "cp-1",
		Country:        "FR",
		Timestamp:      base,
		CreatedAt:      base,
		Metadata:       map[string]any{"channel_ref": "abc"},
	}

	t.Run("save and get", func(t *testing.T) {
		if err := repo.SaveTransaction(ctx, "org-1", tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		got, err := repo.GetTransaction(ctx, "org-1", "tx-1")
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if !got.Amount.Equal(tx.Amount) {
			t.Errorf("amount lost precision: %s != %s", got.Amount, tx.Amount)
		}
		if got.Country != "FR" || got.Metadata["channel_ref"] != "abc" {
			t.Errorf("round trip corrupted: %+v", got)
		}
	})

	t.Run("tenant isolation", func(t *testing.T) {
		if _, err := repo.GetTransaction(ctx, "org-2", "tx-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for other tenant, got %v", err)
		}
	})

	t.Run("range query is half open", func(t *testing.T) {
		early := &domain.Transaction{
			ID: "tx-early", TenantID: "org-1", AccountID: "acc-1", Type: "transfer",
			Amount: decimal.NewFromInt(1), BaseAmount: decimal.NewFromInt(1), Currency: "USD",
			Timestamp: base.Add(-time.Hour), CreatedAt: base,
		}
		if err := repo.SaveTransaction(ctx, "org-1", early); err != nil {
			t.Fatal(err)
		}

		// [base-1h, base): the lower bound row is included, the upper excluded.
		got, err := repo.QueryTransactions(ctx, "org-1", "acc-1", base.Add(-time.Hour), base)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID != "tx-early" {
			t.Errorf("expected only tx-early in window, got %d rows", len(got))
		}
	})

	t.Run("missing transaction", func(t *testing.T) {
		if _, err := repo.GetTransaction(ctx, "org-1", "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRuleVersions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	rv := &domain.RuleVersion{
		ID:         "rv-1",
		TenantID:   "org-1",
		TemplateID: "tpl-1",
		Version:    1,
		Name:       "high value",
		Conditions: &domain.Condition{Fact: "amount", Operator: "greaterThan", Value: float64(10000)},
		Actions: []domain.RuleAction{
			{Type: domain.ActionSetDecision, Decision: domain.DecisionBlock},
		},
		Window:      &domain.Window{Duration: 24, Unit: "hours"},
		Priority:    10,
		Enabled:     true,
		ActivatedAt: base,
		CreatedAt:   base,
	}
	if err := repo.SaveRuleVersion(ctx, "org-1", rv); err != nil {
		t.Fatalf("SaveRuleVersion failed: %v", err)
	}

	t.Run("round trip", func(t *testing.T) {
		got, err := repo.GetRuleVersion(ctx, "org-1", "rv-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Conditions == nil || got.Conditions.Fact != "amount" {
			t.Errorf("conditions lost: %+v", got.Conditions)
		}
		if got.Window == nil || got.Window.Duration != 24 {
			t.Errorf("window lost: %+v", got.Window)
		}
		if len(got.Actions) != 1 || got.Actions[0].Decision != domain.DecisionBlock {
			t.Errorf("actions lost: %+v", got.Actions)
		}
	})

	t.Run("active set ordering", func(t *testing.T) {
		rv2 := *rv
		rv2.ID = "rv-2"
		rv2.TemplateID = "tpl-2"
		rv2.Priority = 100
		if err := repo.SaveRuleVersion(ctx, "org-1", &rv2); err != nil {
			t.Fatal(err)
		}

		active, err := repo.GetActiveRuleVersions(ctx, "org-1", base.Add(time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if len(active) != 2 || active[0].ID != "rv-2" {
			t.Errorf("expected priority-descending order, got %+v", active)
		}
	})

	t.Run("not yet activated excluded", func(t *testing.T) {
		active, err := repo.GetActiveRuleVersions(ctx, "org-1", base.Add(-time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if len(active) != 0 {
			t.Errorf("nothing should be active before activation, got %d", len(active))
		}
	})

	t.Run("deactivate closes interval", func(t *testing.T) {
		at := base.Add(2 * time.Hour)
		if err := repo.DeactivateRuleVersion(ctx, "org-1", "rv-1", at); err != nil {
			t.Fatal(err)
		}

		active, err := repo.GetActiveRuleVersions(ctx, "org-1", at.Add(time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		for _, got := range active {
			if got.ID == "rv-1" {
				t.Error("deactivated version still active")
			}
		}

		// Deactivating twice finds no open interval.
		if err := repo.DeactivateRuleVersion(ctx, "org-1", "rv-1", at); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("list versions newest first", func(t *testing.T) {
		versions, err := repo.ListRuleVersions(ctx, "org-1", "tpl-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(versions) != 1 || versions[0].ID != "rv-1" {
			t.Errorf("unexpected versions: %+v", versions)
		}
	})
}

func TestAlertsAndEvaluations(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	alert := &domain.Alert{
		ID: "al-1", TenantID: "org-1", TxID: "tx-1", RuleVersionID: "rv-1",
		Severity: domain.SeverityHigh, Category: "velocity", Message: "too fast",
		Status: domain.AlertOpen, CreatedAt: now, UpdatedAt: now,
	}
	if _, err := repo.InsertAlert(ctx, "org-1", alert); err != nil {
		t.Fatalf("InsertAlert failed: %v", err)
	}

	t.Run("alert status transition persists", func(t *testing.T) {
		got, err := repo.GetAlert(ctx, "org-1", "al-1")
		if err != nil {
			t.Fatal(err)
		}
		if err := got.TransitionTo(domain.AlertAcknowledged); err != nil {
			t.Fatal(err)
		}
		if err := repo.UpdateAlertStatus(ctx, "org-1", got); err != nil {
			t.Fatal(err)
		}

		again, err := repo.GetAlert(ctx, "org-1", "al-1")
		if err != nil {
			t.Fatal(err)
		}
		if again.Status != domain.AlertAcknowledged {
			t.Errorf("status not persisted: %s", again.Status)
		}
	})

	t.Run("evaluation round trip", func(t *testing.T) {
		eval := &domain.Evaluation{
			ID: "ev-1", TenantID: "org-1", TxID: "tx-1",
			Decision:         domain.DecisionReview,
			TriggeredRuleIDs: []string{"rv-1"},
			AlertIDs:         []string{"al-1"},
			Partial:          true,
			Timestamp:        now,
			RuleResults: []domain.RuleOutcome{
				{RuleVersionID: "rv-1", Matched: true, Decision: domain.DecisionReview},
			},
			Metadata: domain.EvaluationMetadata{RulesEvaluated: 1, EngineVersion: "1.0.0"},
		}
		if err := repo.SaveEvaluation(ctx, "org-1", eval); err != nil {
			t.Fatal(err)
		}

		got, err := repo.GetEvaluation(ctx, "org-1", "ev-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Decision != domain.DecisionReview || !got.Partial {
			t.Errorf("round trip corrupted: %+v", got)
		}
		if len(got.RuleResults) != 1 || !got.RuleResults[0].Matched {
			t.Errorf("rule results lost: %+v", got.RuleResults)
		}
	})
}

func TestComplianceLists(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	list := &domain.ComplianceList{
		ID: "l-1", TenantID: "org-1", Code: "sanctioned", Name: "Sanctioned countries",
		Kind: domain.ListBlacklist, EntityType: domain.EntityCountry, CreatedAt: now,
	}
	if err := repo.SaveList(ctx, "org-1", list); err != nil {
		t.Fatalf("SaveList failed: %v", err)
	}
	entry := &domain.ComplianceListEntry{
		ID: "e-1", TenantID: "org-1", ListID: "l-1", Value: "IR",
		Metadata: map[string]any{"reason": "sanctions"}, CreatedAt: now,
	}
	if err := repo.SaveListEntry(ctx, "org-1", entry); err != nil {
		t.Fatalf("SaveListEntry failed: %v", err)
	}

	t.Run("membership query", func(t *testing.T) {
		matches, err := repo.QueryListEntries(ctx, "org-1", domain.EntityCountry, "IR")
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 1 || !matches[0].Matched || matches[0].ListCode != "sanctioned" {
			t.Errorf("expected one match, got %+v", matches)
		}
		if matches[0].EntryMetadata["reason"] != "sanctions" {
			t.Errorf("entry metadata lost: %+v", matches[0].EntryMetadata)
		}
	})

	t.Run("case sensitive exact match", func(t *testing.T) {
		matches, err := repo.QueryListEntries(ctx, "org-1", domain.EntityCountry, "ir")
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 0 {
			t.Errorf("lowercase must not match: %+v", matches)
		}
	})

	t.Run("entry soft delete", func(t *testing.T) {
		if err := repo.DeleteListEntry(ctx, "org-1", "l-1", "IR"); err != nil {
			t.Fatal(err)
		}
		matches, _ := repo.QueryListEntries(ctx, "org-1", domain.EntityCountry, "IR")
		if len(matches) != 0 {
			t.Errorf("deleted entry still matches: %+v", matches)
		}
	})

	t.Run("list soft delete", func(t *testing.T) {
		entry2 := &domain.ComplianceListEntry{
			ID: "e-2", TenantID: "org-1", ListID: "l-1", Value: "KP", CreatedAt: now,
		}
		if err := repo.SaveListEntry(ctx, "org-1", entry2); err != nil {
			t.Fatal(err)
		}
		if err := repo.DeleteList(ctx, "org-1", "sanctioned"); err != nil {
			t.Fatal(err)
		}

		if _, err := repo.GetListByCode(ctx, "org-1", "sanctioned"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("deleted list should be gone, got %v", err)
		}
		matches, _ := repo.QueryListEntries(ctx, "org-1", domain.EntityCountry, "KP")
		if len(matches) != 0 {
			t.Errorf("entries of a deleted list still match: %+v", matches)
		}
	})
}

func TestSignatureEntities(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	rule := &domain.SignatureRule{
		ID: "sr-1", TenantID: "org-1", Schema: "payments", Faculty: "approve",
		Definition: &domain.SignatureNode{
			All: []domain.SignatureNode{
				{Group: "directors", Min: 1},
				{Group: "auditors", Min: 1},
			},
		},
		Active: true, CreatedAt: now,
	}
	if err := repo.SaveSignatureRule(ctx, "org-1", rule); err != nil {
		t.Fatalf("SaveSignatureRule failed: %v", err)
	}

	t.Run("rule definition round trip", func(t *testing.T) {
		got, err := repo.GetSignatureRule(ctx, "org-1", "sr-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Definition == nil || len(got.Definition.All) != 2 {
			t.Errorf("definition lost: %+v", got.Definition)
		}
	})

	t.Run("signer group memberships", func(t *testing.T) {
		signer := &domain.Signer{
			ID: "s-1", TenantID: "org-1", Name: "dana",
			GroupIDs: []string{"directors", "auditors"},
		}
		if err := repo.SaveSigner(ctx, "org-1", signer); err != nil {
			t.Fatal(err)
		}
		got, err := repo.GetSigner(ctx, "org-1", "s-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(got.GroupIDs) != 2 {
			t.Errorf("group memberships lost: %+v", got.GroupIDs)
		}
	})

	t.Run("request and signature lifecycle", func(t *testing.T) {
		req := &domain.SignatureRequest{
			ID: "req-1", TenantID: "org-1", RuleID: "sr-1",
			Status: domain.RequestPending, CreatedAt: now, UpdatedAt: now,
		}
		if err := repo.SaveSignatureRequest(ctx, "org-1", req); err != nil {
			t.Fatal(err)
		}

		sig := &domain.Signature{
			ID: "sig-1", TenantID: "org-1", RequestID: "req-1", SignerID: "s-1",
			Status: domain.SignaturePending, CreatedAt: now,
		}
		if err := repo.SaveSignature(ctx, "org-1", sig); err != nil {
			t.Fatal(err)
		}

		if err := sig.Sign(); err != nil {
			t.Fatal(err)
		}
		if err := repo.UpdateSignature(ctx, "org-1", sig); err != nil {
			t.Fatal(err)
		}

		sigs, err := repo.GetSignaturesByRequest(ctx, "org-1", "req-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(sigs) != 1 || sigs[0].Status != domain.SignatureSigned || sigs[0].SignedAt == nil {
			t.Errorf("signature state lost: %+v", sigs[0])
		}

		req.Status = domain.RequestSatisfied
		req.UpdatedAt = now.Add(time.Minute)
		if err := repo.UpdateSignatureRequest(ctx, "org-1", req); err != nil {
			t.Fatal(err)
		}
		got, err := repo.GetSignatureRequest(ctx, "org-1", "req-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != domain.RequestSatisfied {
			t.Errorf("request status lost: %s", got.Status)
		}
	})

	t.Run("tenant isolation", func(t *testing.T) {
		if _, err := repo.GetSignatureRule(ctx, "org-2", "sr-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for other tenant, got %v", err)
		}
	})
}
