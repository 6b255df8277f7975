package signature

import (
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func leaf(group string, min int) domain.SignatureNode {
	return domain.SignatureNode{Group: group, Min: min}
}

func TestSatisfiedLeaf(t *testing.T) {
	node := leaf("directors", 2)

	if Satisfied(&node, domain.GroupCount{"directors": 1}) {
		t.Error("one signer should not satisfy min 2")
	}
	if !Satisfied(&node, domain.GroupCount{"directors": 2}) {
		t.Error("two signers should satisfy min 2")
	}
	if !Satisfied(&node, domain.GroupCount{"directors": 3}) {
		t.Error("surplus signers should satisfy")
	}
}

func TestSatisfiedCombinators(t *testing.T) {
	node := &domain.SignatureNode{
		All: []domain.SignatureNode{
			leaf("directors", 1),
			{Any: []domain.SignatureNode{
				leaf("auditors", 1),
				leaf("officers", 2),
			}},
		},
	}

	cases := []struct {
		name   string
		counts domain.GroupCount
		want   bool
	}{
		{"director plus auditor", domain.GroupCount{"directors": 1, "auditors": 1}, true},
		{"director plus two officers", domain.GroupCount{"directors": 1, "officers": 2}, true},
		{"director alone", domain.GroupCount{"directors": 1}, false},
		{"director plus one officer", domain.GroupCount{"directors": 1, "officers": 1}, false},
		{"auditor without director", domain.GroupCount{"auditors": 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Satisfied(node, tc.counts); got != tc.want {
				t.Errorf("Satisfied(%v) = %v, want %v", tc.counts, got, tc.want)
			}
		})
	}
}

func TestCollectCountsDistinctSigners(t *testing.T) {
	signers := map[string]*domain.Signer{
		"s1": {ID: "s1", GroupIDs: []string{"directors"}},
		"s2": {ID: "s2", GroupIDs: []string{"directors", "auditors"}},
		"s3": {ID: "s3", GroupIDs: []string{"auditors"}},
	}
	sigs := []*domain.Signature{
		{SignerID: "s1", Status: domain.SignatureSigned},
		{SignerID: "s1", Status: domain.SignatureSigned}, // duplicate, counts once
		{SignerID: "s2", Status: domain.SignatureSigned},
		{SignerID: "s3", Status: domain.SignaturePending}, // not signed
	}

	counts := CollectCounts(sigs, signers)
	if counts["directors"] != 2 {
		t.Errorf("expected 2 distinct directors, got %d", counts["directors"])
	}
	// s2 belongs to both groups and counts in each.
	if counts["auditors"] != 1 {
		t.Errorf("expected 1 auditor, got %d", counts["auditors"])
	}
}

func TestValidateDefinition(t *testing.T) {
	t.Run("valid tree", func(t *testing.T) {
		node := &domain.SignatureNode{
			Any: []domain.SignatureNode{
				leaf("directors", 2),
				{All: []domain.SignatureNode{leaf("officers", 1), leaf("auditors", 1)}},
			},
		}
		if err := ValidateDefinition(node); err != nil {
			t.Errorf("expected valid, got %v", err)
		}
	})

	t.Run("nil tree", func(t *testing.T) {
		if err := ValidateDefinition(nil); !domain.IsValidation(err) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})

	t.Run("zero min", func(t *testing.T) {
		node := leaf("directors", 0)
		if err := ValidateDefinition(&node); !domain.IsValidation(err) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})

	t.Run("missing group", func(t *testing.T) {
		node := domain.SignatureNode{Min: 1}
		if err := ValidateDefinition(&node); !domain.IsValidation(err) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})

	t.Run("mixed node", func(t *testing.T) {
		node := &domain.SignatureNode{
			All:   []domain.SignatureNode{leaf("directors", 1)},
			Group: "auditors",
			Min:   1,
		}
		if err := ValidateDefinition(node); !domain.IsValidation(err) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})
}
