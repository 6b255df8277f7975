package signature

import (
	"reflect"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func combosEqual(got, want []domain.GroupCount) bool {
	if len(got) != len(want) {
		return false
	}
	used := make([]bool, len(want))
	for _, g := range got {
		found := false
		for i, w := range want {
			if !used[i] && reflect.DeepEqual(g, w) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestCombinationsLeaf(t *testing.T) {
	node := leaf("directors", 2)
	got := Combinations(&node)
	want := []domain.GroupCount{{"directors": 2}}
	if !combosEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCombinationsAny(t *testing.T) {
	node := &domain.SignatureNode{
		Any: []domain.SignatureNode{leaf("A", 1), leaf("B", 2)},
	}
	got := Combinations(node)
	want := []domain.GroupCount{{"A": 1}, {"B": 2}}
	if !combosEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCombinationsAllCrossProduct(t *testing.T) {
	node := &domain.SignatureNode{
		All: []domain.SignatureNode{
			leaf("directors", 1),
			{Any: []domain.SignatureNode{leaf("auditors", 1), leaf("officers", 2)}},
		},
	}
	got := Combinations(node)
	want := []domain.GroupCount{
		{"directors": 1, "auditors": 1},
		{"directors": 1, "officers": 2},
	}
	if !combosEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCombinationsSameGroupSiblingsTakeMax(t *testing.T) {
	// Two all-siblings naming the same group merge to the larger
	// threshold, since one distinct-signer pool serves both.
	node := &domain.SignatureNode{
		All: []domain.SignatureNode{leaf("directors", 1), leaf("directors", 3)},
	}
	got := Combinations(node)
	want := []domain.GroupCount{{"directors": 3}}
	if !combosEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCombinationsDropSupersets(t *testing.T) {
	// {A:1} subsumes {A:1, B:1} and {A:2}; only the minimal survives.
	node := &domain.SignatureNode{
		Any: []domain.SignatureNode{
			leaf("A", 1),
			{All: []domain.SignatureNode{leaf("A", 1), leaf("B", 1)}},
			leaf("A", 2),
		},
	}
	got := Combinations(node)
	want := []domain.GroupCount{{"A": 1}}
	if !combosEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCombinationsDeduplicate(t *testing.T) {
	node := &domain.SignatureNode{
		Any: []domain.SignatureNode{leaf("A", 1), leaf("A", 1)},
	}
	got := Combinations(node)
	want := []domain.GroupCount{{"A": 1}}
	if !combosEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCombinationsAgreeWithSatisfied(t *testing.T) {
	// Every enumerated combination, taken as exact counts, satisfies the
	// tree it came from.
	trees := []*domain.SignatureNode{
		{Any: []domain.SignatureNode{
			leaf("A", 1),
			{All: []domain.SignatureNode{leaf("B", 2), leaf("C", 1)}},
		}},
		{All: []domain.SignatureNode{
			{Any: []domain.SignatureNode{leaf("A", 1), leaf("B", 1)}},
			{Any: []domain.SignatureNode{leaf("B", 2), leaf("C", 3)}},
		}},
	}
	for _, tree := range trees {
		for _, combo := range Combinations(tree) {
			if !Satisfied(tree, combo) {
				t.Errorf("combination %v does not satisfy its own tree", combo)
			}
		}
	}
}
