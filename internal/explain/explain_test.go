package explain

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/condition"
	"github.com/opensource-finance/harrier/internal/domain"
)

func TestTreeComparison(t *testing.T) {
	node := &domain.Condition{Fact: "amount", Operator: "greaterThan", Value: 10000}

	e := Tree(node, map[string]any{"amount": decimal.NewFromInt(15000)})
	if !e.Satisfied {
		t.Error("15000 > 10000 should be satisfied")
	}
	if e.Kind != "comparison" || e.Detail == "" {
		t.Errorf("expected narrated comparison, got %+v", e)
	}

	e = Tree(node, map[string]any{"amount": decimal.NewFromInt(10000)})
	if e.Satisfied {
		t.Error("strict comparison must not hold at the boundary")
	}
}

func TestTreeAbsentFact(t *testing.T) {
	node := &domain.Condition{Fact: "country", Operator: "equal", Value: "IR"}
	e := Tree(node, map[string]any{})
	if e.Satisfied {
		t.Error("comparison against an absent fact must not hold")
	}
	if e.Detail == "" {
		t.Error("absent facts should be narrated")
	}

	exists := &domain.Condition{Fact: "country", Operator: "notExists"}
	if !Tree(exists, map[string]any{}).Satisfied {
		t.Error("notExists should hold for an absent fact")
	}
}

func TestTreeVacuousCombinators(t *testing.T) {
	if !Tree(&domain.Condition{All: []domain.Condition{}}, nil).Satisfied {
		t.Error("empty all should be vacuously satisfied")
	}
	if Tree(&domain.Condition{Any: []domain.Condition{}}, nil).Satisfied {
		t.Error("empty any should be unsatisfiable")
	}
}

func TestTreeNestedNarration(t *testing.T) {
	node := &domain.Condition{
		All: []domain.Condition{
			{Fact: "amount", Operator: "greaterThan", Value: 100},
			{Any: []domain.Condition{
				{Fact: "country", Operator: "equal", Value: "IR"},
				{Fact: "channel", Operator: "equal", Value: "wire"},
			}},
		},
	}
	facts := map[string]any{
		"amount":  decimal.NewFromInt(500),
		"country": "FR",
		"channel": "wire",
	}

	e := Tree(node, facts)
	if !e.Satisfied {
		t.Fatal("tree should be satisfied")
	}
	if len(e.Children) != 2 || len(e.Children[1].Children) != 2 {
		t.Fatalf("narration should cover every node: %+v", e)
	}
	if e.Children[1].Children[0].Satisfied {
		t.Error("country branch should be unsatisfied")
	}
	if !e.Children[1].Children[1].Satisfied {
		t.Error("channel branch should be satisfied")
	}
}

// randomTree generates an arbitrary valid condition tree.
func randomTree(r *rand.Rand, depth int) domain.Condition {
	if depth <= 0 || r.Intn(3) == 0 {
		return randomLeaf(r)
	}
	n := r.Intn(3)
	children := make([]domain.Condition, n)
	for i := range children {
		children[i] = randomTree(r, depth-1)
	}
	if r.Intn(2) == 0 {
		return domain.Condition{All: children}
	}
	return domain.Condition{Any: children}
}

func randomLeaf(r *rand.Rand) domain.Condition {
	facts := []string{"amount", "country", "channel", "score", "ghost"}
	fact := facts[r.Intn(len(facts))]

	switch r.Intn(7) {
	case 0:
		return domain.Condition{Fact: fact, Operator: "exists"}
	case 1:
		return domain.Condition{Fact: fact, Operator: "notExists"}
	case 2:
		return domain.Condition{Fact: fact, Operator: "equal", Value: r.Intn(100)}
	case 3:
		return domain.Condition{Fact: fact, Operator: "greaterThan", Value: r.Intn(100)}
	case 4:
		return domain.Condition{Fact: fact, Operator: "lessThanOrEqual", Value: r.Intn(100)}
	case 5:
		return domain.Condition{Fact: fact, Operator: "in", Value: []any{r.Intn(10), "IR", "wire"}}
	default:
		return domain.Condition{Fact: fact, Operator: "between", Value: []any{r.Intn(50), 50 + r.Intn(50)}}
	}
}

func randomFacts(r *rand.Rand) map[string]any {
	facts := make(map[string]any)
	if r.Intn(2) == 0 {
		facts["amount"] = decimal.NewFromInt(int64(r.Intn(200)))
	}
	if r.Intn(2) == 0 {
		facts["country"] = []string{"IR", "FR", "US"}[r.Intn(3)]
	}
	if r.Intn(2) == 0 {
		facts["channel"] = []string{"wire", "card"}[r.Intn(2)]
	}
	if r.Intn(2) == 0 {
		facts["score"] = r.Intn(100)
	}
	return facts
}

// The narration engine and the production evaluator are written
// independently; over many random trees and fact maps they must agree
// on every verdict.
func TestAgreesWithProductionEvaluator(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		tree := randomTree(r, 4)
		facts := randomFacts(r)

		want, _ := condition.Evaluate(&tree, facts)
		got := Tree(&tree, facts).Satisfied
		if got != want {
			t.Fatalf("iteration %d: narration says %v, evaluator says %v\ntree: %+v\nfacts: %v",
				i, got, want, tree, facts)
		}
	}
}
