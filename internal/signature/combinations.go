package signature

import (
	"sort"
	"strconv"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Combinations enumerates the minimal satisfying combinations of a rule
// tree, bottom-up. Each combination maps group to the number of distinct
// signers required; satisfying any one combination satisfies the rule.
//
// An any-node contributes the union of its children's combinations. An
// all-node contributes the cross product of its children's combinations,
// merged per group by taking the maximum requirement: the same pool of
// distinct signers serves every sibling that names the group, so the
// largest sibling threshold is the binding one. Supersets of another
// combination are dropped.
func Combinations(node *domain.SignatureNode) []domain.GroupCount {
	return minimal(enumerate(node))
}

func enumerate(node *domain.SignatureNode) []domain.GroupCount {
	switch {
	case len(node.All) > 0:
		combos := []domain.GroupCount{{}}
		for i := range node.All {
			child := enumerate(&node.All[i])
			var next []domain.GroupCount
			for _, base := range combos {
				for _, c := range child {
					next = append(next, mergeMax(base, c))
				}
			}
			combos = next
		}
		return combos
	case len(node.Any) > 0:
		var combos []domain.GroupCount
		for i := range node.Any {
			combos = append(combos, enumerate(&node.Any[i])...)
		}
		return combos
	}
	return []domain.GroupCount{{node.Group: node.Min}}
}

// mergeMax combines two requirement maps, keeping the larger count for
// groups present in both.
func mergeMax(a, b domain.GroupCount) domain.GroupCount {
	out := make(domain.GroupCount, len(a)+len(b))
	for g, n := range a {
		out[g] = n
	}
	for g, n := range b {
		if n > out[g] {
			out[g] = n
		}
	}
	return out
}

// minimal drops duplicates and any combination whose requirements are a
// strict superset of another: a signer set meeting the larger
// requirement necessarily meets the smaller one.
func minimal(combos []domain.GroupCount) []domain.GroupCount {
	var out []domain.GroupCount
	for i, c := range combos {
		redundant := false
		for j, other := range combos {
			if i == j {
				continue
			}
			if subsumes(other, c) && (!subsumes(c, other) || j < i) {
				redundant = true
				break
			}
		}
		if !redundant {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return comboKey(out[i]) < comboKey(out[j])
	})
	return out
}

// subsumes reports whether satisfying b necessarily satisfies a, i.e.
// every requirement of a is at most b's requirement for that group.
func subsumes(a, b domain.GroupCount) bool {
	for g, n := range a {
		if b[g] < n {
			return false
		}
	}
	return true
}

func comboKey(c domain.GroupCount) string {
	groups := make([]string, 0, len(c))
	for g := range c {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	key := ""
	for _, g := range groups {
		key += g + ":" + strconv.Itoa(c[g]) + ";"
	}
	return key
}
