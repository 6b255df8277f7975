// Package signature implements combination-based signature
// authorization: rule trees over signer groups, request evaluation and
// satisfying-combination enumeration.
package signature

import (
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ValidateDefinition checks a signature rule tree at creation time:
// every node is exactly one of an all-combinator, an any-combinator, or
// a {group, min} threshold leaf with min >= 1.
func ValidateDefinition(node *domain.SignatureNode) error {
	if node == nil {
		return domain.NewValidationError("ruleDefinition", "rule definition is required")
	}
	return validateNode(node, "ruleDefinition")
}

func validateNode(node *domain.SignatureNode, path string) error {
	hasAll := len(node.All) > 0
	hasAny := len(node.Any) > 0
	hasLeaf := node.Group != "" || node.Min != 0

	switch {
	case hasAll && hasAny, hasAll && hasLeaf, hasAny && hasLeaf:
		return domain.NewValidationError(path, "node must be exactly one of all, any, or a group threshold")
	case hasAll:
		for i := range node.All {
			if err := validateNode(&node.All[i], fmt.Sprintf("%s.all[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case hasAny:
		for i := range node.Any {
			if err := validateNode(&node.Any[i], fmt.Sprintf("%s.any[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}

	if node.Group == "" {
		return domain.NewValidationError(path, "threshold leaf requires a group")
	}
	if node.Min < 1 {
		return domain.NewValidationError(path, "threshold leaf requires min >= 1")
	}
	return nil
}

// Satisfied reports whether the collected distinct-signer counts per
// group satisfy the rule tree. A leaf is satisfied when its group has at
// least min distinct signers; all requires every child, any at least one.
func Satisfied(node *domain.SignatureNode, counts domain.GroupCount) bool {
	switch {
	case len(node.All) > 0:
		for i := range node.All {
			if !Satisfied(&node.All[i], counts) {
				return false
			}
		}
		return true
	case len(node.Any) > 0:
		for i := range node.Any {
			if Satisfied(&node.Any[i], counts) {
				return true
			}
		}
		return false
	}
	return counts[node.Group] >= node.Min
}

// CollectCounts folds signed signatures into distinct-signer counts per
// group. A signer counts at most once per group, regardless of how many
// signatures they produced; a signer in several groups counts in each.
func CollectCounts(signatures []*domain.Signature, signers map[string]*domain.Signer) domain.GroupCount {
	seen := make(map[string]map[string]struct{})
	for _, sig := range signatures {
		if sig.Status != domain.SignatureSigned {
			continue
		}
		signer, ok := signers[sig.SignerID]
		if !ok {
			continue
		}
		for _, group := range signer.GroupIDs {
			if seen[group] == nil {
				seen[group] = make(map[string]struct{})
			}
			seen[group][signer.ID] = struct{}{}
		}
	}

	counts := make(domain.GroupCount, len(seen))
	for group, members := range seen {
		counts[group] = len(members)
	}
	return counts
}
