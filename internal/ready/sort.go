package ready

import (
	"sort"
	"time"

	"github.com/workbeads/wb/internal/types"
)

// HybridAgingThreshold is the age at which an issue rises one priority band
// under the hybrid policy.
const HybridAgingThreshold = 48 * time.Hour

// SortIssues orders issues in place according to policy. Every policy is a
// total order: the final tie-break is id ascending.
func SortIssues(issues []*types.Issue, policy types.SortPolicy, now time.Time) {
	var less func(a, b *types.Issue) bool
	switch policy {
	case types.SortPolicyPriority:
		less = func(a, b *types.Issue) bool {
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			return a.ID < b.ID
		}
	case types.SortPolicyOldest:
		less = func(a, b *types.Issue) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		}
	default:
		less = hybridLess(now)
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return less(issues[i], issues[j])
	})
}

// hybridLess ranks by band, where an aged issue is promoted one band. Within
// a band aged issues come first, so an aged P2 sorts ahead of a fresh P1 but
// never ahead of a P0. Aged issues drain oldest first; fresh issues surface
// newest first.
func hybridLess(now time.Time) func(a, b *types.Issue) bool {
	aged := func(i *types.Issue) bool {
		return now.Sub(i.CreatedAt) >= HybridAgingThreshold
	}
	band := func(i *types.Issue) int {
		if aged(i) {
			return i.Priority - 1
		}
		return i.Priority
	}
	return func(a, b *types.Issue) bool {
		if ba, bb := band(a), band(b); ba != bb {
			return ba < bb
		}
		if agedA, agedB := aged(a), aged(b); agedA != agedB {
			return agedA
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if aged(a) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	}
}
