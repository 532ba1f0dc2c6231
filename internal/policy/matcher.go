package policy

import "github.com/dtn-go/bpsecpolicy/internal/eid"

// Matcher resolves a concrete (secSrc, bSrc, bDst, role) query to the most
// specific matching policy in a Store.
//
// The reference design in spec.md §4.3 buckets policies by exact value per
// component in a trie for O(1)/O(log n) lookups; this implementation uses a
// brute-force scan over the role's policy list, which spec.md explicitly
// permits ("sufficient to pass §8 tests") and which keeps the matching
// logic easy to verify against the specificity invariants. Policy counts
// per role in a BPSec deployment are small (tens, not millions), so the
// scan does not dominate bundle processing cost.
type Matcher struct {
	store *Store
}

// NewMatcher returns a Matcher over store.
func NewMatcher(store *Store) *Matcher {
	return &Matcher{store: store}
}

// Find resolves the most specific policy matching (secSrc, bSrc, bDst) for
// the given role, or nil if no policy matches.
func (m *Matcher) Find(secSrc, bSrc, bDst eid.ID, role Role) *Policy {
	var best *Policy
	for _, p := range m.store.PoliciesForRole(role) {
		if !p.SecSrc.Matches(secSrc) || !p.BSrc.Matches(bSrc) || !p.BDst.Matches(bDst) {
			continue
		}
		if best == nil || wins(p, best) {
			best = p
		}
	}
	return best
}

// CandidatesForBundle returns every role-policy whose bSrc/bDst patterns
// match this bundle's source and final destination, irrespective of
// secSrc. It is used to detect "missing" security operations (spec.md
// §4.9): a policy that would apply to this bundle but found no matching
// BIB/BCB for one of its required target types, where no block's actual
// security source is available to narrow the search.
func (m *Matcher) CandidatesForBundle(role Role, bSrc, bDst eid.ID) []*Policy {
	var out []*Policy
	for _, p := range m.store.PoliciesForRole(role) {
		if p.BSrc.Matches(bSrc) && p.BDst.Matches(bDst) {
			out = append(out, p)
		}
	}
	return out
}

// fieldOrder is the trichotomy result of comparing one pattern field
// between two candidates: -1 means a is more specific, 1 means b is more
// specific, 0 means equally specific, 2 means incomparable.
func fieldOrder(a, b eid.Pattern) int {
	switch {
	case a.Equal(b):
		return 0
	case a.MoreSpecificThan(b):
		return -1
	case b.MoreSpecificThan(a):
		return 1
	default:
		return 2
	}
}

// wins reports whether candidate should displace current as the best match.
//
// Candidates are first compared under the product order on
// (secSrc, bSrc, bDst): candidate wins outright if it is componentwise at
// least as specific as current and strictly more specific in at least one
// field. If the product order doesn't decide it (any field is pairwise
// incomparable, or the fields disagree on direction), the deterministic
// tie-break of spec.md §4.3 applies: compare fields in order secSrc, bSrc,
// bDst; within a field, more Exact components wins; first field to produce
// a decision wins the whole comparison.
func wins(candidate, current *Policy) bool {
	secOrd := fieldOrder(candidate.SecSrc, current.SecSrc)
	srcOrd := fieldOrder(candidate.BSrc, current.BSrc)
	dstOrd := fieldOrder(candidate.BDst, current.BDst)

	if secOrd != 2 && srcOrd != 2 && dstOrd != 2 {
		allLE := secOrd <= 0 && srcOrd <= 0 && dstOrd <= 0
		allGE := secOrd >= 0 && srcOrd >= 0 && dstOrd >= 0
		if allLE && !allGE {
			return true
		}
		if allGE && !allLE {
			return false
		}
		if allLE && allGE {
			return false // equal; keep current (first-created wins ties)
		}
	}

	return tieBreak(candidate, current)
}

func tieBreak(candidate, current *Policy) bool {
	fields := [][2]eid.Pattern{
		{candidate.SecSrc, current.SecSrc},
		{candidate.BSrc, current.BSrc},
		{candidate.BDst, current.BDst},
	}
	for _, f := range fields {
		a, b := f[0], f[1]
		if a.Equal(b) {
			continue
		}
		if ca, cb := a.ExactCount(), b.ExactCount(); ca != cb {
			return ca > cb
		}
	}
	return false
}
