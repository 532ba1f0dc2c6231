package policy

import (
	"fmt"

	"github.com/dtn-go/bpsecpolicy/internal/eid"
)

// Store holds and dedupes policies, keyed by (role, secSrcPat, bSrcPat, bDstPat).
// After construction by a config loader, a Store is never mutated further;
// concurrent readers do not race (spec.md §5).
type Store struct {
	byKey    map[key]*Policy
	byRole   map[Role][]*Policy
	nextID   int
}

// NewStore returns an empty policy store.
func NewStore() *Store {
	return &Store{
		byKey:  make(map[key]*Policy),
		byRole: make(map[Role][]*Policy),
	}
}

// CreateOrGet parses the three pattern texts and either returns the existing
// policy for (secSrcText, bSrcText, bDstText, role) or creates a new one.
// isNew reports whether a new policy was created. Returns ErrReservedRole if
// role == ReservedMax, or an eid.ErrBadSyntax-wrapped error if any pattern
// fails to parse.
func (s *Store) CreateOrGet(secSrcText, bSrcText, bDstText string, role Role) (*Policy, bool, error) {
	if role == ReservedMax {
		return nil, false, ErrReservedRole
	}

	secSrc, err := eid.Parse(secSrcText)
	if err != nil {
		return nil, false, fmt.Errorf("policy: security source pattern: %w", err)
	}
	bSrc, err := eid.Parse(bSrcText)
	if err != nil {
		return nil, false, fmt.Errorf("policy: bundle source pattern: %w", err)
	}
	bDst, err := eid.Parse(bDstText)
	if err != nil {
		return nil, false, fmt.Errorf("policy: bundle final destination pattern: %w", err)
	}

	k := key{secSrc: secSrc.String(), bSrc: bSrc.String(), bDst: bDst.String(), role: role}
	if existing, ok := s.byKey[k]; ok {
		return existing, false, nil
	}

	s.nextID++
	p := &Policy{
		ID:     s.nextID,
		Role:   role,
		SecSrc: secSrc,
		BSrc:   bSrc,
		BDst:   bDst,
	}
	s.byKey[k] = p
	s.byRole[role] = append(s.byRole[role], p)
	return p, true, nil
}

// PoliciesForRole returns the policies configured for a role, in creation
// order. The returned slice must not be mutated by the caller.
func (s *Store) PoliciesForRole(role Role) []*Policy {
	return s.byRole[role]
}

// Len returns the total number of policies held across all roles.
func (s *Store) Len() int {
	return len(s.byKey)
}
