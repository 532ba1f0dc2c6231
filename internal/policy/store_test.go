package policy

import (
	"errors"
	"testing"

	"github.com/dtn-go/bpsecpolicy/internal/eid"
)

func TestStore_BadSyntax(t *testing.T) {
	s := NewStore()
	cases := []struct {
		secSrc, bSrc, bDst string
		role               Role
	}{
		{"ipn:**.*", "ipn:*.*", "ipn:*.*", Acceptor},
		{"ipn:*.*", "ipn:*.**", "ipn:*.*", Acceptor},
		{"ipn:*.*", "ipn:*.*", "ipn:***.*", Acceptor},
		{"ipn:*.*", "ipn:*.*", "ipn:*.*", ReservedMax},
	}
	for _, tc := range cases {
		p, isNew, err := s.CreateOrGet(tc.secSrc, tc.bSrc, tc.bDst, tc.role)
		if p != nil || err == nil {
			t.Errorf("CreateOrGet(%q,%q,%q,%v) = (%v,%v,%v), want nil policy and an error", tc.secSrc, tc.bSrc, tc.bDst, tc.role, p, isNew, err)
		}
	}
	if s.Len() != 0 {
		t.Errorf("store size = %d, want 0", s.Len())
	}
}

func TestStore_ReservedRoleError(t *testing.T) {
	s := NewStore()
	_, _, err := s.CreateOrGet("ipn:*.*", "ipn:*.*", "ipn:*.*", ReservedMax)
	if !errors.Is(err, ErrReservedRole) {
		t.Errorf("err = %v, want ErrReservedRole", err)
	}
}

func TestStore_Duplication(t *testing.T) {
	s := NewStore()
	pA, isNew, err := s.CreateOrGet("ipn:*.*", "ipn:*.*", "ipn:*.*", Acceptor)
	if err != nil || pA == nil || !isNew {
		t.Fatalf("first create: p=%v isNew=%v err=%v", pA, isNew, err)
	}
	for i := 0; i < 2; i++ {
		p, isNew, err := s.CreateOrGet("ipn:*.*", "ipn:*.*", "ipn:*.*", Acceptor)
		if err != nil || p != pA || isNew {
			t.Fatalf("repeat create #%d: p==pA %v isNew=%v err=%v", i, p == pA, isNew, err)
		}
	}

	pS, isNew, err := s.CreateOrGet("ipn:*.*", "ipn:*.*", "ipn:*.*", Source)
	if err != nil || pS == nil || !isNew || pS == pA {
		t.Fatalf("source create: p=%v isNew=%v err=%v same-as-acceptor=%v", pS, isNew, err, pS == pA)
	}
	p, isNew, err := s.CreateOrGet("ipn:*.*", "ipn:*.*", "ipn:*.*", Source)
	if err != nil || p != pS || isNew {
		t.Fatalf("source repeat: p==pS %v isNew=%v err=%v", p == pS, isNew, err)
	}

	pV, isNew, err := s.CreateOrGet("ipn:*.*", "ipn:*.*", "ipn:*.*", Verifier)
	if err != nil || pV == nil || !isNew || pV == pA || pV == pS {
		t.Fatalf("verifier create: p=%v isNew=%v err=%v", pV, isNew, err)
	}
}

func TestStore_CreateAndFind(t *testing.T) {
	s := NewStore()
	m := NewMatcher(s)
	ss, bs, bd := eid.ID{NodeID: 1, ServiceID: 1}, eid.ID{NodeID: 2, ServiceID: 1}, eid.ID{NodeID: 3, ServiceID: 1}

	if got := m.Find(ss, bs, bd, Acceptor); got != nil {
		t.Fatalf("Find on empty store = %v, want nil", got)
	}

	pAcceptor, isNew, err := s.CreateOrGet("ipn:*.*", "ipn:*.*", "ipn:*.*", Acceptor)
	if err != nil || !isNew {
		t.Fatalf("create: err=%v isNew=%v", err, isNew)
	}

	policyAny := m.Find(ss, bs, bd, Acceptor)
	if policyAny != pAcceptor {
		t.Fatalf("Find = %v, want %v", policyAny, pAcceptor)
	}
	if got := m.Find(ss, bs, bd, Acceptor); got != policyAny {
		t.Fatalf("repeat Find = %v, want %v", got, policyAny)
	}

	pNew, isNew, err := s.CreateOrGet("ipn:1.1", "ipn:*.*", "ipn:*.*", Acceptor)
	if err != nil || !isNew || pNew == policyAny {
		t.Fatalf("create specific: err=%v isNew=%v same=%v", err, isNew, pNew == policyAny)
	}

	if got := m.Find(ss, bs, bd, Acceptor); got != pNew {
		t.Fatalf("Find after specific added = %v, want %v", got, pNew)
	}
	ssOtherService := eid.ID{NodeID: ss.NodeID, ServiceID: ss.ServiceID + 1}
	if got := m.Find(ssOtherService, bs, bd, Acceptor); got != policyAny {
		t.Fatalf("Find with differing secSrc service = %v, want %v", got, policyAny)
	}
	if got := m.Find(ssOtherService, bs, bd, Verifier); got != nil {
		t.Fatalf("Find for unconfigured role = %v, want nil", got)
	}
	if got := m.Find(ss, bs, bd, Verifier); got != nil {
		t.Fatalf("Find for unconfigured role = %v, want nil", got)
	}
}

func TestMatcher_BruteForceSpecificity(t *testing.T) {
	testCases := [][3]string{
		{"ipn:*.*", "ipn:*.*", "ipn:*.*"},
		{"ipn:1.1", "ipn:*.*", "ipn:*.*"},
		{"ipn:1.*", "ipn:*.*", "ipn:*.*"},
		{"ipn:*.*", "ipn:2.1", "ipn:*.*"},
		{"ipn:*.*", "ipn:2.*", "ipn:*.*"},
		{"ipn:*.*", "ipn:*.*", "ipn:3.1"},
		{"ipn:*.*", "ipn:*.*", "ipn:3.*"},
	}
	probes := [][3]eid.ID{
		{{10, 10}, {20, 10}, {30, 10}},
		{{1, 1}, {20, 10}, {30, 10}},
		{{1, 10}, {20, 10}, {30, 10}},
		{{10, 10}, {2, 1}, {30, 10}},
		{{10, 10}, {2, 10}, {30, 10}},
		{{10, 10}, {20, 10}, {3, 1}},
		{{10, 10}, {20, 10}, {3, 10}},
	}

	s := NewStore()
	m := NewMatcher(s)
	ptrSet := make(map[*Policy]bool)
	policies := make([]*Policy, len(testCases))
	for i, tc := range testCases {
		p, isNew, err := s.CreateOrGet(tc[0], tc[1], tc[2], Acceptor)
		if err != nil || !isNew {
			t.Fatalf("case %d: err=%v isNew=%v", i, err, isNew)
		}
		if ptrSet[p] {
			t.Fatalf("case %d: duplicate policy pointer", i)
		}
		ptrSet[p] = true
		policies[i] = p
	}

	for i, probe := range probes {
		got := m.Find(probe[0], probe[1], probe[2], Acceptor)
		if got != policies[i] {
			t.Errorf("probe %d: Find = policy#%v, want policy#%v", i, indexOf(policies, got), i)
		}
	}
}

func indexOf(policies []*Policy, p *Policy) int {
	for i, q := range policies {
		if q == p {
			return i
		}
	}
	return -1
}

func TestMatcher_SearchCache(t *testing.T) {
	s := NewStore()
	m := NewMatcher(s)
	ss, bs, bd := eid.ID{NodeID: 1, ServiceID: 1}, eid.ID{NodeID: 2, ServiceID: 1}, eid.ID{NodeID: 3, ServiceID: 1}

	if _, isNew, err := s.CreateOrGet("ipn:*.*", "ipn:*.*", "ipn:*.*", Acceptor); err != nil || !isNew {
		t.Fatalf("create: err=%v isNew=%v", err, isNew)
	}

	c := NewSearchCache()
	policyAny := m.FindWithCache(ss, bs, bd, Acceptor, c)
	if policyAny == nil || c.WasCacheHit {
		t.Fatalf("first lookup: policy=%v wasCacheHit=%v", policyAny, c.WasCacheHit)
	}
	if got := m.FindWithCache(ss, bs, bd, Acceptor, c); got != policyAny || !c.WasCacheHit {
		t.Fatalf("repeat lookup: got=%v wasCacheHit=%v", got, c.WasCacheHit)
	}

	ss2 := eid.ID{NodeID: 10, ServiceID: 1}
	if got := m.FindWithCache(ss2, bs, bd, Acceptor, c); got != policyAny || c.WasCacheHit {
		t.Fatalf("new query lookup: got=%v wasCacheHit=%v", got, c.WasCacheHit)
	}
	if got := m.FindWithCache(ss2, bs, bd, Acceptor, c); got != policyAny || !c.WasCacheHit {
		t.Fatalf("repeat new query lookup: got=%v wasCacheHit=%v", got, c.WasCacheHit)
	}
}
