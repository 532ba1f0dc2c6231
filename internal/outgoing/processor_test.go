package outgoing

import (
	"bytes"
	"context"
	"testing"

	"github.com/dtn-go/bpsecpolicy/internal/bundle"
	"github.com/dtn-go/bpsecpolicy/internal/codec"
	"github.com/dtn-go/bpsecpolicy/internal/eid"
	"github.com/dtn-go/bpsecpolicy/internal/policy"
	"github.com/dtn-go/bpsecpolicy/internal/seccontext"
)

func newBundle(payload []byte) *bundle.View {
	v := bundle.New(bundle.Primary{
		SourceNodeID:   eid.ID{NodeID: 1, ServiceID: 1},
		DestinationEID: eid.ID{NodeID: 2, ServiceID: 1},
		Lifetime:       86400000,
	})
	v.AppendBlock(&bundle.CanonicalBlock{Type: 1, Number: 1, Data: payload})
	return v
}

func TestProcess_NoMatchingPolicy_NoOp(t *testing.T) {
	store := policy.NewStore()
	p := NewProcessor(policy.NewMatcher(store))
	v := newBundle([]byte("payload"))
	before, _ := v.Render()

	if err := p.Process(context.Background(), v, eid.ID{NodeID: 10, ServiceID: 1}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	after, _ := v.Render()
	if !bytes.Equal(before, after) {
		t.Error("Process mutated bundle with no matching policy")
	}
}

func TestProcess_Confidentiality_GrowsBundle(t *testing.T) {
	store := policy.NewStore()
	pol, _, err := store.CreateOrGet("ipn:10.1", "ipn:1.1", "ipn:2.1", policy.Source)
	if err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	pol.TargetBlockTypes = map[uint8]struct{}{1: {}}
	pol.Service = policy.Confidentiality
	pol.Context = policy.AesGcm
	pol.Params = seccontext.Params{
		AesVariant: 256, IVSizeBytes: 12, ScopeFlags: 7, KeyMaterial: bytes.Repeat([]byte{0x42}, 32),
	}

	v := newBundle([]byte("secret payload bytes"))
	before, err := v.Render()
	if err != nil {
		t.Fatalf("Render before: %v", err)
	}

	p := NewProcessor(policy.NewMatcher(store))
	if err := p.Process(context.Background(), v, eid.ID{NodeID: 10, ServiceID: 1}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	after, err := v.Render()
	if err != nil {
		t.Fatalf("Render after: %v", err)
	}
	if len(after) <= len(before) {
		t.Errorf("rendered bundle did not grow: before=%d after=%d", len(before), len(after))
	}

	target := v.BlockByNumber(1)
	if !target.IsEncrypted {
		t.Error("target block not marked IsEncrypted")
	}
	if bytes.Equal(target.Data, []byte("secret payload bytes")) {
		t.Error("target block payload left in plaintext")
	}

	bcbs := v.BlocksByType(codec.TypeBCB)
	if len(bcbs) != 1 {
		t.Fatalf("len(BCB blocks) = %d, want 1", len(bcbs))
	}
	blk, err := codec.Decode(bcbs[0].Data)
	if err != nil {
		t.Fatalf("Decode BCB: %v", err)
	}
	if len(blk.Targets) != 1 || blk.Targets[0] != 1 {
		t.Errorf("BCB targets = %v, want [1]", blk.Targets)
	}
}

func TestProcess_Integrity_AddsBIB(t *testing.T) {
	store := policy.NewStore()
	pol, _, err := store.CreateOrGet("ipn:10.1", "ipn:1.1", "ipn:2.1", policy.Source)
	if err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	pol.TargetBlockTypes = map[uint8]struct{}{1: {}}
	pol.Service = policy.Integrity
	pol.Context = policy.HmacSha
	pol.Params = seccontext.Params{ShaVariant: 256, ScopeFlags: 7, KeyMaterial: bytes.Repeat([]byte{0x11}, 32)}

	v := newBundle([]byte("integrity protected payload"))
	p := NewProcessor(policy.NewMatcher(store))
	if err := p.Process(context.Background(), v, eid.ID{NodeID: 10, ServiceID: 1}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	target := v.BlockByNumber(1)
	if target.IsEncrypted {
		t.Error("integrity-only operation should not mark IsEncrypted")
	}
	if !bytes.Equal(target.Data, []byte("integrity protected payload")) {
		t.Error("integrity-only operation altered payload bytes")
	}
	if len(v.BlocksByType(codec.TypeBIB)) != 1 {
		t.Fatal("expected exactly one BIB block")
	}
}

func TestProcess_WithCache_SecondLookupHits(t *testing.T) {
	store := policy.NewStore()
	pol, _, err := store.CreateOrGet("ipn:10.1", "ipn:1.1", "ipn:2.1", policy.Source)
	if err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	pol.TargetBlockTypes = map[uint8]struct{}{1: {}}
	pol.Service = policy.Integrity
	pol.Context = policy.HmacSha
	pol.Params = seccontext.Params{ShaVariant: 256, ScopeFlags: 7, KeyMaterial: bytes.Repeat([]byte{0x11}, 32)}

	p := NewProcessor(policy.NewMatcher(store))
	p.Cache = policy.NewSearchCache()

	if err := p.Process(context.Background(), newBundle([]byte("first")), eid.ID{NodeID: 10, ServiceID: 1}); err != nil {
		t.Fatalf("Process (first): %v", err)
	}
	if p.Cache.WasCacheHit {
		t.Error("first lookup should be a cache miss")
	}

	if err := p.Process(context.Background(), newBundle([]byte("second")), eid.ID{NodeID: 10, ServiceID: 1}); err != nil {
		t.Fatalf("Process (second): %v", err)
	}
	if !p.Cache.WasCacheHit {
		t.Error("second identical-key lookup should be a cache hit")
	}
}
