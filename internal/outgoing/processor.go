// Package outgoing applies a bundle's Source-role security policy,
// inserting BIB or BCB security blocks for each configured target
// (spec.md §4.8).
package outgoing

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/dtn-go/bpsecpolicy/internal/bundle"
	"github.com/dtn-go/bpsecpolicy/internal/codec"
	"github.com/dtn-go/bpsecpolicy/internal/eid"
	"github.com/dtn-go/bpsecpolicy/internal/metrics"
	"github.com/dtn-go/bpsecpolicy/internal/policy"
	"github.com/dtn-go/bpsecpolicy/internal/seccontext"
)

// ErrNoKeyMaterial is returned when a matched policy has no key loaded.
var ErrNoKeyMaterial = errors.New("outgoing: policy has no key material")

// Processor applies outgoing security policy to bundles leaving this node.
type Processor struct {
	Matcher *policy.Matcher
	// Metrics is optional; a nil Collector silently disables instrumentation.
	Metrics *metrics.Collector
	// Cache, if set, memoizes the last Matcher query (spec.md §4.4). Not
	// safe to share across goroutines: give each concurrent caller its own
	// Processor or its own Cache.
	Cache *policy.SearchCache
	// Tracer is optional; a nil Tracer disables span instrumentation.
	Tracer trace.Tracer
}

// NewProcessor returns a Processor resolving policies via m.
func NewProcessor(m *policy.Matcher) *Processor {
	return &Processor{Matcher: m}
}

// Process implements spec.md §4.8. thisNode is the security source EID
// this node applies operations under. It mutates v in place; on success
// Render(v) is guaranteed to be strictly larger than before processing
// if any security block was added.
func (p *Processor) Process(ctx context.Context, v *bundle.View, thisNode eid.ID) error {
	if p.Tracer != nil {
		var span trace.Span
		ctx, span = p.Tracer.Start(ctx, "outgoing.Process")
		defer span.End()
	}
	pol := p.find(thisNode, v.Primary.SourceNodeID, v.Primary.DestinationEID, policy.Source)
	if pol == nil {
		return nil
	}
	p.Metrics.ObservePolicyMatch(policy.Source.String())
	if len(pol.Params.KeyMaterial) == 0 {
		return fmt.Errorf("%w: policy %d", ErrNoKeyMaterial, pol.ID)
	}

	var targets []*bundle.CanonicalBlock
	for t := range pol.TargetBlockTypes {
		targets = append(targets, v.BlocksByType(t)...)
	}
	for _, target := range targets {
		if err := p.secureTarget(v, pol, thisNode, target); err != nil {
			p.Metrics.ObserveSecurityOperation(servicename(pol.Service), "error")
			return fmt.Errorf("outgoing: securing block %d: %w", target.Number, err)
		}
		p.Metrics.ObserveSecurityOperation(servicename(pol.Service), "applied")
	}
	return nil
}

// secureTarget inserts one security block covering exactly one target.
// Spec.md §4.8.3 permits batching multiple targets into a single
// BIB/BCB; this processor emits one security block per target instead,
// which keeps each IV independent and sidesteps the nonce-reuse hazard
// of sharing a single AES-GCM IV across multiple ciphertexts.
func (p *Processor) secureTarget(v *bundle.View, pol *policy.Policy, thisNode eid.ID, target *bundle.CanonicalBlock) error {
	secBlockNumber := v.NextBlockNumber()
	var secBlockType uint8
	if pol.Service == policy.Confidentiality {
		secBlockType = codec.TypeBCB
	} else {
		secBlockType = codec.TypeBIB
	}
	secHeader := (&bundle.CanonicalBlock{Type: secBlockType, Number: secBlockNumber}).HeaderBytes()
	aad := seccontext.Assemble(pol.Params.ScopeFlags, seccontext.AADInputs{
		PrimaryBlock:        v.PrimaryHeaderBytes(),
		TargetBlockHeader:   target.HeaderBytes(),
		SecurityBlockHeader: secHeader,
	})

	switch pol.Service {
	case policy.Confidentiality:
		return p.applyBCB(v, pol, thisNode, target, secBlockNumber, aad)
	case policy.Integrity:
		return p.applyBIB(v, pol, thisNode, target, secBlockNumber, aad)
	default:
		return fmt.Errorf("outgoing: unrecognized security service %v", pol.Service)
	}
}

func (p *Processor) applyBCB(v *bundle.View, pol *policy.Policy, thisNode eid.ID, target *bundle.CanonicalBlock, secBlockNumber uint64, aad []byte) error {
	result, err := seccontext.AesGcmEncrypt(pol.Params.KeyMaterial, target.Data, aad, pol.Params.IVSizeBytes)
	if err != nil {
		return err
	}
	target.Data = result.Ciphertext
	target.IsEncrypted = true

	blk := codec.NewBCB([]uint64{target.Number}, thisNode, pol.Params.AesVariant, result.IV, uint8(pol.Params.ScopeFlags))
	blk.AddResult(target.Number, codec.ResultAuthTag, result.Tag)
	data, err := codec.Encode(blk)
	if err != nil {
		return err
	}
	v.AppendBlock(&bundle.CanonicalBlock{
		Type: codec.TypeBCB, Number: secBlockNumber,
		CRCType: uint8(pol.Params.SecurityBlockCRC), Data: data,
	})
	return nil
}

func (p *Processor) applyBIB(v *bundle.View, pol *policy.Policy, thisNode eid.ID, target *bundle.CanonicalBlock, secBlockNumber uint64, aad []byte) error {
	tag, err := seccontext.HmacCompute(pol.Params.KeyMaterial, pol.Params.ShaVariant, target.Data, aad)
	if err != nil {
		return err
	}
	blk := codec.NewBIB([]uint64{target.Number}, thisNode, pol.Params.ShaVariant, uint8(pol.Params.ScopeFlags))
	blk.AddResult(target.Number, codec.ResultHMAC, tag)
	data, err := codec.Encode(blk)
	if err != nil {
		return err
	}
	v.AppendBlock(&bundle.CanonicalBlock{
		Type: codec.TypeBIB, Number: secBlockNumber,
		CRCType: uint8(pol.Params.SecurityBlockCRC), Data: data,
	})
	return nil
}

// find resolves role via p.Cache when set, else falls back to a direct
// Matcher.Find, recording the cache hit/miss outcome either way.
func (p *Processor) find(secSrc, bSrc, bDst eid.ID, role policy.Role) *policy.Policy {
	if p.Cache == nil {
		return p.Matcher.Find(secSrc, bSrc, bDst, role)
	}
	result := p.Matcher.FindWithCache(secSrc, bSrc, bDst, role, p.Cache)
	p.Metrics.ObserveCacheResult(p.Cache.WasCacheHit)
	return result
}

func servicename(s policy.Service) string {
	if s == policy.Confidentiality {
		return "confidentiality"
	}
	return "integrity"
}
