// Package incoming validates and accepts/forwards a bundle's security
// operations, running the failure-event state machine for every
// recognized outcome (spec.md §4.9).
package incoming

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dtn-go/bpsecpolicy/internal/bundle"
	"github.com/dtn-go/bpsecpolicy/internal/codec"
	"github.com/dtn-go/bpsecpolicy/internal/eid"
	"github.com/dtn-go/bpsecpolicy/internal/metrics"
	"github.com/dtn-go/bpsecpolicy/internal/policy"
	"github.com/dtn-go/bpsecpolicy/internal/report"
	"github.com/dtn-go/bpsecpolicy/internal/seccontext"
	"github.com/dtn-go/bpsecpolicy/internal/store"
)

// Outcome is the result of processing one bundle.
type Outcome int

const (
	// Ok means the bundle may be forwarded or delivered.
	Ok Outcome = iota
	// Drop means the bundle must not be forwarded, per a fired
	// failBundleForwarding action.
	Drop
)

func (o Outcome) String() string {
	if o == Drop {
		return "drop"
	}
	return "ok"
}

// Processor validates incoming security operations and reacts to
// recognized outcomes per policy.FailureEventSet.
type Processor struct {
	Matcher *policy.Matcher
	// Report delivers reportReasonCode actions. May be nil: reports are
	// then silently skipped.
	Report report.Sink
	// Store persists requestBundleStorage actions. May be nil.
	Store store.Store
	// Metrics is optional; a nil Collector silently disables instrumentation.
	Metrics *metrics.Collector
	// Cache, if set, memoizes the last Matcher.Find query made by resolve
	// (spec.md §4.4). Not safe to share across goroutines.
	Cache *policy.SearchCache
	// Tracer is optional; a nil Tracer disables span instrumentation.
	Tracer trace.Tracer
}

// NewProcessor returns a Processor resolving policies via m. rep and st
// may be nil to disable their corresponding actions.
func NewProcessor(m *policy.Matcher, rep report.Sink, st store.Store) *Processor {
	return &Processor{Matcher: m, Report: rep, Store: st}
}

type addrKey struct {
	role   policy.Role
	target uint64
}

// Process implements spec.md §4.9.
func (p *Processor) Process(ctx context.Context, v *bundle.View) (Outcome, error) {
	if p.Tracer != nil {
		var span trace.Span
		ctx, span = p.Tracer.Start(ctx, "incoming.Process")
		defer span.End()
	}
	outcome := Ok
	addressed := make(map[addrKey]bool)

	for _, secBlk := range append(v.BlocksByType(codec.TypeBIB), v.BlocksByType(codec.TypeBCB)...) {
		blk, err := codec.Decode(secBlk.Data)
		if err != nil {
			slog.Warn("incoming: skipping malformed security block", "number", secBlk.Number, "err", err)
			continue
		}
		for _, target := range blk.Targets {
			role, pol := p.resolve(blk.SourceID(), v)
			if pol == nil {
				continue // out of policy
			}
			p.Metrics.ObservePolicyMatch(role.String())
			addressed[addrKey{role, target}] = true

			targetBlk := v.BlockByNumber(target)
			if targetBlk == nil {
				p.Metrics.ObserveSecurityOperation(servicename(pol.Service), "misconfigured")
				if p.fire(ctx, v, pol, role, secBlk, target, misconfiguredEvent(role), "security operation target block absent from bundle") {
					outcome = Drop
				}
				continue
			}

			event, ok := p.verify(pol, role, v, secBlk, blk, targetBlk, target)
			if !ok {
				p.Metrics.ObserveSecurityOperation(servicename(pol.Service), string(event))
				if p.fire(ctx, v, pol, role, secBlk, target, event, string(event)) {
					outcome = Drop
				}
				continue
			}
			p.Metrics.ObserveSecurityOperation(servicename(pol.Service), "verified")
			if role == policy.Acceptor {
				p.acceptOperation(v, secBlk, target)
			}
		}
	}

	for _, role := range []policy.Role{policy.Acceptor, policy.Verifier} {
		for _, pol := range p.Matcher.CandidatesForBundle(role, v.Primary.SourceNodeID, v.Primary.DestinationEID) {
			for blockType := range pol.TargetBlockTypes {
				for _, tb := range v.BlocksByType(blockType) {
					if addressed[addrKey{role, tb.Number}] {
						continue
					}
					if p.fire(ctx, v, pol, role, nil, tb.Number, missingEvent(role), "required target has no matching security operation") {
						outcome = Drop
					}
				}
			}
		}
	}

	return outcome, nil
}

// resolve finds the role/policy pair for a security operation whose
// source is secSrc, trying Acceptor before Verifier (spec.md §4.9).
func (p *Processor) resolve(secSrc eid.ID, v *bundle.View) (policy.Role, *policy.Policy) {
	if pol := p.find(secSrc, v.Primary.SourceNodeID, v.Primary.DestinationEID, policy.Acceptor); pol != nil {
		return policy.Acceptor, pol
	}
	if pol := p.find(secSrc, v.Primary.SourceNodeID, v.Primary.DestinationEID, policy.Verifier); pol != nil {
		return policy.Verifier, pol
	}
	return policy.Acceptor, nil
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

// verify authenticates one security operation. ok is false if the
// operation fired one of the failure events, in which case event names
// which one.
func (p *Processor) verify(pol *policy.Policy, role policy.Role, v *bundle.View, secBlk *bundle.CanonicalBlock, blk codec.Block, targetBlk *bundle.CanonicalBlock, target uint64) (event policy.EventID, ok bool) {
	if len(pol.Params.KeyMaterial) == 0 {
		return misconfiguredEvent(role), false
	}
	secHeader := secBlk.HeaderBytes()
	aad := seccontext.Assemble(pol.Params.ScopeFlags, seccontext.AADInputs{
		PrimaryBlock:        v.PrimaryHeaderBytes(),
		TargetBlockHeader:   targetBlk.HeaderBytes(),
		SecurityBlockHeader: secHeader,
	})

	switch pol.Service {
	case policy.Confidentiality:
		iv, ivOK := blk.ParamBytes(codec.ParamIV)
		res, resOK := blk.Result(target, codec.ResultAuthTag)
		if !ivOK || !resOK {
			return misconfiguredEvent(role), false
		}
		plaintext, err := seccontext.AesGcmDecrypt(pol.Params.KeyMaterial, targetBlk.Data, res.Value, iv, aad)
		switch {
		case errors.Is(err, seccontext.AuthFail):
			return corruptedEvent(role), false
		case errors.Is(err, seccontext.Misconfigured):
			return misconfiguredEvent(role), false
		case err != nil:
			return misconfiguredEvent(role), false
		}
		targetBlk.Data = plaintext
		targetBlk.IsEncrypted = false
		return "", true
	case policy.Integrity:
		shaVariant, shaOK := blk.ParamInt(codec.ParamShaVariant)
		res, resOK := blk.Result(target, codec.ResultHMAC)
		if !shaOK || !resOK {
			return misconfiguredEvent(role), false
		}
		err := seccontext.HmacVerify(pol.Params.KeyMaterial, int(shaVariant), targetBlk.Data, aad, res.Value)
		switch {
		case errors.Is(err, seccontext.AuthFail):
			return corruptedEvent(role), false
		case errors.Is(err, seccontext.Misconfigured):
			return misconfiguredEvent(role), false
		case err != nil:
			return misconfiguredEvent(role), false
		}
		return "", true
	default:
		return misconfiguredEvent(role), false
	}
}

// acceptOperation removes the now-authenticated security operation from
// its security block once an Acceptor has consumed it (spec.md §4.9:
// "the security block/operation is removed ... isEncrypted cleared").
func (p *Processor) acceptOperation(v *bundle.View, secBlk *bundle.CanonicalBlock, target uint64) {
	removeOperation(v, secBlk, target)
}

func missingEvent(role policy.Role) policy.EventID {
	if role == policy.Acceptor {
		return policy.SopMissingAtAcceptor
	}
	return policy.SopMissingAtVerifier
}

func corruptedEvent(role policy.Role) policy.EventID {
	if role == policy.Acceptor {
		return policy.SopCorruptedAtAcceptor
	}
	return policy.SopCorruptedAtVerifier
}

func misconfiguredEvent(role policy.Role) policy.EventID {
	if role == policy.Acceptor {
		return policy.SopMisconfiguredAtAcceptor
	}
	return policy.SopMisconfiguredAtVerifier
}

// fire runs every configured action for event against the given
// operation, returning true if a failBundleForwarding action fired.
func (p *Processor) fire(ctx context.Context, v *bundle.View, pol *policy.Policy, role policy.Role, secBlk *bundle.CanonicalBlock, target uint64, event policy.EventID, reasonCode string) bool {
	actions := pol.FailureEvents.ActionsFor(event)
	drop := false
	for _, action := range actions {
		p.Metrics.ObserveFailureEvent(string(event), string(action.Kind))
		switch action.Kind {
		case policy.ActionRemoveSecurityOperation:
			removeOperation(v, secBlk, target)
		case policy.ActionRemoveSecurityOperationTargetBlock:
			v.RemoveBlock(target)
		case policy.ActionRemoveAllSecurityTargetOperations:
			removeAllOperationsForTarget(v, target)
		case policy.ActionFailBundleForwarding:
			drop = true
		case policy.ActionRequestBundleStorage:
			p.requestStorage(v, string(event))
		case policy.ActionReportReasonCode:
			p.reportReasonCode(ctx, pol, role, target, string(event), reasonCode)
		case policy.ActionOverrideSecurityTargetBlockBpcf:
			overrideBpcf(v.BlockByNumber(target), action.Params)
		case policy.ActionOverrideSopBlockBpcf:
			overrideBpcf(secBlk, action.Params)
		default:
			slog.Warn("incoming: unrecognized action kind", "kind", action.Kind)
		}
	}
	return drop
}

func (p *Processor) requestStorage(v *bundle.View, reason string) {
	if p.Store == nil {
		return
	}
	raw, err := v.Render()
	if err != nil {
		slog.Warn("incoming: rendering bundle for quarantine failed", "err", err)
		return
	}
	e := store.Entry{
		At:        time.Now().UTC(),
		SourceEID: v.Primary.SourceNodeID.String(), DestEID: v.Primary.DestinationEID.String(),
		ReasonEvent: reason, Raw: raw,
	}
	if _, err := p.Store.Put(e); err != nil {
		slog.Warn("incoming: quarantining bundle failed", "err", err)
	}
}

func (p *Processor) reportReasonCode(ctx context.Context, pol *policy.Policy, role policy.Role, target uint64, event, reasonCode string) {
	if p.Report == nil {
		return
	}
	entry := report.NewEntry(event, pol.ID, pol.BSrc.String(), pol.BDst.String(), target, reasonCode)
	if err := p.Report.Report(ctx, entry); err != nil {
		slog.Warn("incoming: report delivery failed", "err", err, "role", role)
	}
}

func overrideBpcf(b *bundle.CanonicalBlock, params map[string]string) {
	if b == nil {
		return
	}
	raw, ok := params["bpcf"]
	if !ok {
		return
	}
	v, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		slog.Warn("incoming: invalid bpcf override parameter", "value", raw, "err", err)
		return
	}
	b.Flags = uint8(v)
}

// removeOperation deletes target's entry from secBlk's decoded security
// operation list, dropping the block entirely if it protected no other
// target.
func removeOperation(v *bundle.View, secBlk *bundle.CanonicalBlock, target uint64) {
	if secBlk == nil {
		return
	}
	blk, err := codec.Decode(secBlk.Data)
	if err != nil {
		return
	}
	blk.Targets = removeUint64(blk.Targets, target)
	blk.Results = removeTargetResults(blk.Results, target)
	if len(blk.Targets) == 0 {
		v.RemoveBlock(secBlk.Number)
		return
	}
	data, err := codec.Encode(blk)
	if err != nil {
		slog.Warn("incoming: re-encoding security block after operation removal failed", "err", err)
		return
	}
	secBlk.Data = data
}

// removeAllOperationsForTarget strips target from every BIB/BCB in the
// view (spec.md §4.9 removeAllSecurityTargetOperations).
func removeAllOperationsForTarget(v *bundle.View, target uint64) {
	for _, secBlk := range append(v.BlocksByType(codec.TypeBIB), v.BlocksByType(codec.TypeBCB)...) {
		removeOperation(v, secBlk, target)
	}
}

func removeUint64(s []uint64, v uint64) []uint64 {
	out := make([]uint64, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func removeTargetResults(s []codec.TargetResults, target uint64) []codec.TargetResults {
	out := make([]codec.TargetResults, 0, len(s))
	for _, tr := range s {
		if tr.Target != target {
			out = append(out, tr)
		}
	}
	return out
}

func servicename(s policy.Service) string {
	if s == policy.Confidentiality {
		return "confidentiality"
	}
	return "integrity"
}

