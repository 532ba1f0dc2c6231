package codec

import (
	"errors"
	"fmt"

	"github.com/dtn-go/bpsecpolicy/internal/eid"
)

// Block types, assigned by RFC 9172 §3.3/§3.4 (spec.md §4.7).
const (
	TypeBIB uint8 = 11
	TypeBCB uint8 = 12
)

// Security context parameter/result identifiers, assigned by RFC 9173
// §3.3/§3.4 for BIB-HMAC-SHA2 and §4.3/§4.4 for BCB-AES-GCM. The two
// contexts keep separate ID namespaces, matching the RFC.
const (
	ParamShaVariant          uint8 = 1
	ParamWrappedKeyIntegrity uint8 = 2
	ParamIntegrityScopeFlags uint8 = 3
	ResultHMAC               uint8 = 1

	ParamIV                        uint8 = 1
	ParamAesVariant                uint8 = 2
	ParamWrappedKeyConfidentiality uint8 = 3
	ParamConfidentialityScopeFlags uint8 = 4
	ResultAuthTag                  uint8 = 1
)

// ErrMalformed is returned when a decoded block fails structural
// validation (e.g. a results entry for a target the block does not
// claim to secure).
var ErrMalformed = errors.New("codec: malformed security block")

// Parameter is one (id, value) security-context parameter. Value is
// whatever CBOR-marshalable type the parameter ID calls for: an integer
// for variant/flags fields, a byte string for IV/wrapped-key fields.
type Parameter struct {
	ID    uint8 `cbor:"1,keyasint"`
	Value any   `cbor:"2,keyasint"`
}

// Result is one (id, value) security result for a single target.
type Result struct {
	ID    uint8  `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// TargetResults carries every security result computed for one target
// block number.
type TargetResults struct {
	Target  uint64   `cbor:"1,keyasint"`
	Results []Result `cbor:"2,keyasint"`
}

// sourceEID is the CBOR wire form of an ipn-scheme endpoint ID: a map
// with integer keys 1 (scheme code, 2 for ipn), 2 (node number) and
// 3 (service number).
type sourceEID struct {
	Scheme    uint64 `cbor:"1,keyasint"`
	NodeID    uint64 `cbor:"2,keyasint"`
	ServiceID uint64 `cbor:"3,keyasint"`
}

const ipnSchemeCode uint64 = 2

// Block is the decoded form of a BIB or BCB canonical block's
// type-specific data, per spec.md §4.7: security target block numbers,
// context id, flags, security source EID, typed context parameters, and
// per-target security results.
type Block struct {
	BlockType  uint8           `cbor:"1,keyasint"`
	Targets    []uint64        `cbor:"2,keyasint"`
	ContextID  int64           `cbor:"3,keyasint"`
	Flags      uint8           `cbor:"4,keyasint"`
	Source     sourceEID       `cbor:"5,keyasint"`
	Parameters []Parameter     `cbor:"6,keyasint"`
	Results    []TargetResults `cbor:"7,keyasint"`
}

// FlagParamsPresent is set in Block.Flags when Parameters is non-empty,
// mirroring RFC 9172 §3.6's security context flags byte bit 0.
const FlagParamsPresent uint8 = 1 << 0

// SourceID returns the security source as an eid.ID.
func (b Block) SourceID() eid.ID {
	return eid.ID{NodeID: b.Source.NodeID, ServiceID: b.Source.ServiceID}
}

// Param returns the first parameter with the given id.
func (b Block) Param(id uint8) (Parameter, bool) {
	for _, p := range b.Parameters {
		if p.ID == id {
			return p, true
		}
	}
	return Parameter{}, false
}

// ParamInt returns a parameter's value as an int, accepting whatever
// concrete integer type the CBOR decoder produced for it (uint64 for a
// freshly decoded non-negative value, int64 for one still in memory from
// NewBIB/NewBCB).
func (b Block) ParamInt(id uint8) (int64, bool) {
	p, ok := b.Param(id)
	if !ok {
		return 0, false
	}
	switch v := p.Value.(type) {
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// ParamBytes returns a parameter's value as a byte slice.
func (b Block) ParamBytes(id uint8) ([]byte, bool) {
	p, ok := b.Param(id)
	if !ok {
		return nil, false
	}
	v, ok := p.Value.([]byte)
	return v, ok
}

// ResultsFor returns the security results recorded for target, or nil if
// the block has none for it.
func (b Block) ResultsFor(target uint64) []Result {
	for _, tr := range b.Results {
		if tr.Target == target {
			return tr.Results
		}
	}
	return nil
}

// Result returns the first result with the given id for target.
func (b Block) Result(target uint64, id uint8) (Result, bool) {
	for _, r := range b.ResultsFor(target) {
		if r.ID == id {
			return r, true
		}
	}
	return Result{}, false
}

// NewBIB builds a BIB Block for one or more targets sharing the same
// HMAC-SHA context, parameters, and source.
func NewBIB(targets []uint64, src eid.ID, shaVariant int, scopeFlags uint8) Block {
	return Block{
		BlockType: TypeBIB,
		Targets:   targets,
		ContextID: 1,
		Flags:     FlagParamsPresent,
		Source:    sourceEID{Scheme: ipnSchemeCode, NodeID: src.NodeID, ServiceID: src.ServiceID},
		Parameters: []Parameter{
			{ID: ParamShaVariant, Value: int64(shaVariant)},
			{ID: ParamIntegrityScopeFlags, Value: int64(scopeFlags)},
		},
	}
}

// NewBCB builds a BCB Block for one or more targets sharing the same
// AES-GCM context, parameters, and source.
func NewBCB(targets []uint64, src eid.ID, aesVariant int, iv []byte, scopeFlags uint8) Block {
	return Block{
		BlockType: TypeBCB,
		Targets:   targets,
		ContextID: 2,
		Flags:     FlagParamsPresent,
		Source:    sourceEID{Scheme: ipnSchemeCode, NodeID: src.NodeID, ServiceID: src.ServiceID},
		Parameters: []Parameter{
			{ID: ParamIV, Value: iv},
			{ID: ParamAesVariant, Value: int64(aesVariant)},
			{ID: ParamConfidentialityScopeFlags, Value: int64(scopeFlags)},
		},
	}
}

// AddResult appends a security result for target, creating its
// TargetResults entry if target isn't already present.
func (b *Block) AddResult(target uint64, id uint8, value []byte) {
	for i := range b.Results {
		if b.Results[i].Target == target {
			b.Results[i].Results = append(b.Results[i].Results, Result{ID: id, Value: value})
			return
		}
	}
	b.Results = append(b.Results, TargetResults{Target: target, Results: []Result{{ID: id, Value: value}}})
}

// Encode marshals b to its canonical CBOR type-specific-data bytes.
func Encode(b Block) ([]byte, error) {
	data, err := Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("codec: encoding block: %w", err)
	}
	return data, nil
}

// Decode parses a BIB/BCB canonical block's type-specific data.
// Decode validates that every TargetResults entry refers to a number
// present in Targets, returning ErrMalformed otherwise.
func Decode(data []byte) (Block, error) {
	var b Block
	if err := Unmarshal(data, &b); err != nil {
		return Block{}, fmt.Errorf("codec: decoding block: %w", err)
	}
	targetSet := make(map[uint64]bool, len(b.Targets))
	for _, t := range b.Targets {
		targetSet[t] = true
	}
	for _, tr := range b.Results {
		if !targetSet[tr.Target] {
			return Block{}, fmt.Errorf("%w: results for target %d not in targets list", ErrMalformed, tr.Target)
		}
	}
	return b, nil
}
