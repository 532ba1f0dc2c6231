// Package bundle provides a minimal editable view over a BPv7 bundle:
// enough to load a bundle's blocks, find/insert/remove canonical blocks,
// and render the result back to bytes. It is not a byte-exact RFC 9171
// encoder — that responsibility sits with the surrounding BPv7 node this
// package's processors plug into (spec.md §4.5); it exists so the
// processors and their tests have a concrete BundleView to operate on.
package bundle

import (
	"fmt"

	"github.com/dtn-go/bpsecpolicy/internal/codec"
	"github.com/dtn-go/bpsecpolicy/internal/eid"
)

// Primary carries the primary block fields the processors read or write.
type Primary struct {
	SourceNodeID       eid.ID
	DestinationEID     eid.ID
	ReportToEID        eid.ID
	CreationTimestamp  uint64
	CreationSeq        uint64
	Lifetime           uint64
	CRCType            uint8
}

type primaryWire struct {
	SrcNode, SrcSvc   uint64
	DstNode, DstSvc   uint64
	RptNode, RptSvc   uint64
	CreationTimestamp uint64
	CreationSeq       uint64
	Lifetime          uint64
	CRCType           uint8
}

func (p Primary) toWire() primaryWire {
	return primaryWire{
		SrcNode: p.SourceNodeID.NodeID, SrcSvc: p.SourceNodeID.ServiceID,
		DstNode: p.DestinationEID.NodeID, DstSvc: p.DestinationEID.ServiceID,
		RptNode: p.ReportToEID.NodeID, RptSvc: p.ReportToEID.ServiceID,
		CreationTimestamp: p.CreationTimestamp, CreationSeq: p.CreationSeq,
		Lifetime: p.Lifetime, CRCType: p.CRCType,
	}
}

func (w primaryWire) toPrimary() Primary {
	return Primary{
		SourceNodeID:      eid.ID{NodeID: w.SrcNode, ServiceID: w.SrcSvc},
		DestinationEID:    eid.ID{NodeID: w.DstNode, ServiceID: w.DstSvc},
		ReportToEID:       eid.ID{NodeID: w.RptNode, ServiceID: w.RptSvc},
		CreationTimestamp: w.CreationTimestamp,
		CreationSeq:       w.CreationSeq,
		Lifetime:          w.Lifetime,
		CRCType:           w.CRCType,
	}
}

// CanonicalBlock is one non-primary block in a bundle.
type CanonicalBlock struct {
	Type        uint8
	Number      uint64
	Flags       uint8
	CRCType     uint8
	Data        []byte
	IsEncrypted bool
}

// HeaderBytes returns the type+number+flags header encoding used as the
// "target block header" input to the scope-flag AAD assembly (spec.md
// §4.6). It deliberately excludes Data and CRCType: those are the
// protected payload and a transport-integrity detail, not part of the
// security AAD.
func (b *CanonicalBlock) HeaderBytes() []byte {
	hdr := struct {
		Type, Number, Flags uint64
	}{uint64(b.Type), b.Number, uint64(b.Flags)}
	data, err := codec.Marshal(hdr)
	if err != nil {
		// hdr is a fixed, always-encodable shape; a failure here means the
		// CBOR encoder itself is broken.
		panic(fmt.Sprintf("bundle: encoding canonical block header: %v", err))
	}
	return data
}

// View is an editable in-memory representation of one bundle.
type View struct {
	Primary Primary
	blocks  []*CanonicalBlock
}

type blockWire struct {
	Type        uint8
	Number      uint64
	Flags       uint8
	CRCType     uint8
	Data        []byte
	IsEncrypted bool
}

type viewWire struct {
	Primary primaryWire
	Blocks  []blockWire
}

// Load parses raw as a CBOR-encoded bundle in the form Render produces: a
// map holding the primary block fields and the list of zero or more
// canonical blocks.
func Load(raw []byte) (*View, error) {
	var w viewWire
	if err := codec.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("bundle: loading view: %w", err)
	}
	v := &View{Primary: w.Primary.toPrimary()}
	for _, bw := range w.Blocks {
		v.blocks = append(v.blocks, &CanonicalBlock{
			Type: bw.Type, Number: bw.Number, Flags: bw.Flags,
			CRCType: bw.CRCType, Data: bw.Data, IsEncrypted: bw.IsEncrypted,
		})
	}
	return v, nil
}

// New returns an empty view with the given primary block fields and no
// canonical blocks.
func New(primary Primary) *View {
	return &View{Primary: primary}
}

// Render serializes the view back to its CBOR wire form.
func (v *View) Render() ([]byte, error) {
	w := viewWire{Primary: v.Primary.toWire()}
	for _, b := range v.blocks {
		w.Blocks = append(w.Blocks, blockWire{
			Type: b.Type, Number: b.Number, Flags: b.Flags,
			CRCType: b.CRCType, Data: b.Data, IsEncrypted: b.IsEncrypted,
		})
	}
	data, err := codec.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("bundle: rendering view: %w", err)
	}
	return data, nil
}

// Blocks returns every canonical block in the view, in the order they were
// loaded or appended (not sorted by block number).
func (v *View) Blocks() []*CanonicalBlock {
	return v.blocks
}

// PrimaryHeaderBytes returns the primary block's canonical encoding, used
// as the "primary block" input to the scope-flag AAD assembly (spec.md
// §4.6).
func (v *View) PrimaryHeaderBytes() []byte {
	data, err := codec.Marshal(v.Primary.toWire())
	if err != nil {
		panic(fmt.Sprintf("bundle: encoding primary block: %v", err))
	}
	return data
}

// NextBlockNumber returns a block number not already in use by any
// canonical block in the view (primary block is implicitly 0).
func (v *View) NextBlockNumber() uint64 {
	var max uint64
	for _, b := range v.blocks {
		if b.Number > max {
			max = b.Number
		}
	}
	return max + 1
}

// BlocksByType returns every canonical block of the given type.
func (v *View) BlocksByType(t uint8) []*CanonicalBlock {
	var out []*CanonicalBlock
	for _, b := range v.blocks {
		if b.Type == t {
			out = append(out, b)
		}
	}
	return out
}

// BlockByNumber returns the canonical block with the given number, or nil.
func (v *View) BlockByNumber(number uint64) *CanonicalBlock {
	for _, b := range v.blocks {
		if b.Number == number {
			return b
		}
	}
	return nil
}

// AppendBlock adds a new canonical block to the view.
func (v *View) AppendBlock(b *CanonicalBlock) {
	v.blocks = append(v.blocks, b)
}

// RemoveBlock deletes the canonical block with the given number, if present.
func (v *View) RemoveBlock(number uint64) {
	for i, b := range v.blocks {
		if b.Number == number {
			v.blocks = append(v.blocks[:i], v.blocks[i+1:]...)
			return
		}
	}
}
