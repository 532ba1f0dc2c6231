// Package codec encodes and decodes BPSec BIB and BCB canonical blocks
// (RFC 9172) using deterministic CBOR, and provides the Marshal/Unmarshal
// helpers that package bundle also uses for its own wire structs.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is configured for RFC 8949 §4.2 Core Deterministic Encoding:
// sorted map keys, smallest-form integers, no indefinite-length items.
// Canonically encoded blocks must round-trip bit-exactly through other
// BPSec implementations (spec.md §4.7), so the same logical block always
// produces the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using core deterministic encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
