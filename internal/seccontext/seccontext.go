// Package seccontext implements the BPSec security-context cryptographic
// primitives: AES-GCM confidentiality and HMAC-SHA integrity, key
// resolution, and the AAD/IPPT assembly the scope flags select.
package seccontext

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
)

// AuthFail is returned when AES-GCM decryption or HMAC verification fails.
// Per spec.md §7, any AAD mismatch or tag mismatch yields AuthFail
// indistinguishably — no further detail is exposed.
var AuthFail = errors.New("seccontext: authentication failed")

// Misconfigured is returned for a runtime context error: an AES key that
// is neither 16 nor 32 bytes, a non-positive IV size, or an unsupported
// SHA variant. The AES key length is not compared against the configured
// AES variant, and HMAC key length is not checked.
var Misconfigured = errors.New("seccontext: misconfigured security context")

// ScopeFlags selects what is included in the AAD/IPPT input (spec.md §4.6):
// bit 0 primary block, bit 1 target block header, bit 2 security block
// header. Bit assignment is pinned by the spec for byte-level interop and
// must not be changed even if a future BPSec IANA revision reallocates it.
type ScopeFlags uint8

const (
	ScopePrimaryBlock        ScopeFlags = 1 << 0
	ScopeTargetBlockHeader   ScopeFlags = 1 << 1
	ScopeSecurityBlockHeader ScopeFlags = 1 << 2
)

// Has reports whether bit is set in f.
func (f ScopeFlags) Has(bit ScopeFlags) bool { return f&bit != 0 }

// AADInputs carries the raw byte slices that scope flags select from, per
// spec.md §4.6.
type AADInputs struct {
	PrimaryBlock        []byte
	TargetBlockHeader   []byte
	SecurityBlockHeader []byte
}

// Assemble concatenates the selected inputs in the fixed order: primary (if
// selected), target-header (if selected), security-header (if selected).
func Assemble(flags ScopeFlags, in AADInputs) []byte {
	var aad []byte
	if flags.Has(ScopePrimaryBlock) {
		aad = append(aad, in.PrimaryBlock...)
	}
	if flags.Has(ScopeTargetBlockHeader) {
		aad = append(aad, in.TargetBlockHeader...)
	}
	if flags.Has(ScopeSecurityBlockHeader) {
		aad = append(aad, in.SecurityBlockHeader...)
	}
	return aad
}

// Params carries the resolved securityContextParams for one policy
// (spec.md §3, §6).
type Params struct {
	AesVariant       int // 128 or 256, for AesGcm contexts
	ShaVariant       int // 256, 384, or 512, for HmacSha contexts
	IVSizeBytes      int
	ScopeFlags       ScopeFlags
	SecurityBlockCRC int // 0, 16, or 32
	KeyFile          string
	KeyMaterial      []byte // read once at config load time and cached
}

// LoadKeyFile reads a key file's raw bytes once and returns them. Callers
// cache the result in Params.KeyMaterial; no file descriptor is retained
// beyond this call (spec.md §5).
func LoadKeyFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path) //nolint:gosec // operator-provided key path from trusted config
	if err != nil {
		return nil, fmt.Errorf("seccontext: reading key file %q: %w", path, err)
	}
	return b, nil
}

// GcmResult carries an AES-GCM encryption's ciphertext and authentication
// tag, which travel separately in BCB parameters/results per spec.md §4.6.
type GcmResult struct {
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

const gcmTagSize = 16

// AesGcmEncrypt encrypts plaintext with AES-GCM using key (16 or 32 bytes;
// AES-128 or AES-256 follows from its length) and a freshly generated IV
// of ivSizeBytes. The
// returned ciphertext is the same length as plaintext; the tag is 16
// bytes, matching spec.md §4.6.
func AesGcmEncrypt(key, plaintext, aad []byte, ivSizeBytes int) (GcmResult, error) {
	gcm, err := newGCM(key, ivSizeBytes)
	if err != nil {
		return GcmResult{}, err
	}
	iv := make([]byte, ivSizeBytes)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return GcmResult{}, fmt.Errorf("seccontext: generating IV: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, aad)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]
	return GcmResult{IV: iv, Ciphertext: ciphertext, Tag: tag}, nil
}

// AesGcmDecrypt decrypts ciphertext+tag with AES-GCM using key, iv, and
// aad. Returns AuthFail on any tag or AAD mismatch.
func AesGcmDecrypt(key, ciphertext, tag, iv, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key, len(iv))
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, AuthFail
	}
	return plaintext, nil
}

func newGCM(key []byte, ivSizeBytes int) (cipher.AEAD, error) {
	if len(key) != 16 && len(key) != 32 {
		return nil, fmt.Errorf("%w: AES key length %d is neither 128 nor 256 bits", Misconfigured, len(key)*8)
	}
	if ivSizeBytes <= 0 {
		return nil, fmt.Errorf("%w: IV size %d must be positive", Misconfigured, ivSizeBytes)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", Misconfigured, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", Misconfigured, err)
	}
	return gcm, nil
}

// HmacCompute computes an HMAC over aad followed by data using the SHA variant
// (256, 384, or 512) selected by shaVariant.
func HmacCompute(key []byte, shaVariant int, data, aad []byte) ([]byte, error) {
	h, err := newHmac(key, shaVariant)
	if err != nil {
		return nil, err
	}
	h.Write(aad)    //nolint:errcheck // hash.Hash.Write never errors
	h.Write(data)   //nolint:errcheck // hash.Hash.Write never errors
	return h.Sum(nil), nil
}

// HmacVerify recomputes the HMAC over aad followed by data and compares it against tag
// in constant time. Returns AuthFail on mismatch.
func HmacVerify(key []byte, shaVariant int, data, aad, tag []byte) error {
	computed, err := HmacCompute(key, shaVariant, data, aad)
	if err != nil {
		return err
	}
	if !hmac.Equal(computed, tag) {
		return AuthFail
	}
	return nil
}

func newHmac(key []byte, shaVariant int) (hash.Hash, error) {
	switch shaVariant {
	case 256:
		return hmac.New(sha256.New, key), nil
	case 384:
		return hmac.New(sha512.New384, key), nil
	case 512:
		return hmac.New(sha512.New, key), nil
	default:
		return nil, fmt.Errorf("%w: unsupported SHA variant %d", Misconfigured, shaVariant)
	}
}
