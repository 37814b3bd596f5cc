package attest

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// DigestAlgorithm selects the underlying hash used by a structural digest.
type DigestAlgorithm int

const (
	// SHA256 is the default digest algorithm, used for every attestation
	// user_data binding in this system.
	SHA256 DigestAlgorithm = iota
	// Blake2b256 is offered as an alternate structural digest algorithm.
	Blake2b256
)

// ErrUnknownDigestAlgorithm is returned for an unrecognized DigestAlgorithm value.
var ErrUnknownDigestAlgorithm = errors.New("attest: unknown digest algorithm")

func newHasher(alg DigestAlgorithm) (hash.Hash, error) {
	switch alg {
	case SHA256:
		return sha256.New(), nil
	case Blake2b256:
		return blake2b.New256(nil)
	default:
		return nil, ErrUnknownDigestAlgorithm
	}
}

// StructuralHasher accumulates a value's fields in declaration order, always
// writing integers little-endian and byte slices raw, so that equal values
// produce equal digests regardless of the host platform's native endianness.
type StructuralHasher struct {
	h hash.Hash
}

// NewStructuralHasher constructs a hasher over the given algorithm.
func NewStructuralHasher(alg DigestAlgorithm) (*StructuralHasher, error) {
	h, err := newHasher(alg)
	if err != nil {
		return nil, err
	}
	return &StructuralHasher{h: h}, nil
}

// WriteUint64 feeds a little-endian u64 field.
func (s *StructuralHasher) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	s.h.Write(b[:])
}

// WriteUint32 feeds a little-endian u32 field.
func (s *StructuralHasher) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	s.h.Write(b[:])
}

// WriteBytes feeds a raw byte slice field.
func (s *StructuralHasher) WriteBytes(b []byte) {
	s.h.Write(b)
}

// Sum returns the accumulated digest.
func (s *StructuralHasher) Sum() []byte {
	return s.h.Sum(nil)
}

// DigestBytes hashes an already-encoded byte slice with SHA-256, the
// convention used for every attestation user_data binding (OC plain value,
// inference answer bytes).
func DigestBytes(b []byte) [32]byte {
	return sha256.Sum256(b)
}
