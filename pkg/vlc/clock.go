// Package vlc implements the attested verifiable logical clock service: an
// Ordinary Clock wrapped in an attestation document binding its digest,
// updated by folding dependency clocks and bumping a node's own entry.
package vlc

import (
	"errors"
	"fmt"
	"time"

	"github.com/virtengine/tee-attest/pkg/attest"
	"github.com/virtengine/tee-attest/pkg/clock"
	"github.com/virtengine/tee-attest/pkg/wire"
)

// ErrMissingDocument is returned when a non-genesis clock carries no
// attestation document.
var ErrMissingDocument = errors.New("vlc: non-genesis clock carries no attestation document")

// AttestedClock pairs a plain Ordinary Clock with the attestation document
// binding it. The genesis clock is exempt from carrying a document; every
// other clock must.
type AttestedClock struct {
	Plain    clock.Ordinary
	Document []byte
}

// Encode appends ac to w: the plain clock in clock.Encode's own
// length-prefixed pair convention, followed by the attestation document as
// a length-prefixed byte string.
func (ac AttestedClock) Encode(w *wire.Writer) {
	w.ClockOrdinary(ac.Plain)
	w.ByteString(ac.Document)
}

// DecodeAttestedClock reads one AttestedClock from r, the counterpart to
// Encode.
func DecodeAttestedClock(r *wire.Reader) (AttestedClock, error) {
	plain, err := r.ClockOrdinary()
	if err != nil {
		return AttestedClock{}, fmt.Errorf("vlc: decode clock plain: %w", err)
	}
	doc, err := r.ByteString()
	if err != nil {
		return AttestedClock{}, fmt.Errorf("vlc: decode clock document: %w", err)
	}
	return AttestedClock{Plain: plain, Document: doc}, nil
}

// FromGenesis wraps a genesis Ordinary Clock with no attestation document.
func FromGenesis(plain clock.Ordinary) (AttestedClock, error) {
	if !plain.IsGenesis() {
		return AttestedClock{}, ErrMissingDocument
	}
	return AttestedClock{Plain: plain}, nil
}

// verify checks a clock against v and pcrPolicy. A genesis clock always
// verifies without a document; any other clock must carry one whose
// user_data equals the SHA-256 digest of its plain clock.
func (ac AttestedClock) verify(v *attest.Verifier, pcrPolicy map[int][]byte, now time.Time) error {
	if ac.Plain.IsGenesis() {
		return nil
	}
	if len(ac.Document) == 0 {
		return ErrMissingDocument
	}
	doc, err := attest.ParseDocument(ac.Document)
	if err != nil {
		return err
	}
	expected := clock.Digest(ac.Plain)
	_, err = v.VerifyUserData(doc, pcrPolicy, expected, now)
	return err
}
