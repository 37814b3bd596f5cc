package attest

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ChainSafe/go-schnorrkel"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Flavor tags the variant carried by a Signature.
type Flavor int

const (
	// FlavorPlain wraps an unauthenticated plaintext tag, for tests only.
	FlavorPlain Flavor = iota
	// FlavorSecp256k1 is an ECDSA signature over a SHA-256 digest.
	FlavorSecp256k1
	// FlavorSchnorrkel is a ristretto255 Schnorrkel signature.
	FlavorSchnorrkel
)

// ErrUnsupportedBatchFlavor is returned when VerifyBatch is asked to verify
// anything other than a uniform slice of Schnorrkel signatures.
var ErrUnsupportedBatchFlavor = errors.New("attest: batched verification is only supported for schnorrkel signatures")

// ErrSignatureFlavorMismatch is returned when a verify call receives a
// Signature whose Flavor does not match the key supplied.
var ErrSignatureFlavorMismatch = errors.New("attest: signature flavor does not match key type")

// Signature is a tagged union over the three supported signature flavors.
type Signature struct {
	Flavor    Flavor
	Plain     string
	Secp256k1 []byte // 65-byte compact r||s||v
	Schnorr   *schnorrkel.Signature
}

// SignPlain wraps a string as an unauthenticated test signature.
func SignPlain(tag string) Signature {
	return Signature{Flavor: FlavorPlain, Plain: tag}
}

// SignSecp256k1 signs digest (expected to be 32 bytes) with an ECDSA key.
func SignSecp256k1(priv *ecdsa.PrivateKey, digest [32]byte) (Signature, error) {
	sig, err := gethcrypto.Sign(digest[:], priv)
	if err != nil {
		return Signature{}, fmt.Errorf("attest: secp256k1 sign: %w", err)
	}
	return Signature{Flavor: FlavorSecp256k1, Secp256k1: sig}, nil
}

// VerifySecp256k1 recovers the signer from sig and compares it to want.
func VerifySecp256k1(sig Signature, digest [32]byte, want *ecdsa.PublicKey) (bool, error) {
	if sig.Flavor != FlavorSecp256k1 {
		return false, ErrSignatureFlavorMismatch
	}
	pub, err := gethcrypto.SigToPub(digest[:], sig.Secp256k1)
	if err != nil {
		return false, fmt.Errorf("attest: secp256k1 recover: %w", err)
	}
	return pub.Equal(want), nil
}

// SignSchnorrkel signs msg under the given transcript label with sk.
func SignSchnorrkel(sk *schnorrkel.SecretKey, label string, msg []byte) (Signature, error) {
	t := schnorrkel.NewSigningContext([]byte(label), msg)
	sig, err := sk.Sign(t)
	if err != nil {
		return Signature{}, fmt.Errorf("attest: schnorrkel sign: %w", err)
	}
	return Signature{Flavor: FlavorSchnorrkel, Schnorr: sig}, nil
}

// VerifySchnorrkel verifies a single Schnorrkel signature.
func VerifySchnorrkel(sig Signature, pub *schnorrkel.PublicKey, label string, msg []byte) (bool, error) {
	if sig.Flavor != FlavorSchnorrkel {
		return false, ErrSignatureFlavorMismatch
	}
	t := schnorrkel.NewSigningContext([]byte(label), msg)
	return pub.Verify(sig.Schnorr, t)
}

// VerifyBatch verifies a slice of signatures against parallel messages and
// public keys. Only the Schnorrkel flavor supports true batching; any other
// flavor (or a mixed slice) is rejected rather than silently looping through
// individual verifications.
func VerifyBatch(sigs []Signature, pubs []*schnorrkel.PublicKey, label string, msgs [][]byte) (bool, error) {
	if len(sigs) != len(pubs) || len(sigs) != len(msgs) {
		return false, errors.New("attest: mismatched batch lengths")
	}
	transcripts := make([]*schnorrkel.SigningTranscript, len(sigs))
	signatures := make([]*schnorrkel.Signature, len(sigs))
	for i, sig := range sigs {
		if sig.Flavor != FlavorSchnorrkel {
			return false, ErrUnsupportedBatchFlavor
		}
		transcripts[i] = schnorrkel.NewSigningContext([]byte(label), msgs[i])
		signatures[i] = sig.Schnorr
	}
	return schnorrkel.VerifyBatch(transcripts, signatures, pubs)
}
