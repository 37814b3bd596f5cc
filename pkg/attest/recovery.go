package attest

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidRecoverableSignature is returned for a signature that is not
// exactly 65 bytes (r||s||v compact form).
var ErrInvalidRecoverableSignature = errors.New("attest: recoverable signature must be 65 bytes")

// RecoverPublicKey recovers the uncompressed public key from a 65-byte
// compact signature (r||s||v) over a 32-byte digest.
func RecoverPublicKey(digest [32]byte, sig []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != 65 {
		return nil, ErrInvalidRecoverableSignature
	}
	pub, err := gethcrypto.SigToPub(digest[:], sig)
	if err != nil {
		return nil, fmt.Errorf("attest: recover public key: %w", err)
	}
	return pub, nil
}

// PublicKeyToAddress derives the 20-byte Ethereum-style address from an
// uncompressed public key: keccak256 of the 64-byte X||Y coordinates, last
// 20 bytes.
func PublicKeyToAddress(pub *ecdsa.PublicKey) common.Address {
	return gethcrypto.PubkeyToAddress(*pub)
}

// VerifyRecoverablePublicKey recovers the signer from sig over digest and
// reports whether the recovered address matches want.
func VerifyRecoverablePublicKey(digest [32]byte, sig []byte, want common.Address) (bool, error) {
	pub, err := RecoverPublicKey(digest, sig)
	if err != nil {
		return false, err
	}
	return PublicKeyToAddress(pub) == want, nil
}

// SignRecoverable produces a 65-byte compact (r||s||v) signature over digest.
func SignRecoverable(priv *ecdsa.PrivateKey, digest [32]byte) ([]byte, error) {
	sig, err := gethcrypto.Sign(digest[:], priv)
	if err != nil {
		return nil, fmt.Errorf("attest: sign recoverable: %w", err)
	}
	return sig, nil
}
