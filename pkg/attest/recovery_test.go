package attest

import (
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestRecoverPublicKeyRoundTrip(t *testing.T) {
	priv, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := DigestBytes([]byte("clock digest under test"))

	sig, err := SignRecoverable(priv, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	recovered, err := RecoverPublicKey(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !recovered.Equal(&priv.PublicKey) {
		t.Fatal("recovered key does not match signer")
	}

	want := PublicKeyToAddress(&priv.PublicKey)
	ok, err := VerifyRecoverablePublicKey(digest, sig, want)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected address match")
	}
}

func TestRecoverPublicKeyRejectsWrongLength(t *testing.T) {
	digest := DigestBytes(nil)
	if _, err := RecoverPublicKey(digest, make([]byte, 64)); err != ErrInvalidRecoverableSignature {
		t.Fatalf("expected ErrInvalidRecoverableSignature, got %v", err)
	}
}

func TestVerifyRecoverableRejectsWrongAddress(t *testing.T) {
	priv, _ := gethcrypto.GenerateKey()
	other, _ := gethcrypto.GenerateKey()
	digest := DigestBytes([]byte("payload"))
	sig, _ := SignRecoverable(priv, digest)

	ok, err := VerifyRecoverablePublicKey(digest, sig, PublicKeyToAddress(&other.PublicKey))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expected mismatch against an unrelated key")
	}
}
