package attest

import (
	"testing"

	"github.com/ChainSafe/go-schnorrkel"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestSecp256k1SignAndVerify(t *testing.T) {
	priv, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := DigestBytes([]byte("ordinary clock payload"))

	sig, err := SignSecp256k1(priv, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := VerifySecp256k1(sig, digest, &priv.PublicKey)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify against its own signer")
	}
}

func TestVerifySecp256k1RejectsFlavorMismatch(t *testing.T) {
	sig := SignPlain("not-a-real-signature")
	_, err := VerifySecp256k1(sig, DigestBytes(nil), nil)
	if err != ErrSignatureFlavorMismatch {
		t.Fatalf("expected ErrSignatureFlavorMismatch, got %v", err)
	}
}

func TestSchnorrkelSignAndVerify(t *testing.T) {
	sk, pk, err := schnorrkel.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	msg := []byte("attested clock plain digest")

	sig, err := SignSchnorrkel(sk, "clock-sig", msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := VerifySchnorrkel(sig, pk, "clock-sig", msg)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected schnorrkel signature to verify")
	}
}

func TestVerifyBatchRejectsNonSchnorrkelFlavor(t *testing.T) {
	_, pk, _ := schnorrkel.GenerateKeypair()
	sigs := []Signature{SignPlain("x")}
	_, err := VerifyBatch(sigs, []*schnorrkel.PublicKey{pk}, "label", [][]byte{[]byte("m")})
	if err != ErrUnsupportedBatchFlavor {
		t.Fatalf("expected ErrUnsupportedBatchFlavor, got %v", err)
	}
}

func TestVerifyBatchSchnorrkel(t *testing.T) {
	const n = 4
	sigs := make([]Signature, n)
	pubs := make([]*schnorrkel.PublicKey, n)
	msgs := make([][]byte, n)
	for i := 0; i < n; i++ {
		sk, pk, err := schnorrkel.GenerateKeypair()
		if err != nil {
			t.Fatalf("generate keypair %d: %v", i, err)
		}
		msgs[i] = []byte{byte(i), byte(i + 1)}
		sig, err := SignSchnorrkel(sk, "batch", msgs[i])
		if err != nil {
			t.Fatalf("sign %d: %v", i, err)
		}
		sigs[i] = sig
		pubs[i] = pk
	}

	ok, err := VerifyBatch(sigs, pubs, "batch", msgs)
	if err != nil {
		t.Fatalf("verify batch: %v", err)
	}
	if !ok {
		t.Fatal("expected batch of independently valid signatures to verify")
	}
}
