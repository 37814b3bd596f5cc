package attest

import (
	"testing"

	"github.com/rs/zerolog"
)

func newTestASM(t *testing.T) *ASM {
	t.Helper()
	a := NewASM("test-module", zerolog.Nop())
	if err := a.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return a
}

func TestASMDescribePCRBeforeInit(t *testing.T) {
	a := NewASM("test-module", zerolog.Nop())
	if _, err := a.DescribePCR(PCRIndexEIF); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestASMDescribePCRIsStableAcrossCalls(t *testing.T) {
	a := newTestASM(t)
	p1, err := a.DescribePCR(PCRIndexEIF)
	if err != nil {
		t.Fatalf("describe pcr: %v", err)
	}
	p2, err := a.DescribePCR(PCRIndexEIF)
	if err != nil {
		t.Fatalf("describe pcr: %v", err)
	}
	if string(p1) != string(p2) {
		t.Fatal("repeated DescribePCR calls on the same adapter must agree")
	}
	if len(p1) != 48 {
		t.Fatalf("expected a 48-byte SHA-384 PCR value, got %d bytes", len(p1))
	}
}

func TestASMSameModuleIDProducesSamePCRs(t *testing.T) {
	a := NewASM("image-v1", zerolog.Nop())
	b := NewASM("image-v1", zerolog.Nop())
	if err := a.Init(); err != nil {
		t.Fatalf("init a: %v", err)
	}
	if err := b.Init(); err != nil {
		t.Fatalf("init b: %v", err)
	}
	pa, _ := a.DescribePCR(PCRIndexApp)
	pb, _ := b.DescribePCR(PCRIndexApp)
	if string(pa) != string(pb) {
		t.Fatal("two simulated adapters for the same module id must agree on PCRs")
	}
}

func TestASMProcessAttestationParsesAndValidates(t *testing.T) {
	a := newTestASM(t)
	userData := DigestBytes([]byte("hello"))
	raw, err := a.ProcessAttestation(userData[:])
	if err != nil {
		t.Fatalf("process attestation: %v", err)
	}

	doc, err := ParseDocument(raw)
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}
	if err := ValidateDocument(doc); err != nil {
		t.Fatalf("validate document: %v", err)
	}
	if string(doc.Payload.UserData) != string(userData[:]) {
		t.Fatal("document user_data does not match the bound value")
	}
}
