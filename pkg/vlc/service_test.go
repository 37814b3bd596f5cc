package vlc

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtengine/tee-attest/pkg/attest"
	"github.com/virtengine/tee-attest/pkg/clock"
)

func newTestService(t *testing.T, moduleID string) (*Service, *attest.ASM) {
	t.Helper()
	asm := attest.NewASM(moduleID, zerolog.Nop())
	if err := asm.Init(); err != nil {
		t.Fatalf("asm init: %v", err)
	}
	pemCert, err := asm.SigningCertificatePEM()
	if err != nil {
		t.Fatalf("signing cert: %v", err)
	}
	verifier, err := attest.NewVerifier(attest.VerifierConfig{RootCAPEM: pemCert, MaxDocumentAge: time.Hour}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	pcr0, err := asm.DescribePCR(attest.PCRIndexEIF)
	if err != nil {
		t.Fatalf("describe pcr: %v", err)
	}
	policy := map[int][]byte{attest.PCRIndexEIF: pcr0}
	return NewService(asm, verifier, policy, zerolog.Nop()), asm
}

func genesisClock(t *testing.T) AttestedClock {
	t.Helper()
	ac, err := FromGenesis(clock.New())
	if err != nil {
		t.Fatalf("from genesis: %v", err)
	}
	return ac
}

// TestUpdateFromGenesisBumpsAndAttests mirrors S1.
func TestUpdateFromGenesisBumpsAndAttests(t *testing.T) {
	svc, _ := newTestService(t, "vlc-s1")

	reply, err := svc.Update(UpdateRequest{Prev: genesisClock(t), ID: 7})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if reply.Clock.Plain[7] != 1 {
		t.Fatalf("expected node 7 to advance to 1, got %d", reply.Clock.Plain[7])
	}
	if len(reply.Clock.Document) == 0 {
		t.Fatal("expected a non-empty attestation document on the updated clock")
	}
}

// TestUpdateMergesSiblingClocks mirrors S2: two independent genesis-derived
// branches (node ids 1 and 2) merge under branch A's node id 1, with the
// result dominating both.
func TestUpdateMergesSiblingClocks(t *testing.T) {
	svc, _ := newTestService(t, "vlc-s2")

	branchA, err := svc.Update(UpdateRequest{Prev: genesisClock(t), ID: 1})
	if err != nil {
		t.Fatalf("branch a: %v", err)
	}
	branchB, err := svc.Update(UpdateRequest{Prev: genesisClock(t), ID: 2})
	if err != nil {
		t.Fatalf("branch b: %v", err)
	}

	merged, err := svc.Update(UpdateRequest{
		Prev:   branchA.Clock,
		Merged: []AttestedClock{branchB.Clock},
		ID:     1,
	})
	if err != nil {
		t.Fatalf("merge update: %v", err)
	}
	if merged.Clock.Plain[1] != 2 {
		t.Fatalf("expected node 1 to advance to 2, got %d", merged.Clock.Plain[1])
	}
	if merged.Clock.Plain[2] != 1 {
		t.Fatalf("expected merged clock to retain node 2's entry, got %d", merged.Clock.Plain[2])
	}
	if clock.PartialCompare(branchA.Clock.Plain, merged.Clock.Plain) != clock.Less {
		t.Fatal("merged clock must strictly dominate branch A")
	}
	if clock.PartialCompare(branchB.Clock.Plain, merged.Clock.Plain) != clock.Less {
		t.Fatal("merged clock must strictly dominate branch B")
	}
}

// TestUpdateRejectsPCRMismatch mirrors S3: an input clock attested under a
// different enclave image must be rejected.
func TestUpdateRejectsPCRMismatch(t *testing.T) {
	svc, _ := newTestService(t, "vlc-trusted-image")
	foreignSvc, _ := newTestService(t, "vlc-different-image")

	foreignClock, err := foreignSvc.Update(UpdateRequest{Prev: genesisClock(t), ID: 1})
	if err != nil {
		t.Fatalf("foreign update: %v", err)
	}

	if _, err := svc.Update(UpdateRequest{Prev: foreignClock.Clock, ID: 2}); err == nil {
		t.Fatal("expected update with a foreign-image input clock to be rejected")
	}
}

// TestUpdateRejectsTamperedInputClock mirrors S4: mutating a clock's plain
// value after it was attested must break verification of its own document.
func TestUpdateRejectsTamperedInputClock(t *testing.T) {
	svc, _ := newTestService(t, "vlc-s4")

	step, err := svc.Update(UpdateRequest{Prev: genesisClock(t), ID: 1})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	tampered := step.Clock
	tampered.Plain = tampered.Plain.Clone()
	tampered.Plain[1] = 99

	if _, err := svc.Update(UpdateRequest{Prev: tampered, ID: 2}); err == nil {
		t.Fatal("expected tampered input clock to fail verification")
	}
}

func TestServiceWorkerRoundTripsOverTransport(t *testing.T) {
	svc, _ := newTestService(t, "vlc-worker")
	handler := svc.Worker()

	ctx := context.Background()
	req := UpdateRequest{Prev: genesisClock(t), ID: 3}
	buf := req.Encode()

	repliedCh := make(chan []byte, 1)
	handler(ctx, buf, func(out []byte) error {
		repliedCh <- out
		return nil
	})

	select {
	case out := <-repliedCh:
		resp, err := DecodeUpdateReply(out)
		if err != nil {
			t.Fatalf("decode reply: %v", err)
		}
		if resp.ID != 3 || resp.Clock.Plain[3] != 1 {
			t.Fatalf("unexpected reply: %+v", resp)
		}
	default:
		t.Fatal("expected the worker to call reply synchronously")
	}
}
