package inference

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtengine/tee-attest/pkg/attest"
)

type stubGenerator struct {
	answer string
	err    error
	calls  int
}

func (g *stubGenerator) Generate(_ context.Context, _ PromptReq) (string, error) {
	g.calls++
	return g.answer, g.err
}

func newTestService(t *testing.T, gen Generator) (*Service, *attest.ASM) {
	t.Helper()
	asm := attest.NewASM("inference-test", zerolog.Nop())
	if err := asm.Init(); err != nil {
		t.Fatalf("asm init: %v", err)
	}
	return NewService(asm, gen, zerolog.Nop()), asm
}

func verifierFor(t *testing.T, asm *attest.ASM) (*attest.Verifier, map[int][]byte) {
	t.Helper()
	pemCert, err := asm.SigningCertificatePEM()
	if err != nil {
		t.Fatalf("signing cert: %v", err)
	}
	v, err := attest.NewVerifier(attest.VerifierConfig{RootCAPEM: pemCert, MaxDocumentAge: time.Hour}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	pcr0, err := asm.DescribePCR(attest.PCRIndexEIF)
	if err != nil {
		t.Fatalf("describe pcr: %v", err)
	}
	return v, map[int][]byte{attest.PCRIndexEIF: pcr0}
}

// A threshold of 0 can never be met (output is never negative); a threshold
// one past the full precision window's maximum value is always met. Both
// are deterministic regardless of the VRF key generated per call.
const (
	neverSelectedThreshold  = 0
	alwaysSelectedPrecision = 4
	alwaysSelectedThreshold = uint64(1) << (alwaysSelectedPrecision * 4)
)

func TestAnswerGeneratesWhenVRFSelects(t *testing.T) {
	gen := &stubGenerator{answer: "the answer"}
	svc, asm := newTestService(t, gen)

	req := PromptReq{
		RequestID:     "r1",
		ModelName:     "m",
		Prompt:        "hello",
		VRFPromptHash: "deadbeef",
		VRFThreshold:  alwaysSelectedThreshold,
		VRFPrecision:  alwaysSelectedPrecision,
	}
	resp, err := svc.Answer(context.Background(), req)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !resp.Selected {
		t.Fatal("expected the VRF gate to select with an always-met threshold")
	}
	if resp.Answer != "the answer" {
		t.Fatalf("expected generator output, got %q", resp.Answer)
	}
	if gen.calls != 1 {
		t.Fatalf("expected exactly one generation call, got %d", gen.calls)
	}

	v, policy := verifierFor(t, asm)
	if err := VerifyAnswer(v, resp, policy, time.Now()); err != nil {
		t.Fatalf("verify answer: %v", err)
	}
}

func TestAnswerSkipsGenerationWhenVRFDeclines(t *testing.T) {
	gen := &stubGenerator{answer: "should not be used"}
	svc, asm := newTestService(t, gen)

	req := PromptReq{
		RequestID:     "r2",
		ModelName:     "m",
		Prompt:        "hello",
		VRFPromptHash: "deadbeef",
		VRFThreshold:  neverSelectedThreshold,
		VRFPrecision:  4,
	}
	resp, err := svc.Answer(context.Background(), req)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if resp.Selected {
		t.Fatal("expected the VRF gate to decline with a zero threshold")
	}
	if resp.Answer != "" {
		t.Fatalf("expected an empty answer when declined, got %q", resp.Answer)
	}
	if gen.calls != 0 {
		t.Fatalf("expected the generator never to be called, got %d calls", gen.calls)
	}

	v, policy := verifierFor(t, asm)
	if err := VerifyAnswer(v, resp, policy, time.Now()); err != nil {
		t.Fatalf("verify declined answer: %v", err)
	}
}

func TestAnswerPropagatesGeneratorError(t *testing.T) {
	gen := &stubGenerator{err: errGenFailed}
	svc, _ := newTestService(t, gen)

	req := PromptReq{
		VRFPromptHash: "deadbeef",
		VRFThreshold:  alwaysSelectedThreshold,
		VRFPrecision:  alwaysSelectedPrecision,
	}
	if _, err := svc.Answer(context.Background(), req); err == nil {
		t.Fatal("expected generator failure to propagate")
	}
}

func TestWorkerRoundTripsOverTransport(t *testing.T) {
	gen := &stubGenerator{answer: "ok"}
	svc, _ := newTestService(t, gen)
	handler := svc.Worker()

	req := PromptReq{
		RequestID:     "r3",
		VRFPromptHash: "deadbeef",
		VRFThreshold:  alwaysSelectedThreshold,
		VRFPrecision:  alwaysSelectedPrecision,
	}
	buf := req.Encode()

	repliedCh := make(chan []byte, 1)
	handler(context.Background(), buf, func(out []byte) error {
		repliedCh <- out
		return nil
	})

	select {
	case out := <-repliedCh:
		resp, err := DecodeAnswerResp(out)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.RequestID != "r3" || resp.Answer != "ok" {
			t.Fatalf("unexpected reply: %+v", resp)
		}
	default:
		t.Fatal("expected the worker to reply synchronously")
	}
}

type genError string

func (e genError) Error() string { return string(e) }

const errGenFailed = genError("generator unavailable")
