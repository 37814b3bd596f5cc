package inference

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtengine/tee-attest/pkg/attest"
	"github.com/virtengine/tee-attest/pkg/transport"
	"github.com/virtengine/tee-attest/pkg/vrf"
)

// Service implements the attested, VRF-gated inference algorithm.
type Service struct {
	asm       *attest.ASM
	generator Generator
	logger    zerolog.Logger
}

// NewService constructs a Service backed by generator.
func NewService(asm *attest.ASM, generator Generator, logger zerolog.Logger) *Service {
	return &Service{asm: asm, generator: generator, logger: logger}
}

// Answer evaluates the VRF gate over req, generates only if selected, and
// attests the digest of the resulting answer (the empty string counts as an
// answer when the gate declines).
func (s *Service) Answer(ctx context.Context, req PromptReq) (AnswerResp, error) {
	start := time.Now()

	keyPair, err := vrf.GenerateKeyPair()
	if err != nil {
		return AnswerResp{}, fmt.Errorf("inference: generate vrf key: %w", err)
	}
	selection, err := vrf.Select(keyPair, []byte(req.VRFPromptHash), req.VRFThreshold, int(req.VRFPrecision))
	if err != nil {
		return AnswerResp{}, fmt.Errorf("inference: vrf gate: %w", err)
	}

	var answer string
	if selection.Selected {
		answer, err = s.generator.Generate(ctx, req)
		if err != nil {
			return AnswerResp{}, fmt.Errorf("inference: generate: %w", err)
		}
	}

	// Elapsed time is measured here, before attestation, so document
	// generation latency is never counted against the reported duration.
	elapsed := uint64(time.Since(start).Seconds())

	digest := sha256.Sum256([]byte(answer))
	doc, err := s.asm.ProcessAttestation(digest[:])
	if err != nil {
		return AnswerResp{}, fmt.Errorf("inference: attest answer: %w", err)
	}

	return AnswerResp{
		RequestID:       req.RequestID,
		ModelName:       req.ModelName,
		Prompt:          req.Prompt,
		Answer:          answer,
		ElapsedSeconds:  elapsed,
		Selected:        selection.Selected,
		Document:        doc,
		VRFPromptHash:   req.VRFPromptHash,
		VRFRandomValue:  selection.OutputHex,
		VRFVerifyPubkey: selection.PublicKeyHex,
		VRFProof:        selection.ProofHex,
	}, nil
}

// VerifyAnswer checks that resp's attestation document binds SHA-256 of
// resp.Answer under v's pinned PCR policy.
func VerifyAnswer(v *attest.Verifier, resp AnswerResp, pcrPolicy map[int][]byte, now time.Time) error {
	doc, err := attest.ParseDocument(resp.Document)
	if err != nil {
		return err
	}
	expected := sha256.Sum256([]byte(resp.Answer))
	_, err = v.VerifyUserData(doc, pcrPolicy, expected, now)
	return err
}

// Worker adapts Answer to a transport.Handler.
func (s *Service) Worker() transport.Handler {
	return func(ctx context.Context, request []byte, reply func([]byte) error) {
		req, err := DecodePromptReq(request)
		if err != nil {
			s.logger.Warn().Err(err).Msg("inference: malformed prompt request, dropping")
			return
		}
		resp, err := s.Answer(ctx, req)
		if err != nil {
			s.logger.Warn().Err(err).Msg("inference: answer failed")
			return
		}
		if err := reply(resp.Encode()); err != nil {
			s.logger.Warn().Err(err).Msg("inference: failed to send reply")
		}
	}
}
