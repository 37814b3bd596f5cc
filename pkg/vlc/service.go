package vlc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtengine/tee-attest/pkg/attest"
	"github.com/virtengine/tee-attest/pkg/clock"
	"github.com/virtengine/tee-attest/pkg/transport"
)

// Service implements the attested VLC update algorithm against an
// Attested Secure Module and a matching Verifier.
type Service struct {
	asm      *attest.ASM
	verifier *attest.Verifier
	pcrs     map[int][]byte
	logger   zerolog.Logger
}

// NewService constructs a Service. pcrs pins the PCR values every verified
// non-genesis input clock's attestation document must match.
func NewService(asm *attest.ASM, verifier *attest.Verifier, pcrs map[int][]byte, logger zerolog.Logger) *Service {
	return &Service{asm: asm, verifier: verifier, pcrs: pcrs, logger: logger}
}

// Update verifies every input clock (genesis-exempt), folds prev with
// merged under req.ID, and attests the resulting plain clock.
func (s *Service) Update(req UpdateRequest) (UpdateReply, error) {
	now := time.Now()
	if err := req.Prev.verify(s.verifier, s.pcrs, now); err != nil {
		return UpdateReply{}, fmt.Errorf("vlc: prev clock failed verification: %w", err)
	}
	deps := make([]clock.Ordinary, len(req.Merged))
	for i, ac := range req.Merged {
		if err := ac.verify(s.verifier, s.pcrs, now); err != nil {
			return UpdateReply{}, fmt.Errorf("vlc: merged clock %d failed verification: %w", i, err)
		}
		deps[i] = ac.Plain
	}

	updated := clock.Update(req.Prev.Plain, deps, req.ID)

	digest := clock.Digest(updated)
	doc, err := s.asm.ProcessAttestation(digest[:])
	if err != nil {
		return UpdateReply{}, fmt.Errorf("vlc: attest updated clock: %w", err)
	}

	return UpdateReply{ID: req.ID, Clock: AttestedClock{Plain: updated, Document: doc}}, nil
}

// Worker adapts Update to a transport.Handler: decode a fixed binary
// UpdateRequest, run the algorithm, and encode the reply. Any failure is
// logged and the connection simply receives no reply, per the
// error-as-silence design.
func (s *Service) Worker() transport.Handler {
	return func(_ context.Context, request []byte, reply func([]byte) error) {
		req, err := DecodeUpdateRequest(request)
		if err != nil {
			s.logger.Warn().Err(err).Msg("vlc: malformed update request, dropping")
			return
		}
		resp, err := s.Update(req)
		if err != nil {
			s.logger.Warn().Err(err).Msg("vlc: update rejected")
			return
		}
		if err := reply(resp.Encode()); err != nil {
			s.logger.Warn().Err(err).Msg("vlc: failed to send reply")
		}
	}
}
