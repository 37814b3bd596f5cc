package vlc

import (
	"fmt"

	"github.com/virtengine/tee-attest/pkg/wire"
)

// UpdateRequest is the wire request for an attested clock update: fold prev
// with every clock in merged, under the caller's node id.
type UpdateRequest struct {
	Prev   AttestedClock
	Merged []AttestedClock
	ID     uint64
}

// Encode serializes req in field order: prev, merged as a length-prefixed
// sequence of attested clocks, then id. No self-describing tags.
func (req UpdateRequest) Encode() []byte {
	w := wire.NewWriter()
	req.Prev.Encode(w)
	w.Uint64(uint64(len(req.Merged)))
	for _, ac := range req.Merged {
		ac.Encode(w)
	}
	w.Uint64(req.ID)
	return w.Bytes()
}

// DecodeUpdateRequest parses the encoding produced by Encode.
func DecodeUpdateRequest(buf []byte) (UpdateRequest, error) {
	r := wire.NewReader(buf)
	prev, err := DecodeAttestedClock(r)
	if err != nil {
		return UpdateRequest{}, fmt.Errorf("vlc: decode update request prev: %w", err)
	}
	count, err := r.Uint64()
	if err != nil {
		return UpdateRequest{}, fmt.Errorf("vlc: decode update request merged count: %w", err)
	}
	merged := make([]AttestedClock, count)
	for i := range merged {
		ac, err := DecodeAttestedClock(r)
		if err != nil {
			return UpdateRequest{}, fmt.Errorf("vlc: decode update request merged[%d]: %w", i, err)
		}
		merged[i] = ac
	}
	id, err := r.Uint64()
	if err != nil {
		return UpdateRequest{}, fmt.Errorf("vlc: decode update request id: %w", err)
	}
	if err := r.Done(); err != nil {
		return UpdateRequest{}, fmt.Errorf("vlc: decode update request: %w", err)
	}
	return UpdateRequest{Prev: prev, Merged: merged, ID: id}, nil
}

// UpdateReply is the wire reply: the request id paired with the freshly
// updated and attested clock.
type UpdateReply struct {
	ID    uint64
	Clock AttestedClock
}

// Encode serializes resp in field order: id, then clock.
func (resp UpdateReply) Encode() []byte {
	w := wire.NewWriter()
	w.Uint64(resp.ID)
	resp.Clock.Encode(w)
	return w.Bytes()
}

// DecodeUpdateReply parses the encoding produced by Encode.
func DecodeUpdateReply(buf []byte) (UpdateReply, error) {
	r := wire.NewReader(buf)
	id, err := r.Uint64()
	if err != nil {
		return UpdateReply{}, fmt.Errorf("vlc: decode update reply id: %w", err)
	}
	c, err := DecodeAttestedClock(r)
	if err != nil {
		return UpdateReply{}, fmt.Errorf("vlc: decode update reply clock: %w", err)
	}
	if err := r.Done(); err != nil {
		return UpdateReply{}, fmt.Errorf("vlc: decode update reply: %w", err)
	}
	return UpdateReply{ID: id, Clock: c}, nil
}
