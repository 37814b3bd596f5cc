// Package inference implements the attested, VRF-gated inference service:
// a prompt is answered only if a per-request VRF evaluation clears a caller
// supplied threshold, and the resulting answer (or the empty string, when
// the gate declines) is attested before it leaves the enclave.
package inference

import (
	"fmt"

	"github.com/virtengine/tee-attest/pkg/wire"
)

// PromptReq is the wire request for one inference call.
type PromptReq struct {
	RequestID     string
	ModelName     string
	Prompt        string
	Temperature   float32
	TopP          float32
	NPredict      uint32
	VRFPromptHash string
	VRFThreshold  uint64
	VRFPrecision  uint32
}

// Encode serializes req in field order, strings length-prefixed, no
// self-describing tags.
func (req PromptReq) Encode() []byte {
	w := wire.NewWriter()
	w.String(req.RequestID)
	w.String(req.ModelName)
	w.String(req.Prompt)
	w.Float32(req.Temperature)
	w.Float32(req.TopP)
	w.Uint32(req.NPredict)
	w.String(req.VRFPromptHash)
	w.Uint64(req.VRFThreshold)
	w.Uint32(req.VRFPrecision)
	return w.Bytes()
}

// DecodePromptReq parses the encoding produced by Encode.
func DecodePromptReq(buf []byte) (PromptReq, error) {
	r := wire.NewReader(buf)
	var req PromptReq
	var err error
	if req.RequestID, err = r.String(); err != nil {
		return PromptReq{}, fmt.Errorf("inference: decode prompt request_id: %w", err)
	}
	if req.ModelName, err = r.String(); err != nil {
		return PromptReq{}, fmt.Errorf("inference: decode prompt model_name: %w", err)
	}
	if req.Prompt, err = r.String(); err != nil {
		return PromptReq{}, fmt.Errorf("inference: decode prompt prompt: %w", err)
	}
	if req.Temperature, err = r.Float32(); err != nil {
		return PromptReq{}, fmt.Errorf("inference: decode prompt temperature: %w", err)
	}
	if req.TopP, err = r.Float32(); err != nil {
		return PromptReq{}, fmt.Errorf("inference: decode prompt top_p: %w", err)
	}
	if req.NPredict, err = r.Uint32(); err != nil {
		return PromptReq{}, fmt.Errorf("inference: decode prompt n_predict: %w", err)
	}
	if req.VRFPromptHash, err = r.String(); err != nil {
		return PromptReq{}, fmt.Errorf("inference: decode prompt vrf_prompt_hash: %w", err)
	}
	if req.VRFThreshold, err = r.Uint64(); err != nil {
		return PromptReq{}, fmt.Errorf("inference: decode prompt vrf_threshold: %w", err)
	}
	if req.VRFPrecision, err = r.Uint32(); err != nil {
		return PromptReq{}, fmt.Errorf("inference: decode prompt vrf_precision: %w", err)
	}
	if err := r.Done(); err != nil {
		return PromptReq{}, fmt.Errorf("inference: decode prompt request: %w", err)
	}
	return req, nil
}

// AnswerResp is the wire reply. Answer is empty when the VRF gate declined
// the request; Document still attests that empty answer.
type AnswerResp struct {
	RequestID       string
	ModelName       string
	Prompt          string
	Answer          string
	ElapsedSeconds  uint64
	Selected        bool
	Document        []byte
	VRFPromptHash   string
	VRFRandomValue  string
	VRFVerifyPubkey string
	VRFProof        string
}

// Encode serializes resp in field order.
func (resp AnswerResp) Encode() []byte {
	w := wire.NewWriter()
	w.String(resp.RequestID)
	w.String(resp.ModelName)
	w.String(resp.Prompt)
	w.String(resp.Answer)
	w.Uint64(resp.ElapsedSeconds)
	w.Bool(resp.Selected)
	w.ByteString(resp.Document)
	w.String(resp.VRFPromptHash)
	w.String(resp.VRFRandomValue)
	w.String(resp.VRFVerifyPubkey)
	w.String(resp.VRFProof)
	return w.Bytes()
}

// DecodeAnswerResp parses the encoding produced by Encode.
func DecodeAnswerResp(buf []byte) (AnswerResp, error) {
	r := wire.NewReader(buf)
	var resp AnswerResp
	var err error
	if resp.RequestID, err = r.String(); err != nil {
		return AnswerResp{}, fmt.Errorf("inference: decode answer request_id: %w", err)
	}
	if resp.ModelName, err = r.String(); err != nil {
		return AnswerResp{}, fmt.Errorf("inference: decode answer model_name: %w", err)
	}
	if resp.Prompt, err = r.String(); err != nil {
		return AnswerResp{}, fmt.Errorf("inference: decode answer prompt: %w", err)
	}
	if resp.Answer, err = r.String(); err != nil {
		return AnswerResp{}, fmt.Errorf("inference: decode answer answer: %w", err)
	}
	if resp.ElapsedSeconds, err = r.Uint64(); err != nil {
		return AnswerResp{}, fmt.Errorf("inference: decode answer elapsed: %w", err)
	}
	if resp.Selected, err = r.Bool(); err != nil {
		return AnswerResp{}, fmt.Errorf("inference: decode answer selected: %w", err)
	}
	if resp.Document, err = r.ByteString(); err != nil {
		return AnswerResp{}, fmt.Errorf("inference: decode answer document: %w", err)
	}
	if resp.VRFPromptHash, err = r.String(); err != nil {
		return AnswerResp{}, fmt.Errorf("inference: decode answer vrf_prompt_hash: %w", err)
	}
	if resp.VRFRandomValue, err = r.String(); err != nil {
		return AnswerResp{}, fmt.Errorf("inference: decode answer vrf_random_value: %w", err)
	}
	if resp.VRFVerifyPubkey, err = r.String(); err != nil {
		return AnswerResp{}, fmt.Errorf("inference: decode answer vrf_verify_pubkey: %w", err)
	}
	if resp.VRFProof, err = r.String(); err != nil {
		return AnswerResp{}, fmt.Errorf("inference: decode answer vrf_proof: %w", err)
	}
	if err := r.Done(); err != nil {
		return AnswerResp{}, fmt.Errorf("inference: decode answer reply: %w", err)
	}
	return resp, nil
}
