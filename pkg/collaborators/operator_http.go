package collaborators

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/virtengine/tee-attest/pkg/clock"
	"github.com/virtengine/tee-attest/pkg/inference"
	"github.com/virtengine/tee-attest/pkg/transport"
	"github.com/virtengine/tee-attest/pkg/vlc"
)

// OperatorStatus is the payload returned from the operator health endpoint.
type OperatorStatus struct {
	ModuleID  string    `json:"module_id"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
}

// StatusFunc produces the current status on each request; it must not block
// on the attested hot path.
type StatusFunc func() OperatorStatus

// NewOperatorRouter builds the operator-facing REST façade: a liveness
// endpoint plus JSON-over-HTTP fronts for the two enclaves, each forwarding
// the translated wire request over its own portal session and waiting at
// most callTimeout for a correlated reply. vlcPortal or llmPortal may be nil
// if that enclave isn't wired up (its route then answers 503).
func NewOperatorRouter(status StatusFunc, vlcPortal, llmPortal *transport.Portal, callTimeout time.Duration, logger zerolog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware(logger))
	r.HandleFunc("/healthz", healthzHandler(status)).Methods(http.MethodGet)
	r.HandleFunc("/vlc/update", vlcUpdateHandler(vlcPortal, callTimeout)).Methods(http.MethodPost)
	r.HandleFunc("/llm/prompt", llmPromptHandler(llmPortal, callTimeout)).Methods(http.MethodPost)
	return r
}

func healthzHandler(status StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status())
	}
}

// attestedClockDTO mirrors vlc.AttestedClock for JSON transport: Plain as a
// plain key/value map and Document base64-encoded, since JSON has no
// first-class byte string.
type attestedClockDTO struct {
	Plain    map[string]uint32 `json:"plain"`
	Document []byte            `json:"document,omitempty"`
}

func (dto attestedClockDTO) toWire() (vlc.AttestedClock, error) {
	plain := make(clock.Ordinary, len(dto.Plain))
	for k, v := range dto.Plain {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return vlc.AttestedClock{}, fmt.Errorf("clock entry key %q: %w", k, err)
		}
		plain[id] = v
	}
	return vlc.AttestedClock{Plain: plain, Document: dto.Document}, nil
}

func attestedClockFromWire(ac vlc.AttestedClock) attestedClockDTO {
	plain := make(map[string]uint32, len(ac.Plain))
	for k, v := range ac.Plain {
		plain[strconv.FormatUint(k, 10)] = v
	}
	return attestedClockDTO{Plain: plain, Document: ac.Document}
}

type vlcUpdateRequestDTO struct {
	Prev   attestedClockDTO   `json:"prev"`
	Merged []attestedClockDTO `json:"merged"`
	ID     uint64             `json:"id"`
}

type vlcUpdateReplyDTO struct {
	ID    uint64           `json:"id"`
	Clock attestedClockDTO `json:"clock"`
}

// vlcUpdateHandler forwards an attested clock update to the VLC enclave over
// portal and translates its reply back to JSON.
func vlcUpdateHandler(portal *transport.Portal, callTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if portal == nil {
			http.Error(w, "vlc portal not configured", http.StatusServiceUnavailable)
			return
		}
		var body vlcUpdateRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
			return
		}
		prev, err := body.Prev.toWire()
		if err != nil {
			http.Error(w, fmt.Sprintf("decode prev clock: %v", err), http.StatusBadRequest)
			return
		}
		merged := make([]vlc.AttestedClock, len(body.Merged))
		for i, m := range body.Merged {
			ac, err := m.toWire()
			if err != nil {
				http.Error(w, fmt.Sprintf("decode merged[%d] clock: %v", i, err), http.StatusBadRequest)
				return
			}
			merged[i] = ac
		}
		req := vlc.UpdateRequest{Prev: prev, Merged: merged, ID: body.ID}

		ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
		defer cancel()
		reply, err := portal.Call(ctx, req.ID, req.Encode())
		if err != nil {
			http.Error(w, fmt.Sprintf("vlc update: %v", err), http.StatusBadGateway)
			return
		}
		resp, err := vlc.DecodeUpdateReply(reply)
		if err != nil {
			http.Error(w, fmt.Sprintf("decode vlc reply: %v", err), http.StatusBadGateway)
			return
		}
		writeJSON(w, vlcUpdateReplyDTO{ID: resp.ID, Clock: attestedClockFromWire(resp.Clock)})
	}
}

type llmPromptRequestDTO struct {
	RequestID     string  `json:"request_id"`
	ModelName     string  `json:"model_name"`
	Prompt        string  `json:"prompt"`
	Temperature   float32 `json:"temperature"`
	TopP          float32 `json:"top_p"`
	NPredict      uint32  `json:"n_predict"`
	VRFPromptHash string  `json:"vrf_prompt_hash"`
	VRFThreshold  uint64  `json:"vrf_threshold"`
	VRFPrecision  uint32  `json:"vrf_precision"`
}

type llmAnswerResponseDTO struct {
	RequestID       string `json:"request_id"`
	ModelName       string `json:"model_name"`
	Prompt          string `json:"prompt"`
	Answer          string `json:"answer"`
	ElapsedSeconds  uint64 `json:"elapsed_seconds"`
	Selected        bool   `json:"selected"`
	Document        string `json:"document,omitempty"`
	VRFPromptHash   string `json:"vrf_prompt_hash"`
	VRFRandomValue  string `json:"vrf_random_value"`
	VRFVerifyPubkey string `json:"vrf_verify_pubkey"`
	VRFProof        string `json:"vrf_proof"`
}

// llmPromptHandler forwards a prompt to the inference enclave over portal
// and translates its attested answer back to JSON.
func llmPromptHandler(portal *transport.Portal, callTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if portal == nil {
			http.Error(w, "llm portal not configured", http.StatusServiceUnavailable)
			return
		}
		var body llmPromptRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
			return
		}
		req := inference.PromptReq{
			RequestID:     body.RequestID,
			ModelName:     body.ModelName,
			Prompt:        body.Prompt,
			Temperature:   body.Temperature,
			TopP:          body.TopP,
			NPredict:      body.NPredict,
			VRFPromptHash: body.VRFPromptHash,
			VRFThreshold:  body.VRFThreshold,
			VRFPrecision:  body.VRFPrecision,
		}

		ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
		defer cancel()
		reply, err := portal.Call(ctx, inference.CorrelationID(req.RequestID), req.Encode())
		if err != nil {
			http.Error(w, fmt.Sprintf("llm prompt: %v", err), http.StatusBadGateway)
			return
		}
		resp, err := inference.DecodeAnswerResp(reply)
		if err != nil {
			http.Error(w, fmt.Sprintf("decode llm reply: %v", err), http.StatusBadGateway)
			return
		}
		writeJSON(w, llmAnswerResponseDTO{
			RequestID:       resp.RequestID,
			ModelName:       resp.ModelName,
			Prompt:          resp.Prompt,
			Answer:          resp.Answer,
			ElapsedSeconds:  resp.ElapsedSeconds,
			Selected:        resp.Selected,
			Document:        base64.StdEncoding.EncodeToString(resp.Document),
			VRFPromptHash:   resp.VRFPromptHash,
			VRFRandomValue:  resp.VRFRandomValue,
			VRFVerifyPubkey: resp.VRFVerifyPubkey,
			VRFProof:        resp.VRFProof,
		})
	}
}

func requestIDMiddleware(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.NewString()
			w.Header().Set("X-Request-Id", id)
			logger.Debug().Str("request_id", id).Str("path", r.URL.Path).Msg("operator: request")
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
