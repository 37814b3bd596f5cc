// Package vrf implements the Schnorrkel-based verifiable random function
// gate that decides whether an attested inference request is honored, and
// the hex-window sampler that turns a VRF output into a threshold decision.
package vrf

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ChainSafe/go-schnorrkel"
	"github.com/gtank/merlin"
)

const transcriptLabel = "tee-attest-vrf"

// OutputSize is the byte length of a VRF output point.
const OutputSize = 32

// ProofSize is the byte length of an encoded VRF proof.
const ProofSize = 64

// ErrKeyGeneration is returned when key pair generation fails.
var ErrKeyGeneration = errors.New("vrf: key generation failed")

// KeyPair holds a VRF secret/public key pair, generated fresh per inference
// request so no VRF key is ever reused across prompts.
type KeyPair struct {
	Public *schnorrkel.PublicKey
	Secret *schnorrkel.SecretKey
}

// GenerateKeyPair produces a fresh random VRF key pair.
func GenerateKeyPair() (*KeyPair, error) {
	sec, pub, err := schnorrkel.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return &KeyPair{Public: pub, Secret: sec}, nil
}

// PublicKeyHex returns the hex-encoded public key, carried on the wire as
// vrf_verify_pubkey.
func (kp *KeyPair) PublicKeyHex() string {
	enc := kp.Public.Encode()
	return hex.EncodeToString(enc[:])
}

// Proof is a VRF output together with its proof of correct evaluation.
type Proof struct {
	Output [OutputSize]byte
	Proof  [ProofSize]byte
}

func newTranscript(message []byte) *merlin.Transcript {
	t := merlin.NewTranscript(transcriptLabel)
	t.AppendMessage([]byte("message"), message)
	return t
}

// Prove evaluates the VRF over message, mirroring run_vrf's
// private_key.prove(message) step.
func (kp *KeyPair) Prove(message []byte) (*Proof, error) {
	inout, proof, err := kp.Secret.VrfSign(newTranscript(message))
	if err != nil {
		return nil, fmt.Errorf("vrf: sign: %w", err)
	}
	return &Proof{
		Output: inout.Output().Encode(),
		Proof:  proof.Encode(),
	}, nil
}

// Verify checks that p is a valid VRF evaluation of message under pub.
func Verify(pub *schnorrkel.PublicKey, message []byte, p *Proof) (bool, error) {
	var out schnorrkel.VrfOutput
	if err := out.Decode(p.Output); err != nil {
		return false, fmt.Errorf("vrf: decode output: %w", err)
	}
	var proof schnorrkel.VrfProof
	if err := proof.Decode(p.Proof); err != nil {
		return false, fmt.Errorf("vrf: decode proof: %w", err)
	}
	return pub.VrfVerify(newTranscript(message), &out, &proof)
}

// OutputHex returns the full hex-encoded VRF output. This is the value
// carried on the wire as vrf_random_value — the full value goes out over
// the wire regardless of how much of it is actually used for the threshold
// comparison.
func (p *Proof) OutputHex() string {
	return hex.EncodeToString(p.Output[:])
}

// ProofHex returns the hex-encoded proof, carried on the wire as vrf_proof.
func (p *Proof) ProofHex() string {
	return hex.EncodeToString(p.Proof[:])
}

// SelectionResult is the outcome of running the full VRF gate: prove, slice
// the precision window, compare against the threshold.
type SelectionResult struct {
	Selected     bool
	OutputHex    string
	ProofHex     string
	PublicKeyHex string
}

// Select runs the VRF gate used by attested inference: prove over
// promptHash, take the last precisionHexChars hex characters of the
// output as the sampling window, and compare that window against threshold.
// precisionHexChars is measured in hex characters, matching vrf_precision on
// the wire; the sampler's bit precision is precisionHexChars*4.
func Select(kp *KeyPair, promptHash []byte, threshold uint64, precisionHexChars int) (*SelectionResult, error) {
	proof, err := kp.Prove(promptHash)
	if err != nil {
		return nil, err
	}
	fullHex := proof.OutputHex()
	window, err := PrecisionWindow(fullHex, precisionHexChars)
	if err != nil {
		return nil, err
	}
	sampler := NewSampler(precisionHexChars * 4)
	value, err := sampler.HexToBigInt(window)
	if err != nil {
		return nil, err
	}
	selected := sampler.MeetsThreshold(value, sampler.ThresholdFromUint64(threshold))
	return &SelectionResult{
		Selected:     selected,
		OutputHex:    fullHex,
		ProofHex:     proof.ProofHex(),
		PublicKeyHex: kp.PublicKeyHex(),
	}, nil
}
