package attest

import (
	"bytes"
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// COSE_Sign1 framing constants, per RFC 8152 and AWS's Nitro attestation
// document format.
const (
	cosesign1Tag = 18

	// DigestAlgorithmSHA384 is the only digest algorithm this system's
	// attestation documents are accepted under.
	DigestAlgorithmSHA384 = "SHA384"

	// PCRIndexEIF, PCRIndexKernel, PCRIndexApp are the three PCR slots
	// cached at enclave startup and checked against every PCR policy.
	PCRIndexEIF    = 0
	PCRIndexKernel = 1
	PCRIndexApp    = 2

	pcrDigestSize    = 48 // SHA-384
	maxModuleIDSize  = 256
	maxCertSize      = 8192
	maxUserDataSize  = 1024
	maxNonceSize     = 1024
	maxPublicKeySize = 1024
)

var (
	// ErrInvalidDocument is returned for a structurally malformed document.
	ErrInvalidDocument = errors.New("attest: invalid attestation document")
	// ErrInvalidPayload is returned when the COSE payload cannot be decoded.
	ErrInvalidPayload = errors.New("attest: invalid attestation payload")
	// ErrInvalidPCR is returned for a missing or malformed PCR entry.
	ErrInvalidPCR = errors.New("attest: invalid PCR value")
)

// coseSign1 mirrors the four-element COSE_Sign1 array:
// [protected, unprotected, payload, signature].
type coseSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[any]any
	Payload     []byte
	Signature   []byte
}

// DocumentPayload is the CBOR map carried inside the COSE_Sign1 payload.
type DocumentPayload struct {
	ModuleID    string         `cbor:"module_id"`
	Digest      string         `cbor:"digest"`
	Timestamp   uint64         `cbor:"timestamp"`
	PCRs        map[int][]byte `cbor:"pcrs"`
	Certificate []byte         `cbor:"certificate"`
	CABundle    [][]byte       `cbor:"cabundle"`
	PublicKey   []byte         `cbor:"public_key,omitempty"`
	UserData    []byte         `cbor:"user_data,omitempty"`
	Nonce       []byte         `cbor:"nonce,omitempty"`
}

// Document is a parsed attestation document together with the raw bytes
// needed to re-verify its signature.
type Document struct {
	Protected   []byte
	Unprotected map[any]any
	Payload     *DocumentPayload
	RawPayload  []byte
	Signature   []byte
	RawDocument []byte
}

var cborModeDecode, _ = cbor.DecOptions{
	MaxArrayElements: 1024,
	MaxMapPairs:      1024,
}.DecMode()

// ParseDocument decodes a COSE_Sign1-tagged CBOR attestation document.
func ParseDocument(data []byte) (*Document, error) {
	if len(data) < 10 {
		return nil, ErrInvalidDocument
	}

	var tagged cbor.RawTag
	if err := cborModeDecode.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if tagged.Number != cosesign1Tag {
		return nil, fmt.Errorf("%w: expected COSE_Sign1 tag (18), got %d", ErrInvalidDocument, tagged.Number)
	}

	var sign1 coseSign1
	if err := cborModeDecode.Unmarshal(tagged.Content, &sign1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	payload, err := parsePayload(sign1.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return &Document{
		Protected:   sign1.Protected,
		Unprotected: sign1.Unprotected,
		Payload:     payload,
		RawPayload:  sign1.Payload,
		Signature:   sign1.Signature,
		RawDocument: data,
	}, nil
}

func parsePayload(data []byte) (*DocumentPayload, error) {
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}
	payload := &DocumentPayload{PCRs: make(map[int][]byte)}
	if err := cborModeDecode.Unmarshal(data, payload); err != nil {
		return nil, err
	}
	if payload.PCRs == nil {
		payload.PCRs = make(map[int][]byte)
	}
	return payload, nil
}

// SerializeDocument re-encodes doc to COSE_Sign1 CBOR bytes. If the document
// still carries its original RawDocument (the common case when re-emitting
// something that was parsed, not freshly built), that is returned verbatim.
func SerializeDocument(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("attest: nil document")
	}
	if len(doc.RawDocument) > 0 {
		return doc.RawDocument, nil
	}

	rawPayload := doc.RawPayload
	if len(rawPayload) == 0 && doc.Payload != nil {
		encoded, err := cbor.Marshal(doc.Payload)
		if err != nil {
			return nil, fmt.Errorf("attest: encode payload: %w", err)
		}
		rawPayload = encoded
	}

	unprotected := doc.Unprotected
	if unprotected == nil {
		unprotected = map[any]any{}
	}

	body, err := cbor.Marshal(coseSign1{
		Protected:   doc.Protected,
		Unprotected: unprotected,
		Payload:     rawPayload,
		Signature:   doc.Signature,
	})
	if err != nil {
		return nil, fmt.Errorf("attest: encode COSE_Sign1: %w", err)
	}
	tagged, err := cbor.Marshal(cbor.RawTag{Number: cosesign1Tag, Content: body})
	if err != nil {
		return nil, fmt.Errorf("attest: tag COSE_Sign1: %w", err)
	}
	return tagged, nil
}

// ValidateDocument performs structural validation independent of signature
// verification (see Verifier for chain-of-trust checks).
func ValidateDocument(doc *Document) error {
	if doc == nil || doc.Payload == nil {
		return fmt.Errorf("%w: missing payload", ErrInvalidDocument)
	}
	p := doc.Payload

	if p.ModuleID == "" || len(p.ModuleID) > maxModuleIDSize {
		return fmt.Errorf("%w: invalid module_id", ErrInvalidDocument)
	}
	if p.Digest != DigestAlgorithmSHA384 {
		return fmt.Errorf("%w: digest must be SHA384", ErrInvalidDocument)
	}
	if p.Timestamp == 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidDocument)
	}
	if len(p.PCRs) == 0 {
		return fmt.Errorf("%w: missing PCRs", ErrInvalidDocument)
	}
	if pcr0, ok := p.PCRs[PCRIndexEIF]; !ok || len(pcr0) == 0 {
		return fmt.Errorf("%w: missing PCR0", ErrInvalidPCR)
	}
	for idx, pcr := range p.PCRs {
		if len(pcr) != pcrDigestSize {
			return fmt.Errorf("%w: PCR%d has invalid size %d", ErrInvalidPCR, idx, len(pcr))
		}
	}
	if len(p.Certificate) == 0 || len(p.Certificate) > maxCertSize {
		return fmt.Errorf("%w: invalid certificate", ErrInvalidDocument)
	}
	if len(p.UserData) > maxUserDataSize || len(p.Nonce) > maxNonceSize || len(p.PublicKey) > maxPublicKeySize {
		return fmt.Errorf("%w: optional field too large", ErrInvalidDocument)
	}
	if len(doc.Signature) == 0 {
		return fmt.Errorf("%w: missing signature", ErrInvalidDocument)
	}
	return nil
}

// ValidatePCRs checks that every entry in expected is present in actual and
// byte-for-byte identical.
func ValidatePCRs(actual, expected map[int][]byte) error {
	for idx, want := range expected {
		got, ok := actual[idx]
		if !ok {
			return fmt.Errorf("%w: PCR%d not present", ErrInvalidPCR, idx)
		}
		if !bytes.Equal(got, want) {
			return fmt.Errorf("%w: PCR%d mismatch", ErrInvalidPCR, idx)
		}
	}
	return nil
}

// PCRDigest returns a combined SHA-384 digest of PCR0, PCR1, PCR2, used by
// the dispatcher heartbeat collaborator to advertise the enclave's identity
// without shipping the raw PCR bytes.
func PCRDigest(pcrs map[int][]byte) []byte {
	h := sha512.New384()
	for _, idx := range []int{PCRIndexEIF, PCRIndexKernel, PCRIndexApp} {
		if v, ok := pcrs[idx]; ok {
			h.Write(v)
		}
	}
	return h.Sum(nil)
}
