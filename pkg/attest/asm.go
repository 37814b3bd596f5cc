package attest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
)

// ErrDeviceUnavailable is returned by Init when the simulated signing key or
// its self-signed certificate cannot be generated.
var ErrDeviceUnavailable = errors.New("attest: attestation device unavailable")

// ErrDeviceError wraps a failure returned by the attestation device itself.
var ErrDeviceError = errors.New("attest: attestation device error")

// ErrNotInitialized is returned when ProcessAttestation or DescribePCR is
// called before Init.
var ErrNotInitialized = errors.New("attest: ASM not initialized")

// ASM is a thin synchronous wrapper around a platform attestation device.
// The zero value is not usable; construct with NewASM.
//
// Hardware access (the nitro_hardware build tag) is not wired in this tree:
// there is no /dev/nsm ioctl path available outside an actual Nitro
// enclave, so the adapter always runs in simulation mode here, producing a
// structurally valid, self-signed COSE_Sign1 document. No hardware-backed
// implementation exists in this tree.
type ASM struct {
	mu        sync.Mutex
	open      bool
	moduleID  string
	pcrs      map[int][]byte
	signerKey *ecdsa.PrivateKey
	signerDER []byte
	logger    zerolog.Logger
}

// NewASM constructs an unopened adapter. moduleID identifies the enclave
// image in every document this adapter produces.
func NewASM(moduleID string, logger zerolog.Logger) *ASM {
	return &ASM{moduleID: moduleID, logger: logger}
}

// Init opens the device once per process. In simulation mode this
// generates an ephemeral P-384 signing identity and a set of deterministic
// placeholder PCR values derived from moduleID, so that repeated
// simulated runs of "the same image" agree on PCR0/1/2.
func (a *ASM) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		return nil
	}

	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return fmt.Errorf("%w: generate signer key: %v", ErrDeviceUnavailable, err)
	}
	der, cert, err := selfSignedCert(key)
	if err != nil {
		return fmt.Errorf("%w: self-sign certificate: %v", ErrDeviceUnavailable, err)
	}
	_ = cert

	a.signerKey = key
	a.signerDER = der
	a.pcrs = simulatedPCRs(a.moduleID)
	a.open = true
	a.logger.Info().Str("module_id", a.moduleID).Msg("ASM opened in simulation mode")
	return nil
}

// IsOpen reports whether Init has succeeded.
func (a *ASM) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

// DescribePCR returns the PCR measurement bytes at index, cached at Init
// time. Only indices 0, 1, 2 are populated; this system never reads others.
func (a *ASM) DescribePCR(index int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return nil, ErrNotInitialized
	}
	pcr, ok := a.pcrs[index]
	if !ok {
		return nil, fmt.Errorf("%w: PCR%d not cached", ErrDeviceError, index)
	}
	out := make([]byte, len(pcr))
	copy(out, pcr)
	return out, nil
}

// ProcessAttestation returns an opaque COSE_Sign1 CBOR document binding
// userData and the cached PCR set.
func (a *ASM) ProcessAttestation(userData []byte) ([]byte, error) {
	a.mu.Lock()
	if !a.open {
		a.mu.Unlock()
		return nil, ErrNotInitialized
	}
	key := a.signerKey
	cert := a.signerDER
	pcrs := a.pcrs
	moduleID := a.moduleID
	a.mu.Unlock()

	payload := &DocumentPayload{
		ModuleID:    moduleID,
		Digest:      DigestAlgorithmSHA384,
		Timestamp:   uint64(time.Now().UnixMilli()),
		PCRs:        pcrs,
		Certificate: cert,
		UserData:    userData,
	}
	rawPayload, err := cbor.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", ErrDeviceError, err)
	}

	doc := &Document{
		Protected:  []byte{},
		Payload:    payload,
		RawPayload: rawPayload,
	}
	sigInput, err := buildSigStructure(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: build signature input: %v", ErrDeviceError, err)
	}
	sig, err := signES384(key, sigInput)
	if err != nil {
		return nil, fmt.Errorf("%w: sign document: %v", ErrDeviceError, err)
	}
	doc.Signature = sig

	raw, err := SerializeDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: serialize document: %v", ErrDeviceError, err)
	}
	return raw, nil
}

// SigningCertificatePEM returns the PEM encoding of this adapter's
// simulated self-signed certificate, so a Verifier can be constructed with
// it as the trust root in tests that exercise the full attest→verify loop
// without a real Nitro root CA.
func (a *ASM) SigningCertificatePEM() (string, error) {
	a.mu.Lock()
	der := a.signerDER
	a.mu.Unlock()
	if der == nil {
		return "", ErrNotInitialized
	}
	return string(pemEncode("CERTIFICATE", der)), nil
}

// Release tears down the adapter. Safe to call multiple times.
func (a *ASM) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = false
	a.signerKey = nil
}

func signES384(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	digest := sha512.Sum384(message)
	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return nil, err
	}
	const coordSize = 48
	out := make([]byte, coordSize*2)
	r.FillBytes(out[:coordSize])
	s.FillBytes(out[coordSize:])
	return out, nil
}

func selfSignedCert(key *ecdsa.PrivateKey) ([]byte, *x509.Certificate, error) {
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "tee-attest simulated enclave"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return der, cert, nil
}

func pemEncode(blockType string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
}

// simulatedPCRs derives deterministic 48-byte placeholder PCR values from
// moduleID so repeated simulated runs of "the same image" agree on PCR0/1/2.
func simulatedPCRs(moduleID string) map[int][]byte {
	mk := func(label string) []byte {
		h := sha512.Sum384([]byte(moduleID + ":" + label))
		return h[:]
	}
	return map[int][]byte{
		PCRIndexEIF:    mk("pcr0-eif"),
		PCRIndexKernel: mk("pcr1-kernel"),
		PCRIndexApp:    mk("pcr2-app"),
	}
}
