package attest

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"
)

// nitroRootCA is the AWS Nitro Enclaves root certificate, used as the trust
// anchor for every attestation document this system verifies. Production
// deployments may override it via VerifierConfig.RootCAPEM.
const nitroRootCA = `-----BEGIN CERTIFICATE-----
MIICETCCAZagAwIBAgIRAPkxdWgbkK/hHUlMGqiq3MYwCgYIKoZIzj0EAwMwSTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoMBkFtYXpvbjEMMAoGA1UECwwDQVdTMRswGQYD
VQQDDBJhd3Mubml0cm8tZW5jbGF2ZXMwHhcNMTkxMDI4MTMyODA1WhcNNDkxMDI4
MTQyODA1WjBJMQswCQYDVQQGEwJVUzEPMA0GA1UECgwGQW1hem9uMQwwCgYDVQQL
DANBV1MxGzAZBgNVBAMMEmF3cy5uaXRyby1lbmNsYXZlczB2MBAGByqGSM49AgEG
BSuBBAAiA2IABPwCVOumCMHzaHDimtqQvkY4MpJzbolL//Zy2YlES1BR5TSksfbb
48C8WBoyt7F2Bw7eEtaaP+ohG2bnUs990d0JX28TcPQXCEPZ3BABIeTPYwEoCWZE
h8l5YoQwTcU/9KNCMEAwDwYDVR0TAQH/BAUwAwEB/zAdBgNVHQ4EFgQUkCW1DdkF
R+eWw5b6cp3PmanfS5YwDgYDVR0PAQH/BAQDAgGGMAoGCCqGSM49BAMDA2kAMGYC
MQCjfy+Rocm9Xue4YnwWmNJVA44fA0P5W2OpYow9OYCVRaEevL8uO1XYru5xtMPW
rfMCMQCi85sWBbJwKKXdS6BptQFuZbT73o/gBh1qUxl/nNr12UO8Yfwr6wPLb+6N
IwLz3/Y=
-----END CERTIFICATE-----`

var (
	// ErrCertificateChain is returned when the certificate chain fails to
	// validate against the trusted root.
	ErrCertificateChain = errors.New("attest: certificate chain validation failed")
	// ErrDocumentExpired is returned when a document's timestamp is too old.
	ErrDocumentExpired = errors.New("attest: attestation document expired")
	// ErrUserDataMismatch is returned when a document's user_data does not
	// match the expected binding.
	ErrUserDataMismatch = errors.New("attest: user_data mismatch")
)

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	// RootCAPEM overrides the embedded AWS Nitro root certificate. Empty
	// uses the built-in root.
	RootCAPEM string
	// MaxDocumentAge bounds how old (relative to verification time) a
	// document's timestamp may be before it is treated as expired.
	MaxDocumentAge time.Duration
}

// DefaultVerifierConfig matches the reference deployment: a generous
// three-minute freshness window, tolerant of clock skew between enclave and
// verifier hosts.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{MaxDocumentAge: 3 * time.Minute}
}

// VerificationResult carries the outcome of a successful document
// verification for logging/audit purposes.
type VerificationResult struct {
	PCRs      map[int][]byte
	UserData  []byte
	Timestamp time.Time
}

// Verifier validates attestation documents against a pinned root CA,
// freshness window, and PCR policy.
type Verifier struct {
	cfg    VerifierConfig
	root   *x509.Certificate
	logger zerolog.Logger
}

// NewVerifier constructs a Verifier, parsing the configured (or embedded)
// root CA once.
func NewVerifier(cfg VerifierConfig, logger zerolog.Logger) (*Verifier, error) {
	pemBlock := cfg.RootCAPEM
	if pemBlock == "" {
		pemBlock = nitroRootCA
	}
	block, _ := pem.Decode([]byte(pemBlock))
	if block == nil {
		return nil, errors.New("attest: failed to decode root CA PEM")
	}
	root, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("attest: parse root CA: %w", err)
	}
	if cfg.MaxDocumentAge == 0 {
		cfg.MaxDocumentAge = DefaultVerifierConfig().MaxDocumentAge
	}
	return &Verifier{cfg: cfg, root: root, logger: logger}, nil
}

// VerifyRaw parses and fully verifies a raw attestation document, checking
// the certificate chain, freshness, and the pinned PCR policy.
func (v *Verifier) VerifyRaw(raw []byte, pcrPolicy map[int][]byte, now time.Time) (*VerificationResult, error) {
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, err
	}
	return v.VerifyDocument(doc, pcrPolicy, now)
}

// VerifyDocument verifies an already-parsed document.
func (v *Verifier) VerifyDocument(doc *Document, pcrPolicy map[int][]byte, now time.Time) (*VerificationResult, error) {
	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}
	if err := v.VerifyCertificateChain(doc); err != nil {
		return nil, err
	}
	if err := v.verifyFreshness(doc, now); err != nil {
		return nil, err
	}
	if err := ValidatePCRs(doc.Payload.PCRs, pcrPolicy); err != nil {
		return nil, err
	}
	return &VerificationResult{
		PCRs:      doc.Payload.PCRs,
		UserData:  doc.Payload.UserData,
		Timestamp: time.UnixMilli(int64(doc.Payload.Timestamp)),
	}, nil
}

// VerifyUserData is a convenience wrapper binding VerifyDocument to an
// expected user_data hash. The VLC service runs it on every non-genesis
// input clock; inference.VerifyAnswer runs it on an answer's document.
func (v *Verifier) VerifyUserData(doc *Document, pcrPolicy map[int][]byte, expected [32]byte, now time.Time) (*VerificationResult, error) {
	res, err := v.VerifyDocument(doc, pcrPolicy, now)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(res.UserData, expected[:]) {
		return nil, ErrUserDataMismatch
	}
	return res, nil
}

// VerifyCertificateChain validates the document's leaf certificate and CA
// bundle against the pinned root.
func (v *Verifier) VerifyCertificateChain(doc *Document) error {
	leaf, err := x509.ParseCertificate(doc.Payload.Certificate)
	if err != nil {
		return fmt.Errorf("%w: parse leaf certificate: %v", ErrCertificateChain, err)
	}

	intermediates := x509.NewCertPool()
	for _, der := range doc.Payload.CABundle {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			v.logger.Warn().Err(err).Msg("skipping unparseable intermediate certificate")
			continue
		}
		intermediates.AddCert(cert)
	}

	roots := x509.NewCertPool()
	roots.AddCert(v.root)

	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrCertificateChain, err)
	}

	if err := v.verifySignature(doc, leaf); err != nil {
		return err
	}
	return nil
}

// verifySignature checks the COSE_Sign1 signature over (protected, external
// AAD, payload) using the leaf certificate's public key. The reference
// implementation carries an ES384 leaf exclusively, matching the digest
// algorithm pinned in ValidateDocument.
func (v *Verifier) verifySignature(doc *Document, leaf *x509.Certificate) error {
	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P384() {
		return fmt.Errorf("%w: leaf certificate is not an ES384 key", ErrCertificateChain)
	}
	sigStructure, err := buildSigStructure(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCertificateChain, err)
	}
	if !verifyES384(pub, sigStructure, doc.Signature) {
		return fmt.Errorf("%w: signature verification failed", ErrCertificateChain)
	}
	// The signature covers RawPayload; the decoded Payload that every later
	// check reads must be exactly what those signed bytes decode to.
	signed, err := parsePayload(doc.RawPayload)
	if err != nil || !reflect.DeepEqual(signed, doc.Payload) {
		return fmt.Errorf("%w: payload does not match the signed bytes", ErrCertificateChain)
	}
	return nil
}

func (v *Verifier) verifyFreshness(doc *Document, now time.Time) error {
	ts := time.UnixMilli(int64(doc.Payload.Timestamp))
	if now.Sub(ts) > v.cfg.MaxDocumentAge {
		return ErrDocumentExpired
	}
	if ts.After(now.Add(1 * time.Minute)) {
		return fmt.Errorf("%w: timestamp is in the future", ErrDocumentExpired)
	}
	return nil
}
