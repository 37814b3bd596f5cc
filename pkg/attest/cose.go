package attest

import (
	"crypto/ecdsa"
	"crypto/sha512"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// sigStructure mirrors the COSE "Signature1" structure defined in RFC 8152
// §4.4, the exact bytes an ES384 signature is computed over.
type sigStructure struct {
	_           struct{} `cbor:",toarray"`
	Context     string
	Protected   []byte
	ExternalAAD []byte
	Payload     []byte
}

func buildSigStructure(doc *Document) ([]byte, error) {
	return cbor.Marshal(sigStructure{
		Context:     "Signature1",
		Protected:   doc.Protected,
		ExternalAAD: []byte{},
		Payload:     doc.RawPayload,
	})
}

// verifyES384 checks a raw r||s ECDSA-over-P384/SHA-384 signature, the
// format COSE uses (no ASN.1 DER wrapping).
func verifyES384(pub *ecdsa.PublicKey, message, sig []byte) bool {
	const coordSize = 48 // P-384 field element size in bytes
	if len(sig) != coordSize*2 {
		return false
	}
	r := new(big.Int).SetBytes(sig[:coordSize])
	s := new(big.Int).SetBytes(sig[coordSize:])
	digest := sha512.Sum384(message)
	return ecdsa.Verify(pub, digest[:], r, s)
}
