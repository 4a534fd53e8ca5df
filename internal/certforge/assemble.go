package certforge

import (
	"crypto"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/verdane/tokenforge/internal/token"
)

// SelfSign builds a self-signed certificate for the pair's public key.
// The TBS bytes are digested off the token and the digest is what the
// token signs, so the certificate's signature is Ed25519 over the
// digest, not over the TBS itself. Verification must mirror that; see
// Verify. The assembled certificate is self-checked before it is
// returned.
func SelfSign(sess *token.Session, pair token.KeyPair, req Request) ([]byte, error) {
	if err := req.applyDefaults(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssembly, err)
	}

	pub, err := sess.PublicKeyValue(pair.Public)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	tbs, err := marshalTBS(&req, pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssembly, err)
	}

	h := req.Digest.New()
	h.Write(tbs)
	digest := h.Sum(nil)

	sig, err := sess.SignMessage(pair.Private, digest)
	if err != nil {
		return nil, fmt.Errorf("signing TBS digest: %w", err)
	}

	der, err := assemble(tbs, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssembly, err)
	}

	if err := Verify(der, pub, req.Digest); err != nil {
		return nil, fmt.Errorf("assembled certificate failed self-check: %w", err)
	}
	return der, nil
}

// assemble splices TBS, algorithm and signature into a Certificate.
func assemble(tbs, sig []byte) ([]byte, error) {
	alg, err := asn1.Marshal(algorithmIdentifier{Algorithm: oidEd25519})
	if err != nil {
		return nil, fmt.Errorf("encoding signature algorithm: %w", err)
	}

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(cert *cryptobyte.Builder) {
		cert.AddBytes(tbs)
		cert.AddBytes(alg)
		cert.AddASN1BitString(sig)
	})
	return b.Bytes()
}

// Verify checks a certificate produced by SelfSign: it re-digests the
// TBS bytes with the given hash and verifies the Ed25519 signature off
// the token.
func Verify(der []byte, pub ed25519.PublicKey, digest crypto.Hash) error {
	tbs, sig, err := split(der)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssembly, err)
	}

	h := digest.New()
	h.Write(tbs)
	return token.SoftVerify(pub, h.Sum(nil), sig)
}

// split extracts the raw TBS bytes and the signature from a DER
// certificate.
func split(der []byte) (tbs, sig []byte, err error) {
	input := cryptobyte.String(der)
	var cert cryptobyte.String
	if !input.ReadASN1(&cert, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, nil, fmt.Errorf("malformed certificate")
	}

	var tbsRaw cryptobyte.String
	if !cert.ReadASN1Element(&tbsRaw, cbasn1.SEQUENCE) {
		return nil, nil, fmt.Errorf("malformed TBS certificate")
	}
	var alg cryptobyte.String
	if !cert.ReadASN1(&alg, cbasn1.SEQUENCE) {
		return nil, nil, fmt.Errorf("malformed signature algorithm")
	}
	var sigBits asn1.BitString
	if !cert.ReadASN1BitString(&sigBits) || !cert.Empty() {
		return nil, nil, fmt.Errorf("malformed signature")
	}
	return []byte(tbsRaw), sigBits.RightAlign(), nil
}

// EncodePEM wraps a DER certificate in a CERTIFICATE PEM block.
func EncodePEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// ParsePEM decodes a PEM certificate and parses it structurally. The
// digest-then-sign signature is not checkable by crypto/x509; use
// Verify for that.
func ParsePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no CERTIFICATE block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}
