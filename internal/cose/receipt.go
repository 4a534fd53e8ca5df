// Package cose issues COSE Sign1 receipts for token operations. A
// receipt binds the digest of signed data to the key label and time of
// signing, under the same token key, so downstream systems can archive
// proof of the operation without replaying it.
package cose

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	gocose "github.com/veraison/go-cose"
)

// ReceiptClaims is the CBOR payload of a receipt.
type ReceiptClaims struct {
	Operation string `cbor:"1,keyasint"` // "sign", "selfsign"
	KeyLabel  string `cbor:"2,keyasint"`
	Digest    []byte `cbor:"3,keyasint"` // SHA-256 of the signed data
	IssuedAt  int64  `cbor:"4,keyasint"` // Unix seconds, UTC
}

// NewReceiptClaims builds claims for data signed now.
func NewReceiptClaims(operation, keyLabel string, digest []byte) ReceiptClaims {
	return ReceiptClaims{
		Operation: operation,
		KeyLabel:  keyLabel,
		Digest:    digest,
		IssuedAt:  time.Now().UTC().Unix(),
	}
}

// signer adapts a crypto.Signer to gocose.Signer. EdDSA signs the
// Sig_structure raw, so no pre-hashing happens here.
type signer struct {
	inner crypto.Signer
}

func (s *signer) Algorithm() gocose.Algorithm { return gocose.AlgorithmEdDSA }

func (s *signer) Sign(_ io.Reader, data []byte) ([]byte, error) {
	return s.inner.Sign(rand.Reader, data, crypto.Hash(0))
}

// Issue signs the claims into a COSE Sign1 message. The signer is
// typically a token.Signer, keeping the receipt key on the device.
func Issue(sg crypto.Signer, claims ReceiptClaims) ([]byte, error) {
	payload, err := cbor.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to encode claims: %w", err)
	}

	msg := gocose.NewSign1Message()
	msg.Headers = gocose.Headers{
		Protected: gocose.ProtectedHeader{
			gocose.HeaderLabelAlgorithm:   gocose.AlgorithmEdDSA,
			gocose.HeaderLabelContentType: "application/cbor",
		},
	}
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, &signer{inner: sg}); err != nil {
		return nil, fmt.Errorf("failed to sign receipt: %w", err)
	}
	return msg.MarshalCBOR()
}

// Verify checks a receipt's signature and decodes its claims.
func Verify(pub ed25519.PublicKey, data []byte) (*ReceiptClaims, error) {
	var msg gocose.Sign1Message
	if err := msg.UnmarshalCBOR(data); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}

	verifier, err := gocose.NewVerifier(gocose.AlgorithmEdDSA, pub)
	if err != nil {
		return nil, fmt.Errorf("failed to create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("receipt signature invalid: %w", err)
	}

	var claims ReceiptClaims
	if err := cbor.Unmarshal(msg.Payload, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode claims: %w", err)
	}
	return &claims, nil
}
