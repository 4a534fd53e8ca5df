package token

import (
	"crypto"
	"crypto/ed25519"
	"fmt"
	"io"
)

// Signer adapts a session-held private key to crypto.Signer so the
// COSE and certificate layers can use token keys like any other. The
// token signs raw bytes, so only crypto.Hash(0) opts are accepted;
// callers that sign digests hash first and pass the digest as the
// message.
type Signer struct {
	session *Session
	key     ObjectHandle
	pub     ed25519.PublicKey
}

var _ crypto.Signer = (*Signer)(nil)

// NewSigner builds a Signer for the pair, reading the public half from
// the token.
func NewSigner(s *Session, pair KeyPair) (*Signer, error) {
	pub, err := s.PublicKeyValue(pair.Public)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	return &Signer{session: s, key: pair.Private, pub: pub}, nil
}

// Public returns the Ed25519 public key.
func (sg *Signer) Public() crypto.PublicKey { return sg.pub }

// Sign signs message on the token. rand is unused; Ed25519 is
// deterministic.
func (sg *Signer) Sign(_ io.Reader, message []byte, opts crypto.SignerOpts) ([]byte, error) {
	if opts != nil && opts.HashFunc() != crypto.Hash(0) {
		return nil, fmt.Errorf("token signer: pre-hashed opts %v not supported", opts.HashFunc())
	}
	return sg.session.SignMessage(sg.key, message)
}
