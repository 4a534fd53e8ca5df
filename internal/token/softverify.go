package token

import (
	"crypto/ed25519"
	"fmt"

	circl "github.com/cloudflare/circl/sign/ed25519"
)

// SoftVerify checks a token signature off the device, using an
// independent Ed25519 implementation. It gives the same taxonomy as
// the token path: wrong-size input is ErrMalformedSignature, a clean
// mismatch is ErrSignatureInvalid.
func SoftVerify(pub ed25519.PublicKey, message, signature []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key is %d bytes, want %d", ErrMalformedSignature, len(pub), ed25519.PublicKeySize)
	}
	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrMalformedSignature, len(signature), ed25519.SignatureSize)
	}
	if !circl.Verify(circl.PublicKey(pub), message, signature) {
		return ErrSignatureInvalid
	}
	return nil
}
