package token

import (
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// GetAttribute reads one attribute from a token object. Reads of
// attributes the token keeps sensitive (a private key's CKA_VALUE)
// fail with ErrAttributeSensitive.
func (s *Session) GetAttribute(obj ObjectHandle, typ uint) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuthLocked("get attribute"); err != nil {
		return nil, err
	}
	attrs, err := s.mod.GetAttributeValue(s.handle, obj, []uint{typ})
	if err != nil {
		return nil, wrap("get attribute", err)
	}
	if len(attrs) != 1 {
		return nil, &Error{Op: "get attribute", Err: fmt.Errorf("token returned %d attributes, want 1", len(attrs))}
	}
	return attrs[0].Value, nil
}

// PublicKeyValue extracts the raw 32-byte Ed25519 public key from a
// public-key object. CKA_VALUE is tried first (the Utimaco location),
// then CKA_EC_POINT unwrapped from its OCTET STRING framing.
func (s *Session) PublicKeyValue(obj ObjectHandle) (ed25519.PublicKey, error) {
	if v, err := s.GetAttribute(obj, CKA_VALUE); err == nil && len(v) == ed25519.PublicKeySize {
		return ed25519.PublicKey(v), nil
	}

	point, err := s.GetAttribute(obj, CKA_EC_POINT)
	if err != nil {
		return nil, err
	}
	raw, err := UnwrapECPoint(point)
	if err != nil {
		return nil, &Error{Op: "get attribute", Err: err}
	}
	return ed25519.PublicKey(raw), nil
}

// ECPoint reads CKA_EC_POINT as stored, framing included.
func (s *Session) ECPoint(obj ObjectHandle) ([]byte, error) {
	return s.GetAttribute(obj, CKA_EC_POINT)
}

// UnwrapECPoint strips the OCTET STRING framing from a CKA_EC_POINT
// value and returns the raw 32-byte key. For Ed25519 the framing is
// exactly 0x04 0x20 followed by the key, which is also what the DER
// header works out to, so one parse covers both readings.
func UnwrapECPoint(point []byte) ([]byte, error) {
	input := cryptobyte.String(point)
	var inner cryptobyte.String
	if !input.ReadASN1(&inner, cbasn1.OCTET_STRING) || !input.Empty() {
		return nil, fmt.Errorf("EC point is not an OCTET STRING (%d bytes)", len(point))
	}
	if len(inner) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("EC point holds %d bytes, want %d", len(inner), ed25519.PublicKeySize)
	}
	return []byte(inner), nil
}
