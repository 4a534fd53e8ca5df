package token_test

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/verdane/tokenforge/internal/token"
)

func TestU_PrivateValueIsSensitive(t *testing.T) {
	sess := authedSession(t, "")
	pair := generate(t, sess)

	_, err := sess.GetAttribute(pair.Private, token.CKA_VALUE)
	if !errors.Is(err, token.ErrAttributeSensitive) {
		t.Fatalf("private CKA_VALUE read: err = %v, want ErrAttributeSensitive", err)
	}

	// Non-sensitive attributes of the same object stay readable.
	label, err := sess.GetAttribute(pair.Private, token.CKA_LABEL)
	if err != nil {
		t.Fatalf("private CKA_LABEL read: %v", err)
	}
	if string(label) != "test-key" {
		t.Errorf("label = %q, want test-key", label)
	}
}

func TestU_ECPointFraming(t *testing.T) {
	sess := authedSession(t, "")
	pair := generate(t, sess)

	value, err := sess.GetAttribute(pair.Public, token.CKA_VALUE)
	if err != nil {
		t.Fatalf("CKA_VALUE: %v", err)
	}
	point, err := sess.ECPoint(pair.Public)
	if err != nil {
		t.Fatalf("CKA_EC_POINT: %v", err)
	}

	if len(value) != ed25519.PublicKeySize {
		t.Fatalf("CKA_VALUE is %d bytes, want %d", len(value), ed25519.PublicKeySize)
	}
	want := append([]byte{0x04, 0x20}, value...)
	if !bytes.Equal(point, want) {
		t.Errorf("CKA_EC_POINT = %x, want 0420 || CKA_VALUE", point)
	}

	raw, err := token.UnwrapECPoint(point)
	if err != nil {
		t.Fatalf("UnwrapECPoint: %v", err)
	}
	if !bytes.Equal(raw, value) {
		t.Error("unwrapped EC point differs from CKA_VALUE")
	}
}

func TestU_PublicKeyValue(t *testing.T) {
	sess := authedSession(t, "")
	pair := generate(t, sess)

	pub, err := sess.PublicKeyValue(pair.Public)
	if err != nil {
		t.Fatalf("PublicKeyValue: %v", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		t.Errorf("public key is %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}

	if _, err := sess.PublicKeyValue(token.ObjectHandle(9999)); !errors.Is(err, token.ErrInvalidHandle) {
		t.Errorf("bogus handle: err = %v, want ErrInvalidHandle", err)
	}
}
