package token_test

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/verdane/tokenforge/internal/token"
)

// testMessage matches the 22-byte payload the CryptoServer validation
// suite signs.
var testMessage = []byte("Message to be signed!!")

func TestU_SignDeterministicRaw(t *testing.T) {
	sess := authedSession(t, "")
	pair := generate(t, sess)

	sig1, err := sess.SignMessage(pair.Private, testMessage)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig1) != ed25519.SignatureSize {
		t.Fatalf("signature is %d bytes, want %d", len(sig1), ed25519.SignatureSize)
	}

	sig2, err := sess.SignMessage(pair.Private, testMessage)
	if err != nil {
		t.Fatalf("second sign: %v", err)
	}
	if !bytes.Equal(sig1, sig2) {
		t.Error("signatures over the same message differ; raw Ed25519 must be deterministic")
	}

	if err := sess.VerifyMessage(pair.Public, testMessage, sig1); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestU_VerifyWrongMessage(t *testing.T) {
	sess := authedSession(t, "")
	pair := generate(t, sess)

	sig, err := sess.SignMessage(pair.Private, testMessage)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	err = sess.VerifyMessage(pair.Public, []byte("a different message"), sig)
	if !errors.Is(err, token.ErrSignatureInvalid) {
		t.Fatalf("cross-message verify: err = %v, want ErrSignatureInvalid", err)
	}

	// The failure is recoverable: the session keeps working.
	if err := sess.VerifyMessage(pair.Public, testMessage, sig); err != nil {
		t.Errorf("verify after failed verify: %v", err)
	}
}

func TestU_VerifyMalformedSignature(t *testing.T) {
	sess := authedSession(t, "")
	pair := generate(t, sess)

	// A 256-byte zero buffer is the classic oversized garbage input.
	err := sess.VerifyMessage(pair.Public, testMessage, make([]byte, 256))
	if !errors.Is(err, token.ErrMalformedSignature) {
		t.Fatalf("256-byte signature: err = %v, want ErrMalformedSignature", err)
	}

	// Right size, wrong bits: invalid rather than malformed.
	err = sess.VerifyMessage(pair.Public, testMessage, make([]byte, ed25519.SignatureSize))
	if !errors.Is(err, token.ErrSignatureInvalid) {
		t.Fatalf("zero 64-byte signature: err = %v, want ErrSignatureInvalid", err)
	}

	// Still usable.
	sig, err := sess.SignMessage(pair.Private, testMessage)
	if err != nil {
		t.Fatalf("sign after failures: %v", err)
	}
	if err := sess.VerifyMessage(pair.Public, testMessage, sig); err != nil {
		t.Errorf("verify after failures: %v", err)
	}
}

func TestU_SignVerifyStateMachine(t *testing.T) {
	sess := authedSession(t, "")
	pair := generate(t, sess)

	// Operate without init.
	if _, err := sess.Sign(testMessage); !errors.Is(err, token.ErrInvalidState) {
		t.Errorf("sign without init: err = %v, want ErrInvalidState", err)
	}
	if err := sess.Verify(testMessage, make([]byte, ed25519.SignatureSize)); !errors.Is(err, token.ErrInvalidState) {
		t.Errorf("verify without init: err = %v, want ErrInvalidState", err)
	}

	// Init twice.
	if err := sess.SignInit(pair.Private); err != nil {
		t.Fatalf("sign init: %v", err)
	}
	if err := sess.SignInit(pair.Private); !errors.Is(err, token.ErrInvalidState) {
		t.Errorf("second sign init: err = %v, want ErrInvalidState", err)
	}
	if err := sess.VerifyInit(pair.Public); !errors.Is(err, token.ErrInvalidState) {
		t.Errorf("verify init during sign: err = %v, want ErrInvalidState", err)
	}

	// The pending sign still completes.
	sig, err := sess.Sign(testMessage)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Crossed protocol: sign init then verify.
	if err := sess.SignInit(pair.Private); err != nil {
		t.Fatalf("sign init: %v", err)
	}
	if err := sess.Verify(testMessage, sig); !errors.Is(err, token.ErrInvalidState) {
		t.Errorf("verify during sign: err = %v, want ErrInvalidState", err)
	}
	if _, err := sess.Sign(testMessage); err != nil {
		t.Fatalf("pending sign after rejected verify: %v", err)
	}

	// Each operation is one-shot: a second operate needs a new init.
	if _, err := sess.Sign(testMessage); !errors.Is(err, token.ErrInvalidState) {
		t.Errorf("sign after completed operation: err = %v, want ErrInvalidState", err)
	}
}

func TestU_SoftVerify(t *testing.T) {
	sess := authedSession(t, "")
	pair := generate(t, sess)

	pub, err := sess.PublicKeyValue(pair.Public)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	sig, err := sess.SignMessage(pair.Private, testMessage)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := token.SoftVerify(pub, testMessage, sig); err != nil {
		t.Errorf("software verify of token signature: %v", err)
	}

	tampered := append([]byte(nil), sig...)
	tampered[0] ^= 0x01
	if err := token.SoftVerify(pub, testMessage, tampered); !errors.Is(err, token.ErrSignatureInvalid) {
		t.Errorf("tampered signature: err = %v, want ErrSignatureInvalid", err)
	}
	if err := token.SoftVerify(pub, testMessage, sig[:63]); !errors.Is(err, token.ErrMalformedSignature) {
		t.Errorf("truncated signature: err = %v, want ErrMalformedSignature", err)
	}
}

func TestU_SignerInterface(t *testing.T) {
	sess := authedSession(t, "")
	pair := generate(t, sess)

	signer, err := token.NewSigner(sess, pair)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	pub, ok := signer.Public().(ed25519.PublicKey)
	if !ok {
		t.Fatalf("Public() returned %T", signer.Public())
	}

	sig, err := signer.Sign(nil, testMessage, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ed25519.Verify(pub, testMessage, sig) {
		t.Error("signer output does not verify")
	}
}

func TestE2E_SignVerifyWorkflow(t *testing.T) {
	sess := authedSession(t, "utimaco")
	pair := generate(t, sess)

	sig, err := sess.SignMessage(pair.Private, testMessage)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := sess.VerifyMessage(pair.Public, testMessage, sig); err != nil {
		t.Fatalf("token verify: %v", err)
	}

	pub, err := sess.PublicKeyValue(pair.Public)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if err := token.SoftVerify(pub, testMessage, sig); err != nil {
		t.Fatalf("software verify: %v", err)
	}
	if !ed25519.Verify(pub, testMessage, sig) {
		t.Error("stdlib verify failed")
	}

	// Raw signing accepts any message length; a signature over a
	// 256-byte zero buffer must not verify the short message.
	bigSig, err := sess.SignMessage(pair.Private, make([]byte, 256))
	if err != nil {
		t.Fatalf("signing 256-byte buffer: %v", err)
	}
	if err := sess.VerifyMessage(pair.Public, testMessage, bigSig); !errors.Is(err, token.ErrSignatureInvalid) {
		t.Errorf("cross-buffer verify: err = %v, want ErrSignatureInvalid", err)
	}
}
