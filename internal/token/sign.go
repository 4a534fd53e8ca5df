package token

import (
	"crypto/ed25519"
	"fmt"
)

// SignInit starts a signing operation with the private key. The session
// must be idle; a second init without an intervening Sign fails with
// ErrInvalidState and leaves the pending operation in place.
func (s *Session) SignInit(key ObjectHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signInitLocked(key)
}

func (s *Session) signInitLocked(key ObjectHandle) error {
	if err := s.requireAuthLocked("sign init"); err != nil {
		return err
	}
	if s.state != opIdle {
		return &Error{Op: "sign init", RV: CKR_OPERATION_ACTIVE, Err: ErrInvalidState}
	}
	if err := s.mod.SignInit(s.handle, s.dialect.SignMechanism(), key); err != nil {
		return wrap("sign init", err)
	}
	s.state = opSignReady
	return nil
}

// Sign completes a pending signing operation over the full message.
// The token signs the bytes as given; it never hashes internally, so
// callers that want to sign a digest must compute it themselves. The
// operation ends with this call, on success or failure.
func (s *Session) Sign(message []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signLocked(message)
}

func (s *Session) signLocked(message []byte) ([]byte, error) {
	if s.closed {
		return nil, &Error{Op: "sign", Err: ErrSessionClosed}
	}
	if s.state != opSignReady {
		return nil, &Error{Op: "sign", RV: CKR_OPERATION_NOT_INITIALIZED, Err: ErrInvalidState}
	}
	s.state = opIdle

	sig, err := s.mod.Sign(s.handle, message)
	if err != nil {
		return nil, wrap("sign", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, &Error{Op: "sign",
			Err: fmt.Errorf("%w: token produced %d bytes, want %d", ErrMalformedSignature, len(sig), ed25519.SignatureSize)}
	}
	return sig, nil
}

// VerifyInit starts a verification operation with the public key.
func (s *Session) VerifyInit(key ObjectHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyInitLocked(key)
}

func (s *Session) verifyInitLocked(key ObjectHandle) error {
	if err := s.requireAuthLocked("verify init"); err != nil {
		return err
	}
	if s.state != opIdle {
		return &Error{Op: "verify init", RV: CKR_OPERATION_ACTIVE, Err: ErrInvalidState}
	}
	if err := s.mod.VerifyInit(s.handle, s.dialect.SignMechanism(), key); err != nil {
		return wrap("verify init", err)
	}
	s.state = opVerifyReady
	return nil
}

// Verify completes a pending verification. A signature of the wrong
// size fails with ErrMalformedSignature before reaching the token; a
// well-formed signature that does not match fails with
// ErrSignatureInvalid. Either way the session returns to idle and
// stays usable.
func (s *Session) Verify(message, signature []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyLocked(message, signature)
}

func (s *Session) verifyLocked(message, signature []byte) error {
	if s.closed {
		return &Error{Op: "verify", Err: ErrSessionClosed}
	}
	if s.state != opVerifyReady {
		return &Error{Op: "verify", RV: CKR_OPERATION_NOT_INITIALIZED, Err: ErrInvalidState}
	}
	s.state = opIdle

	if len(signature) != ed25519.SignatureSize {
		// Abandon the token-side operation so the session is reusable.
		_ = s.mod.Verify(s.handle, message, make([]byte, ed25519.SignatureSize))
		return &Error{Op: "verify",
			Err: fmt.Errorf("%w: %d bytes, want %d", ErrMalformedSignature, len(signature), ed25519.SignatureSize)}
	}
	if err := s.mod.Verify(s.handle, message, signature); err != nil {
		return wrap("verify", err)
	}
	return nil
}

// SignMessage runs init and sign as one atomic step under the session
// lock. Concurrent callers cannot interleave with the protocol.
func (s *Session) SignMessage(key ObjectHandle, message []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.signInitLocked(key); err != nil {
		return nil, err
	}
	return s.signLocked(message)
}

// VerifyMessage runs init and verify as one atomic step under the
// session lock.
func (s *Session) VerifyMessage(key ObjectHandle, message, signature []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.verifyInitLocked(key); err != nil {
		return err
	}
	return s.verifyLocked(message, signature)
}
