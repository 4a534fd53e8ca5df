package token

import (
	"errors"
	"fmt"
)

// Sentinel errors for token operations. Callers match with errors.Is.
var (
	// ErrTokenUnavailable indicates the slot is empty, the token was
	// removed, or the module could not reach the device.
	ErrTokenUnavailable = errors.New("token unavailable")

	// ErrAuthenticationFailed indicates the PIN was rejected.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAlreadyAuthenticated indicates a login on an already
	// authenticated session.
	ErrAlreadyAuthenticated = errors.New("session already authenticated")

	// ErrNotAuthenticated indicates a private-key operation was
	// attempted before login.
	ErrNotAuthenticated = errors.New("session not authenticated")

	// ErrMechanismNotSupported indicates the token rejected the
	// requested mechanism.
	ErrMechanismNotSupported = errors.New("mechanism not supported by token")

	// ErrInvalidTemplate indicates an attribute template that is
	// internally contradictory, detected before it reaches the token.
	ErrInvalidTemplate = errors.New("invalid attribute template")

	// ErrTemplateInconsistent indicates the token rejected the
	// template as inconsistent or incomplete.
	ErrTemplateInconsistent = errors.New("attribute template rejected by token")

	// ErrAttributeSensitive indicates a read of an attribute the
	// token refuses to disclose.
	ErrAttributeSensitive = errors.New("attribute is sensitive")

	// ErrSignatureInvalid indicates a well-formed signature that does
	// not verify. Recoverable: the session stays usable.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrMalformedSignature indicates a signature of the wrong size
	// for the mechanism.
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrTokenTimeout indicates the device transport timed out.
	ErrTokenTimeout = errors.New("token transport timeout")

	// ErrInvalidState indicates a sign or verify call out of protocol
	// order (operate without init, or init while an operation is active).
	ErrInvalidState = errors.New("operation out of sequence")

	// ErrSessionClosed indicates use of a closed session or of a
	// handle that belonged to one.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidHandle indicates an object handle unknown to the token.
	ErrInvalidHandle = errors.New("invalid object handle")
)

// RV is a raw Cryptoki return value. Module implementations report
// failures as RV so the session layer can translate them uniformly.
type RV uint

func (r RV) Error() string {
	if name, ok := rvNames[r]; ok {
		return fmt.Sprintf("%s (0x%08X)", name, uint(r))
	}
	return fmt.Sprintf("CKR 0x%08X", uint(r))
}

// Error wraps a failed token operation with its operation name and,
// when the token reported one, the raw return value. The wrapped error
// is one of the package sentinels whenever the return value maps to one.
type Error struct {
	Op  string
	RV  RV
	Err error
}

func (e *Error) Error() string {
	if e.RV != CKR_OK {
		return fmt.Sprintf("token: %s: %v [%v]", e.Op, e.Err, e.RV)
	}
	return fmt.Sprintf("token: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// rvSentinels maps Cryptoki return values onto the package sentinels.
// CKR_DEVICE_ERROR is how the Utimaco transport surfaces a timeout.
var rvSentinels = map[RV]error{
	CKR_SLOT_ID_INVALID:           ErrTokenUnavailable,
	CKR_TOKEN_NOT_PRESENT:         ErrTokenUnavailable,
	CKR_DEVICE_REMOVED:            ErrTokenUnavailable,
	CKR_DEVICE_ERROR:              ErrTokenTimeout,
	CKR_PIN_INCORRECT:             ErrAuthenticationFailed,
	CKR_PIN_INVALID:               ErrAuthenticationFailed,
	CKR_PIN_LEN_RANGE:             ErrAuthenticationFailed,
	CKR_USER_PIN_NOT_INITIALIZED:  ErrAuthenticationFailed,
	CKR_USER_ALREADY_LOGGED_IN:    ErrAlreadyAuthenticated,
	CKR_USER_NOT_LOGGED_IN:        ErrNotAuthenticated,
	CKR_MECHANISM_INVALID:         ErrMechanismNotSupported,
	CKR_MECHANISM_PARAM_INVALID:   ErrMechanismNotSupported,
	CKR_TEMPLATE_INCOMPLETE:       ErrTemplateInconsistent,
	CKR_TEMPLATE_INCONSISTENT:     ErrTemplateInconsistent,
	CKR_ATTRIBUTE_VALUE_INVALID:   ErrTemplateInconsistent,
	CKR_ATTRIBUTE_SENSITIVE:       ErrAttributeSensitive,
	CKR_SIGNATURE_INVALID:         ErrSignatureInvalid,
	CKR_SIGNATURE_LEN_RANGE:       ErrMalformedSignature,
	CKR_SESSION_CLOSED:            ErrSessionClosed,
	CKR_SESSION_HANDLE_INVALID:    ErrSessionClosed,
	CKR_OPERATION_ACTIVE:          ErrInvalidState,
	CKR_OPERATION_NOT_INITIALIZED: ErrInvalidState,
	CKR_OBJECT_HANDLE_INVALID:     ErrInvalidHandle,
	CKR_KEY_HANDLE_INVALID:        ErrInvalidHandle,
}

// wrap translates a Module error into an *Error carrying the matching
// sentinel. Non-RV errors pass through wrapped with the operation name.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var rv RV
	if errors.As(err, &rv) {
		if sentinel, ok := rvSentinels[rv]; ok {
			return &Error{Op: op, RV: rv, Err: sentinel}
		}
		return &Error{Op: op, RV: rv, Err: err}
	}
	return &Error{Op: op, Err: err}
}
