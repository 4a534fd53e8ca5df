// Package token drives Ed25519 key material on a PKCS#11 token: session
// lifecycle, attribute templates, key-pair generation, raw signing and
// verification, and attribute access with sensitivity enforcement.
//
// The package speaks to the device through the Module interface. Two
// implementations exist: the cgo binding over a PKCS#11 shared library
// (LoadModule) and the in-memory token in internal/softtoken used for
// testing without hardware.
package token

import "fmt"

// SessionHandle identifies an open session on a Module.
type SessionHandle uint

// ObjectHandle identifies a token object. Handles are only meaningful
// within the module that issued them and become invalid when the owning
// session closes.
type ObjectHandle uint

// Attribute is a single typed entry in a Cryptoki template.
type Attribute struct {
	Type  uint
	Value []byte
}

// NewAttribute builds an Attribute from a Go value. Booleans encode as
// a single byte, unsigned integers as little-endian CK_ULONG, strings
// and byte slices verbatim.
func NewAttribute(typ uint, value interface{}) Attribute {
	switch v := value.(type) {
	case bool:
		if v {
			return Attribute{Type: typ, Value: []byte{1}}
		}
		return Attribute{Type: typ, Value: []byte{0}}
	case uint:
		buf := make([]byte, 8)
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
		return Attribute{Type: typ, Value: buf}
	case string:
		return Attribute{Type: typ, Value: []byte(v)}
	case []byte:
		return Attribute{Type: typ, Value: v}
	default:
		panic(fmt.Sprintf("token: unsupported attribute value %T", value))
	}
}

// Mechanism names a token mechanism, without parameters. Ed25519 raw
// signing takes none.
type Mechanism struct {
	ID uint
}

// SlotInfo describes one slot reported by a module.
type SlotInfo struct {
	ID           uint
	Description  string
	HasToken     bool
	TokenLabel   string
	TokenSerial  string
	Manufacturer string
}

// Module is the capability set this package requires from a token.
// Implementations report failures as RV values (possibly wrapped) so
// the session layer can translate them into the package sentinels.
type Module interface {
	// Slots lists slots and the tokens present in them.
	Slots() ([]SlotInfo, error)

	// OpenSession opens a read-write serial session on the slot.
	OpenSession(slot uint) (SessionHandle, error)

	// CloseSession closes the session and invalidates its handles.
	CloseSession(h SessionHandle) error

	// Login authenticates the session as the normal user.
	Login(h SessionHandle, pin string) error

	// Logout ends the session's authentication.
	Logout(h SessionHandle) error

	// GenerateKeyPair creates a key pair from the two templates and
	// returns the public then the private handle.
	GenerateKeyPair(h SessionHandle, m Mechanism, public, private []Attribute) (ObjectHandle, ObjectHandle, error)

	// SignInit starts a signing operation with the given key.
	SignInit(h SessionHandle, m Mechanism, key ObjectHandle) error

	// Sign completes a signing operation over the full message.
	Sign(h SessionHandle, message []byte) ([]byte, error)

	// VerifyInit starts a verification operation with the given key.
	VerifyInit(h SessionHandle, m Mechanism, key ObjectHandle) error

	// Verify completes a verification operation. A signature that does
	// not match yields CKR_SIGNATURE_INVALID.
	Verify(h SessionHandle, message, signature []byte) error

	// GetAttributeValue reads the requested attribute types from an
	// object. Sensitive attributes yield CKR_ATTRIBUTE_SENSITIVE.
	GetAttributeValue(h SessionHandle, obj ObjectHandle, types []uint) ([]Attribute, error)

	// FindObjects returns the handles of objects matching the template.
	FindObjects(h SessionHandle, template []Attribute) ([]ObjectHandle, error)

	// Close finalizes the module. All sessions become invalid.
	Close() error
}
