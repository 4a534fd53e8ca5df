package token

import (
	"bytes"
	"fmt"
)

// Dialect selects how Ed25519 keys are described to the token. Vendors
// predate the PKCS#11 v3.0 Edwards support and differ on both the curve
// parameter encoding and the mechanism set.
type Dialect int

const (
	// DialectUtimaco encodes CKA_EC_PARAMS as the printable string
	// "edwards25519" and signs with raw CKM_ECDSA, the CryptoServer
	// convention.
	DialectUtimaco Dialect = iota

	// DialectStandard encodes CKA_EC_PARAMS as the DER OID for
	// id-Ed25519 and uses the v3.0 Edwards mechanisms. SoftHSM and
	// most current modules take this form.
	DialectStandard
)

// ed25519ParamsNamed is the Utimaco named-curve form of CKA_EC_PARAMS.
var ed25519ParamsNamed = []byte("edwards25519")

// ed25519ParamsOID is OBJECT IDENTIFIER 1.3.101.112 (id-Ed25519) in DER.
var ed25519ParamsOID = []byte{0x06, 0x03, 0x2B, 0x65, 0x70}

// ParseDialect maps a configuration string to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "", "utimaco":
		return DialectUtimaco, nil
	case "standard", "pkcs11v3":
		return DialectStandard, nil
	default:
		return 0, fmt.Errorf("unknown dialect %q (want utimaco or standard)", s)
	}
}

func (d Dialect) String() string {
	if d == DialectStandard {
		return "standard"
	}
	return "utimaco"
}

// ecParams returns the CKA_EC_PARAMS value for the dialect.
func (d Dialect) ecParams() []byte {
	if d == DialectStandard {
		return ed25519ParamsOID
	}
	return ed25519ParamsNamed
}

// keyType returns the CKA_KEY_TYPE value for the dialect.
func (d Dialect) keyType() uint {
	if d == DialectStandard {
		return CKK_EC_EDWARDS
	}
	return CKK_EC
}

// KeyGenMechanism returns the key-pair generation mechanism.
func (d Dialect) KeyGenMechanism() Mechanism {
	if d == DialectStandard {
		return Mechanism{ID: CKM_EC_EDWARDS_KEY_PAIR_GEN}
	}
	return Mechanism{ID: CKM_EC_KEY_PAIR_GEN}
}

// SignMechanism returns the raw signing mechanism. Neither form hashes
// inside the token; the caller signs the full message or a digest it
// computed itself.
func (d Dialect) SignMechanism() Mechanism {
	if d == DialectStandard {
		return Mechanism{ID: CKM_EDDSA}
	}
	return Mechanism{ID: CKM_ECDSA}
}

// KeySpec names a key pair to be generated: a human-readable label and
// an application-chosen CKA_ID shared by both halves.
type KeySpec struct {
	Label string
	ID    []byte
}

// PublicTemplate builds the public-key template for an Ed25519 pair.
// The key can verify and nothing else.
func PublicTemplate(d Dialect, spec KeySpec) []Attribute {
	return []Attribute{
		NewAttribute(CKA_CLASS, CKO_PUBLIC_KEY),
		NewAttribute(CKA_KEY_TYPE, d.keyType()),
		NewAttribute(CKA_EC_PARAMS, d.ecParams()),
		NewAttribute(CKA_TOKEN, true),
		NewAttribute(CKA_VERIFY, true),
		NewAttribute(CKA_VERIFY_RECOVER, false),
		NewAttribute(CKA_ENCRYPT, false),
		NewAttribute(CKA_WRAP, false),
		NewAttribute(CKA_LABEL, spec.Label),
		NewAttribute(CKA_ID, spec.ID),
	}
}

// PrivateTemplate builds the private-key template for an Ed25519 pair.
// The key is sensitive, non-extractable, and can sign and nothing else.
func PrivateTemplate(spec KeySpec) []Attribute {
	return []Attribute{
		NewAttribute(CKA_CLASS, CKO_PRIVATE_KEY),
		NewAttribute(CKA_TOKEN, true),
		NewAttribute(CKA_PRIVATE, true),
		NewAttribute(CKA_SENSITIVE, true),
		NewAttribute(CKA_EXTRACTABLE, false),
		NewAttribute(CKA_SIGN, true),
		NewAttribute(CKA_SIGN_RECOVER, false),
		NewAttribute(CKA_DECRYPT, false),
		NewAttribute(CKA_UNWRAP, false),
		NewAttribute(CKA_LABEL, spec.Label),
		NewAttribute(CKA_ID, spec.ID),
	}
}

// ValidateTemplate rejects templates that are internally contradictory
// before they reach the token. The token's own consistency checks still
// apply afterwards.
func ValidateTemplate(attrs []Attribute) error {
	seen := make(map[uint][]byte, len(attrs))
	for _, a := range attrs {
		if prev, dup := seen[a.Type]; dup && !bytes.Equal(prev, a.Value) {
			return fmt.Errorf("%w: attribute 0x%X set twice with different values", ErrInvalidTemplate, a.Type)
		}
		seen[a.Type] = a.Value
	}
	if boolAttr(seen, CKA_SENSITIVE) && boolAttr(seen, CKA_EXTRACTABLE) {
		return fmt.Errorf("%w: sensitive key marked extractable", ErrInvalidTemplate)
	}
	if p, ok := seen[CKA_EC_PARAMS]; ok {
		if !bytes.Equal(p, ed25519ParamsNamed) && !bytes.Equal(p, ed25519ParamsOID) {
			return fmt.Errorf("%w: unrecognized curve parameters", ErrInvalidTemplate)
		}
	}
	return nil
}

func boolAttr(seen map[uint][]byte, typ uint) bool {
	v, ok := seen[typ]
	return ok && len(v) == 1 && v[0] != 0
}
