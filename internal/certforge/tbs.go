// Package certforge assembles self-signed X.509 certificates around a
// token that only signs raw bytes: it DER-encodes the TBSCertificate,
// digests it off the token, has the token sign the digest, and splices
// the pieces into a certificate. crypto/x509 cannot drive this flow
// because it insists on handing the signer the full TBS.
package certforge

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"time"

	_ "crypto/sha1"
	_ "crypto/sha256"
)

// ErrAssembly is wrapped by every certificate construction failure.
var ErrAssembly = errors.New("certificate assembly failed")

// oidEd25519 is id-Ed25519 (1.3.101.112). The AlgorithmIdentifier for
// Ed25519 carries no parameters, absent rather than NULL.
var oidEd25519 = asn1.ObjectIdentifier{1, 3, 101, 112}

type algorithmIdentifier struct {
	Algorithm asn1.ObjectIdentifier
}

type validity struct {
	NotBefore, NotAfter time.Time
}

type tbsCertificate struct {
	Version      int `asn1:"optional,explicit,default:0,tag:0"`
	SerialNumber *big.Int
	Signature    algorithmIdentifier
	Issuer       asn1.RawValue
	Validity     validity
	Subject      asn1.RawValue
	PublicKey    asn1.RawValue
}

// Request describes the self-signed certificate to build.
type Request struct {
	// Subject is used for both subject and issuer.
	Subject pkix.Name

	// Serial defaults to a random 128-bit integer.
	Serial *big.Int

	// NotBefore defaults to now; Days is the validity in days and
	// defaults to 100.
	NotBefore time.Time
	Days      int

	// Digest is applied to the TBS bytes before the token signs.
	// Defaults to SHA-256; SHA-1 matches the legacy CryptoServer flow.
	Digest crypto.Hash
}

func (r *Request) applyDefaults() error {
	if r.Serial == nil {
		serial, err := randomSerial()
		if err != nil {
			return err
		}
		r.Serial = serial
	}
	if r.NotBefore.IsZero() {
		r.NotBefore = time.Now().UTC()
	}
	if r.Days == 0 {
		r.Days = 100
	}
	if r.Digest == 0 {
		r.Digest = crypto.SHA256
	}
	if !r.Digest.Available() {
		return fmt.Errorf("digest %v not linked into binary", r.Digest)
	}
	return nil
}

// randomSerial returns a random 128-bit serial number.
func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serial, nil
}

// marshalTBS builds the DER TBSCertificate for the request.
func marshalTBS(req *Request, pub ed25519.PublicKey) ([]byte, error) {
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}

	name, err := asn1.Marshal(req.Subject.ToRDNSequence())
	if err != nil {
		return nil, fmt.Errorf("encoding name: %w", err)
	}

	tbs := tbsCertificate{
		Version:      2, // X.509 v3
		SerialNumber: req.Serial,
		Signature:    algorithmIdentifier{Algorithm: oidEd25519},
		Issuer:       asn1.RawValue{FullBytes: name},
		Validity: validity{
			NotBefore: req.NotBefore,
			NotAfter:  req.NotBefore.AddDate(0, 0, req.Days),
		},
		Subject:   asn1.RawValue{FullBytes: name},
		PublicKey: asn1.RawValue{FullBytes: spki},
	}

	der, err := asn1.Marshal(tbs)
	if err != nil {
		return nil, fmt.Errorf("encoding TBS certificate: %w", err)
	}
	return der, nil
}
