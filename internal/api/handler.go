package api

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509/pkix"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/verdane/tokenforge/internal/audit"
	"github.com/verdane/tokenforge/internal/certforge"
	"github.com/verdane/tokenforge/internal/cose"
	"github.com/verdane/tokenforge/internal/token"
)

// Handler serves the v1 API over one authenticated token session.
type Handler struct {
	sess    *token.Session
	aud     audit.Writer
	version string
	label   string // token label, reported in health
}

// NewHandler builds a Handler. aud may be audit.NopWriter{}.
func NewHandler(sess *token.Session, aud audit.Writer, version, tokenLabel string) *Handler {
	return &Handler{sess: sess, aud: aud, version: version, label: tokenLabel}
}

// statusFor maps the token error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, token.ErrNotAuthenticated),
		errors.Is(err, token.ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, token.ErrInvalidHandle):
		return http.StatusNotFound
	case errors.Is(err, token.ErrAttributeSensitive):
		return http.StatusForbidden
	case errors.Is(err, token.ErrMalformedSignature),
		errors.Is(err, token.ErrInvalidTemplate),
		errors.Is(err, token.ErrTemplateInconsistent):
		return http.StatusBadRequest
	case errors.Is(err, token.ErrTokenUnavailable),
		errors.Is(err, token.ErrTokenTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// record writes an audit event; a failed write fails the request.
func (h *Handler) record(w http.ResponseWriter, ev *audit.Event) bool {
	if err := h.aud.Write(ev); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("audit write failed: %w", err))
		return false
	}
	return true
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: h.version, Token: h.label})
}

func (h *Handler) GenerateKey(w http.ResponseWriter, r *http.Request) {
	var req GenerateKeyRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("label is required"))
		return
	}

	id, err := keyID(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pair, err := h.sess.GenerateKeyPair(token.KeySpec{Label: req.Label, ID: id})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	pub, err := h.sess.PublicKeyValue(pair.Public)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	point, err := h.sess.ECPoint(pair.Public)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	pubPEM, err := certforge.EncodePublicKeyPEM(pub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	ev := audit.NewEvent(audit.EventKeyPairGenerated, audit.ResultSuccess).
		WithObject(audit.Object{Type: "key", Label: req.Label})
	if !h.record(w, ev) {
		return
	}

	writeJSON(w, http.StatusCreated, GenerateKeyResponse{
		Label:        req.Label,
		PublicKeyPEM: string(pubPEM),
		ECPoint:      hex.EncodeToString(point),
	})
}

func (h *Handler) Sign(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if !readJSON(w, r, &req) {
		return
	}

	pair, err := h.sess.FindKeyPair(req.Label)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sig, err := h.sess.SignMessage(pair.Private, req.Message)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	ev := audit.NewEvent(audit.EventDataSigned, audit.ResultSuccess).
		WithObject(audit.Object{Type: "key", Label: req.Label})
	if !h.record(w, ev) {
		return
	}

	writeJSON(w, http.StatusOK, SignResponse{Signature: sig})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !readJSON(w, r, &req) {
		return
	}

	pair, err := h.sess.FindKeyPair(req.Label)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	err = h.sess.VerifyMessage(pair.Public, req.Message, req.Signature)
	if err != nil && !errors.Is(err, token.ErrSignatureInvalid) {
		writeError(w, statusFor(err), err)
		return
	}

	// A mismatch is an answer, not a failure, but both outcomes are
	// recorded.
	result := audit.ResultSuccess
	if err != nil {
		result = audit.ResultFailure
	}
	ev := audit.NewEvent(audit.EventSignatureVerified, result).
		WithObject(audit.Object{Type: "key", Label: req.Label})
	if !h.record(w, ev) {
		return
	}

	writeJSON(w, http.StatusOK, VerifyResponse{Valid: err == nil})
}

func (h *Handler) Attribute(w http.ResponseWriter, r *http.Request) {
	var req AttributeRequest
	if !readJSON(w, r, &req) {
		return
	}

	if req.Attribute == "" {
		req.Attribute = "value"
	}
	typ, err := parseAttributeType(req.Attribute)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pair, err := h.sess.FindKeyPair(req.Label)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	obj := pair.Public
	switch req.Half {
	case "", "public":
	case "private":
		obj = pair.Private
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("half must be public or private"))
		return
	}

	value, err := h.sess.GetAttribute(obj, typ)
	if err != nil {
		if errors.Is(err, token.ErrAttributeSensitive) {
			ev := audit.NewEvent(audit.EventAttributeDenied, audit.ResultFailure).
				WithObject(audit.Object{Type: "key", Label: req.Label}).
				WithContext(audit.Context{Reason: req.Attribute})
			if !h.record(w, ev) {
				return
			}
		}
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, AttributeResponse{Value: value})
}

func (h *Handler) SelfSign(w http.ResponseWriter, r *http.Request) {
	var req SelfSignRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.CommonName == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("common_name is required"))
		return
	}

	digest, err := parseDigest(req.Digest)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pair, err := h.sess.FindKeyPair(req.Label)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	der, err := certforge.SelfSign(h.sess, pair, certforge.Request{
		Subject: pkix.Name{CommonName: req.CommonName},
		Days:    req.Days,
		Digest:  digest,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	cert, err := certforge.ParsePEM(certforge.EncodePEM(der))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	ev := audit.NewEvent(audit.EventCertSelfSigned, audit.ResultSuccess).
		WithObject(audit.Object{Type: "certificate", Label: req.Label, Serial: cert.SerialNumber.String()})
	if !h.record(w, ev) {
		return
	}

	writeJSON(w, http.StatusOK, SelfSignResponse{
		CertificatePEM: string(certforge.EncodePEM(der)),
		Serial:         cert.SerialNumber.String(),
	})
}

func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	var req ReceiptRequest
	if !readJSON(w, r, &req) {
		return
	}

	pair, err := h.sess.FindKeyPair(req.Label)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	signer, err := token.NewSigner(h.sess, pair)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	digest := sha256.Sum256(req.Message)
	receipt, err := cose.Issue(signer, cose.NewReceiptClaims("sign", req.Label, digest[:]))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	ev := audit.NewEvent(audit.EventReceiptIssued, audit.ResultSuccess).
		WithObject(audit.Object{Type: "key", Label: req.Label})
	if !h.record(w, ev) {
		return
	}

	writeJSON(w, http.StatusOK, ReceiptResponse{Receipt: receipt})
}

func keyID(hexID string) ([]byte, error) {
	if hexID == "" {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, err
		}
		return buf[:], nil
	}
	id, err := hex.DecodeString(hexID)
	if err != nil {
		return nil, fmt.Errorf("id must be hex: %w", err)
	}
	return id, nil
}

func parseAttributeType(name string) (uint, error) {
	switch name {
	case "value":
		return token.CKA_VALUE, nil
	case "point":
		return token.CKA_EC_POINT, nil
	case "label":
		return token.CKA_LABEL, nil
	case "id":
		return token.CKA_ID, nil
	default:
		return 0, fmt.Errorf("unsupported attribute %q (want value, point, label or id)", name)
	}
}

func parseDigest(name string) (crypto.Hash, error) {
	switch name {
	case "", "sha256":
		return crypto.SHA256, nil
	case "sha1":
		return crypto.SHA1, nil
	default:
		return 0, fmt.Errorf("unsupported digest %q (want sha256 or sha1)", name)
	}
}
