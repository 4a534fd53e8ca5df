package api

import (
	"encoding/json"
	"net/http"
)

// Request and response bodies for the v1 API. Binary fields are
// base64 in JSON.

type GenerateKeyRequest struct {
	Label string `json:"label"`
	ID    string `json:"id,omitempty"` // hex, defaults to random
}

type GenerateKeyResponse struct {
	Label        string `json:"label"`
	PublicKeyPEM string `json:"public_key_pem"`
	ECPoint      string `json:"ec_point"` // hex, 0x04 0x20 framing included
}

type SignRequest struct {
	Label   string `json:"label"`
	Message []byte `json:"message"`
}

type SignResponse struct {
	Signature []byte `json:"signature"`
}

type VerifyRequest struct {
	Label     string `json:"label"`
	Message   []byte `json:"message"`
	Signature []byte `json:"signature"`
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
}

type SelfSignRequest struct {
	Label      string `json:"label"`
	CommonName string `json:"common_name"`
	Days       int    `json:"days,omitempty"`
	Digest     string `json:"digest,omitempty"` // "sha256" (default) or "sha1"
}

type SelfSignResponse struct {
	CertificatePEM string `json:"certificate_pem"`
	Serial         string `json:"serial"`
}

type AttributeRequest struct {
	Label     string `json:"label"`
	Half      string `json:"half,omitempty"`      // "public" (default) or "private"
	Attribute string `json:"attribute,omitempty"` // "value" (default), "point", "label" or "id"
}

type AttributeResponse struct {
	Value []byte `json:"value"`
}

type ReceiptRequest struct {
	Label   string `json:"label"`
	Message []byte `json:"message"`
}

type ReceiptResponse struct {
	Receipt []byte `json:"receipt"` // COSE Sign1, CBOR
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Token   string `json:"token,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}
