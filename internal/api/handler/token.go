// Package handler provides HTTP handlers for the delegation API.
package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/svlund/tokenpki/internal/api/dto"
	"github.com/svlund/tokenpki/internal/token"
)

// TokenHandler exposes a token.Service over the delegation protocol.
type TokenHandler struct {
	svc token.Service
}

// NewTokenHandler creates a TokenHandler over the given service.
func NewTokenHandler(svc token.Service) *TokenHandler {
	return &TokenHandler{svc: svc}
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// respondServiceError maps a sentinel error to an HTTP status and the
// wire detail string the remote client understands.
func respondServiceError(w http.ResponseWriter, err error) {
	status, detail := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, token.ErrNoSuchKey):
		status, detail = http.StatusNotFound, dto.DetailNoSuchKey
	case errors.Is(err, token.ErrNoSuchObject):
		status, detail = http.StatusNotFound, dto.DetailNoSuchObject
	case errors.Is(err, token.ErrKeyExists):
		status, detail = http.StatusConflict, dto.DetailKeyExists
	case errors.Is(err, token.ErrObjectExists):
		status, detail = http.StatusConflict, dto.DetailObjectExists
	case errors.Is(err, token.ErrMultipleObjects):
		status, detail = http.StatusConflict, dto.DetailMultipleObjects
	case errors.Is(err, token.ErrUnsupportedKeyType):
		status, detail = http.StatusBadRequest, dto.DetailUnsupportedKeyType
	case errors.Is(err, token.ErrSignatureInvalid):
		status, detail = http.StatusBadRequest, dto.DetailSignatureInvalid
	case errors.Is(err, token.ErrDeviceUnresponsive):
		status, detail = http.StatusServiceUnavailable, dto.DetailDeviceUnresponsive
	}
	respondJSON(w, status, dto.Error{Status: "error", Detail: detail})
}

// respondBadRequest reports a malformed request body.
func respondBadRequest(w http.ResponseWriter, detail string) {
	respondJSON(w, http.StatusBadRequest, dto.Error{Status: "error", Detail: detail})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// CreateKeyPair handles POST /create_keypair.
func (h *TokenHandler) CreateKeyPair(w http.ResponseWriter, r *http.Request) {
	var req dto.KeyRequest
	if !decode(w, r, &req) {
		return
	}
	kt, err := token.ParseKeyType(req.KeyType)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	spkiPEM, keyID, err := h.svc.CreateKeyPair(r.Context(), req.KeyLabel, kt)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.PublicKeyResponse{
		SubjectPublicKeyInfo:    spkiPEM,
		SubjectKeyIdentifierB64: base64.StdEncoding.EncodeToString(keyID),
	})
}

// ImportKeyPair handles POST /import_keypair.
func (h *TokenHandler) ImportKeyPair(w http.ResponseWriter, r *http.Request) {
	var req dto.ImportKeyPairRequest
	if !decode(w, r, &req) {
		return
	}
	kt, err := token.ParseKeyType(req.KeyType)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	pubDER, err := base64.StdEncoding.DecodeString(req.PublicKeyB64)
	if err != nil {
		respondBadRequest(w, "invalid public_key_b64")
		return
	}
	privDER, err := base64.StdEncoding.DecodeString(req.PrivateKeyB64)
	if err != nil {
		respondBadRequest(w, "invalid private_key_b64")
		return
	}
	if err := h.svc.ImportKeyPair(r.Context(), req.KeyLabel, kt, pubDER, privDER); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.StatusResponse{Status: "ok"})
}

// KeyLabels handles POST /key_labels.
func (h *TokenHandler) KeyLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := h.svc.KeyLabels(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make(map[string]string, len(labels))
	for label, kt := range labels {
		out[label] = string(kt)
	}
	respondJSON(w, http.StatusOK, dto.KeyLabelsResponse{KeyLabels: out})
}

// Sign handles POST /sign.
func (h *TokenHandler) Sign(w http.ResponseWriter, r *http.Request) {
	var req dto.SignRequest
	if !decode(w, r, &req) {
		return
	}
	kt, err := token.ParseKeyType(req.KeyType)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.DataB64)
	if err != nil {
		respondBadRequest(w, "invalid data_b64")
		return
	}
	sig, err := h.svc.Sign(r.Context(), req.KeyLabel, data, kt, req.VerifySignature)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.SignResponse{
		SignatureB64: base64.StdEncoding.EncodeToString(sig),
	})
}

// Verify handles POST /verify.
func (h *TokenHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	kt, err := token.ParseKeyType(req.KeyType)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.DataB64)
	if err != nil {
		respondBadRequest(w, "invalid data_b64")
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.SignatureB64)
	if err != nil {
		respondBadRequest(w, "invalid signature_b64")
		return
	}
	ok, err := h.svc.Verify(r.Context(), req.KeyLabel, data, sig, kt)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.VerifyResponse{Verified: ok})
}

// DeleteKeyPair handles POST /delete_keypair.
func (h *TokenHandler) DeleteKeyPair(w http.ResponseWriter, r *http.Request) {
	var req dto.KeyRequest
	if !decode(w, r, &req) {
		return
	}
	kt, err := token.ParseKeyType(req.KeyType)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := h.svc.DeleteKeyPair(r.Context(), req.KeyLabel, kt); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.StatusResponse{Status: "ok"})
}

// PublicKeyData handles POST /public_key_data.
func (h *TokenHandler) PublicKeyData(w http.ResponseWriter, r *http.Request) {
	var req dto.KeyRequest
	if !decode(w, r, &req) {
		return
	}
	kt, err := token.ParseKeyType(req.KeyType)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	spkiPEM, keyID, err := h.svc.PublicKeyData(r.Context(), req.KeyLabel, kt)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.PublicKeyResponse{
		SubjectPublicKeyInfo:    spkiPEM,
		SubjectKeyIdentifierB64: base64.StdEncoding.EncodeToString(keyID),
	})
}

// ImportCertificate handles POST /import_certificate.
func (h *TokenHandler) ImportCertificate(w http.ResponseWriter, r *http.Request) {
	var req dto.ImportCertificateRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ImportCertificate(r.Context(), req.PEM, req.CertLabel); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.StatusResponse{Status: "ok"})
}

// ExportCertificate handles POST /export_certificate.
func (h *TokenHandler) ExportCertificate(w http.ResponseWriter, r *http.Request) {
	var req dto.CertificateRequest
	if !decode(w, r, &req) {
		return
	}
	certPEM, err := h.svc.ExportCertificate(r.Context(), req.CertLabel)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.CertificateResponse{Certificate: certPEM})
}

// DeleteCertificate handles POST /delete_certificate.
func (h *TokenHandler) DeleteCertificate(w http.ResponseWriter, r *http.Request) {
	var req dto.CertificateRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.DeleteCertificate(r.Context(), req.CertLabel); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.StatusResponse{Status: "ok"})
}
