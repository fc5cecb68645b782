package api

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/openv2x/v2xtrust/internal/ca"
	v2xcrypto "github.com/openv2x/v2xtrust/internal/crypto"
)

// Handler serves the CA admin endpoints.
type Handler struct {
	authority *ca.CA
	version   string

	// Issuance defaults applied when a request omits them.
	defaultCount    int
	defaultValidity time.Duration

	// crlNumber increments on every CRL generation.
	crlNumber atomic.Uint64

	logger zerolog.Logger
}

// NewHandler creates a Handler around an initialized CA.
func NewHandler(authority *ca.CA, version string, defaultCount int, defaultValidity time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		authority:       authority,
		version:         version,
		defaultCount:    defaultCount,
		defaultValidity: defaultValidity,
		logger:          logger,
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
		CA:      h.authority.Certificate().Subject.CommonName,
	})
}

// CACertificate handles GET /api/v1/ca/certificate. It returns the root
// certificate in PEM so entities can pin the trust anchor.
func (h *Handler) CACertificate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	_ = pem.Encode(w, &pem.Block{Type: "CERTIFICATE", Bytes: h.authority.Certificate().Raw})
}

// Issue handles POST /api/v1/certificates.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, &APIError{
			Code:    CodeInvalidRequest,
			Message: "Invalid JSON request body",
		})
		return
	}

	if req.SubjectID == "" {
		respondError(w, http.StatusBadRequest, &APIError{
			Code:    CodeInvalidRequest,
			Message: "subject_id is required",
		})
		return
	}

	entityType, err := ca.ParseEntityType(req.EntityType)
	if err != nil {
		respondError(w, http.StatusBadRequest, &APIError{
			Code:    CodeInvalidRequest,
			Message: err.Error(),
		})
		return
	}

	pub, err := v2xcrypto.ParsePublicKey([]byte(req.PublicKey))
	if err != nil {
		respondError(w, http.StatusBadRequest, &APIError{
			Code:    CodeInvalidRequest,
			Message: "public_key: " + err.Error(),
		})
		return
	}

	count := req.Count
	if count <= 0 {
		count = h.defaultCount
	}
	validity := h.defaultValidity
	if req.Validity != "" {
		validity, err = time.ParseDuration(req.Validity)
		if err != nil || validity <= 0 {
			respondError(w, http.StatusBadRequest, &APIError{
				Code:    CodeInvalidRequest,
				Message: "validity must be a positive duration",
			})
			return
		}
	}

	certs, err := h.authority.IssueBatch(req.SubjectID, entityType, pub, count, validity)
	if err != nil {
		if errors.Is(err, ca.ErrKeyBinding) {
			respondError(w, http.StatusUnprocessableEntity, &APIError{
				Code:    CodeKeyBinding,
				Message: err.Error(),
			})
			return
		}
		h.logger.Error().Err(err).Str("subject_id", req.SubjectID).Msg("batch issuance failed")
		respondError(w, http.StatusInternalServerError, &APIError{
			Code:    CodeInternal,
			Message: "certificate issuance failed",
		})
		return
	}

	resp := IssueResponse{Certificates: make([]CertificateInfo, 0, len(certs))}
	for _, cert := range certs {
		resp.Certificates = append(resp.Certificates, certInfo(cert))
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Status handles GET /api/v1/certificates/{serial}.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	serial, err := strconv.ParseUint(chi.URLParam(r, "serial"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, &APIError{
			Code:    CodeInvalidRequest,
			Message: "serial must be a decimal integer",
		})
		return
	}

	status := h.authority.Status(serial, time.Now())
	if status == ca.CertUnknown {
		respondError(w, http.StatusNotFound, &APIError{
			Code:    CodeNotFound,
			Message: "certificate not found",
			Details: map[string]string{"serial": strconv.FormatUint(serial, 10)},
		})
		return
	}

	resp := StatusResponse{Serial: serial, Status: status.String()}
	if cert, err := h.authority.CertificateOf(serial); err == nil {
		resp.PEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Revoke handles POST /api/v1/revocations.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, &APIError{
			Code:    CodeInvalidRequest,
			Message: "Invalid JSON request body",
		})
		return
	}

	reason := ca.ReasonUnspecified
	if req.Reason != "" {
		var err error
		reason, err = ca.ParseRevocationReason(req.Reason)
		if err != nil {
			respondError(w, http.StatusBadRequest, &APIError{
				Code:    CodeInvalidRequest,
				Message: err.Error(),
			})
			return
		}
	}

	if err := h.authority.Revoke(req.Serial, reason); err != nil {
		if errors.Is(err, ca.ErrUnknownSerial) {
			respondError(w, http.StatusNotFound, &APIError{
				Code:    CodeNotFound,
				Message: "certificate not found",
				Details: map[string]string{"serial": strconv.FormatUint(req.Serial, 10)},
			})
			return
		}
		h.logger.Error().Err(err).Uint64("serial", req.Serial).Msg("revocation failed")
		respondError(w, http.StatusInternalServerError, &APIError{
			Code:    CodeInternal,
			Message: "revocation failed",
		})
		return
	}

	respondJSON(w, http.StatusOK, RevocationInfo{
		Serial:    req.Serial,
		Reason:    reason.String(),
		RevokedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// Revocations handles GET /api/v1/revocations.
func (h *Handler) Revocations(w http.ResponseWriter, r *http.Request) {
	revoked := h.authority.Revoked()
	resp := RevocationListResponse{Revocations: make([]RevocationInfo, 0, len(revoked))}
	for _, rc := range revoked {
		resp.Revocations = append(resp.Revocations, RevocationInfo{
			Serial:    rc.Serial,
			Subject:   rc.Subject,
			Reason:    rc.Reason.String(),
			RevokedAt: rc.RevokedAt.UTC().Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// CRL handles GET /api/v1/crl. It returns a freshly signed DER CRL.
func (h *Handler) CRL(w http.ResponseWriter, r *http.Request) {
	number := h.crlNumber.Add(1)
	der, err := h.authority.GenerateCRL(number, time.Now().Add(24*time.Hour))
	if err != nil {
		h.logger.Error().Err(err).Msg("CRL generation failed")
		respondError(w, http.StatusInternalServerError, &APIError{
			Code:    CodeInternal,
			Message: "CRL generation failed",
		})
		return
	}

	w.Header().Set("Content-Type", "application/pkix-crl")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(der)
}

func certInfo(cert *x509.Certificate) CertificateInfo {
	return CertificateInfo{
		Serial:    cert.SerialNumber.Uint64(),
		Subject:   cert.Subject.String(),
		NotBefore: cert.NotBefore.UTC().Format(time.RFC3339),
		NotAfter:  cert.NotAfter.UTC().Format(time.RFC3339),
		PEM:       string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})),
	}
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, apiErr *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiErr)
}
