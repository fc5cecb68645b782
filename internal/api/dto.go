// Package api exposes the CA's administrative operations over HTTP.
package api

// APIError is the standardized error response body.
type APIError struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Details provides additional context about the error.
	Details map[string]string `json:"details,omitempty"`
}

// Error codes for API responses.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeNotFound       = "NOT_FOUND"
	CodeKeyBinding     = "KEY_BINDING_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	CA      string `json:"ca"`
}

// IssueRequest asks for a batch of pseudonym certificates.
type IssueRequest struct {
	// SubjectID is the stable entity identifier (e.g. "veh-007").
	SubjectID string `json:"subject_id"`

	// EntityType is "vehicle", "pedestrian" or "infrastructure".
	EntityType string `json:"entity_type"`

	// PublicKey is the entity's PEM-encoded public key.
	PublicKey string `json:"public_key"`

	// Count is the number of certificates to issue. Defaults to the
	// configured pool size.
	Count int `json:"count,omitempty"`

	// Validity is the per-certificate lifetime as a Go duration string.
	// Defaults to the configured validity.
	Validity string `json:"validity,omitempty"`
}

// CertificateInfo describes one issued certificate.
type CertificateInfo struct {
	Serial    uint64 `json:"serial"`
	Subject   string `json:"subject"`
	NotBefore string `json:"not_before"` // RFC3339
	NotAfter  string `json:"not_after"`  // RFC3339
	PEM       string `json:"pem"`
}

// IssueResponse is the body of POST /api/v1/certificates.
type IssueResponse struct {
	Certificates []CertificateInfo `json:"certificates"`
}

// StatusResponse is the body of GET /api/v1/certificates/{serial}.
type StatusResponse struct {
	Serial uint64 `json:"serial"`
	Status string `json:"status"`
	PEM    string `json:"pem,omitempty"`
}

// RevokeRequest asks for a certificate revocation.
type RevokeRequest struct {
	Serial uint64 `json:"serial"`

	// Reason is an RFC 5280 reason name, e.g. "key-compromise".
	// Defaults to "unspecified".
	Reason string `json:"reason,omitempty"`
}

// RevocationInfo describes one revoked certificate.
type RevocationInfo struct {
	Serial    uint64 `json:"serial"`
	Subject   string `json:"subject,omitempty"`
	Reason    string `json:"reason"`
	RevokedAt string `json:"revoked_at"` // RFC3339
}

// RevocationListResponse is the body of GET /api/v1/revocations.
type RevocationListResponse struct {
	Revocations []RevocationInfo `json:"revocations"`
}
