package hsm

import (
	"crypto/x509"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openv2x/v2xtrust/internal/ca"
	v2xcrypto "github.com/openv2x/v2xtrust/internal/crypto"
	"github.com/openv2x/v2xtrust/internal/message"
)

// Status classifies the outcome of message verification. Rejecting an
// unauthenticated message is routine behavior, so failures are returned as a
// status, never as an error; errors are reserved for malformed input.
type Status int

const (
	StatusOK Status = iota
	StatusSignatureInvalid
	StatusCertificateExpired
	StatusCertificateRevoked
	StatusCertificateUntrusted
	StatusSubjectMismatch
	StatusReplayed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSignatureInvalid:
		return "signature invalid"
	case StatusCertificateExpired:
		return "certificate expired or not yet valid"
	case StatusCertificateRevoked:
		return "certificate revoked"
	case StatusCertificateUntrusted:
		return "certificate untrusted"
	case StatusSubjectMismatch:
		return "subject mismatch"
	case StatusReplayed:
		return "message replayed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the classified outcome of verifying one message.
type Result struct {
	Status Status
	Detail string
}

// OK reports whether verification succeeded.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

func reject(status Status, format string, args ...interface{}) Result {
	return Result{Status: status, Detail: fmt.Sprintf(format, args...)}
}

// VerifyMessage authenticates an incoming envelope against the sender's
// certificate and the CA's revocation state at the given instant.
//
// Check order follows the trust chain outward: certificate signature by the
// CA, validity window and CRL (the CA is the sole authority, consulted on
// every call), subject binding, then the payload signature.
//
// An error is returned only for malformed input; every expected
// authentication failure is a Result.
func (h *HSM) VerifyMessage(env *message.Envelope, senderCert *x509.Certificate, authority *ca.CA, at time.Time) (Result, error) {
	res, err := Verify(env, senderCert, authority, at)
	if err != nil {
		return res, err
	}
	if res.OK() {
		// Count only authenticated traffic in the replay window.
		if !h.replay.Observe(env.SenderID, env.Sequence) {
			res = reject(StatusReplayed, "sequence %d already observed for %s", env.Sequence, env.SenderID)
		}
	}
	if !res.OK() {
		h.logger.Warn().
			Str("sender", env.SenderID).
			Uint64("serial", env.Serial).
			Str("reason", res.Status.String()).
			Msg("message rejected")
	}
	return res, nil
}

// Verify is the stateless core of VerifyMessage, usable without a receiving
// HSM (and without replay tracking).
func Verify(env *message.Envelope, senderCert *x509.Certificate, authority *ca.CA, at time.Time) (Result, error) {
	if env == nil {
		return Result{}, fmt.Errorf("%w: nil envelope", message.ErrMalformed)
	}
	if senderCert == nil {
		return Result{}, fmt.Errorf("%w: nil sender certificate", message.ErrMalformed)
	}
	if err := env.Validate(); err != nil {
		return Result{}, err
	}
	sig, err := env.SignatureBytes()
	if err != nil {
		return Result{}, err
	}

	// Step 1: the certificate must be signed by the root CA.
	if err := senderCert.CheckSignatureFrom(authority.Certificate()); err != nil {
		return reject(StatusCertificateUntrusted, "certificate not signed by root CA: %v", err), nil
	}

	serial := senderCert.SerialNumber.Uint64()
	if env.Serial != serial {
		return reject(StatusCertificateUntrusted, "envelope serial %d does not match certificate serial %d", env.Serial, serial), nil
	}

	// Step 2+3: window and CRL, answered by the CA on every call.
	switch status := authority.Status(serial, at); status {
	case ca.CertValid:
	case ca.CertRevoked:
		return reject(StatusCertificateRevoked, "certificate %d is revoked", serial), nil
	case ca.CertOutsideWindow:
		return reject(StatusCertificateExpired, "certificate %d outside validity window at %s", serial, at.UTC().Format(time.RFC3339)), nil
	default:
		return reject(StatusCertificateUntrusted, "certificate %d not issued by this CA", serial), nil
	}

	// Step 4: the certificate subject must match the claimed sender.
	if got := subjectID(senderCert); got != env.SenderID {
		return reject(StatusSubjectMismatch, "certificate subject %q does not match sender %q", got, env.SenderID), nil
	}

	// Step 5: the payload signature must verify with the certificate key.
	content, err := env.SignedContent()
	if err != nil {
		return Result{}, err
	}
	alg, err := v2xcrypto.AlgorithmOf(senderCert.PublicKey)
	if err != nil {
		return reject(StatusCertificateUntrusted, "unsupported certificate key: %v", err), nil
	}
	if !v2xcrypto.Verify(alg, senderCert.PublicKey, content, sig) {
		return reject(StatusSignatureInvalid, "payload signature does not verify"), nil
	}

	return Result{Status: StatusOK}, nil
}

// subjectID extracts the entity identifier from a certificate common name of
// the form "<entity-type>-<id>".
func subjectID(cert *x509.Certificate) string {
	cn := cert.Subject.CommonName
	if i := strings.Index(cn, "-"); i >= 0 {
		return cn[i+1:]
	}
	return cn
}

// ReplayGuard tracks the highest authenticated sequence number seen per
// sender and rejects repeats. Sequence numbers are the sender HSM's lifetime
// message counter, so a replayed or reordered duplicate never advances it.
type ReplayGuard struct {
	mu   sync.Mutex
	high map[string]uint64
}

// NewReplayGuard creates an empty guard.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{high: make(map[string]uint64)}
}

// Observe records the sequence for a sender. It returns false when the
// sequence does not advance past the highest value already observed.
func (g *ReplayGuard) Observe(senderID string, sequence uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sequence <= g.high[senderID] {
		return false
	}
	g.high[senderID] = sequence
	return true
}
