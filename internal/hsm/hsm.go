// Package hsm implements the per-entity Hardware Security Module: it owns the
// entity's private key and certificate pool, signs outgoing messages,
// rotates certificates on a message-count threshold, and verifies incoming
// messages against the CA.
package hsm

import (
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openv2x/v2xtrust/internal/ca"
	v2xcrypto "github.com/openv2x/v2xtrust/internal/crypto"
	"github.com/openv2x/v2xtrust/internal/message"
)

// HSM holds one entity's signing state. All mutating operations are
// serialized by an internal mutex; message preparation is strictly sequential
// per entity.
type HSM struct {
	mu sync.Mutex

	ownerID    string
	entityType ca.EntityType
	signer     v2xcrypto.Signer

	pool     []*x509.Certificate
	active   int
	msgCount int // messages signed with the active certificate
	sequence uint64

	rotationThreshold int
	replay            *ReplayGuard
	logger            zerolog.Logger
}

// RotationEvent describes a completed certificate rotation, returned from
// PrepareMessage so callers can observe the transition.
type RotationEvent struct {
	FromSerial uint64
	ToSerial   uint64
	Skipped    int // invalid certificates passed over
	At         time.Time
}

// New creates an HSM for an entity and generates its key pair.
// A rotationThreshold of zero disables rotation (infrastructure units keep a
// single long-lived certificate).
func New(ownerID string, entityType ca.EntityType, alg v2xcrypto.AlgorithmID, rotationThreshold int, logger zerolog.Logger) (*HSM, error) {
	signer, err := v2xcrypto.GenerateSoftwareSigner(alg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	return &HSM{
		ownerID:           ownerID,
		entityType:        entityType,
		signer:            signer,
		active:            -1,
		rotationThreshold: rotationThreshold,
		replay:            NewReplayGuard(),
		logger:            logger.With().Str("entity", ownerID).Logger(),
	}, nil
}

// OwnerID returns the entity identifier.
func (h *HSM) OwnerID() string {
	return h.ownerID
}

// Signer exposes the entity's signer for envelope interop encodings.
func (h *HSM) Signer() v2xcrypto.Signer {
	return h.signer
}

// ActiveCertificate returns the certificate currently selected for signing,
// or nil if the pool is empty.
func (h *HSM) ActiveCertificate() *x509.Certificate {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active < 0 || h.active >= len(h.pool) {
		return nil
	}
	return h.pool[h.active]
}

// MessageCount returns the number of messages signed with the active
// certificate since the last rotation.
func (h *HSM) MessageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.msgCount
}

// RequestCertificates obtains a fresh pool of pre-issued certificates from
// the CA, activates the first one and resets the rotation counter.
func (h *HSM) RequestCertificates(authority *ca.CA, count int, validity time.Duration) error {
	certs, err := authority.IssueBatch(h.ownerID, h.entityType, h.signer.Public(), count, validity)
	if err != nil {
		return fmt.Errorf("certificate request failed: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.pool = certs
	h.active = 0
	h.msgCount = 0

	h.logger.Info().
		Int("count", len(certs)).
		Uint64("first_serial", certs[0].SerialNumber.Uint64()).
		Msg("certificate pool installed")
	return nil
}

// PrepareMessage signs payload with the active certificate and returns the
// envelope. The rotation counter advances with every message; when it reaches
// the threshold the HSM rotates to the next pool certificate that the CA
// still considers valid. A non-nil RotationEvent reports that transition.
//
// Returns ErrPoolExhausted when no valid certificate remains.
func (h *HSM) PrepareMessage(authority *ca.CA, payload string) (*message.Envelope, *RotationEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now().UTC()
	event, err := h.ensureActiveCertificate(authority, now)
	if err != nil {
		h.logger.Error().Err(err).Msg("cannot authenticate: certificate pool exhausted")
		return nil, nil, err
	}

	cert := h.pool[h.active]
	h.sequence++
	env := message.New(h.ownerID, payload, cert.SerialNumber.Uint64(), h.sequence, now)

	content, err := env.SignedContent()
	if err != nil {
		return nil, nil, err
	}
	sig, err := h.signer.SignMessage(content)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign message: %w", err)
	}
	env.SetSignature(sig)

	h.msgCount++
	return env, event, nil
}

// ensureActiveCertificate makes the active index point at a certificate the
// CA considers valid at now, rotating when the threshold is reached or when
// the active certificate went stale. Caller holds h.mu.
func (h *HSM) ensureActiveCertificate(authority *ca.CA, now time.Time) (*RotationEvent, error) {
	if h.active < 0 || len(h.pool) == 0 {
		return nil, fmt.Errorf("%w: no certificates requested", ErrPoolExhausted)
	}

	current := h.pool[h.active]
	currentValid := authority.IsValid(current.SerialNumber.Uint64(), now)

	due := h.rotationThreshold > 0 && h.msgCount >= h.rotationThreshold
	if currentValid && !due {
		return nil, nil
	}

	// Strictly sequential scan for the next valid certificate.
	next, skipped := -1, 0
	for i := h.active + 1; i < len(h.pool); i++ {
		if authority.IsValid(h.pool[i].SerialNumber.Uint64(), now) {
			next = i
			break
		}
		skipped++
	}

	if next < 0 {
		if currentValid {
			// Rotation was due but nothing valid remains ahead; keep the
			// still-valid active certificate rather than going silent. The
			// counter restarts so the pool is not rescanned on every message.
			h.msgCount = 0
			h.logger.Warn().
				Uint64("serial", current.SerialNumber.Uint64()).
				Msg("rotation due but no valid certificate remains, keeping active certificate")
			return nil, nil
		}
		return nil, fmt.Errorf("%w: no valid certificate in pool of %d", ErrPoolExhausted, len(h.pool))
	}

	event := &RotationEvent{
		FromSerial: current.SerialNumber.Uint64(),
		ToSerial:   h.pool[next].SerialNumber.Uint64(),
		Skipped:    skipped,
		At:         now,
	}
	h.active = next
	h.msgCount = 0

	h.logger.Debug().
		Uint64("from", event.FromSerial).
		Uint64("to", event.ToSerial).
		Int("skipped", event.Skipped).
		Msg("certificate rotated")
	return event, nil
}
