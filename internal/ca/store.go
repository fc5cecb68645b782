package ca

import (
	"crypto/x509"
	"sync"
	"time"
)

// Store is the CA's record of issued and revoked certificates.
//
// The CA is the single authority of record for revocation state; verifiers
// never cache its answers. Implementations must make serial allocation atomic
// and make every revocation visible to subsequent reads. The interface does
// not assume in-process access so a networked implementation can be swapped
// in later.
type Store interface {
	// NextSerial atomically allocates the next certificate serial.
	// Serials are strictly increasing and never reused.
	NextSerial() uint64

	// SaveCert records an issued certificate.
	SaveCert(cert *x509.Certificate)

	// Cert returns the certificate with the given serial, or nil if the
	// serial was never issued.
	Cert(serial uint64) *x509.Certificate

	// MarkRevoked records a revocation. Returns false if the serial was
	// already revoked (the call is then a no-op).
	MarkRevoked(serial uint64, at time.Time, reason RevocationReason) bool

	// Revocation returns the revocation entry for a serial, or nil if the
	// serial is not revoked.
	Revocation(serial uint64) *RevokedCertificate

	// Revoked lists all revocation entries.
	Revoked() []RevokedCertificate
}

// MemoryStore keeps issuance and revocation state in process memory.
// A single mutex guards serial allocation and the CRL so that two concurrent
// issuances never share a serial and a revocation is observed by every
// later validity check.
type MemoryStore struct {
	mu      sync.RWMutex
	serial  uint64
	certs   map[uint64]*x509.Certificate
	revoked map[uint64]*RevokedCertificate
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		certs:   make(map[uint64]*x509.Certificate),
		revoked: make(map[uint64]*RevokedCertificate),
	}
}

func (s *MemoryStore) NextSerial() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serial++
	return s.serial
}

func (s *MemoryStore) SaveCert(cert *x509.Certificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[cert.SerialNumber.Uint64()] = cert
}

func (s *MemoryStore) Cert(serial uint64) *x509.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.certs[serial]
}

func (s *MemoryStore) MarkRevoked(serial uint64, at time.Time, reason RevocationReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[serial]; ok {
		return false
	}
	entry := &RevokedCertificate{
		Serial:    serial,
		RevokedAt: at.UTC(),
		Reason:    reason,
	}
	if cert := s.certs[serial]; cert != nil {
		entry.Subject = cert.Subject.String()
	}
	s.revoked[serial] = entry
	return true
}

func (s *MemoryStore) Revocation(serial uint64) *RevokedCertificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revoked[serial]
}

func (s *MemoryStore) Revoked() []RevokedCertificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]RevokedCertificate, 0, len(s.revoked))
	for _, e := range s.revoked {
		entries = append(entries, *e)
	}
	return entries
}
