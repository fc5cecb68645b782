// Package ca implements the Certificate Authority: the sole trust anchor that
// issues pseudonym certificate batches, maintains the revocation list, and
// answers point-in-time validity queries.
package ca

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/openv2x/v2xtrust/internal/audit"
	v2xcrypto "github.com/openv2x/v2xtrust/internal/crypto"
)

// ErrKeyBinding reports a public key that cannot be bound into a certificate.
// Recoverable: the caller may retry with a valid key.
var ErrKeyBinding = errors.New("public key cannot be bound to a certificate")

// ErrUnknownSerial reports an operation on a serial that was never issued.
var ErrUnknownSerial = errors.New("unknown certificate serial")

// DefaultName is the issuer common name used by the simulation.
const DefaultName = "V2X-Root-CA"

// Organization is the organization stamped into every subject DN.
const Organization = "V2X-CP"

// EntityType categorizes simulated entities.
type EntityType string

const (
	EntityVehicle        EntityType = "vehicle"
	EntityPedestrian     EntityType = "pedestrian"
	EntityInfrastructure EntityType = "infrastructure"
)

// ParseEntityType converts a string to an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntityVehicle, EntityPedestrian, EntityInfrastructure:
		return EntityType(s), nil
	default:
		return "", fmt.Errorf("unknown entity type: %s", s)
	}
}

// CertStatus is the CA's point-in-time answer about a serial.
type CertStatus int

const (
	CertValid CertStatus = iota
	CertUnknown
	CertRevoked
	CertOutsideWindow
)

func (s CertStatus) String() string {
	switch s {
	case CertValid:
		return "valid"
	case CertUnknown:
		return "unknown"
	case CertRevoked:
		return "revoked"
	case CertOutsideWindow:
		return "outside validity window"
	default:
		return fmt.Sprintf("CertStatus(%d)", int(s))
	}
}

// CA is a Certificate Authority. It owns the master key pair and the
// revocation list. Pass it explicitly into every operation that needs it;
// there is no package-level instance.
type CA struct {
	name   string
	store  Store
	cert   *x509.Certificate
	signer v2xcrypto.Signer
	audit  audit.Writer
}

// Config holds CA initialization options.
type Config struct {
	// Name is the CA's common name. Defaults to DefaultName.
	Name string

	// Algorithm is the signature algorithm for the CA key.
	// Must be a classical algorithm; X.509 signing of certificates and
	// CRLs is done by crypto/x509.
	Algorithm v2xcrypto.AlgorithmID

	// Validity is the self-signed root certificate validity.
	// Defaults to ten years.
	Validity time.Duration

	// Audit receives audit events. Defaults to the no-op writer.
	Audit audit.Writer
}

// Initialize creates a new CA with a fresh key pair and a self-signed root
// certificate.
func Initialize(store Store, cfg Config) (*CA, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = v2xcrypto.DefaultAlgorithm
	}
	if cfg.Algorithm.IsPQC() {
		return nil, fmt.Errorf("CA algorithm %s: X.509 issuance requires a classical algorithm", cfg.Algorithm)
	}
	if cfg.Validity <= 0 {
		cfg.Validity = 10 * 365 * 24 * time.Hour
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopWriter{}
	}

	signer, err := v2xcrypto.GenerateSoftwareSigner(cfg.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	return initializeWithSigner(store, cfg, signer)
}

// NewWithSigner builds a CA around an existing key pair, self-signing a fresh
// root certificate. Used when the key pair was generated offline (the key
// generation utility) and loaded from PEM.
func NewWithSigner(store Store, cfg Config, signer v2xcrypto.Signer) (*CA, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Validity <= 0 {
		cfg.Validity = 10 * 365 * 24 * time.Hour
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopWriter{}
	}
	if signer.Algorithm().IsPQC() {
		return nil, fmt.Errorf("CA algorithm %s: X.509 issuance requires a classical algorithm", signer.Algorithm())
	}

	authority, err := initializeWithSigner(store, cfg, signer)
	if err != nil {
		return nil, err
	}
	if err := cfg.Audit.Write(audit.CALoaded(cfg.Name)); err != nil {
		return nil, err
	}
	return authority, nil
}

func initializeWithSigner(store Store, cfg Config, signer v2xcrypto.Signer) (*CA, error) {
	now := time.Now().UTC()
	skid, err := subjectKeyID(signer.Public())
	if err != nil {
		return nil, fmt.Errorf("failed to compute subject key ID: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: new(big.Int).SetUint64(store.NextSerial()),
		Subject: pkix.Name{
			CommonName:   cfg.Name,
			Organization: []string{Organization},
		},
		NotBefore:             now,
		NotAfter:              now.Add(cfg.Validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
		SubjectKeyId:          skid,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, signer.Public(), signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}
	store.SaveCert(cert)

	if err := cfg.Audit.Write(audit.CACreated(cfg.Name, string(signer.Algorithm()))); err != nil {
		return nil, err
	}

	return &CA{
		name:   cfg.Name,
		store:  store,
		cert:   cert,
		signer: signer,
		audit:  cfg.Audit,
	}, nil
}

// Certificate returns the CA's root certificate.
func (ca *CA) Certificate() *x509.Certificate {
	return ca.cert
}

// PublicKey returns the CA's public key, the trust anchor for certificate
// verification.
func (ca *CA) PublicKey() crypto.PublicKey {
	return ca.signer.Public()
}

// IssueBatch allocates count certificates binding subjectID to pub, each with
// validity window [now, now+validity), signed with the CA key. Serials are
// strictly increasing across the batch and across concurrent calls.
func (ca *CA) IssueBatch(subjectID string, entityType EntityType, pub crypto.PublicKey, count int, validity time.Duration) ([]*x509.Certificate, error) {
	if count <= 0 {
		return nil, fmt.Errorf("certificate count must be positive, got %d", count)
	}
	if validity <= 0 {
		return nil, fmt.Errorf("certificate validity must be positive, got %s", validity)
	}
	if err := validateSubjectKey(pub); err != nil {
		return nil, err
	}

	subject := pkix.Name{
		CommonName:   fmt.Sprintf("%s-%s", entityType, subjectID),
		Organization: []string{Organization},
	}
	skid, err := subjectKeyID(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyBinding, err)
	}

	now := time.Now().UTC()
	certs := make([]*x509.Certificate, 0, count)
	for i := 0; i < count; i++ {
		template := &x509.Certificate{
			SerialNumber:          new(big.Int).SetUint64(ca.store.NextSerial()),
			Subject:               subject,
			NotBefore:             now,
			NotAfter:              now.Add(validity),
			KeyUsage:              x509.KeyUsageDigitalSignature,
			BasicConstraintsValid: true,
			SubjectKeyId:          skid,
			AuthorityKeyId:        ca.cert.SubjectKeyId,
		}

		certDER, err := x509.CreateCertificate(rand.Reader, template, ca.cert, pub, ca.signer)
		if err != nil {
			return nil, fmt.Errorf("failed to sign certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(certDER)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}

		ca.store.SaveCert(cert)
		certs = append(certs, cert)
	}

	ev := audit.CertIssued(
		fmt.Sprintf("0x%X", certs[0].SerialNumber),
		subject.CommonName,
		string(ca.signer.Algorithm()),
		count,
	)
	if err := ca.audit.Write(ev); err != nil {
		return nil, err
	}

	return certs, nil
}

// Revoke adds the serial to the CRL. Revoking an already-revoked serial is a
// no-op. Revoking a serial that was never issued is an error.
func (ca *CA) Revoke(serial uint64, reason RevocationReason) error {
	cert := ca.store.Cert(serial)
	if cert == nil {
		return fmt.Errorf("%w: %d", ErrUnknownSerial, serial)
	}

	if !ca.store.MarkRevoked(serial, time.Now(), reason) {
		return nil // already revoked
	}

	ev := audit.CertRevoked(fmt.Sprintf("0x%X", serial), cert.Subject.String(), reason.String())
	return ca.audit.Write(ev)
}

// Status reports the serial's standing at the given instant: issued, not
// revoked, and inside its validity window. This is the sole authority
// consulted during verification; results must not be cached across calls.
func (ca *CA) Status(serial uint64, at time.Time) CertStatus {
	cert := ca.store.Cert(serial)
	if cert == nil {
		return CertUnknown
	}
	// The window is checked before the CRL, so a certificate past its
	// not_after always reports as outside the window, revoked or not.
	at = at.UTC()
	if at.Before(cert.NotBefore) || !at.Before(cert.NotAfter) {
		return CertOutsideWindow
	}
	if ca.store.Revocation(serial) != nil {
		return CertRevoked
	}
	return CertValid
}

// IsValid reports whether the serial is issued, unrevoked, and inside its
// validity window at the given instant.
func (ca *CA) IsValid(serial uint64, at time.Time) bool {
	return ca.Status(serial, at) == CertValid
}

// CertificateOf returns the issued certificate for a serial.
func (ca *CA) CertificateOf(serial uint64) (*x509.Certificate, error) {
	cert := ca.store.Cert(serial)
	if cert == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSerial, serial)
	}
	return cert, nil
}

// GenerateCRL produces a signed X.509 CRL covering every revocation recorded
// so far.
func (ca *CA) GenerateCRL(number uint64, nextUpdate time.Time) ([]byte, error) {
	entries := ca.store.Revoked()
	revoked := make([]x509.RevocationListEntry, 0, len(entries))
	for _, e := range entries {
		revoked = append(revoked, x509.RevocationListEntry{
			SerialNumber:   new(big.Int).SetUint64(e.Serial),
			RevocationTime: e.RevokedAt,
			ReasonCode:     int(e.Reason),
		})
	}

	template := &x509.RevocationList{
		RevokedCertificateEntries: revoked,
		Number:                    new(big.Int).SetUint64(number),
		ThisUpdate:                time.Now().UTC(),
		NextUpdate:                nextUpdate,
	}

	crlDER, err := x509.CreateRevocationList(rand.Reader, template, ca.cert, ca.signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create CRL: %w", err)
	}

	if err := ca.audit.Write(audit.CRLGenerated(len(revoked))); err != nil {
		return nil, err
	}
	return crlDER, nil
}

// Revoked lists all CRL entries.
func (ca *CA) Revoked() []RevokedCertificate {
	return ca.store.Revoked()
}

// validateSubjectKey rejects keys that x509 issuance cannot bind.
func validateSubjectKey(pub crypto.PublicKey) error {
	if pub == nil {
		return fmt.Errorf("%w: nil public key", ErrKeyBinding)
	}
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		if k.Curve == nil || k.X == nil || k.Y == nil {
			return fmt.Errorf("%w: incomplete ECDSA public key", ErrKeyBinding)
		}
		if !k.Curve.IsOnCurve(k.X, k.Y) {
			return fmt.Errorf("%w: ECDSA point not on curve", ErrKeyBinding)
		}
		return nil
	case ed25519.PublicKey:
		if len(k) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: bad Ed25519 key length %d", ErrKeyBinding, len(k))
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported key type %T", ErrKeyBinding, pub)
	}
}

// subjectKeyID derives a key identifier from the SHA-256 of the PKIX
// encoding, truncated to 160 bits (RFC 7093 method 1).
func subjectKeyID(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(der)
	return sum[:20], nil
}
