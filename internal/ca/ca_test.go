package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"errors"
	"math/big"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/openv2x/v2xtrust/internal/audit"
	v2xcrypto "github.com/openv2x/v2xtrust/internal/crypto"
)

func newTestCA(t *testing.T) *CA {
	t.Helper()
	authority, err := Initialize(NewMemoryStore(), Config{})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return authority
}

func newSubjectKey(t *testing.T) *ecdsa.PublicKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return &priv.PublicKey
}

// =============================================================================
// Initialization Functional Tests
// =============================================================================

func TestF_Initialize_SelfSignedRoot(t *testing.T) {
	authority := newTestCA(t)

	root := authority.Certificate()
	if root.Subject.CommonName != DefaultName {
		t.Errorf("root CN = %s, want %s", root.Subject.CommonName, DefaultName)
	}
	if !root.IsCA {
		t.Error("root certificate must have the CA flag")
	}
	if err := root.CheckSignatureFrom(root); err != nil {
		t.Errorf("root must be self-signed: %v", err)
	}
}

func TestF_Initialize_RejectsPQCAlgorithm(t *testing.T) {
	_, err := Initialize(NewMemoryStore(), Config{Algorithm: v2xcrypto.AlgMLDSA65})
	if err == nil {
		t.Error("expected error for PQC CA algorithm")
	}
}

// =============================================================================
// Issuance Functional Tests
// =============================================================================

func TestF_IssueBatch(t *testing.T) {
	authority := newTestCA(t)
	pub := newSubjectKey(t)

	certs, err := authority.IssueBatch("veh1", EntityVehicle, pub, 5, 10*time.Minute)
	if err != nil {
		t.Fatalf("IssueBatch() error = %v", err)
	}
	if len(certs) != 5 {
		t.Fatalf("IssueBatch() returned %d certs, want 5", len(certs))
	}

	var prev uint64
	for i, cert := range certs {
		serial := cert.SerialNumber.Uint64()
		if serial <= prev {
			t.Errorf("cert %d: serial %d not strictly increasing after %d", i, serial, prev)
		}
		prev = serial

		if cert.Subject.CommonName != "vehicle-veh1" {
			t.Errorf("cert %d: CN = %s, want vehicle-veh1", i, cert.Subject.CommonName)
		}
		if !cert.NotBefore.Before(cert.NotAfter) {
			t.Errorf("cert %d: not_before %v >= not_after %v", i, cert.NotBefore, cert.NotAfter)
		}
		if err := cert.CheckSignatureFrom(authority.Certificate()); err != nil {
			t.Errorf("cert %d: not signed by CA: %v", i, err)
		}
	}
}

func TestF_IssueBatch_KeyBinding(t *testing.T) {
	authority := newTestCA(t)

	badPoint := &ecdsa.PublicKey{Curve: elliptic.P256(), X: big.NewInt(1), Y: big.NewInt(1)}

	tests := []struct {
		name string
		pub  interface{}
	}{
		{"nil key", nil},
		{"unsupported type", "not a key"},
		{"incomplete ecdsa", &ecdsa.PublicKey{}},
		{"point off curve", badPoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authority.IssueBatch("veh1", EntityVehicle, tt.pub, 1, time.Minute)
			if !errors.Is(err, ErrKeyBinding) {
				t.Errorf("IssueBatch() error = %v, want ErrKeyBinding", err)
			}
		})
	}
}

func TestF_IssueBatch_ConcurrentSerialsDistinct(t *testing.T) {
	authority := newTestCA(t)
	pub := newSubjectKey(t)

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	results := make([][]uint64, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			certs, err := authority.IssueBatch("veh", EntityVehicle, pub, perWorker, time.Minute)
			if err != nil {
				t.Errorf("IssueBatch() error = %v", err)
				return
			}
			for _, c := range certs {
				results[w] = append(results[w], c.SerialNumber.Uint64())
			}
		}(w)
	}
	wg.Wait()

	var all []uint64
	for _, serials := range results {
		all = append(all, serials...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i := 1; i < len(all); i++ {
		if all[i] == all[i-1] {
			t.Fatalf("duplicate serial %d issued concurrently", all[i])
		}
	}
}

// =============================================================================
// Revocation Functional Tests
// =============================================================================

func TestF_Revoke(t *testing.T) {
	authority := newTestCA(t)
	certs, err := authority.IssueBatch("veh1", EntityVehicle, newSubjectKey(t), 1, 10*time.Minute)
	if err != nil {
		t.Fatalf("IssueBatch() error = %v", err)
	}
	serial := certs[0].SerialNumber.Uint64()
	now := time.Now()

	if !authority.IsValid(serial, now) {
		t.Fatal("fresh certificate should be valid")
	}

	if err := authority.Revoke(serial, ReasonKeyCompromise); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if got := authority.Status(serial, now); got != CertRevoked {
		t.Errorf("Status() after revoke = %s, want revoked", got)
	}

	// Idempotent: a second revocation is a no-op, not an error
	if err := authority.Revoke(serial, ReasonSuperseded); err != nil {
		t.Errorf("second Revoke() error = %v, want nil", err)
	}
	if entry := authority.Revoked(); len(entry) != 1 || entry[0].Reason != ReasonKeyCompromise {
		t.Errorf("Revoked() = %+v, want single keyCompromise entry", entry)
	}
}

func TestF_Revoke_UnknownSerial(t *testing.T) {
	authority := newTestCA(t)
	if err := authority.Revoke(9999, ReasonUnspecified); !errors.Is(err, ErrUnknownSerial) {
		t.Errorf("Revoke() error = %v, want ErrUnknownSerial", err)
	}
}

// =============================================================================
// Status / Validity Unit Tests
// =============================================================================

func TestU_Status(t *testing.T) {
	authority := newTestCA(t)
	certs, err := authority.IssueBatch("veh1", EntityVehicle, newSubjectKey(t), 2, 10*time.Minute)
	if err != nil {
		t.Fatalf("IssueBatch() error = %v", err)
	}
	serial := certs[0].SerialNumber.Uint64()
	issuedAt := certs[0].NotBefore

	if err := authority.Revoke(certs[1].SerialNumber.Uint64(), ReasonCertificateHold); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	tests := []struct {
		name   string
		serial uint64
		at     time.Time
		want   CertStatus
	}{
		{"valid inside window", serial, issuedAt.Add(time.Second), CertValid},
		{"never issued", 424242, issuedAt, CertUnknown},
		{"revoked", certs[1].SerialNumber.Uint64(), issuedAt.Add(time.Second), CertRevoked},
		{"before window", serial, issuedAt.Add(-time.Hour), CertOutsideWindow},
		{"exactly at not_after", serial, certs[0].NotAfter, CertOutsideWindow},
		{"after window", serial, certs[0].NotAfter.Add(time.Hour), CertOutsideWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := authority.Status(tt.serial, tt.at); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestU_Status_ExpiryWinsOverRevocation(t *testing.T) {
	authority := newTestCA(t)
	certs, err := authority.IssueBatch("veh1", EntityVehicle, newSubjectKey(t), 1, time.Minute)
	if err != nil {
		t.Fatalf("IssueBatch() error = %v", err)
	}
	serial := certs[0].SerialNumber.Uint64()
	if err := authority.Revoke(serial, ReasonKeyCompromise); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	inside := certs[0].NotBefore.Add(time.Second)
	if got := authority.Status(serial, inside); got != CertRevoked {
		t.Errorf("Status() inside window = %s, want revoked", got)
	}

	// Past not_after the window check takes precedence, so even a revoked
	// certificate reports as outside its window.
	after := certs[0].NotAfter.Add(time.Hour)
	if got := authority.Status(serial, after); got != CertOutsideWindow {
		t.Errorf("Status() after expiry = %s, want outside window", got)
	}
}

// =============================================================================
// CRL Functional Tests
// =============================================================================

func TestF_GenerateCRL(t *testing.T) {
	authority := newTestCA(t)
	certs, err := authority.IssueBatch("veh1", EntityVehicle, newSubjectKey(t), 3, 10*time.Minute)
	if err != nil {
		t.Fatalf("IssueBatch() error = %v", err)
	}
	for _, c := range certs[:2] {
		if err := authority.Revoke(c.SerialNumber.Uint64(), ReasonSuperseded); err != nil {
			t.Fatalf("Revoke() error = %v", err)
		}
	}

	crlDER, err := authority.GenerateCRL(1, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("GenerateCRL() error = %v", err)
	}

	crl, err := x509.ParseRevocationList(crlDER)
	if err != nil {
		t.Fatalf("ParseRevocationList() error = %v", err)
	}
	if len(crl.RevokedCertificateEntries) != 2 {
		t.Errorf("CRL has %d entries, want 2", len(crl.RevokedCertificateEntries))
	}
	if err := crl.CheckSignatureFrom(authority.Certificate()); err != nil {
		t.Errorf("CRL not signed by CA: %v", err)
	}
}

// =============================================================================
// Audit Integration Tests
// =============================================================================

func TestF_AuditTrail(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	writer, err := audit.NewFileWriter(logPath)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	defer writer.Close()

	authority, err := Initialize(NewMemoryStore(), Config{Audit: writer})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	certs, err := authority.IssueBatch("veh1", EntityVehicle, newSubjectKey(t), 2, time.Minute)
	if err != nil {
		t.Fatalf("IssueBatch() error = %v", err)
	}
	if err := authority.Revoke(certs[0].SerialNumber.Uint64(), ReasonKeyCompromise); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := authority.GenerateCRL(1, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("GenerateCRL() error = %v", err)
	}

	// CA_CREATED, CERT_ISSUED, CERT_REVOKED, CRL_GENERATED, all chained.
	count, err := audit.VerifyChain(logPath)
	if err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
	if count != 4 {
		t.Errorf("audit log has %d events, want 4", count)
	}
}

func TestF_NewWithSigner_AuditsLoad(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	writer, err := audit.NewFileWriter(logPath)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	defer writer.Close()

	signer, err := v2xcrypto.GenerateSoftwareSigner(v2xcrypto.AlgECDSAP256)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewWithSigner(NewMemoryStore(), Config{Audit: writer}, signer); err != nil {
		t.Fatalf("NewWithSigner() error = %v", err)
	}

	// CA_CREATED followed by CA_LOADED.
	count, err := audit.VerifyChain(logPath)
	if err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
	if count != 2 {
		t.Errorf("audit log has %d events, want 2", count)
	}
}

// =============================================================================
// Revocation Reason Unit Tests
// =============================================================================

func TestU_ParseRevocationReason(t *testing.T) {
	tests := []struct {
		in      string
		want    RevocationReason
		wantErr bool
	}{
		{"keycompromise", ReasonKeyCompromise, false},
		{"key-compromise", ReasonKeyCompromise, false},
		{"superseded", ReasonSuperseded, false},
		{"", ReasonUnspecified, false},
		{"bogus", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRevocationReason(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRevocationReason(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseRevocationReason(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
