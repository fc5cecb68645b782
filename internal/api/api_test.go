package api

import (
	"bytes"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openv2x/v2xtrust/internal/ca"
	v2xcrypto "github.com/openv2x/v2xtrust/internal/crypto"
)

func newTestServer(t *testing.T) (*httptest.Server, *ca.CA) {
	t.Helper()

	authority, err := ca.Initialize(ca.NewMemoryStore(), ca.Config{})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	h := NewHandler(authority, "test", 10, 10*time.Minute, zerolog.Nop())
	ts := httptest.NewServer(NewRouter(h, zerolog.Nop()))
	t.Cleanup(ts.Close)
	return ts, authority
}

func publicKeyPEM(t *testing.T) string {
	t.Helper()

	kp, err := v2xcrypto.GenerateKeyPair(v2xcrypto.AlgECDSAP256)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// issueBatch issues certificates over the API and returns the response.
func issueBatch(t *testing.T, ts *httptest.Server, subjectID string, count int) IssueResponse {
	t.Helper()

	resp := postJSON(t, ts.URL+"/api/v1/certificates", IssueRequest{
		SubjectID:  subjectID,
		EntityType: "vehicle",
		PublicKey:  publicKeyPEM(t),
		Count:      count,
	})
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("issue status = %d, body %s", resp.StatusCode, body)
	}
	var out IssueResponse
	decodeJSON(t, resp, &out)
	return out
}

// ============================================================================
// Functional tests
// ============================================================================

func TestF_Health(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var health HealthResponse
	decodeJSON(t, resp, &health)
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
	if health.CA != ca.DefaultName {
		t.Errorf("ca = %q, want %q", health.CA, ca.DefaultName)
	}
}

func TestF_CACertificate(t *testing.T) {
	ts, authority := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/ca/certificate")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	block, _ := pem.Decode(body)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatal("response is not a CERTIFICATE PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	if !cert.Equal(authority.Certificate()) {
		t.Error("served certificate differs from CA root")
	}
}

func TestF_Issue(t *testing.T) {
	ts, authority := newTestServer(t)

	out := issueBatch(t, ts, "veh-001", 3)
	if len(out.Certificates) != 3 {
		t.Fatalf("issued %d certificates, want 3", len(out.Certificates))
	}

	for _, info := range out.Certificates {
		block, _ := pem.Decode([]byte(info.PEM))
		if block == nil {
			t.Fatalf("serial %d: no PEM block", info.Serial)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			t.Fatalf("serial %d: parse: %v", info.Serial, err)
		}
		if err := cert.CheckSignatureFrom(authority.Certificate()); err != nil {
			t.Errorf("serial %d: not signed by CA: %v", info.Serial, err)
		}
		if cert.Subject.CommonName != "vehicle-veh-001" {
			t.Errorf("serial %d: CN = %q", info.Serial, cert.Subject.CommonName)
		}
	}
}

func TestF_Issue_BadRequests(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name string
		req  IssueRequest
		want int
	}{
		{
			name: "missing subject",
			req:  IssueRequest{EntityType: "vehicle", PublicKey: publicKeyPEM(t)},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown entity type",
			req:  IssueRequest{SubjectID: "veh-001", EntityType: "drone", PublicKey: publicKeyPEM(t)},
			want: http.StatusBadRequest,
		},
		{
			name: "garbage public key",
			req:  IssueRequest{SubjectID: "veh-001", EntityType: "vehicle", PublicKey: "not a key"},
			want: http.StatusBadRequest,
		},
		{
			name: "bad validity",
			req: IssueRequest{
				SubjectID:  "veh-001",
				EntityType: "vehicle",
				PublicKey:  publicKeyPEM(t),
				Validity:   "yesterday",
			},
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/v1/certificates", tt.req)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestF_Status(t *testing.T) {
	ts, _ := newTestServer(t)

	out := issueBatch(t, ts, "veh-002", 1)
	serial := out.Certificates[0].Serial

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/certificates/%d", ts.URL, serial))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var status StatusResponse
	decodeJSON(t, resp, &status)
	if status.Status != "valid" {
		t.Errorf("certificate status = %q, want valid", status.Status)
	}
	if status.PEM == "" {
		t.Error("status response missing PEM")
	}
}

func TestF_Status_Unknown(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/certificates/999")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestF_RevokeAndList(t *testing.T) {
	ts, _ := newTestServer(t)

	out := issueBatch(t, ts, "veh-003", 2)
	serial := out.Certificates[0].Serial

	resp := postJSON(t, ts.URL+"/api/v1/revocations", RevokeRequest{
		Serial: serial,
		Reason: "key-compromise",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke status = %d", resp.StatusCode)
	}
	var rev RevocationInfo
	decodeJSON(t, resp, &rev)
	if rev.Reason != "keyCompromise" {
		t.Errorf("reason = %q, want keyCompromise", rev.Reason)
	}

	// The certificate now reports revoked.
	resp2, err := http.Get(fmt.Sprintf("%s/api/v1/certificates/%d", ts.URL, serial))
	if err != nil {
		t.Fatal(err)
	}
	var status StatusResponse
	decodeJSON(t, resp2, &status)
	if status.Status != "revoked" {
		t.Errorf("certificate status = %q, want revoked", status.Status)
	}

	// And appears in the revocation list.
	resp3, err := http.Get(ts.URL + "/api/v1/revocations")
	if err != nil {
		t.Fatal(err)
	}
	var list RevocationListResponse
	decodeJSON(t, resp3, &list)
	if len(list.Revocations) != 1 {
		t.Fatalf("revocation list has %d entries, want 1", len(list.Revocations))
	}
	if list.Revocations[0].Serial != serial {
		t.Errorf("revoked serial = %d, want %d", list.Revocations[0].Serial, serial)
	}
}

func TestF_Revoke_UnknownSerial(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/revocations", RevokeRequest{Serial: 12345})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestF_CRL(t *testing.T) {
	ts, authority := newTestServer(t)

	out := issueBatch(t, ts, "veh-004", 1)
	serial := out.Certificates[0].Serial

	resp := postJSON(t, ts.URL+"/api/v1/revocations", RevokeRequest{Serial: serial})
	resp.Body.Close()

	crlResp, err := http.Get(ts.URL + "/api/v1/crl")
	if err != nil {
		t.Fatal(err)
	}
	defer crlResp.Body.Close()
	if crlResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", crlResp.StatusCode)
	}
	if ct := crlResp.Header.Get("Content-Type"); ct != "application/pkix-crl" {
		t.Errorf("content type = %q", ct)
	}

	der, err := io.ReadAll(crlResp.Body)
	if err != nil {
		t.Fatal(err)
	}
	crl, err := x509.ParseRevocationList(der)
	if err != nil {
		t.Fatalf("parse CRL: %v", err)
	}
	if err := crl.CheckSignatureFrom(authority.Certificate()); err != nil {
		t.Errorf("CRL not signed by CA: %v", err)
	}
	if len(crl.RevokedCertificateEntries) != 1 {
		t.Fatalf("CRL has %d entries, want 1", len(crl.RevokedCertificateEntries))
	}
	if crl.RevokedCertificateEntries[0].SerialNumber.Uint64() != serial {
		t.Errorf("CRL entry serial = %v, want %d", crl.RevokedCertificateEntries[0].SerialNumber, serial)
	}
}

func TestU_RequestID_Propagated(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Request-ID", "test-req-1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "test-req-1" {
		t.Errorf("X-Request-ID = %q, want test-req-1", got)
	}
}
