package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Event Unit Tests
// =============================================================================

func TestU_Event_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr bool
	}{
		{"[Unit] Event: complete event", func(e *Event) {}, false},
		{"[Unit] Event: missing type", func(e *Event) { e.EventType = "" }, true},
		{"[Unit] Event: missing timestamp", func(e *Event) { e.Timestamp = "" }, true},
		{"[Unit] Event: missing actor", func(e *Event) { e.Actor.ID = "" }, true},
		{"[Unit] Event: missing result", func(e *Event) { e.Result = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvent(EventCertIssued, ResultSuccess)
			tt.mutate(e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestU_Event_CanonicalJSON_ExcludesHash(t *testing.T) {
	e := CertIssued("0x1", "vehicle-veh1", "ecdsa-p256", 10)
	e.Hash = "sha3-256:abc"

	canonical, err := e.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON() error = %v", err)
	}
	if strings.Contains(string(canonical), "sha3-256:abc") {
		t.Error("canonical JSON must not contain the event's own hash")
	}
}

// =============================================================================
// FileWriter Functional Tests
// =============================================================================

func TestF_FileWriter_HashChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	events := []*Event{
		CACreated("V2X-Root-CA", "ecdsa-p256"),
		CertIssued("0x1", "vehicle-veh1", "ecdsa-p256", 100),
		CertRevoked("0x1", "vehicle-veh1", "keyCompromise"),
		CRLGenerated(1),
	}
	for _, e := range events {
		if err := w.Write(e); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	n, err := VerifyChain(path)
	if err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
	if n != len(events) {
		t.Errorf("VerifyChain() = %d events, want %d", n, len(events))
	}
}

func TestF_FileWriter_ChainContinuesAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	w1, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	if err := w1.Write(CACreated("V2X-Root-CA", "ecdsa-p256")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	first := w1.LastHash()
	if err := w1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	w2, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	if w2.LastHash() != first {
		t.Errorf("LastHash() after reopen = %s, want %s", w2.LastHash(), first)
	}
	if err := w2.Write(CertIssued("0x2", "vehicle-veh2", "ecdsa-p256", 5)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if n, err := VerifyChain(path); err != nil || n != 2 {
		t.Fatalf("VerifyChain() = %d, %v; want 2 events, no error", n, err)
	}
}

func TestF_VerifyChain_DetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	if err := w.Write(CertIssued("0x1", "vehicle-veh1", "ecdsa-p256", 1)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	tampered := strings.Replace(string(data), "vehicle-veh1", "vehicle-veh9", 1)
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := VerifyChain(path); err == nil {
		t.Error("VerifyChain() should fail on tampered log")
	}
}

func TestU_NopWriter(t *testing.T) {
	var w NopWriter
	if err := w.Write(CACreated("ca", "ecdsa-p256")); err != nil {
		t.Errorf("NopWriter.Write() error = %v", err)
	}
	if w.LastHash() != GenesisHash {
		t.Errorf("NopWriter.LastHash() = %s, want %s", w.LastHash(), GenesisHash)
	}
}
