package message

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// =============================================================================
// Envelope Unit Tests
// =============================================================================

func TestU_SignedContent_Deterministic(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := New("veh1", "brake warning", 7, 3, at)
	b := &Envelope{
		ID:        "different-id",
		SenderID:  "veh1",
		Payload:   "brake warning",
		Serial:    7,
		Sequence:  3,
		Timestamp: at,
	}

	ca, err := a.SignedContent()
	if err != nil {
		t.Fatalf("SignedContent() error = %v", err)
	}
	cb, err := b.SignedContent()
	if err != nil {
		t.Fatalf("SignedContent() error = %v", err)
	}
	// The envelope ID is not covered by the signature
	if !bytes.Equal(ca, cb) {
		t.Error("signed content differs for identical signed fields")
	}
}

func TestU_SignedContent_BindsAllFields(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	base := New("veh1", "brake warning", 7, 3, at)
	ref, err := base.SignedContent()
	if err != nil {
		t.Fatalf("SignedContent() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Envelope)
	}{
		{"sender", func(e *Envelope) { e.SenderID = "veh2" }},
		{"payload", func(e *Envelope) { e.Payload = "all clear" }},
		{"serial", func(e *Envelope) { e.Serial = 8 }},
		{"sequence", func(e *Envelope) { e.Sequence = 4 }},
		{"timestamp", func(e *Envelope) { e.Timestamp = at.Add(time.Second) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mut := *base
			tt.mutate(&mut)
			got, err := mut.SignedContent()
			if err != nil {
				t.Fatalf("SignedContent() error = %v", err)
			}
			if bytes.Equal(ref, got) {
				t.Errorf("mutating %s did not change signed content", tt.name)
			}
		})
	}
}

func TestU_Envelope_SignatureRoundTrip(t *testing.T) {
	e := New("veh1", "payload", 1, 1, time.Now())
	raw := []byte{0x01, 0x02, 0xff}
	e.SetSignature(raw)

	got, err := e.SignatureBytes()
	if err != nil {
		t.Fatalf("SignatureBytes() error = %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("SignatureBytes() = %x, want %x", got, raw)
	}
}

// =============================================================================
// Decode Functional Tests
// =============================================================================

func TestF_Decode_RoundTrip(t *testing.T) {
	e := New("ped4", "crossing", 12, 9, time.Now())
	e.SetSignature([]byte("sig"))

	data, err := e.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.SenderID != e.SenderID || got.Serial != e.Serial || got.Sequence != e.Sequence {
		t.Errorf("Decode() = %+v, want %+v", got, e)
	}
}

func TestF_Decode_Malformed(t *testing.T) {
	valid := New("veh1", "payload", 1, 1, time.Now())
	valid.SetSignature([]byte("sig"))

	tests := []struct {
		name string
		data func() []byte
	}{
		{"not json", func() []byte { return []byte("{{{") }},
		{"missing sender", func() []byte {
			e := *valid
			e.SenderID = ""
			d, _ := e.Encode()
			return d
		}},
		{"missing serial", func() []byte {
			e := *valid
			e.Serial = 0
			d, _ := e.Encode()
			return d
		}},
		{"missing signature", func() []byte {
			e := *valid
			e.Signature = ""
			d, _ := e.Encode()
			return d
		}},
		{"bad signature encoding", func() []byte {
			e := *valid
			e.Signature = "%%%not-base64%%%"
			d, _ := e.Encode()
			return d
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data())
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Decode() error = %v, want ErrMalformed", err)
			}
		})
	}
}
