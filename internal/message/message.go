// Package message defines the signed envelope exchanged between entities and
// its canonical to-be-signed encoding.
package message

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/xid"
)

// ErrMalformed reports a structural decoding failure, as opposed to an
// authentication failure.
var ErrMalformed = errors.New("malformed message")

// Envelope is a signed broadcast message. Immutable once signed; receivers
// verify and discard it.
type Envelope struct {
	// ID uniquely identifies the envelope.
	ID string `json:"id"`

	// SenderID is the claimed identity of the sending entity.
	SenderID string `json:"sender_id"`

	// Payload is the UTF-8 message body (SAE J2735-style BSM/PSM content).
	Payload string `json:"payload"`

	// Serial is the serial number of the certificate used to sign.
	Serial uint64 `json:"serial"`

	// Sequence is the sender's lifetime message counter, used for
	// anti-replay checks.
	Sequence uint64 `json:"sequence"`

	// Timestamp is the UTC signing time.
	Timestamp time.Time `json:"timestamp"`

	// Signature is the base64-encoded signature over SignedContent.
	Signature string `json:"signature"`
}

// signedContent is the canonical structure covered by the signature.
// Field order is fixed; encoding is deterministic CBOR so that sender and
// receiver always produce identical bytes.
type signedContent struct {
	_         struct{} `cbor:",toarray"`
	SenderID  string
	Serial    uint64
	Sequence  uint64
	Timestamp int64 // UnixMicro, UTC
	Payload   string
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor deterministic mode: %v", err))
	}
}

// New builds an unsigned envelope with a fresh ID and a UTC timestamp.
func New(senderID, payload string, serial, sequence uint64, at time.Time) *Envelope {
	return &Envelope{
		ID:        xid.New().String(),
		SenderID:  senderID,
		Payload:   payload,
		Serial:    serial,
		Sequence:  sequence,
		Timestamp: at.UTC(),
	}
}

// SignedContent returns the deterministic encoding of the fields covered by
// the signature.
func (e *Envelope) SignedContent() ([]byte, error) {
	content := signedContent{
		SenderID:  e.SenderID,
		Serial:    e.Serial,
		Sequence:  e.Sequence,
		Timestamp: e.Timestamp.UTC().UnixMicro(),
		Payload:   e.Payload,
	}
	data, err := encMode.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signed content: %w", err)
	}
	return data, nil
}

// SetSignature stores raw signature bytes base64-encoded.
func (e *Envelope) SetSignature(sig []byte) {
	e.Signature = base64.StdEncoding.EncodeToString(sig)
}

// SignatureBytes decodes the base64 signature.
func (e *Envelope) SignatureBytes() ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(e.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: bad signature encoding: %v", ErrMalformed, err)
	}
	return sig, nil
}

// Validate checks structural invariants of a received envelope.
func (e *Envelope) Validate() error {
	switch {
	case e.SenderID == "":
		return fmt.Errorf("%w: missing sender_id", ErrMalformed)
	case e.Serial == 0:
		return fmt.Errorf("%w: missing certificate serial", ErrMalformed)
	case e.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrMalformed)
	case e.Signature == "":
		return fmt.Errorf("%w: missing signature", ErrMalformed)
	}
	if _, err := e.SignatureBytes(); err != nil {
		return err
	}
	return nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an envelope and validates its structure.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
