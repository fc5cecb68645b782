// Package cose encodes signed envelopes as COSE_Sign1 messages for
// interchange with consumers outside the simulation.
package cose

import (
	"crypto"
	"crypto/rand"
	"fmt"
	"time"

	gocose "github.com/veraison/go-cose"

	v2xcrypto "github.com/openv2x/v2xtrust/internal/crypto"
	"github.com/openv2x/v2xtrust/internal/message"
)

// Protected header labels for envelope fields.
const (
	labelSenderID  = "v2x.sender_id"
	labelSerial    = "v2x.serial"
	labelSequence  = "v2x.sequence"
	labelTimestamp = "v2x.ts"
	labelMessageID = "v2x.msg_id"
)

// AlgorithmFor maps a signature algorithm to its COSE registration.
func AlgorithmFor(alg v2xcrypto.AlgorithmID) (gocose.Algorithm, error) {
	switch alg {
	case v2xcrypto.AlgECDSAP256:
		return gocose.AlgorithmES256, nil
	case v2xcrypto.AlgECDSAP384:
		return gocose.AlgorithmES384, nil
	case v2xcrypto.AlgEd25519:
		return gocose.AlgorithmEdDSA, nil
	default:
		return 0, fmt.Errorf("no COSE algorithm registered for %s", alg)
	}
}

// Encode wraps an envelope in a COSE_Sign1 message signed with the entity's
// key. The envelope payload becomes the COSE payload; the remaining fields
// travel in protected headers so they are covered by the COSE signature.
func Encode(env *message.Envelope, signer v2xcrypto.Signer) ([]byte, error) {
	alg, err := AlgorithmFor(signer.Algorithm())
	if err != nil {
		return nil, err
	}

	coseSigner, err := gocose.NewSigner(alg, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create COSE signer: %w", err)
	}

	headers := gocose.Headers{
		Protected: gocose.ProtectedHeader{
			gocose.HeaderLabelAlgorithm: alg,
			labelSenderID:               env.SenderID,
			labelSerial:                 env.Serial,
			labelSequence:               env.Sequence,
			labelTimestamp:              env.Timestamp.UTC().UnixMicro(),
			labelMessageID:              env.ID,
		},
	}

	sign1 := gocose.NewSign1Message()
	sign1.Headers = headers
	sign1.Payload = []byte(env.Payload)

	if err := sign1.Sign(rand.Reader, nil, coseSigner); err != nil {
		return nil, fmt.Errorf("failed to sign COSE message: %w", err)
	}
	return sign1.MarshalCBOR()
}

// Decode parses a COSE_Sign1 message back into an envelope. The envelope's
// Signature field is left empty: the COSE signature protects this encoding
// and is checked by Verify.
func Decode(data []byte) (*message.Envelope, error) {
	var sign1 gocose.Sign1Message
	if err := sign1.UnmarshalCBOR(data); err != nil {
		return nil, fmt.Errorf("%w: %v", message.ErrMalformed, err)
	}

	env := &message.Envelope{Payload: string(sign1.Payload)}

	protected := sign1.Headers.Protected
	var err error
	if env.SenderID, err = headerString(protected, labelSenderID); err != nil {
		return nil, err
	}
	if env.ID, err = headerString(protected, labelMessageID); err != nil {
		return nil, err
	}
	if env.Serial, err = headerUint(protected, labelSerial); err != nil {
		return nil, err
	}
	if env.Sequence, err = headerUint(protected, labelSequence); err != nil {
		return nil, err
	}
	ts, err := headerInt(protected, labelTimestamp)
	if err != nil {
		return nil, err
	}
	env.Timestamp = time.UnixMicro(ts).UTC()

	return env, nil
}

// Verify checks the COSE signature against a public key.
func Verify(data []byte, pub crypto.PublicKey) error {
	alg, err := algorithmOfKey(pub)
	if err != nil {
		return err
	}

	verifier, err := gocose.NewVerifier(alg, pub)
	if err != nil {
		return fmt.Errorf("failed to create COSE verifier: %w", err)
	}

	var sign1 gocose.Sign1Message
	if err := sign1.UnmarshalCBOR(data); err != nil {
		return fmt.Errorf("%w: %v", message.ErrMalformed, err)
	}
	if err := sign1.Verify(nil, verifier); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}
	return nil
}

func algorithmOfKey(pub crypto.PublicKey) (gocose.Algorithm, error) {
	alg, err := v2xcrypto.AlgorithmOf(pub)
	if err != nil {
		return 0, err
	}
	return AlgorithmFor(alg)
}

func headerString(h gocose.ProtectedHeader, label string) (string, error) {
	v, ok := h[label]
	if !ok {
		return "", fmt.Errorf("%w: missing COSE header %s", message.ErrMalformed, label)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: COSE header %s is not a string", message.ErrMalformed, label)
	}
	return s, nil
}

func headerUint(h gocose.ProtectedHeader, label string) (uint64, error) {
	n, err := headerInt(h, label)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: COSE header %s is negative", message.ErrMalformed, label)
	}
	return uint64(n), nil
}

func headerInt(h gocose.ProtectedHeader, label string) (int64, error) {
	v, ok := h[label]
	if !ok {
		return 0, fmt.Errorf("%w: missing COSE header %s", message.ErrMalformed, label)
	}
	// CBOR decodes integers as int64 or uint64 depending on sign and size.
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: COSE header %s is not an integer", message.ErrMalformed, label)
	}
}
