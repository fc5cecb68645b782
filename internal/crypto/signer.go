package crypto

import (
	"crypto"
)

// Signer extends crypto.Signer with algorithm metadata.
// It provides a unified interface for classical and PQC signing operations.
type Signer interface {
	crypto.Signer

	// Algorithm returns the algorithm identifier for this signer.
	Algorithm() AlgorithmID

	// SignMessage signs a full message, applying the algorithm's digest
	// convention (pre-hash for ECDSA, raw message for Ed25519 and ML-DSA).
	SignMessage(message []byte) ([]byte, error)
}

// Verifier provides signature verification.
type Verifier interface {
	// Verify verifies a signature against a message.
	Verify(message, signature []byte) bool

	// Algorithm returns the algorithm used for verification.
	Algorithm() AlgorithmID
}

// VerifierFromPublicKey creates a Verifier from a public key.
func VerifierFromPublicKey(pub crypto.PublicKey) (Verifier, error) {
	alg, err := AlgorithmOf(pub)
	if err != nil {
		return nil, err
	}
	return &publicKeyVerifier{alg: alg, pub: pub}, nil
}

type publicKeyVerifier struct {
	alg AlgorithmID
	pub crypto.PublicKey
}

func (v *publicKeyVerifier) Algorithm() AlgorithmID {
	return v.alg
}

func (v *publicKeyVerifier) Verify(message, signature []byte) bool {
	return Verify(v.alg, v.pub, message, signature)
}
