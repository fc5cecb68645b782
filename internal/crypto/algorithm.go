// Package crypto provides the cryptographic primitives for the V2X trust
// core. It supports classical algorithms (ECDSA, Ed25519) and post-quantum
// ML-DSA via the cloudflare/circl library.
package crypto

import (
	"crypto/x509"
	"fmt"
)

// AlgorithmID identifies a signature algorithm.
type AlgorithmID string

// Classical signature algorithms.
const (
	AlgECDSAP256 AlgorithmID = "ecdsa-p256"
	AlgECDSAP384 AlgorithmID = "ecdsa-p384"
	AlgEd25519   AlgorithmID = "ed25519"
)

// Post-quantum signature algorithms (FIPS 204 ML-DSA).
const (
	AlgMLDSA44 AlgorithmID = "ml-dsa-44"
	AlgMLDSA65 AlgorithmID = "ml-dsa-65"
	AlgMLDSA87 AlgorithmID = "ml-dsa-87"
)

// DefaultAlgorithm is ECDSA over P-256 with SHA-256, matching the SAE J2735
// deployments this core models.
const DefaultAlgorithm = AlgECDSAP256

// algorithmInfo holds metadata about an algorithm.
type algorithmInfo struct {
	X509SigAlg  x509.SignatureAlgorithm
	PQC         bool
	Description string
}

var algorithms = map[AlgorithmID]algorithmInfo{
	AlgECDSAP256: {
		X509SigAlg:  x509.ECDSAWithSHA256,
		Description: "ECDSA with P-256 curve",
	},
	AlgECDSAP384: {
		X509SigAlg:  x509.ECDSAWithSHA384,
		Description: "ECDSA with P-384 curve",
	},
	AlgEd25519: {
		X509SigAlg:  x509.PureEd25519,
		Description: "Ed25519",
	},
	AlgMLDSA44: {
		PQC:         true,
		Description: "ML-DSA-44 (FIPS 204)",
	},
	AlgMLDSA65: {
		PQC:         true,
		Description: "ML-DSA-65 (FIPS 204)",
	},
	AlgMLDSA87: {
		PQC:         true,
		Description: "ML-DSA-87 (FIPS 204)",
	},
}

// IsValid reports whether the algorithm is supported.
func (a AlgorithmID) IsValid() bool {
	_, ok := algorithms[a]
	return ok
}

// IsPQC reports whether the algorithm is a post-quantum algorithm.
func (a AlgorithmID) IsPQC() bool {
	return algorithms[a].PQC
}

// X509SignatureAlgorithm returns the x509 signature algorithm for classical
// algorithms, or x509.UnknownSignatureAlgorithm for PQC ones.
func (a AlgorithmID) X509SignatureAlgorithm() x509.SignatureAlgorithm {
	return algorithms[a].X509SigAlg
}

// Description returns a human-readable description of the algorithm.
func (a AlgorithmID) Description() string {
	return algorithms[a].Description
}

// ParseAlgorithm parses an algorithm name as used in configuration files.
func ParseAlgorithm(s string) (AlgorithmID, error) {
	alg := AlgorithmID(s)
	if !alg.IsValid() {
		return "", fmt.Errorf("unsupported algorithm: %q", s)
	}
	return alg, nil
}

// SupportedAlgorithms returns the names of all supported algorithms.
func SupportedAlgorithms() []string {
	names := make([]string, 0, len(algorithms))
	for id := range algorithms {
		names = append(names, string(id))
	}
	return names
}
