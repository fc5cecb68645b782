package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// KeyPair holds a public/private key pair.
type KeyPair struct {
	Algorithm  AlgorithmID
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
}

// GenerateKeyPair generates a new key pair for the specified algorithm.
//
// Supported algorithms:
//   - Classical: ecdsa-p256, ecdsa-p384, ed25519
//   - PQC: ml-dsa-44, ml-dsa-65, ml-dsa-87
func GenerateKeyPair(alg AlgorithmID) (*KeyPair, error) {
	return GenerateKeyPairWithRand(rand.Reader, alg)
}

// GenerateKeyPairWithRand generates a key pair using the provided random
// source. Useful for testing with deterministic randomness.
func GenerateKeyPairWithRand(random io.Reader, alg AlgorithmID) (*KeyPair, error) {
	if !alg.IsValid() {
		return nil, fmt.Errorf("unsupported algorithm: %s", alg)
	}

	var priv crypto.PrivateKey
	var pub crypto.PublicKey
	var err error

	switch alg {
	case AlgECDSAP256:
		priv, pub, err = generateECDSA(random, elliptic.P256())
	case AlgECDSAP384:
		priv, pub, err = generateECDSA(random, elliptic.P384())
	case AlgEd25519:
		priv, pub, err = generateEd25519(random)
	case AlgMLDSA44:
		var p *mldsa44.PublicKey
		var s *mldsa44.PrivateKey
		p, s, err = mldsa44.GenerateKey(random)
		priv, pub = s, p
	case AlgMLDSA65:
		var p *mldsa65.PublicKey
		var s *mldsa65.PrivateKey
		p, s, err = mldsa65.GenerateKey(random)
		priv, pub = s, p
	case AlgMLDSA87:
		var p *mldsa87.PublicKey
		var s *mldsa87.PrivateKey
		p, s, err = mldsa87.GenerateKey(random)
		priv, pub = s, p
	default:
		return nil, fmt.Errorf("key generation not implemented for: %s", alg)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", alg, err)
	}

	return &KeyPair{
		Algorithm:  alg,
		PrivateKey: priv,
		PublicKey:  pub,
	}, nil
}

func generateECDSA(random io.Reader, curve elliptic.Curve) (crypto.PrivateKey, crypto.PublicKey, error) {
	priv, err := ecdsa.GenerateKey(curve, random)
	if err != nil {
		return nil, nil, err
	}
	return priv, &priv.PublicKey, nil
}

func generateEd25519(random io.Reader) (crypto.PrivateKey, crypto.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(random)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

// AlgorithmOf returns the algorithm for a known public key type.
func AlgorithmOf(pub crypto.PublicKey) (AlgorithmID, error) {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return AlgECDSAP256, nil
		case elliptic.P384():
			return AlgECDSAP384, nil
		default:
			return "", fmt.Errorf("unsupported ECDSA curve: %s", k.Curve.Params().Name)
		}
	case ed25519.PublicKey:
		return AlgEd25519, nil
	case *mldsa44.PublicKey:
		return AlgMLDSA44, nil
	case *mldsa65.PublicKey:
		return AlgMLDSA65, nil
	case *mldsa87.PublicKey:
		return AlgMLDSA87, nil
	default:
		return "", fmt.Errorf("unknown public key type: %T", pub)
	}
}
