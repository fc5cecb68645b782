package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// SoftwareSigner implements Signer using in-memory keys.
// Keys can be serialized to and from PEM files.
type SoftwareSigner struct {
	alg  AlgorithmID
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

var _ Signer = (*SoftwareSigner)(nil)

// NewSoftwareSigner creates a new SoftwareSigner from a key pair.
func NewSoftwareSigner(kp *KeyPair) (*SoftwareSigner, error) {
	if kp == nil {
		return nil, fmt.Errorf("key pair is nil")
	}
	return &SoftwareSigner{
		alg:  kp.Algorithm,
		priv: kp.PrivateKey,
		pub:  kp.PublicKey,
	}, nil
}

// GenerateSoftwareSigner generates a new key pair and returns a SoftwareSigner.
func GenerateSoftwareSigner(alg AlgorithmID) (*SoftwareSigner, error) {
	kp, err := GenerateKeyPair(alg)
	if err != nil {
		return nil, err
	}
	return NewSoftwareSigner(kp)
}

// Algorithm returns the algorithm used by this signer.
func (s *SoftwareSigner) Algorithm() AlgorithmID {
	return s.alg
}

// Public returns the public key.
func (s *SoftwareSigner) Public() crypto.PublicKey {
	return s.pub
}

// Sign signs the digest with the private key. For ECDSA, digest must be the
// hash of the message. Ed25519 and ML-DSA sign the full message.
func (s *SoftwareSigner) Sign(random io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	switch priv := s.priv.(type) {
	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(random, priv, digest)
	case ed25519.PrivateKey:
		return ed25519.Sign(priv, digest), nil
	case *mldsa44.PrivateKey:
		// opts.HashFunc() must be 0 for pure ML-DSA
		return priv.Sign(random, digest, crypto.Hash(0))
	case *mldsa65.PrivateKey:
		return priv.Sign(random, digest, crypto.Hash(0))
	case *mldsa87.PrivateKey:
		return priv.Sign(random, digest, crypto.Hash(0))
	default:
		return nil, fmt.Errorf("unsupported private key type: %T", priv)
	}
}

// SignMessage signs a full message, hashing first where the algorithm
// requires it.
func (s *SoftwareSigner) SignMessage(message []byte) ([]byte, error) {
	switch s.alg {
	case AlgECDSAP256:
		digest := sha256.Sum256(message)
		return s.Sign(rand.Reader, digest[:], crypto.SHA256)
	case AlgECDSAP384:
		digest := sha512.Sum384(message)
		return s.Sign(rand.Reader, digest[:], crypto.SHA384)
	default:
		return s.Sign(rand.Reader, message, crypto.Hash(0))
	}
}

// Verify verifies a signature over a full message using the algorithm and
// public key.
func Verify(alg AlgorithmID, pub crypto.PublicKey, message, signature []byte) bool {
	switch alg {
	case AlgECDSAP256:
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false
		}
		digest := sha256.Sum256(message)
		return ecdsa.VerifyASN1(ecPub, digest[:], signature)

	case AlgECDSAP384:
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false
		}
		digest := sha512.Sum384(message)
		return ecdsa.VerifyASN1(ecPub, digest[:], signature)

	case AlgEd25519:
		edPub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return false
		}
		return ed25519.Verify(edPub, message, signature)

	case AlgMLDSA44:
		mlPub, ok := pub.(*mldsa44.PublicKey)
		if !ok {
			return false
		}
		return mldsa44.Verify(mlPub, message, nil, signature)

	case AlgMLDSA65:
		mlPub, ok := pub.(*mldsa65.PublicKey)
		if !ok {
			return false
		}
		return mldsa65.Verify(mlPub, message, nil, signature)

	case AlgMLDSA87:
		mlPub, ok := pub.(*mldsa87.PublicKey)
		if !ok {
			return false
		}
		return mldsa87.Verify(mlPub, message, nil, signature)

	default:
		return false
	}
}

// VerifySignature verifies a signature and returns an error if verification
// fails. Convenience wrapper around Verify.
func VerifySignature(pub crypto.PublicKey, alg AlgorithmID, message, signature []byte) error {
	if !Verify(alg, pub, message, signature) {
		return fmt.Errorf("signature verification failed for algorithm %s", alg)
	}
	return nil
}

// SavePrivateKey saves the private key to a PEM file.
// If passphrase is provided, the key is encrypted.
func (s *SoftwareSigner) SavePrivateKey(path string, passphrase []byte) error {
	var pemBlock *pem.Block

	switch priv := s.priv.(type) {
	case *ecdsa.PrivateKey, ed25519.PrivateKey:
		// PKCS#8 for classical keys
		der, err := x509.MarshalPKCS8PrivateKey(s.priv)
		if err != nil {
			return fmt.Errorf("failed to marshal private key: %w", err)
		}
		pemBlock = &pem.Block{Type: "PRIVATE KEY", Bytes: der}

	case *mldsa44.PrivateKey:
		pemBlock = &pem.Block{Type: "ML-DSA-44 PRIVATE KEY", Bytes: priv.Bytes()}
	case *mldsa65.PrivateKey:
		pemBlock = &pem.Block{Type: "ML-DSA-65 PRIVATE KEY", Bytes: priv.Bytes()}
	case *mldsa87.PrivateKey:
		pemBlock = &pem.Block{Type: "ML-DSA-87 PRIVATE KEY", Bytes: priv.Bytes()}

	default:
		return fmt.Errorf("unsupported private key type: %T", s.priv)
	}

	if len(passphrase) > 0 {
		var err error
		pemBlock, err = x509.EncryptPEMBlock(rand.Reader, pemBlock.Type, pemBlock.Bytes, passphrase, x509.PEMCipherAES256) //nolint:staticcheck // Deprecated but still used
		if err != nil {
			return fmt.Errorf("failed to encrypt private key: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer f.Close()

	if err := pem.Encode(f, pemBlock); err != nil {
		return fmt.Errorf("failed to write PEM: %w", err)
	}
	return nil
}

// SavePublicKey saves the public key to a PEM file in SubjectPublicKeyInfo
// format.
func (s *SoftwareSigner) SavePublicKey(path string) error {
	der, err := x509.MarshalPKIXPublicKey(s.pub)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer f.Close()

	if err := pem.Encode(f, &pem.Block{Type: "PUBLIC KEY", Bytes: der}); err != nil {
		return fmt.Errorf("failed to write PEM: %w", err)
	}
	return nil
}

// LoadPrivateKey loads a private key from a PEM file.
func LoadPrivateKey(path string, passphrase []byte) (*SoftwareSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	keyBytes := block.Bytes

	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("private key is encrypted but no passphrase provided")
		}
		keyBytes, err = x509.DecryptPEMBlock(block, passphrase) //nolint:staticcheck
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt private key: %w", err)
		}
	}

	var priv crypto.PrivateKey
	var pub crypto.PublicKey
	var alg AlgorithmID

	switch block.Type {
	case "PRIVATE KEY":
		priv, err = x509.ParsePKCS8PrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 key: %w", err)
		}
		alg, pub, err = classicalKeyInfo(priv)
		if err != nil {
			return nil, err
		}

	case "EC PRIVATE KEY":
		priv, err = x509.ParseECPrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC key: %w", err)
		}
		alg, pub, err = classicalKeyInfo(priv)
		if err != nil {
			return nil, err
		}

	case "ML-DSA-44 PRIVATE KEY":
		var mlPriv mldsa44.PrivateKey
		if err := mlPriv.UnmarshalBinary(keyBytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-44 key: %w", err)
		}
		priv = &mlPriv
		pub = mlPriv.Public()
		alg = AlgMLDSA44

	case "ML-DSA-65 PRIVATE KEY":
		var mlPriv mldsa65.PrivateKey
		if err := mlPriv.UnmarshalBinary(keyBytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-65 key: %w", err)
		}
		priv = &mlPriv
		pub = mlPriv.Public()
		alg = AlgMLDSA65

	case "ML-DSA-87 PRIVATE KEY":
		var mlPriv mldsa87.PrivateKey
		if err := mlPriv.UnmarshalBinary(keyBytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-87 key: %w", err)
		}
		priv = &mlPriv
		pub = mlPriv.Public()
		alg = AlgMLDSA87

	default:
		return nil, fmt.Errorf("unknown PEM type: %s", block.Type)
	}

	return &SoftwareSigner{alg: alg, priv: priv, pub: pub}, nil
}

// LoadPublicKey loads a PEM-encoded public key in SubjectPublicKeyInfo format.
func LoadPublicKey(path string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	pub, err := ParsePublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pub, nil
}

// ParsePublicKey parses a PEM-encoded public key in SubjectPublicKeyInfo
// format.
func ParsePublicKey(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("no public key PEM block found")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return pub, nil
}

func classicalKeyInfo(priv crypto.PrivateKey) (AlgorithmID, crypto.PublicKey, error) {
	switch k := priv.(type) {
	case *ecdsa.PrivateKey:
		alg, err := AlgorithmOf(&k.PublicKey)
		if err != nil {
			return "", nil, err
		}
		return alg, &k.PublicKey, nil
	case ed25519.PrivateKey:
		return AlgEd25519, k.Public(), nil
	default:
		return "", nil, fmt.Errorf("unsupported private key type: %T", priv)
	}
}
