package encryption

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Election keypairs are RSA so that a single ciphertext stays a short,
// fixed-format base64 string. 2048 bits keeps the ciphertext at 256 bytes
// while leaving room for any candidate identifier under PKCS#1 v1.5 padding.
const electionKeyBits = 2048

var (
	// ErrKeyGeneration indicates the underlying primitive could not
	// produce a keypair.
	ErrKeyGeneration = errors.New("key generation failed")
	// ErrSealing indicates a malformed public key or a plaintext the
	// scheme rejects.
	ErrSealing = errors.New("ballot sealing failed")
)

type CryptoService struct{}

func NewCryptoService() *CryptoService {
	return &CryptoService{}
}

// GenerateElectionKeys generates a fresh RSA election keypair and returns the
// PEM-encoded public key and private key. The private key bytes are returned
// as a byte slice so the caller can wipe them after sharding.
func (cs *CryptoService) GenerateElectionKeys() (string, []byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, electionKeyBits)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	return string(publicPEM), privatePEM, nil
}

// SealVote encrypts a plaintext candidate identifier under the election
// public key and returns the base64-encoded ciphertext. Sealing is not
// deterministic: PKCS#1 v1.5 padding is randomized per call.
func (cs *CryptoService) SealVote(candidateID, publicKeyPEM string) (string, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealing, err)
	}

	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(candidateID))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealing, err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptVote decrypts a base64 ciphertext back into the plaintext candidate
// identifier. The result lives only in the caller's memory.
func (cs *CryptoService) DecryptVote(ciphertextB64 string, priv *rsa.PrivateKey) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}

	plaintext, err := rsa.DecryptPKCS1v15(rand.Reader, priv, ciphertext)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	return string(plaintext), nil
}

// ComputeReceiptHash derives the deterministic receipt hash for a sealed
// ballot. The hash binds to the ciphertext, never the plaintext choice, so a
// voter can verify their ballot was recorded without revealing the vote.
func (cs *CryptoService) ComputeReceiptHash(voterID, ciphertext, positionID, timestamp string) string {
	raw := voterID + "-" + ciphertext + "-" + positionID + "-" + timestamp
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Keccak256 computes a Keccak-256 hash over the concatenation of data.
func (cs *CryptoService) Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// ParsePublicKey parses a PEM-encoded RSA public key.
func ParsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("no PEM block found in public key")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an RSA key")
	}
	return pub, nil
}
