package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Replaceable for testing error paths.
var (
	randRead              = func(b []byte) (int, error) { return rand.Read(b) }
	newGCMWithRandomNonce = func(block cipher.Block) (cipher.AEAD, error) { return cipher.NewGCMWithRandomNonce(block) }
	deriveKey             = DeriveKey
)

const (
	// SaltSize is the number of random bytes used for PBKDF2 salt.
	SaltSize = 16

	// PBKDF2Iterations is the OWASP 2023 recommendation for SHA-256.
	PBKDF2Iterations = 600_000

	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
)

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt
// using PBKDF2-SHA256.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, KeySize, sha256.New)
}

// GenerateSalt generates a cryptographically secure random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := randRead(salt); err != nil {
		return nil, fmt.Errorf("vault: generate salt: %w", err)
	}
	return salt, nil
}

// sealer encrypts entries with AES-256-GCM. Each ciphertext is bound to its
// entry name as additional data, so values cannot be swapped between names.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}
	aead, err := newGCMWithRandomNonce(block)
	if err != nil {
		return nil, fmt.Errorf("vault: new gcm: %w", err)
	}
	return &sealer{aead: aead}, nil
}

// seal returns nonce||ciphertext||tag.
func (s *sealer) seal(name string, plaintext []byte) []byte {
	return s.aead.Seal(nil, nil, plaintext, []byte(name))
}

func (s *sealer) open(name string, ciphertext []byte) ([]byte, error) {
	plaintext, err := s.aead.Open(nil, nil, ciphertext, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	return plaintext, nil
}
