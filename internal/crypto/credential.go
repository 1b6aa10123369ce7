// Package crypto seals and opens provider API keys at rest using
// AES-256-GCM. There is no ecosystem library for this in the reference
// corpus (golang.org/x/crypto there is used only for bcrypt password
// hashing); AES-GCM via the standard library's crypto/aes and
// crypto/cipher is itself the idiomatic, recommended construction for
// authenticated symmetric encryption in Go, so no third-party dependency
// is pulled in for it.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/citewatch/tracker/internal/model"
)

// KeySize is the required master key length for AES-256.
const KeySize = 32

// DeriveKey turns an operator-supplied secret of any length (e.g.
// TRACKER_CREDENTIAL_ENCRYPTION_KEY) into a KeySize-byte AES-256 key, so
// config doesn't force operators to mint an exactly-32-byte value by hand.
func DeriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Sealer encrypts and decrypts ProviderCredential plaintext keys under a
// single master key, loaded once at process init per spec §5.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer builds a Sealer from a 32-byte master key.
func NewSealer(masterKey []byte) (*Sealer, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("crypto: master key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: build gcm: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintextKey into a fresh ProviderCredential's
// EncryptedKey and Nonce fields.
func (s *Sealer) Seal(provider model.Provider, plaintextKey string, ratePerMinute int) (*model.ProviderCredential, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	ciphertext := s.gcm.Seal(nil, nonce, []byte(plaintextKey), nil)
	return &model.ProviderCredential{
		Provider:      provider,
		EncryptedKey:  ciphertext,
		Nonce:         nonce,
		RatePerMinute: ratePerMinute,
	}, nil
}

// Open decrypts a ProviderCredential back to its plaintext API key.
func (s *Sealer) Open(c *model.ProviderCredential) (string, error) {
	plaintext, err := s.gcm.Open(nil, c.Nonce, c.EncryptedKey, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypt credential for %s: %w", c.Provider, err)
	}
	return string(plaintext), nil
}
