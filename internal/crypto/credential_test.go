package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citewatch/tracker/internal/model"
)

func testKey() []byte {
	return bytes.Repeat([]byte("k"), KeySize)
}

func TestSealAndOpen_RoundTrips(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	cred, err := s.Seal(model.ProviderChatGPT, "sk-super-secret", 60)
	require.NoError(t, err)
	assert.NotEmpty(t, cred.EncryptedKey)
	assert.NotEmpty(t, cred.Nonce)
	assert.NotEqual(t, "sk-super-secret", string(cred.EncryptedKey))

	plaintext, err := s.Open(cred)
	require.NoError(t, err)
	assert.Equal(t, "sk-super-secret", plaintext)
}

func TestNewSealer_RejectsWrongKeySize(t *testing.T) {
	_, err := NewSealer([]byte("too-short"))
	assert.Error(t, err)
}

func TestOpen_FailsOnTamperedCiphertext(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	cred, err := s.Seal(model.ProviderClaude, "sk-abc", 30)
	require.NoError(t, err)
	cred.EncryptedKey[0] ^= 0xFF

	_, err = s.Open(cred)
	assert.Error(t, err)
}

func TestSeal_ProducesDistinctNoncesAcrossCalls(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	a, err := s.Seal(model.ProviderGrok, "key-a", 10)
	require.NoError(t, err)
	b, err := s.Seal(model.ProviderGrok, "key-a", 10)
	require.NoError(t, err)

	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.EncryptedKey, b.EncryptedKey)
}
