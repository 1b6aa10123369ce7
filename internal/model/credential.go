package model

import "time"

// ProviderCredential is the encrypted-at-rest API key for one provider.
// Plaintext keys are only ever held in process memory after decryption at
// startup; rotation requires a restart per spec §5.
type ProviderCredential struct {
	Provider       Provider  `json:"provider"`
	EncryptedKey   []byte    `json:"encrypted_key"`
	Nonce          []byte    `json:"nonce"`
	RatePerMinute  int       `json:"rate_per_minute"`
	UpdatedAt      time.Time `json:"updated_at"`
}
