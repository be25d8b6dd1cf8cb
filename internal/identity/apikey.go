package identity

import (
	"crypto/rand"
	"encoding/hex"
)

// apiKeyPrefix marks courier credentials so they are recognizable in logs
// and secret scanners.
const apiKeyPrefix = "ck_"

// NewAPIKey generates a credential token: prefix plus 32 random bytes, hex.
func NewAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}
