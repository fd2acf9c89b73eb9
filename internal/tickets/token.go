package tickets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const tokenBytes = 32

// NewQrTokenValue returns 256 bits of randomness, URL-safe encoded.
func NewQrTokenValue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate qr token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
