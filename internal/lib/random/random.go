package random

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewID returns an 8-character hex account/device identifier.
func NewID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random.NewID: %w", err)
	}

	return hex.EncodeToString(buf), nil
}
