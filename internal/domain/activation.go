package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const secretBytes = 10

// ActivationCandidate is an email address waiting for its activation link
// to be opened.
type ActivationCandidate struct {
	Code      string
	Email     string
	ExpiresAt time.Time
}

func (c ActivationCandidate) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// NewSecret returns 10 random bytes hex encoded. Used both for activation
// codes and for subscriber secrets.
func NewSecret() (string, error) {
	entropy := make([]byte, secretBytes)
	if _, err := rand.Read(entropy); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(entropy), nil
}
