package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	minTokenLength      = 16
	generatedTokenBytes = 24
)

// ValidateToken checks minimal admin token requirements.
func ValidateToken(token string) error {
	token = strings.TrimSpace(token)
	if len(token) < minTokenLength {
		return fmt.Errorf("admin token must be at least %d characters", minTokenLength)
	}
	return nil
}

// HashToken hashes one admin token for the admin.token_hash config key.
func HashToken(token string) (string, error) {
	if err := ValidateToken(token); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(token)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyToken verifies a presented admin token against a bcrypt hash.
// An empty hash never verifies.
func VerifyToken(tokenHash, candidate string) bool {
	if strings.TrimSpace(tokenHash) == "" || strings.TrimSpace(candidate) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(strings.TrimSpace(candidate))) == nil
}

// GenerateToken returns a random hex admin token.
func GenerateToken() (string, error) {
	buf := make([]byte, generatedTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
