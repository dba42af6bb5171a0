package sessionauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// sessionIDEntropy gives 40 base32 characters
	sessionIDEntropy = 25

	// resetTokenEntropy gives 40 base32 characters
	resetTokenEntropy = 25

	verificationCodeLength   = 8
	verificationCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var lowerBase32 = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// GenerateSecureToken returns a lowercase base32 string encoding entropy random bytes
func GenerateSecureToken(entropy int) (string, error) {
	b := make([]byte, entropy)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return lowerBase32.EncodeToString(b), nil
}

// GenerateSessionID returns a new random session identifier
func GenerateSessionID() (string, error) {
	return GenerateSecureToken(sessionIDEntropy)
}

// GenerateVerificationCode returns an 8 character code drawn uniformly from [0-9A-Z]
func GenerateVerificationCode() (string, error) {
	return generateRandomString(verificationCodeLength, verificationCodeAlphabet)
}

// generateRandomString draws length characters from alphabet. Bytes at or
// above the largest multiple of len(alphabet) are rejected so every character
// is equally likely.
func generateRandomString(length int, alphabet string) (string, error) {
	limit := byte(256 - 256%len(alphabet))
	var sb strings.Builder
	sb.Grow(length)
	buf := make([]byte, length*2)
	for sb.Len() < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random string: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			sb.WriteByte(alphabet[int(b)%len(alphabet)])
			if sb.Len() == length {
				break
			}
		}
	}
	return sb.String(), nil
}

// HashToken returns the SHA-256 hex digest stored in place of a raw token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// newRowID returns an identifier for user and token rows
func newRowID() string {
	return uuid.NewString()
}

// HashPassword bcrypt-hashes a password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
