package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// APIKeyPrefix marks every key issued by the registry.
const APIKeyPrefix = "clh_"

var ErrInvalidAPIKey = errors.New("invalid API key")

// GenerateAPIKey returns a fresh key and the hash to persist for it.
func GenerateAPIKey() (key, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	key = APIKeyPrefix + hex.EncodeToString(buf)
	return key, HashAPIKey(key), nil
}

// HashAPIKey returns the hex SHA-256 of key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ValidateAPIKey checks the shape of a presented key before any lookup.
func ValidateAPIKey(key string) error {
	rest, ok := strings.CutPrefix(key, APIKeyPrefix)
	if !ok || len(rest) != 64 {
		return ErrInvalidAPIKey
	}
	if _, err := hex.DecodeString(rest); err != nil {
		return ErrInvalidAPIKey
	}
	return nil
}

// KeyMatches compares a presented key against a stored hash in constant time.
func KeyMatches(key, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashAPIKey(key)), []byte(hash)) == 1
}
