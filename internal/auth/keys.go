package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// HashKey generates a salted Argon2id hash of a kiosk key, encoded as "salt$hash".
func HashKey(key string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(key), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return base64.StdEncoding.EncodeToString(salt) + "$" + base64.StdEncoding.EncodeToString(hash), nil
}

// VerifyKey compares a presented kiosk key with an encoded hash.
func VerifyKey(key, encoded string) (bool, error) {
	salt, hash, ok := strings.Cut(encoded, "$")
	if !ok {
		return false, fmt.Errorf("key hash must be salt$hash")
	}

	decodedSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}

	decodedHash, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}

	if len(decodedSalt) == 0 || len(decodedHash) == 0 {
		return false, fmt.Errorf("key hash has an empty salt or hash")
	}

	comparisonHash := argon2.IDKey([]byte(key), decodedSalt, argonTime, argonMemory, argonThreads, uint32(len(decodedHash)))

	return subtle.ConstantTimeCompare(decodedHash, comparisonHash) == 1, nil
}
