// Package passhash derives and verifies salted password hashes using
// PBKDF2 with an HMAC-SHA-256 core.
package passhash

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltLength = 16
	Iterations = 100000
	KeyLength  = 32
)

// GenerateSalt returns a fixed-length salt of cryptographically secure
// non-zero random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read random salt failed: %w", err)
	}
	// Zero bytes are excluded so a salt never looks truncated in storage
	// layers that treat NUL as a terminator.
	for i := range salt {
		for salt[i] == 0 {
			var b [1]byte
			if _, err := rand.Read(b[:]); err != nil {
				return nil, fmt.Errorf("read random salt failed: %w", err)
			}
			salt[i] = b[0]
		}
	}
	return salt, nil
}

// Derive computes the stored form of a password: base64 of a 32-byte
// PBKDF2-HMAC-SHA256 key over 100k iterations. Deterministic for a given
// (password, salt) pair.
func Derive(password string, salt []byte) string {
	key := pbkdf2.Key([]byte(password), salt, Iterations, KeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(key)
}

// Verify recomputes the derivation and compares it to the expected hash in
// constant time.
func Verify(password string, salt []byte, expected string) bool {
	derived := Derive(password, salt)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(expected)) == 1
}
