// Package sessionkey issues opaque session credentials and describes the
// cookie that carries them.
package sessionkey

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
)

const (
	CookieName = "user_session"
	keyLength  = 64
)

// Generate returns a fresh session key: 64 cryptographically secure random
// bytes, base64-encoded for transport and storage.
func Generate() (string, error) {
	raw := make([]byte, keyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random session key failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Cookie describes the session cookie for a given key. The cookie is
// essential (set regardless of consent state), scoped to the whole site,
// and never exposed to scripts.
func Cookie(key string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    key,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
