package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// KeyAuthenticator checks bearer tokens against a single configured API
// key. The key is held either in plain text or as a bcrypt hash.
type KeyAuthenticator struct {
	plain  string
	hash   []byte
	exempt map[string]bool
}

// NewKeyAuthenticator returns nil when neither a key nor a hash is set,
// meaning authentication is disabled.
func NewKeyAuthenticator(apiKey, apiKeyHash string, exemptPaths ...string) (*KeyAuthenticator, error) {
	if apiKey == "" && apiKeyHash == "" {
		return nil, nil
	}
	ka := &KeyAuthenticator{
		plain:  apiKey,
		exempt: make(map[string]bool, len(exemptPaths)),
	}
	if apiKeyHash != "" {
		if _, err := bcrypt.Cost([]byte(apiKeyHash)); err != nil {
			return nil, fmt.Errorf("invalid api key hash: %w", err)
		}
		ka.hash = []byte(apiKeyHash)
	}
	for _, p := range exemptPaths {
		ka.exempt[p] = true
	}
	return ka, nil
}

// Validate checks a presented token
func (ka *KeyAuthenticator) Validate(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	if ka.hash != nil {
		if err := bcrypt.CompareHashAndPassword(ka.hash, []byte(token)); err != nil {
			return ErrInvalidToken
		}
		return nil
	}
	if !SecureCompare(token, ka.plain) {
		return ErrInvalidToken
	}
	return nil
}

// Middleware rejects requests without a valid Authorization: Bearer header.
// Exempt paths pass through untouched.
func (ka *KeyAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ka.exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if err := ka.Validate(BearerToken(r)); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="convertd"`)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from an Authorization header
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// GenerateAPIKey generates a new random API key and its bcrypt hash
func GenerateAPIKey() (key, hash string, err error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate API key: %w", err)
	}
	key = base64.URLEncoding.EncodeToString(keyBytes)

	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return key, string(h), nil
}

// SecureCompare performs constant-time comparison
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
