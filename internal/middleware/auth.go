package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/photosync/syncagent/internal/models"
)

// KeyVerifier reports whether a presented API key is valid
type KeyVerifier func(key string) bool

// NewKeyVerifier checks keys against a bcrypt hash when apiKeyHash is set,
// otherwise against the plain apiKey.
func NewKeyVerifier(apiKey, apiKeyHash string) (KeyVerifier, error) {
	if apiKeyHash == "" {
		if apiKey == "" {
			return nil, errors.New("an API key or API key hash is required")
		}
		return func(key string) bool { return constantTimeEquals(apiKey, key) }, nil
	}

	if _, err := bcrypt.Cost([]byte(apiKeyHash)); err != nil {
		return nil, err
	}

	// bcrypt is slow by design; remember the last key that matched
	var mu sync.Mutex
	var accepted string
	return func(key string) bool {
		mu.Lock()
		defer mu.Unlock()
		if accepted != "" && constantTimeEquals(accepted, key) {
			return true
		}
		if bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(key)) != nil {
			return false
		}
		accepted = key
		return true
	}, nil
}

// HashAPIKey returns the bcrypt hash to store as security.apiKeyHash
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), 12)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// APIKeyAuth creates middleware for API key authentication. The key is read
// from headerName, or from the apiKey query parameter for websocket clients
// that cannot set headers. Health checks are not authenticated.
func APIKeyAuth(verify KeyVerifier, headerName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/health" || path == "/api/health" {
				next.ServeHTTP(w, r)
				return
			}

			if !strings.HasPrefix(path, "/api") && path != "/ws" {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get(headerName)
			if providedKey == "" && path == "/ws" {
				providedKey = r.URL.Query().Get("apiKey")
			}
			if providedKey == "" {
				writeUnauthorized(w, "API key is required.")
				return
			}

			if !verify(providedKey) {
				writeUnauthorized(w, "Invalid API key.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg})
}

// constantTimeEquals performs a constant-time string comparison
func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
