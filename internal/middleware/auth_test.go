package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-api-key-0123456789abcdef"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestAuth(t *testing.T) http.Handler {
	t.Helper()
	verify, err := NewKeyVerifier(testKey, "")
	require.NoError(t, err)
	return APIKeyAuth(verify, "X-API-Key")(okHandler())
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		header string
		query  string
		want   int
	}{
		{"health needs no key", "/health", "", "", http.StatusOK},
		{"api health needs no key", "/api/health", "", "", http.StatusOK},
		{"api without key", "/api/sync/status", "", "", http.StatusUnauthorized},
		{"api with wrong key", "/api/sync/status", "wrong", "", http.StatusUnauthorized},
		{"api with key", "/api/sync/status", testKey, "", http.StatusOK},
		{"api ignores query key", "/api/sync/status", "", testKey, http.StatusUnauthorized},
		{"websocket with query key", "/ws", "", testKey, http.StatusOK},
		{"websocket without key", "/ws", "", "", http.StatusUnauthorized},
		{"other paths are open", "/favicon.ico", "", "", http.StatusOK},
	}

	handler := newTestAuth(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := tt.path
			if tt.query != "" {
				target += "?apiKey=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "API key")
			}
		})
	}
}

func TestNewKeyVerifier(t *testing.T) {
	t.Run("requires a key or a hash", func(t *testing.T) {
		_, err := NewKeyVerifier("", "")
		assert.Error(t, err)
	})

	t.Run("rejects a malformed hash", func(t *testing.T) {
		_, err := NewKeyVerifier("", "not-a-bcrypt-hash")
		assert.Error(t, err)
	})

	t.Run("bcrypt hash takes precedence", func(t *testing.T) {
		hash, err := HashAPIKey(testKey)
		require.NoError(t, err)

		verify, err := NewKeyVerifier("some-other-plain-key", hash)
		require.NoError(t, err)

		assert.True(t, verify(testKey))
		assert.True(t, verify(testKey)) // cached path
		assert.False(t, verify("some-other-plain-key"))
		assert.False(t, verify(""))
	})
}
