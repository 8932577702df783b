package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/rezkam/shiftengine/internal/infrastructure/http/response"
)

// APIKey is HTTP middleware enforcing a single static key configured at
// startup, compared in constant time to avoid timing side channels.
type APIKey struct {
	key string
}

func NewAPIKey(key string) *APIKey {
	return &APIKey{key: key}
}

// Validate is a Chi middleware that checks the X-Api-Key header.
func (a *APIKey) Validate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Api-Key")
		if got == "" {
			slog.WarnContext(r.Context(), "rejected request: missing X-Api-Key header", "path", r.URL.Path)
			response.Unauthorized(w, "missing X-Api-Key header")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.key)) != 1 {
			slog.WarnContext(r.Context(), "rejected request: invalid X-Api-Key", "path", r.URL.Path)
			response.Unauthorized(w, "invalid X-Api-Key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
