package server

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/relayhq/botgate/internal/auth"
)

// AuthMiddleware rejects requests whose credential does not match the
// configured gateway secret. Rejection happens before tenant resolution,
// client creation, or any telemetry emission.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := auth.ExtractCredential(r)
			if credential == "" {
				writeUnauthorized(w, "missing Authorization header")
				return
			}
			if !authenticator.Authorize(credential) {
				writeUnauthorized(w, "invalid credential")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"status":  http.StatusUnauthorized,
			"message": message,
		},
	})
}
