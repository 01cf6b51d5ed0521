// Package auth validates the gateway credential on inbound requests.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Authenticator checks the inbound Authorization header against the
// configured gateway secret.
type Authenticator struct {
	secret []byte
}

// New creates an authenticator for the given shared secret.
func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authorize reports whether the presented credential matches the configured
// secret. Comparison is constant-time to avoid timing side channels on the
// secret.
func (a *Authenticator) Authorize(credential string) bool {
	if len(a.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), a.secret) == 1
}

// ExtractCredential pulls the credential from the Authorization header.
// A "Bearer " prefix is tolerated and stripped.
func ExtractCredential(r *http.Request) string {
	cred := r.Header.Get("Authorization")
	if strings.HasPrefix(cred, "Bearer ") {
		cred = strings.TrimPrefix(cred, "Bearer ")
	}
	return cred
}
