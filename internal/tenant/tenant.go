// Package tenant defines bot identities and the credential registries that
// back them.
package tenant

import (
	"log/slog"
)

// Tenant represents one bot identity sharing the gateway. Token is the
// upstream credential and must never appear in logs or telemetry.
type Tenant struct {
	ID    string
	Name  string
	Token string
}

// LogValue implements slog.LogValuer so a Tenant logged directly never leaks
// its token.
func (t *Tenant) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", t.ID),
		slog.String("name", t.Name),
		slog.String("token", MaskToken(t.Token)),
	)
}

// MaskToken redacts a credential for debug output, keeping only a short
// prefix.
func MaskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
