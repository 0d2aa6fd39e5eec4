package auth

import (
	"context"

	"gptchat/pkg/models"
)

// Role represents the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

// SecConfig mirrors the security-related configuration used to drive
// authentication, CORS and rate limiting behavior. Put here so limiter.go
// and gateway.go can reference the shared type.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
}

type ctxSessionKey struct{}

// WithSession returns a context carrying the verified session.
func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, ctxSessionKey{}, s)
}

// SessionFromContext returns the verified session and whether one exists.
func SessionFromContext(ctx context.Context) (models.Session, bool) {
	if v := ctx.Value(ctxSessionKey{}); v != nil {
		if s, ok := v.(models.Session); ok {
			return s, true
		}
	}
	return models.Session{}, false
}

// OwnerFromContext returns the verified session owner or empty string.
func OwnerFromContext(ctx context.Context) string {
	if s, ok := SessionFromContext(ctx); ok {
		return s.Owner
	}
	return ""
}
