package auth

import (
	"net/http"
	"strings"

	"gptchat/pkg/logger"
)

// publicPath reports whether a path is reachable without a session:
// the login page, the auth endpoints themselves, probes, metrics, docs
// and static assets.
func publicPath(p string) bool {
	switch p {
	case "/login", "/healthz", "/readyz", "/metrics", "/openapi.yaml":
		return true
	}
	if strings.HasPrefix(p, "/v1/auth/") {
		return true
	}
	if strings.HasPrefix(p, "/docs/") {
		return true
	}
	if strings.HasPrefix(p, "/static/") {
		return true
	}
	return false
}

// RequireSession gates every non-public route behind a valid session.
// Visitors without one are redirected to /login; nothing else happens
// on their behalf. Backend and admin api keys bypass the session check
// and name the acted-on user explicitly via X-User-ID.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		role := r.Header.Get("X-Role-Name")
		if role == "backend" || role == "admin" {
			next.ServeHTTP(w, r)
			return
		}

		s, err := SessionFromRequest(r)
		if err != nil {
			logger.Info("guard_redirect", "path", r.URL.Path, "reason", err.Error())
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// ResolveOwner is the canonical owner resolver handlers call. A session
// in the context wins; backend and admin callers may name a user via the
// X-User-ID header or ?user= query. The int is an http status, zero on
// success.
func ResolveOwner(r *http.Request) (string, int, string) {
	if owner := OwnerFromContext(r.Context()); owner != "" {
		return owner, 0, ""
	}
	role := r.Header.Get("X-Role-Name")
	if role == "backend" || role == "admin" {
		if h := strings.TrimSpace(r.Header.Get("X-User-ID")); h != "" {
			return h, 0, ""
		}
		if q := strings.TrimSpace(r.URL.Query().Get("user")); q != "" {
			return q, 0, ""
		}
		logger.Warn("backend_missing_user", "remote", r.RemoteAddr, "path", r.URL.Path)
		return "", http.StatusBadRequest, "user required for backend requests"
	}
	logger.Warn("missing_session", "role", role, "remote", r.RemoteAddr, "path", r.URL.Path)
	return "", http.StatusUnauthorized, "missing or invalid session"
}
