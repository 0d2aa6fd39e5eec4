package auth

import (
	"net"
	"net/http"
	"strings"

	"gptchat/pkg/logger"
	"gptchat/pkg/telemetry"
	"gptchat/pkg/utils"
)

// role and secconfig types are defined in identity.go

// AuthenticateRequestMiddleware resolves the caller (api key or session
// cookie), applies CORS, IP whitelisting and rate limiting, and tags the
// request with the resolved role. It never redirects; unauthenticated
// requests pass through tagged "unauth" for RequireSession to handle.
func AuthenticateRequestMiddleware(cfg SecConfig) func(http.Handler) http.Handler {
	// rate limiters keyed by api key, session owner or remote ip
	limiters := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// log request (redacts sensitive headers)
			logger.LogRequest(r)

			// cors preflight; credentials are allowed so the session
			// cookie works from a configured origin
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,PATCH,OPTIONS")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key")
				w.Header().Set("Access-Control-Expose-Headers", "X-Role-Name")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			// ip whitelist
			if len(cfg.IPWhitelist) > 0 {
				ip := clientIP(r)
				logger.Debug("ip_check", "ip", ip)
				if !ipWhitelisted(ip, cfg.IPWhitelist) {
					utils.JSONError(w, http.StatusForbidden, "forbidden")
					logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", r.URL.Path)
					return
				}
			}

			// resolve caller identity
			authSpan := telemetry.StartSpan(r.Context(), "auth.authenticate")
			role, key := authenticate(r, cfg)
			authSpan()
			logger.Debug("auth_check", "role", role, "path", r.URL.Path)

			// allow unauthenticated health checks for probes
			if (r.URL.Path == "/healthz" || r.URL.Path == "/readyz") && r.Method == http.MethodGet {
				r.Header.Set("X-Role-Name", "unauth")
				next.ServeHTTP(w, r)
				return
			}

			// expose role name for handlers
			var roleName string
			switch role {
			case RoleFrontend:
				roleName = "frontend"
			case RoleBackend:
				roleName = "backend"
			case RoleAdmin:
				roleName = "admin"
			default:
				roleName = "unauth"
			}
			r.Header.Set("X-Role-Name", roleName)

			// scope enforcement for frontend keys; sessions carry no api
			// key and are scoped by RequireSession instead
			if role == RoleFrontend && !strings.HasPrefix(key, "sess:") && !frontendAllowed(r) {
				utils.JSONError(w, http.StatusForbidden, "forbidden")
				logger.Warn("request_forbidden", "reason", "frontend_not_allowed", "path", r.URL.Path)
				return
			}

			// rate limiting
			rlSpan := telemetry.StartSpan(r.Context(), "auth.rate_limit")
			if !limiters.Allow(key) {
				rlSpan()
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "role", roleName, "path", r.URL.Path)
				return
			}
			rlSpan()

			logger.Info("request_allowed", "method", r.Method, "path", r.URL.Path, "role", roleName)

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	// check if origin is allowed
	if len(allowed) == 0 {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	// get client ip from remoteaddr
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipWhitelisted(ip string, list []string) bool {
	// check if ip is in whitelist
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

// authenticate resolves the caller role and the key used for rate
// limiting. API keys (bearer or x-api-key) win over the session cookie;
// a valid session counts as a frontend caller keyed by its owner.
func authenticate(r *http.Request, cfg SecConfig) (Role, string) {
	auth := r.Header.Get("Authorization")
	var key string
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		key = strings.TrimSpace(auth[7:])
	}
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key != "" && !strings.Contains(key, ".") {
		if cfg.AdminKeys != nil {
			if _, ok := cfg.AdminKeys[key]; ok {
				return RoleAdmin, key
			}
		}
		if _, ok := cfg.BackendKeys[key]; ok {
			return RoleBackend, key
		}
		if _, ok := cfg.FrontendKeys[key]; ok {
			return RoleFrontend, key
		}
	}
	if s, err := SessionFromRequest(r); err == nil {
		return RoleFrontend, "sess:" + s.Owner
	}
	return RoleUnauth, clientIP(r)
}

func frontendAllowed(r *http.Request) bool {
	// frontend api keys get the chat surface only
	if strings.HasPrefix(r.URL.Path, "/v1/threads") {
		return true
	}
	if strings.HasPrefix(r.URL.Path, "/v1/chat/") {
		return true
	}
	if r.URL.Path == "/v1/askchat" && r.Method == http.MethodPost {
		return true
	}
	if strings.HasPrefix(r.URL.Path, "/v1/auth/") {
		return true
	}
	return false
}
