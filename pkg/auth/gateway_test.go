package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gptchat/pkg/auth"
)

func gatewayHandler(cfg auth.SecConfig) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Role", r.Header.Get("X-Role-Name"))
		w.WriteHeader(http.StatusOK)
	})
	return auth.AuthenticateRequestMiddleware(cfg)(next)
}

func TestGatewayPreflight(t *testing.T) {
	setupAuth(t, "secret-a")
	h := gatewayHandler(auth.SecConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		RPS:            100, Burst: 100,
	})

	r := httptest.NewRequest(http.MethodOptions, "/v1/threads", nil)
	r.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("allow-credentials = %q", got)
	}

	// un-listed origins get no cors headers
	r = httptest.NewRequest(http.MethodOptions, "/v1/threads", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q for unlisted origin", got)
	}
}

func TestGatewayIPWhitelist(t *testing.T) {
	setupAuth(t, "secret-a")
	h := gatewayHandler(auth.SecConfig{
		IPWhitelist: []string{"10.0.0.1"},
		RPS:         100, Burst: 100,
	})

	r := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	r.RemoteAddr = "192.0.2.7:4444"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	r.RemoteAddr = "10.0.0.1:4444"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("whitelisted ip blocked: %d", w.Code)
	}
}

func TestGatewayRoleResolution(t *testing.T) {
	setupAuth(t, "secret-a")
	cfg := auth.SecConfig{
		BackendKeys:  map[string]struct{}{"backend-key": {}},
		FrontendKeys: map[string]struct{}{"frontend-key": {}},
		AdminKeys:    map[string]struct{}{"admin-key": {}},
		RPS:          100, Burst: 100,
	}
	h := gatewayHandler(cfg)

	cases := []struct {
		header string
		value  string
		role   string
	}{
		{"Authorization", "Bearer backend-key", "backend"},
		{"X-API-Key", "admin-key", "admin"},
		{"X-API-Key", "frontend-key", "frontend"},
		{"", "", "unauth"},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
		if c.header != "" {
			r.Header.Set(c.header, c.value)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if got := w.Header().Get("X-Seen-Role"); got != c.role {
			t.Fatalf("%s %s: role %q, want %q", c.header, c.value, got, c.role)
		}
	}
}

func TestGatewaySessionCountsAsFrontend(t *testing.T) {
	setupAuth(t, "secret-a")
	token, _, err := auth.IssueSession("alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	h := gatewayHandler(auth.SecConfig{RPS: 100, Burst: 100})

	r := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	r.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: token})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("X-Seen-Role"); got != "frontend" {
		t.Fatalf("session role %q, want frontend", got)
	}
}

func TestGatewayFrontendKeyScope(t *testing.T) {
	setupAuth(t, "secret-a")
	h := gatewayHandler(auth.SecConfig{
		FrontendKeys: map[string]struct{}{"frontend-key": {}},
		RPS:          100, Burst: 100,
	})

	allowed := []string{"/v1/threads", "/v1/chat/send", "/v1/auth/me"}
	for _, path := range allowed {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.Header.Set("X-API-Key", "frontend-key")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, w.Code)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "/v1/admin/stats", nil)
	r.Header.Set("X-API-Key", "frontend-key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("frontend key escaped its scope: %d", w.Code)
	}
}

func TestGatewayRateLimit(t *testing.T) {
	setupAuth(t, "secret-a")
	h := gatewayHandler(auth.SecConfig{
		BackendKeys: map[string]struct{}{"backend-key": {}},
		RPS:         1, Burst: 2,
	})

	limited := false
	for i := 0; i < 10; i++ {
		r := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
		r.Header.Set("Authorization", "Bearer backend-key")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatalf("burst of requests was never rate limited")
	}
}
