package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"gptchat/pkg/auth"
)

func login(t *testing.T, srvURL, email string) (*http.Cookie, string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email})
	res, err := http.Post(srvURL+"/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200 got %v", res.Status)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	for _, c := range res.Cookies() {
		if c.Name == auth.SessionCookie {
			return c, out.Token
		}
	}
	t.Fatalf("login set no session cookie")
	return nil, ""
}

func TestLoginIssuesSession(t *testing.T) {
	srv, _ := setupServer(t)
	cookie, token := login(t, srv.URL, "Alice@Example.com ")
	if cookie.Value != token {
		t.Fatalf("cookie and token differ")
	}
	if !cookie.HttpOnly {
		t.Fatalf("session cookie must be http-only")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/auth/me", nil)
	req.AddCookie(cookie)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	out := decodeBody(t, res)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: expected 200 got %v", res.Status)
	}
	sess := out["session"].(map[string]interface{})
	// email is normalized on login
	if sess["owner"] != "alice@example.com" {
		t.Fatalf("owner = %v", sess["owner"])
	}
}

func TestLoginRequiresEmail(t *testing.T) {
	srv, _ := setupServer(t)
	res, err := http.Post(srv.URL+"/v1/auth/login", "application/json", bytes.NewReader([]byte(`{"email":"  "}`)))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 got %v", res.Status)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	srv, _ := setupServer(t)
	cookie, _ := login(t, srv.URL, "alice@example.com")

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/auth/logout", nil)
	req.AddCookie(cookie)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 got %v", res.Status)
	}

	// the session is gone now
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/v1/auth/me", nil)
	req.AddCookie(cookie)
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout got %v", res.Status)
	}

	// logging out again still returns 204
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v1/auth/logout", nil)
	req.AddCookie(cookie)
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("repeat logout: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 got %v", res.Status)
	}
}

func TestAnonymousRedirectsToLogin(t *testing.T) {
	srv, _ := setupServer(t)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	res, err := client.Get(srv.URL + "/v1/threads")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusFound {
		t.Fatalf("expected 302 got %v", res.Status)
	}
	if loc := res.Header.Get("Location"); loc != "/login" {
		t.Fatalf("redirect to %q", loc)
	}

	// the login page itself is reachable
	res, err = client.Get(srv.URL + "/login")
	if err != nil {
		t.Fatalf("login page: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login page: expected 200 got %v", res.Status)
	}
}
