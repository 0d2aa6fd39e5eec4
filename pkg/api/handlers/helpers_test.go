package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gptchat/pkg/api"
	"gptchat/pkg/api/handlers"
	"gptchat/pkg/auth"
	"gptchat/pkg/chat"
	"gptchat/pkg/config"
	"gptchat/pkg/relay"
	"gptchat/pkg/store"
	"gptchat/pkg/subscribe"
	"gptchat/pkg/validation"
)

// fakeUpstream stands in for the hosted completion API. Tests flip the
// fields between requests.
type fakeUpstream struct {
	content string
	fail    bool
}

func (f *fakeUpstream) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.fail {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, f.content)
	})
}

// setupServer wires the full stack the way the app does: store, broker,
// relay against a fake upstream, handler deps and the middleware chain.
func setupServer(t *testing.T) (*httptest.Server, *fakeUpstream) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		store.SetNotifier(nil)
		_ = store.Close()
	})

	config.SetRuntime(&config.RuntimeConfig{
		BackendKeys:    map[string]struct{}{"backend-key": {}},
		SessionSecrets: map[string]struct{}{"test-secret": {}},
		SigningSecret:  "test-secret",
	})
	validation.SetRules(validation.Rules{MaxPromptLen: 4000, MaxTitleLen: 120})

	broker := subscribe.NewBroker()
	store.SetNotifier(broker)

	f := &fakeUpstream{content: "stub answer"}
	upstream := httptest.NewServer(f.handler())
	t.Cleanup(upstream.Close)
	rl := relay.New(config.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: upstream.URL + "/v1",
		Timeout: config.Duration(5 * time.Second),
	})

	handlers.Configure(handlers.Deps{
		Composer:     chat.NewComposer(rl),
		Relay:        rl,
		Broker:       broker,
		SessionTTL:   time.Hour,
		MaxBodyBytes: 1 << 20,
	})

	secCfg := auth.SecConfig{
		BackendKeys: map[string]struct{}{"backend-key": {}},
		RPS:         1000, Burst: 1000,
	}
	h := auth.RequireSession(api.Handler())
	h = auth.AuthenticateRequestMiddleware(secCfg)(h)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, f
}

// doBackend issues a request authenticated with the backend api key,
// acting on behalf of user.
func doBackend(t *testing.T, srv *httptest.Server, method, path, user string, body interface{}) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer backend-key")
	req.Header.Set("X-User-ID", user)
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return res
}

func decodeBody(t *testing.T, res *http.Response) map[string]interface{} {
	t.Helper()
	defer res.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}
