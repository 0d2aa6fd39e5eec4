package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
)

func TestSendChatCreatesThread(t *testing.T) {
	srv, upstream := setupServer(t)
	upstream.content = "Hello from the model"

	res := doBackend(t, srv, http.MethodPost, "/v1/chat/send", "alice@example.com",
		map[string]interface{}{"text": "hello"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("send: %v", res.Status)
	}
	out := decodeBody(t, res)
	if out["success"] != true || out["thread_created"] != true {
		t.Fatalf("send response %v", out)
	}
	if out["answer"] != "Hello from the model" {
		t.Fatalf("answer = %v", out["answer"])
	}
	tid := out["thread"].(string)

	res = doBackend(t, srv, http.MethodGet, "/v1/threads/"+tid+"/messages", "alice@example.com", nil)
	msgs := decodeBody(t, res)["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Fatalf("expected human + assistant, got %d", len(msgs))
	}
}

func TestSendChatBlankIsNoOp(t *testing.T) {
	srv, _ := setupServer(t)
	res := doBackend(t, srv, http.MethodPost, "/v1/chat/send", "alice@example.com",
		map[string]interface{}{"text": "   "})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("send: %v", res.Status)
	}
	out := decodeBody(t, res)
	if out["noop"] != true || out["success"] != true {
		t.Fatalf("expected no-op response, got %v", out)
	}
}

func TestSendChatUpstreamFailureStillStoresPrompt(t *testing.T) {
	srv, upstream := setupServer(t)
	upstream.fail = true

	res := doBackend(t, srv, http.MethodPost, "/v1/chat/send", "alice@example.com",
		map[string]interface{}{"text": "doomed prompt"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("send: %v", res.Status)
	}
	out := decodeBody(t, res)
	if out["success"] != false {
		t.Fatalf("expected success=false, got %v", out)
	}
	tid := out["thread"].(string)

	res = doBackend(t, srv, http.MethodGet, "/v1/threads/"+tid+"/messages", "alice@example.com", nil)
	msgs := decodeBody(t, res)["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages got %d", len(msgs))
	}
	if first := msgs[0].(map[string]interface{}); first["text"] != "doomed prompt" {
		t.Fatalf("user prompt lost: %v", first)
	}
}

func TestAskChatValidation(t *testing.T) {
	srv, _ := setupServer(t)

	res := doBackend(t, srv, http.MethodPost, "/v1/askchat", "alice@example.com",
		map[string]interface{}{"id": "thread-1"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing prompt: expected 400 got %v", res.Status)
	}
	out := decodeBody(t, res)
	if out["message"] != "Please provide a prompt!" {
		t.Fatalf("message = %v", out["message"])
	}

	res = doBackend(t, srv, http.MethodPost, "/v1/askchat", "alice@example.com",
		map[string]interface{}{"prompt": "hi"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing id: expected 400 got %v", res.Status)
	}
	out = decodeBody(t, res)
	if out["message"] != "Please provide a valid chat ID!" {
		t.Fatalf("message = %v", out["message"])
	}
}

func TestAskChatSuccessEnvelope(t *testing.T) {
	srv, upstream := setupServer(t)
	upstream.content = "42"

	res := doBackend(t, srv, http.MethodPost, "/v1/askchat", "alice@example.com",
		map[string]interface{}{"prompt": "what is the answer?", "id": "thread-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %v", res.Status)
	}
	out := decodeBody(t, res)
	if out["answer"] != "42" || out["message"] != "ChatGPT has responded!" || out["success"] != true {
		t.Fatalf("envelope %v", out)
	}
}

func TestAskChatFailureEnvelope(t *testing.T) {
	srv, upstream := setupServer(t)
	upstream.fail = true

	res := doBackend(t, srv, http.MethodPost, "/v1/askchat", "alice@example.com",
		map[string]interface{}{"prompt": "hi", "id": "thread-1"})
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %v", res.Status)
	}
	out := decodeBody(t, res)
	if out["error"] != "Something went wrong" ||
		out["message"] != "Failed to get response from ChatGPT" ||
		out["success"] != false {
		t.Fatalf("envelope %v", out)
	}
}

func TestAskChatFrontendCannotNameOtherOwner(t *testing.T) {
	srv, upstream := setupServer(t)
	upstream.content = "should never be stored"

	victimThread := createTestThread(t, srv, map[string]interface{}{"title": "Private"})
	vid := victimThread["id"].(string)

	cookie, _ := login(t, srv.URL, "mallory@example.com")
	body, _ := json.Marshal(map[string]interface{}{
		"prompt":  "hi",
		"id":      vid,
		"session": "alice@example.com",
	})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/askchat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("askchat: %v", err)
	}
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 got %v", res.Status)
	}
	res.Body.Close()

	res = doBackend(t, srv, http.MethodGet, "/v1/threads/"+vid+"/messages", "alice@example.com", nil)
	msgs := decodeBody(t, res)["messages"].([]interface{})
	if len(msgs) != 0 {
		t.Fatalf("message written into another user's thread: %v", msgs)
	}
}

func TestAskChatSessionFieldMatchingCallerIsAllowed(t *testing.T) {
	srv, upstream := setupServer(t)
	upstream.content = "fine"

	cookie, _ := login(t, srv.URL, "bob@example.com")
	body, _ := json.Marshal(map[string]interface{}{
		"prompt":  "hi",
		"id":      "thread-self",
		"session": "bob@example.com",
	})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/askchat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("askchat: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %v", res.Status)
	}
	out := decodeBody(t, res)
	if out["success"] != true {
		t.Fatalf("envelope %v", out)
	}
}

func TestAskChatResolvesPlaceholder(t *testing.T) {
	srv, upstream := setupServer(t)
	upstream.content = "resolved"
	created := createTestThread(t, srv, map[string]interface{}{})
	tid := created["id"].(string)

	res := doBackend(t, srv, http.MethodPost, "/v1/threads/"+tid+"/messages", "alice@example.com",
		map[string]interface{}{"id": "msg-ph", "text": "", "is_loading": true})
	res.Body.Close()

	res = doBackend(t, srv, http.MethodPost, "/v1/askchat", "alice@example.com",
		map[string]interface{}{"prompt": "hi", "id": tid, "loadingMessageId": "msg-ph"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("askchat: %v", res.Status)
	}
	res.Body.Close()

	res = doBackend(t, srv, http.MethodGet, "/v1/threads/"+tid+"/messages", "alice@example.com", nil)
	msgs := decodeBody(t, res)["messages"].([]interface{})
	if len(msgs) != 1 {
		t.Fatalf("placeholder should be resolved in place, got %d messages", len(msgs))
	}
	m := msgs[0].(map[string]interface{})
	if m["text"] != "resolved" || m["is_loading"] == true {
		t.Fatalf("placeholder state %v", m)
	}
}
