package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"gptchat/pkg/auth"
	"gptchat/pkg/relay"
	"gptchat/pkg/utils"
	"gptchat/pkg/validation"
)

// RegisterChat registers the send flow and the completion relay routes.
func RegisterChat(r *mux.Router) {
	r.HandleFunc("/chat/send", sendChat).Methods(http.MethodPost)
	r.HandleFunc("/askchat", askChat).Methods(http.MethodPost)
}

// sendChat handles POST /chat/send: the full composer flow. The human
// message and the pending placeholder are written before the upstream
// call, so a completion failure never loses the user's input. Blank
// text is a no-op, not an error.
func sendChat(w http.ResponseWriter, r *http.Request) {
	owner, code, msg := auth.ResolveOwner(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	var payload struct {
		Text   string `json:"text"`
		Thread string `json:"thread"`
		Model  string `json:"model"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := validation.ValidateModel(payload.Model); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Text != "" {
		if err := validation.ValidatePrompt(payload.Text); err != nil && err != validation.ErrBlankPrompt {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	res, err := deps.Composer.Send(r.Context(), owner, payload.Thread, payload.Text, payload.Model)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.NoOp {
		_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"noop":    true,
		})
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"success":        res.Relay.OK,
		"thread":         res.ThreadID,
		"thread_created": res.ThreadCreated,
		"message":        res.MessageID,
		"placeholder":    res.PlaceholderID,
		"answer":         res.Relay.Answer,
	})
}

// askChat handles POST /askchat: the bare completion relay hop. Callers
// supply the prompt and thread; when loadingMessageId names an existing
// pending placeholder it is resolved in place, otherwise a fresh
// assistant message is appended.
func askChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Prompt           string `json:"prompt"`
		ID               string `json:"id"`
		Model            string `json:"model"`
		Session          string `json:"session"`
		LoadingMessageID string `json:"loadingMessageId"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Prompt == "" {
		utils.JSONMessage(w, http.StatusBadRequest, "Please provide a prompt!")
		return
	}
	if payload.ID == "" {
		utils.JSONMessage(w, http.StatusBadRequest, "Please provide a valid chat ID!")
		return
	}

	// the body's session field may name the owner, but only backend and
	// admin callers act on behalf of other users; browser callers are
	// always resolved from their own session
	role := r.Header.Get("X-Role-Name")
	trusted := role == "backend" || role == "admin"
	owner, code, msg := auth.ResolveOwner(r)
	if code != 0 {
		if !trusted || payload.Session == "" {
			utils.JSONError(w, code, msg)
			return
		}
		owner = payload.Session
	}
	if payload.Session != "" && payload.Session != owner {
		if !trusted {
			utils.JSONError(w, http.StatusForbidden, "session does not match caller")
			return
		}
		owner = payload.Session
	}

	res := deps.Relay.Complete(r.Context(), relay.Request{
		Owner:         owner,
		ThreadID:      payload.ID,
		Prompt:        payload.Prompt,
		Model:         payload.Model,
		PlaceholderID: payload.LoadingMessageID,
	})
	if !res.OK {
		_ = utils.JSONWrite(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "Something went wrong",
			"message": "Failed to get response from ChatGPT",
			"success": false,
		})
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"answer":  res.Answer,
		"message": "ChatGPT has responded!",
		"success": true,
	})
}
