package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"gptchat/pkg/auth"
	"gptchat/pkg/logger"
	"gptchat/pkg/models"
	"gptchat/pkg/store"
	"gptchat/pkg/utils"
)

// RegisterAuth registers the login/logout/session routes.
func RegisterAuth(r *mux.Router) {
	r.HandleFunc("/auth/login", login).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", logout).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", me).Methods(http.MethodGet)
}

// login handles POST /auth/login. The user record is created on first
// sign-in; subsequent logins refresh name and avatar when provided.
func login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email  string `json:"email"`
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" {
		utils.JSONError(w, http.StatusBadRequest, "email required")
		return
	}

	u, err := store.GetUser(email)
	if err != nil {
		if !store.IsNotFound(err) {
			utils.JSONError(w, http.StatusInternalServerError, "store unavailable")
			return
		}
		u = models.User{Email: email, CreatedTS: time.Now().UnixNano()}
	}
	if payload.Name != "" {
		u.Name = payload.Name
	}
	if payload.Avatar != "" {
		u.Avatar = payload.Avatar
	}
	if err := store.SaveUser(u); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	token, sess, err := auth.IssueSession(email, deps.SessionTTL)
	if err != nil {
		logger.Error("issue_session_failed", "user", email, "err", err.Error())
		utils.JSONError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	auth.SetSessionCookie(w, token, time.Unix(0, sess.ExpiresTS), deps.SecureCookies)
	logger.Info("login", "user", email, "session", sess.ID)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"user":       u,
		"expires_ts": sess.ExpiresTS,
	})
}

// logout handles POST /auth/logout. Idempotent; a missing or bad token
// still clears the cookie and returns 204.
func logout(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(auth.SessionCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		h := r.Header.Get("Authorization")
		if strings.HasPrefix(strings.ToLower(h), "bearer ") {
			token = strings.TrimSpace(h[7:])
		}
	}
	if token != "" {
		auth.DestroySession(token)
	}
	auth.ClearSessionCookie(w, deps.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}

// me handles GET /auth/me and reports the caller's session and profile.
func me(w http.ResponseWriter, r *http.Request) {
	s, err := auth.SessionFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "no valid session")
		return
	}
	u, err := store.GetUser(s.Owner)
	if err != nil && !store.IsNotFound(err) {
		utils.JSONError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"session": s,
		"user":    u,
	})
}
