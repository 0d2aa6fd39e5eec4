package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"gptchat/pkg/config"
	"gptchat/pkg/logger"
	"gptchat/pkg/models"
	"gptchat/pkg/store"
	"gptchat/pkg/utils"
)

// SessionCookie is the cookie name carrying the signed session token.
const SessionCookie = "gptchat_session"

// DefaultSessionTTL applies when no auth.session_ttl is configured.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	ErrNoSession      = errors.New("no session")
	ErrBadSignature   = errors.New("invalid session signature")
	ErrSessionExpired = errors.New("session expired")
)

func signSessionID(secret, id string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}

// IssueSession creates and persists a session for owner and returns the
// signed token to hand to the client. The token is "<id>.<hmac hex>";
// only the id is stored server side.
func IssueSession(owner string, ttl time.Duration) (string, models.Session, error) {
	secret := config.GetSigningSecret()
	if secret == "" {
		return "", models.Session{}, errors.New("no session secrets configured")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := time.Now()
	s := models.Session{
		ID:        utils.GenSessionID(),
		Owner:     owner,
		CreatedTS: now.UnixNano(),
		ExpiresTS: now.Add(ttl).UnixNano(),
	}
	if err := store.SaveSession(s); err != nil {
		return "", models.Session{}, err
	}
	return s.ID + "." + signSessionID(secret, s.ID), s, nil
}

// VerifyToken checks the token signature against all configured secrets,
// loads the session record and enforces expiry. Expired sessions are
// removed as a side effect.
func VerifyToken(token string) (models.Session, error) {
	id, sig, ok := strings.Cut(token, ".")
	if !ok || id == "" || sig == "" {
		return models.Session{}, ErrNoSession
	}
	secrets := config.GetSessionSecrets()
	if len(secrets) == 0 {
		return models.Session{}, errors.New("no session secrets configured")
	}
	valid := false
	for secret := range secrets {
		expected := signSessionID(secret, id)
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return models.Session{}, ErrBadSignature
	}
	s, err := store.GetSession(id)
	if err != nil {
		if store.IsNotFound(err) {
			return models.Session{}, ErrNoSession
		}
		return models.Session{}, err
	}
	if s.ExpiresTS > 0 && time.Now().UnixNano() > s.ExpiresTS {
		if derr := store.DeleteSession(id); derr != nil {
			logger.Warn("expired_session_cleanup_failed", "session", id, "err", derr.Error())
		}
		return models.Session{}, ErrSessionExpired
	}
	return s, nil
}

// SessionFromRequest resolves the session for a request, preferring the
// cookie and falling back to Authorization: Bearer for non-browser
// clients.
func SessionFromRequest(r *http.Request) (models.Session, error) {
	token := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			v := strings.TrimSpace(auth[7:])
			// session tokens always carry a signature segment; plain
			// api keys do not and are handled by the gateway
			if strings.Contains(v, ".") {
				token = v
			}
		}
	}
	if token == "" {
		return models.Session{}, ErrNoSession
	}
	return VerifyToken(token)
}

// DestroySession deletes the server-side record for a token. Bad tokens
// are not an error; logout is idempotent.
func DestroySession(token string) {
	s, err := VerifyToken(token)
	if err != nil {
		return
	}
	if err := store.DeleteSession(s.ID); err != nil {
		logger.Warn("session_delete_failed", "session", s.ID, "err", err.Error())
	}
}

// SetSessionCookie writes the session cookie on w.
func SetSessionCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie on w.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
