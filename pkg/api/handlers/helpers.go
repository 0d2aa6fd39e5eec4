package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"gptchat/pkg/chat"
	"gptchat/pkg/relay"
	"gptchat/pkg/subscribe"
	"gptchat/pkg/utils"
)

// Deps carries the wired components handlers call into. Configure is
// run once during startup before any route is served.
type Deps struct {
	Composer   *chat.Composer
	Relay      *relay.Relay
	Broker     *subscribe.Broker
	SessionTTL time.Duration
	// SecureCookies marks issued cookies Secure; on behind-TLS deploys.
	SecureCookies bool
	MaxBodyBytes  int64
}

var deps Deps

// Configure installs the handler dependencies.
func Configure(d Deps) { deps = d }

// decodeJSON decodes a request body into v, bounding the read when a
// body limit is configured. A false return means the error response was
// already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := r.Body
	if deps.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, deps.MaxBodyBytes)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// toRawMessages converts a slice of JSON-encoded strings to a slice of json.RawMessage.
func toRawMessages(vals []string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(vals))
	for _, s := range vals {
		out = append(out, json.RawMessage(s))
	}
	return out
}
