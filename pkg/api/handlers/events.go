package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gptchat/pkg/auth"
	"gptchat/pkg/logger"
	"gptchat/pkg/models"
	"gptchat/pkg/store"
	"gptchat/pkg/utils"
)

// RegisterEvents registers the live subscription routes. Both are
// server-sent event streams with a snapshot-then-changes contract: the
// first event is always a full snapshot, so a consumer can tell "still
// connecting" apart from "connected with an empty result". Every
// subsequent store change produces a fresh snapshot event.
func RegisterEvents(r *mux.Router) {
	r.HandleFunc("/threads/events", threadEvents).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}/events", messageEvents).Methods(http.MethodGet)
}

const keepaliveInterval = 25 * time.Second

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	fl, ok := w.(http.Flusher)
	if !ok {
		utils.JSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return fl, true
}

func writeEvent(w http.ResponseWriter, name string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

// threadEvents streams the owner's thread list, ascending by creation
// time. Torn down when the client disconnects.
func threadEvents(w http.ResponseWriter, r *http.Request) {
	owner, code, msg := auth.ResolveOwner(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	ch, cancel := deps.Broker.SubscribeThreads(owner)
	defer cancel()

	fl, ok := startStream(w)
	if !ok {
		return
	}
	sendThreadSnapshot(w, owner)
	fl.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch:
			sendThreadSnapshot(w, owner)
			fl.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			fl.Flush()
		}
	}
}

func sendThreadSnapshot(w http.ResponseWriter, owner string) {
	threads, err := store.ListThreads(owner)
	if err != nil {
		logger.Warn("thread_snapshot_failed", "owner", owner, "err", err.Error())
		writeEvent(w, "error", map[string]string{"error": "snapshot failed"})
		return
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	writeEvent(w, "snapshot", struct {
		Threads []models.Thread `json:"threads"`
	}{Threads: threads})
}

// messageEvents streams one thread's ordered message list.
func messageEvents(w http.ResponseWriter, r *http.Request) {
	owner, code, msg := auth.ResolveOwner(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	threadID := mux.Vars(r)["id"]
	if _, err := store.GetThread(owner, threadID); err != nil {
		if store.IsNotFound(err) {
			utils.JSONError(w, http.StatusNotFound, "thread not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ch, cancel := deps.Broker.SubscribeMessages(owner, threadID)
	defer cancel()

	fl, ok := startStream(w)
	if !ok {
		return
	}
	sendMessageSnapshot(w, owner, threadID)
	fl.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch:
			sendMessageSnapshot(w, owner, threadID)
			fl.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			fl.Flush()
		}
	}
}

func sendMessageSnapshot(w http.ResponseWriter, owner, threadID string) {
	msgs, err := store.ListMessages(owner, threadID)
	if err != nil {
		logger.Warn("message_snapshot_failed", "thread", threadID, "err", err.Error())
		writeEvent(w, "error", map[string]string{"error": "snapshot failed"})
		return
	}
	writeEvent(w, "snapshot", struct {
		Thread   string            `json:"thread"`
		Messages []json.RawMessage `json:"messages"`
	}{Thread: threadID, Messages: toRawMessages(msgs)})
}
