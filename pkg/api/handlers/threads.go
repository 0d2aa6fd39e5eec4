package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"gptchat/pkg/auth"
	"gptchat/pkg/chat"
	"gptchat/pkg/metrics"
	"gptchat/pkg/models"
	"gptchat/pkg/store"
	"gptchat/pkg/utils"
	"gptchat/pkg/validation"
)

// RegisterThreads registers all thread-related HTTP routes to the provided router.
func RegisterThreads(r *mux.Router) {
	// Collection routes
	r.HandleFunc("/threads", createThread).Methods(http.MethodPost)
	r.HandleFunc("/threads", listThreads).Methods(http.MethodGet)
	r.HandleFunc("/threads", deleteAllThreads).Methods(http.MethodDelete)

	// Single resource routes
	r.HandleFunc("/threads/{id}", getThread).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}", patchThread).Methods(http.MethodPatch)
	r.HandleFunc("/threads/{id}", deleteThread).Methods(http.MethodDelete)

	// Thread-scoped messages
	r.HandleFunc("/threads/{threadID}/messages", createThreadMessage).Methods(http.MethodPost)
	r.HandleFunc("/threads/{threadID}/messages", listThreadMessages).Methods(http.MethodGet)
}

// createThread handles POST /threads. Title and model are optional; an
// untitled thread renders as "New Chat" and an unset model resolves to
// the default.
func createThread(w http.ResponseWriter, r *http.Request) {
	owner, code, msg := auth.ResolveOwner(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	var payload struct {
		Title string `json:"title"`
		Model string `json:"model"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := validation.ValidateModel(payload.Model); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	t := models.Thread{
		ID:        utils.GenThreadID(),
		Owner:     owner,
		Title:     strings.TrimSpace(payload.Title),
		Model:     payload.Model,
		CreatedTS: time.Now().UnixNano(),
	}
	t.UpdatedTS = t.CreatedTS
	if t.Title != "" {
		t.Slug = utils.MakeSlug(t.Title, t.ID)
	}
	if err := store.SaveThread(owner, t.ID, t); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, t)
}

// listThreads handles GET /threads. Threads come back ascending by
// creation time, scoped to the calling owner.
func listThreads(w http.ResponseWriter, r *http.Request) {
	owner, code, msg := auth.ResolveOwner(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	threads, err := store.ListThreads(owner)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Threads []models.Thread `json:"threads"`
	}{Threads: threads})
}

// getThread handles GET /threads/{id}.
func getThread(w http.ResponseWriter, r *http.Request) {
	owner, code, msg := auth.ResolveOwner(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	id := mux.Vars(r)["id"]
	t, err := store.GetThread(owner, id)
	if err != nil {
		if store.IsNotFound(err) {
			utils.JSONError(w, http.StatusNotFound, "thread not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, t)
}

// patchThread handles PATCH /threads/{id} for rename and model
// selection. Both updates are idempotent; an empty title is rejected
// before anything is written.
func patchThread(w http.ResponseWriter, r *http.Request) {
	owner, code, msg := auth.ResolveOwner(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	id := mux.Vars(r)["id"]
	var payload struct {
		Title *string `json:"title"`
		Model *string `json:"model"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Title == nil && payload.Model == nil {
		utils.JSONError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	var t models.Thread
	var err error
	if payload.Title != nil {
		if verr := validation.ValidateTitle(*payload.Title); verr != nil {
			utils.JSONError(w, http.StatusBadRequest, verr.Error())
			return
		}
		t, err = chat.Rename(owner, id, *payload.Title)
		if err != nil {
			writeEditorError(w, err)
			return
		}
	}
	if payload.Model != nil {
		t, err = chat.SetModel(owner, id, *payload.Model)
		if err != nil {
			writeEditorError(w, err)
			return
		}
	}
	_ = utils.JSONWrite(w, http.StatusOK, t)
}

func writeEditorError(w http.ResponseWriter, err error) {
	switch {
	case err == chat.ErrEmptyTitle, err == chat.ErrUnknownModel:
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case store.IsNotFound(err):
		utils.JSONError(w, http.StatusNotFound, "thread not found")
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// deleteThread handles DELETE /threads/{id}. The response names the
// most recently created remaining thread so a client viewing the
// deleted one knows where to go; empty means no threads remain.
func deleteThread(w http.ResponseWriter, r *http.Request) {
	owner, code, msg := auth.ResolveOwner(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	id := mux.Vars(r)["id"]
	next, err := chat.DeleteThread(owner, id)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"deleted": id,
		"next":    next,
		"success": true,
	})
}

// deleteAllThreads handles DELETE /threads. Deletes fan out
// concurrently; any single failure reports overall failure even though
// the other deletions went through.
func deleteAllThreads(w http.ResponseWriter, r *http.Request) {
	owner, code, msg := auth.ResolveOwner(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	n, err := chat.DeleteAllThreads(r.Context(), owner)
	if err != nil {
		_ = utils.JSONWrite(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": n,
	})
}

// createThreadMessage handles POST /threads/{threadID}/messages. This
// is the raw append path; it does not trigger a completion. The author
// defaults to the calling user.
func createThreadMessage(w http.ResponseWriter, r *http.Request) {
	owner, code, msg := auth.ResolveOwner(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	threadID := mux.Vars(r)["threadID"]
	if _, err := store.GetThread(owner, threadID); err != nil {
		if store.IsNotFound(err) {
			utils.JSONError(w, http.StatusNotFound, "thread not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var m models.Message
	if !decodeJSON(w, r, &m) {
		return
	}
	if err := validation.ValidatePrompt(m.Text); err != nil && !m.IsLoading {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	m.Thread = threadID
	if m.ID == "" {
		m.ID = utils.GenID()
	}
	if m.TS == 0 {
		m.TS = time.Now().UnixNano()
	}
	if m.User.ID == "" {
		m.User = models.Author{ID: owner, Name: owner}
	}
	if err := store.SaveMessage(owner, threadID, m); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if m.FromAssistant() {
		metrics.MessagesSaved.WithLabelValues("assistant").Inc()
	} else {
		metrics.MessagesSaved.WithLabelValues("human").Inc()
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

// listThreadMessages handles GET /threads/{threadID}/messages with an
// optional ?limit= keeping only the most recent entries.
func listThreadMessages(w http.ResponseWriter, r *http.Request) {
	owner, code, msg := auth.ResolveOwner(r)
	if code != 0 {
		utils.JSONError(w, code, msg)
		return
	}
	threadID := mux.Vars(r)["threadID"]
	var msgs []string
	var err error
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		lim, perr := strconv.Atoi(limStr)
		if perr != nil || lim < 0 {
			utils.JSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		msgs, err = store.ListMessages(owner, threadID, lim)
	} else {
		msgs, err = store.ListMessages(owner, threadID)
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Thread   string            `json:"thread"`
		Messages []json.RawMessage `json:"messages"`
	}{Thread: threadID, Messages: toRawMessages(msgs)})
}
