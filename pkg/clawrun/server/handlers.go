// Package server – handlers.go implements the core endpoints: the SSE stream,
// the rendezvous resolutions, message posting and config access.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
	"github.com/jholhewres/clawrun/pkg/clawrun/config"
)

// handleEvents serves the per-conversation SSE stream: connected first, then
// loop and rendezvous events in publish order, with keep-alive pings.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conv := r.PathValue("id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sessionID := uuid.NewString()
	writeSSE(w, flusher, "connected", map[string]any{"session_id": sessionID})

	events, cancel := s.bus.Subscribe(conv)
	defer cancel()
	s.logger.Debug("client subscribed", "conversation", conv, "session", sessionID)

	ping := newPingTicker(s.cfg.Server.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			writeSSE(w, flusher, "ping", nil)
		case ev := <-events:
			writeSSE(w, flusher, ev.Type, ev.Data)
		}
	}
}

type confirmRequest struct {
	SessionID     string `json:"session_id"`
	ToolID        string `json:"tool_id"`
	Action        string `json:"action"`
	EditedContent string `json:"edited_content,omitempty"`
}

// handleToolConfirm resolves a pending confirmation. Missing id is 404; a
// second resolution of the same id is also 404 since the record is gone or
// already resolved.
func (s *Server) handleToolConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	var action agent.ConfirmAction
	switch req.Action {
	case "confirm":
		action = agent.ConfirmActionConfirm
	case "skip":
		action = agent.ConfirmActionSkip
	case "edit":
		action = agent.ConfirmActionEdit
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid action"})
		return
	}
	res := &agent.ConfirmationResult{Action: action, EditedContent: req.EditedContent}
	if !s.pendingConfirms.Resolve(req.ToolID, res) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown tool_id"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type elicitRespondRequest struct {
	ElicitID string            `json:"elicit_id"`
	Action   string            `json:"action"`
	Value    string            `json:"value,omitempty"`
	Values   map[string]string `json:"values,omitempty"`
}

// handleElicitRespond resolves a pending elicitation. decline and cancel both
// produce a cancelled response.
func (s *Server) handleElicitRespond(w http.ResponseWriter, r *http.Request) {
	var req elicitRespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	var res *agent.ElicitationResponse
	switch req.Action {
	case "accept":
		res = &agent.ElicitationResponse{Value: req.Value, Values: req.Values}
	case "decline", "cancel":
		res = agent.CancelledResponse()
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid action"})
		return
	}
	if !s.pendingElicits.Resolve(req.ElicitID, res) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown elicit_id"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type messageRequest struct {
	Content string   `json:"content"`
	Files   []string `json:"files,omitempty"`
}

// handleMessage posts a user message and runs the turn on a worker. The
// worker context carries the conversation and session ids so the rendezvous
// hooks engage.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	conv := r.PathValue("id")
	m, ok := s.manager(conv)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown conversation"})
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.setRunning(conv, cancel)
	go func() {
		defer s.clearRunning(conv)
		ctx := agent.ContextWithConversation(ctx, conv)
		ctx = agent.ContextWithSession(ctx, uuid.NewString())
		if err := m.RunTurn(ctx, req.Content, req.Files); err != nil {
			if agent.IsSessionComplete(err) {
				s.logger.Info("session complete", "conversation", conv)
				return
			}
			s.logger.Error("turn failed", "conversation", conv, "error", err)
			s.bus.Publish(conv, Event{Type: "error", Data: map[string]any{"error": err.Error()}})
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleInterrupt cancels the conversation's running turn. Generation aborts
// with partial output preserved and any parked rendezvous wakes through its
// context.
func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	conv := r.PathValue("id")
	if _, ok := s.manager(conv); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown conversation"})
		return
	}
	if !s.cancelRunning(conv) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
		return
	}
	s.bus.Publish(conv, Event{Type: "interrupted", Data: nil})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newPingTicker(interval time.Duration) *time.Ticker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return time.NewTicker(interval)
}

// handleConfigGet returns the live configuration.
func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg)
}

// handleConfigPut replaces config fields from a YAML/JSON body and broadcasts
// config_changed with the list of changed top-level fields.
func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	updated := *s.cfg
	if err := yaml.Unmarshal(data, &updated); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	changed := changedFields(s.cfg, &updated)
	*s.cfg = updated

	s.bus.Broadcast(Event{Type: "config_changed", Data: map[string]any{
		"config":         s.cfg,
		"changed_fields": changed,
	}})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "changed_fields": changed})
}

// changedFields compares top-level config sections.
func changedFields(before, after *config.Config) []string {
	var changed []string
	bv := reflect.ValueOf(*before)
	av := reflect.ValueOf(*after)
	t := bv.Type()
	for i := 0; i < t.NumField(); i++ {
		if !reflect.DeepEqual(bv.Field(i).Interface(), av.Field(i).Interface()) {
			changed = append(changed, t.Field(i).Tag.Get("yaml"))
		}
	}
	return changed
}
