// Package server – server.go owns the HTTP surface: routing, auth, lifecycle
// and the attachment of conversation managers whose loop events feed the SSE
// stream.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
	"github.com/jholhewres/clawrun/pkg/clawrun/config"
)

// Server exposes the runtime over HTTP.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	bus             *EventBus
	pendingConfirms *PendingRegistry[*agent.ConfirmationResult]
	pendingElicits  *PendingRegistry[*agent.ElicitationResponse]

	mu       sync.Mutex
	managers map[string]*agent.Manager
	running  map[string]context.CancelFunc

	httpSrv *http.Server
}

// New creates a server around the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:             cfg,
		logger:          logger.With("component", "server"),
		bus:             NewEventBus(logger),
		pendingConfirms: NewPendingRegistry[*agent.ConfirmationResult](),
		pendingElicits:  NewPendingRegistry[*agent.ElicitationResponse](),
		managers:        make(map[string]*agent.Manager),
		running:         make(map[string]context.CancelFunc),
	}
}

// Bus exposes the event bus.
func (s *Server) Bus() *EventBus { return s.bus }

// Attach registers a conversation manager and wires its loop events onto the
// SSE stream.
func (s *Server) Attach(m *agent.Manager) {
	conv := m.ConversationID()
	m.OnEvent = func(event string, data map[string]any) {
		s.bus.Publish(conv, Event{Type: event, Data: data})
	}
	s.mu.Lock()
	s.managers[conv] = m
	s.mu.Unlock()
}

// Detach removes a manager.
func (s *Server) Detach(conversationID string) {
	s.mu.Lock()
	delete(s.managers, conversationID)
	s.mu.Unlock()
}

func (s *Server) manager(conversationID string) (*agent.Manager, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.managers[conversationID]
	return m, ok
}

func (s *Server) setRunning(conversationID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.running[conversationID] = cancel
	s.mu.Unlock()
}

func (s *Server) clearRunning(conversationID string) {
	s.mu.Lock()
	delete(s.running, conversationID)
	s.mu.Unlock()
}

func (s *Server) cancelRunning(conversationID string) bool {
	s.mu.Lock()
	cancel, ok := s.running[conversationID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Start begins serving and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /conversations/{id}/events", s.authMiddleware(s.handleEvents))
	mux.HandleFunc("POST /conversations/{id}/tool/confirm", s.authMiddleware(s.handleToolConfirm))
	mux.HandleFunc("POST /conversations/{id}/elicit/respond", s.authMiddleware(s.handleElicitRespond))
	mux.HandleFunc("POST /conversations/{id}/messages", s.authMiddleware(s.handleMessage))
	mux.HandleFunc("POST /conversations/{id}/interrupt", s.authMiddleware(s.handleInterrupt))
	mux.HandleFunc("GET /config", s.authMiddleware(s.handleConfigGet))
	mux.HandleFunc("PUT /config", s.authMiddleware(s.handleConfigPut))

	s.httpSrv = &http.Server{
		Addr:    s.cfg.Server.Listen,
		Handler: mux,
	}
	s.logger.Info("server listening", "addr", s.cfg.Server.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// ── Middleware ──

// authMiddleware validates the bearer token if configured.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.AuthToken == "" {
			next(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Server.AuthToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// ── JSON / SSE helpers ──

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSSE writes a named SSE event to the response writer.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, string(b))
	flusher.Flush()
}
