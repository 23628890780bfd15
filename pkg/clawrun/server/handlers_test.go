package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

func postJSON(t *testing.T, handler http.HandlerFunc, pathID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if pathID != "" {
		req.SetPathValue("id", pathID)
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestHandleToolConfirm(t *testing.T) {
	s := testServer()
	id := s.pendingConfirms.Create(&agent.ToolUse{Tool: "shell"})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid body", "{not json", http.StatusBadRequest},
		{"invalid action", `{"tool_id":"` + id + `","action":"maybe"}`, http.StatusBadRequest},
		{"unknown id", `{"tool_id":"nope","action":"confirm"}`, http.StatusNotFound},
		{"valid confirm", `{"tool_id":"` + id + `","action":"confirm"}`, http.StatusOK},
		{"already resolved", `{"tool_id":"` + id + `","action":"confirm"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, s.handleToolConfirm, "conv-1", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandleToolConfirm_EditCarriesContent(t *testing.T) {
	s := testServer()
	id := s.pendingConfirms.Create(&agent.ToolUse{Tool: "shell", Content: "rm -rf /"})

	done := make(chan *agent.ConfirmationResult, 1)
	go func() {
		res, err := s.pendingConfirms.Wait(context.Background(), id)
		if err != nil {
			t.Errorf("wait: %v", err)
		}
		done <- res
	}()
	time.Sleep(10 * time.Millisecond)

	body := `{"tool_id":"` + id + `","action":"edit","edited_content":"ls"}`
	if w := postJSON(t, s.handleToolConfirm, "conv-1", body); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	select {
	case res := <-done:
		if res.Action != agent.ConfirmActionEdit || res.EditedContent != "ls" {
			t.Errorf("unexpected result: %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke")
	}
}

func TestHandleElicitRespond(t *testing.T) {
	s := testServer()

	t.Run("accept", func(t *testing.T) {
		id := s.pendingElicits.Create(&agent.ElicitationRequest{Type: agent.ElicitText})
		done := make(chan *agent.ElicitationResponse, 1)
		go func() {
			res, _ := s.pendingElicits.Wait(context.Background(), id)
			done <- res
		}()
		time.Sleep(10 * time.Millisecond)

		body := `{"elicit_id":"` + id + `","action":"accept","value":"blue"}`
		if w := postJSON(t, s.handleElicitRespond, "conv-1", body); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		res := <-done
		if res.Cancelled || res.Value != "blue" {
			t.Errorf("unexpected response: %+v", res)
		}
	})

	t.Run("decline cancels", func(t *testing.T) {
		id := s.pendingElicits.Create(&agent.ElicitationRequest{Type: agent.ElicitText})
		done := make(chan *agent.ElicitationResponse, 1)
		go func() {
			res, _ := s.pendingElicits.Wait(context.Background(), id)
			done <- res
		}()
		time.Sleep(10 * time.Millisecond)

		body := `{"elicit_id":"` + id + `","action":"decline"}`
		if w := postJSON(t, s.handleElicitRespond, "conv-1", body); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if res := <-done; !res.Cancelled {
			t.Errorf("decline must cancel, got %+v", res)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		body := `{"elicit_id":"ghost","action":"accept"}`
		if w := postJSON(t, s.handleElicitRespond, "conv-1", body); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("invalid action", func(t *testing.T) {
		body := `{"elicit_id":"x","action":"shrug"}`
		if w := postJSON(t, s.handleElicitRespond, "conv-1", body); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestHandleMessage_UnknownConversation(t *testing.T) {
	s := testServer()
	w := postJSON(t, s.handleMessage, "ghost", `{"content":"hello"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleInterrupt(t *testing.T) {
	s := testServer()

	t.Run("unknown conversation", func(t *testing.T) {
		w := postJSON(t, s.handleInterrupt, "ghost", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("idle conversation", func(t *testing.T) {
		s.mu.Lock()
		s.managers["conv-1"] = &agent.Manager{}
		s.mu.Unlock()
		w := postJSON(t, s.handleInterrupt, "conv-1", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp map[string]string
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp["status"] != "idle" {
			t.Errorf("an idle conversation reports idle, got %q", resp["status"])
		}
	})

	t.Run("running turn cancelled", func(t *testing.T) {
		s.mu.Lock()
		s.managers["conv-2"] = &agent.Manager{}
		s.mu.Unlock()
		ctx, cancel := context.WithCancel(context.Background())
		s.setRunning("conv-2", cancel)

		events, stop := s.Bus().Subscribe("conv-2")
		defer stop()

		w := postJSON(t, s.handleInterrupt, "conv-2", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if ctx.Err() == nil {
			t.Error("the running turn's context must be cancelled")
		}
		select {
		case ev := <-events:
			if ev.Type != "interrupted" {
				t.Errorf("expected interrupted event, got %s", ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("interrupted event never arrived")
		}
	})
}

func TestHandleConfigPut(t *testing.T) {
	s := testServer()
	events, cancel := s.Bus().Subscribe("any")
	defer cancel()

	body := `{"workspace":"/srv/work"}`
	w := postJSON(t, s.handleConfigPut, "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if s.cfg.Workspace != "/srv/work" {
		t.Errorf("workspace = %q, want /srv/work", s.cfg.Workspace)
	}

	var resp struct {
		ChangedFields []string `json:"changed_fields"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.ChangedFields) != 1 || resp.ChangedFields[0] != "workspace" {
		t.Errorf("changed fields = %v", resp.ChangedFields)
	}

	select {
	case ev := <-events:
		if ev.Type != "config_changed" {
			t.Errorf("expected config_changed broadcast, got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("config_changed never arrived")
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := testServer()
	s.cfg.Server.AuthToken = "sekrit"
	handler := s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"correct token", "Bearer sekrit", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
