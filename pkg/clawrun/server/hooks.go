// Package server – hooks.go bridges the in-process confirmation and
// elicitation decision points to remote clients. Both hooks consult the
// context-scoped conversation id: absent one, they fall through so a CLI
// context keeps its own behavior.
package server

import (
	"context"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

// ConfirmHook parks the tool use in the pending registry, emits tool_pending
// and waits for the HTTP resolution. The process-wide auto-confirm allowance
// short-circuits the wait; the event is still emitted so the UI sees the
// tool, flagged auto_confirm.
func (s *Server) ConfirmHook() *agent.Hook {
	return &agent.Hook{
		Name:     "server_confirm",
		Type:     agent.HookToolConfirm,
		Priority: 10,
		Enabled:  true,
		Confirm: func(ctx context.Context, req *agent.ConfirmRequest) (*agent.ConfirmationResult, error) {
			conv, ok := agent.ConversationIDFromContext(ctx)
			if !ok {
				return nil, nil
			}

			if agent.ConsumeAutoConfirm() {
				id := s.pendingConfirms.Create(req.ToolUse)
				s.pendingConfirms.Remove(id)
				s.bus.Publish(conv, Event{Type: "tool_pending", Data: map[string]any{
					"tool_id":      id,
					"tooluse":      toolUsePayload(req.ToolUse),
					"auto_confirm": true,
				}})
				s.bus.Publish(conv, Event{Type: "tool_executing", Data: map[string]any{"tool_id": id}})
				return &agent.ConfirmationResult{Action: agent.ConfirmActionConfirm}, nil
			}

			id := s.pendingConfirms.Create(req.ToolUse)
			s.bus.Publish(conv, Event{Type: "tool_pending", Data: map[string]any{
				"tool_id":      id,
				"tooluse":      toolUsePayload(req.ToolUse),
				"auto_confirm": false,
			}})
			s.logger.Info("tool pending", "conversation", conv, "tool_id", id,
				"tool", req.ToolUse.Tool)

			res, err := s.pendingConfirms.Wait(ctx, id)
			if err != nil {
				if err == agent.ErrConfirmationTimeout {
					return &agent.ConfirmationResult{
						Action:  agent.ConfirmActionSkip,
						Message: "timed out waiting for confirmation",
					}, nil
				}
				return nil, err
			}
			if res.Confirmed() {
				s.bus.Publish(conv, Event{Type: "tool_executing", Data: map[string]any{"tool_id": id}})
			}
			return res, nil
		},
	}
}

// ElicitHook is the same rendezvous for structured-input requests.
func (s *Server) ElicitHook() *agent.Hook {
	return &agent.Hook{
		Name:     "server_elicit",
		Type:     agent.HookElicit,
		Priority: 10,
		Enabled:  true,
		Elicit: func(ctx context.Context, req *agent.ElicitationRequest) (*agent.ElicitationResponse, error) {
			conv, ok := agent.ConversationIDFromContext(ctx)
			if !ok {
				return nil, nil
			}

			id := s.pendingElicits.Create(req)
			data := map[string]any{
				"elicit_id":   id,
				"elicit_type": req.Type,
				"prompt":      req.Prompt,
			}
			if len(req.Options) > 0 {
				data["options"] = req.Options
			}
			if len(req.Fields) > 0 {
				data["fields"] = req.Fields
			}
			if req.Default != "" {
				data["default"] = req.Default
			}
			if req.Description != "" {
				data["description"] = req.Description
			}
			s.bus.Publish(conv, Event{Type: "elicit_pending", Data: data})
			s.logger.Info("elicitation pending", "conversation", conv, "elicit_id", id,
				"type", req.Type)

			res, err := s.pendingElicits.Wait(ctx, id)
			if err != nil {
				if err == agent.ErrConfirmationTimeout {
					return agent.CancelledResponse(), nil
				}
				return nil, err
			}
			return res, nil
		},
	}
}

// Hooks returns the server-mode hook set to hand to a manager.
func (s *Server) Hooks() []*agent.Hook {
	return []*agent.Hook{s.ConfirmHook(), s.ElicitHook()}
}

func toolUsePayload(tu *agent.ToolUse) map[string]any {
	if tu == nil {
		return nil
	}
	return map[string]any{
		"tool":    tu.Tool,
		"args":    tu.Args,
		"kwargs":  tu.Kwargs,
		"content": tu.Content,
	}
}
