// Package tools – complete.go is the terminal tool: invoking it declares the
// session finished. The invocation itself only acknowledges; the paired
// generation.pre hook spots the invocation in the prior assistant message and
// raises the session-complete signal before any further generation.
package tools

import (
	"context"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

// lastAssistant returns the most recent assistant message of a prompt.
func lastAssistant(msgs []agent.Message) (agent.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == agent.RoleAssistant {
			return msgs[i], true
		}
	}
	return agent.Message{}, false
}

// invokesTool reports whether a message invokes the named tool.
func invokesTool(m agent.Message, reg *agent.ToolRegistry, name string) bool {
	for _, tu := range agent.ExtractToolUses(m.Content, reg, m.ToolCalls) {
		if tu.Tool == name {
			return true
		}
	}
	return false
}

func completeTool() *agent.ToolSpec {
	return &agent.ToolSpec{
		Name:       "complete",
		Desc:       "Declare the session finished",
		BlockTypes: []string{"complete"},
		Instructions: "Invoke `complete` with an optional summary body when " +
			"the task is done. The session ends before the next generation.",
		Hooks: []*agent.Hook{
			{
				Name:     "complete_detector",
				Type:     agent.HookGenerationPre,
				Priority: 100,
				Enabled:  true,
				Func: func(ctx context.Context, p *agent.HookPayload) (agent.HookResult, error) {
					if p.Manager == nil {
						return agent.HookResult{}, nil
					}
					last, ok := lastAssistant(p.Messages)
					if !ok {
						return agent.HookResult{}, nil
					}
					if invokesTool(last, p.Manager.Tools(), "complete") {
						return agent.HookResult{}, &agent.SessionCompleteError{Reason: "complete tool invoked"}
					}
					return agent.HookResult{}, nil
				},
			},
		},
		Execute: func(ctx context.Context, tu *agent.ToolUse, ec *agent.ExecContext) ([]agent.Message, error) {
			msg := "Session marked complete."
			if tu.Content != "" {
				msg += "\n\n" + tu.Content
			}
			return []agent.Message{agent.SystemMessage(msg, "")}, nil
		},
	}
}
