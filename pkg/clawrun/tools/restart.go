// Package tools – restart.go re-execs the process, preserving the
// conversation so the new process resumes where the old one stopped. The
// confirmed invocation schedules the restart; the generation.pre hook
// performs it once the log has been flushed, instead of mid-tool-execution.
package tools

import (
	"context"
	"sync"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

var pendingRestart struct {
	mu        sync.Mutex
	requested bool
}

// RestartRequested reports and clears the scheduled-restart flag.
func RestartRequested() bool {
	pendingRestart.mu.Lock()
	defer pendingRestart.mu.Unlock()
	r := pendingRestart.requested
	pendingRestart.requested = false
	return r
}

func requestRestart() {
	pendingRestart.mu.Lock()
	pendingRestart.requested = true
	pendingRestart.mu.Unlock()
}

func restartTool() *agent.ToolSpec {
	return &agent.ToolSpec{
		Name:       "restart",
		Desc:       "Re-exec the process, resuming this conversation",
		BlockTypes: []string{"restart"},
		Hooks: []*agent.Hook{
			{
				Name:     "restart_runner",
				Type:     agent.HookGenerationPre,
				Priority: 90,
				Enabled:  true,
				Func: func(ctx context.Context, p *agent.HookPayload) (agent.HookResult, error) {
					if !RestartRequested() {
						return agent.HookResult{}, nil
					}
					// Flush the conversation before the image is replaced.
					if p.Manager != nil {
						p.Manager.Log().Close()
					}
					if err := reexecSelf(); err != nil {
						return agent.HookResult{Messages: []agent.Message{
							agent.SystemMessage("Restart failed: "+err.Error(), ""),
						}}, nil
					}
					// Unix reexec never returns; this is the Windows path.
					return agent.HookResult{}, &agent.SessionCompleteError{Reason: "restarting"}
				},
			},
		},
		Execute: func(ctx context.Context, tu *agent.ToolUse, ec *agent.ExecContext) ([]agent.Message, error) {
			requestRestart()
			return []agent.Message{agent.SystemMessage("Restart scheduled; the process will re-exec before the next generation.", "")}, nil
		},
	}
}
