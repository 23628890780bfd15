// Package tools – save.go writes a file from a fenced body. The block is
// parsed verbatim: nested triple-backtick fences inside the body do not close
// the outer block, so the tool can emit markdown and source files containing
// code fences.
package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

// resolvePath anchors a tool path against the workspace.
func resolvePath(workspace, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}

func saveTool() *agent.ToolSpec {
	return &agent.ToolSpec{
		Name:         "save",
		Desc:         "Write a file from the fenced body",
		BlockTypes:   []string{"save"},
		VerbatimBody: true,
		Instructions: "Use `save <path>` with the complete file content as the body. " +
			"Overwriting an existing file asks for a second confirmation.",
		Execute: func(ctx context.Context, tu *agent.ToolUse, ec *agent.ExecContext) ([]agent.Message, error) {
			if len(tu.Args) == 0 {
				return []agent.Message{agent.SystemMessage("save: missing path argument", "")}, nil
			}
			path := resolvePath(ec.Workspace, tu.Args[0])
			content := tu.Content
			if content != "" && content[len(content)-1] != '\n' {
				content += "\n"
			}

			_, statErr := os.Stat(path)
			created := os.IsNotExist(statErr)

			pre, err := ec.Hooks.Trigger(ctx, agent.HookFileSavePre, &agent.HookPayload{
				Log: ec.Log, Workspace: ec.Workspace,
				Path: path, FileContent: content, Created: created,
			})
			if err != nil {
				return pre, err
			}

			if !created {
				res := ec.Confirm(ctx, &agent.ConfirmRequest{
					ToolUse:        tu,
					Preview:        fmt.Sprintf("Overwrite existing file %s?", path),
					DefaultConfirm: true,
				})
				if !res.Confirmed() {
					return append(pre, agent.SystemMessage(fmt.Sprintf("Declined: not overwriting %s", path), "")), nil
				}
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return append(pre, agent.SystemMessage(fmt.Sprintf("save: %v", err), "")), nil
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return append(pre, agent.SystemMessage(fmt.Sprintf("save: %v", err), "")), nil
			}

			post, err := ec.Hooks.Trigger(ctx, agent.HookFileSavePost, &agent.HookPayload{
				Log: ec.Log, Workspace: ec.Workspace,
				Path: path, FileContent: content, Created: created,
			})
			out := append(pre, agent.SystemMessage(fmt.Sprintf("Saved %s", path), ""))
			out = append(out, post...)
			return out, err
		},
	}
}
