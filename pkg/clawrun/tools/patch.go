// Package tools – patch.go applies targeted edits to an existing file. The
// body uses conflict-marker framing so the model states exactly what changes:
//
//	<<<<<<< ORIGINAL
//	old text
//	=======
//	new text
//	>>>>>>> UPDATED
//
// Multiple blocks per body are applied in order.
package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

const (
	patchOriginal = "<<<<<<< ORIGINAL"
	patchDivider  = "======="
	patchUpdated  = ">>>>>>> UPDATED"
)

// patchBlock is one original/updated pair.
type patchBlock struct {
	original string
	updated  string
}

// parsePatchBlocks splits a patch body into blocks. Malformed framing is an
// error rather than a silent partial apply.
func parsePatchBlocks(body string) ([]patchBlock, error) {
	var blocks []patchBlock
	rest := body
	for {
		start := strings.Index(rest, patchOriginal)
		if start < 0 {
			break
		}
		rest = rest[start+len(patchOriginal):]
		div := strings.Index(rest, patchDivider)
		if div < 0 {
			return nil, fmt.Errorf("patch block missing %q divider", patchDivider)
		}
		end := strings.Index(rest, patchUpdated)
		if end < 0 || end < div {
			return nil, fmt.Errorf("patch block missing %q terminator", patchUpdated)
		}
		blocks = append(blocks, patchBlock{
			original: strings.Trim(rest[:div], "\n"),
			updated:  strings.Trim(rest[div+len(patchDivider):end], "\n"),
		})
		rest = rest[end+len(patchUpdated):]
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no patch blocks found")
	}
	return blocks, nil
}

// applyPatch applies blocks to content. Each original must occur exactly once.
func applyPatch(content string, blocks []patchBlock) (string, error) {
	for i, b := range blocks {
		if b.original == "" {
			return "", fmt.Errorf("patch block %d has empty original", i+1)
		}
		switch strings.Count(content, b.original) {
		case 0:
			return "", fmt.Errorf("patch block %d: original text not found", i+1)
		case 1:
			content = strings.Replace(content, b.original, b.updated, 1)
		default:
			return "", fmt.Errorf("patch block %d: original text is ambiguous", i+1)
		}
	}
	return content, nil
}

func patchTool() *agent.ToolSpec {
	return &agent.ToolSpec{
		Name:         "patch",
		Desc:         "Apply targeted edits to an existing file",
		BlockTypes:   []string{"patch"},
		VerbatimBody: true,
		Instructions: "Use `patch <path>` with ORIGINAL/UPDATED conflict-marker " +
			"blocks as the body. The original text must match exactly once.",
		Execute: func(ctx context.Context, tu *agent.ToolUse, ec *agent.ExecContext) ([]agent.Message, error) {
			if len(tu.Args) == 0 {
				return []agent.Message{agent.SystemMessage("patch: missing path argument", "")}, nil
			}
			path := resolvePath(ec.Workspace, tu.Args[0])

			data, err := os.ReadFile(path)
			if err != nil {
				return []agent.Message{agent.SystemMessage(fmt.Sprintf("patch: %v", err), "")}, nil
			}
			blocks, err := parsePatchBlocks(tu.Content)
			if err != nil {
				return []agent.Message{agent.SystemMessage(fmt.Sprintf("patch: %v", err), "")}, nil
			}
			patched, err := applyPatch(string(data), blocks)
			if err != nil {
				return []agent.Message{agent.SystemMessage(fmt.Sprintf("patch: %v", err), "")}, nil
			}

			pre, hookErr := ec.Hooks.Trigger(ctx, agent.HookFilePatchPre, &agent.HookPayload{
				Log: ec.Log, Workspace: ec.Workspace,
				Path: path, FileContent: patched,
			})
			if hookErr != nil {
				return pre, hookErr
			}

			if err := os.WriteFile(path, []byte(patched), 0o644); err != nil {
				return append(pre, agent.SystemMessage(fmt.Sprintf("patch: %v", err), "")), nil
			}

			post, hookErr := ec.Hooks.Trigger(ctx, agent.HookFilePatchPost, &agent.HookPayload{
				Log: ec.Log, Workspace: ec.Workspace,
				Path: path, FileContent: patched,
			})
			out := append(pre, agent.SystemMessage(
				fmt.Sprintf("Patched %s (%d block(s))", path, len(blocks)), ""))
			out = append(out, post...)
			return out, hookErr
		},
	}
}
