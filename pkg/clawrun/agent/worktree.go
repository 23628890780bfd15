// Package agent – worktree.go contributes the workspace context hook: when
// enabled, each generation's prompt is prefixed with a listing of the
// workspace files so the model knows what exists without running a tool.
package agent

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// workspaceTreeLimit caps the listing so a large tree cannot flood the prompt.
const workspaceTreeLimit = 200

// WorkspaceTreeHook returns a generation.pre hook that prepends the workspace
// file listing to each prompt. The listing is rebuilt per generation, so files
// created by earlier tool runs appear in later steps.
func WorkspaceTreeHook(workspace string) *Hook {
	return &Hook{
		Name:     "workspace_tree",
		Type:     HookGenerationPre,
		Priority: 20,
		Enabled:  true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			listing := workspaceTree(workspace)
			if listing == "" {
				return HookResult{}, nil
			}
			msg := SystemMessage("Workspace files:\n"+listing, "")
			msg.Quiet = true
			return HookResult{Messages: []Message{msg}}, nil
		},
	}
}

// workspaceTree lists regular files under root, skipping hidden entries and
// everything below hidden directories.
func workspaceTree(root string) string {
	var paths []string
	truncated := false
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if len(paths) >= workspaceTreeLimit {
			truncated = true
			return filepath.SkipAll
		}
		paths = append(paths, rel)
		return nil
	})
	if len(paths) == 0 {
		return ""
	}
	sort.Strings(paths)
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("- ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	if truncated {
		b.WriteString("(listing truncated)\n")
	}
	return b.String()
}
