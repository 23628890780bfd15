package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

// toolExecContext builds a minimal execution context with approve-everything
// confirm and cancel-everything elicit defaults.
func toolExecContext(t *testing.T, workspace string) *agent.ExecContext {
	t.Helper()
	return &agent.ExecContext{
		Workspace:      workspace,
		Hooks:          agent.NewHookRegistry(testLogger()),
		ConversationID: t.Name(),
		Confirm: func(ctx context.Context, req *agent.ConfirmRequest) *agent.ConfirmationResult {
			return &agent.ConfirmationResult{Action: agent.ConfirmActionConfirm}
		},
		Elicit: func(ctx context.Context, req *agent.ElicitationRequest) *agent.ElicitationResponse {
			return &agent.ElicitationResponse{Cancelled: true}
		},
	}
}

func TestParsePatchBlocks(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{
			name: "single block",
			body: "<<<<<<< ORIGINAL\nold\n=======\nnew\n>>>>>>> UPDATED\n",
			want: 1,
		},
		{
			name: "two blocks",
			body: "<<<<<<< ORIGINAL\na\n=======\nb\n>>>>>>> UPDATED\n" +
				"<<<<<<< ORIGINAL\nc\n=======\nd\n>>>>>>> UPDATED\n",
			want: 2,
		},
		{
			name:    "missing divider",
			body:    "<<<<<<< ORIGINAL\nold\n>>>>>>> UPDATED\n",
			wantErr: true,
		},
		{
			name:    "missing terminator",
			body:    "<<<<<<< ORIGINAL\nold\n=======\nnew\n",
			wantErr: true,
		},
		{
			name:    "empty body",
			body:    "",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks, err := parsePatchBlocks(tt.body)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(blocks) != tt.want {
				t.Errorf("got %d blocks, want %d", len(blocks), tt.want)
			}
		})
	}
}

func TestApplyPatch(t *testing.T) {
	tests := []struct {
		name    string
		content string
		blocks  []patchBlock
		want    string
		wantErr string
	}{
		{
			name:    "exact match",
			content: "one\ntwo\nthree\n",
			blocks:  []patchBlock{{original: "two", updated: "2"}},
			want:    "one\n2\nthree\n",
		},
		{
			name:    "sequential blocks see earlier edits",
			content: "a b c",
			blocks: []patchBlock{
				{original: "a", updated: "x"},
				{original: "x b", updated: "y"},
			},
			want: "y c",
		},
		{
			name:    "not found",
			content: "hello",
			blocks:  []patchBlock{{original: "absent", updated: "x"}},
			wantErr: "not found",
		},
		{
			name:    "ambiguous",
			content: "dup\ndup\n",
			blocks:  []patchBlock{{original: "dup", updated: "x"}},
			wantErr: "ambiguous",
		},
		{
			name:    "empty original",
			content: "hello",
			blocks:  []patchBlock{{original: "", updated: "x"}},
			wantErr: "empty original",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyPatch(tt.content, tt.blocks)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPatchTool_Execute(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greet.txt")
	if err := os.WriteFile(path, []byte("hello world\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	spec := patchTool()
	ec := toolExecContext(t, dir)
	tu := &agent.ToolUse{
		Tool:    "patch",
		Args:    []string{"greet.txt"},
		Content: "<<<<<<< ORIGINAL\nhello world\n=======\nhello there\n>>>>>>> UPDATED\n",
	}
	msgs, err := spec.Execute(context.Background(), tu, ec)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(msgs) == 0 || !strings.Contains(msgs[len(msgs)-1].Content, "Patched") {
		t.Errorf("unexpected messages: %+v", msgs)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "hello there\n" {
		t.Errorf("file content = %q", data)
	}
}

func TestPatchTool_ErrorsBecomeMessages(t *testing.T) {
	dir := t.TempDir()
	spec := patchTool()
	ec := toolExecContext(t, dir)

	tests := []struct {
		name string
		tu   *agent.ToolUse
		want string
	}{
		{
			name: "missing path",
			tu:   &agent.ToolUse{Tool: "patch"},
			want: "missing path",
		},
		{
			name: "nonexistent file",
			tu:   &agent.ToolUse{Tool: "patch", Args: []string{"ghost.txt"}, Content: "x"},
			want: "patch:",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := spec.Execute(context.Background(), tt.tu, ec)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if len(msgs) != 1 || !strings.Contains(msgs[0].Content, tt.want) {
				t.Errorf("messages = %+v, want containing %q", msgs, tt.want)
			}
		})
	}
}
