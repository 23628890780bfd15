// Package agent – toolspec.go declares the static description of a tool and
// the execution context handed to its callback.
package agent

import "context"

// ToolParameter describes one named argument of a tool.
type ToolParameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // JSON-schema primitive: string, integer, number, boolean
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ExecContext is what a tool execution runs against: the conversation log,
// the workspace root, the context-local registries, and a confirm callback
// for secondary prompts (e.g. "overwrite existing file?").
type ExecContext struct {
	Log       *LogManager
	Workspace string
	Hooks     *HookRegistry
	Tools     *ToolRegistry

	// ConversationID names the owning conversation; shell sessions and
	// server rendezvous key off it.
	ConversationID string

	// Confirm asks for a secondary approval mid-execution. Never nil once
	// the executor hands the context to a tool.
	Confirm func(ctx context.Context, req *ConfirmRequest) *ConfirmationResult

	// Elicit requests structured user input mid-execution. Never nil.
	Elicit func(ctx context.Context, req *ElicitationRequest) *ElicitationResponse
}

// ExecuteFunc runs a parsed tool use and returns result messages. The
// executor stamps each with the invocation's call id.
type ExecuteFunc func(ctx context.Context, tu *ToolUse, ec *ExecContext) ([]Message, error)

// InitFunc performs a tool's lazy one-time setup. A non-nil return replaces
// the spec in the loaded-tools list.
type InitFunc func(ctx context.Context) (*ToolSpec, error)

// CommandFunc implements a slash command contributed by a tool.
type CommandFunc func(ctx context.Context, args []string, ec *ExecContext) ([]Message, error)

// ToolSpec is a registered tool's static description.
type ToolSpec struct {
	Name         string
	Desc         string
	Instructions string
	Examples     string

	// BlockTypes are the markdown info-string tags that invoke this tool.
	// Collisions with language tags are intentional (shell, python).
	BlockTypes []string

	Parameters []ToolParameter

	Execute ExecuteFunc
	Init    InitFunc

	// VerbatimBody marks tools (save, patch) whose fenced body is taken
	// verbatim, with nested triple-backtick fences kept as content.
	VerbatimBody bool

	// Hooks are registered alongside the tool at init time.
	Hooks []*Hook

	// Commands are slash commands the tool contributes.
	Commands map[string]CommandFunc

	// DisabledByDefault tools load only when explicitly allow-listed.
	DisabledByDefault bool

	// Available probes the environment (required binary present, server
	// reachable). Nil means always available.
	Available func() bool

	// IsMCP marks proxy specs whose Execute forwards to an MCP server.
	IsMCP bool
}

// IsAvailable runs the availability probe.
func (s *ToolSpec) IsAvailable() bool {
	return s.Available == nil || s.Available()
}

// HasBlockType reports whether tag invokes this tool.
func (s *ToolSpec) HasBlockType(tag string) bool {
	if tag == s.Name {
		return true
	}
	for _, bt := range s.BlockTypes {
		if bt == tag {
			return true
		}
	}
	return false
}
