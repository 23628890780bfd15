// Package agent – message.go defines the conversation message model. Messages
// are immutable once appended to a log: hooks that want to change one produce
// a replacement before the append, never an in-place edit.
package agent

import (
	"strings"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// NativeToolCall is a provider-native structured tool call carried as metadata
// on an assistant message (as opposed to tool uses parsed out of the text).
type NativeToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// Message is one immutable conversation entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// CallID links a system tool-result message back to the assistant tool
	// invocation that produced it.
	CallID string `json:"call_id,omitempty"`

	// Hide withholds the message from terminal display. It stays in the log
	// and remains visible to the model (secrets, telemetry).
	Hide bool `json:"hide,omitempty"`

	// Quiet suppresses streaming display only.
	Quiet bool `json:"quiet,omitempty"`

	// Files lists paths the user attached to this message.
	Files []string `json:"files,omitempty"`

	// ToolCalls carries provider-native structured tool calls (assistant only).
	ToolCalls []NativeToolCall `json:"tool_calls,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// SystemMessage creates a system message, optionally linked to a tool call.
func SystemMessage(content, callID string) Message {
	m := NewMessage(RoleSystem, content)
	m.CallID = callID
	return m
}

// IsInterrupt reports whether the message is an interruption marker.
func (m Message) IsInterrupt() bool {
	return m.Role == RoleSystem && strings.HasPrefix(m.Content, InterruptContent)
}

// WithContent returns a copy of the message carrying different content.
// Used by message.transform hooks, which replace rather than mutate.
func (m Message) WithContent(content string) Message {
	m.Content = content
	return m
}
