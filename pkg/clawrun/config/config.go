// Package config defines the runtime configuration for clawrun: workspace
// and log locations, provider endpoint, server binding, shell policy, tool
// and hook selection, secret storage and scheduled announcements.
package config

import (
	"time"
)

// Config holds all runtime configuration.
type Config struct {
	// Workspace is the filesystem root against which tools resolve
	// relative paths. Defaults to the current directory.
	Workspace string `yaml:"workspace"`

	// LogsDir is where conversation directories live.
	LogsDir string `yaml:"logs_dir"`

	// API configures the LLM provider endpoint.
	API APIConfig `yaml:"api"`

	// Agent configures the turn loop.
	Agent AgentConfig `yaml:"agent"`

	// Shell configures the persistent shell tool.
	Shell ShellConfig `yaml:"shell"`

	// Tools selects which tools load.
	Tools ToolsConfig `yaml:"tools"`

	// Hooks selects which hooks activate.
	Hooks HooksConfig `yaml:"hooks"`

	// Server configures the HTTP/SSE server.
	Server ServerConfig `yaml:"server"`

	// Secrets configures where elicited secrets are stored.
	Secrets SecretsConfig `yaml:"secrets"`

	// MCP configures proxied MCP servers.
	MCP MCPConfig `yaml:"mcp"`

	// Announcements are cron-scheduled notices injected into active
	// conversations.
	Announcements []Announcement `yaml:"announcements"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the LLM provider endpoint.
type APIConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// AgentConfig configures the turn loop.
type AgentConfig struct {
	// MaxSteps bounds auto-stepping within one turn; 0 is open-ended.
	MaxSteps int `yaml:"max_steps"`

	// BreakOnToolUse executes only the first runnable tool per step.
	// Overridden by GPTME_BREAK_ON_TOOLUSE.
	BreakOnToolUse bool `yaml:"break_on_tooluse"`

	// NoConfirm approves every tool without prompting.
	NoConfirm bool `yaml:"no_confirm"`

	// ContextTree includes a workspace tree listing in generated context.
	// Overridden by GPTME_CONTEXT_TREE.
	ContextTree bool `yaml:"context_tree"`
}

// ShellConfig configures the persistent shell tool.
type ShellConfig struct {
	// Timeout bounds one command; 0 disables. Overridden by
	// GPTME_SHELL_TIMEOUT (seconds).
	Timeout time.Duration `yaml:"timeout"`

	// ReadOnlyCommands auto-approve without confirmation.
	ReadOnlyCommands []string `yaml:"read_only_commands"`
}

// ToolsConfig selects which tools load.
type ToolsConfig struct {
	// Allowlist names the tools to load. Overridden by TOOL_ALLOWLIST.
	Allowlist []string `yaml:"allowlist"`

	// Modules names the tool modules to scan. Overridden by TOOL_MODULES.
	Modules []string `yaml:"modules"`
}

// HooksConfig selects which hooks activate.
type HooksConfig struct {
	// Allowlist restricts activation to the named hooks. Overridden by
	// HOOK_ALLOWLIST.
	Allowlist []string `yaml:"allowlist"`
}

// ServerConfig configures the HTTP/SSE server.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`

	// AuthToken gates every endpoint when set.
	AuthToken string `yaml:"auth_token"`

	// PingInterval spaces SSE keep-alive pings.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// SecretsConfig configures where elicited secrets go. Backend "log" keeps
// them in the conversation (hidden from display only), "keyring" uses the OS
// credential store, "vault" uses an encrypted file.
type SecretsConfig struct {
	Backend string `yaml:"backend"`

	// VaultPath locates the encrypted vault file for the vault backend.
	VaultPath string `yaml:"vault_path"`

	// VaultPassphrase unlocks the vault; usually ${CLAWRUN_VAULT_PASSPHRASE}.
	VaultPassphrase string `yaml:"vault_passphrase"`
}

// MCPConfig configures proxied MCP servers.
type MCPConfig struct {
	Enabled bool        `yaml:"enabled"`
	Servers []MCPServer `yaml:"servers"`
}

// MCPServer names one MCP server to proxy. Command servers speak stdio;
// URL servers speak streamable HTTP.
type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// Announcement is a cron-scheduled notice.
type Announcement struct {
	// Schedule is a cron expression ("0 9 * * 1-5").
	Schedule string `yaml:"schedule"`
	Message  string `yaml:"message"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Workspace: ".",
		LogsDir:   defaultLogsDir(),
		Agent: AgentConfig{
			BreakOnToolUse: true,
		},
		Shell: ShellConfig{
			Timeout: 0,
			ReadOnlyCommands: []string{
				"ls", "cat", "head", "tail", "grep", "find", "pwd", "echo",
				"wc", "file", "stat", "du", "df", "which", "whoami", "date",
			},
		},
		Server: ServerConfig{
			Listen:       "127.0.0.1:5700",
			PingInterval: 15 * time.Second,
		},
		Secrets: SecretsConfig{
			Backend: "log",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
