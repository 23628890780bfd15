// Package agent – init.go wires the built-in hooks of one execution context.
// Each context (CLI session, server request) owns its own registry, so this
// runs once per context; re-running with the same options is a no-op.
package agent

import (
	"context"
	"os"
	"strings"
)

// HookInitOptions selects the built-in hook set for one context.
type HookInitOptions struct {
	// Interactive marks a terminal-attached session.
	Interactive bool

	// Server marks a server request context.
	Server bool

	// NoConfirm registers the autonomous confirmation hook that approves
	// every tool.
	NoConfirm bool

	// Allowlist restricts activation to the named hooks, replacing the
	// defaults. Falls back to the HOOK_ALLOWLIST environment variable.
	Allowlist []string

	// Extra carries mode-specific hooks contributed by the caller (the CLI
	// confirm/elicit hooks, the server rendezvous hooks, tool hooks).
	Extra []*Hook
}

func (o HookInitOptions) key() string {
	var b strings.Builder
	if o.Interactive {
		b.WriteString("i")
	}
	if o.Server {
		b.WriteString("s")
	}
	if o.NoConfirm {
		b.WriteString("n")
	}
	b.WriteString("|")
	b.WriteString(strings.Join(o.Allowlist, ","))
	b.WriteString("|")
	for _, h := range o.Extra {
		b.WriteString(string(h.Type))
		b.WriteString(":")
		b.WriteString(h.Name)
		b.WriteString(",")
	}
	return b.String()
}

// InitHooks registers the built-in hooks plus the caller's extras, honoring
// the allow-list. Registration failures log a warning and continue; they
// never abort initialization. Calling InitHooks twice with the same options
// on the same registry leaves the registry unchanged.
func InitHooks(reg *HookRegistry, opts HookInitOptions) {
	reg.mu.Lock()
	if reg.initKey == opts.key() && reg.initKey != "" {
		reg.mu.Unlock()
		return
	}
	reg.mu.Unlock()

	allowlist := opts.Allowlist
	if len(allowlist) == 0 {
		if env := os.Getenv("HOOK_ALLOWLIST"); env != "" {
			allowlist = strings.Split(env, ",")
		}
	}
	allowed := func(name string) bool {
		if len(allowlist) == 0 {
			return true
		}
		for _, a := range allowlist {
			if strings.TrimSpace(a) == name {
				return true
			}
		}
		return false
	}

	register := func(h *Hook) {
		if !allowed(h.Name) {
			return
		}
		if err := reg.Register(h); err != nil {
			reg.logger.Warn("hook registration failed", "name", h.Name, "error", err)
		}
	}

	if opts.NoConfirm {
		register(&Hook{
			Name:     "auto_confirm",
			Type:     HookToolConfirm,
			Priority: 50,
			Enabled:  true,
			Confirm: func(ctx context.Context, req *ConfirmRequest) (*ConfirmationResult, error) {
				return &ConfirmationResult{Action: ConfirmActionConfirm}, nil
			},
		})
	}

	for _, h := range opts.Extra {
		register(h)
	}

	reg.mu.Lock()
	reg.initKey = opts.key()
	reg.mu.Unlock()
}
