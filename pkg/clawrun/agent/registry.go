// Package agent – registry.go implements tool discovery, allow-listing and
// initialization. Registries are context-local: a CLI session and each server
// request context own separate instances and initialize them independently.
//
// Discovery is module-based. Tool packages register a named provider at
// program start (RegisterToolModule in an init function); InitTools scans the
// modules named by TOOL_MODULES (default: all registered) and loads the specs
// selected by the allow-list.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ToolProvider returns the tool specs a module contributes.
type ToolProvider func() []*ToolSpec

var toolModules struct {
	mu        sync.Mutex
	providers map[string]ToolProvider
}

// RegisterToolModule makes a provider discoverable under a module name.
// Called from init functions of tool packages.
func RegisterToolModule(name string, provider ToolProvider) {
	toolModules.mu.Lock()
	defer toolModules.mu.Unlock()
	if toolModules.providers == nil {
		toolModules.providers = make(map[string]ToolProvider)
	}
	toolModules.providers[name] = provider
}

// availableSpecs collects specs from the named modules, or all registered
// modules when names is empty. Unknown module names log a warning and are
// skipped.
func availableSpecs(names []string, logger *slog.Logger) []*ToolSpec {
	toolModules.mu.Lock()
	providers := make(map[string]ToolProvider, len(toolModules.providers))
	for k, v := range toolModules.providers {
		providers[k] = v
	}
	toolModules.mu.Unlock()

	if len(names) == 0 {
		names = make([]string, 0, len(providers))
		for k := range providers {
			names = append(names, k)
		}
		sort.Strings(names)
	}

	var specs []*ToolSpec
	for _, name := range names {
		p, ok := providers[strings.TrimSpace(name)]
		if !ok {
			logger.Warn("unknown tool module", "module", name)
			continue
		}
		specs = append(specs, p()...)
	}
	return specs
}

// ToolRegistry holds the loaded tools of one execution context.
type ToolRegistry struct {
	mu       sync.Mutex
	loaded   []*ToolSpec          // allow-list order
	byName   map[string]*ToolSpec
	byBlock  map[string]*ToolSpec
	commands map[string]CommandFunc
	initKey  string
	logger   *slog.Logger
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRegistry{
		byName:   make(map[string]*ToolSpec),
		byBlock:  make(map[string]*ToolSpec),
		commands: make(map[string]CommandFunc),
		logger:   logger.With("component", "tools"),
	}
}

// InitOptions selects which tools to load.
type InitOptions struct {
	// Allowlist names the tools to load, in order. Empty loads every
	// discovered tool that is available and not disabled by default.
	Allowlist []string

	// Modules names the tool modules to scan. Empty scans all registered.
	Modules []string
}

func (o InitOptions) key() string {
	return strings.Join(o.Allowlist, ",") + "|" + strings.Join(o.Modules, ",")
}

// InitTools discovers, filters and initializes tools. Calling it again with
// the same options on the same registry is a no-op. An allow-listed tool that
// does not exist fails fast; an unavailable tool is skipped with a warning.
// Tool-declared hooks are registered with the given hook registry, and
// tool-declared commands land in the slash-command table.
func (r *ToolRegistry) InitTools(ctx context.Context, opts InitOptions, hooks *HookRegistry) error {
	r.mu.Lock()
	if r.initKey == opts.key() && r.initKey != "" {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	discovered := availableSpecs(opts.Modules, r.logger)
	byName := make(map[string]*ToolSpec, len(discovered))
	for _, s := range discovered {
		if _, dup := byName[s.Name]; dup {
			return fmt.Errorf("duplicate tool name %q", s.Name)
		}
		byName[s.Name] = s
	}

	var selected []*ToolSpec
	if len(opts.Allowlist) > 0 {
		for _, name := range opts.Allowlist {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			s, ok := byName[name]
			if !ok {
				return fmt.Errorf("unknown tool in allowlist: %q", name)
			}
			if !s.IsAvailable() {
				r.logger.Warn("tool unavailable, skipping", "tool", name)
				continue
			}
			selected = append(selected, s)
		}
	} else {
		for _, s := range discovered {
			if s.DisabledByDefault {
				continue
			}
			if !s.IsAvailable() {
				r.logger.Warn("tool unavailable, skipping", "tool", s.Name)
				continue
			}
			selected = append(selected, s)
		}
	}

	loaded := make([]*ToolSpec, 0, len(selected))
	nameIdx := make(map[string]*ToolSpec, len(selected))
	blockIdx := make(map[string]*ToolSpec)
	commands := make(map[string]CommandFunc)
	for _, s := range selected {
		if s.Init != nil {
			replacement, err := s.Init(ctx)
			if err != nil {
				r.logger.Warn("tool init failed, skipping", "tool", s.Name, "error", err)
				continue
			}
			if replacement != nil {
				s = replacement
			}
		}
		loaded = append(loaded, s)
		nameIdx[s.Name] = s
		blockIdx[s.Name] = s
		for _, bt := range s.BlockTypes {
			blockIdx[bt] = s
		}
		for cmd, fn := range s.Commands {
			commands[cmd] = fn
		}
		if hooks != nil {
			for _, h := range s.Hooks {
				if err := hooks.Register(h); err != nil {
					r.logger.Warn("tool hook registration failed",
						"tool", s.Name, "hook", h.Name, "error", err)
				}
			}
		}
		r.logger.Debug("tool loaded", "tool", s.Name, "mcp", s.IsMCP)
	}

	r.mu.Lock()
	r.loaded = loaded
	r.byName = nameIdx
	r.byBlock = blockIdx
	r.commands = commands
	r.initKey = opts.key()
	r.mu.Unlock()
	return nil
}

// Tools returns the loaded tools in allow-list order.
func (r *ToolRegistry) Tools() []*ToolSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ToolSpec, len(r.loaded))
	copy(out, r.loaded)
	return out
}

// Resolve looks up a tool by name or block-type tag.
func (r *ToolRegistry) Resolve(name string) (*ToolSpec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byName[name]; ok {
		return s, true
	}
	s, ok := r.byBlock[name]
	return s, ok
}

// ResolveBlockType looks up a tool by markdown info-string tag only.
func (r *ToolRegistry) ResolveBlockType(tag string) (*ToolSpec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byBlock[tag]
	return s, ok
}

// Get looks up a tool strictly by name.
func (r *ToolRegistry) Get(name string) (*ToolSpec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byName[name]
	return s, ok
}

// Command looks up a slash command contributed by a loaded tool.
func (r *ToolRegistry) Command(name string) (CommandFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.commands[name]
	return fn, ok
}
