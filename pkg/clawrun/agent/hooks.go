// Package agent – hooks.go implements the lifecycle hook registry woven
// through every phase of a turn. Hooks are named, priority-ordered callbacks
// bound to a closed set of dot-namespaced event types; dispatch yields
// messages back to the caller and supports stop-propagation.
//
// Hook types:
//
//	session.start / session.end        - conversation lifecycle
//	turn.pre / turn.post               - around one user turn
//	step.pre / step.post               - around each generate-and-execute cycle
//	generation.pre / generation.post   - around each LLM call
//	message.transform                  - rewrite a stored assistant message
//	tool.execute.pre / .post           - around each tool run
//	tool.transform                     - intercept tool I/O
//	file.save.pre / .post              - around file writes
//	file.patch.pre / .post             - around file patches
//	loop.continue                      - decide whether to auto-step again
//	cache.invalidated                  - explicit prompt-cache reset
//	tool.confirm                       - tool approval (value-returning)
//	elicit                             - structured user input (value-returning)
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
)

// HookType identifies the lifecycle point at which a hook fires.
type HookType string

const (
	HookSessionStart     HookType = "session.start"
	HookSessionEnd       HookType = "session.end"
	HookTurnPre          HookType = "turn.pre"
	HookTurnPost         HookType = "turn.post"
	HookStepPre          HookType = "step.pre"
	HookStepPost         HookType = "step.post"
	HookGenerationPre    HookType = "generation.pre"
	HookGenerationPost   HookType = "generation.post"
	HookMessageTransform HookType = "message.transform"
	HookToolExecutePre   HookType = "tool.execute.pre"
	HookToolExecutePost  HookType = "tool.execute.post"
	HookToolTransform    HookType = "tool.transform"
	HookFileSavePre      HookType = "file.save.pre"
	HookFileSavePost     HookType = "file.save.post"
	HookFilePatchPre     HookType = "file.patch.pre"
	HookFilePatchPost    HookType = "file.patch.post"
	HookLoopContinue     HookType = "loop.continue"
	HookCacheInvalidated HookType = "cache.invalidated"
	HookToolConfirm      HookType = "tool.confirm"
	HookElicit           HookType = "elicit"
)

// AllHookTypes lists every supported hook type for validation and discovery.
var AllHookTypes = []HookType{
	HookSessionStart, HookSessionEnd,
	HookTurnPre, HookTurnPost,
	HookStepPre, HookStepPost,
	HookGenerationPre, HookGenerationPost,
	HookMessageTransform,
	HookToolExecutePre, HookToolExecutePost, HookToolTransform,
	HookFileSavePre, HookFileSavePost,
	HookFilePatchPre, HookFilePatchPost,
	HookLoopContinue,
	HookCacheInvalidated,
	HookToolConfirm, HookElicit,
}

// ValidHookType reports whether t is a known hook type.
func ValidHookType(t HookType) bool {
	for _, known := range AllHookTypes {
		if known == t {
			return true
		}
	}
	return false
}

// HookPayload carries contextual data for a hook invocation. Fields are
// populated based on the hook type; unused fields are zero-valued.
type HookPayload struct {
	// Manager is the turn-loop manager (most lifecycle hooks).
	Manager *Manager

	// Log and Workspace accompany tool and file hooks.
	Log       *LogManager
	Workspace string

	// Messages is the prompt about to be sent (generation.pre).
	Messages []Message

	// Message is the generated or stored message
	// (generation.post, message.transform).
	Message *Message

	// ToolUse is the parsed invocation (tool.execute.pre/post, tool.transform).
	ToolUse *ToolUse

	// Path, FileContent and Created accompany file.save / file.patch hooks.
	Path        string
	FileContent string
	Created     bool

	// Reason, TokensBefore and TokensAfter accompany cache.invalidated.
	Reason       string
	TokensBefore int
	TokensAfter  int

	// Interactive and PromptQueue accompany loop.continue.
	Interactive bool
	PromptQueue int

	// LogDir and InitialMsgs accompany session.start.
	LogDir      string
	InitialMsgs []Message

	// Kwargs holds free-form extras for extensibility.
	Kwargs map[string]any
}

// HookResult is what a sync hook returns to the dispatcher.
type HookResult struct {
	// Messages are yielded back to the trigger caller in order.
	Messages []Message

	// Stop terminates dispatch for this trigger; remaining hooks are skipped.
	// Messages yielded before the stop are still delivered.
	Stop bool

	// Replacement carries the substituted message for message.transform.
	Replacement *Message
}

// HookFunc processes a lifecycle event. Errors are logged and swallowed by
// dispatch, except SessionCompleteError which is always re-raised.
type HookFunc func(ctx context.Context, p *HookPayload) (HookResult, error)

// ConfirmFunc decides whether a tool may run. A nil result falls through to
// the next tool.confirm hook in priority order.
type ConfirmFunc func(ctx context.Context, req *ConfirmRequest) (*ConfirmationResult, error)

// ElicitFunc answers a structured-input request. A nil response falls through.
type ElicitFunc func(ctx context.Context, req *ElicitationRequest) (*ElicitationResponse, error)

// Hook is a registered callback. Exactly one of Func, Confirm or Elicit is
// set, matching the hook type.
type Hook struct {
	Name     string
	Type     HookType
	Priority int // higher runs first; lexical name breaks ties
	Enabled  bool
	Async    bool // run detached; yielded messages are logged, never delivered

	Func    HookFunc
	Confirm ConfirmFunc
	Elicit  ElicitFunc
}

// HookRegistry maps hook types to ordered hook lists. It is context-local:
// each logical execution context (a CLI session, a server request) owns its
// own registry and must initialize it before use.
type HookRegistry struct {
	mu      sync.Mutex
	hooks   map[HookType][]*Hook
	initKey string // set by InitHooks so re-init with the same options is a no-op
	logger  *slog.Logger
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry(logger *slog.Logger) *HookRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &HookRegistry{
		hooks:  make(map[HookType][]*Hook, len(AllHookTypes)),
		logger: logger.With("component", "hooks"),
	}
}

// Register adds a hook. Registering the same name under the same type
// replaces the previous binding; an unknown hook type is a programmer error
// and fails loudly.
func (r *HookRegistry) Register(h *Hook) error {
	if h == nil {
		return fmt.Errorf("hook must not be nil")
	}
	if !ValidHookType(h.Type) {
		return fmt.Errorf("unknown hook type %q", h.Type)
	}
	if h.Name == "" {
		return fmt.Errorf("hook must have a name")
	}
	switch h.Type {
	case HookToolConfirm:
		if h.Confirm == nil {
			return fmt.Errorf("hook %q: tool.confirm hooks need a Confirm func", h.Name)
		}
	case HookElicit:
		if h.Elicit == nil {
			return fmt.Errorf("hook %q: elicit hooks need an Elicit func", h.Name)
		}
	default:
		if h.Func == nil {
			return fmt.Errorf("hook %q: missing Func", h.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.hooks[h.Type]
	replaced := false
	for i, existing := range list {
		if existing.Name == h.Name {
			list[i] = h
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, h)
	}
	r.hooks[h.Type] = list

	r.logger.Debug("hook registered",
		"name", h.Name, "type", h.Type, "priority", h.Priority, "replaced", replaced)
	return nil
}

// Unregister removes a hook by name. With no types given, the name is removed
// from every type.
func (r *HookRegistry) Unregister(name string, types ...HookType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	scope := types
	if len(scope) == 0 {
		scope = AllHookTypes
	}
	found := false
	for _, t := range scope {
		list := r.hooks[t]
		filtered := list[:0]
		for _, h := range list {
			if h.Name == name {
				found = true
				continue
			}
			filtered = append(filtered, h)
		}
		r.hooks[t] = filtered
	}
	return found
}

// Enable activates a hook by name across all types.
func (r *HookRegistry) Enable(name string) bool { return r.setEnabled(name, true) }

// Disable deactivates a hook by name across all types.
func (r *HookRegistry) Disable(name string) bool { return r.setEnabled(name, false) }

func (r *HookRegistry) setEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for _, list := range r.hooks {
		for _, h := range list {
			if h.Name == name {
				h.Enabled = enabled
				found = true
			}
		}
	}
	return found
}

// Clear removes all hooks, or only those of the given types.
func (r *HookRegistry) Clear(types ...HookType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(types) == 0 {
		r.hooks = make(map[HookType][]*Hook, len(AllHookTypes))
		r.initKey = ""
		return
	}
	for _, t := range types {
		delete(r.hooks, t)
	}
}

// Hooks returns the hooks for a type in dispatch order: descending priority,
// ascending name for ties.
func (r *HookRegistry) Hooks(t HookType) []*Hook {
	r.mu.Lock()
	list := make([]*Hook, len(r.hooks[t]))
	copy(list, r.hooks[t])
	r.mu.Unlock()

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority > list[j].Priority
		}
		return list[i].Name < list[j].Name
	})
	return list
}

// Count returns the total number of registered hooks.
func (r *HookRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, list := range r.hooks {
		total += len(list)
	}
	return total
}

// Trigger fires all hooks for a type and returns the messages they yielded,
// in dispatch order. Individual hook failures are logged with a stack trace
// and skipped; SessionCompleteError is re-raised immediately. A hook result
// with Stop set ends dispatch after delivering that hook's messages. Context
// cancellation stops dispatch between hooks without error.
func (r *HookRegistry) Trigger(ctx context.Context, t HookType, p *HookPayload) ([]Message, error) {
	out, _, err := r.TriggerStopped(ctx, t, p)
	return out, err
}

// TriggerStopped is Trigger plus a report of whether a hook ended dispatch
// with Stop, for call sites that treat stop-propagation as an abort (the tool
// executor's pre-execution phase).
func (r *HookRegistry) TriggerStopped(ctx context.Context, t HookType, p *HookPayload) ([]Message, bool, error) {
	if p == nil {
		p = &HookPayload{}
	}
	var out []Message
	for _, h := range r.Hooks(t) {
		if !h.Enabled {
			continue
		}
		if ctx.Err() != nil {
			return out, false, nil
		}
		if h.Async {
			r.runAsync(h, p)
			continue
		}

		res, err := r.runHook(ctx, h, p)
		if err != nil {
			if IsSessionComplete(err) {
				return out, false, err
			}
			// Already logged by runHook; dispatch continues.
			continue
		}
		out = append(out, res.Messages...)
		if res.Stop {
			r.logger.Debug("hook stopped propagation", "name", h.Name, "type", t)
			return out, true, nil
		}
	}
	return out, false, nil
}

// Transform runs message.transform hooks over a message, threading each
// replacement into the next hook. The final message is returned.
func (r *HookRegistry) Transform(ctx context.Context, msg Message) Message {
	current := msg
	for _, h := range r.Hooks(HookMessageTransform) {
		if !h.Enabled || h.Async {
			continue
		}
		res, err := r.runHook(ctx, h, &HookPayload{Message: &current})
		if err != nil {
			continue
		}
		if res.Replacement != nil {
			current = *res.Replacement
		}
		if res.Stop {
			break
		}
	}
	return current
}

// runHook invokes one sync hook with panic recovery. Non-session-complete
// errors are logged here.
func (r *HookRegistry) runHook(ctx context.Context, h *Hook, p *HookPayload) (res HookResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("hook panicked",
				"name", h.Name, "type", h.Type, "panic", rec,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("hook %q panicked: %v", h.Name, rec)
		}
	}()
	res, err = h.Func(ctx, p)
	if err != nil && !IsSessionComplete(err) {
		r.logger.Error("hook failed",
			"name", h.Name, "type", h.Type, "error", err,
			"stack", string(debug.Stack()))
	}
	return res, err
}

// runAsync launches a hook on a detached goroutine. Its messages are logged,
// never yielded; a session-complete signal from an async hook is logged with
// a warning but cannot abort the main flow.
func (r *HookRegistry) runAsync(h *Hook, p *HookPayload) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("async hook panicked", "name", h.Name, "panic", rec)
			}
		}()
		res, err := h.Func(context.Background(), p)
		if err != nil {
			if IsSessionComplete(err) {
				r.logger.Warn("async hook signalled session complete; ignored",
					"name", h.Name)
				return
			}
			r.logger.Error("async hook failed", "name", h.Name, "error", err)
			return
		}
		for _, m := range res.Messages {
			r.logger.Info("async hook message", "name", h.Name, "content", m.Content)
		}
	}()
}
