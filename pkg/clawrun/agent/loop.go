// Package agent – loop.go is the turn/step state machine. A turn is one user
// prompt and its full response; each step is one LLM generation plus the
// execution of whatever tools it emitted. Hooks fire at every phase boundary
// and the loop.continue hook decides whether to auto-step again.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// State names the loop phase, for observability.
type State string

const (
	StateIdle          State = "idle"
	StateTurnStarting  State = "turn_starting"
	StateStepPrep      State = "step_prep"
	StateGenerating    State = "generating"
	StateGenerated     State = "generated"
	StateParsing       State = "parsing"
	StateExecutingTool State = "executing_tool"
	StateStepDone      State = "step_done"
	StateTurnDone      State = "turn_done"
)

// Provider streams assistant completions. onToken receives tokens as they
// arrive; the returned message is the full generation. A cancelled context
// returns the partial message with ErrInterrupted or context.Canceled.
type Provider interface {
	Generate(ctx context.Context, msgs []Message, onToken func(token string)) (Message, error)
}

// EventFunc receives loop events for UI consumption (the server bridges
// these onto the SSE stream).
type EventFunc func(event string, data map[string]any)

// ManagerOptions configures a conversation manager.
type ManagerOptions struct {
	ConversationID string
	Workspace      string

	Interactive bool
	Server      bool
	NoConfirm   bool

	// MaxSteps bounds auto-stepping within one turn; 0 is open-ended.
	MaxSteps int

	// BreakOnToolUse executes only the first runnable tool per step. Nil
	// reads GPTME_BREAK_ON_TOOLUSE (default: single-tool mode).
	BreakOnToolUse *bool

	// HookAllowlist and ExtraHooks pass through to InitHooks.
	HookAllowlist []string
	ExtraHooks    []*Hook

	// ToolAllowlist and ToolModules pass through to InitTools. Empty
	// allow-list falls back to TOOL_ALLOWLIST, empty modules to
	// TOOL_MODULES.
	ToolAllowlist []string
	ToolModules   []string
}

// Manager drives one conversation: it owns the context-local registries, the
// log, the cache tracker and the prompt queue.
type Manager struct {
	opts     ManagerOptions
	provider Provider
	log      *LogManager
	hooks    *HookRegistry
	tools    *ToolRegistry
	cache    *CacheState
	logger   *slog.Logger

	// OnEvent, when set, receives loop events (generation_started,
	// message_added, interrupted, …).
	OnEvent EventFunc

	mu             sync.Mutex
	state          State
	promptQueue    []string
	autoReplies    int
	sessionStarted bool
	breakOnToolUse bool
}

// NewManager builds a manager and initializes its context-local registries.
func NewManager(ctx context.Context, provider Provider, log *LogManager, opts ManagerOptions, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		opts:     opts,
		provider: provider,
		log:      log,
		hooks:    NewHookRegistry(logger),
		tools:    NewToolRegistry(logger),
		cache:    NewCacheState(),
		logger:   logger.With("component", "loop", "conversation", opts.ConversationID),
		state:    StateIdle,
	}

	if opts.BreakOnToolUse != nil {
		m.breakOnToolUse = *opts.BreakOnToolUse
	} else {
		m.breakOnToolUse = os.Getenv("GPTME_BREAK_ON_TOOLUSE") != "0"
	}

	extra := append([]*Hook{}, opts.ExtraHooks...)
	extra = append(extra, m.cache.Hooks()...)
	extra = append(extra, m.autoReplyHook())
	InitHooks(m.hooks, HookInitOptions{
		Interactive: opts.Interactive,
		Server:      opts.Server,
		NoConfirm:   opts.NoConfirm,
		Allowlist:   opts.HookAllowlist,
		Extra:       extra,
	})

	toolAllow := opts.ToolAllowlist
	if len(toolAllow) == 0 {
		toolAllow = splitEnvList("TOOL_ALLOWLIST")
	}
	toolModules := opts.ToolModules
	if len(toolModules) == 0 {
		toolModules = splitEnvList("TOOL_MODULES")
	}
	if err := m.tools.InitTools(ctx, InitOptions{Allowlist: toolAllow, Modules: toolModules}, m.hooks); err != nil {
		return nil, fmt.Errorf("init tools: %w", err)
	}
	return m, nil
}

// Accessors for hooks, tools and state owned by this conversation.
func (m *Manager) Hooks() *HookRegistry { return m.hooks }
func (m *Manager) Tools() *ToolRegistry { return m.tools }
func (m *Manager) Log() *LogManager     { return m.log }
func (m *Manager) Cache() *CacheState   { return m.cache }
func (m *Manager) Workspace() string    { return m.opts.Workspace }
func (m *Manager) ConversationID() string { return m.opts.ConversationID }

// State returns the current loop phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// EnqueuePrompt queues a user prompt for a future turn.
func (m *Manager) EnqueuePrompt(prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptQueue = append(m.promptQueue, prompt)
}

// DequeuePrompt pops the next queued prompt.
func (m *Manager) DequeuePrompt() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.promptQueue) == 0 {
		return "", false
	}
	p := m.promptQueue[0]
	m.promptQueue = m.promptQueue[1:]
	return p, true
}

// PromptQueueLen returns the number of queued prompts.
func (m *Manager) PromptQueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.promptQueue)
}

func (m *Manager) emit(event string, data map[string]any) {
	if m.OnEvent != nil {
		m.OnEvent(event, data)
	}
}

func (m *Manager) appendMessage(msg Message) {
	m.log.Append(msg)
	m.emit("message_added", map[string]any{"message": msg})
}

// EnqueueNotice appends a system notice to the log.
func (m *Manager) EnqueueNotice(content string) {
	m.appendMessage(SystemMessage(content, ""))
}

// Close tears down the conversation: session.end hooks fire, the shell
// session and log are released.
func (m *Manager) Close(ctx context.Context) error {
	msgs, err := m.hooks.Trigger(ctx, HookSessionEnd, &HookPayload{Manager: m})
	for _, msg := range msgs {
		m.appendMessage(msg)
	}
	if err != nil && !IsSessionComplete(err) {
		m.logger.Warn("session.end hook error", "error", err)
	}
	return m.log.Close()
}

// RunTurn executes one user turn through the step loop. A nil error includes
// clean interruption; SessionCompleteError is returned when the session
// ended so the caller can tear down.
func (m *Manager) RunTurn(ctx context.Context, userMsg string, files []string) error {
	if err := m.ensureSessionStarted(ctx); err != nil {
		return m.finishTurn(ctx, err)
	}

	m.setState(StateTurnStarting)
	if userMsg != "" {
		msg := NewMessage(RoleUser, userMsg)
		msg.Files = files
		m.appendMessage(msg)
	}
	if err := m.fireLifecycle(ctx, HookTurnPre); err != nil {
		return m.finishTurn(ctx, err)
	}

	steps := 0
	for {
		steps++
		if m.opts.MaxSteps > 0 && steps > m.opts.MaxSteps {
			m.logger.Info("step budget exceeded", "steps", steps-1)
			break
		}
		again, err := m.runStep(ctx)
		if err != nil {
			return m.finishTurn(ctx, err)
		}
		if !again || ctx.Err() != nil {
			break
		}
	}
	return m.finishTurn(ctx, nil)
}

// finishTurn fires turn.post and returns to IDLE. Session completion passes
// through to the caller; other errors were already surfaced as messages.
func (m *Manager) finishTurn(ctx context.Context, err error) error {
	m.setState(StateTurnDone)
	// turn.post fires even on session completion so farewell hooks run.
	if msgs, hookErr := m.hooks.Trigger(context.WithoutCancel(ctx), HookTurnPost, &HookPayload{Manager: m}); hookErr == nil || !IsSessionComplete(hookErr) {
		for _, msg := range msgs {
			m.appendMessage(msg)
		}
	}
	m.setState(StateIdle)
	if IsSessionComplete(err) {
		m.logger.Info("session complete", "reason", err.Error())
		return err
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrInterrupted) {
		return err
	}
	return nil
}

// runStep performs one generate-and-execute cycle. It reports whether the
// loop should run another step.
func (m *Manager) runStep(ctx context.Context) (bool, error) {
	m.setState(StateStepPrep)
	if err := m.fireLifecycle(ctx, HookStepPre); err != nil {
		return false, err
	}

	// generation.pre messages are prepended to the prompt for this
	// generation only; they are not persisted.
	prompt := m.log.Messages()
	preamble, err := m.hooks.Trigger(ctx, HookGenerationPre, &HookPayload{
		Manager: m, Messages: prompt,
	})
	if err != nil {
		return false, err
	}
	if len(preamble) > 0 {
		prompt = append(append([]Message{}, preamble...), prompt...)
	}

	m.setState(StateGenerating)
	m.emit("generation_started", nil)
	assistant, genErr := m.provider.Generate(ctx, prompt, func(token string) {
		m.emit("generation_progress", map[string]any{"token": token})
	})
	if genErr != nil {
		if errors.Is(genErr, context.Canceled) || errors.Is(genErr, ErrInterrupted) {
			m.recordInterrupt(assistant)
			return false, genErr
		}
		m.appendMessage(SystemMessage(fmt.Sprintf("Generation failed: %v", genErr), ""))
		m.emit("error", map[string]any{"error": genErr.Error()})
		return false, nil
	}

	m.setState(StateGenerated)
	post, err := m.hooks.Trigger(ctx, HookGenerationPost, &HookPayload{
		Manager: m, Message: &assistant,
	})
	if err != nil {
		return false, err
	}
	assistant = m.hooks.Transform(ctx, assistant)
	m.appendMessage(assistant)
	m.emit("generation_complete", map[string]any{"message": assistant})
	for _, msg := range post {
		m.appendMessage(msg)
	}

	m.setState(StateParsing)
	uses := ExtractToolUses(assistant.Content, m.tools, assistant.ToolCalls)
	ranTools, err := m.executeTools(ctx, uses)
	if err != nil {
		return false, err
	}
	if ranTools {
		m.mu.Lock()
		m.autoReplies = 0
		m.mu.Unlock()
	}

	m.setState(StateStepDone)
	if err := m.fireLifecycle(ctx, HookStepPost); err != nil {
		return false, err
	}

	injected, err := m.loopContinue(ctx)
	if err != nil {
		return false, err
	}
	return ranTools || injected, nil
}

// executeTools runs the runnable tool uses in textual order. In single-tool
// mode only the first runnable tool executes; a declined confirmation or an
// interrupt ends the sequence early.
func (m *Manager) executeTools(ctx context.Context, uses []ToolUse) (bool, error) {
	ran := false
	for i := range uses {
		tu := &uses[i]
		if !tu.Runnable(m.tools) {
			continue
		}
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		m.setState(StateExecutingTool)
		ec := &ExecContext{
			Log:            m.log,
			Workspace:      m.opts.Workspace,
			Hooks:          m.hooks,
			Tools:          m.tools,
			ConversationID: m.opts.ConversationID,
		}
		msgs, err := ExecuteToolUse(ctx, tu, ec)
		declined := false
		for _, msg := range msgs {
			m.appendMessage(msg)
			if msg.Role == RoleSystem && strings.HasPrefix(msg.Content, "Declined") {
				declined = true
			}
		}
		if err != nil {
			return ran, err
		}
		ran = true
		if declined {
			break
		}
		if m.breakOnToolUse {
			break
		}
	}
	return ran, nil
}

// loopContinue fires loop.continue hooks; yielded messages are synthetic
// user prompts appended to the log, which force another step.
func (m *Manager) loopContinue(ctx context.Context) (bool, error) {
	msgs, err := m.hooks.Trigger(ctx, HookLoopContinue, &HookPayload{
		Manager:     m,
		Interactive: m.opts.Interactive,
		PromptQueue: m.PromptQueueLen(),
	})
	if err != nil {
		return false, err
	}
	for _, msg := range msgs {
		m.appendMessage(msg)
	}
	return len(msgs) > 0, nil
}

// autoReplyHook keeps autonomous sessions moving: a tool-free assistant
// message gets a synthetic user nudge, and repeated tool-free messages end
// the session rather than looping idle.
func (m *Manager) autoReplyHook() *Hook {
	return &Hook{
		Name:    "auto_reply",
		Type:    HookLoopContinue,
		Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			if p.Interactive || p.PromptQueue > 0 {
				return HookResult{}, nil
			}
			last, ok := m.log.Last()
			if !ok || last.Role != RoleAssistant {
				return HookResult{}, nil
			}
			if hasRunnable(ExtractToolUses(last.Content, m.tools, last.ToolCalls), m.tools) {
				return HookResult{}, nil
			}
			m.mu.Lock()
			m.autoReplies++
			n := m.autoReplies
			m.mu.Unlock()
			if n > 2 {
				return HookResult{}, &SessionCompleteError{Reason: "no tool use after repeated prompts"}
			}
			nudge := NewMessage(RoleUser, "Please continue working, or run the `complete` tool if the task is finished.")
			nudge.Quiet = true
			return HookResult{Messages: []Message{nudge}}, nil
		},
	}
}

func (m *Manager) ensureSessionStarted(ctx context.Context) error {
	m.mu.Lock()
	started := m.sessionStarted
	m.sessionStarted = true
	m.mu.Unlock()
	if started {
		return nil
	}
	msgs, err := m.hooks.Trigger(ctx, HookSessionStart, &HookPayload{
		Manager:     m,
		LogDir:      m.log.Dir(),
		Workspace:   m.opts.Workspace,
		InitialMsgs: m.log.Messages(),
	})
	for _, msg := range msgs {
		m.appendMessage(msg)
	}
	return err
}

// fireLifecycle triggers a manager-scoped hook type and appends yielded
// messages to the log.
func (m *Manager) fireLifecycle(ctx context.Context, t HookType) error {
	msgs, err := m.hooks.Trigger(ctx, t, &HookPayload{Manager: m})
	for _, msg := range msgs {
		m.appendMessage(msg)
	}
	return err
}

func (m *Manager) recordInterrupt(partial Message) {
	if partial.Content != "" {
		m.appendMessage(partial)
	}
	m.appendMessage(SystemMessage(InterruptContent, ""))
	m.emit("interrupted", nil)
	m.logger.Info("generation interrupted")
}

func hasRunnable(uses []ToolUse, reg *ToolRegistry) bool {
	for i := range uses {
		if uses[i].Runnable(reg) {
			return true
		}
	}
	return false
}

func splitEnvList(name string) []string {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
