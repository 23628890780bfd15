// Package tools provides the built-in tools of the clawrun runtime: the
// persistent shell, file save/patch, session completion, process restart and
// structured elicitation. Each tool is declared as an agent.ToolSpec and
// contributed through the module registry in builtin.go.
package tools

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

// timeoutExitCode distinguishes a timed-out command in the result message,
// matching timeout(1).
const timeoutExitCode = 124

// killGrace is how long a timed-out shell gets between SIGTERM and SIGKILL.
const killGrace = 2 * time.Second

// ShellSession is a persistent interactive bash bound to one conversation.
// It preserves working directory and environment between commands. Commands
// are framed with a sentinel echoed after each one, carrying the exit code
// and the current directory.
type ShellSession struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   *os.File
	stdout  *os.File
	stderr  *os.File
	outScan *bufio.Scanner
	errScan *bufio.Scanner
	cwd     string
	alive   bool
	logger  *slog.Logger
}

// CommandResult is the outcome of one shell command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// NewShellSession starts a bash in the given working directory.
func NewShellSession(workdir string, logger *slog.Logger) (*ShellSession, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ShellSession{
		cwd:    workdir,
		logger: logger.With("component", "shell"),
	}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ShellSession) start() error {
	inR, inW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		outR.Close()
		outW.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	cmd := exec.Command("bash")
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.Dir = s.cwd
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{inR, inW, outR, outW, errR, errW} {
			f.Close()
		}
		return fmt.Errorf("start shell: %w", err)
	}
	// The child holds its own copies; close ours so EOF propagates.
	inR.Close()
	outW.Close()
	errW.Close()

	s.cmd = cmd
	s.stdin = inW
	s.stdout = outR
	s.stderr = errR
	s.outScan = bufio.NewScanner(outR)
	s.outScan.Buffer(make([]byte, 64*1024), 8*1024*1024)
	s.errScan = bufio.NewScanner(errR)
	s.errScan.Buffer(make([]byte, 64*1024), 8*1024*1024)
	s.alive = true
	s.logger.Debug("shell started", "pid", cmd.Process.Pid, "cwd", s.cwd)
	return nil
}

// Cwd returns the tracked working directory.
func (s *ShellSession) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Fds exposes the pipe descriptors for leak verification in tests.
func (s *ShellSession) Fds() []uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []uintptr{s.stdin.Fd(), s.stdout.Fd(), s.stderr.Fd()}
}

// Run executes one command with an optional timeout (0 disables). On timeout
// the shell process group receives SIGTERM, then SIGKILL after a grace
// period; partial output is returned with the timeout exit code and the
// session restarts on the next command. A cancelled context interrupts the
// same way.
func (s *ShellSession) Run(ctx context.Context, command string, timeout time.Duration) (*CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		if err := s.start(); err != nil {
			return nil, err
		}
	}

	sentinel := "__CLAWRUN_DONE_" + uuid.NewString() + "__"
	framed := fmt.Sprintf("%s\n__clawrun_ec=$?; echo \"%s $__clawrun_ec $PWD\"; echo \"%s\" >&2\n",
		command, sentinel, sentinel)
	if _, err := s.stdin.WriteString(framed); err != nil {
		s.teardownLocked()
		return nil, fmt.Errorf("write command: %w", err)
	}

	outCh := make(chan scanResult, 1)
	errCh := make(chan scanResult, 1)

	go func() {
		var b strings.Builder
		for s.outScan.Scan() {
			line := s.outScan.Text()
			if rest, ok := strings.CutPrefix(line, sentinel+" "); ok {
				code := 0
				cwd := s.cwd
				if fields := strings.SplitN(rest, " ", 2); len(fields) > 0 {
					code, _ = strconv.Atoi(fields[0])
					if len(fields) == 2 {
						cwd = fields[1]
					}
				}
				outCh <- scanResult{text: b.String(), exitCode: code, cwd: cwd, done: true}
				return
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		outCh <- scanResult{text: b.String()}
	}()
	go func() {
		var b strings.Builder
		for s.errScan.Scan() {
			line := s.errScan.Text()
			if line == sentinel {
				errCh <- scanResult{text: b.String(), done: true}
				return
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		errCh <- scanResult{text: b.String()}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	var out, errOut scanResult
	var timedOut, interrupted, died bool
	for !out.done || !errOut.done {
		select {
		case r := <-outCh:
			out = r
			if !r.done {
				// Pipe closed before the sentinel: the shell itself exited.
				died = true
				out.done = true
				errOut = scanResult{text: drain(errCh), done: true}
			}
		case r := <-errCh:
			errOut = r
			if !r.done {
				died = true
				errOut.done = true
				out = scanResult{text: drain(outCh), done: true}
			}
		case <-deadline:
			timedOut = true
			s.terminateLocked()
			out = scanResult{text: drain(outCh), done: true}
			errOut = scanResult{text: drain(errCh), done: true}
		case <-ctx.Done():
			interrupted = true
			s.terminateLocked()
			out = scanResult{text: drain(outCh), done: true}
			errOut = scanResult{text: drain(errCh), done: true}
		}
	}

	res := &CommandResult{
		Stdout:   out.text,
		Stderr:   errOut.text,
		ExitCode: out.exitCode,
		TimedOut: timedOut,
	}
	if died {
		// The shell's own exit code is the command's; restart next time.
		s.teardownLocked()
		if s.cmd.ProcessState != nil {
			res.ExitCode = s.cmd.ProcessState.ExitCode()
		}
	}
	if timedOut {
		res.ExitCode = timeoutExitCode
	}
	if interrupted {
		return res, agent.ErrInterrupted
	}
	if !timedOut && !died && out.cwd != "" {
		s.cwd = out.cwd
	}
	return res, nil
}

// scanResult is one pipe reader's outcome: buffered text plus, on the
// sentinel, the exit code and working directory.
type scanResult struct {
	text     string
	exitCode int
	cwd      string
	done     bool
}

// drain collects whatever the reader goroutine managed to buffer before the
// pipes were torn down.
func drain(ch chan scanResult) string {
	select {
	case r := <-ch:
		return r.text
	case <-time.After(500 * time.Millisecond):
		return ""
	}
}

// terminateLocked kills the shell gracefully then forcefully, leaving the
// session restartable.
func (s *ShellSession) terminateLocked() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	terminateProcessGroup(s.cmd, killGrace)
	s.teardownLocked()
}

func (s *ShellSession) teardownLocked() {
	for _, f := range []*os.File{s.stdin, s.stdout, s.stderr} {
		if f != nil {
			f.Close()
		}
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.alive = false
}

// Close force-closes the session and all pipe descriptors.
func (s *ShellSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	s.teardownLocked()
	s.cmd = nil
	s.logger.Debug("shell closed")
	return nil
}

// ---------- per-conversation session registry ----------

var shellSessions struct {
	mu       sync.Mutex
	sessions map[string]*ShellSession
}

// GetShellSession returns the conversation's shell, starting one on first
// use. Sessions are never shared across conversations.
func GetShellSession(conversationID, workdir string, logger *slog.Logger) (*ShellSession, error) {
	shellSessions.mu.Lock()
	defer shellSessions.mu.Unlock()
	if shellSessions.sessions == nil {
		shellSessions.sessions = make(map[string]*ShellSession)
	}
	if s, ok := shellSessions.sessions[conversationID]; ok {
		return s, nil
	}
	s, err := NewShellSession(workdir, logger)
	if err != nil {
		return nil, err
	}
	shellSessions.sessions[conversationID] = s
	return s, nil
}

// CloseShellSession tears down the conversation's shell, if any.
func CloseShellSession(conversationID string) {
	shellSessions.mu.Lock()
	s, ok := shellSessions.sessions[conversationID]
	delete(shellSessions.sessions, conversationID)
	shellSessions.mu.Unlock()
	if ok {
		s.Close()
	}
}

// ---------- working directory tracker ----------

var workdir struct {
	mu  sync.Mutex
	cwd string
}

// CurrentWorkdir returns the process-wide tracked working directory.
func CurrentWorkdir() string {
	workdir.mu.Lock()
	defer workdir.mu.Unlock()
	return workdir.cwd
}

func setWorkdir(cwd string) (changed bool) {
	workdir.mu.Lock()
	defer workdir.mu.Unlock()
	changed = workdir.cwd != "" && workdir.cwd != cwd
	workdir.cwd = cwd
	return changed
}

// ---------- shell tool ----------

// shellOptions holds the configurable knobs of the shell tool. The defaults
// stand until ConfigureShell applies the loaded configuration.
var shellOptions = struct {
	mu       sync.Mutex
	timeout  time.Duration
	readOnly map[string]bool
}{readOnly: defaultReadOnlyCommands()}

// defaultReadOnlyCommands auto-approve without a confirmation prompt.
func defaultReadOnlyCommands() map[string]bool {
	return map[string]bool{
		"ls": true, "cat": true, "head": true, "tail": true, "grep": true,
		"find": true, "pwd": true, "echo": true, "wc": true, "file": true,
		"stat": true, "du": true, "df": true, "which": true, "whoami": true,
		"date": true,
	}
}

// ConfigureShell applies the shell settings from configuration: the
// per-command timeout (0 disables) and the read-only allow-list (empty keeps
// the defaults).
func ConfigureShell(timeout time.Duration, readOnlyCommands []string) {
	shellOptions.mu.Lock()
	defer shellOptions.mu.Unlock()
	shellOptions.timeout = timeout
	if len(readOnlyCommands) > 0 {
		m := make(map[string]bool, len(readOnlyCommands))
		for _, c := range readOnlyCommands {
			m[c] = true
		}
		shellOptions.readOnly = m
	} else {
		shellOptions.readOnly = defaultReadOnlyCommands()
	}
}

func shellTimeout() time.Duration {
	shellOptions.mu.Lock()
	defer shellOptions.mu.Unlock()
	return shellOptions.timeout
}

func isReadOnlyName(name string) bool {
	shellOptions.mu.Lock()
	defer shellOptions.mu.Unlock()
	return shellOptions.readOnly[name]
}

// isReadOnlyCommand approves only when every segment of a compound command
// starts with an allow-listed name.
func isReadOnlyCommand(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	for _, line := range strings.Split(command, "\n") {
		for _, seg := range splitSegments(line) {
			fields := strings.Fields(seg)
			if len(fields) == 0 {
				continue
			}
			if !isReadOnlyName(fields[0]) {
				return false
			}
		}
	}
	return true
}

// splitSegments breaks a line on the shell operators that chain commands.
func splitSegments(line string) []string {
	replacer := strings.NewReplacer("&&", "\x00", "||", "\x00", ";", "\x00", "|", "\x00")
	return strings.Split(replacer.Replace(line), "\x00")
}

func shellTool() *agent.ToolSpec {
	return &agent.ToolSpec{
		Name:       "shell",
		Desc:       "Run commands in a persistent bash session",
		BlockTypes: []string{"shell", "bash", "sh"},
		Instructions: "Run shell commands in a session that preserves the " +
			"working directory and environment between commands.",
		Available: func() bool {
			_, err := exec.LookPath("bash")
			return err == nil
		},
		Hooks: []*agent.Hook{
			{
				// Auto-approves read-only invocations; anything else falls
				// through to the user-facing confirm hook.
				Name:     "shell_allowlist",
				Type:     agent.HookToolConfirm,
				Priority: 80,
				Enabled:  true,
				Confirm: func(ctx context.Context, req *agent.ConfirmRequest) (*agent.ConfirmationResult, error) {
					tu := req.ToolUse
					if tu == nil || tu.Tool != "shell" && tu.Tool != "bash" && tu.Tool != "sh" {
						return nil, nil
					}
					if isReadOnlyCommand(tu.Content) {
						return &agent.ConfirmationResult{Action: agent.ConfirmActionConfirm}, nil
					}
					return nil, nil
				},
			},
		},
		Execute: func(ctx context.Context, tu *agent.ToolUse, ec *agent.ExecContext) ([]agent.Message, error) {
			session, err := GetShellSession(ec.ConversationID, ec.Workspace, nil)
			if err != nil {
				return nil, err
			}
			res, err := session.Run(ctx, tu.Content, shellTimeout())
			if err != nil {
				if res != nil {
					// Interrupted: preserve partial output alongside the marker.
					return []agent.Message{agent.SystemMessage(formatCommandResult(tu.Content, res), "")}, err
				}
				return nil, err
			}
			if changed := setWorkdir(session.Cwd()); changed {
				ec.Hooks.Trigger(ctx, agent.HookToolExecutePost, &agent.HookPayload{
					Log: ec.Log, Workspace: session.Cwd(), ToolUse: tu,
					Kwargs: map[string]any{"workdir_changed": session.Cwd()},
				})
			}
			return []agent.Message{agent.SystemMessage(formatCommandResult(tu.Content, res), "")}, nil
		},
	}
}

func formatCommandResult(command string, res *CommandResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ran command:\n```bash\n%s\n```\n", strings.TrimSpace(command))
	if res.Stdout != "" {
		fmt.Fprintf(&b, "\nstdout:\n```\n%s```\n", res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprintf(&b, "\nstderr:\n```\n%s```\n", res.Stderr)
	}
	switch {
	case res.TimedOut:
		fmt.Fprintf(&b, "\nCommand timed out (exit code %d); output above is partial.\n", res.ExitCode)
	case res.ExitCode != 0:
		fmt.Fprintf(&b, "\nExit code: %d\n", res.ExitCode)
	}
	return b.String()
}
