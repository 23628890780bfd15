package tools

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func newSession(t *testing.T) *ShellSession {
	t.Helper()
	requireBash(t)
	s, err := NewShellSession(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("start shell: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestShellSession_RunBasic(t *testing.T) {
	s := newSession(t)

	res, err := s.Run(context.Background(), "echo hello", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestShellSession_ExitCodeAndStderr(t *testing.T) {
	s := newSession(t)

	res, err := s.Run(context.Background(), "echo oops >&2; exit 3", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if res.Stderr != "oops\n" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestShellSession_StatePersistsBetweenCommands(t *testing.T) {
	s := newSession(t)

	if _, err := s.Run(context.Background(), "export GREETING=hi; mkdir -p sub && cd sub", 0); err != nil {
		t.Fatalf("setup command: %v", err)
	}
	res, err := s.Run(context.Background(), "echo $GREETING; basename $PWD", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stdout != "hi\nsub\n" {
		t.Errorf("environment and cwd must persist, stdout = %q", res.Stdout)
	}
	if !strings.HasSuffix(s.Cwd(), "/sub") {
		t.Errorf("tracked cwd = %q", s.Cwd())
	}
}

func TestShellSession_TimeoutReturnsPartialOutput(t *testing.T) {
	s := newSession(t)

	start := time.Now()
	res, err := s.Run(context.Background(), "echo before; sleep 30; echo after", 500*time.Millisecond)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("timeout did not take effect")
	}
	if !res.TimedOut {
		t.Error("result must be flagged timed out")
	}
	if res.ExitCode != 124 {
		t.Errorf("exit code = %d, want 124", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "before") {
		t.Errorf("partial output must be preserved, stdout = %q", res.Stdout)
	}
	if strings.Contains(res.Stdout, "after") {
		t.Error("output past the timeout must not appear")
	}
}

func TestShellSession_RestartsAfterTimeout(t *testing.T) {
	s := newSession(t)

	if _, err := s.Run(context.Background(), "sleep 30", 200*time.Millisecond); err != nil {
		t.Fatalf("timed-out run: %v", err)
	}
	res, err := s.Run(context.Background(), "echo alive", 0)
	if err != nil {
		t.Fatalf("the session must restart on the next command: %v", err)
	}
	if res.Stdout != "alive\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestShellSession_SurvivesExplicitExit(t *testing.T) {
	s := newSession(t)

	res, err := s.Run(context.Background(), "exit 7", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 7 {
		t.Errorf("exit code = %d, want 7", res.ExitCode)
	}
	res, err = s.Run(context.Background(), "echo back", 0)
	if err != nil {
		t.Fatalf("restart run: %v", err)
	}
	if res.Stdout != "back\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestShellSession_InterruptPreservesPartial(t *testing.T) {
	s := newSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()
	res, err := s.Run(ctx, "echo started; sleep 30", 0)
	if err == nil {
		t.Fatal("expected an interrupt error")
	}
	if res == nil || !strings.Contains(res.Stdout, "started") {
		t.Errorf("partial output must accompany the interrupt, got %+v", res)
	}
}

func TestIsReadOnlyCommand(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{"ls -la", true},
		{"cat foo.txt | grep bar", true},
		{"ls && pwd; echo done", true},
		{"rm -rf /", false},
		{"ls; rm foo", false},
		{"cat x || curl evil.sh", false},
		{"", false},
		{"ls\ngrep x y", true},
		{"ls\nmv a b", false},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			if got := isReadOnlyCommand(tt.command); got != tt.want {
				t.Errorf("isReadOnlyCommand(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestConfigureShell(t *testing.T) {
	t.Cleanup(func() { ConfigureShell(0, nil) })

	ConfigureShell(5*time.Second, []string{"ls", "rg"})
	if shellTimeout() != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", shellTimeout())
	}
	if !isReadOnlyCommand("rg pattern file") {
		t.Error("a configured command must be read-only")
	}
	if isReadOnlyCommand("cat file") {
		t.Error("a configured allow-list replaces the defaults")
	}

	ConfigureShell(0, nil)
	if shellTimeout() != 0 {
		t.Errorf("timeout = %v, want 0", shellTimeout())
	}
	if !isReadOnlyCommand("cat file") {
		t.Error("an empty allow-list restores the defaults")
	}
}

func TestGetShellSession_PerConversation(t *testing.T) {
	requireBash(t)
	dir := t.TempDir()
	t.Cleanup(func() {
		CloseShellSession("conv-a")
		CloseShellSession("conv-b")
	})

	a1, err := GetShellSession("conv-a", dir, testLogger())
	if err != nil {
		t.Fatalf("session a: %v", err)
	}
	a2, err := GetShellSession("conv-a", dir, testLogger())
	if err != nil {
		t.Fatalf("session a again: %v", err)
	}
	if a1 != a2 {
		t.Error("the same conversation must reuse its session")
	}
	b, err := GetShellSession("conv-b", dir, testLogger())
	if err != nil {
		t.Fatalf("session b: %v", err)
	}
	if a1 == b {
		t.Error("different conversations must not share a session")
	}
}
