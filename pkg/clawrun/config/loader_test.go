package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CLAWRUN_TEST_SET", "value")
	os.Unsetenv("CLAWRUN_TEST_UNSET")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"braced set", "key: ${CLAWRUN_TEST_SET}", "key: value", false},
		{"bare set", "key: $CLAWRUN_TEST_SET", "key: value", false},
		{"default used when unset", "key: ${CLAWRUN_TEST_UNSET:-fallback}", "key: fallback", false},
		{"default ignored when set", "key: ${CLAWRUN_TEST_SET:-fallback}", "key: value", false},
		{"required set", "key: ${CLAWRUN_TEST_SET:?needed}", "key: value", false},
		{"required unset errors", "key: ${CLAWRUN_TEST_UNSET:?api key needed}", "", true},
		{"unknown left alone", "key: ${CLAWRUN_TEST_UNSET}", "key: ${CLAWRUN_TEST_UNSET}", false},
		{"no references", "key: plain", "key: plain", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandEnvVars_RequiredErrorNamesVariable(t *testing.T) {
	os.Unsetenv("CLAWRUN_TEST_UNSET")
	_, err := expandEnvVars("${CLAWRUN_TEST_UNSET:?set me}")
	if err == nil || !strings.Contains(err.Error(), "CLAWRUN_TEST_UNSET") {
		t.Errorf("error must name the variable, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("CLAWRUN_TEST_WS", "/srv/agent")
	dir := t.TempDir()
	path := filepath.Join(dir, "clawrun.yaml")
	content := "workspace: ${CLAWRUN_TEST_WS}\nlogs_dir: logs\nagent:\n  max_steps: 7\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workspace != "/srv/agent" {
		t.Errorf("workspace = %q", cfg.Workspace)
	}
	if cfg.LogsDir != filepath.Join(dir, "logs") {
		t.Errorf("relative logs_dir must anchor to the config file, got %q", cfg.LogsDir)
	}
	if cfg.Agent.MaxSteps != 7 {
		t.Errorf("max_steps = %d", cfg.Agent.MaxSteps)
	}
}

func TestLoadFromFile_MissingRequiredVar(t *testing.T) {
	os.Unsetenv("CLAWRUN_TEST_UNSET")
	dir := t.TempDir()
	path := filepath.Join(dir, "clawrun.yaml")
	if err := os.WriteFile(path, []byte("workspace: ${CLAWRUN_TEST_UNSET:?workspace required}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("a missing required variable must fail the load")
	}
}

func TestParse_UnknownFieldTolerated(t *testing.T) {
	cfg, err := Parse([]byte("workspace: /w\nsomeday_maybe: true\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Workspace != "/w" {
		t.Errorf("workspace = %q", cfg.Workspace)
	}
}

func TestParse_DefaultsSurvivePartialYAML(t *testing.T) {
	def := DefaultConfig()
	cfg, err := Parse([]byte("agent:\n  no_confirm: true\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Agent.NoConfirm {
		t.Error("explicit field must apply")
	}
	if cfg.Agent.MaxSteps != def.Agent.MaxSteps {
		t.Errorf("untouched fields keep defaults: max_steps = %d, want %d", cfg.Agent.MaxSteps, def.Agent.MaxSteps)
	}
}

func TestSave_BacksUpExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("workspace: /old\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Workspace = "/new"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	backup, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if !strings.Contains(string(backup), "/old") {
		t.Errorf("backup = %q", backup)
	}
	reloaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Workspace != "/new" {
		t.Errorf("workspace = %q", reloaded.Workspace)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("TOOL_ALLOWLIST", "shell, save ,")
	t.Setenv("HOOK_ALLOWLIST", "auto_confirm")
	t.Setenv("GPTME_SHELL_TIMEOUT", "30")
	t.Setenv("GPTME_BREAK_ON_TOOLUSE", "0")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if len(cfg.Tools.Allowlist) != 2 || cfg.Tools.Allowlist[0] != "shell" || cfg.Tools.Allowlist[1] != "save" {
		t.Errorf("tool allowlist = %v", cfg.Tools.Allowlist)
	}
	if len(cfg.Hooks.Allowlist) != 1 || cfg.Hooks.Allowlist[0] != "auto_confirm" {
		t.Errorf("hook allowlist = %v", cfg.Hooks.Allowlist)
	}
	if cfg.Shell.Timeout != 30*time.Second {
		t.Errorf("shell timeout = %v", cfg.Shell.Timeout)
	}
	if cfg.Agent.BreakOnToolUse {
		t.Error("break_on_tooluse must be forced off by the env knob")
	}
}
