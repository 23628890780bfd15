// Package config – loader.go loads YAML configuration with credentials kept
// in environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR}, ${VAR:-default}, ${VAR:?error} and bare $VAR
// references in config values.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadFromFile reads a YAML configuration file, expanding environment
// variables first. .env files are loaded beforehand (without overriding
// already-set variables). Returns an error if a ${VAR:?error} pattern has
// its variable unset.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := Parse([]byte(expanded))
	if err != nil {
		return nil, err
	}
	resolveRelativePaths(cfg, path)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Load resolves the config file from standard locations, falling back to
// defaults (plus environment overrides) when none exists.
func Load() (*Config, error) {
	if path := FindConfigFile(); path != "" {
		return LoadFromFile(path)
	}
	loadEnvFiles()
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Parse parses YAML bytes over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// Save writes the config as YAML with restricted permissions, backing up an
// existing file first.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	var check map[string]any
	if err := yaml.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches standard locations.
func FindConfigFile() string {
	candidates := []string{
		"clawrun.yaml",
		"clawrun.yml",
		"config.yaml",
		"configs/clawrun.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "clawrun", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func defaultLogsDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "clawrun", "logs")
	}
	return "logs"
}

// ---------- Internal ----------

func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		// godotenv.Load does not overwrite existing env vars.
		_ = godotenv.Load(f)
	}
}

func expandEnvVars(input string) (string, error) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[4]
		}
		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		switch groups[2] {
		case "-":
			return groups[3]
		case "?":
			missing = append(missing, fmt.Sprintf("%s (%s)", name, groups[3]))
			return match
		}
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("required variables unset: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func resolveRelativePaths(cfg *Config, configPath string) {
	base := filepath.Dir(configPath)
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	cfg.LogsDir = abs(cfg.LogsDir)
	cfg.Secrets.VaultPath = abs(cfg.Secrets.VaultPath)
}

// applyEnvOverrides maps the runtime environment knobs onto the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TOOL_ALLOWLIST"); v != "" {
		cfg.Tools.Allowlist = splitList(v)
	}
	if v := os.Getenv("TOOL_MODULES"); v != "" {
		cfg.Tools.Modules = splitList(v)
	}
	if v := os.Getenv("HOOK_ALLOWLIST"); v != "" {
		cfg.Hooks.Allowlist = splitList(v)
	}
	if v := os.Getenv("GPTME_SHELL_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Shell.Timeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("GPTME_BREAK_ON_TOOLUSE"); v != "" {
		cfg.Agent.BreakOnToolUse = v != "0"
	}
	if v := os.Getenv("GPTME_CONTEXT_TREE"); v != "" {
		cfg.Agent.ContextTree = v != "0"
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
