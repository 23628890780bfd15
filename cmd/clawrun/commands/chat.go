// Package commands – chat.go runs a conversation at the terminal: a
// readline REPL in interactive mode, or a single autonomous turn sequence
// when a prompt is given with --no-confirm.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
	"github.com/jholhewres/clawrun/pkg/clawrun/cli"
	"github.com/jholhewres/clawrun/pkg/clawrun/config"
	"github.com/jholhewres/clawrun/pkg/clawrun/provider"
	"github.com/jholhewres/clawrun/pkg/clawrun/secrets"
	"github.com/jholhewres/clawrun/pkg/clawrun/tools"
)

func newChatCmd() *cobra.Command {
	var (
		name      string
		noConfirm bool
	)
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			prompt := strings.Join(args, " ")
			interactive := prompt == "" || !noConfirm
			return runChat(cfg, logger, name, prompt, interactive, noConfirm)
		},
	}
	cmd.Flags().StringVar(&name, "resume", "", "conversation name to resume (default: a fresh one)")
	cmd.Flags().BoolVarP(&noConfirm, "no-confirm", "y", false, "run autonomously, approving every tool")
	return cmd
}

func runChat(cfg *config.Config, logger *slog.Logger, name, prompt string, interactive, noConfirm bool) error {
	if name == "" {
		name = fmt.Sprintf("chat-%d", os.Getpid())
	}
	log, err := agent.OpenLog(filepath.Join(cfg.LogsDir, name), logger)
	if err != nil {
		return err
	}

	wireSecrets(cfg, logger)
	tools.ConfigureShell(cfg.Shell.Timeout, cfg.Shell.ReadOnlyCommands)
	if cfg.MCP.Enabled {
		tools.RegisterMCPModule(mcpServers(cfg), logger)
	}

	llm := provider.New(provider.Config{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.API.APIKey,
		Model:   cfg.API.Model,
	}, logger)

	var extra []*agent.Hook
	if interactive {
		extra = append(extra, cli.ConfirmHook(), cli.ElicitHook())
	}
	if cfg.Agent.ContextTree {
		extra = append(extra, agent.WorkspaceTreeHook(cfg.Workspace))
	}
	mgr, err := agent.NewManager(context.Background(), llm, log, agent.ManagerOptions{
		ConversationID: name,
		Workspace:      cfg.Workspace,
		Interactive:    interactive,
		NoConfirm:      noConfirm || cfg.Agent.NoConfirm,
		MaxSteps:       cfg.Agent.MaxSteps,
		BreakOnToolUse: &cfg.Agent.BreakOnToolUse,
		HookAllowlist:  cfg.Hooks.Allowlist,
		ExtraHooks:     extra,
		ToolAllowlist:  cfg.Tools.Allowlist,
		ToolModules:    cfg.Tools.Modules,
	}, logger)
	if err != nil {
		log.Close()
		return err
	}
	defer func() {
		tools.CloseShellSession(name)
		mgr.Close(context.Background())
	}()

	announcer, err := announcerFor(cfg, mgr, logger)
	if err != nil {
		return err
	}
	if announcer != nil {
		announcer.Start()
		defer announcer.Stop()
	}

	mgr.OnEvent = printEvents(interactive)

	if prompt != "" && !interactive {
		return runAutonomous(mgr, prompt)
	}
	if prompt != "" {
		if err := runTurnWithInterrupt(mgr, prompt); err != nil {
			if agent.IsSessionComplete(err) {
				return nil
			}
			return err
		}
	}
	return repl(mgr)
}

// runAutonomous keeps stepping until the session completes.
func runAutonomous(mgr *agent.Manager, prompt string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := mgr.RunTurn(ctx, prompt, nil)
	if agent.IsSessionComplete(err) {
		return nil
	}
	return err
}

// repl reads prompts with readline. Slash commands: /auto N grants
// auto-confirmations, /tools lists loaded tools, /exit leaves.
func repl(mgr *agent.Manager) error {
	rl, err := readline.New("user> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return nil // EOF
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			return nil
		case line == "/tools":
			for _, t := range mgr.Tools().Tools() {
				fmt.Printf("  %-12s %s\n", t.Name, t.Desc)
			}
			continue
		case strings.HasPrefix(line, "/auto"):
			n := -1
			if arg := strings.TrimSpace(strings.TrimPrefix(line, "/auto")); arg != "" {
				if v, err := strconv.Atoi(arg); err == nil {
					n = v
				}
			}
			agent.SetAutoConfirm(n)
			fmt.Println("auto-confirm granted")
			continue
		}
		if fn, ok := mgr.Tools().Command(strings.TrimPrefix(line, "/")); ok && strings.HasPrefix(line, "/") {
			msgs, err := fn(context.Background(), nil, &agent.ExecContext{
				Log: mgr.Log(), Workspace: mgr.Workspace(),
				Hooks: mgr.Hooks(), Tools: mgr.Tools(),
				ConversationID: mgr.ConversationID(),
			})
			if err != nil {
				fmt.Printf("command failed: %v\n", err)
				continue
			}
			for _, m := range msgs {
				fmt.Println(m.Content)
			}
			continue
		}

		if err := runTurnWithInterrupt(mgr, line); err != nil {
			if agent.IsSessionComplete(err) {
				return nil
			}
			return err
		}
	}
}

// runTurnWithInterrupt maps Ctrl-C during a turn onto context cancellation
// so generation aborts and partial output is preserved.
func runTurnWithInterrupt(mgr *agent.Manager, prompt string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return mgr.RunTurn(ctx, prompt, nil)
}

// printEvents renders the visible conversation stream.
func printEvents(interactive bool) agent.EventFunc {
	return func(event string, data map[string]any) {
		switch event {
		case "generation_progress":
			if token, ok := data["token"].(string); ok {
				fmt.Print(token)
			}
		case "generation_complete":
			fmt.Println()
		case "message_added":
			msg, ok := data["message"].(agent.Message)
			if !ok || msg.Hide || msg.Quiet || msg.Role != agent.RoleSystem {
				return
			}
			fmt.Printf("\n%s\n", msg.Content)
		case "interrupted":
			fmt.Println("\n[interrupted]")
		}
	}
}

func wireSecrets(cfg *config.Config, logger *slog.Logger) {
	store, err := secrets.New(secrets.Options{
		Backend:         cfg.Secrets.Backend,
		VaultPath:       cfg.Secrets.VaultPath,
		VaultPassphrase: cfg.Secrets.VaultPassphrase,
	})
	if err != nil {
		logger.Warn("secret store unavailable, secrets stay in the log", "error", err)
		return
	}
	if store != nil {
		tools.SetSecretSink(store.Set)
	}
}

func mcpServers(cfg *config.Config) []tools.MCPServerConfig {
	out := make([]tools.MCPServerConfig, 0, len(cfg.MCP.Servers))
	for _, s := range cfg.MCP.Servers {
		out = append(out, tools.MCPServerConfig{
			Name: s.Name, Command: s.Command, Args: s.Args, URL: s.URL,
		})
	}
	return out
}

func announcerFor(cfg *config.Config, mgr *agent.Manager, logger *slog.Logger) (*agent.Announcer, error) {
	if len(cfg.Announcements) == 0 {
		return nil, nil
	}
	items := make([]agent.Announcement, 0, len(cfg.Announcements))
	for _, a := range cfg.Announcements {
		items = append(items, agent.Announcement{Schedule: a.Schedule, Message: a.Message})
	}
	return agent.NewAnnouncer(mgr, items, logger)
}
