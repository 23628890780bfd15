package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
	"github.com/jholhewres/clawrun/pkg/clawrun/config"
	"github.com/jholhewres/clawrun/pkg/clawrun/provider"
	"github.com/jholhewres/clawrun/pkg/clawrun/server"
	"github.com/jholhewres/clawrun/pkg/clawrun/tools"
)

func newServeCmd() *cobra.Command {
	var conversations []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/SSE server",
		Long: `Runs clawrun as a server. Each conversation streams its events over
SSE; tool confirmations and elicitation answers arrive as HTTP posts from
connected clients.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
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

			srv := server.New(cfg, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if len(conversations) == 0 {
				conversations = []string{"default"}
			}
			for _, conv := range conversations {
				log, err := agent.OpenLog(filepath.Join(cfg.LogsDir, conv), logger)
				if err != nil {
					return fmt.Errorf("open conversation %s: %w", conv, err)
				}
				mgr, err := agent.NewManager(ctx, llm, log, agent.ManagerOptions{
					ConversationID: conv,
					Workspace:      cfg.Workspace,
					Server:         true,
					NoConfirm:      cfg.Agent.NoConfirm,
					MaxSteps:       cfg.Agent.MaxSteps,
					BreakOnToolUse: &cfg.Agent.BreakOnToolUse,
					HookAllowlist:  cfg.Hooks.Allowlist,
					ExtraHooks:     serveHooks(cfg, srv),
					ToolAllowlist:  cfg.Tools.Allowlist,
					ToolModules:    cfg.Tools.Modules,
				}, logger)
				if err != nil {
					log.Close()
					return fmt.Errorf("conversation %s: %w", conv, err)
				}
				srv.Attach(mgr)
				defer func(conv string, mgr *agent.Manager) {
					tools.CloseShellSession(conv)
					mgr.Close(context.Background())
				}(conv, mgr)

				announcer, err := announcerFor(cfg, mgr, logger)
				if err != nil {
					return err
				}
				if announcer != nil {
					announcer.Start()
					defer announcer.Stop()
				}
			}

			return srv.Start(ctx)
		},
	}
	cmd.Flags().StringSliceVar(&conversations, "conversation", nil, "conversation names to serve (repeatable)")
	return cmd
}

func serveHooks(cfg *config.Config, srv *server.Server) []*agent.Hook {
	hooks := srv.Hooks()
	if cfg.Agent.ContextTree {
		hooks = append(hooks, agent.WorkspaceTreeHook(cfg.Workspace))
	}
	return hooks
}
