package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "List the hooks that would activate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reg := agent.NewHookRegistry(logger)
			agent.InitHooks(reg, agent.HookInitOptions{
				Interactive: true,
				NoConfirm:   cfg.Agent.NoConfirm,
				Allowlist:   cfg.Hooks.Allowlist,
			})
			for _, t := range agent.AllHookTypes {
				hooks := reg.Hooks(t)
				if len(hooks) == 0 {
					continue
				}
				fmt.Printf("%s:\n", t)
				for _, h := range hooks {
					state := ""
					if !h.Enabled {
						state = " (disabled)"
					}
					fmt.Printf("  %-20s priority %d%s\n", h.Name, h.Priority, state)
				}
			}
			return nil
		},
	}
	return cmd
}
