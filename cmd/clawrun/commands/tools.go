package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

func newToolsCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent can use",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			hooks := agent.NewHookRegistry(logger)
			reg := agent.NewToolRegistry(logger)
			if err := reg.InitTools(context.Background(), agent.InitOptions{
				Allowlist: cfg.Tools.Allowlist,
				Modules:   cfg.Tools.Modules,
			}, hooks); err != nil {
				return err
			}
			for _, t := range reg.Tools() {
				fmt.Printf("%-12s %s\n", t.Name, t.Desc)
				if !verbose {
					continue
				}
				if len(t.BlockTypes) > 0 {
					fmt.Printf("             blocks: %s\n", strings.Join(t.BlockTypes, ", "))
				}
				for _, p := range t.Parameters {
					req := ""
					if p.Required {
						req = " (required)"
					}
					fmt.Printf("             %s: %s%s\n", p.Name, p.Description, req)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verbose, "long", false, "show block types and parameters")
	return cmd
}
