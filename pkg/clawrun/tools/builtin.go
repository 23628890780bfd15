// Package tools – builtin.go contributes the built-in tool module to the
// discovery registry. The MCP module is registered separately once the
// server list is known from configuration.
package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

func init() {
	agent.RegisterToolModule("builtin", func() []*agent.ToolSpec {
		return []*agent.ToolSpec{
			shellTool(),
			saveTool(),
			patchTool(),
			completeTool(),
			restartTool(),
			elicitTool(),
		}
	})
}

// RegisterMCPModule makes the configured MCP servers' tools discoverable
// under the "mcp" module. Discovery happens at registration so the proxy
// specs are ready when a registry scans the module.
func RegisterMCPModule(servers []MCPServerConfig, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	specs := MCPProxySpecs(ctx, servers, logger)
	agent.RegisterToolModule("mcp", func() []*agent.ToolSpec {
		return specs
	})
}
