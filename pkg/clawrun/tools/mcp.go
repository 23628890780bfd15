// Package tools – mcp.go proxies tools exposed by MCP servers. Each remote
// tool becomes a ToolSpec marked IsMCP whose Execute forwards the call over
// the client transport (stdio for command servers, streamable HTTP for URL
// servers).
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

// MCPServerConfig names one server to proxy.
type MCPServerConfig struct {
	Name    string
	Command string
	Args    []string
	URL     string
}

type mcpConn struct {
	mu     sync.Mutex
	cfg    MCPServerConfig
	client *mcpclient.Client
	logger *slog.Logger
}

// connect dials and initializes the client on first use.
func (c *mcpConn) connect(ctx context.Context) (*mcpclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	var client *mcpclient.Client
	var err error
	switch {
	case c.cfg.Command != "":
		client, err = mcpclient.NewStdioMCPClient(c.cfg.Command, nil, c.cfg.Args...)
	case c.cfg.URL != "":
		client, err = mcpclient.NewStreamableHttpClient(c.cfg.URL)
	default:
		return nil, fmt.Errorf("mcp server %s: no command or url", c.cfg.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("mcp server %s: %w", c.cfg.Name, err)
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp server %s: start: %w", c.cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "clawrun", Version: "1.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		client.Close()
		return nil, fmt.Errorf("mcp server %s: initialize: %w", c.cfg.Name, err)
	}
	c.client = client
	c.logger.Info("mcp server connected", "server", c.cfg.Name)
	return client, nil
}

func (c *mcpConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

// MCPProxySpecs lists each server's tools and returns proxy specs. A server
// that cannot be reached is skipped with a warning rather than failing tool
// initialization.
func MCPProxySpecs(ctx context.Context, servers []MCPServerConfig, logger *slog.Logger) []*agent.ToolSpec {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")

	var specs []*agent.ToolSpec
	for _, cfg := range servers {
		conn := &mcpConn{cfg: cfg, logger: logger}
		client, err := conn.connect(ctx)
		if err != nil {
			logger.Warn("mcp server unavailable, skipping", "server", cfg.Name, "error", err)
			continue
		}
		listed, err := client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			logger.Warn("mcp tool listing failed, skipping", "server", cfg.Name, "error", err)
			conn.close()
			continue
		}
		for _, t := range listed.Tools {
			specs = append(specs, proxySpec(conn, cfg.Name, t))
		}
	}
	return specs
}

func proxySpec(conn *mcpConn, server string, t mcp.Tool) *agent.ToolSpec {
	name := server + "." + t.Name
	remote := t.Name
	return &agent.ToolSpec{
		Name:       name,
		Desc:       t.Description,
		BlockTypes: []string{name},
		IsMCP:      true,
		Execute: func(ctx context.Context, tu *agent.ToolUse, ec *agent.ExecContext) ([]agent.Message, error) {
			client, err := conn.connect(ctx)
			if err != nil {
				return nil, err
			}
			req := mcp.CallToolRequest{}
			req.Params.Name = remote
			req.Params.Arguments = mcpArguments(tu)

			res, err := client.CallTool(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("mcp call %s: %w", name, err)
			}
			text := renderMCPContent(res.Content)
			if res.IsError {
				text = "MCP tool error: " + text
			}
			return []agent.Message{agent.SystemMessage(text, "")}, nil
		},
	}
}

// mcpArguments prefers parsed kwargs, falling back to a JSON body.
func mcpArguments(tu *agent.ToolUse) map[string]any {
	if len(tu.Kwargs) > 0 {
		args := make(map[string]any, len(tu.Kwargs))
		for k, v := range tu.Kwargs {
			args[k] = v
		}
		return args
	}
	if args, err := agent.DecodeJSONObject(tu.Content); err == nil && args != nil {
		return args
	}
	return nil
}

func renderMCPContent(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
