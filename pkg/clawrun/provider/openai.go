// Package provider implements the LLM backend client. Client speaks the
// OpenAI-compatible chat completions protocol with SSE streaming and adapts
// it to the agent.Provider interface, including provider-native structured
// tool calls.
package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

// Config names the endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client is an OpenAI-compatible chat completions client.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a client. The HTTP client has no overall timeout: streaming
// generations can legitimately run for minutes; cancellation comes from the
// request context.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 2 * time.Minute,
			},
		},
		logger: logger.With("component", "provider"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type streamToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string           `json:"content,omitempty"`
			ToolCalls []streamToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

// Generate streams one completion. Tokens flow through onToken as they
// arrive; the full assistant message (text plus any native tool calls) is
// returned. A cancelled context returns the partial message with the
// context's error.
func (c *Client) Generate(ctx context.Context, msgs []agent.Message, onToken func(string)) (agent.Message, error) {
	req := chatRequest{
		Model:  c.cfg.Model,
		Stream: true,
	}
	for _, m := range msgs {
		role := string(m.Role)
		// Tool results travel as user-visible context for compatibility
		// with providers lacking a tool role.
		if m.Role == agent.RoleSystem && m.CallID != "" {
			role = "user"
		}
		req.Messages = append(req.Messages, chatMessage{Role: role, Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return agent.Message{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return agent.Message{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return agent.Message{}, ctx.Err()
		}
		return agent.Message{}, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return agent.Message{}, fmt.Errorf("chat request: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var content strings.Builder
	calls := map[int]*agent.NativeToolCall{}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || data == "[DONE]" {
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Debug("unparseable stream chunk skipped", "error", err)
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				if onToken != nil {
					onToken(choice.Delta.Content)
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				call := calls[tc.Index]
				if call == nil {
					call = &agent.NativeToolCall{}
					calls[tc.Index] = call
				}
				if tc.ID != "" {
					call.ID = tc.ID
				}
				if tc.Function.Name != "" {
					call.Name = tc.Function.Name
				}
				call.Arguments += tc.Function.Arguments
			}
		}
	}
	partial := assemble(content.String(), calls)
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return partial, ctx.Err()
		}
		return partial, fmt.Errorf("read stream: %w", err)
	}
	if ctx.Err() != nil {
		return partial, ctx.Err()
	}
	return partial, nil
}

func assemble(content string, calls map[int]*agent.NativeToolCall) agent.Message {
	msg := agent.NewMessage(agent.RoleAssistant, content)
	for i := 0; i < len(calls); i++ {
		if call, ok := calls[i]; ok {
			msg.ToolCalls = append(msg.ToolCalls, *call)
		}
	}
	return msg
}
