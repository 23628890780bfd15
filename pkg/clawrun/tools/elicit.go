// Package tools – elicit.go lets the model request structured user input:
// free text, choices, secrets and multi-field forms. Disabled by default; it
// loads only when explicitly allow-listed.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

// secretSink, when set, diverts secret elicitation values out of the
// conversation log to an external store (keyring or vault). Without one,
// secrets stay in the log with hide=true.
var secretSink struct {
	mu sync.Mutex
	fn func(name, value string) error
}

// SetSecretSink installs the external secret store callback.
func SetSecretSink(fn func(name, value string) error) {
	secretSink.mu.Lock()
	secretSink.fn = fn
	secretSink.mu.Unlock()
}

// sinkSecret stores the value under name. Returns false when no sink is
// configured or the store failed.
func sinkSecret(name, value string) bool {
	secretSink.mu.Lock()
	fn := secretSink.fn
	secretSink.mu.Unlock()
	if fn == nil {
		return false
	}
	return fn(name, value) == nil
}

// elicitBody is the YAML the model puts inside an elicit/form/choice block.
type elicitBody struct {
	Type        string   `yaml:"type"`
	Prompt      string   `yaml:"prompt"`
	Options     []string `yaml:"options"`
	Default     string   `yaml:"default"`
	Description string   `yaml:"description"`
	Fields      []struct {
		Name        string   `yaml:"name"`
		Type        string   `yaml:"type"`
		Prompt      string   `yaml:"prompt"`
		Required    bool     `yaml:"required"`
		Default     string   `yaml:"default"`
		Options     []string `yaml:"options"`
		Description string   `yaml:"description"`
	} `yaml:"fields"`
}

// parseElicitRequest maps a block body (plus the block tag) onto a request.
// A bare body in a choice block is treated as one option per line.
func parseElicitRequest(tag, body string) (*agent.ElicitationRequest, error) {
	var spec elicitBody
	if err := yaml.Unmarshal([]byte(body), &spec); err != nil || spec.Prompt == "" && spec.Type == "" {
		if tag == "choice" {
			var opts []string
			for _, line := range strings.Split(body, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					opts = append(opts, line)
				}
			}
			if len(opts) > 1 {
				return &agent.ElicitationRequest{
					Type:    agent.ElicitChoice,
					Prompt:  opts[0],
					Options: opts[1:],
				}, nil
			}
		}
		if err != nil {
			return nil, fmt.Errorf("invalid elicit spec: %w", err)
		}
		return nil, fmt.Errorf("elicit spec needs a type or prompt")
	}

	req := &agent.ElicitationRequest{
		Type:        agent.ElicitationType(spec.Type),
		Prompt:      spec.Prompt,
		Options:     spec.Options,
		Default:     spec.Default,
		Description: spec.Description,
	}
	if req.Type == "" {
		switch {
		case len(spec.Fields) > 0:
			req.Type = agent.ElicitForm
		case len(spec.Options) > 0:
			req.Type = agent.ElicitChoice
		default:
			req.Type = agent.ElicitText
		}
	}
	for _, f := range spec.Fields {
		ft := agent.ElicitationType(f.Type)
		if ft == "" {
			ft = agent.ElicitText
		}
		req.Fields = append(req.Fields, agent.ElicitationField{
			Name:        f.Name,
			Type:        ft,
			Prompt:      f.Prompt,
			Required:    f.Required,
			Default:     f.Default,
			Options:     f.Options,
			Description: f.Description,
		})
	}
	return req, nil
}

// formatElicitResult renders the answer for the conversation log.
func formatElicitResult(req *agent.ElicitationRequest, res *agent.ElicitationResponse) string {
	if res.Cancelled {
		return "Cancelled by user"
	}
	if len(res.Values) > 0 {
		keys := make([]string, 0, len(res.Values))
		for k := range res.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("User responded:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, res.Values[k])
		}
		return b.String()
	}
	return fmt.Sprintf("User responded: %s", res.Value)
}

func elicitTool() *agent.ToolSpec {
	return &agent.ToolSpec{
		Name:              "elicit",
		Desc:              "Request structured input from the user",
		BlockTypes:        []string{"elicit", "form", "choice"},
		DisabledByDefault: true,
		Instructions: "Describe the request as YAML: type (text, choice, " +
			"multi_choice, secret, confirmation, form), prompt, and options or " +
			"fields as applicable.",
		Execute: func(ctx context.Context, tu *agent.ToolUse, ec *agent.ExecContext) ([]agent.Message, error) {
			req, err := parseElicitRequest(tu.Tool, tu.Content)
			if err != nil {
				return []agent.Message{agent.SystemMessage(err.Error(), "")}, nil
			}
			res := ec.Elicit(ctx, req)
			if res.Sensitive && !res.Cancelled && res.Value != "" {
				name := req.Prompt
				if name == "" {
					name = "secret"
				}
				if sinkSecret(name, res.Value) {
					return []agent.Message{agent.SystemMessage(
						fmt.Sprintf("Secret stored as %q in the external store.", name), "")}, nil
				}
			}
			msg := agent.SystemMessage(formatElicitResult(req, res), "")
			// Secrets stay in the log for the model but are hidden from
			// display.
			msg.Hide = res.Sensitive && !res.Cancelled
			return []agent.Message{msg}, nil
		},
	}
}
