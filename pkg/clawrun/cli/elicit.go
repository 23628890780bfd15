// Package cli – elicit.go answers structured-input requests at the terminal.
// Interactive forms use huh; plain line input falls back to readline with a
// numbered list for choices when the form library cannot run.
package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/chzyer/readline"
	"golang.org/x/term"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

// ElicitHook answers elicitation requests on the terminal. Falls through
// when stdin is not a terminal so server or autonomous contexts keep their
// own behavior.
func ElicitHook() *agent.Hook {
	return &agent.Hook{
		Name:     "cli_elicit",
		Type:     agent.HookElicit,
		Priority: 10,
		Enabled:  true,
		Elicit: func(ctx context.Context, req *agent.ElicitationRequest) (*agent.ElicitationResponse, error) {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return nil, nil
			}
			res, err := runForm(req)
			if err == nil {
				return res, nil
			}
			// huh needs a full TTY; degrade to line prompts.
			return promptFallback(req)
		},
	}
}

func runForm(req *agent.ElicitationRequest) (*agent.ElicitationResponse, error) {
	switch req.Type {
	case agent.ElicitText:
		v := req.Default
		err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title(req.Prompt).Description(req.Description).Value(&v),
		)).Run()
		return textResponse(v, err)

	case agent.ElicitSecret:
		var v string
		err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title(req.Prompt).Description(req.Description).
				EchoMode(huh.EchoModePassword).Value(&v),
		)).Run()
		res, err2 := textResponse(v, err)
		if res != nil {
			res.Sensitive = true
		}
		return res, err2

	case agent.ElicitChoice:
		var v string
		err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().Title(req.Prompt).Description(req.Description).
				Options(huh.NewOptions(req.Options...)...).Value(&v),
		)).Run()
		return textResponse(v, err)

	case agent.ElicitMultiChoice:
		var selected []string
		err := huh.NewForm(huh.NewGroup(
			huh.NewMultiSelect[string]().Title(req.Prompt).Description(req.Description).
				Options(huh.NewOptions(req.Options...)...).Value(&selected),
		)).Run()
		if err != nil {
			return cancelOrErr(err)
		}
		values := make(map[string]string, len(selected))
		for _, s := range selected {
			values[s] = "true"
		}
		return &agent.ElicitationResponse{
			Value:  strings.Join(selected, ", "),
			Values: values,
		}, nil

	case agent.ElicitConfirmation:
		var yes bool
		err := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().Title(req.Prompt).Description(req.Description).Value(&yes),
		)).Run()
		if err != nil {
			return cancelOrErr(err)
		}
		if yes {
			return &agent.ElicitationResponse{Value: "yes"}, nil
		}
		return &agent.ElicitationResponse{Value: "no"}, nil

	case agent.ElicitForm:
		values := make(map[string]string, len(req.Fields))
		holders := make([]*string, len(req.Fields))
		var fields []huh.Field
		for i, f := range req.Fields {
			v := f.Default
			holders[i] = &v
			title := f.Prompt
			if title == "" {
				title = f.Name
			}
			switch f.Type {
			case agent.ElicitSecret:
				fields = append(fields, huh.NewInput().Title(title).
					Description(f.Description).EchoMode(huh.EchoModePassword).Value(&v))
			case agent.ElicitChoice:
				fields = append(fields, huh.NewSelect[string]().Title(title).
					Description(f.Description).Options(huh.NewOptions(f.Options...)...).Value(&v))
			default:
				fields = append(fields, huh.NewInput().Title(title).
					Description(f.Description).Value(&v))
			}
		}
		if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
			return cancelOrErr(err)
		}
		for i, f := range req.Fields {
			values[f.Name] = *holders[i]
		}
		return &agent.ElicitationResponse{Values: values}, nil
	}
	return nil, fmt.Errorf("unknown elicitation type %q", req.Type)
}

func textResponse(v string, err error) (*agent.ElicitationResponse, error) {
	if err != nil {
		return cancelOrErr(err)
	}
	return &agent.ElicitationResponse{Value: v}, nil
}

// cancelOrErr maps a user abort to a cancelled response and anything else to
// an error so the fallback path can try.
func cancelOrErr(err error) (*agent.ElicitationResponse, error) {
	if err == huh.ErrUserAborted {
		return agent.CancelledResponse(), nil
	}
	return nil, err
}

// promptFallback is the line-based degradation: readline for input, a
// numbered list for choices, hidden input for secrets.
func promptFallback(req *agent.ElicitationRequest) (*agent.ElicitationResponse, error) {
	switch req.Type {
	case agent.ElicitSecret:
		fmt.Printf("%s: ", req.Prompt)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return agent.CancelledResponse(), nil
		}
		return &agent.ElicitationResponse{Value: string(raw), Sensitive: true}, nil

	case agent.ElicitChoice, agent.ElicitMultiChoice:
		fmt.Println(req.Prompt)
		for i, opt := range req.Options {
			fmt.Printf("  %d) %s\n", i+1, opt)
		}
		line, err := readLine("choice> ")
		if err != nil {
			return agent.CancelledResponse(), nil
		}
		if req.Type == agent.ElicitChoice {
			if n, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && n >= 1 && n <= len(req.Options) {
				return &agent.ElicitationResponse{Value: req.Options[n-1]}, nil
			}
			return agent.CancelledResponse(), nil
		}
		values := make(map[string]string)
		var picked []string
		for _, tok := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' }) {
			if n, err := strconv.Atoi(tok); err == nil && n >= 1 && n <= len(req.Options) {
				values[req.Options[n-1]] = "true"
				picked = append(picked, req.Options[n-1])
			}
		}
		return &agent.ElicitationResponse{Value: strings.Join(picked, ", "), Values: values}, nil

	case agent.ElicitConfirmation:
		line, err := readLine(req.Prompt + " [y/N] ")
		if err != nil {
			return agent.CancelledResponse(), nil
		}
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y") {
			return &agent.ElicitationResponse{Value: "yes"}, nil
		}
		return &agent.ElicitationResponse{Value: "no"}, nil

	case agent.ElicitForm:
		values := make(map[string]string, len(req.Fields))
		for _, f := range req.Fields {
			prompt := f.Prompt
			if prompt == "" {
				prompt = f.Name
			}
			line, err := readLine(prompt + "> ")
			if err != nil {
				return agent.CancelledResponse(), nil
			}
			if line == "" {
				line = f.Default
			}
			values[f.Name] = line
		}
		return &agent.ElicitationResponse{Values: values}, nil

	default:
		line, err := readLine(req.Prompt + "> ")
		if err != nil {
			return agent.CancelledResponse(), nil
		}
		if line == "" {
			line = req.Default
		}
		return &agent.ElicitationResponse{Value: line}, nil
	}
}

func readLine(prompt string) (string, error) {
	rl, err := readline.New(prompt)
	if err != nil {
		return "", err
	}
	defer rl.Close()
	return rl.Readline()
}
