// Package cli provides the terminal-facing confirmation and elicitation
// hooks: a single-key approval prompt with preview and editor support, and
// interactive forms for structured input requests.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

// ConfirmHook is the interactive approval prompt. It consults the
// process-wide auto-confirm allowance first, shows the tool preview, rings
// the terminal bell, and reads a single key:
//
//	y – confirm      n – skip      e – edit in $EDITOR
//	a – auto-confirm this and the next N tools      ? – help
func ConfirmHook() *agent.Hook {
	return &agent.Hook{
		Name:     "cli_confirm",
		Type:     agent.HookToolConfirm,
		Priority: 10,
		Enabled:  true,
		Confirm: func(ctx context.Context, req *agent.ConfirmRequest) (*agent.ConfirmationResult, error) {
			if agent.ConsumeAutoConfirm() {
				return &agent.ConfirmationResult{Action: agent.ConfirmActionConfirm}, nil
			}
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return nil, nil
			}

			showPreview(req)
			for {
				fmt.Print("\aRun tool? [y/n/e/a/?] ")
				key, err := readKey()
				fmt.Println(string(key))
				if err != nil {
					return nil, err
				}
				switch key {
				case 'y', 'Y', '\r', '\n':
					return &agent.ConfirmationResult{Action: agent.ConfirmActionConfirm}, nil
				case 'n', 'N', 3, 27: // n, Ctrl-C, Esc
					return &agent.ConfirmationResult{Action: agent.ConfirmActionSkip, Message: "declined by user"}, nil
				case 'e', 'E':
					edited, err := editInEditor(req.ToolUse.Content)
					if err != nil {
						fmt.Printf("edit failed: %v\n", err)
						continue
					}
					return &agent.ConfirmationResult{Action: agent.ConfirmActionEdit, EditedContent: edited}, nil
				case 'a', 'A':
					n := readAutoCount()
					agent.SetAutoConfirm(n)
					return &agent.ConfirmationResult{Action: agent.ConfirmActionConfirm}, nil
				case '?':
					fmt.Println("y: run the tool  n: skip it  e: edit the content first  a: auto-confirm the next N tools  ?: this help")
				default:
					// Unrecognized key, ask again.
				}
			}
		},
	}
}

func showPreview(req *agent.ConfirmRequest) {
	tu := req.ToolUse
	if tu == nil {
		return
	}
	header := tu.Tool
	if len(tu.Args) > 0 {
		header += " " + strings.Join(tu.Args, " ")
	}
	fmt.Printf("\nTool: %s\n", header)
	if req.Preview != "" {
		fmt.Println(req.Preview)
		return
	}
	if tu.Content != "" {
		fmt.Printf("```\n%s\n```\n", strings.TrimRight(tu.Content, "\n"))
	}
}

// readKey reads one raw byte from the terminal.
func readKey() (byte, error) {
	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return 0, err
	}
	defer term.Restore(fd, old)
	var buf [1]byte
	if _, err := os.Stdin.Read(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// readAutoCount asks how many tools the auto-confirm grant covers. Empty or
// invalid input grants an unlimited allowance.
func readAutoCount() int {
	fmt.Print("auto-confirm how many tools? (empty = unlimited) ")
	var line string
	fmt.Scanln(&line)
	if n, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && n > 0 {
		return n
	}
	return -1
}

// editInEditor opens the content in $EDITOR (vi fallback) and returns the
// edited text.
func editInEditor(content string) (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	tmp, err := os.CreateTemp("", "clawrun-edit-*.txt")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", err
	}
	tmp.Close()

	cmd := exec.Command(editor, tmp.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", editor, err)
	}
	edited, err := os.ReadFile(tmp.Name())
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(edited), "\n"), nil
}
