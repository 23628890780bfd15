// Package agent – executor.go drives one parsed tool use to completion:
// confirmation, pre/post hooks, the tool callback, call-id stamping and error
// capture. Errors within a tool never escape the step; the one exception is
// the session-complete signal, which unwinds to the turn loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const editedNotice = "(content was edited by user)"

// ExecuteToolUse runs a tool use end to end and returns the result messages,
// each stamped with the invocation's call id. The returned error is non-nil
// only for session completion.
func ExecuteToolUse(ctx context.Context, tu *ToolUse, ec *ExecContext) ([]Message, error) {
	logger := slog.Default().With("component", "executor")
	spec, ok := resolveSpec(tu, ec)
	if !ok {
		return []Message{SystemMessage(fmt.Sprintf("Unknown tool: %s", tu.Tool), tu.CallID)}, nil
	}

	if err := ValidateKwargs(spec, tu); err != nil {
		return []Message{SystemMessage(err.Error(), tu.CallID)}, nil
	}

	res := GetConfirmation(ctx, ec.Hooks, &ConfirmRequest{
		ToolUse:        tu,
		DefaultConfirm: true,
	})
	edited := false
	switch res.Action {
	case ConfirmActionSkip:
		msg := "Declined by user"
		if res.Message != "" {
			msg = fmt.Sprintf("Declined: %s", res.Message)
		}
		return []Message{SystemMessage(msg, tu.CallID)}, nil
	case ConfirmActionEdit:
		tu.Content = res.EditedContent
		edited = true
	}

	var out []Message

	pre, stopped, err := ec.Hooks.TriggerStopped(ctx, HookToolExecutePre, &HookPayload{
		Log: ec.Log, Workspace: ec.Workspace, ToolUse: tu,
	})
	out = append(out, stampAll(pre, tu.CallID)...)
	if err != nil {
		if IsSessionComplete(err) {
			return out, err
		}
	}
	if stopped {
		out = append(out, SystemMessage(fmt.Sprintf("Tool %s was stopped by a pre-execution hook.", spec.Name), tu.CallID))
		logger.Info("tool stopped by pre-execution hook", "tool", spec.Name)
		if edited {
			out = appendEditedNotice(out, tu.CallID)
		}
		return out, nil
	}

	results, execErr := runTool(ctx, spec, tu, ec)
	out = append(out, stampAll(results, tu.CallID)...)

	switch {
	case execErr == nil:
		if len(results) == 0 {
			out = append(out, SystemMessage(fmt.Sprintf("Tool %s ran with no output.", spec.Name), tu.CallID))
		}
	case errors.Is(execErr, context.Canceled) || errors.Is(execErr, ErrInterrupted):
		out = append(out, SystemMessage(InterruptContent, tu.CallID))
		logger.Info("tool interrupted", "tool", spec.Name)
	case IsSessionComplete(execErr):
		// post hook still fires below; the signal unwinds after.
	default:
		out = append(out, SystemMessage(fmt.Sprintf("Tool %s failed: %v", spec.Name, execErr), tu.CallID))
		logger.Error("tool failed", "tool", spec.Name, "error", execErr)
	}

	post, postErr := ec.Hooks.Trigger(ctx, HookToolExecutePost, &HookPayload{
		Log: ec.Log, Workspace: ec.Workspace, ToolUse: tu,
	})
	out = append(out, stampAll(post, tu.CallID)...)

	if edited {
		out = appendEditedNotice(out, tu.CallID)
	}

	if IsSessionComplete(execErr) {
		return out, execErr
	}
	if postErr != nil && IsSessionComplete(postErr) {
		return out, postErr
	}
	return out, nil
}

// runTool invokes the tool callback with panic recovery and a secondary
// confirm/elicit context wired to the hook registry.
func runTool(ctx context.Context, spec *ToolSpec, tu *ToolUse, ec *ExecContext) (out []Message, err error) {
	if spec.Execute == nil {
		return nil, fmt.Errorf("tool %s has no executor", spec.Name)
	}
	if ec.Confirm == nil {
		ec.Confirm = func(ctx context.Context, req *ConfirmRequest) *ConfirmationResult {
			return GetConfirmation(ctx, ec.Hooks, req)
		}
	}
	if ec.Elicit == nil {
		ec.Elicit = func(ctx context.Context, req *ElicitationRequest) *ElicitationResponse {
			return Elicit(ctx, ec.Hooks, req)
		}
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %s panicked: %v", spec.Name, rec)
		}
	}()
	return spec.Execute(ctx, tu, ec)
}

func resolveSpec(tu *ToolUse, ec *ExecContext) (*ToolSpec, bool) {
	if ec == nil || ec.Tools == nil {
		return nil, false
	}
	return ec.Tools.Resolve(tu.Tool)
}

func stampAll(msgs []Message, callID string) []Message {
	if callID == "" {
		return msgs
	}
	for i := range msgs {
		if msgs[i].CallID == "" {
			msgs[i].CallID = callID
		}
	}
	return msgs
}

// appendEditedNotice appends the edit marker to the last system result
// message so the transcript records that the user changed the content.
func appendEditedNotice(msgs []Message, callID string) []Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleSystem {
			msgs[i].Content += "\n\n" + editedNotice
			return msgs
		}
	}
	return append(msgs, SystemMessage(editedNotice, callID))
}
