// Package agent – confirm.go is the tool-approval decision point. A single
// entry point triggers tool.confirm hooks in priority order; the first
// non-nil result wins, and a default policy applies when every hook falls
// through.
package agent

import (
	"context"
	"log/slog"
)

// ConfirmAction is the outcome of a confirmation round-trip.
type ConfirmAction string

const (
	ConfirmActionConfirm ConfirmAction = "confirm"
	ConfirmActionSkip    ConfirmAction = "skip"
	ConfirmActionEdit    ConfirmAction = "edit"
)

// ConfirmRequest is handed to tool.confirm hooks.
type ConfirmRequest struct {
	ToolUse *ToolUse

	// Preview is optional pre-rendered display content (diff, highlighted
	// code) the confirming UI may show instead of the raw body.
	Preview string

	// DefaultConfirm selects the fallback when every hook falls through:
	// true approves, false skips.
	DefaultConfirm bool
}

// ConfirmationResult is the decision. EditedContent is set for edit actions
// and replaces the tool's body before execution.
type ConfirmationResult struct {
	Action        ConfirmAction
	EditedContent string
	Message       string
}

// Confirmed reports whether the tool should run (confirm or edit).
func (r *ConfirmationResult) Confirmed() bool {
	return r != nil && (r.Action == ConfirmActionConfirm || r.Action == ConfirmActionEdit)
}

// GetConfirmation triggers tool.confirm hooks in priority order and returns
// the first non-nil result. Hook errors are logged and treated as
// fall-through, except context cancellation which skips the tool. If every
// hook falls through, DefaultConfirm decides.
func GetConfirmation(ctx context.Context, reg *HookRegistry, req *ConfirmRequest) *ConfirmationResult {
	if req == nil {
		req = &ConfirmRequest{DefaultConfirm: true}
	}
	logger := slog.Default().With("component", "confirm")
	if reg != nil {
		logger = reg.logger
		for _, h := range reg.Hooks(HookToolConfirm) {
			if !h.Enabled || h.Confirm == nil {
				continue
			}
			if ctx.Err() != nil {
				return &ConfirmationResult{Action: ConfirmActionSkip, Message: "interrupted"}
			}
			res, err := h.Confirm(ctx, req)
			if err != nil {
				if ctx.Err() != nil || err == ErrInterrupted {
					return &ConfirmationResult{Action: ConfirmActionSkip, Message: "interrupted"}
				}
				logger.Error("confirm hook failed", "name", h.Name, "error", err)
				continue
			}
			if res != nil {
				logger.Debug("confirmation decided",
					"hook", h.Name, "tool", toolName(req), "action", res.Action)
				return res
			}
		}
	}
	if req.DefaultConfirm {
		return &ConfirmationResult{Action: ConfirmActionConfirm}
	}
	return &ConfirmationResult{Action: ConfirmActionSkip, Message: "no confirmation hook approved"}
}

func toolName(req *ConfirmRequest) string {
	if req == nil || req.ToolUse == nil {
		return ""
	}
	return req.ToolUse.Tool
}
