// Package agent – elicit.go generalizes confirmation to agent-initiated
// requests for structured user input: free text, single or multiple choice,
// secrets, yes/no and multi-field forms.
package agent

import "context"

// ElicitationType selects the input shape requested from the user.
type ElicitationType string

const (
	ElicitText         ElicitationType = "text"
	ElicitChoice       ElicitationType = "choice"
	ElicitMultiChoice  ElicitationType = "multi_choice"
	ElicitSecret       ElicitationType = "secret"
	ElicitConfirmation ElicitationType = "confirmation"
	ElicitForm         ElicitationType = "form"
)

// ElicitationField describes one entry of a form request.
type ElicitationField struct {
	Name        string          `json:"name"`
	Type        ElicitationType `json:"type"`
	Prompt      string          `json:"prompt,omitempty"`
	Required    bool            `json:"required,omitempty"`
	Default     string          `json:"default,omitempty"`
	Options     []string        `json:"options,omitempty"`
	Description string          `json:"description,omitempty"`
}

// ElicitationRequest is handed to elicit hooks.
type ElicitationRequest struct {
	Type        ElicitationType    `json:"type"`
	Prompt      string             `json:"prompt"`
	Options     []string           `json:"options,omitempty"`
	Fields      []ElicitationField `json:"fields,omitempty"`
	Default     string             `json:"default,omitempty"`
	Description string             `json:"description,omitempty"`

	// Sensitive marks the value as hidden in UI rendering. Forced true for
	// secret requests.
	Sensitive bool `json:"sensitive,omitempty"`
}

// ElicitationResponse carries the user's answer. Value holds single answers,
// Values holds multi-choice and form answers keyed by option or field name.
type ElicitationResponse struct {
	Value     string            `json:"value,omitempty"`
	Values    map[string]string `json:"values,omitempty"`
	Cancelled bool              `json:"cancelled,omitempty"`
	Sensitive bool              `json:"sensitive,omitempty"`
}

// CancelledResponse is the answer for declined or unreachable elicitations.
func CancelledResponse() *ElicitationResponse {
	return &ElicitationResponse{Cancelled: true}
}

// Elicit triggers elicit hooks in priority order, returning the first non-nil
// response. A secret request is forced sensitive before dispatch, and the
// response inherits the flag so the emitting tool hides the value from
// display. If every hook falls through, the request is cancelled.
func Elicit(ctx context.Context, reg *HookRegistry, req *ElicitationRequest) *ElicitationResponse {
	if req == nil {
		return CancelledResponse()
	}
	if req.Type == ElicitSecret {
		req.Sensitive = true
	}
	if reg != nil {
		for _, h := range reg.Hooks(HookElicit) {
			if !h.Enabled || h.Elicit == nil {
				continue
			}
			if ctx.Err() != nil {
				return CancelledResponse()
			}
			res, err := h.Elicit(ctx, req)
			if err != nil {
				if ctx.Err() != nil || err == ErrInterrupted {
					return CancelledResponse()
				}
				reg.logger.Error("elicit hook failed", "name", h.Name, "error", err)
				continue
			}
			if res != nil {
				res.Sensitive = res.Sensitive || req.Sensitive
				return res
			}
		}
	}
	return CancelledResponse()
}
