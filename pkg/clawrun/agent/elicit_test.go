package agent

import (
	"context"
	"testing"
)

func elicitHookNamed(name string, priority int, fn ElicitFunc) *Hook {
	return &Hook{Name: name, Type: HookElicit, Priority: priority, Enabled: true, Elicit: fn}
}

func TestElicit_FirstNonNilWins(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	reg.Register(elicitHookNamed("passer", 20, func(ctx context.Context, req *ElicitationRequest) (*ElicitationResponse, error) {
		return nil, nil
	}))
	reg.Register(elicitHookNamed("answerer", 10, func(ctx context.Context, req *ElicitationRequest) (*ElicitationResponse, error) {
		return &ElicitationResponse{Value: "blue"}, nil
	}))

	res := Elicit(context.Background(), reg, &ElicitationRequest{Type: ElicitText, Prompt: "favorite color?"})
	if res.Cancelled || res.Value != "blue" {
		t.Errorf("unexpected response: %+v", res)
	}
}

func TestElicit_NoHookCancels(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	res := Elicit(context.Background(), reg, &ElicitationRequest{Type: ElicitText, Prompt: "anyone?"})
	if !res.Cancelled {
		t.Errorf("no handler must cancel the request, got %+v", res)
	}
}

func TestElicit_SecretForcedSensitive(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	var seen *ElicitationRequest
	reg.Register(elicitHookNamed("capture", 10, func(ctx context.Context, req *ElicitationRequest) (*ElicitationResponse, error) {
		seen = req
		return &ElicitationResponse{Value: "hunter2"}, nil
	}))

	res := Elicit(context.Background(), reg, &ElicitationRequest{Type: ElicitSecret, Prompt: "API key"})
	if seen == nil || !seen.Sensitive {
		t.Error("secret requests must be marked sensitive before dispatch")
	}
	if !res.Sensitive {
		t.Error("the response must inherit the sensitive flag")
	}
}

func TestElicit_CancelledContext(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	reg.Register(elicitHookNamed("any", 10, func(ctx context.Context, req *ElicitationRequest) (*ElicitationResponse, error) {
		return &ElicitationResponse{Value: "x"}, nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if res := Elicit(ctx, reg, &ElicitationRequest{Type: ElicitText}); !res.Cancelled {
		t.Errorf("cancelled context must cancel the elicitation, got %+v", res)
	}
}
