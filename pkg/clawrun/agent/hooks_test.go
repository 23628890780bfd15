package agent

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestHookRegistry_Register(t *testing.T) {
	reg := NewHookRegistry(testLogger())

	noop := func(ctx context.Context, p *HookPayload) (HookResult, error) { return HookResult{}, nil }

	tests := []struct {
		name    string
		hook    *Hook
		wantErr bool
	}{
		{
			name:    "valid hook",
			hook:    &Hook{Name: "greeter", Type: HookSessionStart, Enabled: true, Func: noop},
			wantErr: false,
		},
		{
			name:    "nil hook",
			hook:    nil,
			wantErr: true,
		},
		{
			name:    "missing name",
			hook:    &Hook{Type: HookSessionStart, Func: noop},
			wantErr: true,
		},
		{
			name:    "unknown type",
			hook:    &Hook{Name: "bad", Type: HookType("turn.maybe"), Func: noop},
			wantErr: true,
		},
		{
			name:    "missing func",
			hook:    &Hook{Name: "empty", Type: HookStepPre},
			wantErr: true,
		},
		{
			name:    "confirm hook without confirm func",
			hook:    &Hook{Name: "approver", Type: HookToolConfirm, Func: noop},
			wantErr: true,
		},
		{
			name: "elicit hook with elicit func",
			hook: &Hook{Name: "asker", Type: HookElicit, Elicit: func(ctx context.Context, req *ElicitationRequest) (*ElicitationResponse, error) {
				return nil, nil
			}},
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.hook)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHookRegistry_RegisterReplacesSameName(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	calls := 0
	for i := 0; i < 2; i++ {
		n := i
		err := reg.Register(&Hook{
			Name: "greeter", Type: HookSessionStart, Enabled: true,
			Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
				calls = n + 1
				return HookResult{}, nil
			},
		})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if got := len(reg.Hooks(HookSessionStart)); got != 1 {
		t.Fatalf("expected 1 hook after replacement, got %d", got)
	}
	reg.Trigger(context.Background(), HookSessionStart, nil)
	if calls != 2 {
		t.Errorf("expected replacement hook to run, calls = %d", calls)
	}
}

func TestHookRegistry_DispatchOrder(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	var order []string
	add := func(name string, priority int) {
		reg.Register(&Hook{
			Name: name, Type: HookStepPre, Priority: priority, Enabled: true,
			Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
				order = append(order, name)
				return HookResult{}, nil
			},
		})
	}
	add("banana", 10)
	add("apple", 10)
	add("last", 1)
	add("first", 99)

	reg.Trigger(context.Background(), HookStepPre, nil)

	want := []string{"first", "apple", "banana", "last"}
	if len(order) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, order[i], want[i])
		}
	}
}

func TestHookRegistry_TriggerCollectsMessages(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	reg.Register(&Hook{
		Name: "a", Type: HookTurnPre, Priority: 2, Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			return HookResult{Messages: []Message{NewMessage(RoleSystem, "one")}}, nil
		},
	})
	reg.Register(&Hook{
		Name: "b", Type: HookTurnPre, Priority: 1, Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			return HookResult{Messages: []Message{NewMessage(RoleSystem, "two")}}, nil
		},
	})

	msgs, err := reg.Trigger(context.Background(), HookTurnPre, nil)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "one" || msgs[1].Content != "two" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestHookRegistry_StopPropagation(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	secondRan := false
	reg.Register(&Hook{
		Name: "stopper", Type: HookStepPost, Priority: 10, Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			return HookResult{Messages: []Message{NewMessage(RoleSystem, "stopping")}, Stop: true}, nil
		},
	})
	reg.Register(&Hook{
		Name: "skipped", Type: HookStepPost, Priority: 1, Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			secondRan = true
			return HookResult{}, nil
		},
	})

	msgs, err := reg.Trigger(context.Background(), HookStepPost, nil)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if secondRan {
		t.Error("expected stop to skip lower-priority hooks")
	}
	if len(msgs) != 1 || msgs[0].Content != "stopping" {
		t.Errorf("expected the stopping hook's message to be delivered, got %+v", msgs)
	}

	_, stopped, err := reg.TriggerStopped(context.Background(), HookStepPost, nil)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !stopped {
		t.Error("TriggerStopped must report the stop")
	}
	_, stopped, _ = reg.TriggerStopped(context.Background(), HookTurnPre, nil)
	if stopped {
		t.Error("a type with no stopping hook must not report a stop")
	}
}

func TestHookRegistry_ErrorsAreSwallowed(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	secondRan := false
	reg.Register(&Hook{
		Name: "broken", Type: HookStepPre, Priority: 10, Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			return HookResult{}, os.ErrPermission
		},
	})
	reg.Register(&Hook{
		Name: "healthy", Type: HookStepPre, Priority: 1, Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			secondRan = true
			return HookResult{}, nil
		},
	})

	if _, err := reg.Trigger(context.Background(), HookStepPre, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !secondRan {
		t.Error("expected dispatch to continue past a failing hook")
	}
}

func TestHookRegistry_SessionCompleteIsReraised(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	secondRan := false
	reg.Register(&Hook{
		Name: "finisher", Type: HookGenerationPre, Priority: 10, Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			return HookResult{}, &SessionCompleteError{Reason: "done"}
		},
	})
	reg.Register(&Hook{
		Name: "after", Type: HookGenerationPre, Priority: 1, Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			secondRan = true
			return HookResult{}, nil
		},
	})

	_, err := reg.Trigger(context.Background(), HookGenerationPre, nil)
	if !IsSessionComplete(err) {
		t.Fatalf("expected session complete, got %v", err)
	}
	if secondRan {
		t.Error("session complete must abort dispatch immediately")
	}
}

func TestHookRegistry_PanicRecovery(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	secondRan := false
	reg.Register(&Hook{
		Name: "panicky", Type: HookTurnPost, Priority: 10, Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			panic("boom")
		},
	})
	reg.Register(&Hook{
		Name: "survivor", Type: HookTurnPost, Priority: 1, Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			secondRan = true
			return HookResult{}, nil
		},
	})

	if _, err := reg.Trigger(context.Background(), HookTurnPost, nil); err != nil {
		t.Fatalf("expected panic to be contained, got %v", err)
	}
	if !secondRan {
		t.Error("expected dispatch to continue past a panicking hook")
	}
}

func TestHookRegistry_DisabledSkipped(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	ran := false
	reg.Register(&Hook{
		Name: "sleeper", Type: HookStepPre, Enabled: false,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			ran = true
			return HookResult{}, nil
		},
	})
	reg.Trigger(context.Background(), HookStepPre, nil)
	if ran {
		t.Error("disabled hook must not run")
	}

	if !reg.Enable("sleeper") {
		t.Fatal("Enable should find the hook")
	}
	reg.Trigger(context.Background(), HookStepPre, nil)
	if !ran {
		t.Error("enabled hook should run")
	}
}

func TestHookRegistry_Unregister(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	noop := func(ctx context.Context, p *HookPayload) (HookResult, error) { return HookResult{}, nil }
	reg.Register(&Hook{Name: "dual", Type: HookStepPre, Enabled: true, Func: noop})
	reg.Register(&Hook{Name: "dual", Type: HookStepPost, Enabled: true, Func: noop})

	if !reg.Unregister("dual", HookStepPre) {
		t.Fatal("expected scoped unregister to find the hook")
	}
	if len(reg.Hooks(HookStepPre)) != 0 {
		t.Error("step.pre binding should be gone")
	}
	if len(reg.Hooks(HookStepPost)) != 1 {
		t.Error("step.post binding should survive a scoped unregister")
	}

	if !reg.Unregister("dual") {
		t.Fatal("expected unscoped unregister to find the hook")
	}
	if reg.Count() != 0 {
		t.Errorf("expected empty registry, got %d hooks", reg.Count())
	}
}

func TestHookRegistry_Transform(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	reg.Register(&Hook{
		Name: "redact", Type: HookMessageTransform, Priority: 10, Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			replaced := p.Message.WithContent(p.Message.Content + " [redacted]")
			return HookResult{Replacement: &replaced}, nil
		},
	})
	reg.Register(&Hook{
		Name: "stamp", Type: HookMessageTransform, Priority: 1, Enabled: true,
		Func: func(ctx context.Context, p *HookPayload) (HookResult, error) {
			replaced := p.Message.WithContent(p.Message.Content + " [seen]")
			return HookResult{Replacement: &replaced}, nil
		},
	})

	out := reg.Transform(context.Background(), NewMessage(RoleAssistant, "hello"))
	if out.Content != "hello [redacted] [seen]" {
		t.Errorf("replacements must thread through in order, got %q", out.Content)
	}
}

func TestInitHooks_Idempotent(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	opts := HookInitOptions{NoConfirm: true}
	InitHooks(reg, opts)
	n := reg.Count()
	if n == 0 {
		t.Fatal("expected the auto_confirm hook to be registered")
	}
	InitHooks(reg, opts)
	if reg.Count() != n {
		t.Errorf("re-init with identical options must not change the registry: %d != %d", reg.Count(), n)
	}
}

func TestInitHooks_Allowlist(t *testing.T) {
	reg := NewHookRegistry(testLogger())
	InitHooks(reg, HookInitOptions{
		NoConfirm: true,
		Allowlist: []string{"somebody_else"},
	})
	if len(reg.Hooks(HookToolConfirm)) != 0 {
		t.Error("allow-list should have filtered out auto_confirm")
	}
}
