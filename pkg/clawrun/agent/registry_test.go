package agent

import (
	"context"
	"errors"
	"testing"
)

func TestInitTools_AllowlistOrder(t *testing.T) {
	RegisterToolModule(t.Name(), func() []*ToolSpec {
		return []*ToolSpec{echoSpec("alpha"), echoSpec("beta"), echoSpec("gamma")}
	})
	reg := NewToolRegistry(testLogger())
	err := reg.InitTools(context.Background(), InitOptions{
		Allowlist: []string{"gamma", "alpha"},
		Modules:   []string{t.Name()},
	}, nil)
	if err != nil {
		t.Fatalf("init tools: %v", err)
	}
	loaded := reg.Tools()
	if len(loaded) != 2 || loaded[0].Name != "gamma" || loaded[1].Name != "alpha" {
		t.Errorf("allow-list order must be preserved, got %v", toolNames(loaded))
	}
	if _, ok := reg.Get("beta"); ok {
		t.Error("beta was not allow-listed and must not load")
	}
}

func TestInitTools_UnknownAllowlistedToolFailsFast(t *testing.T) {
	RegisterToolModule(t.Name(), func() []*ToolSpec { return []*ToolSpec{echoSpec("alpha")} })
	reg := NewToolRegistry(testLogger())
	err := reg.InitTools(context.Background(), InitOptions{
		Allowlist: []string{"alpha", "missing"},
		Modules:   []string{t.Name()},
	}, nil)
	if err == nil {
		t.Fatal("an unknown allow-listed tool must fail initialization")
	}
}

func TestInitTools_UnavailableSkipped(t *testing.T) {
	offline := echoSpec("offline")
	offline.Available = func() bool { return false }
	RegisterToolModule(t.Name(), func() []*ToolSpec { return []*ToolSpec{echoSpec("online"), offline} })

	reg := NewToolRegistry(testLogger())
	if err := reg.InitTools(context.Background(), InitOptions{Modules: []string{t.Name()}}, nil); err != nil {
		t.Fatalf("init tools: %v", err)
	}
	if _, ok := reg.Get("offline"); ok {
		t.Error("unavailable tools must be skipped")
	}
	if _, ok := reg.Get("online"); !ok {
		t.Error("available tools must load")
	}
}

func TestInitTools_DisabledByDefault(t *testing.T) {
	quiet := echoSpec("quiet")
	quiet.DisabledByDefault = true
	RegisterToolModule(t.Name(), func() []*ToolSpec { return []*ToolSpec{quiet} })

	reg := NewToolRegistry(testLogger())
	if err := reg.InitTools(context.Background(), InitOptions{Modules: []string{t.Name()}}, nil); err != nil {
		t.Fatalf("init tools: %v", err)
	}
	if _, ok := reg.Get("quiet"); ok {
		t.Error("disabled-by-default tools need an explicit allow-list entry")
	}

	reg2 := NewToolRegistry(testLogger())
	if err := reg2.InitTools(context.Background(), InitOptions{
		Allowlist: []string{"quiet"},
		Modules:   []string{t.Name()},
	}, nil); err != nil {
		t.Fatalf("init tools with allowlist: %v", err)
	}
	if _, ok := reg2.Get("quiet"); !ok {
		t.Error("the allow-list overrides disabled-by-default")
	}
}

func TestInitTools_Idempotent(t *testing.T) {
	inits := 0
	spec := echoSpec("counted")
	spec.Init = func(ctx context.Context) (*ToolSpec, error) {
		inits++
		return nil, nil
	}
	RegisterToolModule(t.Name(), func() []*ToolSpec { return []*ToolSpec{spec} })

	reg := NewToolRegistry(testLogger())
	opts := InitOptions{Modules: []string{t.Name()}}
	for i := 0; i < 3; i++ {
		if err := reg.InitTools(context.Background(), opts, nil); err != nil {
			t.Fatalf("init %d: %v", i, err)
		}
	}
	if inits != 1 {
		t.Errorf("tool init must run at most once, ran %d times", inits)
	}
}

func TestInitTools_InitReplacement(t *testing.T) {
	spec := echoSpec("morpher")
	spec.Init = func(ctx context.Context) (*ToolSpec, error) {
		replaced := echoSpec("morpher", "morph")
		replaced.Desc = "initialized"
		return replaced, nil
	}
	RegisterToolModule(t.Name(), func() []*ToolSpec { return []*ToolSpec{spec} })

	reg := NewToolRegistry(testLogger())
	if err := reg.InitTools(context.Background(), InitOptions{Modules: []string{t.Name()}}, nil); err != nil {
		t.Fatalf("init tools: %v", err)
	}
	loaded, ok := reg.Get("morpher")
	if !ok || loaded.Desc != "initialized" {
		t.Errorf("the init replacement must be the loaded spec, got %+v", loaded)
	}
	if _, ok := reg.ResolveBlockType("morph"); !ok {
		t.Error("replacement block types must be indexed")
	}
}

func TestInitTools_InitFailureSkipsTool(t *testing.T) {
	broken := echoSpec("broken")
	broken.Init = func(ctx context.Context) (*ToolSpec, error) {
		return nil, errors.New("no backend")
	}
	RegisterToolModule(t.Name(), func() []*ToolSpec { return []*ToolSpec{broken, echoSpec("fine")} })

	reg := NewToolRegistry(testLogger())
	if err := reg.InitTools(context.Background(), InitOptions{Modules: []string{t.Name()}}, nil); err != nil {
		t.Fatalf("init tools: %v", err)
	}
	if _, ok := reg.Get("broken"); ok {
		t.Error("a tool whose init fails must be skipped")
	}
	if _, ok := reg.Get("fine"); !ok {
		t.Error("other tools still load")
	}
}

func TestInitTools_ToolHooksRegistered(t *testing.T) {
	spec := echoSpec("hooked")
	spec.Hooks = []*Hook{{
		Name: "hooked_guard", Type: HookToolConfirm, Enabled: true,
		Confirm: func(ctx context.Context, req *ConfirmRequest) (*ConfirmationResult, error) {
			return nil, nil
		},
	}}
	RegisterToolModule(t.Name(), func() []*ToolSpec { return []*ToolSpec{spec} })

	hooks := NewHookRegistry(testLogger())
	reg := NewToolRegistry(testLogger())
	if err := reg.InitTools(context.Background(), InitOptions{Modules: []string{t.Name()}}, hooks); err != nil {
		t.Fatalf("init tools: %v", err)
	}
	if len(hooks.Hooks(HookToolConfirm)) != 1 {
		t.Error("tool-declared hooks must land in the hook registry")
	}
}

func TestResolve_BlockTypeAlias(t *testing.T) {
	reg := newTestToolRegistry(t, echoSpec("shell", "bash", "sh"))
	for _, name := range []string{"shell", "bash", "sh"} {
		if _, ok := reg.Resolve(name); !ok {
			t.Errorf("Resolve(%s) should find the shell tool", name)
		}
	}
	if _, ok := reg.Get("bash"); ok {
		t.Error("Get is strict by name and must not match block types")
	}
}

func toolNames(specs []*ToolSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}
