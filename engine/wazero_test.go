package engine

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/wasm"
)

func growModule() *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{Results: []wasm.ValType{wasm.ValI32}},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "seven", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 1}},
		},
		Funcs:    []uint32{0, 1},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
			{Name: "grow", Kind: wasm.KindFunc, Idx: 1},
			{Name: "seven", Kind: wasm.KindFunc, Idx: 2},
		},
		Code: []wasm.FuncBody{
			{Body: wasm.NewExpr().LocalGet(0).MemoryGrow().End().Bytes()},
			{Body: wasm.NewExpr().Call(0).End().Bytes()},
		},
	}
}

func withSeven(b wazero.HostModuleBuilder) wazero.HostModuleBuilder {
	return b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = 7
		}), nil, []api.ValueType{api.ValueTypeI32}).
		Export("seven")
}

func TestMemoryLimitPages(t *testing.T) {
	tests := []struct {
		mib  uint32
		want uint32
	}{
		{0, 0},
		{1, 16},
		{32, 512},
		{4096, 65536},
		{100000, 65536},
	}
	for _, tt := range tests {
		if got := MemoryLimitPages(tt.mib); got != tt.want {
			t.Errorf("MemoryLimitPages(%d) = %d, want %d", tt.mib, got, tt.want)
		}
	}
}

func TestWazeroEngine_CompileInstantiate(t *testing.T) {
	ctx := context.Background()
	eng, err := NewWazeroEngineWithConfig(ctx, &Config{MemoryLimitPages: MemoryLimitPages(1) * 2})
	if err != nil {
		t.Fatalf("NewWazeroEngineWithConfig: %v", err)
	}
	defer eng.Close(ctx)

	if err := eng.InitHost(ctx, "env", withSeven); err != nil {
		t.Fatalf("InitHost: %v", err)
	}
	// second init is a no-op
	if err := eng.InitHost(ctx, "env", withSeven); err != nil {
		t.Fatalf("InitHost twice: %v", err)
	}

	mod, err := eng.Compile(ctx, growModule().Encode())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer mod.Close(ctx)
	if !mod.HasExport("grow") || mod.HasExport("missing") {
		t.Fatal("HasExport mismatch")
	}
	if mod.Size() == 0 {
		t.Fatal("module size is zero")
	}

	// two anonymous instances of the same module coexist
	a, err := eng.Instantiate(ctx, mod)
	if err != nil {
		t.Fatalf("Instantiate a: %v", err)
	}
	defer a.Close(ctx)
	b, err := eng.Instantiate(ctx, mod)
	if err != nil {
		t.Fatalf("Instantiate b: %v", err)
	}
	defer b.Close(ctx)

	gas, err := GasGlobal(a)
	if err != nil {
		t.Fatalf("GasGlobal: %v", err)
	}
	gas.Set(1_000_000)

	res, err := a.ExportedFunction("seven").Call(ctx)
	if err != nil || res[0] != 7 {
		t.Fatalf("seven = %v, %v", res, err)
	}

	// 32 pages limit: growing by 31 works (1 + 31 = 32), one more fails
	res, err = a.ExportedFunction("grow").Call(ctx, 31)
	if err != nil || int32(res[0]) != 1 {
		t.Fatalf("grow(31) = %v, %v", res, err)
	}
	res, err = a.ExportedFunction("grow").Call(ctx, 1)
	if err != nil || int32(res[0]) != -1 {
		t.Fatalf("grow(1) past limit = %v, %v", res, err)
	}
	if gas.Get() >= 1_000_000 {
		t.Fatal("gas was not charged")
	}
}

func TestWazeroEngine_CompileRejects(t *testing.T) {
	ctx := context.Background()
	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	start := growModule()
	idx := uint32(1)
	start.Start = &idx

	tests := []struct {
		name string
		code []byte
		kind errors.Kind
	}{
		{"garbage", []byte("not wasm"), errors.KindInvalidData},
		{"simd", func() []byte {
			m := growModule()
			m.Code[0].Body = []byte{wasm.OpPrefixSIMD, 0, wasm.OpEnd}
			return m.Encode()
		}(), errors.KindUnsupported},
		{"start function", start.Encode(), errors.KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Compile(ctx, tt.code)
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("expected *errors.Error, got %v", err)
			}
			if e.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s (%v)", e.Kind, tt.kind, err)
			}
		})
	}
}

func TestWazeroEngine_Closed(t *testing.T) {
	ctx := context.Background()
	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := eng.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := eng.Compile(ctx, growModule().Encode()); !stderrors.Is(err, errors.ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestWazeroEngine_CompilationCacheDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	code := growModule().Encode()

	for i := 0; i < 2; i++ {
		eng, err := NewWazeroEngineWithConfig(ctx, &Config{CompilationCacheDir: dir})
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		mod, err := eng.Compile(ctx, code)
		if err != nil {
			t.Fatalf("round %d compile: %v", i, err)
		}
		_ = mod.Close(ctx)
		if err := eng.Close(ctx); err != nil {
			t.Fatalf("round %d close: %v", i, err)
		}
	}
}

func TestSetLogger(t *testing.T) {
	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("nil logger after SetLogger(nil)")
	}
}
