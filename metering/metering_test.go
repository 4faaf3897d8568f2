package metering

import (
	"context"
	"errors"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmvm/wasm"
)

// loopModule exports "spin" (loops forever), "add" (i32 add) and "branchy"
// (an if/else returning a constant).
func loopModule() *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{
			{},
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		},
		Funcs: []uint32{0, 1, 2},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}, Init: wasm.NewExpr().I32Const(7).End().Bytes()},
		},
		Exports: []wasm.Export{
			{Name: "spin", Kind: wasm.KindFunc, Idx: 0},
			{Name: "add", Kind: wasm.KindFunc, Idx: 1},
			{Name: "branchy", Kind: wasm.KindFunc, Idx: 2},
		},
		Code: []wasm.FuncBody{
			{Body: wasm.NewExpr().Loop(wasm.BlockVoid).Br(0).End().End().Bytes()},
			{Body: wasm.NewExpr().LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).End().Bytes()},
			{Body: wasm.NewExpr().
				LocalGet(0).
				If(byte(wasm.ValI32)).I32Const(1).Else().I32Const(2).End().
				End().Bytes()},
		},
	}
}

func instantiate(t *testing.T, m *wasm.Module) (api.Module, api.MutableGlobal) {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })

	mod, err := r.Instantiate(ctx, m.Encode())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	g, ok := mod.ExportedGlobal(GasGlobalExport).(api.MutableGlobal)
	if !ok {
		t.Fatal("gas global is not exported as mutable")
	}
	return mod, g
}

func TestInstrument_AppendsGlobal(t *testing.T) {
	m := loopModule()
	idx, err := Instrument(m, Options{})
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if idx != 1 {
		t.Fatalf("gas global index = %d, want 1", idx)
	}
	g := m.Globals[len(m.Globals)-2]
	if g.Type.ValType != wasm.ValI64 || !g.Type.Mutable {
		t.Fatalf("unexpected gas global type %+v", g.Type)
	}
	flag := m.Globals[len(m.Globals)-1]
	if flag.Type.ValType != wasm.ValI32 || !flag.Type.Mutable {
		t.Fatalf("unexpected exhausted flag type %+v", flag.Type)
	}
	e, ok := m.Export(GasGlobalExport)
	if !ok || e.Kind != wasm.KindGlobal || e.Idx != idx {
		t.Fatalf("gas export = %+v, %v", e, ok)
	}
	e, ok = m.Export(ExhaustedGlobalExport)
	if !ok || e.Kind != wasm.KindGlobal || e.Idx != idx+1 {
		t.Fatalf("exhausted export = %+v, %v", e, ok)
	}
	if err := m.CheckFeatures(); err != nil {
		t.Fatalf("instrumented code does not walk: %v", err)
	}
}

func TestInstrument_ReservedName(t *testing.T) {
	for _, name := range []string{GasGlobalExport, ExhaustedGlobalExport} {
		m := loopModule()
		m.Exports = append(m.Exports, wasm.Export{Name: name, Kind: wasm.KindFunc, Idx: 1})
		if _, err := Instrument(m, Options{}); !errors.Is(err, ErrReservedExport) {
			t.Fatalf("%s: expected ErrReservedExport, got %v", name, err)
		}
	}
}

func exhausted(t *testing.T, mod api.Module) uint64 {
	t.Helper()
	g := mod.ExportedGlobal(ExhaustedGlobalExport)
	if g == nil {
		t.Fatal("exhausted flag is not exported")
	}
	return g.Get()
}

func TestInstrument_ChargesPerRegion(t *testing.T) {
	m := loopModule()
	if _, err := Instrument(m, Options{CostPerOperation: 10}); err != nil {
		t.Fatal(err)
	}
	mod, gas := instantiate(t, m)
	ctx := context.Background()

	// add: local.get, local.get, i32.add, end = 4 ops in one region
	gas.Set(1000)
	res, err := mod.ExportedFunction("add").Call(ctx, 2, 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res[0] != 5 {
		t.Fatalf("add = %d", res[0])
	}
	if got := gas.Get(); got != 1000-40 {
		t.Fatalf("gas left = %d, want %d", got, 1000-40)
	}

	// branchy(0): function region (local.get, if, end) + else region (i32.const, end)
	gas.Set(1000)
	res, err = mod.ExportedFunction("branchy").Call(ctx, 0)
	if err != nil {
		t.Fatalf("branchy: %v", err)
	}
	if res[0] != 2 {
		t.Fatalf("branchy = %d", res[0])
	}
	if got := gas.Get(); got != 1000-30-20 {
		t.Fatalf("gas left = %d, want %d", got, 1000-30-20)
	}
}

func TestInstrument_Exhaustion(t *testing.T) {
	m := loopModule()
	if _, err := Instrument(m, Options{}); err != nil {
		t.Fatal(err)
	}
	mod, gas := instantiate(t, m)

	gas.Set(1_000_000)
	_, err := mod.ExportedFunction("spin").Call(context.Background())
	if err == nil {
		t.Fatal("spin returned without trapping")
	}
	if got := gas.Get(); got != 0 {
		t.Fatalf("gas left after exhaustion = %d, want 0", got)
	}
	if exhausted(t, mod) != 1 {
		t.Fatal("exhaustion did not raise the flag")
	}
}

func TestInstrument_ExactGasLeavesFlag(t *testing.T) {
	m := loopModule()
	if _, err := Instrument(m, Options{CostPerOperation: 10}); err != nil {
		t.Fatal(err)
	}
	mod, gas := instantiate(t, m)

	// add costs exactly 40
	gas.Set(40)
	if _, err := mod.ExportedFunction("add").Call(context.Background(), 1, 1); err != nil {
		t.Fatalf("add with exact gas: %v", err)
	}
	if gas.Get() != 0 {
		t.Fatalf("gas left = %d", gas.Get())
	}
	if exhausted(t, mod) != 0 {
		t.Fatal("spending the last unit must not raise the flag")
	}
}

func TestInstrument_InsufficientForEntry(t *testing.T) {
	m := loopModule()
	if _, err := Instrument(m, Options{}); err != nil {
		t.Fatal(err)
	}
	mod, gas := instantiate(t, m)

	gas.Set(DefaultCostPerOperation)
	if _, err := mod.ExportedFunction("add").Call(context.Background(), 1, 1); err == nil {
		t.Fatal("expected trap")
	}
	if gas.Get() != 0 {
		t.Fatalf("gas left = %d", gas.Get())
	}
	if exhausted(t, mod) != 1 {
		t.Fatal("flag not raised")
	}
}

func TestInstrumentBody_Unbalanced(t *testing.T) {
	if _, err := instrumentBody([]byte{wasm.OpBlock, wasm.BlockVoid, wasm.OpEnd}, 1, 0); !errors.Is(err, wasm.ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
	if _, err := instrumentBody([]byte{wasm.OpEnd, wasm.OpNop}, 1, 0); !errors.Is(err, wasm.ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}
