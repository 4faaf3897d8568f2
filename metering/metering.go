package metering

import (
	"errors"
	"fmt"

	"github.com/wippyai/wasmvm/wasm"
)

// GasGlobalExport is the export name of the injected gas counter.
// Contracts may not export anything under this name themselves.
const GasGlobalExport = "__wasmvm_gas_left"

// ExhaustedGlobalExport is the export name of the injected i32 flag that
// metered code sets to 1 right before it traps for lack of gas.
const ExhaustedGlobalExport = "__wasmvm_gas_exhausted"

// DefaultCostPerOperation is charged for every instruction.
const DefaultCostPerOperation uint64 = 150

// ErrReservedExport is returned when a module already uses GasGlobalExport
// or ExhaustedGlobalExport.
var ErrReservedExport = errors.New("module exports reserved gas global name")

// Options configures instrumentation.
type Options struct {
	// CostPerOperation is the gas charged per instruction. Zero selects
	// DefaultCostPerOperation.
	CostPerOperation uint64
}

// Instrument rewrites m in place so that every function charges gas against
// a new exported mutable i64 global. The charge for a straight-line region is
// taken when control enters it: at function entry and right after every
// block, loop, if and else. A region whose charge exceeds the gas left sets
// the global to zero, raises the exhausted flag and traps.
//
// Both globals are appended after all existing globals, so no existing index
// changes. The gas global comes first and is returned; the exhausted flag
// follows it. Both start at zero; the host sets the gas before each call and
// reads both back afterwards.
func Instrument(m *wasm.Module, opts Options) (uint32, error) {
	cost := opts.CostPerOperation
	if cost == 0 {
		cost = DefaultCostPerOperation
	}
	for _, name := range []string{GasGlobalExport, ExhaustedGlobalExport} {
		if _, exists := m.Export(name); exists {
			return 0, ErrReservedExport
		}
	}

	gasIdx := uint32(m.NumImportedGlobals() + len(m.Globals))
	for i := range m.Code {
		body, err := instrumentBody(m.Code[i].Body, cost, gasIdx)
		if err != nil {
			return 0, fmt.Errorf("function %d: %w", m.NumImportedFuncs()+i, err)
		}
		m.Code[i].Body = body
	}

	m.Globals = append(m.Globals,
		wasm.Global{
			Type: wasm.GlobalType{ValType: wasm.ValI64, Mutable: true},
			Init: wasm.NewExpr().I64Const(0).End().Bytes(),
		},
		wasm.Global{
			Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
			Init: wasm.NewExpr().I32Const(0).End().Bytes(),
		},
	)
	m.Exports = append(m.Exports,
		wasm.Export{Name: GasGlobalExport, Kind: wasm.KindGlobal, Idx: gasIdx},
		wasm.Export{Name: ExhaustedGlobalExport, Kind: wasm.KindGlobal, Idx: gasIdx + 1},
	)
	return gasIdx, nil
}

// region is a straight-line stretch of code charged as a unit.
type region struct {
	at  int
	ops uint64
}

func instrumentBody(body []byte, cost uint64, gasIdx uint32) ([]byte, error) {
	regions := []region{{at: 0}}
	open := []int{0}

	err := wasm.Walk(body, func(ins wasm.Instruction) error {
		if len(open) == 0 {
			return fmt.Errorf("%w: instructions after function end", wasm.ErrMalformed)
		}
		regions[open[len(open)-1]].ops++

		switch ins.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			regions = append(regions, region{at: ins.End})
			open = append(open, len(regions)-1)
		case wasm.OpElse:
			if len(open) < 2 {
				return fmt.Errorf("%w: else outside of if", wasm.ErrMalformed)
			}
			regions = append(regions, region{at: ins.End})
			open[len(open)-1] = len(regions) - 1
		case wasm.OpEnd:
			open = open[:len(open)-1]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(open) != 0 {
		return nil, fmt.Errorf("%w: unterminated block", wasm.ErrMalformed)
	}

	out := make([]byte, 0, len(body)+len(regions)*32)
	prev := 0
	for _, reg := range regions {
		out = append(out, body[prev:reg.at]...)
		out = append(out, chargeSequence(gasIdx, reg.ops*cost)...)
		prev = reg.at
	}
	return append(out, body[prev:]...), nil
}

// chargeSequence subtracts amount from the gas global. When less than amount
// is left it zeroes the gas, sets the exhausted flag at gasIdx+1 and traps.
func chargeSequence(gasIdx uint32, amount uint64) []byte {
	return wasm.NewExpr().
		GlobalGet(gasIdx).
		I64Const(int64(amount)).
		Op(wasm.OpI64LtU).
		If(wasm.BlockVoid).
		I64Const(0).
		GlobalSet(gasIdx).
		I32Const(1).
		GlobalSet(gasIdx+1).
		Op(wasm.OpUnreachable).
		End().
		GlobalGet(gasIdx).
		I64Const(int64(amount)).
		Op(wasm.OpI64Sub).
		GlobalSet(gasIdx).
		Bytes()
}
