package wasm

import (
	"errors"
	"testing"
)

func TestWalk_Offsets(t *testing.T) {
	body := NewExpr().
		Block(BlockVoid).
		Loop(BlockVoid).
		LocalGet(0).
		I32Const(300).
		Op(OpI32Add).
		BrIf(0).
		End().
		End().
		Call(7).
		End().
		Bytes()

	var ops []byte
	var calls []uint32
	err := Walk(body, func(ins Instruction) error {
		ops = append(ops, ins.Opcode)
		if ins.Opcode == OpCall {
			calls = append(calls, ins.Index)
		}
		if ins.End <= ins.Offset {
			t.Fatalf("instruction 0x%02x has empty extent", ins.Opcode)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []byte{OpBlock, OpLoop, OpLocalGet, OpI32Const, OpI32Add, OpBrIf, OpEnd, OpEnd, OpCall, OpEnd}
	if string(ops) != string(want) {
		t.Fatalf("ops = %x, want %x", ops, want)
	}
	if len(calls) != 1 || calls[0] != 7 {
		t.Fatalf("calls = %v", calls)
	}
}

func TestWalk_BlockExtent(t *testing.T) {
	body := NewExpr().If(byte(ValI32)).I32Const(1).Else().I32Const(2).End().End().Bytes()
	var first Instruction
	_ = Walk(body, func(ins Instruction) error {
		if ins.IsBlockStart() {
			first = ins
		}
		return nil
	})
	if first.Offset != 0 || first.End != 2 {
		t.Fatalf("if extent = [%d,%d), want [0,2)", first.Offset, first.End)
	}
}

func TestWalk_Supported(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"sign extension", []byte{OpI32Const, 1, OpI32Extend8S, OpDrop, OpEnd}},
		{"sat trunc", []byte{OpF32Const, 0, 0, 0, 0, OpPrefixMisc, 0, OpDrop, OpEnd}},
		{"memory copy", []byte{OpI32Const, 0, OpI32Const, 0, OpI32Const, 0, OpPrefixMisc, 10, 0, 0, OpEnd}},
		{"memory fill", []byte{OpI32Const, 0, OpI32Const, 0, OpI32Const, 0, OpPrefixMisc, 11, 0, OpEnd}},
		{"ref null", []byte{OpRefNull, 0x70, OpRefIsNull, OpDrop, OpEnd}},
		{"br_table", []byte{OpBlock, BlockVoid, OpI32Const, 0, OpBrTable, 1, 0, 0, OpEnd, OpEnd}},
		{"typed select", []byte{OpI32Const, 0, OpI32Const, 0, OpI32Const, 0, OpSelectType, 1, 0x7F, OpDrop, OpEnd}},
		{"typed block", []byte{OpBlock, 0x00, OpEnd, OpEnd}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Walk(tt.body, func(Instruction) error { return nil }); err != nil {
				t.Fatalf("Walk: %v", err)
			}
		})
	}
}

func TestWalk_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want error
	}{
		{"simd", []byte{OpPrefixSIMD, 0x0C}, ErrUnsupported},
		{"atomics", []byte{OpPrefixAtomic, 0x00}, ErrUnsupported},
		{"gc", []byte{OpPrefixGC, 0x00}, ErrUnsupported},
		{"try", []byte{OpTry, BlockVoid}, ErrUnsupported},
		{"return_call", []byte{OpReturnCall, 0}, ErrUnsupported},
		{"multi memory", []byte{OpMemorySize, 1}, ErrUnsupported},
		{"unknown misc", []byte{OpPrefixMisc, 18}, ErrUnsupported},
		{"unknown opcode", []byte{0x27}, ErrMalformed},
		{"truncated", []byte{OpI32Const}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Walk(tt.body, func(Instruction) error { return nil })
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCheckFeatures(t *testing.T) {
	m := sampleModule()
	if err := m.CheckFeatures(); err != nil {
		t.Fatalf("CheckFeatures: %v", err)
	}
	m.Code[1].Body = []byte{OpPrefixSIMD, 0, OpEnd}
	if err := m.CheckFeatures(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestWalk_CallbackError(t *testing.T) {
	stop := errors.New("stop")
	n := 0
	err := Walk([]byte{OpNop, OpNop, OpEnd}, func(Instruction) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}
