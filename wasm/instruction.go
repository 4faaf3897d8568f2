package wasm

import (
	"fmt"

	bin "github.com/wippyai/wasmvm/wasm/internal/binary"
)

// Instruction is one decoded instruction of a function body.
type Instruction struct {
	Opcode byte
	// Misc is the sub-opcode of 0xFC prefixed instructions.
	Misc uint32
	// Index is the first index immediate (function, local, global, label,
	// table or data index) when the instruction has one.
	Index uint32
	// Offset is the position of the opcode within the body.
	Offset int
	// End is the position just past the instruction's immediates.
	End int
}

// IsBlockStart reports whether the instruction opens a structured block.
func (i Instruction) IsBlockStart() bool {
	return i.Opcode == OpBlock || i.Opcode == OpLoop || i.Opcode == OpIf
}

// Walk decodes body instruction by instruction and calls fn for each one.
// Constructs outside the contract profile (SIMD, threads, exceptions, tail
// calls, GC) fail with ErrUnsupported.
func Walk(body []byte, fn func(Instruction) error) error {
	r := bin.NewReader(body)
	for !r.EOF() {
		ins := Instruction{Offset: r.Pos()}
		op, _ := r.ReadByte()
		ins.Opcode = op
		if err := readImmediates(r, &ins); err != nil {
			return &ParseError{Section: "code", Position: ins.Offset, Err: err}
		}
		ins.End = r.Pos()
		if err := fn(ins); err != nil {
			return err
		}
	}
	return nil
}

func readImmediates(r *bin.Reader, ins *Instruction) error {
	var err error
	op := ins.Opcode
	switch {
	case op == OpUnreachable, op == OpNop, op == OpElse, op == OpEnd, op == OpReturn,
		op == OpDrop, op == OpSelect, op == OpRefIsNull:
		return nil
	case op == OpBlock, op == OpLoop, op == OpIf:
		return readBlockType(r)
	case op == OpBr, op == OpBrIf, op == OpCall,
		op >= OpLocalGet && op <= OpTableSet, op == OpRefFunc:
		ins.Index, err = r.ReadU32()
		return err
	case op == OpBrTable:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i <= n; i++ {
			if _, err := r.ReadU32(); err != nil {
				return err
			}
		}
		return nil
	case op == OpCallIndirect:
		if ins.Index, err = r.ReadU32(); err != nil {
			return err
		}
		_, err = r.ReadU32()
		return err
	case op == OpSelectType:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := readValType(r); err != nil {
				return err
			}
		}
		return nil
	case op >= OpI32Load && op <= OpI64Store32:
		align, err := r.ReadU32()
		if err != nil {
			return err
		}
		if align&0x40 != 0 {
			return fmt.Errorf("%w: multiple memories", ErrUnsupported)
		}
		_, err = r.ReadU32()
		return err
	case op == OpMemorySize, op == OpMemoryGrow:
		return readMemIdx(r)
	case op == OpI32Const:
		_, err = r.ReadS32()
		return err
	case op == OpI64Const:
		_, err = r.ReadS64()
		return err
	case op == OpF32Const:
		_, err = r.ReadBytes(4)
		return err
	case op == OpF64Const:
		_, err = r.ReadBytes(8)
		return err
	case op >= OpI32Eqz && op <= OpI64Extend32S:
		return nil
	case op == OpRefNull:
		_, err = r.ReadS33()
		return err
	case op == OpPrefixMisc:
		return readMiscImmediates(r, ins)
	case op == OpPrefixSIMD:
		return fmt.Errorf("%w: SIMD", ErrUnsupported)
	case op == OpPrefixAtomic:
		return fmt.Errorf("%w: threads", ErrUnsupported)
	case op == OpPrefixGC, op >= 0xD3 && op <= 0xD6:
		return fmt.Errorf("%w: GC and typed function references", ErrUnsupported)
	case op == OpReturnCall, op == OpReturnCallIndirect, op == OpCallRef, op == OpReturnCallRef:
		return fmt.Errorf("%w: tail calls and call_ref", ErrUnsupported)
	case op >= OpTry && op <= OpThrowRef, op == OpDelegate, op == OpCatchAll, op == OpTryTable:
		return fmt.Errorf("%w: exception handling", ErrUnsupported)
	default:
		return fmt.Errorf("%w: unknown opcode 0x%02x", ErrMalformed, op)
	}
}

func readBlockType(r *bin.Reader) error {
	b, err := r.PeekByte()
	if err != nil {
		return err
	}
	if b == BlockVoid {
		_, err = r.ReadByte()
		return err
	}
	if b&0x40 != 0 && b&0x80 == 0 {
		// single byte negative: a value type
		_, err = readValType(r)
		return err
	}
	idx, err := r.ReadS33()
	if err != nil {
		return err
	}
	if idx < 0 {
		return fmt.Errorf("%w: block type %d", ErrMalformed, idx)
	}
	return nil
}

func readMemIdx(r *bin.Reader) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	if idx != 0 {
		return fmt.Errorf("%w: multiple memories", ErrUnsupported)
	}
	return nil
}

func readMiscImmediates(r *bin.Reader, ins *Instruction) error {
	sub, err := r.ReadU32()
	if err != nil {
		return err
	}
	ins.Misc = sub
	switch sub {
	case 0, 1, 2, 3, 4, 5, 6, 7:
		return nil
	case MiscMemoryInit:
		if ins.Index, err = r.ReadU32(); err != nil {
			return err
		}
		return readMemIdx(r)
	case MiscDataDrop, MiscElemDrop, MiscTableGrow, MiscTableSize, MiscTableFill:
		ins.Index, err = r.ReadU32()
		return err
	case MiscMemoryCopy:
		if err := readMemIdx(r); err != nil {
			return err
		}
		return readMemIdx(r)
	case MiscMemoryFill:
		return readMemIdx(r)
	case MiscTableInit, MiscTableCopy:
		if ins.Index, err = r.ReadU32(); err != nil {
			return err
		}
		_, err = r.ReadU32()
		return err
	default:
		return fmt.Errorf("%w: 0xFC sub-opcode %d", ErrUnsupported, sub)
	}
}

// CheckFeatures walks every function body and reports the first construct
// outside the contract profile.
func (m *Module) CheckFeatures() error {
	for i, body := range m.Code {
		if err := Walk(body.Body, func(Instruction) error { return nil }); err != nil {
			return fmt.Errorf("function %d: %w", m.NumImportedFuncs()+i, err)
		}
	}
	return nil
}
