package wasm

import (
	bin "github.com/wippyai/wasmvm/wasm/internal/binary"
)

// Expr assembles an instruction sequence.
//
//	body := wasm.NewExpr().
//		LocalGet(0).I32Const(1).Op(wasm.OpI32Add).
//		End().Bytes()
type Expr struct {
	w *bin.Writer
}

// NewExpr creates an empty instruction sequence.
func NewExpr() *Expr {
	return &Expr{w: bin.NewWriter()}
}

// Bytes returns the encoded instructions.
func (e *Expr) Bytes() []byte {
	return e.w.Bytes()
}

// Op appends opcodes without immediates.
func (e *Expr) Op(ops ...byte) *Expr {
	e.w.WriteBytes(ops)
	return e
}

func (e *Expr) I32Const(v int32) *Expr {
	e.w.Byte(OpI32Const)
	e.w.WriteS32(v)
	return e
}

func (e *Expr) I64Const(v int64) *Expr {
	e.w.Byte(OpI64Const)
	e.w.WriteS64(v)
	return e
}

func (e *Expr) LocalGet(idx uint32) *Expr  { return e.indexed(OpLocalGet, idx) }
func (e *Expr) LocalSet(idx uint32) *Expr  { return e.indexed(OpLocalSet, idx) }
func (e *Expr) LocalTee(idx uint32) *Expr  { return e.indexed(OpLocalTee, idx) }
func (e *Expr) GlobalGet(idx uint32) *Expr { return e.indexed(OpGlobalGet, idx) }
func (e *Expr) GlobalSet(idx uint32) *Expr { return e.indexed(OpGlobalSet, idx) }
func (e *Expr) Call(idx uint32) *Expr      { return e.indexed(OpCall, idx) }
func (e *Expr) Br(label uint32) *Expr      { return e.indexed(OpBr, label) }
func (e *Expr) BrIf(label uint32) *Expr    { return e.indexed(OpBrIf, label) }

// Block opens a block with a single-byte block type (BlockVoid or a ValType).
func (e *Expr) Block(bt byte) *Expr { return e.Op(OpBlock, bt) }
func (e *Expr) Loop(bt byte) *Expr  { return e.Op(OpLoop, bt) }
func (e *Expr) If(bt byte) *Expr    { return e.Op(OpIf, bt) }
func (e *Expr) Else() *Expr         { return e.Op(OpElse) }
func (e *Expr) End() *Expr          { return e.Op(OpEnd) }

// Mem appends a load or store with the given alignment exponent and offset.
func (e *Expr) Mem(op byte, align, offset uint32) *Expr {
	e.w.Byte(op)
	e.w.WriteU32(align)
	e.w.WriteU32(offset)
	return e
}

// MemoryGrow appends memory.grow on memory 0.
func (e *Expr) MemoryGrow() *Expr {
	return e.Op(OpMemoryGrow, 0x00)
}

// MemorySize appends memory.size on memory 0.
func (e *Expr) MemorySize() *Expr {
	return e.Op(OpMemorySize, 0x00)
}

func (e *Expr) indexed(op byte, idx uint32) *Expr {
	e.w.Byte(op)
	e.w.WriteU32(idx)
	return e
}
