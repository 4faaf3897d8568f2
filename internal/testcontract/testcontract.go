// Package testcontract builds small contracts for tests.
//
// The contracts speak the region ABI and the env host imports. Their data
// lives below HeapBase; allocate is a bump allocator above it.
package testcontract

import (
	"encoding/binary"

	"github.com/wippyai/wasmvm/wasm"
)

// Static layout below the heap.
const (
	KeyRegion    = 64
	ResultRegion = 80
	DebugRegion  = 96
	AbortRegion  = 112
	HeapBase     = 4096
)

// Static payloads.
var (
	Key          = []byte("config")
	Result       = []byte(`{"ok":{"messages":[],"attributes":[],"events":[],"data":null}}`)
	DebugMessage = []byte("instantiating")
	AbortMessage = []byte("boom")
)

// Execute message tags, taken from the third byte of the message.
var (
	// MsgSpin loops until gas runs out.
	MsgSpin = []byte(`{"spin":{}}`)
	// MsgFail calls abort.
	MsgFail = []byte(`{"fail":{}}`)
	// MsgIterate opens a full ascending scan and reads one record.
	MsgIterate = []byte(`{"iter":{}}`)
	// MsgTrap hits unreachable without calling the host.
	MsgTrap = []byte(`{"trap":{}}`)
	// MsgRead reads the stored config and discards it.
	MsgRead = []byte(`{"read":{}}`)
)

// IBCExports are the six IBC hooks.
var IBCExports = []string{
	"ibc_channel_open",
	"ibc_channel_connect",
	"ibc_channel_close",
	"ibc_packet_receive",
	"ibc_packet_ack",
	"ibc_packet_timeout",
}

// Options varies the generated contract.
type Options struct {
	// Capabilities become requires_<name> exports.
	Capabilities []string
	// IBC adds the six IBC entry points.
	IBC bool
	// ExtraImport adds an import with signature () -> ().
	ExtraImport *wasm.Import
	// OmitExport drops an export by name.
	OmitExport string
	// ImportMemory imports the memory from env instead of defining it.
	ImportMemory bool
	// Start marks interface_version_8 as the start function.
	Start bool
	// InterfaceVersion overrides the marker export name.
	InterfaceVersion string
}

// types
const (
	tI32ToI32 = iota
	tI32ToNone
	tNone
	tI32x3ToI32
	tI32x2ToI32
	tI32x2ToNone
)

// env imports, in function index order
var envImports = []struct {
	name string
	typ  uint32
}{
	{"db_read", tI32ToI32},
	{"db_write", tI32x2ToNone},
	{"db_remove", tI32ToNone},
	{"db_scan", tI32x3ToI32},
	{"db_next", tI32ToI32},
	{"db_next_key", tI32ToI32},
	{"db_next_value", tI32ToI32},
	{"addr_validate", tI32ToI32},
	{"addr_canonicalize", tI32x2ToI32},
	{"addr_humanize", tI32x2ToI32},
	{"query_chain", tI32ToI32},
	{"debug", tI32ToNone},
	{"abort", tI32ToNone},
}

func importIdx(name string) uint32 {
	for i, imp := range envImports {
		if imp.name == name {
			return uint32(i)
		}
	}
	panic("testcontract: unknown import " + name)
}

// Hackatom is a contract needing no capabilities.
func Hackatom() []byte {
	return Build(Options{}).Encode()
}

// IBCReflect exports the IBC hooks and requires iterator and stargate.
func IBCReflect() []byte {
	return Build(Options{Capabilities: []string{"stargate", "iterator"}, IBC: true}).Encode()
}

// Build assembles a contract module.
func Build(opts Options) *wasm.Module {
	i32 := wasm.ValI32
	m := &wasm.Module{
		Types: []wasm.FuncType{
			tI32ToI32:    {Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}},
			tI32ToNone:   {Params: []wasm.ValType{i32}},
			tNone:        {},
			tI32x3ToI32:  {Params: []wasm.ValType{i32, i32, i32}, Results: []wasm.ValType{i32}},
			tI32x2ToI32:  {Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
			tI32x2ToNone: {Params: []wasm.ValType{i32, i32}},
		},
		Globals: []wasm.Global{{
			Type: wasm.GlobalType{ValType: i32, Mutable: true},
			Init: wasm.NewExpr().I32Const(HeapBase).End().Bytes(),
		}},
	}

	for _, imp := range envImports {
		m.Imports = append(m.Imports, wasm.Import{
			Module: "env",
			Name:   imp.name,
			Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: imp.typ},
		})
	}
	if opts.ExtraImport != nil {
		extra := *opts.ExtraImport
		extra.Desc = wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: tNone}
		m.Imports = append(m.Imports, extra)
	}
	if opts.ImportMemory {
		m.Imports = append(m.Imports, wasm.Import{
			Module: "env",
			Name:   "memory",
			Desc:   wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: 1}}},
		})
	} else {
		m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	}
	m.Exports = append(m.Exports, wasm.Export{Name: "memory", Kind: wasm.KindMemory})

	base := uint32(m.NumImportedFuncs())
	add := func(name string, typ uint32, locals []wasm.LocalEntry, body []byte) uint32 {
		idx := base + uint32(len(m.Funcs))
		m.Funcs = append(m.Funcs, typ)
		m.Code = append(m.Code, wasm.FuncBody{Locals: locals, Body: body})
		if name != opts.OmitExport {
			m.Exports = append(m.Exports, wasm.Export{Name: name, Kind: wasm.KindFunc, Idx: idx})
		}
		return idx
	}
	oneI32 := []wasm.LocalEntry{{Count: 1, ValType: i32}}
	returnResult := wasm.NewExpr().I32Const(ResultRegion).End().Bytes()

	add("allocate", tI32ToI32, oneI32, allocateBody())
	add("deallocate", tI32ToNone, nil, wasm.NewExpr().End().Bytes())

	marker := "interface_version_8"
	if opts.InterfaceVersion != "" {
		marker = opts.InterfaceVersion
	}
	markerIdx := add(marker, tNone, nil, wasm.NewExpr().End().Bytes())
	if opts.Start {
		m.Start = &markerIdx
	}

	add("instantiate", tI32x3ToI32, nil, wasm.NewExpr().
		I32Const(DebugRegion).Call(importIdx("debug")).
		I32Const(KeyRegion).LocalGet(2).Call(importIdx("db_write")).
		I32Const(ResultRegion).
		End().Bytes())
	add("execute", tI32x3ToI32, oneI32, executeBody())
	add("query", tI32x2ToI32, oneI32, wasm.NewExpr().
		I32Const(KeyRegion).Call(importIdx("db_read")).LocalTee(2).
		Op(wasm.OpI32Eqz).
		If(byte(i32)).I32Const(ResultRegion).Else().LocalGet(2).End().
		End().Bytes())
	add("migrate", tI32x2ToI32, nil, returnResult)
	add("sudo", tI32x2ToI32, nil, returnResult)
	add("reply", tI32x2ToI32, nil, returnResult)

	for _, c := range opts.Capabilities {
		add("requires_"+c, tNone, nil, wasm.NewExpr().End().Bytes())
	}
	if opts.IBC {
		for _, name := range IBCExports {
			add(name, tI32x2ToI32, nil, returnResult)
		}
	}

	m.Data = wasm.EncodeData([]wasm.DataSegment{
		region(KeyRegion, 256, Key),
		{Offset: 256, Init: Key},
		region(ResultRegion, 512, Result),
		{Offset: 512, Init: Result},
		region(DebugRegion, 1024, DebugMessage),
		{Offset: 1024, Init: DebugMessage},
		region(AbortRegion, 1280, AbortMessage),
		{Offset: 1280, Init: AbortMessage},
	})
	return m
}

func region(at, offset uint32, data []byte) wasm.DataSegment {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:], offset)
	binary.LittleEndian.PutUint32(b[4:], uint32(len(data)))
	binary.LittleEndian.PutUint32(b[8:], uint32(len(data)))
	return wasm.DataSegment{Offset: at, Init: b}
}

// allocateBody: (size) -> region ptr, local 1 holds the region.
func allocateBody() []byte {
	return wasm.NewExpr().
		GlobalGet(0).LocalSet(1).
		GlobalGet(0).I32Const(12).Op(wasm.OpI32Add).LocalGet(0).Op(wasm.OpI32Add).GlobalSet(0).
		Block(wasm.BlockVoid).
		Loop(wasm.BlockVoid).
		GlobalGet(0).MemorySize().I32Const(16).Op(wasm.OpI32Shl).Op(wasm.OpI32LeU).BrIf(1).
		I32Const(1).MemoryGrow().I32Const(-1).Op(wasm.OpI32Eq).
		If(wasm.BlockVoid).Op(wasm.OpUnreachable).End().
		Br(0).
		End().
		End().
		LocalGet(1).LocalGet(1).I32Const(12).Op(wasm.OpI32Add).Mem(wasm.OpI32Store, 2, 0).
		LocalGet(1).LocalGet(0).Mem(wasm.OpI32Store, 2, 4).
		LocalGet(1).I32Const(0).Mem(wasm.OpI32Store, 2, 8).
		LocalGet(1).
		End().Bytes()
}

// executeBody: (env, info, msg) -> region ptr, local 3 holds the message tag.
func executeBody() []byte {
	tagIs := func(e *wasm.Expr, c byte) *wasm.Expr {
		return e.LocalGet(3).I32Const(int32(c)).Op(wasm.OpI32Eq).If(wasm.BlockVoid)
	}

	e := wasm.NewExpr().
		LocalGet(2).Mem(wasm.OpI32Load, 2, 8).I32Const(3).Op(wasm.OpI32GeU).
		If(wasm.BlockVoid).
		LocalGet(2).Mem(wasm.OpI32Load, 2, 0).Mem(wasm.OpI32Load8U, 0, 2).LocalSet(3).
		End()

	tagIs(e, 's').Loop(wasm.BlockVoid).Br(0).End().End()
	tagIs(e, 'f').I32Const(AbortRegion).Call(importIdx("abort")).Op(wasm.OpUnreachable).End()
	tagIs(e, 't').Op(wasm.OpUnreachable).End()
	tagIs(e, 'i').
		I32Const(0).I32Const(0).I32Const(1).Call(importIdx("db_scan")).
		Call(importIdx("db_next")).Op(wasm.OpDrop).
		End()

	return e.
		I32Const(KeyRegion).Call(importIdx("db_read")).Op(wasm.OpDrop).
		I32Const(ResultRegion).
		End().Bytes()
}
