// Package wasm decodes, inspects and re-encodes WebAssembly contract binaries.
//
// The decoder accepts the contract profile: WebAssembly 1.0 plus sign
// extension, saturating truncation, bulk memory and reference types. SIMD,
// threads, exception handling, tail calls, GC, multi-memory and memory64 are
// rejected with ErrUnsupported. Structural problems yield ErrMalformed.
//
// Only the sections the VM reasons about are decoded into typed fields
// (types, imports, functions, memories, globals, exports, start, code).
// Table, element, data count and data sections are validated where needed
// and otherwise carried as raw payloads so that Encode preserves them.
//
// # Parsing
//
//	m, err := wasm.ParseModule(data)
//	if err != nil {
//		return err
//	}
//	if err := m.CheckFeatures(); err != nil {
//		return err
//	}
//
// # Walking instructions
//
// Walk visits each instruction of a function body with its byte offsets,
// which is what the gas metering pass needs to splice in charges:
//
//	err := wasm.Walk(m.Code[0].Body, func(ins wasm.Instruction) error {
//		if ins.IsBlockStart() {
//			// ins.End is the first byte inside the block
//		}
//		return nil
//	})
//
// # Building
//
// Expr assembles instruction sequences and Module.Encode serializes a module,
// so contracts for tests can be produced in code.
package wasm
