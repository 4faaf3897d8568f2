// Package wasmvm runs smart contracts compiled to WebAssembly against a
// host-provided key/value store, address API and chain querier.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmvm/              Root package with the VM facade
//	├── api/             Host-side Go API: host objects to vtables, call frames
//	├── ffi/             Handle-based call boundary with status codes
//	├── runtime/         Instances, env host imports, region ABI, dispatch
//	├── cache/           Checksummed code store, pinned and memory tiers
//	├── engine/          wazero integration and compilation cache
//	├── metering/        Gas instrumentation of wasm code
//	├── wasm/            Core wasm binary parsing and encoding
//	├── storage/         Backend bridges, gas metered KV, goleveldb store
//	├── buffer/          Borrowed views and owned vectors across the boundary
//	├── resource/        Handle tables
//	├── metrics/         Prometheus collector for cache metrics
//	├── types/           Shared data model
//	└── errors/          Structured error types and status codes
//
// # Quick Start
//
//	vm, err := wasmvm.NewVM(dir, []string{"iterator", "staking"}, 32, false, 100)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer vm.Cleanup()
//
//	checksum, _, err := vm.StoreCode(code, math.MaxUint64)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, report, err := vm.Instantiate(checksum, env, info, msg,
//	    store, goAPI, querier, meter, gasLimit)
//
// # Gas
//
// Each call gets gasLimit units. Wasm execution is charged per instruction
// block and reported as UsedInternally; gas measured on the host meter
// during storage, address and query callbacks is reported as
// UsedExternally. Running out of either fails the call with
// errors.ErrOutOfGas.
//
// # Thread Safety
//
// VM is safe for concurrent use. Every call runs in a fresh instance of a
// shared compiled module, so calls never see each other's memory.
//
// # Memory Model
//
// Wasm linear memory can only grow. Instances are discarded after one call,
// which returns their memory; the instance memory limit bounds what a
// single call can allocate.
package wasmvm
