// Package runtime executes contract entry points on modules held by the
// module cache.
//
// # Quick Start
//
//	ctx := context.Background()
//	vm, err := runtime.New(ctx, runtime.Options{
//	    Cache: cache.Options{
//	        BaseDir:                "/var/lib/wasmvm",
//	        AvailableCapabilities:  []string{"iterator", "staking"},
//	        MemoryCacheSizeMiB:     100,
//	        InstanceMemoryLimitMiB: 32,
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer vm.Close(ctx)
//
//	checksum, err := vm.Cache().SaveWasm(ctx, code, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, gas, err := vm.Instantiate(ctx, checksum, env, info, msg, backend,
//	    runtime.CallOptions{GasLimit: 200_000_000_000})
//
// # Calls
//
// Every entry point call acquires a fresh instance of the compiled module,
// writes its arguments into guest memory through the contract's allocate
// export and calls the export with the region pointers. instantiate and
// execute take env, info and msg; all other entry points take env and msg.
// The instance is closed after the call and the compiled module returns to
// the cache.
//
// # Gas
//
// Compiled modules carry an injected gas counter. The instance starts with
// the call's gas limit, instructions draw it down, and backend calls charge
// their reported cost and externally used gas against it. When it reaches
// zero the call fails with an out of gas error. The gas report returned with
// every call that acquired an instance splits the spent gas into the part
// used inside the engine and the part used by the backend.
//
// # Host Functions
//
// The env module provides db_read, db_write, db_remove, db_scan, db_next,
// db_next_key, db_next_value, addr_validate, addr_canonicalize,
// addr_humanize, query_chain, debug and abort. Queries run read-only.
// Debug messages are written to Options.DebugWriter when the call sets
// PrintDebug and dropped otherwise.
//
// # Errors
//
// Errors are *errors.Error values. Gas exhaustion matches errors.ErrOutOfGas,
// a contract abort matches errors.ErrAborted and failing backend calls keep
// the kind the backend reported. Other traps are VM errors.
package runtime
