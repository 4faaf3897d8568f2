// Package engine wraps wazero for contract execution.
//
// A WazeroEngine owns one wazero runtime. Compile parses a contract, injects
// gas metering (see package metering) and compiles it; the resulting
// WazeroModule is what the module cache keeps in its memory and pinned
// tiers. Instantiate creates an anonymous instance without running start
// functions, so many instances of the same contract can coexist.
//
// # Configuration
//
//	eng, err := engine.NewWazeroEngineWithConfig(ctx, &engine.Config{
//		MemoryLimitPages:    engine.MemoryLimitPages(32), // 32 MiB
//		CompilationCacheDir: filepath.Join(dataDir, "modules"),
//	})
//
// With CompilationCacheDir set, machine code survives restarts and a module
// already seen by a previous process is loaded instead of recompiled.
//
// # Host modules
//
// Host functions are registered once per engine with InitHost. Per-call
// state must travel through the context passed to the exported function
// call, not through the host module.
//
// # Logging
//
// The package logs through a zap logger that defaults to a no-op logger.
// Use SetLogger to route engine logs into the application's logger.
package engine
