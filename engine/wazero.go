package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/metering"
	"github.com/wippyai/wasmvm/wasm"
)

// PagesPerMiB is the number of 64 KiB wasm pages in one MiB.
const PagesPerMiB = 16

// WazeroEngine compiles metered contract modules and instantiates them in a
// single wazero runtime shared by all calls.
type WazeroEngine struct {
	runtime     wazero.Runtime
	compilation wazero.CompilationCache
	cost        uint64
	hostMu      sync.Mutex
	hosts       map[string]struct{}
	closed      atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// CompilationCacheDir persists compiled machine code between processes.
	// Empty keeps compiled code in memory only.
	CompilationCacheDir string

	// CostPerOperation is the gas charged per instruction.
	// 0 means metering.DefaultCostPerOperation.
	CostPerOperation uint64
}

// NewWazeroEngine creates a new wazero-based engine with defaults.
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	e := &WazeroEngine{
		cost:  cfg.CostPerOperation,
		hosts: make(map[string]struct{}),
	}
	if cfg.CompilationCacheDir != "" {
		cc, err := wazero.NewCompilationCacheWithDir(cfg.CompilationCacheDir)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseCompile, errors.KindInstantiation, err, "open compilation cache")
		}
		e.compilation = cc
		runtimeCfg = runtimeCfg.WithCompilationCache(cc)
	}

	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	Logger().Debug("engine created",
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
		zap.String("compilation_cache", cfg.CompilationCacheDir))
	return e, nil
}

// MemoryLimitPages converts a limit in MiB into wasm pages. 0 stays 0.
func MemoryLimitPages(mib uint32) uint32 {
	pages := uint64(mib) * PagesPerMiB
	if pages > 65536 {
		return 65536
	}
	return uint32(pages)
}

// InitHost instantiates a host module once per engine. Later calls with the
// same name are no-ops. Safe for concurrent use.
func (e *WazeroEngine) InitHost(ctx context.Context, name string, build func(wazero.HostModuleBuilder) wazero.HostModuleBuilder) error {
	e.hostMu.Lock()
	defer e.hostMu.Unlock()

	if _, done := e.hosts[name]; done {
		return nil
	}
	if e.runtime.Module(name) == nil {
		if _, err := build(e.runtime.NewHostModuleBuilder(name)).Instantiate(ctx); err != nil {
			return errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "instantiate host module "+name)
		}
	}
	e.hosts[name] = struct{}{}
	debugf("host module %s ready", name)
	return nil
}

// Compile parses code, injects gas metering and compiles the result.
func (e *WazeroEngine) Compile(ctx context.Context, code []byte) (*WazeroModule, error) {
	if e.closed.Load() {
		return nil, errors.New(errors.PhaseCompile, errors.KindNotInitialized).Detail("engine closed").Build()
	}
	m, err := wasm.ParseModule(code)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "parse wasm")
	}
	if err := m.CheckFeatures(); err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindUnsupported, err, "unsupported wasm feature")
	}
	if m.Start != nil {
		// the gas counter is still zero while a start function would run
		return nil, errors.Unsupported(errors.PhaseCompile, "start function")
	}

	if _, err := metering.Instrument(m, metering.Options{CostPerOperation: e.cost}); err != nil {
		return nil, errors.Wrap(errors.PhaseCompile, errors.KindInvalidData, err, "inject gas metering")
	}
	instrumented := m.Encode()

	compiled, err := e.runtime.CompileModule(ctx, instrumented)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCompile, errors.KindVM, err, "compile failed")
	}
	return &WazeroModule{
		compiled: compiled,
		size:     uint64(len(instrumented)),
		exports:  exportedFunctions(compiled),
	}, nil
}

// Instantiate creates an anonymous instance of mod. Start functions are never
// run. Host modules the contract imports must already be initialized.
func (e *WazeroEngine) Instantiate(ctx context.Context, mod *WazeroModule) (api.Module, error) {
	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	inst, err := e.runtime.InstantiateModule(ctx, mod.compiled, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInstantiation, err, "instantiate module")
	}
	return inst, nil
}

// Close releases the runtime and compilation cache.
func (e *WazeroEngine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := e.runtime.Close(ctx)
	if e.compilation != nil {
		err = multierr.Append(err, e.compilation.Close(ctx))
	}
	return err
}

// WazeroModule is a compiled, metered contract module.
type WazeroModule struct {
	compiled wazero.CompiledModule
	size     uint64
	exports  map[string]struct{}
}

// Size approximates the memory held by the module, used for cache budgets.
func (m *WazeroModule) Size() uint64 {
	return m.size
}

// HasExport reports whether the module exports a function named name.
func (m *WazeroModule) HasExport(name string) bool {
	_, ok := m.exports[name]
	return ok
}

// Close releases the compiled code. Instances already created stay usable.
func (m *WazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

func exportedFunctions(c wazero.CompiledModule) map[string]struct{} {
	defs := c.ExportedFunctions()
	out := make(map[string]struct{}, len(defs))
	for name := range defs {
		out[name] = struct{}{}
	}
	return out
}

// GasGlobal returns the gas counter of an instance created by Instantiate.
func GasGlobal(inst api.Module) (api.MutableGlobal, error) {
	g, ok := inst.ExportedGlobal(metering.GasGlobalExport).(api.MutableGlobal)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "instance has no gas global "+metering.GasGlobalExport)
	}
	return g, nil
}

// ExhaustedGlobal returns the flag metered code raises when it traps for
// lack of gas.
func ExhaustedGlobal(inst api.Module) (api.Global, error) {
	g := inst.ExportedGlobal(metering.ExhaustedGlobalExport)
	if g == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "instance has no gas flag "+metering.ExhaustedGlobalExport)
	}
	return g, nil
}
