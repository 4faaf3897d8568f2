package runtime

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/cache"
	"github.com/wippyai/wasmvm/engine"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/types"
)

// InstanceOptions configures one instance.
type InstanceOptions struct {
	GasLimit   uint64
	PrintDebug bool
	// ReadOnly rejects db_write and db_remove. Queries run read-only.
	ReadOnly bool
}

// Instance is a contract instance bound to one backend and one gas limit.
// It serves a single entry point call and is not safe for concurrent use.
type Instance struct {
	Checksum types.Checksum

	module *cache.Module
	inst   api.Module
	state  *callState
	used   bool
	closed bool
}

// GetInstance resolves checksum through the cache and instantiates it with
// the gas counter set to the limit.
func (vm *VM) GetInstance(ctx context.Context, checksum types.Checksum, backend types.Backend, opts InstanceOptions) (*Instance, error) {
	if vm.closed.Load() {
		return nil, errVMClosed()
	}
	mod, err := vm.cache.GetModule(ctx, checksum)
	if err != nil {
		return nil, err
	}
	inst, err := vm.cache.Engine().Instantiate(ctx, mod.Compiled())
	if err != nil {
		mod.Release(ctx)
		return nil, err
	}
	gas, err := engine.GasGlobal(inst)
	if err != nil {
		_ = inst.Close(ctx)
		mod.Release(ctx)
		return nil, err
	}
	exhausted, err := engine.ExhaustedGlobal(inst)
	if err != nil {
		_ = inst.Close(ctx)
		mod.Release(ctx)
		return nil, err
	}
	gas.Set(opts.GasLimit)

	sink := discardDebug
	if opts.PrintDebug {
		sink = timestampedWriter(vm.debugOut, &vm.debugMu)
	}
	return &Instance{
		Checksum: checksum,
		module:   mod,
		inst:     inst,
		state: &callState{
			backend:   backend,
			gas:       gas,
			exhausted: exhausted,
			limit:     opts.GasLimit,
			readOnly:  opts.ReadOnly,
			debug:     sink,
			log:       vm.log,
		},
	}, nil
}

// Call runs the exported entry point with args written into guest memory as
// regions and returns the bytes of the result region.
func (i *Instance) Call(ctx context.Context, entry string, args ...[]byte) ([]byte, error) {
	if i.closed {
		return nil, errors.New(errors.PhaseRuntime, errors.KindNotInitialized).Detail("instance recycled").Build()
	}
	if i.used {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).Detail("instance already used").Build()
	}
	i.used = true

	fn := i.inst.ExportedFunction(entry)
	if fn == nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindVM).
			Detail("Could not get export: Missing export %s", entry).
			Build()
	}
	ctx = withCallState(ctx, i.state)

	params := make([]uint64, len(args))
	for n, arg := range args {
		ptr, err := i.state.writeToContract(ctx, i.inst, arg)
		if err != nil {
			return nil, err
		}
		params[n] = api.EncodeU32(ptr)
	}

	res, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, i.state.classifyTrap(err)
	}
	if len(res) != 1 {
		return nil, errors.VM("Error executing Wasm: entry point must return one region pointer", nil)
	}
	ptr := api.DecodeU32(res[0])
	data, err := readRegionData(i.inst.Memory(), ptr, MaxLengthContractResult)
	if err != nil {
		return nil, err
	}
	if err := i.deallocate(ctx, ptr); err != nil {
		return nil, err
	}
	return data, nil
}

func (i *Instance) deallocate(ctx context.Context, ptr uint32) error {
	fn := i.inst.ExportedFunction("deallocate")
	if fn == nil {
		return errors.NotFound(errors.PhaseRuntime, "Could not get export: Missing export deallocate")
	}
	if _, err := fn.Call(ctx, api.EncodeU32(ptr)); err != nil {
		return i.state.classifyTrap(err)
	}
	return nil
}

// GasReport reports the gas used so far.
func (i *Instance) GasReport() types.GasReport {
	return i.state.report()
}

// Recycle closes the wasm instance, returns the compiled module to the cache
// and hands the backend back. Later calls return an empty backend.
func (i *Instance) Recycle(ctx context.Context) types.Backend {
	if i.closed {
		return types.Backend{}
	}
	i.closed = true
	if err := i.inst.Close(ctx); err != nil {
		i.state.log.Warn("closing instance failed", zap.Stringer("checksum", i.Checksum), zap.Error(err))
	}
	i.module.Release(ctx)
	backend := i.state.backend
	i.state.backend = types.Backend{}
	return backend
}
