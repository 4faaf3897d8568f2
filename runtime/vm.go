package runtime

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/cache"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/types"
)

// Entry point export names.
const (
	EntryInstantiate       = "instantiate"
	EntryExecute           = "execute"
	EntryMigrate           = "migrate"
	EntrySudo              = "sudo"
	EntryReply             = "reply"
	EntryQuery             = "query"
	EntryIBCChannelOpen    = "ibc_channel_open"
	EntryIBCChannelConnect = "ibc_channel_connect"
	EntryIBCChannelClose   = "ibc_channel_close"
	EntryIBCPacketReceive  = "ibc_packet_receive"
	EntryIBCPacketAck      = "ibc_packet_ack"
	EntryIBCPacketTimeout  = "ibc_packet_timeout"
)

// entryArity is the number of region arguments each entry point takes.
var entryArity = map[string]int{
	EntryInstantiate:       3,
	EntryExecute:           3,
	EntryMigrate:           2,
	EntrySudo:              2,
	EntryReply:             2,
	EntryQuery:             2,
	EntryIBCChannelOpen:    2,
	EntryIBCChannelConnect: 2,
	EntryIBCChannelClose:   2,
	EntryIBCPacketReceive:  2,
	EntryIBCPacketAck:      2,
	EntryIBCPacketTimeout:  2,
}

// Options configures a VM.
type Options struct {
	Cache cache.Options
	// DebugWriter receives contract debug messages of calls made with
	// PrintDebug. Defaults to os.Stderr.
	DebugWriter io.Writer
	Logger      *zap.Logger
}

// CallOptions are the per-call settings of an entry point.
type CallOptions struct {
	GasLimit   uint64
	PrintDebug bool
}

// VM executes contract entry points against modules of its cache.
// Entry point methods are safe for concurrent use.
type VM struct {
	cache    *cache.Cache
	log      *zap.Logger
	debugOut io.Writer
	debugMu  sync.Mutex
	closed   atomic.Bool
}

// New opens the cache and registers the env host module.
func New(ctx context.Context, opts Options) (*VM, error) {
	log := opts.Logger
	if log == nil {
		log = Logger()
	}
	if opts.Cache.Logger == nil {
		opts.Cache.Logger = log
	}
	c, err := cache.New(ctx, opts.Cache)
	if err != nil {
		return nil, err
	}
	if err := c.Engine().InitHost(ctx, EnvModule, buildEnv); err != nil {
		return nil, multierr.Append(err, c.Close(ctx))
	}

	out := opts.DebugWriter
	if out == nil {
		out = os.Stderr
	}
	return &VM{cache: c, log: log, debugOut: out}, nil
}

// Cache returns the module cache.
func (vm *VM) Cache() *cache.Cache {
	return vm.cache
}

// Close closes the cache. A second call reports an error.
func (vm *VM) Close(ctx context.Context) error {
	if !vm.closed.CompareAndSwap(false, true) {
		return errVMClosed()
	}
	return vm.cache.Close(ctx)
}

func errVMClosed() error {
	return errors.New(errors.PhaseRuntime, errors.KindNotInitialized).Detail("vm closed").Build()
}

// Instantiate calls the instantiate entry point with env, info and msg.
func (vm *VM) Instantiate(ctx context.Context, checksum types.Checksum, env, info, msg []byte, backend types.Backend, opts CallOptions) ([]byte, types.GasReport, error) {
	return vm.Call(ctx, checksum, EntryInstantiate, backend, opts, env, info, msg)
}

// Execute calls the execute entry point with env, info and msg.
func (vm *VM) Execute(ctx context.Context, checksum types.Checksum, env, info, msg []byte, backend types.Backend, opts CallOptions) ([]byte, types.GasReport, error) {
	return vm.Call(ctx, checksum, EntryExecute, backend, opts, env, info, msg)
}

func (vm *VM) Migrate(ctx context.Context, checksum types.Checksum, env, msg []byte, backend types.Backend, opts CallOptions) ([]byte, types.GasReport, error) {
	return vm.Call(ctx, checksum, EntryMigrate, backend, opts, env, msg)
}

func (vm *VM) Sudo(ctx context.Context, checksum types.Checksum, env, msg []byte, backend types.Backend, opts CallOptions) ([]byte, types.GasReport, error) {
	return vm.Call(ctx, checksum, EntrySudo, backend, opts, env, msg)
}

func (vm *VM) Reply(ctx context.Context, checksum types.Checksum, env, msg []byte, backend types.Backend, opts CallOptions) ([]byte, types.GasReport, error) {
	return vm.Call(ctx, checksum, EntryReply, backend, opts, env, msg)
}

// Query calls the query entry point. Storage writes fail during queries.
func (vm *VM) Query(ctx context.Context, checksum types.Checksum, env, msg []byte, backend types.Backend, opts CallOptions) ([]byte, types.GasReport, error) {
	return vm.Call(ctx, checksum, EntryQuery, backend, opts, env, msg)
}

func (vm *VM) IBCChannelOpen(ctx context.Context, checksum types.Checksum, env, msg []byte, backend types.Backend, opts CallOptions) ([]byte, types.GasReport, error) {
	return vm.Call(ctx, checksum, EntryIBCChannelOpen, backend, opts, env, msg)
}

func (vm *VM) IBCChannelConnect(ctx context.Context, checksum types.Checksum, env, msg []byte, backend types.Backend, opts CallOptions) ([]byte, types.GasReport, error) {
	return vm.Call(ctx, checksum, EntryIBCChannelConnect, backend, opts, env, msg)
}

func (vm *VM) IBCChannelClose(ctx context.Context, checksum types.Checksum, env, msg []byte, backend types.Backend, opts CallOptions) ([]byte, types.GasReport, error) {
	return vm.Call(ctx, checksum, EntryIBCChannelClose, backend, opts, env, msg)
}

func (vm *VM) IBCPacketReceive(ctx context.Context, checksum types.Checksum, env, msg []byte, backend types.Backend, opts CallOptions) ([]byte, types.GasReport, error) {
	return vm.Call(ctx, checksum, EntryIBCPacketReceive, backend, opts, env, msg)
}

func (vm *VM) IBCPacketAck(ctx context.Context, checksum types.Checksum, env, msg []byte, backend types.Backend, opts CallOptions) ([]byte, types.GasReport, error) {
	return vm.Call(ctx, checksum, EntryIBCPacketAck, backend, opts, env, msg)
}

func (vm *VM) IBCPacketTimeout(ctx context.Context, checksum types.Checksum, env, msg []byte, backend types.Backend, opts CallOptions) ([]byte, types.GasReport, error) {
	return vm.Call(ctx, checksum, EntryIBCPacketTimeout, backend, opts, env, msg)
}

// Call runs a named entry point. The gas report is filled whenever an
// instance was acquired, whether or not the call succeeded. Panics raised
// while resolving or running the call are returned as errors.
func (vm *VM) Call(ctx context.Context, checksum types.Checksum, entry string, backend types.Backend, opts CallOptions, args ...[]byte) (result []byte, report types.GasReport, err error) {
	arity, ok := entryArity[entry]
	if !ok {
		return nil, report, errors.InvalidInput(errors.PhaseRuntime, "unknown entry point %q", entry)
	}
	if len(args) != arity {
		return nil, report, errors.InvalidInput(errors.PhaseRuntime, "%s takes %d arguments, got %d", entry, arity, len(args))
	}

	var inst *Instance
	defer func() {
		if r := recover(); r != nil {
			vm.log.Error("panic during contract call",
				zap.String("entry", entry),
				zap.Stringer("checksum", checksum),
				zap.Any("panic", r))
			result = nil
			err = errors.Panic(errors.PhaseRuntime, r)
		}
		if inst != nil {
			report = inst.GasReport()
			inst.Recycle(ctx)
			vm.log.Debug("contract call finished",
				zap.String("entry", entry),
				zap.Stringer("checksum", checksum),
				zap.Uint64("gas_limit", report.Limit),
				zap.Uint64("gas_used_internally", report.UsedInternally),
				zap.Uint64("gas_used_externally", report.UsedExternally),
				zap.Error(err))
		}
	}()

	inst, err = vm.GetInstance(ctx, checksum, backend, InstanceOptions{
		GasLimit:   opts.GasLimit,
		PrintDebug: opts.PrintDebug,
		ReadOnly:   entry == EntryQuery,
	})
	if err != nil {
		return nil, report, err
	}
	result, err = inst.Call(ctx, entry, args...)
	return result, report, err
}
