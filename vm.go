package wasmvm

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/api"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/types"
)

type (
	// Checksum is the sha256 of the stored wasm code.
	Checksum = []byte
	// WasmCode is a raw wasm module.
	WasmCode = []byte

	KVStore  = types.KVStore
	GoAPI    = types.GoAPI
	Querier  = types.Querier
	GasMeter = types.GasMeter
)

// CostPerByte is the gas charged per byte of code by StoreCode.
const CostPerByte uint64 = 3 * 140_000

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// Config configures a VM.
type Config struct {
	// DataDir holds the stored code, compiled modules and the lock file.
	DataDir string
	// Capabilities lists what the chain offers to contracts.
	Capabilities []string
	// MemoryCacheSizeMiB bounds the in-memory module tier. 0 disables it.
	MemoryCacheSizeMiB uint32
	// InstanceMemoryLimitMiB caps the linear memory of each instance.
	InstanceMemoryLimitMiB uint32
	// PrintDebug forwards contract debug messages to stderr.
	PrintDebug bool
	// Logger receives VM logs. Nil keeps the current logger.
	Logger *zap.Logger
}

// VM owns one cache directory. It is safe for concurrent use.
type VM struct {
	cache      api.Cache
	printDebug bool
}

// NewVM creates a VM in dataDir. memoryLimit and cacheSize are in MiB.
func NewVM(dataDir string, capabilities []string, memoryLimit uint32, printDebug bool, cacheSize uint32) (*VM, error) {
	return NewVMWithConfig(Config{
		DataDir:                dataDir,
		Capabilities:           capabilities,
		MemoryCacheSizeMiB:     cacheSize,
		InstanceMemoryLimitMiB: memoryLimit,
		PrintDebug:             printDebug,
	})
}

func NewVMWithConfig(cfg Config) (*VM, error) {
	if cfg.Logger != nil {
		api.SetLogger(cfg.Logger)
	}
	cache, err := api.InitCache(cfg.DataDir, cfg.Capabilities, cfg.MemoryCacheSizeMiB, cfg.InstanceMemoryLimitMiB)
	if err != nil {
		return nil, err
	}
	return &VM{cache: cache, printDebug: cfg.PrintDebug}, nil
}

// Cleanup releases the cache and its directory lock. The VM must not be
// used afterwards.
func (vm *VM) Cleanup() error {
	return api.ReleaseCache(vm.cache)
}

// CreateChecksum returns the checksum of wasm after a magic number check.
func CreateChecksum(wasm WasmCode) (Checksum, error) {
	switch {
	case len(wasm) == 0:
		return nil, errors.InvalidInput(errors.PhaseBoundary, "Wasm bytes nil or empty")
	case len(wasm) < len(wasmMagic):
		return nil, errors.InvalidInput(errors.PhaseBoundary, "Wasm bytes shorter than 4 bytes")
	case !bytes.Equal(wasm[:len(wasmMagic)], wasmMagic):
		return nil, errors.InvalidInput(errors.PhaseBoundary, "Wasm bytes do not start with Wasm magic number")
	}
	return types.NewChecksum(wasm).Bytes(), nil
}

// StoreCode validates, compiles and stores code. It charges CostPerByte for
// every byte and fails with errors.ErrOutOfGas when gasLimit is too low.
// The cost is returned in both cases.
func (vm *VM) StoreCode(code WasmCode, gasLimit uint64) (Checksum, uint64, error) {
	cost := compileCost(code)
	if gasLimit < cost {
		return nil, cost, errors.OutOfGas()
	}
	checksum, err := api.StoreCode(vm.cache, code)
	return checksum, cost, err
}

// StoreCodeUnchecked stores code without validation, for code that was
// checked before.
func (vm *VM) StoreCodeUnchecked(code WasmCode) (Checksum, error) {
	return api.StoreCodeUnchecked(vm.cache, code)
}

func (vm *VM) RemoveCode(checksum Checksum) error {
	return api.RemoveCode(vm.cache, checksum)
}

// GetCode returns the code stored under checksum.
func (vm *VM) GetCode(checksum Checksum) (WasmCode, error) {
	return api.GetCode(vm.cache, checksum)
}

// Pin keeps the compiled module in memory until Unpin. Pin is idempotent.
func (vm *VM) Pin(checksum Checksum) error {
	return api.Pin(vm.cache, checksum)
}

// Unpin is idempotent.
func (vm *VM) Unpin(checksum Checksum) error {
	return api.Unpin(vm.cache, checksum)
}

func (vm *VM) AnalyzeCode(checksum Checksum) (*types.AnalysisReport, error) {
	return api.AnalyzeCode(vm.cache, checksum)
}

func (vm *VM) GetMetrics() (*types.Metrics, error) {
	return api.GetMetrics(vm.cache)
}

// Instantiate runs the instantiate entry point. env and info are the JSON
// encoded block environment and message info.
func (vm *VM) Instantiate(
	checksum Checksum,
	env []byte,
	info []byte,
	initMsg []byte,
	store KVStore,
	goapi GoAPI,
	querier Querier,
	gasMeter GasMeter,
	gasLimit uint64,
) ([]byte, types.GasReport, error) {
	return api.Instantiate(vm.cache, checksum, env, info, initMsg, gasMeter, store, goapi, querier, gasLimit, vm.printDebug)
}

// Execute runs the execute entry point.
func (vm *VM) Execute(
	checksum Checksum,
	env []byte,
	info []byte,
	executeMsg []byte,
	store KVStore,
	goapi GoAPI,
	querier Querier,
	gasMeter GasMeter,
	gasLimit uint64,
) ([]byte, types.GasReport, error) {
	return api.Execute(vm.cache, checksum, env, info, executeMsg, gasMeter, store, goapi, querier, gasLimit, vm.printDebug)
}

// Query runs the query entry point with read-only storage.
func (vm *VM) Query(checksum Checksum, env, queryMsg []byte, store KVStore, goapi GoAPI, querier Querier, gasMeter GasMeter, gasLimit uint64) ([]byte, types.GasReport, error) {
	return api.Query(vm.cache, checksum, env, queryMsg, gasMeter, store, goapi, querier, gasLimit, vm.printDebug)
}

func (vm *VM) Migrate(checksum Checksum, env, migrateMsg []byte, store KVStore, goapi GoAPI, querier Querier, gasMeter GasMeter, gasLimit uint64) ([]byte, types.GasReport, error) {
	return api.Migrate(vm.cache, checksum, env, migrateMsg, gasMeter, store, goapi, querier, gasLimit, vm.printDebug)
}

func (vm *VM) Sudo(checksum Checksum, env, sudoMsg []byte, store KVStore, goapi GoAPI, querier Querier, gasMeter GasMeter, gasLimit uint64) ([]byte, types.GasReport, error) {
	return api.Sudo(vm.cache, checksum, env, sudoMsg, gasMeter, store, goapi, querier, gasLimit, vm.printDebug)
}

func (vm *VM) Reply(checksum Checksum, env, reply []byte, store KVStore, goapi GoAPI, querier Querier, gasMeter GasMeter, gasLimit uint64) ([]byte, types.GasReport, error) {
	return api.Reply(vm.cache, checksum, env, reply, gasMeter, store, goapi, querier, gasLimit, vm.printDebug)
}

func (vm *VM) IBCChannelOpen(checksum Checksum, env, msg []byte, store KVStore, goapi GoAPI, querier Querier, gasMeter GasMeter, gasLimit uint64) ([]byte, types.GasReport, error) {
	return api.IBCChannelOpen(vm.cache, checksum, env, msg, gasMeter, store, goapi, querier, gasLimit, vm.printDebug)
}

func (vm *VM) IBCChannelConnect(checksum Checksum, env, msg []byte, store KVStore, goapi GoAPI, querier Querier, gasMeter GasMeter, gasLimit uint64) ([]byte, types.GasReport, error) {
	return api.IBCChannelConnect(vm.cache, checksum, env, msg, gasMeter, store, goapi, querier, gasLimit, vm.printDebug)
}

func (vm *VM) IBCChannelClose(checksum Checksum, env, msg []byte, store KVStore, goapi GoAPI, querier Querier, gasMeter GasMeter, gasLimit uint64) ([]byte, types.GasReport, error) {
	return api.IBCChannelClose(vm.cache, checksum, env, msg, gasMeter, store, goapi, querier, gasLimit, vm.printDebug)
}

func (vm *VM) IBCPacketReceive(checksum Checksum, env, msg []byte, store KVStore, goapi GoAPI, querier Querier, gasMeter GasMeter, gasLimit uint64) ([]byte, types.GasReport, error) {
	return api.IBCPacketReceive(vm.cache, checksum, env, msg, gasMeter, store, goapi, querier, gasLimit, vm.printDebug)
}

func (vm *VM) IBCPacketAck(checksum Checksum, env, msg []byte, store KVStore, goapi GoAPI, querier Querier, gasMeter GasMeter, gasLimit uint64) ([]byte, types.GasReport, error) {
	return api.IBCPacketAck(vm.cache, checksum, env, msg, gasMeter, store, goapi, querier, gasLimit, vm.printDebug)
}

func (vm *VM) IBCPacketTimeout(checksum Checksum, env, msg []byte, store KVStore, goapi GoAPI, querier Querier, gasMeter GasMeter, gasLimit uint64) ([]byte, types.GasReport, error) {
	return api.IBCPacketTimeout(vm.cache, checksum, env, msg, gasMeter, store, goapi, querier, gasLimit, vm.printDebug)
}

func compileCost(code WasmCode) uint64 {
	return CostPerByte * uint64(len(code))
}
