package api

import (
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/buffer"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/ffi"
	"github.com/wippyai/wasmvm/types"
)

// Cache is an open module cache.
type Cache struct {
	handle ffi.CacheHandle
}

// InitCache opens a cache in dataDir. Capabilities lists what the chain
// offers to contracts.
func InitCache(dataDir string, capabilities []string, cacheSizeMiB, instanceMemoryLimitMiB uint32) (Cache, error) {
	var errOut buffer.Out
	h, status := ffi.InitCache(
		makeView([]byte(dataDir)),
		makeView([]byte(strings.Join(capabilities, ","))),
		cacheSizeMiB,
		instanceMemoryLimitMiB,
		&errOut,
	)
	if status != errors.StatusSuccess {
		return Cache{}, errorWithMessage(status, &errOut)
	}
	return Cache{handle: h}, nil
}

// ReleaseCache closes the cache. The Cache must not be used afterwards.
func ReleaseCache(cache Cache) error {
	if status := ffi.ReleaseCache(cache.handle); status != errors.StatusSuccess {
		return errors.New(errors.PhaseBoundary, errors.KindNotInitialized).
			Detail("cache already released").Build()
	}
	return nil
}

// StoreCode validates and stores wasm. It returns the checksum.
func StoreCode(cache Cache, wasm []byte) ([]byte, error) {
	return storeCode(cache, wasm, false)
}

// StoreCodeUnchecked stores wasm without static validation.
func StoreCodeUnchecked(cache Cache, wasm []byte) ([]byte, error) {
	return storeCode(cache, wasm, true)
}

func storeCode(cache Cache, wasm []byte, unchecked bool) ([]byte, error) {
	var errOut buffer.Out
	out, status := ffi.SaveWasm(cache.handle, makeView(wasm), unchecked, &errOut)
	return receiveVector(out, status, &errOut)
}

func RemoveCode(cache Cache, checksum []byte) error {
	var errOut buffer.Out
	status := ffi.RemoveWasm(cache.handle, makeView(checksum), &errOut)
	return checkStatus(status, &errOut)
}

func GetCode(cache Cache, checksum []byte) ([]byte, error) {
	var errOut buffer.Out
	out, status := ffi.LoadWasm(cache.handle, makeView(checksum), &errOut)
	return receiveVector(out, status, &errOut)
}

func Pin(cache Cache, checksum []byte) error {
	var errOut buffer.Out
	status := ffi.Pin(cache.handle, makeView(checksum), &errOut)
	return checkStatus(status, &errOut)
}

func Unpin(cache Cache, checksum []byte) error {
	var errOut buffer.Out
	status := ffi.Unpin(cache.handle, makeView(checksum), &errOut)
	return checkStatus(status, &errOut)
}

// AnalyzeCode reports the entry points and capabilities of stored code.
func AnalyzeCode(cache Cache, checksum []byte) (*types.AnalysisReport, error) {
	var errOut buffer.Out
	report, status := ffi.AnalyzeCode(cache.handle, makeView(checksum), &errOut)
	if status != errors.StatusSuccess {
		report.RequiredCapabilities.Release()
		report.Entrypoints.Release()
		return nil, errorWithMessage(status, &errOut)
	}
	caps, _ := report.RequiredCapabilities.Consume()
	eps, _ := report.Entrypoints.Consume()

	res := &types.AnalysisReport{
		HasIBCEntryPoints:    report.HasIBCEntryPoints,
		RequiredCapabilities: string(caps),
		Entrypoints:          []string{},
	}
	if len(eps) > 0 {
		res.Entrypoints = strings.Split(string(eps), ",")
	}
	return res, nil
}

func GetMetrics(cache Cache) (*types.Metrics, error) {
	var errOut buffer.Out
	metrics, status := ffi.GetMetrics(cache.handle, &errOut)
	if status != errors.StatusSuccess {
		return nil, errorWithMessage(status, &errOut)
	}
	return &metrics, nil
}

/**** Entry points ****/

type entryFunc func(backend ffi.Backend, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status)

// Instantiate calls the contract's instantiate entry point. The gas report
// is returned whenever the contract ran, including on failure.
func Instantiate(
	cache Cache,
	checksum []byte,
	env []byte,
	info []byte,
	msg []byte,
	gasMeter types.GasMeter,
	store types.KVStore,
	api types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
	printDebug bool,
) ([]byte, types.GasReport, error) {
	return call(gasMeter, store, api, querier, func(b ffi.Backend, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
		return ffi.Instantiate(cache.handle, makeView(checksum), makeView(env), makeView(info), makeView(msg), b, gasLimit, printDebug, report, errOut)
	})
}

func Execute(
	cache Cache,
	checksum []byte,
	env []byte,
	info []byte,
	msg []byte,
	gasMeter types.GasMeter,
	store types.KVStore,
	api types.GoAPI,
	querier types.Querier,
	gasLimit uint64,
	printDebug bool,
) ([]byte, types.GasReport, error) {
	return call(gasMeter, store, api, querier, func(b ffi.Backend, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
		return ffi.Execute(cache.handle, makeView(checksum), makeView(env), makeView(info), makeView(msg), b, gasLimit, printDebug, report, errOut)
	})
}

type envMsgFunc func(ffi.CacheHandle, buffer.View, buffer.View, buffer.View, ffi.Backend, uint64, bool, *types.GasReport, *buffer.Out) (*buffer.Vector, errors.Status)

func callEnvMsg(fn envMsgFunc, cache Cache, checksum, env, msg []byte, gasMeter types.GasMeter, store types.KVStore, api types.GoAPI, querier types.Querier, gasLimit uint64, printDebug bool) ([]byte, types.GasReport, error) {
	return call(gasMeter, store, api, querier, func(b ffi.Backend, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
		return fn(cache.handle, makeView(checksum), makeView(env), makeView(msg), b, gasLimit, printDebug, report, errOut)
	})
}

func Migrate(cache Cache, checksum, env, msg []byte, gasMeter types.GasMeter, store types.KVStore, api types.GoAPI, querier types.Querier, gasLimit uint64, printDebug bool) ([]byte, types.GasReport, error) {
	return callEnvMsg(ffi.Migrate, cache, checksum, env, msg, gasMeter, store, api, querier, gasLimit, printDebug)
}

func Sudo(cache Cache, checksum, env, msg []byte, gasMeter types.GasMeter, store types.KVStore, api types.GoAPI, querier types.Querier, gasLimit uint64, printDebug bool) ([]byte, types.GasReport, error) {
	return callEnvMsg(ffi.Sudo, cache, checksum, env, msg, gasMeter, store, api, querier, gasLimit, printDebug)
}

func Reply(cache Cache, checksum, env, reply []byte, gasMeter types.GasMeter, store types.KVStore, api types.GoAPI, querier types.Querier, gasLimit uint64, printDebug bool) ([]byte, types.GasReport, error) {
	return callEnvMsg(ffi.Reply, cache, checksum, env, reply, gasMeter, store, api, querier, gasLimit, printDebug)
}

// Query calls the query entry point. Storage is read-only for the call.
func Query(cache Cache, checksum, env, msg []byte, gasMeter types.GasMeter, store types.KVStore, api types.GoAPI, querier types.Querier, gasLimit uint64, printDebug bool) ([]byte, types.GasReport, error) {
	return callEnvMsg(ffi.Query, cache, checksum, env, msg, gasMeter, store, api, querier, gasLimit, printDebug)
}

func IBCChannelOpen(cache Cache, checksum, env, msg []byte, gasMeter types.GasMeter, store types.KVStore, api types.GoAPI, querier types.Querier, gasLimit uint64, printDebug bool) ([]byte, types.GasReport, error) {
	return callEnvMsg(ffi.IBCChannelOpen, cache, checksum, env, msg, gasMeter, store, api, querier, gasLimit, printDebug)
}

func IBCChannelConnect(cache Cache, checksum, env, msg []byte, gasMeter types.GasMeter, store types.KVStore, api types.GoAPI, querier types.Querier, gasLimit uint64, printDebug bool) ([]byte, types.GasReport, error) {
	return callEnvMsg(ffi.IBCChannelConnect, cache, checksum, env, msg, gasMeter, store, api, querier, gasLimit, printDebug)
}

func IBCChannelClose(cache Cache, checksum, env, msg []byte, gasMeter types.GasMeter, store types.KVStore, api types.GoAPI, querier types.Querier, gasLimit uint64, printDebug bool) ([]byte, types.GasReport, error) {
	return callEnvMsg(ffi.IBCChannelClose, cache, checksum, env, msg, gasMeter, store, api, querier, gasLimit, printDebug)
}

func IBCPacketReceive(cache Cache, checksum, env, packet []byte, gasMeter types.GasMeter, store types.KVStore, api types.GoAPI, querier types.Querier, gasLimit uint64, printDebug bool) ([]byte, types.GasReport, error) {
	return callEnvMsg(ffi.IBCPacketReceive, cache, checksum, env, packet, gasMeter, store, api, querier, gasLimit, printDebug)
}

func IBCPacketAck(cache Cache, checksum, env, ack []byte, gasMeter types.GasMeter, store types.KVStore, api types.GoAPI, querier types.Querier, gasLimit uint64, printDebug bool) ([]byte, types.GasReport, error) {
	return callEnvMsg(ffi.IBCPacketAck, cache, checksum, env, ack, gasMeter, store, api, querier, gasLimit, printDebug)
}

func IBCPacketTimeout(cache Cache, checksum, env, packet []byte, gasMeter types.GasMeter, store types.KVStore, api types.GoAPI, querier types.Querier, gasLimit uint64, printDebug bool) ([]byte, types.GasReport, error) {
	return callEnvMsg(ffi.IBCPacketTimeout, cache, checksum, env, packet, gasMeter, store, api, querier, gasLimit, printDebug)
}

// call runs fn inside a fresh call frame with the host objects registered.
func call(gasMeter types.GasMeter, store types.KVStore, api types.GoAPI, querier types.Querier, fn entryFunc) ([]byte, types.GasReport, error) {
	switch {
	case store == nil:
		return nil, types.GasReport{}, errors.UnsetArgument("store")
	case api == nil:
		return nil, types.GasReport{}, errors.UnsetArgument("api")
	case querier == nil:
		return nil, types.GasReport{}, errors.UnsetArgument("querier")
	}

	callID := startCall(gasMeter)
	defer func() {
		if err := endCall(callID); err != nil {
			Logger().Warn("closing iterators failed", zap.Uint64("call_id", callID), zap.Error(err))
		}
	}()

	backend, release, err := buildBackend(callID, gasMeter, store, api, querier)
	if err != nil {
		return nil, types.GasReport{}, errors.Wrap(errors.PhaseBoundary, errors.KindLimitExceeded, err, "register host objects")
	}
	defer release()

	var report types.GasReport
	var errOut buffer.Out
	res, status := fn(backend, &report, &errOut)
	data, err := receiveVector(res, status, &errOut)
	return data, report, err
}

/**** Helpers ****/

// makeView borrows b for one call. A nil slice is passed as absent.
func makeView(b []byte) buffer.View {
	return buffer.MakeView(b)
}

func receiveVector(v *buffer.Vector, status errors.Status, errOut *buffer.Out) ([]byte, error) {
	if status != errors.StatusSuccess {
		v.Release()
		return nil, errorWithMessage(status, errOut)
	}
	data, _ := v.Consume()
	return data, nil
}

func checkStatus(status errors.Status, errOut *buffer.Out) error {
	if status != errors.StatusSuccess {
		return errorWithMessage(status, errOut)
	}
	return nil
}

// errorWithMessage turns a failed status and the error slot into an error.
// Gas exhaustion is always reported as errors.ErrOutOfGas.
func errorWithMessage(status errors.Status, errOut *buffer.Out) error {
	msg, ok := errors.MessageFrom(errOut.Take())
	if status == errors.StatusOutOfGas {
		return errors.OutOfGas()
	}
	if !ok {
		return errors.New(errors.PhaseBoundary, errors.KindBackendUnknown).
			Detail("call failed with status %s and no message", status).Build()
	}
	return errors.New(errors.PhaseBoundary, errors.KindVM).Detail("%s", msg).Build()
}
