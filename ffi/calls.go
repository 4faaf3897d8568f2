package ffi

import (
	"context"

	"github.com/wippyai/wasmvm/buffer"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/runtime"
	"github.com/wippyai/wasmvm/storage"
	"github.com/wippyai/wasmvm/types"
)

type namedView struct {
	name string
	view buffer.View
}

// Backend is the host side of one call: the key/value store, the address
// API and the querier.
type Backend struct {
	DB      storage.DB
	API     storage.GoAPI
	Querier storage.Querier
}

// call runs one entry point. report is written whenever an instance was
// acquired; the result vector is present only on success.
func call(h CacheHandle, entry string, checksum buffer.View, args []namedView, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	out := buffer.None()
	status := catchPanic(entry, errOut, func() error {
		vm, cs, err := lookupWithChecksum(h, checksum)
		if err != nil {
			return err
		}
		data := make([][]byte, len(args))
		for i, arg := range args {
			if data[i], err = requireView(arg.view, arg.name); err != nil {
				return err
			}
		}

		bridge := storage.NewBridge(backend.DB)
		defer bridge.Close()

		res, gas, err := vm.Call(context.Background(), cs, entry, types.Backend{
			Storage: bridge,
			API:     storage.NewAPIBridge(backend.API),
			Querier: storage.NewQuerierBridge(backend.Querier),
		}, runtime.CallOptions{GasLimit: gasLimit, PrintDebug: printDebug}, data...)
		if report != nil {
			*report = gas
		}
		if err != nil {
			return err
		}
		out = buffer.Some(res)
		return nil
	})
	return out, status
}

func Instantiate(h CacheHandle, checksum, env, info, msg buffer.View, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	return call(h, runtime.EntryInstantiate, checksum, []namedView{{"env", env}, {"info", info}, {"msg", msg}}, backend, gasLimit, printDebug, report, errOut)
}

func Execute(h CacheHandle, checksum, env, info, msg buffer.View, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	return call(h, runtime.EntryExecute, checksum, []namedView{{"env", env}, {"info", info}, {"msg", msg}}, backend, gasLimit, printDebug, report, errOut)
}

func Migrate(h CacheHandle, checksum, env, msg buffer.View, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	return call(h, runtime.EntryMigrate, checksum, envMsg(env, msg), backend, gasLimit, printDebug, report, errOut)
}

func Sudo(h CacheHandle, checksum, env, msg buffer.View, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	return call(h, runtime.EntrySudo, checksum, envMsg(env, msg), backend, gasLimit, printDebug, report, errOut)
}

func Reply(h CacheHandle, checksum, env, msg buffer.View, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	return call(h, runtime.EntryReply, checksum, envMsg(env, msg), backend, gasLimit, printDebug, report, errOut)
}

func Query(h CacheHandle, checksum, env, msg buffer.View, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	return call(h, runtime.EntryQuery, checksum, envMsg(env, msg), backend, gasLimit, printDebug, report, errOut)
}

func IBCChannelOpen(h CacheHandle, checksum, env, msg buffer.View, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	return call(h, runtime.EntryIBCChannelOpen, checksum, envMsg(env, msg), backend, gasLimit, printDebug, report, errOut)
}

func IBCChannelConnect(h CacheHandle, checksum, env, msg buffer.View, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	return call(h, runtime.EntryIBCChannelConnect, checksum, envMsg(env, msg), backend, gasLimit, printDebug, report, errOut)
}

func IBCChannelClose(h CacheHandle, checksum, env, msg buffer.View, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	return call(h, runtime.EntryIBCChannelClose, checksum, envMsg(env, msg), backend, gasLimit, printDebug, report, errOut)
}

func IBCPacketReceive(h CacheHandle, checksum, env, msg buffer.View, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	return call(h, runtime.EntryIBCPacketReceive, checksum, envMsg(env, msg), backend, gasLimit, printDebug, report, errOut)
}

func IBCPacketAck(h CacheHandle, checksum, env, msg buffer.View, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	return call(h, runtime.EntryIBCPacketAck, checksum, envMsg(env, msg), backend, gasLimit, printDebug, report, errOut)
}

func IBCPacketTimeout(h CacheHandle, checksum, env, msg buffer.View, backend Backend, gasLimit uint64, printDebug bool, report *types.GasReport, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	return call(h, runtime.EntryIBCPacketTimeout, checksum, envMsg(env, msg), backend, gasLimit, printDebug, report, errOut)
}

func envMsg(env, msg buffer.View) []namedView {
	return []namedView{{"env", env}, {"msg", msg}}
}
