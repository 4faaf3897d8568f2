// Package api is the host-facing Go API of the VM.
//
// It wraps the ffi boundary with plain Go types: byte slices in and out,
// errors instead of status codes, and host objects given as interfaces
// (types.KVStore, types.GoAPI, types.Querier) rather than vtables.
//
// Each entry point call opens a call frame. Iterators created by the
// contract live in that frame and are closed when the call returns. Host
// objects are registered for the duration of the call only.
//
// Gas charged by the host is measured on the caller's types.GasMeter: the
// difference in GasConsumed across a callback is reported to the VM as
// externally used gas. A store that panics with storage.OutOfGasPanic makes
// the call fail with errors.ErrOutOfGas.
//
//	cache, err := api.InitCache(dir, []string{"iterator", "staking"}, 100, 32)
//	if err != nil {
//	    return err
//	}
//	defer api.ReleaseCache(cache)
//
//	checksum, err := api.StoreCode(cache, wasm)
//	res, report, err := api.Instantiate(cache, checksum, env, info, msg,
//	    meter, store, goAPI, querier, gasLimit, false)
package api
