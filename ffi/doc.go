// Package ffi is the exported call surface of the VM.
//
// Every function here is a boundary: inputs arrive as borrowed
// buffer.View values, results leave as owned *buffer.Vector values the
// caller must consume, and failures are reported as an errors.Status plus a
// message stored in the caller's error slot. A successful call never writes
// the error slot. No function panics; a panic raised below the boundary is
// reported as StatusOther with a "Caught panic" message.
//
// Caches are addressed by CacheHandle. InitCache opens one, ReleaseCache
// closes it, and a released handle is rejected like a nil argument.
//
//	var errOut buffer.Out
//	h, status := ffi.InitCache(buffer.MakeView([]byte(dir)),
//	    buffer.MakeView([]byte("iterator,staking")), 100, 32, &errOut)
//	if status != errors.StatusSuccess {
//	    msg, _ := errors.MessageFrom(errOut.Take())
//	    ...
//	}
//	defer ffi.ReleaseCache(h)
//
// Entry point calls take the host backend as vtables (Backend) and always
// write the gas report once an instance was acquired, including when the
// contract fails. Gas exhaustion is reported as StatusOutOfGas.
package ffi
