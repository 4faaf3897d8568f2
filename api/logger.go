package api

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/ffi"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the logger for host callbacks. It is a no-op logger until
// SetLogger.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger sets the logger used here and at the call boundary.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
	ffi.SetLogger(l)
}
