package ffi

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the boundary logger. It is a no-op logger until SetLogger.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger sets the logger used by the boundary and by caches it opens.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
