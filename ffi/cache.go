package ffi

import (
	"context"
	"strings"

	"github.com/wippyai/wasmvm/buffer"
	"github.com/wippyai/wasmvm/cache"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/resource"
	"github.com/wippyai/wasmvm/runtime"
	"github.com/wippyai/wasmvm/types"
)

// CacheHandle refers to a cache opened by InitCache. The zero handle is
// never valid.
type CacheHandle uint32

var caches = resource.NewTable[*runtime.VM]()

func lookup(h CacheHandle) (*runtime.VM, error) {
	vm, ok := caches.Get(resource.Handle(h))
	if !ok {
		return nil, errors.UnsetArgument("cache")
	}
	return vm, nil
}

// InitCache opens a cache in dataDir. availableCapabilities is a comma
// separated list.
func InitCache(dataDir, availableCapabilities buffer.View, cacheSizeMiB, instanceMemoryLimitMiB uint32, errOut *buffer.Out) (CacheHandle, errors.Status) {
	var handle CacheHandle
	status := catchPanic("init_cache", errOut, func() error {
		dir, err := requireString(dataDir, "data_dir")
		if err != nil {
			return err
		}
		capabilities, err := requireString(availableCapabilities, "available_capabilities")
		if err != nil {
			return err
		}

		ctx := context.Background()
		vm, err := runtime.New(ctx, runtime.Options{
			Cache: cache.Options{
				BaseDir:                dir,
				AvailableCapabilities:  cache.ParseCapabilities(capabilities),
				MemoryCacheSizeMiB:     cacheSizeMiB,
				InstanceMemoryLimitMiB: instanceMemoryLimitMiB,
			},
			Logger: Logger(),
		})
		if err != nil {
			return err
		}
		h, err := caches.Insert(vm)
		if err != nil {
			_ = vm.Close(ctx)
			return errors.Wrap(errors.PhaseBoundary, errors.KindLimitExceeded, err, "register cache")
		}
		handle = CacheHandle(h)
		return nil
	})
	return handle, status
}

// ReleaseCache closes the cache and invalidates its handle. Releasing a
// handle twice reports StatusOther.
func ReleaseCache(h CacheHandle) errors.Status {
	return catchPanic("release_cache", nil, func() error {
		vm, ok := caches.Remove(resource.Handle(h))
		if !ok {
			return errors.UnsetArgument("cache")
		}
		return vm.Close(context.Background())
	})
}

// SaveWasm stores wasm and returns its checksum. unchecked skips validation.
func SaveWasm(h CacheHandle, wasm buffer.View, unchecked bool, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	out := buffer.None()
	status := catchPanic("save_wasm", errOut, func() error {
		vm, err := lookup(h)
		if err != nil {
			return err
		}
		code, err := requireView(wasm, "wasm")
		if err != nil {
			return err
		}
		if len(code) == 0 {
			return errors.EmptyArgument("wasm")
		}
		// the view is borrowed; the cache may keep what it is given
		code = append([]byte(nil), code...)
		checksum, err := vm.Cache().SaveWasm(context.Background(), code, unchecked)
		if err != nil {
			return err
		}
		out = buffer.Some(checksum.Bytes())
		return nil
	})
	return out, status
}

// LoadWasm returns the stored code of checksum.
func LoadWasm(h CacheHandle, checksum buffer.View, errOut *buffer.Out) (*buffer.Vector, errors.Status) {
	out := buffer.None()
	status := catchPanic("load_wasm", errOut, func() error {
		vm, cs, err := lookupWithChecksum(h, checksum)
		if err != nil {
			return err
		}
		code, err := vm.Cache().LoadWasm(cs)
		if err != nil {
			return err
		}
		out = buffer.Some(code)
		return nil
	})
	return out, status
}

// RemoveWasm deletes stored code. Removing it a second time fails.
func RemoveWasm(h CacheHandle, checksum buffer.View, errOut *buffer.Out) errors.Status {
	return catchPanic("remove_wasm", errOut, func() error {
		vm, cs, err := lookupWithChecksum(h, checksum)
		if err != nil {
			return err
		}
		return vm.Cache().RemoveWasm(context.Background(), cs)
	})
}

func Pin(h CacheHandle, checksum buffer.View, errOut *buffer.Out) errors.Status {
	return catchPanic("pin", errOut, func() error {
		vm, cs, err := lookupWithChecksum(h, checksum)
		if err != nil {
			return err
		}
		return vm.Cache().Pin(context.Background(), cs)
	})
}

func Unpin(h CacheHandle, checksum buffer.View, errOut *buffer.Out) errors.Status {
	return catchPanic("unpin", errOut, func() error {
		vm, cs, err := lookupWithChecksum(h, checksum)
		if err != nil {
			return err
		}
		return vm.Cache().Unpin(context.Background(), cs)
	})
}

// AnalysisReport is the boundary form of types.AnalysisReport. Both vectors
// are comma separated lists and must be consumed by the receiver.
type AnalysisReport struct {
	HasIBCEntryPoints    bool
	RequiredCapabilities *buffer.Vector
	Entrypoints          *buffer.Vector
}

// AnalyzeCode reports the entry points and capabilities of stored code.
// On failure both vectors are absent.
func AnalyzeCode(h CacheHandle, checksum buffer.View, errOut *buffer.Out) (AnalysisReport, errors.Status) {
	report := AnalysisReport{RequiredCapabilities: buffer.None(), Entrypoints: buffer.None()}
	status := catchPanic("analyze_code", errOut, func() error {
		vm, cs, err := lookupWithChecksum(h, checksum)
		if err != nil {
			return err
		}
		r, err := vm.Cache().Analyze(cs)
		if err != nil {
			return err
		}
		report = AnalysisReport{
			HasIBCEntryPoints:    r.HasIBCEntryPoints,
			RequiredCapabilities: buffer.Some([]byte(r.RequiredCapabilities)),
			Entrypoints:          buffer.Some([]byte(strings.Join(r.Entrypoints, ","))),
		}
		return nil
	})
	return report, status
}

// GetMetrics returns the cache counters.
func GetMetrics(h CacheHandle, errOut *buffer.Out) (types.Metrics, errors.Status) {
	var metrics types.Metrics
	status := catchPanic("get_metrics", errOut, func() error {
		vm, err := lookup(h)
		if err != nil {
			return err
		}
		metrics = vm.Cache().Metrics()
		return nil
	})
	return metrics, status
}

func lookupWithChecksum(h CacheHandle, checksum buffer.View) (*runtime.VM, types.Checksum, error) {
	vm, err := lookup(h)
	if err != nil {
		return nil, types.Checksum{}, err
	}
	cs, err := requireChecksum(checksum)
	if err != nil {
		return nil, types.Checksum{}, err
	}
	return vm, cs, nil
}
