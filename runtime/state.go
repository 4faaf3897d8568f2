package runtime

import (
	"context"
	"math"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/types"
)

// callState is the per-call environment host functions work against. It
// travels in the context of the entry point call.
type callState struct {
	backend   types.Backend
	gas       api.MutableGlobal
	exhausted api.Global
	limit     uint64
	external  uint64
	readOnly  bool
	debug     debugSink
	log       *zap.Logger

	outOfGas bool
	hostErr  error
}

type callStateKey struct{}

func withCallState(ctx context.Context, s *callState) context.Context {
	return context.WithValue(ctx, callStateKey{}, s)
}

func stateFrom(ctx context.Context) *callState {
	s, _ := ctx.Value(callStateKey{}).(*callState)
	return s
}

// gasLeft reads the instance's gas counter.
func (s *callState) gasLeft() uint64 {
	return s.gas.Get()
}

// processGasInfo charges a backend call against the instance. Externally
// used gas is recorded for the report and, like the cost, reduces the gas
// the instance may still spend.
func (s *callState) processGasInfo(info types.GasInfo) error {
	left := s.gasLeft()
	s.external = satAdd(s.external, info.ExternallyUsed)
	s.gas.Set(satSub(satSub(left, info.ExternallyUsed), info.Cost))

	if satAdd(info.ExternallyUsed, info.Cost) > left {
		s.gas.Set(0)
		s.outOfGas = true
		return errors.OutOfGas()
	}
	return nil
}

// report builds the gas report of the call so far. The parts never add up
// to more than the limit.
func (s *callState) report() types.GasReport {
	remaining := s.gasLeft()
	if remaining > s.limit {
		remaining = s.limit
	}
	spent := s.limit - remaining
	external := s.external
	if external > spent {
		external = spent
	}
	return types.GasReport{
		Limit:          s.limit,
		Remaining:      remaining,
		UsedExternally: external,
		UsedInternally: spent - external,
	}
}

// fail records the first error raised by a host function.
func (s *callState) fail(err error) {
	if s.hostErr == nil {
		s.hostErr = err
	}
}

// classifyTrap maps an error returned by the engine to a VM error.
func (s *callState) classifyTrap(err error) error {
	if s.outOfGas {
		return errors.OutOfGas()
	}
	if s.hostErr != nil {
		return s.hostErr
	}
	if s.exhausted != nil && s.exhausted.Get() != 0 {
		s.outOfGas = true
		return errors.OutOfGas()
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		// drop the wasm stack trace
		msg = msg[:i]
	}
	return errors.VM("Error executing Wasm: "+msg, err)
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
