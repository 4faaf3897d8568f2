package runtime

import (
	"context"
	"unicode/utf8"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/types"
)

// EnvModule is the import module contracts take host functions from.
const EnvModule = "env"

// Input limits of the host functions.
const (
	MaxLengthDBKey              = 64 * 1024
	MaxLengthDBValue            = 128 * 1024
	MaxLengthCanonicalAddress   = 64
	MaxLengthHumanAddress       = 256
	MaxLengthQueryChainRequest  = 64 * 1024
	MaxLengthDebug              = 2 * 1024 * 1024
	MaxLengthAbort              = 2 * 1024 * 1024
	MaxLengthContractResult     = 64 * 1024 * 1024
	maxLengthAddressUserMessage = 1024
)

var (
	i32 = api.ValueTypeI32
)

// hostFunc is one env import. Handlers return an error to trap the call.
type hostFunc struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
	handler func(ctx context.Context, s *callState, mod api.Module, stack []uint64) error
}

var envFuncs = []hostFunc{
	{"db_read", []api.ValueType{i32}, []api.ValueType{i32}, doDBRead},
	{"db_write", []api.ValueType{i32, i32}, nil, doDBWrite},
	{"db_remove", []api.ValueType{i32}, nil, doDBRemove},
	{"db_scan", []api.ValueType{i32, i32, i32}, []api.ValueType{i32}, doDBScan},
	{"db_next", []api.ValueType{i32}, []api.ValueType{i32}, doDBNext},
	{"db_next_key", []api.ValueType{i32}, []api.ValueType{i32}, doDBNextKey},
	{"db_next_value", []api.ValueType{i32}, []api.ValueType{i32}, doDBNextValue},
	{"addr_validate", []api.ValueType{i32}, []api.ValueType{i32}, doAddrValidate},
	{"addr_canonicalize", []api.ValueType{i32, i32}, []api.ValueType{i32}, doAddrCanonicalize},
	{"addr_humanize", []api.ValueType{i32, i32}, []api.ValueType{i32}, doAddrHumanize},
	{"query_chain", []api.ValueType{i32}, []api.ValueType{i32}, doQueryChain},
	{"debug", []api.ValueType{i32}, nil, doDebug},
	{"abort", []api.ValueType{i32}, nil, doAbort},
}

// buildEnv registers every env import on b.
func buildEnv(b wazero.HostModuleBuilder) wazero.HostModuleBuilder {
	for _, f := range envFuncs {
		b = b.NewFunctionBuilder().
			WithGoModuleFunction(wrapHost(f), f.params, f.results).
			WithName(f.name).
			Export(f.name)
	}
	return b
}

// wrapHost adapts a handler to wazero. A failing handler records its error
// in the call state and panics, which unwinds the guest. A handler that
// panics on its own is recorded as a host panic and keeps unwinding.
func wrapHost(f hostFunc) api.GoModuleFunction {
	return api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		s := stateFrom(ctx)
		if s == nil {
			panic(errors.New(errors.PhaseHost, errors.KindNotInitialized).
				Detail("%s called outside a contract call", f.name).
				Build())
		}
		var failed bool
		defer func() {
			if r := recover(); r != nil {
				if !failed {
					s.log.Warn("host function panicked", zap.String("import", f.name), zap.Any("panic", r))
					s.fail(errors.Panic(errors.PhaseHost, r))
				}
				panic(r)
			}
		}()
		if err := f.handler(ctx, s, mod, stack); err != nil {
			s.fail(err)
			failed = true
			panic(err)
		}
	})
}

func writeAccessDenied() error {
	return errors.New(errors.PhaseRuntime, errors.KindUnsupported).
		Detail("Write access denied: storage is read-only during queries").
		Build()
}

func doDBRead(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	key, err := readRegionData(mod.Memory(), api.DecodeU32(stack[0]), MaxLengthDBKey)
	if err != nil {
		return err
	}
	value, gas, err := s.backend.Storage.Get(key)
	if gerr := s.processGasInfo(gas); gerr != nil {
		return gerr
	}
	if err != nil {
		return err
	}
	if value == nil {
		stack[0] = 0
		return nil
	}
	ptr, err := s.writeToContract(ctx, mod, value)
	if err != nil {
		return err
	}
	stack[0] = api.EncodeU32(ptr)
	return nil
}

func doDBWrite(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	if s.readOnly {
		return writeAccessDenied()
	}
	key, err := readRegionData(mod.Memory(), api.DecodeU32(stack[0]), MaxLengthDBKey)
	if err != nil {
		return err
	}
	value, err := readRegionData(mod.Memory(), api.DecodeU32(stack[1]), MaxLengthDBValue)
	if err != nil {
		return err
	}
	gas, err := s.backend.Storage.Set(key, value)
	if gerr := s.processGasInfo(gas); gerr != nil {
		return gerr
	}
	return err
}

func doDBRemove(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	if s.readOnly {
		return writeAccessDenied()
	}
	key, err := readRegionData(mod.Memory(), api.DecodeU32(stack[0]), MaxLengthDBKey)
	if err != nil {
		return err
	}
	gas, err := s.backend.Storage.Remove(key)
	if gerr := s.processGasInfo(gas); gerr != nil {
		return gerr
	}
	return err
}

func doDBScan(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	start, err := maybeReadRegionData(mod.Memory(), api.DecodeU32(stack[0]), MaxLengthDBKey)
	if err != nil {
		return err
	}
	end, err := maybeReadRegionData(mod.Memory(), api.DecodeU32(stack[1]), MaxLengthDBKey)
	if err != nil {
		return err
	}
	order := types.Order(api.DecodeI32(stack[2]))
	if !order.Valid() {
		return errors.InvalidInput(errors.PhaseRuntime, "Invalid order value %d", int32(order))
	}
	id, gas, err := s.backend.Storage.Scan(start, end, order)
	if gerr := s.processGasInfo(gas); gerr != nil {
		return gerr
	}
	if err != nil {
		return err
	}
	stack[0] = api.EncodeU32(id)
	return nil
}

func doDBNext(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	rec, gas, err := s.backend.Storage.Next(api.DecodeU32(stack[0]))
	if gerr := s.processGasInfo(gas); gerr != nil {
		return gerr
	}
	if err != nil {
		return err
	}
	var out []byte
	if rec == nil {
		out = encodeSections([]byte{}, []byte{})
	} else {
		out = encodeSections(rec.Key, rec.Value)
	}
	ptr, err := s.writeToContract(ctx, mod, out)
	if err != nil {
		return err
	}
	stack[0] = api.EncodeU32(ptr)
	return nil
}

func doDBNextKey(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	return nextSide(ctx, s, mod, stack, s.backend.Storage.NextKey)
}

func doDBNextValue(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	return nextSide(ctx, s, mod, stack, s.backend.Storage.NextValue)
}

func nextSide(ctx context.Context, s *callState, mod api.Module, stack []uint64, next func(uint32) ([]byte, types.GasInfo, error)) error {
	data, gas, err := next(api.DecodeU32(stack[0]))
	if gerr := s.processGasInfo(gas); gerr != nil {
		return gerr
	}
	if err != nil {
		return err
	}
	if data == nil {
		stack[0] = 0
		return nil
	}
	ptr, err := s.writeToContract(ctx, mod, data)
	if err != nil {
		return err
	}
	stack[0] = api.EncodeU32(ptr)
	return nil
}

// userMessage hands a message back to the contract as a region. Address
// functions report invalid input this way instead of trapping.
func userMessage(ctx context.Context, s *callState, mod api.Module, stack []uint64, msg string) error {
	if len(msg) > maxLengthAddressUserMessage {
		msg = msg[:maxLengthAddressUserMessage]
	}
	ptr, err := s.writeToContract(ctx, mod, []byte(msg))
	if err != nil {
		return err
	}
	stack[0] = api.EncodeU32(ptr)
	return nil
}

// backendUserError splits off errors the contract should see as a message.
func backendUserError(err error) (string, bool) {
	var e *errors.Error
	if errors.As(err, &e) && e.Kind == errors.KindBackendUser {
		return e.Detail, true
	}
	return "", false
}

func readHuman(mod api.Module, ptr uint32) (string, string, error) {
	source, err := readRegionData(mod.Memory(), ptr, MaxLengthHumanAddress)
	if err != nil {
		return "", "", err
	}
	if len(source) == 0 {
		return "", "Input is empty", nil
	}
	if !utf8.Valid(source) {
		return "", "Input is not valid UTF-8", nil
	}
	return string(source), "", nil
}

func doAddrValidate(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	human, invalid, err := readHuman(mod, api.DecodeU32(stack[0]))
	if err != nil {
		return err
	}
	if invalid != "" {
		return userMessage(ctx, s, mod, stack, invalid)
	}
	gas, err := s.backend.API.AddrValidate(human)
	if gerr := s.processGasInfo(gas); gerr != nil {
		return gerr
	}
	if err != nil {
		if msg, ok := backendUserError(err); ok {
			return userMessage(ctx, s, mod, stack, msg)
		}
		return err
	}
	stack[0] = 0
	return nil
}

func doAddrCanonicalize(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	human, invalid, err := readHuman(mod, api.DecodeU32(stack[0]))
	if err != nil {
		return err
	}
	if invalid != "" {
		return userMessage(ctx, s, mod, stack, invalid)
	}
	canonical, gas, err := s.backend.API.AddrCanonicalize(human)
	if gerr := s.processGasInfo(gas); gerr != nil {
		return gerr
	}
	if err != nil {
		if msg, ok := backendUserError(err); ok {
			return userMessage(ctx, s, mod, stack, msg)
		}
		return err
	}
	if err := writeRegionData(mod.Memory(), api.DecodeU32(stack[1]), canonical); err != nil {
		return err
	}
	stack[0] = 0
	return nil
}

func doAddrHumanize(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	canonical, err := readRegionData(mod.Memory(), api.DecodeU32(stack[0]), MaxLengthCanonicalAddress)
	if err != nil {
		return err
	}
	if len(canonical) == 0 {
		return userMessage(ctx, s, mod, stack, "Input is empty")
	}
	human, gas, err := s.backend.API.AddrHumanize(canonical)
	if gerr := s.processGasInfo(gas); gerr != nil {
		return gerr
	}
	if err != nil {
		if msg, ok := backendUserError(err); ok {
			return userMessage(ctx, s, mod, stack, msg)
		}
		return err
	}
	if err := writeRegionData(mod.Memory(), api.DecodeU32(stack[1]), []byte(human)); err != nil {
		return err
	}
	stack[0] = 0
	return nil
}

func doQueryChain(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	request, err := readRegionData(mod.Memory(), api.DecodeU32(stack[0]), MaxLengthQueryChainRequest)
	if err != nil {
		return err
	}
	result, gas, err := s.backend.Querier.QueryRaw(request, s.gasLeft())
	if gerr := s.processGasInfo(gas); gerr != nil {
		return gerr
	}
	if err != nil {
		return err
	}
	ptr, err := s.writeToContract(ctx, mod, result)
	if err != nil {
		return err
	}
	stack[0] = api.EncodeU32(ptr)
	return nil
}

func doDebug(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	msg, err := readRegionData(mod.Memory(), api.DecodeU32(stack[0]), MaxLengthDebug)
	if err != nil {
		return err
	}
	s.debug(lossyString(msg))
	return nil
}

func doAbort(ctx context.Context, s *callState, mod api.Module, stack []uint64) error {
	msg, err := readRegionData(mod.Memory(), api.DecodeU32(stack[0]), MaxLengthAbort)
	if err != nil {
		return err
	}
	return errors.Aborted(lossyString(msg))
}
