package storage

import (
	"unicode/utf8"

	"github.com/wippyai/wasmvm/buffer"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/types"
)

// APIBridge implements types.BackendAPI on top of a host GoAPI.
type APIBridge struct {
	api GoAPI
}

var _ types.BackendAPI = APIBridge{}

func NewAPIBridge(api GoAPI) APIBridge {
	return APIBridge{api: api}
}

func (a APIBridge) AddrValidate(human string) (types.GasInfo, error) {
	validate := a.api.Vtable.ValidateAddress
	if validate == nil {
		return types.Free(), vtableUnset("validate_address")
	}

	var errOut buffer.Out
	code, used := validate(a.api.State, buffer.MakeView([]byte(human)), &errOut)
	gas := types.GasInfoWithCost(used)
	return gas, code.IntoResult(errOut.Take(), func() string {
		return "Failed to validate the address: " + human
	})
}

func (a APIBridge) AddrCanonicalize(human string) ([]byte, types.GasInfo, error) {
	canonicalize := a.api.Vtable.CanonicalizeAddress
	if canonicalize == nil {
		return nil, types.Free(), vtableUnset("canonicalize_address")
	}

	var out, errOut buffer.Out
	code, used := canonicalize(a.api.State, buffer.MakeView([]byte(human)), &out, &errOut)
	canonical, ok := out.Take().Consume()
	gas := types.GasInfoWithCost(used)

	if err := code.IntoResult(errOut.Take(), func() string {
		return "Failed to canonicalize the address: " + human
	}); err != nil {
		return nil, gas, err
	}
	if !ok {
		return nil, gas, errors.BackendUnknown("Unset output")
	}
	return canonical, gas, nil
}

func (a APIBridge) AddrHumanize(canonical []byte) (string, types.GasInfo, error) {
	humanize := a.api.Vtable.HumanizeAddress
	if humanize == nil {
		return "", types.Free(), vtableUnset("humanize_address")
	}

	var out, errOut buffer.Out
	code, used := humanize(a.api.State, buffer.MakeView(canonical), &out, &errOut)
	human, ok := out.Take().Consume()
	gas := types.GasInfoWithCost(used)

	if err := code.IntoResult(errOut.Take(), func() string {
		return "Failed to humanize the address: " + lossy(canonical)
	}); err != nil {
		return "", gas, err
	}
	if !ok {
		return "", gas, errors.BackendUnknown("Unset output")
	}
	if !utf8.Valid(human) {
		return "", gas, errors.InvalidUTF8(errors.PhaseBackend, errors.InvalidData(errors.PhaseBackend, nil, "humanized address is not valid UTF-8"))
	}
	return string(human), gas, nil
}
