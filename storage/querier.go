package storage

import (
	"github.com/wippyai/wasmvm/buffer"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/types"
)

// QuerierBridge implements types.BackendQuerier on top of a host Querier.
type QuerierBridge struct {
	querier Querier
}

var _ types.BackendQuerier = QuerierBridge{}

func NewQuerierBridge(q Querier) QuerierBridge {
	return QuerierBridge{querier: q}
}

// QueryRaw forwards request with the gas the contract may still spend. The
// result is the serialized system result produced by the host.
func (q QuerierBridge) QueryRaw(request []byte, gasLimit uint64) ([]byte, types.GasInfo, error) {
	query := q.querier.Vtable.QueryExternal
	if query == nil {
		return nil, types.Free(), vtableUnset("query_external")
	}

	var out, errOut buffer.Out
	code, used := query(q.querier.State, gasLimit, buffer.MakeView(request), &out, &errOut)
	result, ok := out.Take().Consume()
	gas := types.GasInfoWithExternallyUsed(used)

	if err := code.IntoResult(errOut.Take(), func() string {
		return "Failed to query another contract with this request: " + lossy(request)
	}); err != nil {
		return nil, gas, err
	}
	if !ok {
		return nil, gas, errors.BackendUnknown("Unset output")
	}
	return result, gas, nil
}
