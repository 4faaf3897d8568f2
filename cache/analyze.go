package cache

import (
	"sort"
	"strings"

	"github.com/wippyai/wasmvm/types"
	"github.com/wippyai/wasmvm/wasm"
)

// IBCEntryPoints must all be exported for a module to count as IBC enabled.
var IBCEntryPoints = []string{
	"ibc_channel_open",
	"ibc_channel_connect",
	"ibc_channel_close",
	"ibc_packet_receive",
	"ibc_packet_ack",
	"ibc_packet_timeout",
}

// LifecycleEntryPoints are the exports the dispatcher may call.
var LifecycleEntryPoints = append([]string{
	"instantiate",
	"execute",
	"migrate",
	"sudo",
	"reply",
	"query",
}, IBCEntryPoints...)

func analyzeModule(m *wasm.Module) types.AnalysisReport {
	hasIBC := true
	for _, name := range IBCEntryPoints {
		if _, ok := m.ExportedFunc(name); !ok {
			hasIBC = false
			break
		}
	}

	entrypoints := []string{}
	for _, name := range LifecycleEntryPoints {
		if _, ok := m.ExportedFunc(name); ok {
			entrypoints = append(entrypoints, name)
		}
	}
	sort.Strings(entrypoints)

	return types.AnalysisReport{
		HasIBCEntryPoints:    hasIBC,
		RequiredCapabilities: strings.Join(requiredCapabilities(m), ","),
		Entrypoints:          entrypoints,
	}
}
