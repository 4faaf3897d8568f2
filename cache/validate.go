package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/metering"
	"github.com/wippyai/wasmvm/wasm"
)

// Static limits applied to checked uploads.
const (
	MaxImports        = 100
	MaxFunctions      = 10000
	MaxMemoryPages    = 512
	InterfaceVersion  = "interface_version_8"
	interfacePrefix   = "interface_version_"
	capabilityPrefix  = "requires_"
	hostImportsModule = "env"
)

// SupportedImports lists the host functions a contract may import from env.
var SupportedImports = []string{
	"db_read",
	"db_write",
	"db_remove",
	"db_scan",
	"db_next",
	"db_next_key",
	"db_next_value",
	"addr_validate",
	"addr_canonicalize",
	"addr_humanize",
	"query_chain",
	"debug",
	"abort",
}

var requiredExports = []string{"allocate", "deallocate"}

var supportedImports = func() map[string]struct{} {
	m := make(map[string]struct{}, len(SupportedImports))
	for _, name := range SupportedImports {
		m[name] = struct{}{}
	}
	return m
}()

// ParseCapabilities splits a comma separated capability list. Empty items
// are ignored.
func ParseCapabilities(csv string) []string {
	var out []string
	for _, item := range strings.Split(csv, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// checkWasm runs the static checks of a checked upload.
func checkWasm(code []byte, available map[string]struct{}) (*wasm.Module, error) {
	m, err := checkParsed(code)
	if err != nil {
		return nil, err
	}
	if err := m.CheckFeatures(); err != nil {
		return nil, errors.New(errors.PhaseValidate, errors.KindValidation).
			Cause(err).
			Detail("Wasm bytecode uses an unsupported feature: %v", err).
			Build()
	}

	checks := []func(*wasm.Module) error{
		checkMemory,
		checkInterfaceVersion,
		checkExports,
		checkImports,
		checkFunctions,
		checkStart,
	}
	for _, check := range checks {
		if err := check(m); err != nil {
			return nil, err
		}
	}
	if err := checkCapabilities(m, available); err != nil {
		return nil, err
	}
	return m, nil
}

func checkParsed(code []byte) (*wasm.Module, error) {
	m, err := wasm.ParseModule(code)
	if err != nil {
		return nil, errors.New(errors.PhaseValidate, errors.KindValidation).
			Cause(err).
			Detail("Wasm bytecode could not be deserialized. Deserialization error: %v", err).
			Build()
	}
	return m, nil
}

func checkMemory(m *wasm.Module) error {
	if m.NumImportedMemories() > 0 {
		return errors.Validation("Wasm contract must not import memory")
	}
	if len(m.Memories) != 1 {
		return errors.Validation("Wasm contract must contain exactly one memory")
	}
	if m.Memories[0].Limits.Min > MaxMemoryPages {
		return errors.Validation("Wasm contract memory's minimum must not exceed %d pages.", MaxMemoryPages)
	}
	return nil
}

func checkInterfaceVersion(m *wasm.Module) error {
	var markers []string
	for _, e := range m.Exports {
		if strings.HasPrefix(e.Name, interfacePrefix) {
			markers = append(markers, e.Name)
		}
	}
	switch {
	case len(markers) == 0:
		return errors.Validation("Wasm contract missing a required marker export: %s*", interfacePrefix)
	case len(markers) > 1:
		return errors.Validation("Wasm contract contains more than one marker export: %s*", interfacePrefix)
	case markers[0] != InterfaceVersion:
		return errors.Validation("Wasm contract has unknown %s* marker export", interfacePrefix)
	}
	return nil
}

func checkExports(m *wasm.Module) error {
	for _, name := range requiredExports {
		if _, ok := m.ExportedFunc(name); !ok {
			return errors.Validation("Wasm contract doesn't have required export: %q. Exports required by VM: %q.", name, requiredExports)
		}
	}
	for _, reserved := range []string{metering.GasGlobalExport, metering.ExhaustedGlobalExport} {
		if _, ok := m.Export(reserved); ok {
			return errors.Validation("Wasm contract must not export reserved name %s", reserved)
		}
	}
	return nil
}

func checkImports(m *wasm.Module) error {
	if len(m.Imports) > MaxImports {
		return errors.Validation("Import count exceeds limit. Imports: %d. Limit: %d.", len(m.Imports), MaxImports)
	}
	var unsupported []string
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		if _, ok := supportedImports[imp.Name]; ok && imp.Module == hostImportsModule {
			continue
		}
		unsupported = append(unsupported, imp.Module+"."+imp.Name)
	}
	if len(unsupported) > 0 {
		return errors.NewUnsupportedImportsError(unsupported)
	}
	return nil
}

func checkFunctions(m *wasm.Module) error {
	if len(m.Funcs) > MaxFunctions {
		return errors.Validation("Wasm contract contains more than %d functions", MaxFunctions)
	}
	return nil
}

func checkStart(m *wasm.Module) error {
	if m.Start != nil {
		return errors.Validation("Wasm contract must not have a start function")
	}
	return nil
}

func checkCapabilities(m *wasm.Module, available map[string]struct{}) error {
	var missing []string
	for _, c := range requiredCapabilities(m) {
		if _, ok := available[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	quoted := make([]string, len(missing))
	for i, c := range missing {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return errors.Validation("Wasm contract requires unavailable capabilities: {%s}", strings.Join(quoted, ", "))
}

// requiredCapabilities returns the sorted capability names a module declares
// through requires_<name> exports.
func requiredCapabilities(m *wasm.Module) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range m.Exports {
		if !strings.HasPrefix(e.Name, capabilityPrefix) {
			continue
		}
		c := strings.TrimPrefix(e.Name, capabilityPrefix)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; !dup {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
