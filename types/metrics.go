package types

// Metrics are the module cache counters. Hit and miss counters only grow
// for the lifetime of a cache; element and size fields are current values.
type Metrics struct {
	HitsPinnedMemoryCache     uint32 `json:"hits_pinned_memory_cache"`
	HitsMemoryCache           uint32 `json:"hits_memory_cache"`
	HitsFsCache               uint32 `json:"hits_fs_cache"`
	Misses                    uint32 `json:"misses"`
	ElementsPinnedMemoryCache uint64 `json:"elements_pinned_memory_cache"`
	ElementsMemoryCache       uint64 `json:"elements_memory_cache"`
	SizePinnedMemoryCache     uint64 `json:"size_pinned_memory_cache"`
	SizeMemoryCache           uint64 `json:"size_memory_cache"`
}

// AnalysisReport describes what a stored module needs from its host.
type AnalysisReport struct {
	// HasIBCEntryPoints is true when the module exports every IBC channel
	// and packet hook.
	HasIBCEntryPoints bool `json:"has_ibc_entry_points"`
	// RequiredCapabilities is the sorted, comma separated capability list.
	RequiredCapabilities string `json:"required_capabilities"`
	// Entrypoints lists the lifecycle exports found, sorted.
	Entrypoints []string `json:"entrypoints"`
}
