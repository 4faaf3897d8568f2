// Package cache stores contract code by checksum and serves compiled modules.
//
// Code lives in a filesystem tier under <base>/wasm, one file per checksum.
// Compiled modules are kept in two in-memory tiers: a pinned tier that holds
// modules until they are unpinned, and a memory tier bounded in bytes that
// evicts the least recently used module. GetModule consults pinned, then
// memory, then the filesystem, and counts each hit in Metrics.
//
// A module compiled once is shared by every tier and caller that holds it and
// is closed when the last holder releases it:
//
//	c, err := cache.New(ctx, cache.Options{BaseDir: dir, MemoryCacheSizeMiB: 100})
//	checksum, err := c.SaveWasm(ctx, code, false)
//	mod, err := c.GetModule(ctx, checksum)
//	defer mod.Release(ctx)
//
// Checked saves run static validation: exactly one memory, the allocate and
// deallocate exports, the interface version marker, known env imports only
// and capabilities within the configured set. Only one Cache may use a base
// directory at a time.
package cache
