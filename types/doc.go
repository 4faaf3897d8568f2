// Package types holds the data model shared by the cache, the dispatcher,
// the boundary adapter and the host wrapper: checksums, gas accounting,
// cache metrics, analysis reports, and the interfaces of both sides of a
// Backend.
//
// Storage, BackendAPI and BackendQuerier are what an executing contract sees;
// each call returns its GasInfo. KVStore, Iterator, GoAPI and Querier are what
// the host implements; the storage package adapts between the two.
package types
