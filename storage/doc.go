// Package storage bridges an executing contract to the host's backend.
//
// The host supplies three function tables: Vtable for key/value access,
// GoAPIVtable for address handling and QuerierVtable for chain queries.
// Every table entry receives an opaque state word, writes its results into
// output slots and returns a status code together with the gas it used.
// The bridges in this package call those entries, consume every output slot
// exactly once and turn status codes into errors.
//
// A Bridge keeps the iterators opened through Scan in a table keyed by
// strictly increasing handles. Handles are never reused, and looking up a
// handle that was never issued fails with an iterator-does-not-exist error.
//
// The package also carries a host-side key/value store on goleveldb and a
// gas metering wrapper for it, used by the CLI and by tests.
package storage
