// Package resource provides handle tables for values referenced across the
// VM boundary.
//
// A Table maps small integer handles to Go values. It is used for iterator
// cursors inside a storage bridge, for per-call iterator frames on the host
// side, and for cache and backend handles at the exported surface.
//
//	table := resource.NewTable[*Cursor]()
//
//	h, err := table.Insert(cursor) // h >= 1
//	cursor, ok := table.Get(h)
//	cursor, ok = table.Remove(h)
//
// # Handle Allocation
//
// Handles come from a counter that only moves forward. Removing an entry
// never frees its handle for reuse, so a stale handle can never alias a newer
// value; looking it up simply fails. Handle 0 is never issued.
//
// # Cleanup
//
// Close drops every remaining value and calls Drop on values implementing
// Dropper. After Close the table rejects inserts with ErrClosed.
package resource
