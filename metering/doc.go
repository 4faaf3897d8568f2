// Package metering injects deterministic gas accounting into contract code.
//
// Instrument adds an exported mutable i64 global holding the gas left and
// splices a charge at the start of every straight-line region. Running out
// of gas zeroes the global and executes unreachable, so a trap together with
// a zero counter identifies exhaustion.
package metering
