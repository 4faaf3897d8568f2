// Package errors provides structured error types for the VM.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries an optional field path, the offending value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCache, errors.KindNotFound).
//		Detail("Wasm file does not exist").
//		Cause(fsErr).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnsetArgument("checksum")
//	err := errors.IteratorDoesNotExist(7)
//
// Sentinels such as ErrOutOfGas carry no phase and match any error of the
// same kind through errors.Is.
//
// # Boundary status
//
// Two small integer enums cross the call boundary. Code is what a backend
// (storage, api, querier) returns for each callback; Code.IntoResult turns it
// and its optional message into an error, consuming the message on every
// path. Status is what each exported call reports to its caller: success,
// a generic failure, or gas exhaustion, which is kept distinct so hosts can
// bill it separately.
package errors
