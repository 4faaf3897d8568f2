// Package buffer provides the byte buffers exchanged across the VM boundary.
//
// Two shapes exist. A View is a borrowed, read-only window into memory owned
// by the caller; the callee never keeps it past the call. A Vector is an
// owned buffer whose ownership moves exactly once: the side that receives it
// must Consume it (or Release it) exactly once. Both distinguish an absent
// buffer from a present but empty one.
//
//	out := buffer.Some([]byte("hello"))
//	data, ok := out.Consume() // "hello", true
//	out.Consume()             // panics: already consumed
//
// Out is a write-once output slot used for results and error messages.
// Reading a slot that was never written yields an absent Vector.
//
// The package tracks how many owned Vectors are alive. Outstanding reports
// that number so tests can assert that a boundary call consumed every buffer
// it created.
package buffer
