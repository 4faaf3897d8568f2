package storage

import (
	"github.com/wippyai/wasmvm/buffer"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/types"
)

// Vtable is the host's key/value function table. Each entry returns a
// status code and the gas the host spent serving the call.
type Vtable struct {
	ReadDB   func(state uint64, key buffer.View, valueOut, errOut *buffer.Out) (errors.Code, uint64)
	WriteDB  func(state uint64, key, value buffer.View, errOut *buffer.Out) (errors.Code, uint64)
	RemoveDB func(state uint64, key buffer.View, errOut *buffer.Out) (errors.Code, uint64)
	ScanDB   func(state uint64, start, end buffer.View, order types.Order, iterOut *Iter, errOut *buffer.Out) (errors.Code, uint64)
}

// DB is a key/value store on the host side of the boundary.
type DB struct {
	State  uint64
	Vtable Vtable
}

// IterState identifies a host iterator: the call frame it belongs to and its
// position within that frame.
type IterState struct {
	CallID     uint64
	IteratorID uint64
}

// IteratorVtable is the host's iterator function table. An exhausted
// iterator leaves its key and value slots unset.
type IteratorVtable struct {
	Next      func(state IterState, keyOut, valueOut, errOut *buffer.Out) (errors.Code, uint64)
	NextKey   func(state IterState, keyOut, errOut *buffer.Out) (errors.Code, uint64)
	NextValue func(state IterState, valueOut, errOut *buffer.Out) (errors.Code, uint64)
}

// Iter is a host iterator created by ScanDB.
type Iter struct {
	State  IterState
	Vtable IteratorVtable
}

// GoAPIVtable is the host's address function table.
type GoAPIVtable struct {
	HumanizeAddress     func(state uint64, canonical buffer.View, humanOut, errOut *buffer.Out) (errors.Code, uint64)
	CanonicalizeAddress func(state uint64, human buffer.View, canonicalOut, errOut *buffer.Out) (errors.Code, uint64)
	ValidateAddress     func(state uint64, human buffer.View, errOut *buffer.Out) (errors.Code, uint64)
}

// GoAPI is the host's address codec.
type GoAPI struct {
	State  uint64
	Vtable GoAPIVtable
}

// QuerierVtable is the host's query function table. The result slot holds
// the serialized system result of the query.
type QuerierVtable struct {
	QueryExternal func(state uint64, gasLimit uint64, request buffer.View, resultOut, errOut *buffer.Out) (errors.Code, uint64)
}

// Querier answers chain queries on the host side.
type Querier struct {
	State  uint64
	Vtable QuerierVtable
}

func vtableUnset(name string) error {
	return errors.BackendUnknown("Vtable function " + name + " not set")
}
