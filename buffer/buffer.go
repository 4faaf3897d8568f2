package buffer

import (
	"fmt"
	"sync/atomic"
)

var outstanding atomic.Int64

// Outstanding returns the number of owned vectors created and not yet consumed.
func Outstanding() int64 {
	return outstanding.Load()
}

// View is a borrowed view of caller memory.
type View struct {
	data  []byte
	isNil bool
}

// MakeView creates a view over b. A nil slice produces an absent view,
// a non-nil empty slice a present empty view.
func MakeView(b []byte) View {
	if b == nil {
		return View{isNil: true}
	}
	return View{data: b}
}

// NilView returns an absent view.
func NilView() View {
	return View{isNil: true}
}

// IsNil reports whether the view is absent.
func (v View) IsNil() bool {
	return v.isNil
}

// Read returns the viewed bytes without copying.
// It returns (nil, false) for an absent view and a non-nil slice otherwise.
func (v View) Read() ([]byte, bool) {
	if v.isNil {
		return nil, false
	}
	if v.data == nil {
		return []byte{}, true
	}
	return v.data, true
}

// Vector is an owned buffer that must be consumed exactly once.
// Vectors are passed by pointer; copying the struct is not supported.
type Vector struct {
	data     []byte
	present  bool
	owned    bool
	consumed bool
}

// Some creates a present vector that takes ownership of b.
// A nil b is stored as an empty payload.
func Some(b []byte) *Vector {
	if b == nil {
		b = []byte{}
	}
	outstanding.Add(1)
	return &Vector{data: b, present: true, owned: true}
}

// None creates an absent vector.
func None() *Vector {
	return &Vector{}
}

// New creates a vector from an optional payload: nil is absent.
func New(b []byte) *Vector {
	if b == nil {
		return None()
	}
	return Some(b)
}

// Unmanaged is the raw form of a vector as it crosses the boundary.
// When IsNil is set, Data and Len are ignored and never read.
type Unmanaged struct {
	Data  []byte
	Len   int
	IsNil bool
}

// FromUnmanaged takes ownership of a raw vector. The absent flag is
// authoritative; a zero length yields a present empty vector.
func FromUnmanaged(u Unmanaged) (*Vector, error) {
	if u.IsNil {
		return None(), nil
	}
	if u.Len < 0 || u.Len > len(u.Data) {
		return nil, fmt.Errorf("unmanaged vector length %d exceeds backing size %d", u.Len, len(u.Data))
	}
	if u.Len == 0 {
		return Some([]byte{}), nil
	}
	return Some(u.Data[:u.Len:u.Len]), nil
}

// IsSome reports whether the vector holds a payload.
func (v *Vector) IsSome() bool {
	return v.present
}

// IsNone reports whether the vector is absent.
func (v *Vector) IsNone() bool {
	return !v.present
}

// Len returns the payload length without consuming.
func (v *Vector) Len() int {
	return len(v.data)
}

// Consume transfers the payload to the caller and invalidates the vector.
// It returns (nil, false) for an absent vector. Consuming twice panics.
func (v *Vector) Consume() ([]byte, bool) {
	if v.consumed {
		panic("buffer: vector consumed twice")
	}
	v.consumed = true
	if v.owned {
		outstanding.Add(-1)
	}
	data, present := v.data, v.present
	v.data = nil
	if !present {
		return nil, false
	}
	return data, true
}

// Release consumes the vector and discards its payload.
func (v *Vector) Release() {
	v.Consume()
}

// ToUnmanaged consumes the vector into its raw boundary form.
func (v *Vector) ToUnmanaged() Unmanaged {
	data, ok := v.Consume()
	if !ok {
		return Unmanaged{IsNil: true}
	}
	return Unmanaged{Data: data, Len: len(data)}
}

// Out is a write-once slot for a vector produced by a callee.
type Out struct {
	v *Vector
}

// Store writes v into the slot. Writing a slot twice panics.
func (o *Out) Store(v *Vector) {
	if o.v != nil {
		panic("buffer: output slot written twice")
	}
	o.v = v
}

// IsSet reports whether the slot holds a present vector.
func (o *Out) IsSet() bool {
	return o.v != nil && o.v.present
}

// Take removes the vector from the slot. An unwritten slot yields None.
func (o *Out) Take() *Vector {
	v := o.v
	o.v = nil
	if v == nil {
		return None()
	}
	return v
}
