package resource

import (
	"math"
	"sync"
)

// Table maps handles to values. Handles come from a strictly increasing
// counter and are never reused, even after their value is removed.
type Table[T any] struct {
	entries map[Handle]T
	next    Handle
	limit   int
	mu      sync.RWMutex
	closed  bool
}

// NewTable creates an empty table without an entry limit.
func NewTable[T any]() *Table[T] {
	return NewTableWithLimit[T](0)
}

// NewTableWithLimit creates a table holding at most limit live entries.
// A limit of 0 means unlimited.
func NewTableWithLimit[T any](limit int) *Table[T] {
	return &Table[T]{
		entries: make(map[Handle]T),
		next:    1,
		limit:   limit,
	}
}

// Insert stores a value and returns its handle.
func (t *Table[T]) Insert(value T) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrClosed
	}
	if t.limit > 0 && len(t.entries) >= t.limit {
		return 0, ErrLimit
	}
	if t.next == math.MaxUint32 {
		return 0, ErrExhausted
	}

	h := t.next
	t.next++
	t.entries[h] = value
	return h, nil
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(handle Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.entries[handle]
	return v, ok
}

// Remove drops a value and returns it if the handle was live.
func (t *Table[T]) Remove(handle Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.entries[handle]
	if ok {
		delete(t.entries, handle)
	}
	return v, ok
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Issued returns how many handles have been handed out so far.
func (t *Table[T]) Issued() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int(t.next - 1)
}

// Close drops every live value, calling Drop on values implementing Dropper,
// and rejects further inserts. Closing twice is a no-op.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	entries := t.entries
	t.entries = make(map[Handle]T)
	t.mu.Unlock()

	for _, v := range entries {
		if d, ok := any(v).(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}
