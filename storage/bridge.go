package storage

import (
	stderrors "errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/wasmvm/buffer"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/resource"
	"github.com/wippyai/wasmvm/types"
)

// DefaultIteratorLimit caps the iterators one bridge keeps open.
const DefaultIteratorLimit = 10_000

// Bridge implements types.Storage on top of a host DB.
type Bridge struct {
	db        DB
	iterators *resource.Table[Iter]
	limit     int
}

var _ types.Storage = (*Bridge)(nil)

// NewBridge creates a bridge with DefaultIteratorLimit.
func NewBridge(db DB) *Bridge {
	return NewBridgeWithLimit(db, DefaultIteratorLimit)
}

// NewBridgeWithLimit creates a bridge keeping at most limit iterators open.
// A limit of 0 means unlimited.
func NewBridgeWithLimit(db DB, limit int) *Bridge {
	return &Bridge{
		db:        db,
		iterators: resource.NewTableWithLimit[Iter](limit),
		limit:     limit,
	}
}

func (b *Bridge) Get(key []byte) ([]byte, types.GasInfo, error) {
	read := b.db.Vtable.ReadDB
	if read == nil {
		return nil, types.Free(), vtableUnset("read_db")
	}

	var valueOut, errOut buffer.Out
	code, used := read(b.db.State, buffer.MakeView(key), &valueOut, &errOut)
	value, _ := valueOut.Take().Consume()
	gas := types.GasInfoWithExternallyUsed(used)

	if err := code.IntoResult(errOut.Take(), func() string {
		return "Failed to read a key in the db: " + lossy(key)
	}); err != nil {
		return nil, gas, err
	}
	return value, gas, nil
}

func (b *Bridge) Set(key, value []byte) (types.GasInfo, error) {
	write := b.db.Vtable.WriteDB
	if write == nil {
		return types.Free(), vtableUnset("write_db")
	}

	var errOut buffer.Out
	code, used := write(b.db.State, buffer.MakeView(key), buffer.MakeView(value), &errOut)
	gas := types.GasInfoWithExternallyUsed(used)
	return gas, code.IntoResult(errOut.Take(), func() string {
		return "Failed to set a key in the db: " + lossy(key)
	})
}

func (b *Bridge) Remove(key []byte) (types.GasInfo, error) {
	remove := b.db.Vtable.RemoveDB
	if remove == nil {
		return types.Free(), vtableUnset("remove_db")
	}

	var errOut buffer.Out
	code, used := remove(b.db.State, buffer.MakeView(key), &errOut)
	gas := types.GasInfoWithExternallyUsed(used)
	return gas, code.IntoResult(errOut.Take(), func() string {
		return "Failed to delete a key in the db: " + lossy(key)
	})
}

// Scan opens a host iterator over [start, end) and returns its handle.
func (b *Bridge) Scan(start, end []byte, order types.Order) (uint32, types.GasInfo, error) {
	scan := b.db.Vtable.ScanDB
	if scan == nil {
		return 0, types.Free(), vtableUnset("scan_db")
	}
	if !order.Valid() {
		return 0, types.Free(), errors.InvalidInput(errors.PhaseBackend, "invalid scan order %d", int32(order))
	}

	var iter Iter
	var errOut buffer.Out
	code, used := scan(b.db.State, buffer.MakeView(start), buffer.MakeView(end), order, &iter, &errOut)
	gas := types.GasInfoWithExternallyUsed(used)

	if err := code.IntoResult(errOut.Take(), func() string {
		return fmt.Sprintf("Failed to read the next key between %s and %s", lossyBound(start), lossyBound(end))
	}); err != nil {
		return 0, gas, err
	}

	handle, err := b.iterators.Insert(iter)
	if err != nil {
		if stderrors.Is(err, resource.ErrLimit) {
			return 0, gas, errors.LimitExceeded(errors.PhaseBackend, "open iterators", b.iterators.Len()+1, b.limit)
		}
		return 0, gas, errors.Wrap(errors.PhaseBackend, errors.KindBackendUnknown, err, "store iterator")
	}
	return uint32(handle), gas, nil
}

// Next advances iterator id. A nil record means the iterator is exhausted.
func (b *Bridge) Next(id uint32) (*types.Record, types.GasInfo, error) {
	iter, err := b.iterator(id)
	if err != nil {
		return nil, types.Free(), err
	}
	next := iter.Vtable.Next
	if next == nil {
		return nil, types.Free(), vtableUnset("next_db")
	}

	var keyOut, valueOut, errOut buffer.Out
	code, used := next(iter.State, &keyOut, &valueOut, &errOut)
	key, hasKey := keyOut.Take().Consume()
	value, hasValue := valueOut.Take().Consume()
	gas := types.GasInfoWithExternallyUsed(used)

	if err := code.IntoResult(errOut.Take(), func() string {
		return "Failed to fetch next item from iterator"
	}); err != nil {
		return nil, gas, err
	}
	if !hasKey {
		return nil, gas, nil
	}
	if !hasValue {
		return nil, gas, errors.BackendUnknown("failed to read value while reading next key")
	}
	return &types.Record{Key: key, Value: value}, gas, nil
}

// NextKey advances iterator id and returns only the key.
func (b *Bridge) NextKey(id uint32) ([]byte, types.GasInfo, error) {
	iter, err := b.iterator(id)
	if err != nil {
		return nil, types.Free(), err
	}
	next := iter.Vtable.NextKey
	if next == nil {
		return nil, types.Free(), vtableUnset("next_key")
	}
	return nextSide(func(out, errOut *buffer.Out) (errors.Code, uint64) {
		return next(iter.State, out, errOut)
	}, "Failed to fetch next key from iterator")
}

// NextValue advances iterator id and returns only the value.
func (b *Bridge) NextValue(id uint32) ([]byte, types.GasInfo, error) {
	iter, err := b.iterator(id)
	if err != nil {
		return nil, types.Free(), err
	}
	next := iter.Vtable.NextValue
	if next == nil {
		return nil, types.Free(), vtableUnset("next_value")
	}
	return nextSide(func(out, errOut *buffer.Out) (errors.Code, uint64) {
		return next(iter.State, out, errOut)
	}, "Failed to fetch next value from iterator")
}

// OpenIterators returns the number of iterators the bridge holds.
func (b *Bridge) OpenIterators() int {
	return b.iterators.Len()
}

// Close drops all iterators. The bridge rejects scans afterwards.
func (b *Bridge) Close() error {
	return b.iterators.Close()
}

func (b *Bridge) iterator(id uint32) (Iter, error) {
	iter, ok := b.iterators.Get(resource.Handle(id))
	if !ok {
		return Iter{}, errors.IteratorDoesNotExist(id)
	}
	return iter, nil
}

func nextSide(call func(out, errOut *buffer.Out) (errors.Code, uint64), defaultMsg string) ([]byte, types.GasInfo, error) {
	var out, errOut buffer.Out
	code, used := call(&out, &errOut)
	data, _ := out.Take().Consume()
	gas := types.GasInfoWithExternallyUsed(used)
	if err := code.IntoResult(errOut.Take(), func() string { return defaultMsg }); err != nil {
		return nil, gas, err
	}
	return data, gas, nil
}

// lossy renders key for messages, replacing invalid UTF-8.
func lossy(key []byte) string {
	if utf8.Valid(key) {
		return string(key)
	}
	return strings.ToValidUTF8(string(key), string(utf8.RuneError))
}

func lossyBound(b []byte) string {
	if b == nil {
		return "None"
	}
	return fmt.Sprintf("%q", lossy(b))
}
