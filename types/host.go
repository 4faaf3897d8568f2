package types

// KVStore is the host's key/value store.
type KVStore interface {
	// Get returns nil if the key does not exist.
	Get(key []byte) []byte
	Set(key, value []byte)
	Delete(key []byte)

	// Iterator iterates over [start, end) in ascending order.
	// Nil start or end means unbounded on that side.
	Iterator(start, end []byte) Iterator
	// ReverseIterator iterates over [start, end) in descending order.
	ReverseIterator(start, end []byte) Iterator
}

// Iterator is a host-side cursor.
type Iterator interface {
	Valid() bool
	Next()
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// GoAPI is the host's address codec.
type GoAPI interface {
	HumanizeAddress(canonical []byte) (string, uint64, error)
	CanonicalizeAddress(human string) ([]byte, uint64, error)
	ValidateAddress(human string) (uint64, error)
}

// Querier answers contract queries against chain state.
type Querier interface {
	Query(request []byte, gasLimit uint64) ([]byte, error)
	GasConsumed() uint64
}

// UserError is returned by host implementations for errors caused by contract input.
// It crosses the boundary as a user error rather than an unknown failure.
type UserError struct {
	Msg string
}

func (e UserError) Error() string {
	return e.Msg
}
