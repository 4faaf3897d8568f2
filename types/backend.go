package types

// Order is the direction of a range scan. It crosses the boundary as an int32.
type Order int32

const (
	Ascending  Order = 1
	Descending Order = 2
)

// Valid reports whether o is a known order.
func (o Order) Valid() bool {
	return o == Ascending || o == Descending
}

func (o Order) String() string {
	switch o {
	case Ascending:
		return "ascending"
	case Descending:
		return "descending"
	default:
		return "invalid"
	}
}

// Record is one key/value pair produced by an iterator.
type Record struct {
	Key   []byte
	Value []byte
}

// Storage is the key/value leg of a Backend as seen by an executing contract.
// Every call reports its gas. A nil value from Get means the key is absent.
type Storage interface {
	Get(key []byte) ([]byte, GasInfo, error)
	Set(key, value []byte) (GasInfo, error)
	Remove(key []byte) (GasInfo, error)
	// Scan opens an iterator over [start, end). Nil bounds are open.
	Scan(start, end []byte, order Order) (uint32, GasInfo, error)
	// Next returns nil when the iterator is exhausted.
	Next(iteratorID uint32) (*Record, GasInfo, error)
	NextKey(iteratorID uint32) ([]byte, GasInfo, error)
	NextValue(iteratorID uint32) ([]byte, GasInfo, error)
}

// BackendAPI is the address leg of a Backend.
type BackendAPI interface {
	AddrValidate(human string) (GasInfo, error)
	AddrCanonicalize(human string) ([]byte, GasInfo, error)
	AddrHumanize(canonical []byte) (string, GasInfo, error)
}

// BackendQuerier is the chain query leg of a Backend.
type BackendQuerier interface {
	QueryRaw(request []byte, gasLimit uint64) ([]byte, GasInfo, error)
}

// Backend is everything an instance may call out to during one call.
type Backend struct {
	Storage Storage
	API     BackendAPI
	Querier BackendQuerier
}
