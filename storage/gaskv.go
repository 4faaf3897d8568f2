package storage

import (
	"github.com/wippyai/wasmvm/types"
)

// GasConfig prices key/value operations.
type GasConfig struct {
	HasCost          uint64
	DeleteCost       uint64
	ReadCostFlat     uint64
	ReadCostPerByte  uint64
	WriteCostFlat    uint64
	WriteCostPerByte uint64
	IterNextCostFlat uint64
}

// DefaultGasConfig returns the usual chain store prices.
func DefaultGasConfig() GasConfig {
	return GasConfig{
		HasCost:          1000,
		DeleteCost:       1000,
		ReadCostFlat:     1000,
		ReadCostPerByte:  3,
		WriteCostFlat:    2000,
		WriteCostPerByte: 30,
		IterNextCostFlat: 30,
	}
}

// GasKV charges a GasMeter for every access to the wrapped store.
type GasKV struct {
	parent types.KVStore
	meter  *GasMeter
	config GasConfig
}

var _ types.KVStore = (*GasKV)(nil)

func NewGasKV(parent types.KVStore, meter *GasMeter, config GasConfig) *GasKV {
	return &GasKV{parent: parent, meter: meter, config: config}
}

func (g *GasKV) Get(key []byte) []byte {
	g.meter.ConsumeGas(g.config.ReadCostFlat, "ReadFlat")
	value := g.parent.Get(key)
	g.meter.ConsumeGas(g.config.ReadCostPerByte*uint64(len(key)), "ReadPerByte")
	g.meter.ConsumeGas(g.config.ReadCostPerByte*uint64(len(value)), "ReadPerByte")
	return value
}

func (g *GasKV) Set(key, value []byte) {
	g.meter.ConsumeGas(g.config.WriteCostFlat, "WriteFlat")
	g.meter.ConsumeGas(g.config.WriteCostPerByte*uint64(len(key)), "WritePerByte")
	g.meter.ConsumeGas(g.config.WriteCostPerByte*uint64(len(value)), "WritePerByte")
	g.parent.Set(key, value)
}

func (g *GasKV) Delete(key []byte) {
	g.meter.ConsumeGas(g.config.DeleteCost, "Delete")
	g.parent.Delete(key)
}

func (g *GasKV) Iterator(start, end []byte) types.Iterator {
	return g.iterator(g.parent.Iterator(start, end))
}

func (g *GasKV) ReverseIterator(start, end []byte) types.Iterator {
	return g.iterator(g.parent.ReverseIterator(start, end))
}

func (g *GasKV) iterator(parent types.Iterator) types.Iterator {
	it := &gasIterator{parent: parent, meter: g.meter, config: g.config}
	it.consumeSeek()
	return it
}

type gasIterator struct {
	parent types.Iterator
	meter  *GasMeter
	config GasConfig
}

func (it *gasIterator) Valid() bool { return it.parent.Valid() }

func (it *gasIterator) Next() {
	it.parent.Next()
	it.consumeSeek()
}

func (it *gasIterator) Key() []byte   { return it.parent.Key() }
func (it *gasIterator) Value() []byte { return it.parent.Value() }
func (it *gasIterator) Error() error  { return it.parent.Error() }
func (it *gasIterator) Close() error  { return it.parent.Close() }

// consumeSeek charges for the entry the iterator now points at.
func (it *gasIterator) consumeSeek() {
	if !it.parent.Valid() {
		return
	}
	key, value := it.parent.Key(), it.parent.Value()
	it.meter.ConsumeGas(it.config.ReadCostPerByte*uint64(len(key)), "ValuePerByte")
	it.meter.ConsumeGas(it.config.ReadCostPerByte*uint64(len(value)), "ValuePerByte")
	it.meter.ConsumeGas(it.config.IterNextCostFlat, "IterNextFlat")
}
