package storage

import (
	"fmt"
	"math"
	"sync"
)

// OutOfGasPanic is the value GasMeter panics with when its limit is
// exceeded. Host callbacks recover it and report resource exhaustion.
type OutOfGasPanic struct {
	Descriptor string
}

func (p OutOfGasPanic) Error() string {
	return "out of gas in location: " + p.Descriptor
}

// GasMeter counts gas spent by host-side work.
type GasMeter struct {
	mu       sync.Mutex
	limit    uint64
	consumed uint64
}

// NewGasMeter creates a meter that panics with OutOfGasPanic past limit.
// A limit of 0 means unlimited.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// ConsumeGas charges amount. descriptor names the charge in panics.
func (m *GasMeter) ConsumeGas(amount uint64, descriptor string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consumed > math.MaxUint64-amount {
		m.consumed = math.MaxUint64
		panic(OutOfGasPanic{Descriptor: descriptor})
	}
	m.consumed += amount
	if m.limit > 0 && m.consumed > m.limit {
		panic(OutOfGasPanic{Descriptor: descriptor})
	}
}

// GasConsumed returns the gas charged so far.
func (m *GasMeter) GasConsumed() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumed
}

// Limit returns the configured limit.
func (m *GasMeter) Limit() uint64 {
	return m.limit
}

func (m *GasMeter) String() string {
	return fmt.Sprintf("GasMeter{consumed: %d, limit: %d}", m.GasConsumed(), m.limit)
}
