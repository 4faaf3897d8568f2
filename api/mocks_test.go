package api

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmvm/storage"
	"github.com/wippyai/wasmvm/types"
)

const (
	testGasLimit     = 200_000_000_000
	testHostGasLimit = 10_000_000

	canonicalCost = 440
	humanizeCost  = 550
	validateCost  = 330
)

/**** Mock GoAPI ****/

// mockAPI treats the human address as the canonical bytes. Addresses
// shorter than three bytes are rejected.
type mockAPI struct{}

var _ types.GoAPI = mockAPI{}

func (mockAPI) HumanizeAddress(canonical []byte) (string, uint64, error) {
	if len(canonical) < 3 {
		return "", humanizeCost, types.UserError{Msg: "canonical address too short"}
	}
	return string(canonical), humanizeCost, nil
}

func (mockAPI) CanonicalizeAddress(human string) ([]byte, uint64, error) {
	if len(human) < 3 {
		return nil, canonicalCost, types.UserError{Msg: "human address too short"}
	}
	return []byte(human), canonicalCost, nil
}

func (mockAPI) ValidateAddress(human string) (uint64, error) {
	if len(human) < 3 {
		return validateCost, types.UserError{Msg: "human address too short"}
	}
	return validateCost, nil
}

/**** Mock Querier ****/

// mockQuerier answers balance queries from a fixed table and charges one
// unit of gas per request byte.
type mockQuerier struct {
	balances map[string]string
	used     uint64
}

var _ types.Querier = (*mockQuerier)(nil)

func newMockQuerier() *mockQuerier {
	return &mockQuerier{balances: map[string]string{"alice": "100ustake"}}
}

func (q *mockQuerier) Query(request []byte, gasLimit uint64) ([]byte, error) {
	q.used += uint64(len(request))
	if q.used > gasLimit {
		return nil, fmt.Errorf("query gas limit %d exceeded", gasLimit)
	}
	var req struct {
		Balance struct {
			Address string `json:"address"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(request, &req); err != nil {
		return nil, types.UserError{Msg: "unparsable query: " + err.Error()}
	}
	amount, ok := q.balances[req.Balance.Address]
	if !ok {
		return nil, types.UserError{Msg: "no such account: " + req.Balance.Address}
	}
	return json.Marshal(map[string]any{"ok": map[string]any{"ok": amount}})
}

func (q *mockQuerier) GasConsumed() uint64 {
	return q.used
}

/**** Test environment ****/

type testEnv struct {
	cache   Cache
	meter   *storage.GasMeter
	store   *storage.GasKV
	db      *storage.LevelDB
	querier *mockQuerier
}

func withCache(t *testing.T, capabilities ...string) Cache {
	t.Helper()
	if capabilities == nil {
		capabilities = []string{"staking", "stargate", "iterator"}
	}
	cache, err := InitCache(t.TempDir(), capabilities, 100, 32)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, ReleaseCache(cache))
	})
	return cache
}

func newTestEnv(t *testing.T, hostGasLimit uint64) *testEnv {
	t.Helper()
	db := storage.NewMemLevelDB()
	t.Cleanup(func() { _ = db.Close() })
	meter := storage.NewGasMeter(hostGasLimit)
	return &testEnv{
		cache:   withCache(t),
		meter:   meter,
		store:   storage.NewGasKV(db, meter, storage.DefaultGasConfig()),
		db:      db,
		querier: newMockQuerier(),
	}
}

// resetMeter starts a fresh host gas meter for the next call.
func (e *testEnv) resetMeter(limit uint64) {
	e.meter = storage.NewGasMeter(limit)
	e.store = storage.NewGasKV(e.db, e.meter, storage.DefaultGasConfig())
}

func mustStoreCode(t *testing.T, cache Cache, wasm []byte) []byte {
	t.Helper()
	checksum, err := StoreCode(cache, wasm)
	require.NoError(t, err)
	return checksum
}
