package wasmvm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/internal/testcontract"
	"github.com/wippyai/wasmvm/storage"
	"github.com/wippyai/wasmvm/types"
)

const (
	testGasLimit   = 200_000_000_000
	testMemoryMiB  = 32
	testCacheMiB   = 100
	hostGasLimit   = 100_000_000
	testDeployCost = math.MaxUint64
)

var (
	testEnv  = []byte(`{"block":{"height":12345,"time":"1578939743987654321","chain_id":"foobar"},"contract":{"address":"contract"}}`)
	testInfo = []byte(`{"sender":"creator","funds":[]}`)
)

type noopAPI struct{}

func (noopAPI) HumanizeAddress(canonical []byte) (string, uint64, error) {
	return string(canonical), 0, nil
}

func (noopAPI) CanonicalizeAddress(human string) ([]byte, uint64, error) {
	return []byte(human), 0, nil
}

func (noopAPI) ValidateAddress(string) (uint64, error) {
	return 0, nil
}

type noopQuerier struct{}

func (noopQuerier) Query([]byte, uint64) ([]byte, error) {
	return nil, types.UserError{Msg: "no queries"}
}

func (noopQuerier) GasConsumed() uint64 { return 0 }

func withVM(t *testing.T) *VM {
	t.Helper()
	vm, err := NewVM(t.TempDir(), []string{"staking", "iterator", "stargate"}, testMemoryMiB, false, testCacheMiB)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, vm.Cleanup())
	})
	return vm
}

func newStore(t *testing.T) (*storage.LevelDB, *storage.GasMeter, *storage.GasKV) {
	t.Helper()
	db := storage.NewMemLevelDB()
	t.Cleanup(func() { _ = db.Close() })
	meter := storage.NewGasMeter(hostGasLimit)
	return db, meter, storage.NewGasKV(db, meter, storage.DefaultGasConfig())
}

func TestCreateChecksum(t *testing.T) {
	tests := []struct {
		name    string
		wasm    []byte
		wantErr string
	}{
		{"nil", nil, "Wasm bytes nil or empty"},
		{"empty", []byte{}, "Wasm bytes nil or empty"},
		{"short", []byte{0x00, 0x61}, "Wasm bytes shorter than 4 bytes"},
		{"no magic", []byte("\x01asm\x01\x00\x00\x00"), "Wasm bytes do not start with Wasm magic number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateChecksum(tt.wasm)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}

	code := testcontract.Hackatom()
	checksum, err := CreateChecksum(code)
	require.NoError(t, err)
	require.Len(t, checksum, 32)
	require.Equal(t, types.NewChecksum(code).Bytes(), checksum)
}

func TestStoreCode(t *testing.T) {
	vm := withVM(t)
	code := testcontract.Hackatom()

	checksum, cost, err := vm.StoreCode(code, testDeployCost)
	require.NoError(t, err)
	require.Equal(t, CostPerByte*uint64(len(code)), cost)

	expected, err := CreateChecksum(code)
	require.NoError(t, err)
	require.Equal(t, expected, checksum)

	stored, err := vm.GetCode(checksum)
	require.NoError(t, err)
	require.Equal(t, code, stored)
}

func TestStoreCode_OutOfGas(t *testing.T) {
	vm := withVM(t)
	code := testcontract.Hackatom()

	checksum, cost, err := vm.StoreCode(code, 1)
	require.ErrorIs(t, err, errors.ErrOutOfGas)
	require.Nil(t, checksum)
	require.Equal(t, compileCost(code), cost)

	// nothing was stored
	_, err = vm.GetCode(types.NewChecksum(code).Bytes())
	require.Error(t, err)
}

func TestHappyPath(t *testing.T) {
	vm := withVM(t)
	checksum, _, err := vm.StoreCode(testcontract.Hackatom(), testDeployCost)
	require.NoError(t, err)
	db, meter, store := newStore(t)

	msg := []byte(`{"verifier":"fred","beneficiary":"bob"}`)
	res, report, err := vm.Instantiate(checksum, testEnv, testInfo, msg, store, noopAPI{}, noopQuerier{}, meter, testGasLimit)
	require.NoError(t, err)
	require.Equal(t, testcontract.Result, res)
	require.Equal(t, meter.GasConsumed(), report.UsedExternally)
	require.Equal(t, msg, db.Get(testcontract.Key))

	_, _, err = vm.Execute(checksum, testEnv, testInfo, testcontract.MsgRead, store, noopAPI{}, noopQuerier{}, meter, testGasLimit)
	require.NoError(t, err)

	res, _, err = vm.Query(checksum, testEnv, []byte(`{"verifier":{}}`), store, noopAPI{}, noopQuerier{}, meter, testGasLimit)
	require.NoError(t, err)
	require.Equal(t, msg, res)

	res, _, err = vm.Migrate(checksum, testEnv, []byte(`{}`), store, noopAPI{}, noopQuerier{}, meter, testGasLimit)
	require.NoError(t, err)
	require.Equal(t, testcontract.Result, res)
}

func TestPinnedContract(t *testing.T) {
	vm := withVM(t)
	checksum, _, err := vm.StoreCode(testcontract.Hackatom(), testDeployCost)
	require.NoError(t, err)
	require.NoError(t, vm.Pin(checksum))

	_, meter, store := newStore(t)
	_, _, err = vm.Instantiate(checksum, testEnv, testInfo, []byte(`{}`), store, noopAPI{}, noopQuerier{}, meter, testGasLimit)
	require.NoError(t, err)

	metrics, err := vm.GetMetrics()
	require.NoError(t, err)
	require.Equal(t, uint32(1), metrics.HitsPinnedMemoryCache)
	require.Equal(t, uint64(1), metrics.ElementsPinnedMemoryCache)

	require.NoError(t, vm.Unpin(checksum))
	require.NoError(t, vm.RemoveCode(checksum))
	metrics, err = vm.GetMetrics()
	require.NoError(t, err)
	require.Zero(t, metrics.ElementsPinnedMemoryCache)
	require.Zero(t, metrics.ElementsMemoryCache)
}

func TestIBC(t *testing.T) {
	vm := withVM(t)
	checksum, _, err := vm.StoreCode(testcontract.IBCReflect(), testDeployCost)
	require.NoError(t, err)

	report, err := vm.AnalyzeCode(checksum)
	require.NoError(t, err)
	require.True(t, report.HasIBCEntryPoints)
	require.Equal(t, "iterator,stargate", report.RequiredCapabilities)

	_, meter, store := newStore(t)
	msg := []byte(`{"channel":{}}`)
	for _, call := range []func(Checksum, []byte, []byte, KVStore, GoAPI, Querier, GasMeter, uint64) ([]byte, types.GasReport, error){
		vm.IBCChannelOpen, vm.IBCChannelConnect, vm.IBCChannelClose,
		vm.IBCPacketReceive, vm.IBCPacketAck, vm.IBCPacketTimeout,
	} {
		res, _, err := call(checksum, testEnv, msg, store, noopAPI{}, noopQuerier{}, meter, testGasLimit)
		require.NoError(t, err)
		require.Equal(t, testcontract.Result, res)
	}
}

func TestExecute_OutOfGas(t *testing.T) {
	vm := withVM(t)
	checksum, _, err := vm.StoreCode(testcontract.Hackatom(), testDeployCost)
	require.NoError(t, err)
	_, meter, store := newStore(t)

	_, report, err := vm.Execute(checksum, testEnv, testInfo, testcontract.MsgSpin, store, noopAPI{}, noopQuerier{}, meter, 1_000_000)
	require.ErrorIs(t, err, errors.ErrOutOfGas)
	require.Equal(t, uint64(1_000_000), report.UsedInternally+report.UsedExternally)
}

func TestSudoReply(t *testing.T) {
	vm := withVM(t)
	checksum, err := vm.StoreCodeUnchecked(testcontract.Hackatom())
	require.NoError(t, err)
	_, meter, store := newStore(t)

	res, _, err := vm.Sudo(checksum, testEnv, []byte(`{}`), store, noopAPI{}, noopQuerier{}, meter, testGasLimit)
	require.NoError(t, err)
	require.Equal(t, testcontract.Result, res)

	res, _, err = vm.Reply(checksum, testEnv, []byte(`{"id":1}`), store, noopAPI{}, noopQuerier{}, meter, testGasLimit)
	require.NoError(t, err)
	require.Equal(t, testcontract.Result, res)
}
