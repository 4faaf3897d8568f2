package ffi

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/wippyai/wasmvm/buffer"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/internal/testcontract"
	"github.com/wippyai/wasmvm/storage"
	"github.com/wippyai/wasmvm/types"
)

const testGasLimit = 200_000_000_000

func view(s string) buffer.View {
	return buffer.MakeView([]byte(s))
}

// message drains errOut. Absent slots yield "".
func message(errOut *buffer.Out) string {
	msg, _ := errors.MessageFrom(errOut.Take())
	return msg
}

func consume(t *testing.T, v *buffer.Vector) []byte {
	t.Helper()
	data, _ := v.Consume()
	return data
}

func initTestCache(t *testing.T) CacheHandle {
	t.Helper()
	var errOut buffer.Out
	h, status := InitCache(view(t.TempDir()), view("staking"), 100, 32, &errOut)
	if status != errors.StatusSuccess {
		t.Fatalf("InitCache: %s %s", status, message(&errOut))
	}
	if errOut.IsSet() {
		t.Fatal("successful call wrote the error slot")
	}
	t.Cleanup(func() {
		ReleaseCache(h)
	})
	return h
}

func saveCode(t *testing.T, h CacheHandle, code []byte) []byte {
	t.Helper()
	var errOut buffer.Out
	out, status := SaveWasm(h, buffer.MakeView(code), false, &errOut)
	if status != errors.StatusSuccess {
		t.Fatalf("SaveWasm: %s", message(&errOut))
	}
	return consume(t, out)
}

// mapDB is a vtable backed by a map.
type mapDB struct {
	data map[string][]byte
}

func newMapDB() *mapDB {
	return &mapDB{data: map[string][]byte{}}
}

func (d *mapDB) backend() Backend {
	return Backend{DB: storage.DB{State: 1, Vtable: storage.Vtable{
		ReadDB: func(_ uint64, key buffer.View, valueOut, errOut *buffer.Out) (errors.Code, uint64) {
			k, _ := key.Read()
			if v, ok := d.data[string(k)]; ok {
				valueOut.Store(buffer.Some(append([]byte(nil), v...)))
			}
			return errors.CodeSuccess, 10
		},
		WriteDB: func(_ uint64, key, value buffer.View, errOut *buffer.Out) (errors.Code, uint64) {
			k, _ := key.Read()
			v, _ := value.Read()
			d.data[string(k)] = append([]byte(nil), v...)
			return errors.CodeSuccess, 20
		},
		RemoveDB: func(_ uint64, key buffer.View, errOut *buffer.Out) (errors.Code, uint64) {
			k, _ := key.Read()
			delete(d.data, string(k))
			return errors.CodeSuccess, 30
		},
		ScanDB: func(_ uint64, _, _ buffer.View, _ types.Order, iterOut *storage.Iter, errOut *buffer.Out) (errors.Code, uint64) {
			keys := make([]string, 0, len(d.data))
			for k := range d.data {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			*iterOut = storage.Iter{Vtable: storage.IteratorVtable{
				Next: func(_ storage.IterState, keyOut, valueOut, _ *buffer.Out) (errors.Code, uint64) {
					if len(keys) == 0 {
						return errors.CodeSuccess, 1
					}
					k := keys[0]
					keys = keys[1:]
					keyOut.Store(buffer.Some([]byte(k)))
					valueOut.Store(buffer.Some(append([]byte(nil), d.data[k]...)))
					return errors.CodeSuccess, 1
				},
			}}
			return errors.CodeSuccess, 5
		},
	}}}
}

func TestInitCache_Arguments(t *testing.T) {
	tests := []struct {
		name    string
		dir     buffer.View
		caps    buffer.View
		wantMsg string
	}{
		{"nil dir", buffer.NilView(), view("staking"), "Null/Nil argument: data_dir"},
		{"nil capabilities", view(t.TempDir()), buffer.NilView(), "Null/Nil argument: available_capabilities"},
		{"invalid utf8", buffer.MakeView([]byte{0xff, 0xfe}), view(""), "Cannot decode UTF8 bytes into string"},
		{"empty dir", view(""), view(""), "base directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := buffer.Outstanding()
			var errOut buffer.Out
			h, status := InitCache(tt.dir, tt.caps, 0, 0, &errOut)
			if status != errors.StatusOther || h != 0 {
				t.Fatalf("status = %s, handle = %d", status, h)
			}
			if msg := message(&errOut); !strings.Contains(msg, tt.wantMsg) {
				t.Fatalf("message %q does not contain %q", msg, tt.wantMsg)
			}
			if buffer.Outstanding() != before {
				t.Fatal("leaked vectors")
			}
		})
	}
}

func TestReleaseCache_Twice(t *testing.T) {
	var errOut buffer.Out
	h, status := InitCache(view(t.TempDir()), view(""), 0, 0, &errOut)
	if status != errors.StatusSuccess {
		t.Fatalf("InitCache: %s", message(&errOut))
	}
	if status := ReleaseCache(h); status != errors.StatusSuccess {
		t.Fatalf("first release: %s", status)
	}
	if status := ReleaseCache(h); status != errors.StatusOther {
		t.Fatalf("second release: %s", status)
	}

	var metricsErr buffer.Out
	if _, status := GetMetrics(h, &metricsErr); status != errors.StatusOther {
		t.Fatal("released handle must be rejected")
	}
	if msg := message(&metricsErr); !strings.Contains(msg, "Null/Nil argument: cache") {
		t.Fatalf("message = %q", msg)
	}
}

func TestCacheLifecycle(t *testing.T) {
	h := initTestCache(t)
	before := buffer.Outstanding()
	code := testcontract.Hackatom()

	first := saveCode(t, h, code)
	second := saveCode(t, h, code)
	if !bytes.Equal(first, second) || len(first) != types.ChecksumLen {
		t.Fatalf("checksums differ: %x %x", first, second)
	}

	var errOut buffer.Out
	loaded, status := LoadWasm(h, buffer.MakeView(first), &errOut)
	if status != errors.StatusSuccess || !bytes.Equal(consume(t, loaded), code) {
		t.Fatalf("LoadWasm: %s", message(&errOut))
	}

	report, status := AnalyzeCode(h, buffer.MakeView(first), &errOut)
	if status != errors.StatusSuccess {
		t.Fatalf("AnalyzeCode: %s", message(&errOut))
	}
	if report.HasIBCEntryPoints {
		t.Fatal("hackatom has no IBC entry points")
	}
	if caps := consume(t, report.RequiredCapabilities); len(caps) != 0 {
		t.Fatalf("capabilities = %q", caps)
	}
	if eps := string(consume(t, report.Entrypoints)); eps != "execute,instantiate,migrate,query,reply,sudo" {
		t.Fatalf("entrypoints = %q", eps)
	}

	for i := 0; i < 2; i++ {
		if status := Pin(h, buffer.MakeView(first), &errOut); status != errors.StatusSuccess {
			t.Fatalf("Pin: %s", message(&errOut))
		}
	}
	metrics, status := GetMetrics(h, &errOut)
	if status != errors.StatusSuccess {
		t.Fatalf("GetMetrics: %s", message(&errOut))
	}
	if metrics.ElementsPinnedMemoryCache != 1 {
		t.Fatalf("metrics = %+v", metrics)
	}
	for i := 0; i < 2; i++ {
		if status := Unpin(h, buffer.MakeView(first), &errOut); status != errors.StatusSuccess {
			t.Fatalf("Unpin: %s", message(&errOut))
		}
	}

	if status := RemoveWasm(h, buffer.MakeView(first), &errOut); status != errors.StatusSuccess {
		t.Fatalf("RemoveWasm: %s", message(&errOut))
	}
	if status := RemoveWasm(h, buffer.MakeView(first), &errOut); status != errors.StatusOther {
		t.Fatal("second remove should fail")
	}
	if msg := message(&errOut); !strings.Contains(msg, "Wasm file does not exist") {
		t.Fatalf("message = %q", msg)
	}
	out, status := LoadWasm(h, buffer.MakeView(first), &errOut)
	if status != errors.StatusOther || out.IsSome() {
		t.Fatal("load after remove should fail")
	}
	out.Release()
	message(&errOut)

	if buffer.Outstanding() != before {
		t.Fatalf("leaked %d vectors", buffer.Outstanding()-before)
	}
}

func TestChecksumArguments(t *testing.T) {
	h := initTestCache(t)
	tests := []struct {
		name     string
		checksum buffer.View
		wantMsg  string
	}{
		{"nil", buffer.NilView(), "Null/Nil argument: checksum"},
		{"short", buffer.MakeView([]byte{1, 2, 3}), "Checksum not of length 32"},
		{"empty", buffer.MakeView([]byte{}), "Checksum not of length 32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errOut buffer.Out
			if status := Pin(h, tt.checksum, &errOut); status != errors.StatusOther {
				t.Fatalf("status = %s", status)
			}
			if msg := message(&errOut); !strings.Contains(msg, tt.wantMsg) {
				t.Fatalf("message %q does not contain %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestSaveWasm_Arguments(t *testing.T) {
	h := initTestCache(t)
	tests := []struct {
		name    string
		wasm    buffer.View
		wantMsg string
	}{
		{"nil", buffer.NilView(), "Null/Nil argument: wasm"},
		{"empty", buffer.MakeView([]byte{}), "Empty argument: wasm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errOut buffer.Out
			out, status := SaveWasm(h, tt.wasm, false, &errOut)
			if status != errors.StatusOther {
				t.Fatalf("status = %s", status)
			}
			if !out.IsNone() {
				t.Fatal("failed save returned a checksum")
			}
			if msg := message(&errOut); !strings.Contains(msg, tt.wantMsg) {
				t.Fatalf("message %q does not contain %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestInstantiateExecute(t *testing.T) {
	h := initTestCache(t)
	checksum := saveCode(t, h, testcontract.Hackatom())
	db := newMapDB()
	env, info := view(`{}`), view(`{}`)
	before := buffer.Outstanding()

	var report types.GasReport
	var errOut buffer.Out
	res, status := Instantiate(h, buffer.MakeView(checksum), env, info, view(`{"verifier":"x"}`), db.backend(), testGasLimit, false, &report, &errOut)
	if status != errors.StatusSuccess {
		t.Fatalf("Instantiate: %s", message(&errOut))
	}
	if errOut.IsSet() {
		t.Fatal("success wrote an error message")
	}
	if !bytes.Equal(consume(t, res), testcontract.Result) {
		t.Fatal("unexpected result")
	}
	if report.UsedInternally == 0 || report.Remaining >= testGasLimit || report.UsedExternally != 20 {
		t.Fatalf("report = %+v", report)
	}
	if string(db.data[string(testcontract.Key)]) != `{"verifier":"x"}` {
		t.Fatal("instantiate did not store its message")
	}

	report = types.GasReport{}
	res, status = Execute(h, buffer.MakeView(checksum), env, info, buffer.MakeView(testcontract.MsgIterate), db.backend(), testGasLimit, false, &report, &errOut)
	if status != errors.StatusSuccess {
		t.Fatalf("Execute: %s", message(&errOut))
	}
	res.Release()
	if report.UsedExternally != 5+1+10 {
		t.Fatalf("scan, next and read should be charged, report = %+v", report)
	}

	report = types.GasReport{}
	res, status = Execute(h, buffer.MakeView(checksum), env, info, buffer.MakeView(testcontract.MsgSpin), db.backend(), 5_000_000, false, &report, &errOut)
	if status != errors.StatusOutOfGas {
		t.Fatalf("status = %s", status)
	}
	if res.IsSome() {
		t.Fatal("failed call returned a result")
	}
	res.Release()
	if msg := message(&errOut); !strings.Contains(msg, "Ran out of gas") {
		t.Fatalf("message = %q", msg)
	}
	if report.Remaining != 0 || report.UsedInternally+report.UsedExternally != 5_000_000 {
		t.Fatalf("report = %+v", report)
	}

	report = types.GasReport{}
	res, status = Execute(h, buffer.MakeView(checksum), env, info, buffer.MakeView(testcontract.MsgFail), db.backend(), testGasLimit, false, &report, &errOut)
	if status != errors.StatusOther {
		t.Fatalf("status = %s", status)
	}
	res.Release()
	if msg := message(&errOut); !strings.Contains(msg, "Aborted: boom") {
		t.Fatalf("message = %q", msg)
	}
	if report.Limit != testGasLimit || report.UsedInternally == 0 ||
		report.UsedExternally+report.UsedInternally+report.Remaining > report.Limit {
		t.Fatalf("report = %+v", report)
	}

	if buffer.Outstanding() != before {
		t.Fatalf("leaked %d vectors", buffer.Outstanding()-before)
	}
}

func TestCall_Arguments(t *testing.T) {
	h := initTestCache(t)
	checksum := saveCode(t, h, testcontract.Hackatom())

	var report types.GasReport
	var errOut buffer.Out
	res, status := Query(h, buffer.MakeView(checksum), view(`{}`), buffer.NilView(), newMapDB().backend(), testGasLimit, false, &report, &errOut)
	if status != errors.StatusOther {
		t.Fatalf("status = %s", status)
	}
	res.Release()
	if msg := message(&errOut); !strings.Contains(msg, "Null/Nil argument: msg") {
		t.Fatalf("message = %q", msg)
	}
	if report != (types.GasReport{}) {
		t.Fatalf("no instance was acquired, report = %+v", report)
	}

	res, status = Sudo(0, buffer.MakeView(checksum), view(`{}`), view(`{}`), newMapDB().backend(), testGasLimit, false, &report, &errOut)
	if status != errors.StatusOther {
		t.Fatalf("status = %s", status)
	}
	res.Release()
	if msg := message(&errOut); !strings.Contains(msg, "Null/Nil argument: cache") {
		t.Fatalf("message = %q", msg)
	}
}

func TestCatchPanic(t *testing.T) {
	var errOut buffer.Out
	status := catchPanic("test", &errOut, func() error {
		panic("boom")
	})
	if status != errors.StatusOther {
		t.Fatalf("status = %s", status)
	}
	if msg := message(&errOut); !strings.Contains(msg, "Caught panic") {
		t.Fatalf("message = %q", msg)
	}

	status = catchPanic("test", &errOut, func() error {
		return errors.OutOfGas()
	})
	if status != errors.StatusOutOfGas {
		t.Fatalf("status = %s", status)
	}
	message(&errOut)

	if status := catchPanic("test", nil, func() error { return errors.BackendUnknown("x") }); status != errors.StatusOther {
		t.Fatalf("status = %s", status)
	}
}
