package api

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/buffer"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/ffi"
	"github.com/wippyai/wasmvm/resource"
	"github.com/wippyai/wasmvm/storage"
	"github.com/wippyai/wasmvm/types"
)

type dbState struct {
	store  types.KVStore
	meter  types.GasMeter
	callID uint64
}

// Host objects are registered for the duration of a call. Vtables get
// their handle as state.
var (
	dbStates      = resource.NewTable[*dbState]()
	apiStates     = resource.NewTable[types.GoAPI]()
	querierStates = resource.NewTable[types.Querier]()
)

var dbVtable = storage.Vtable{
	ReadDB:   readDB,
	WriteDB:  writeDB,
	RemoveDB: removeDB,
	ScanDB:   scanDB,
}

var iteratorVtable = storage.IteratorVtable{
	Next:      nextDB,
	NextKey:   nextKey,
	NextValue: nextValue,
}

var apiVtable = storage.GoAPIVtable{
	HumanizeAddress:     humanizeAddress,
	CanonicalizeAddress: canonicalizeAddress,
	ValidateAddress:     validateAddress,
}

var querierVtable = storage.QuerierVtable{
	QueryExternal: queryExternal,
}

// buildBackend registers the host objects of one call. release must be
// called when the call returns.
func buildBackend(callID uint64, meter types.GasMeter, store types.KVStore, goAPI types.GoAPI, querier types.Querier) (backend ffi.Backend, release func(), err error) {
	db, err := dbStates.Insert(&dbState{store: store, meter: meter, callID: callID})
	if err != nil {
		return ffi.Backend{}, nil, err
	}
	a, err := apiStates.Insert(goAPI)
	if err != nil {
		dbStates.Remove(db)
		return ffi.Backend{}, nil, err
	}
	q, err := querierStates.Insert(querier)
	if err != nil {
		dbStates.Remove(db)
		apiStates.Remove(a)
		return ffi.Backend{}, nil, err
	}

	release = func() {
		dbStates.Remove(db)
		apiStates.Remove(a)
		querierStates.Remove(q)
	}
	return ffi.Backend{
		DB:      storage.DB{State: uint64(db), Vtable: dbVtable},
		API:     storage.GoAPI{State: uint64(a), Vtable: apiVtable},
		Querier: storage.Querier{State: uint64(q), Vtable: querierVtable},
	}, release, nil
}

// recoverPanic turns a panic in host code into a status code. Running out
// of gas in a gas-metered store is reported as resource exhaustion.
func recoverPanic(code *errors.Code) {
	if r := recover(); r != nil {
		switch r.(type) {
		case storage.OutOfGasPanic, *storage.OutOfGasPanic:
			*code = errors.CodeResourceExhausted
		default:
			Logger().Error("panic in host callback", zap.Any("panic", r))
			*code = errors.CodeForeignFault
		}
	}
}

// measure returns a function reporting the gas consumed on m since the call.
func measure(m types.GasMeter) func() uint64 {
	if m == nil {
		return func() uint64 { return 0 }
	}
	before := m.GasConsumed()
	return func() uint64 {
		return m.GasConsumed() - before
	}
}

func fail(errOut *buffer.Out, code errors.Code, msg string) errors.Code {
	errOut.Store(buffer.Some([]byte(msg)))
	return code
}

// copyBytes copies b, keeping nil as nil.
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func lookupDB(state uint64) (*dbState, bool) {
	return dbStates.Get(resource.Handle(state))
}

/****** DB ******/

func readDB(state uint64, key buffer.View, valueOut, errOut *buffer.Out) (code errors.Code, used uint64) {
	s, ok := lookupDB(state)
	if !ok {
		return fail(errOut, errors.CodeUnknown, "db state not registered"), 0
	}
	gas := measure(s.meter)
	defer recoverPanic(&code)
	defer func() { used = gas() }()

	k, ok := key.Read()
	if !ok {
		return errors.CodeInvalidArgument, 0
	}
	if v := s.store.Get(k); v != nil {
		valueOut.Store(buffer.Some(copyBytes(v)))
	}
	return errors.CodeSuccess, 0
}

func writeDB(state uint64, key, value buffer.View, errOut *buffer.Out) (code errors.Code, used uint64) {
	s, ok := lookupDB(state)
	if !ok {
		return fail(errOut, errors.CodeUnknown, "db state not registered"), 0
	}
	gas := measure(s.meter)
	defer recoverPanic(&code)
	defer func() { used = gas() }()

	k, okKey := key.Read()
	v, okValue := value.Read()
	if !okKey || !okValue {
		return errors.CodeInvalidArgument, 0
	}
	s.store.Set(copyBytes(k), copyBytes(v))
	return errors.CodeSuccess, 0
}

func removeDB(state uint64, key buffer.View, errOut *buffer.Out) (code errors.Code, used uint64) {
	s, ok := lookupDB(state)
	if !ok {
		return fail(errOut, errors.CodeUnknown, "db state not registered"), 0
	}
	gas := measure(s.meter)
	defer recoverPanic(&code)
	defer func() { used = gas() }()

	k, ok := key.Read()
	if !ok {
		return errors.CodeInvalidArgument, 0
	}
	s.store.Delete(k)
	return errors.CodeSuccess, 0
}

func scanDB(state uint64, start, end buffer.View, order types.Order, iterOut *storage.Iter, errOut *buffer.Out) (code errors.Code, used uint64) {
	s, ok := lookupDB(state)
	if !ok {
		return fail(errOut, errors.CodeUnknown, "db state not registered"), 0
	}
	gas := measure(s.meter)
	defer recoverPanic(&code)
	defer func() { used = gas() }()

	// absent bounds read as nil, which the store treats as open
	s1, _ := start.Read()
	e1, _ := end.Read()

	var it types.Iterator
	switch order {
	case types.Ascending:
		it = s.store.Iterator(copyBytes(s1), copyBytes(e1))
	case types.Descending:
		it = s.store.ReverseIterator(copyBytes(s1), copyBytes(e1))
	default:
		return errors.CodeInvalidArgument, 0
	}

	id, err := storeIterator(s.callID, it)
	if err != nil {
		_ = it.Close()
		return fail(errOut, errors.CodeUserError, err.Error()), 0
	}
	*iterOut = storage.Iter{
		State:  storage.IterState{CallID: s.callID, IteratorID: id},
		Vtable: iteratorVtable,
	}
	return errors.CodeSuccess, 0
}

/****** Iterator ******/

func iteratorMissing(errOut *buffer.Out, state storage.IterState) errors.Code {
	return fail(errOut, errors.CodeUnknown, fmt.Sprintf("iterator %d of call %d not found", state.IteratorID, state.CallID))
}

func nextDB(state storage.IterState, keyOut, valueOut, errOut *buffer.Out) (code errors.Code, used uint64) {
	it, meter, ok := retrieveIterator(state.CallID, state.IteratorID)
	if !ok {
		return iteratorMissing(errOut, state), 0
	}
	gas := measure(meter)
	defer recoverPanic(&code)
	defer func() { used = gas() }()

	if !it.Valid() {
		if err := it.Error(); err != nil {
			return fail(errOut, errors.CodeUnknown, err.Error()), 0
		}
		return errors.CodeSuccess, 0
	}
	keyOut.Store(buffer.Some(copyBytes(it.Key())))
	valueOut.Store(buffer.Some(copyBytes(it.Value())))
	it.Next()
	return errors.CodeSuccess, 0
}

func nextKey(state storage.IterState, keyOut, errOut *buffer.Out) (errors.Code, uint64) {
	return nextPart(state, keyOut, errOut, types.Iterator.Key)
}

func nextValue(state storage.IterState, valueOut, errOut *buffer.Out) (errors.Code, uint64) {
	return nextPart(state, valueOut, errOut, types.Iterator.Value)
}

func nextPart(state storage.IterState, out, errOut *buffer.Out, part func(types.Iterator) []byte) (code errors.Code, used uint64) {
	it, meter, ok := retrieveIterator(state.CallID, state.IteratorID)
	if !ok {
		return iteratorMissing(errOut, state), 0
	}
	gas := measure(meter)
	defer recoverPanic(&code)
	defer func() { used = gas() }()

	if !it.Valid() {
		if err := it.Error(); err != nil {
			return fail(errOut, errors.CodeUnknown, err.Error()), 0
		}
		return errors.CodeSuccess, 0
	}
	out.Store(buffer.Some(copyBytes(part(it))))
	it.Next()
	return errors.CodeSuccess, 0
}

/****** GoAPI ******/

func humanizeAddress(state uint64, canonical buffer.View, humanOut, errOut *buffer.Out) (code errors.Code, used uint64) {
	defer recoverPanic(&code)
	a, ok := apiStates.Get(resource.Handle(state))
	if !ok {
		return fail(errOut, errors.CodeUnknown, "api state not registered"), 0
	}
	c, ok := canonical.Read()
	if !ok {
		return errors.CodeInvalidArgument, 0
	}
	h, cost, err := a.HumanizeAddress(c)
	if err != nil {
		return fail(errOut, errors.CodeUserError, err.Error()), cost
	}
	humanOut.Store(buffer.Some([]byte(h)))
	return errors.CodeSuccess, cost
}

func canonicalizeAddress(state uint64, human buffer.View, canonicalOut, errOut *buffer.Out) (code errors.Code, used uint64) {
	defer recoverPanic(&code)
	a, ok := apiStates.Get(resource.Handle(state))
	if !ok {
		return fail(errOut, errors.CodeUnknown, "api state not registered"), 0
	}
	h, ok := human.Read()
	if !ok {
		return errors.CodeInvalidArgument, 0
	}
	c, cost, err := a.CanonicalizeAddress(string(h))
	if err != nil {
		return fail(errOut, errors.CodeUserError, err.Error()), cost
	}
	canonicalOut.Store(buffer.Some(copyBytes(c)))
	return errors.CodeSuccess, cost
}

func validateAddress(state uint64, human buffer.View, errOut *buffer.Out) (code errors.Code, used uint64) {
	defer recoverPanic(&code)
	a, ok := apiStates.Get(resource.Handle(state))
	if !ok {
		return fail(errOut, errors.CodeUnknown, "api state not registered"), 0
	}
	h, ok := human.Read()
	if !ok {
		return errors.CodeInvalidArgument, 0
	}
	cost, err := a.ValidateAddress(string(h))
	if err != nil {
		return fail(errOut, errors.CodeUserError, err.Error()), cost
	}
	return errors.CodeSuccess, cost
}

/****** Go Querier ******/

func queryExternal(state uint64, gasLimit uint64, request buffer.View, resultOut, errOut *buffer.Out) (code errors.Code, used uint64) {
	q, ok := querierStates.Get(resource.Handle(state))
	if !ok {
		return fail(errOut, errors.CodeUnknown, "querier state not registered"), 0
	}
	gas := measure(q)
	defer recoverPanic(&code)
	defer func() { used = gas() }()

	req, ok := request.Read()
	if !ok {
		return errors.CodeInvalidArgument, 0
	}
	res, err := q.Query(req, gasLimit)
	if err != nil {
		return fail(errOut, errors.CodeUserError, err.Error()), 0
	}
	resultOut.Store(buffer.Some(copyBytes(res)))
	return errors.CodeSuccess, 0
}
