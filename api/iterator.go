package api

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/wippyai/wasmvm/types"
)

// frameLenLimit caps the iterators one call may open.
const frameLenLimit = 32768

// frame holds the iterators and gas meter of one contract call.
type frame struct {
	meter     types.GasMeter
	iterators []types.Iterator
}

var (
	framesMu     sync.Mutex
	frames       = map[uint64]*frame{}
	latestCallID uint64
)

// startCall opens a frame for a contract call and returns its id. Ids are
// never reused.
func startCall(meter types.GasMeter) uint64 {
	framesMu.Lock()
	defer framesMu.Unlock()
	latestCallID++
	frames[latestCallID] = &frame{meter: meter}
	return latestCallID
}

// endCall closes every iterator of the call and drops its frame.
func endCall(callID uint64) error {
	framesMu.Lock()
	f, ok := frames[callID]
	delete(frames, callID)
	framesMu.Unlock()

	if !ok {
		return nil
	}
	var err error
	for _, it := range f.iterators {
		err = multierr.Append(err, it.Close())
	}
	return err
}

// storeIterator adds it to the call's frame. Iterator ids start at 1.
func storeIterator(callID uint64, it types.Iterator) (uint64, error) {
	framesMu.Lock()
	defer framesMu.Unlock()

	f, ok := frames[callID]
	if !ok {
		return 0, fmt.Errorf("call %d has no frame", callID)
	}
	if len(f.iterators) >= frameLenLimit {
		return 0, fmt.Errorf("reached the iterator limit of %d for this call", frameLenLimit)
	}
	f.iterators = append(f.iterators, it)
	return uint64(len(f.iterators)), nil
}

// retrieveIterator returns the iterator and the call's gas meter.
func retrieveIterator(callID, iteratorID uint64) (types.Iterator, types.GasMeter, bool) {
	framesMu.Lock()
	defer framesMu.Unlock()

	f, ok := frames[callID]
	if !ok || iteratorID == 0 || iteratorID > uint64(len(f.iterators)) {
		return nil, nil, false
	}
	return f.iterators[iteratorID-1], f.meter, true
}
