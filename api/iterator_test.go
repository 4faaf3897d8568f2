package api

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmvm/types"
)

type stubIterator struct {
	types.Iterator
	closed   bool
	closeErr error
}

func (it *stubIterator) Close() error {
	it.closed = true
	return it.closeErr
}

func TestCallFrames(t *testing.T) {
	first := startCall(nil)
	second := startCall(nil)
	require.Greater(t, second, first)

	a, b := &stubIterator{}, &stubIterator{}
	id, err := storeIterator(first, a)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
	id, err = storeIterator(first, b)
	require.NoError(t, err)
	require.Equal(t, uint64(2), id)

	// ids are per frame
	id, err = storeIterator(second, &stubIterator{})
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	it, _, ok := retrieveIterator(first, 2)
	require.True(t, ok)
	require.Same(t, b, it)
	_, _, ok = retrieveIterator(first, 0)
	require.False(t, ok)
	_, _, ok = retrieveIterator(first, 3)
	require.False(t, ok)

	require.NoError(t, endCall(first))
	require.True(t, a.closed)
	require.True(t, b.closed)
	_, _, ok = retrieveIterator(first, 1)
	require.False(t, ok)

	_, err = storeIterator(first, &stubIterator{})
	require.Error(t, err, "ended frames accept no iterators")

	require.NoError(t, endCall(second))
	require.NoError(t, endCall(second), "ending twice is a no-op")
}

func TestCallFrames_CloseErrors(t *testing.T) {
	callID := startCall(nil)
	bad := &stubIterator{closeErr: stderrors.New("close failed")}
	good := &stubIterator{}
	_, err := storeIterator(callID, bad)
	require.NoError(t, err)
	_, err = storeIterator(callID, good)
	require.NoError(t, err)

	require.ErrorContains(t, endCall(callID), "close failed")
	require.True(t, good.closed, "all iterators are closed despite errors")
}

func TestCallFrames_Limit(t *testing.T) {
	callID := startCall(nil)
	defer endCall(callID)

	for i := 0; i < frameLenLimit; i++ {
		_, err := storeIterator(callID, &stubIterator{})
		require.NoError(t, err)
	}
	_, err := storeIterator(callID, &stubIterator{})
	require.ErrorContains(t, err, "iterator limit")
}
