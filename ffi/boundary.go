package ffi

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/buffer"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/types"
)

// catchPanic runs fn and converts its error, or a panic raised inside it,
// into a status with the message stored in errOut. Nothing escapes it.
func catchPanic(op string, errOut *buffer.Out, fn func() error) (status errors.Status) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("panic at boundary", zap.String("op", op), zap.Any("panic", r))
			status = setError(errOut, errors.Panic(errors.PhaseBoundary, r))
		}
	}()
	return setError(errOut, fn())
}

// setError publishes err. A successful call leaves errOut unset.
func setError(errOut *buffer.Out, err error) errors.Status {
	if err == nil {
		return errors.StatusSuccess
	}
	if errOut != nil && !errOut.IsSet() {
		errOut.Store(errors.MessageVector(err))
	}
	return errors.StatusOf(err)
}

// requireView reads a required input.
func requireView(v buffer.View, name string) ([]byte, error) {
	data, ok := v.Read()
	if !ok {
		return nil, errors.UnsetArgument(name)
	}
	return data, nil
}

// requireString reads a required UTF-8 input.
func requireString(v buffer.View, name string) (string, error) {
	data, err := requireView(v, name)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(errors.PhaseBoundary,
			errors.InvalidData(errors.PhaseBoundary, []string{name}, "invalid utf-8 sequence"))
	}
	return string(data), nil
}

// requireChecksum reads a required checksum.
func requireChecksum(v buffer.View) (types.Checksum, error) {
	data, err := requireView(v, "checksum")
	if err != nil {
		return types.Checksum{}, err
	}
	checksum, err := types.ChecksumFromBytes(data)
	if err != nil {
		return types.Checksum{}, errors.New(errors.PhaseBoundary, errors.KindBadArgument).
			Detail("Checksum not of length %d", types.ChecksumLen).
			Build()
	}
	return checksum, nil
}
