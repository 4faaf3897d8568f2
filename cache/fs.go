package cache

import (
	"bytes"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/types"
)

// wasmStore is the filesystem tier: one file per checksum, named by its hex
// encoding. Files are never evicted implicitly.
type wasmStore struct {
	dir string
}

func (s wasmStore) path(checksum types.Checksum) string {
	return filepath.Join(s.dir, checksum.String())
}

// save writes code unless a file for checksum already exists.
func (s wasmStore) save(checksum types.Checksum, code []byte) error {
	target := s.path(checksum)
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+checksum.String()+"-*")
	if err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "Error creating Wasm file for writing")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(code); err != nil {
		_ = tmp.Close()
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "Error writing Wasm file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "Error writing Wasm file")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "Error writing Wasm file")
	}
	return nil
}

// load reads the file for checksum. A missing file yields a not found error.
func (s wasmStore) load(checksum types.Checksum) ([]byte, error) {
	code, err := os.ReadFile(s.path(checksum))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, &errors.Error{
				Phase:  errors.PhaseCache,
				Kind:   errors.KindNotFound,
				Detail: "Error opening Wasm file for reading",
				Cause:  err,
				Value:  checksum.String(),
			}
		}
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "Error reading Wasm file")
	}
	if sum := types.NewChecksum(code); !bytes.Equal(sum[:], checksum[:]) {
		return nil, errors.InvalidData(errors.PhaseCache, nil, "Wasm file checksum mismatch for "+checksum.String())
	}
	return code, nil
}

// exists reports whether a file for checksum is stored.
func (s wasmStore) exists(checksum types.Checksum) bool {
	_, err := os.Stat(s.path(checksum))
	return err == nil
}

// remove deletes the file for checksum. Removing a missing file fails.
func (s wasmStore) remove(checksum types.Checksum) error {
	err := os.Remove(s.path(checksum))
	if err == nil {
		return nil
	}
	if stderrors.Is(err, fs.ErrNotExist) {
		return errors.NotFound(errors.PhaseCache, "Wasm file does not exist")
	}
	return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "Error removing Wasm file")
}
