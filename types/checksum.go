package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ChecksumLen is the length of a module checksum in bytes.
const ChecksumLen = 32

// Checksum is the sha256 digest of a stored wasm module.
type Checksum [ChecksumLen]byte

// NewChecksum hashes wasm bytes.
func NewChecksum(wasm []byte) Checksum {
	return sha256.Sum256(wasm)
}

// ChecksumFromBytes converts a raw checksum, checking its length.
func ChecksumFromBytes(b []byte) (Checksum, error) {
	var c Checksum
	if len(b) != ChecksumLen {
		return c, fmt.Errorf("Checksum not of length %d", ChecksumLen)
	}
	copy(c[:], b)
	return c, nil
}

// ParseChecksum decodes a hex-encoded checksum.
func ParseChecksum(s string) (Checksum, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Checksum{}, fmt.Errorf("invalid checksum hex: %w", err)
	}
	return ChecksumFromBytes(b)
}

// Bytes returns a copy of the checksum as a slice.
func (c Checksum) Bytes() []byte {
	return append([]byte(nil), c[:]...)
}

// String returns the lowercase hex encoding, which is also the on-disk file name.
func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}
