package runtime

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmvm/errors"
)

// RegionSize is the size of a region descriptor in guest memory.
const RegionSize = 12

// Region describes a buffer in guest memory: three little endian u32 words
// holding the offset, the capacity and the used length.
type Region struct {
	Offset   uint32
	Capacity uint32
	Length   uint32
}

func (r Region) validate() error {
	if r.Offset == 0 {
		return errors.InvalidData(errors.PhaseRuntime, []string{"region"}, "Region has zero offset")
	}
	if r.Length > r.Capacity {
		return errors.InvalidData(errors.PhaseRuntime, []string{"region"}, "Region length exceeds capacity")
	}
	if uint64(r.Offset)+uint64(r.Capacity) > math.MaxUint32 {
		return errors.InvalidData(errors.PhaseRuntime, []string{"region"}, "Region exceeds address space")
	}
	return nil
}

func readRegion(mem api.Memory, ptr uint32) (Region, error) {
	if ptr == 0 {
		return Region{}, errors.InvalidData(errors.PhaseRuntime, []string{"region"}, "Region pointer is null")
	}
	raw, ok := mem.Read(ptr, RegionSize)
	if !ok {
		return Region{}, errors.OutOfBounds(errors.PhaseRuntime, []string{"region"}, int(ptr), int(mem.Size()))
	}
	r := Region{
		Offset:   binary.LittleEndian.Uint32(raw[0:]),
		Capacity: binary.LittleEndian.Uint32(raw[4:]),
		Length:   binary.LittleEndian.Uint32(raw[8:]),
	}
	return r, r.validate()
}

// readRegionData copies the bytes a region points at. Regions longer than
// maxLen are rejected.
func readRegionData(mem api.Memory, ptr uint32, maxLen int) ([]byte, error) {
	r, err := readRegion(mem, ptr)
	if err != nil {
		return nil, err
	}
	if int(r.Length) > maxLen {
		return nil, errors.LimitExceeded(errors.PhaseRuntime, "Region", int(r.Length), maxLen)
	}
	data, ok := mem.Read(r.Offset, r.Length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, []string{"region", "data"}, int(r.Offset), int(mem.Size()))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// maybeReadRegionData treats a null pointer as an absent value.
func maybeReadRegionData(mem api.Memory, ptr uint32, maxLen int) ([]byte, error) {
	if ptr == 0 {
		return nil, nil
	}
	return readRegionData(mem, ptr, maxLen)
}

// writeRegionData copies data into the region at ptr and sets its length.
func writeRegionData(mem api.Memory, ptr uint32, data []byte) error {
	r, err := readRegion(mem, ptr)
	if err != nil {
		return err
	}
	if uint64(len(data)) > uint64(r.Capacity) {
		return errors.LimitExceeded(errors.PhaseRuntime, "Region write", len(data), int(r.Capacity))
	}
	if !mem.Write(r.Offset, data) {
		return errors.OutOfBounds(errors.PhaseRuntime, []string{"region", "data"}, int(r.Offset), int(mem.Size()))
	}
	if !mem.WriteUint32Le(ptr+8, uint32(len(data))) {
		return errors.OutOfBounds(errors.PhaseRuntime, []string{"region", "length"}, int(ptr+8), int(mem.Size()))
	}
	return nil
}

// writeToContract allocates a region in the guest through its allocate
// export and fills it with data. It returns the region pointer.
func (s *callState) writeToContract(ctx context.Context, mod api.Module, data []byte) (uint32, error) {
	allocate := mod.ExportedFunction("allocate")
	if allocate == nil {
		return 0, errors.NotFound(errors.PhaseRuntime, "Could not get export: Missing export allocate")
	}
	if uint64(len(data)) > math.MaxUint32 {
		return 0, errors.LimitExceeded(errors.PhaseRuntime, "allocation", len(data), math.MaxUint32)
	}
	res, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, s.classifyTrap(err)
	}
	ptr := uint32(res[0])
	if err := writeRegionData(mod.Memory(), ptr, data); err != nil {
		return 0, err
	}
	return ptr, nil
}

// encodeSections concatenates sections, each followed by its length as a
// big endian u32.
func encodeSections(sections ...[]byte) []byte {
	size := 0
	for _, s := range sections {
		size += len(s) + 4
	}
	out := make([]byte, 0, size)
	for _, s := range sections {
		out = append(out, s...)
		out = binary.BigEndian.AppendUint32(out, uint32(len(s)))
	}
	return out
}
