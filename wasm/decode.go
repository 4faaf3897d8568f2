package wasm

import (
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/wippyai/wasmvm/wasm/internal/binary"
)

var (
	// ErrUnsupported marks constructs outside the contract profile.
	ErrUnsupported = errors.New("unsupported feature")
	// ErrMalformed marks structurally invalid binaries.
	ErrMalformed = errors.New("malformed module")
)

// ParseError is returned for decoding failures and carries the byte position.
type ParseError = bin.ParseError

var sectionNames = map[byte]string{
	SectionCustom:    "custom section",
	SectionType:      "type section",
	SectionImport:    "import section",
	SectionFunction:  "function section",
	SectionTable:     "table section",
	SectionMemory:    "memory section",
	SectionGlobal:    "global section",
	SectionExport:    "export section",
	SectionStart:     "start section",
	SectionElement:   "element section",
	SectionCode:      "code section",
	SectionData:      "data section",
	SectionDataCount: "data count section",
	SectionTag:       "tag section",
}

// ParseModule decodes a binary module. Function bodies are split into locals
// and instruction bytes but instructions are not decoded; use CheckFeatures
// or Walk for that.
func ParseModule(data []byte) (*Module, error) {
	r := bin.NewReader(data)
	header, err := r.ReadBytes(8)
	if err != nil {
		return nil, r.WrapError("header", fmt.Errorf("%w: too short", ErrMalformed))
	}
	if binary.LittleEndian.Uint32(header[:4]) != Magic {
		return nil, r.WrapError("header", fmt.Errorf("%w: bad magic number", ErrMalformed))
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != Version {
		return nil, r.WrapError("header", fmt.Errorf("%w: version %d", ErrUnsupported, v))
	}

	m := &Module{}
	lastOrder := 0
	for !r.EOF() {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		name, known := sectionNames[id]
		if !known {
			return nil, r.WrapError("", fmt.Errorf("%w: unknown section id %d", ErrMalformed, id))
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError(name, err)
		}
		sr, err := r.Sub(int(size))
		if err != nil {
			return nil, r.WrapError(name, err)
		}

		if id != SectionCustom {
			order := sectionOrder(id)
			if order <= lastOrder {
				return nil, r.WrapError(name, fmt.Errorf("%w: section out of order or duplicated", ErrMalformed))
			}
			lastOrder = order
		}

		if err := parseSection(sr, id, m); err != nil {
			return nil, wrapSection(name, r.Pos(), err)
		}
		if !sr.EOF() {
			return nil, r.WrapError(name, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, sr.Len()))
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, &ParseError{
			Section:  "code section",
			Position: len(data),
			Err:      fmt.Errorf("%w: %d functions declared, %d bodies", ErrMalformed, len(m.Funcs), len(m.Code)),
		}
	}
	return m, nil
}

func wrapSection(name string, pos int, err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	return &ParseError{Section: name, Position: pos, Err: err}
}

// sectionOrder returns the canonical position of a non-custom section.
func sectionOrder(id byte) int {
	switch id {
	case SectionTag:
		return 6
	case SectionGlobal, SectionExport, SectionStart, SectionElement:
		return int(id) + 1
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	default:
		return int(id)
	}
}

func parseSection(r *bin.Reader, id byte, m *Module) error {
	switch id {
	case SectionCustom:
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		data, _ := r.ReadBytes(r.Len())
		m.CustomSections = append(m.CustomSections, CustomSection{Name: name, Data: data})
		return nil
	case SectionType:
		return parseTypeSection(r, m)
	case SectionImport:
		return parseImportSection(r, m)
	case SectionFunction:
		return readVec(r, func() error {
			idx, err := r.ReadU32()
			m.Funcs = append(m.Funcs, idx)
			return err
		})
	case SectionTable:
		return readRaw(r, &m.Tables, func() error {
			_, err := readTableType(r)
			return err
		})
	case SectionMemory:
		return readVec(r, func() error {
			mt, err := readMemoryType(r)
			m.Memories = append(m.Memories, mt)
			return err
		})
	case SectionGlobal:
		return readVec(r, func() error {
			gt, err := readGlobalType(r)
			if err != nil {
				return err
			}
			init, err := readConstExpr(r)
			if err != nil {
				return err
			}
			m.Globals = append(m.Globals, Global{Type: gt, Init: init})
			return nil
		})
	case SectionExport:
		return parseExportSection(r, m)
	case SectionStart:
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Start = &idx
		return nil
	case SectionElement:
		data, _ := r.ReadBytes(r.Len())
		m.Elements = data
		return nil
	case SectionDataCount:
		data, _ := r.ReadBytes(r.Len())
		m.DataCount = data
		return nil
	case SectionData:
		data, _ := r.ReadBytes(r.Len())
		m.Data = data
		return nil
	case SectionCode:
		return parseCodeSection(r, m)
	case SectionTag:
		return fmt.Errorf("%w: exception handling", ErrUnsupported)
	}
	return nil
}

func readVec(r *bin.Reader, item func() error) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(n) > r.Len() {
		return fmt.Errorf("%w: vector length %d exceeds section", ErrMalformed, n)
	}
	for i := uint32(0); i < n; i++ {
		if err := item(); err != nil {
			return err
		}
	}
	return nil
}

// readRaw checks the section structurally and keeps its payload verbatim.
func readRaw(r *bin.Reader, dst *[]byte, item func() error) error {
	start := r.Pos()
	if err := readVec(r, item); err != nil {
		return err
	}
	*dst = r.Bytes(start, r.Pos())
	return nil
}

func parseTypeSection(r *bin.Reader, m *Module) error {
	return readVec(r, func() error {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("%w: type form 0x%02x (GC types)", ErrUnsupported, form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
		return nil
	})
}

func parseImportSection(r *bin.Reader, m *Module) error {
	return readVec(r, func() error {
		mod, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		imp := Import{Module: mod, Name: name, Desc: ImportDesc{Kind: kind}}
		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
		case KindTable:
			var tt TableType
			tt, err = readTableType(r)
			imp.Desc.Table = &tt
		case KindMemory:
			var mt MemoryType
			mt, err = readMemoryType(r)
			imp.Desc.Memory = &mt
		case KindGlobal:
			var gt GlobalType
			gt, err = readGlobalType(r)
			imp.Desc.Global = &gt
		case KindTag:
			return fmt.Errorf("%w: exception handling", ErrUnsupported)
		default:
			return fmt.Errorf("%w: import kind 0x%02x", ErrMalformed, kind)
		}
		if err != nil {
			return err
		}
		m.Imports = append(m.Imports, imp)
		return nil
	})
}

func parseExportSection(r *bin.Reader, m *Module) error {
	seen := make(map[string]struct{})
	return readVec(r, func() error {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind == KindTag {
			return fmt.Errorf("%w: exception handling", ErrUnsupported)
		}
		if kind > KindGlobal {
			return fmt.Errorf("%w: export kind 0x%02x", ErrMalformed, kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate export %q", ErrMalformed, name)
		}
		seen[name] = struct{}{}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Idx: idx})
		return nil
	})
}

func parseCodeSection(r *bin.Reader, m *Module) error {
	return readVec(r, func() error {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		br, err := r.Sub(int(size))
		if err != nil {
			return err
		}
		var body FuncBody
		err = readVec(br, func() error {
			count, err := br.ReadU32()
			if err != nil {
				return err
			}
			vt, err := readValType(br)
			if err != nil {
				return err
			}
			body.Locals = append(body.Locals, LocalEntry{Count: count, ValType: vt})
			return nil
		})
		if err != nil {
			return err
		}
		body.Body, _ = br.ReadBytes(br.Len())
		if len(body.Body) == 0 || body.Body[len(body.Body)-1] != OpEnd {
			return fmt.Errorf("%w: function body does not end with end opcode", ErrMalformed)
		}
		m.Code = append(m.Code, body)
		return nil
	})
}

func readValType(r *bin.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch vt := ValType(b); vt {
	case ValI32, ValI64, ValF32, ValF64, ValFuncRef, ValExtern:
		return vt, nil
	case ValV128:
		return 0, fmt.Errorf("%w: SIMD value type", ErrUnsupported)
	default:
		return 0, fmt.Errorf("%w: value type 0x%02x", ErrUnsupported, b)
	}
}

func readValTypes(r *bin.Reader) ([]ValType, error) {
	var out []ValType
	err := readVec(r, func() error {
		vt, err := readValType(r)
		out = append(out, vt)
		return err
	})
	return out, err
}

func readLimits(r *bin.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags > 1 {
		return Limits{}, fmt.Errorf("%w: limits flags 0x%02x (shared or 64-bit)", ErrUnsupported, flags)
	}
	min, err := r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Min: uint64(min)}
	if flags == 1 {
		max, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		m := uint64(max)
		l.Max = &m
	}
	return l, nil
}

func readMemoryType(r *bin.Reader) (MemoryType, error) {
	l, err := readLimits(r)
	return MemoryType{Limits: l}, err
}

func readTableType(r *bin.Reader) (TableType, error) {
	et, err := readValType(r)
	if err != nil {
		return TableType{}, err
	}
	if et != ValFuncRef && et != ValExtern {
		return TableType{}, fmt.Errorf("%w: table element type %s", ErrMalformed, et)
	}
	l, err := readLimits(r)
	return TableType{ElemType: et, Limits: l}, err
}

func readGlobalType(r *bin.Reader) (GlobalType, error) {
	vt, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("%w: global mutability 0x%02x", ErrMalformed, mut)
	}
	return GlobalType{ValType: vt, Mutable: mut == 1}, nil
}

// readConstExpr reads a constant expression up to and including its end.
func readConstExpr(r *bin.Reader) ([]byte, error) {
	start := r.Pos()
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch op {
		case OpEnd:
			return r.Bytes(start, r.Pos()), nil
		case OpI32Const:
			_, err = r.ReadS32()
		case OpI64Const:
			_, err = r.ReadS64()
		case OpF32Const:
			_, err = r.ReadBytes(4)
		case OpF64Const:
			_, err = r.ReadBytes(8)
		case OpGlobalGet, OpRefFunc:
			_, err = r.ReadU32()
		case OpRefNull:
			_, err = r.ReadS33()
		case OpI32Add, OpI32Sub, OpI32Mul, OpI64Add, OpI64Sub:
		default:
			return nil, fmt.Errorf("%w: opcode 0x%02x in constant expression", ErrMalformed, op)
		}
		if err != nil {
			return nil, err
		}
	}
}
