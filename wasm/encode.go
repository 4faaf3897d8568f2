package wasm

import (
	bin "github.com/wippyai/wasmvm/wasm/internal/binary"
)

// Encode writes the module in canonical section order. Custom sections are
// written last.
func (m *Module) Encode() []byte {
	w := bin.NewWriter()
	w.WriteBytes([]byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00})

	if len(m.Types) > 0 {
		s := bin.NewWriter()
		s.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			s.Byte(FuncTypeByte)
			writeValTypes(s, ft.Params)
			writeValTypes(s, ft.Results)
		}
		writeSection(w, SectionType, s.Bytes())
	}

	if len(m.Imports) > 0 {
		s := bin.NewWriter()
		s.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			s.WriteName(imp.Module)
			s.WriteName(imp.Name)
			s.Byte(imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				s.WriteU32(imp.Desc.TypeIdx)
			case KindTable:
				s.Byte(byte(imp.Desc.Table.ElemType))
				writeLimits(s, imp.Desc.Table.Limits)
			case KindMemory:
				writeLimits(s, imp.Desc.Memory.Limits)
			case KindGlobal:
				writeGlobalType(s, *imp.Desc.Global)
			}
		}
		writeSection(w, SectionImport, s.Bytes())
	}

	if len(m.Funcs) > 0 {
		s := bin.NewWriter()
		s.WriteU32(uint32(len(m.Funcs)))
		for _, idx := range m.Funcs {
			s.WriteU32(idx)
		}
		writeSection(w, SectionFunction, s.Bytes())
	}

	if m.Tables != nil {
		writeSection(w, SectionTable, m.Tables)
	}

	if len(m.Memories) > 0 {
		s := bin.NewWriter()
		s.WriteU32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			writeLimits(s, mem.Limits)
		}
		writeSection(w, SectionMemory, s.Bytes())
	}

	if len(m.Globals) > 0 {
		s := bin.NewWriter()
		s.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(s, g.Type)
			s.WriteBytes(g.Init)
		}
		writeSection(w, SectionGlobal, s.Bytes())
	}

	if len(m.Exports) > 0 {
		s := bin.NewWriter()
		s.WriteU32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			s.WriteName(e.Name)
			s.Byte(e.Kind)
			s.WriteU32(e.Idx)
		}
		writeSection(w, SectionExport, s.Bytes())
	}

	if m.Start != nil {
		s := bin.NewWriter()
		s.WriteU32(*m.Start)
		writeSection(w, SectionStart, s.Bytes())
	}

	if m.Elements != nil {
		writeSection(w, SectionElement, m.Elements)
	}
	if m.DataCount != nil {
		writeSection(w, SectionDataCount, m.DataCount)
	}

	if len(m.Code) > 0 {
		s := bin.NewWriter()
		s.WriteU32(uint32(len(m.Code)))
		for _, body := range m.Code {
			fb := bin.NewWriter()
			fb.WriteU32(uint32(len(body.Locals)))
			for _, l := range body.Locals {
				fb.WriteU32(l.Count)
				fb.Byte(byte(l.ValType))
			}
			fb.WriteBytes(body.Body)
			s.WriteSized(fb.Bytes())
		}
		writeSection(w, SectionCode, s.Bytes())
	}

	if m.Data != nil {
		writeSection(w, SectionData, m.Data)
	}

	for _, cs := range m.CustomSections {
		s := bin.NewWriter()
		s.WriteName(cs.Name)
		s.WriteBytes(cs.Data)
		writeSection(w, SectionCustom, s.Bytes())
	}

	return w.Bytes()
}

// DataSegment is an active data segment placed in memory 0.
type DataSegment struct {
	Offset uint32
	Init   []byte
}

// EncodeData builds a data section payload of active segments for memory 0.
func EncodeData(segments []DataSegment) []byte {
	s := bin.NewWriter()
	s.WriteU32(uint32(len(segments)))
	for _, seg := range segments {
		s.Byte(0x00)
		s.Byte(OpI32Const)
		s.WriteS32(int32(seg.Offset))
		s.Byte(OpEnd)
		s.WriteSized(seg.Init)
	}
	return s.Bytes()
}

func writeSection(w *bin.Writer, id byte, data []byte) {
	w.Byte(id)
	w.WriteSized(data)
}

func writeValTypes(w *bin.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *bin.Writer, l Limits) {
	if l.Max != nil {
		w.Byte(0x01)
		w.WriteU32(uint32(l.Min))
		w.WriteU32(uint32(*l.Max))
		return
	}
	w.Byte(0x00)
	w.WriteU32(uint32(l.Min))
}

func writeGlobalType(w *bin.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(0x01)
	} else {
		w.Byte(0x00)
	}
}
