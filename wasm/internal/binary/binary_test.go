package binary

import (
	"errors"
	"math"
	"testing"
)

func TestLEB128_RoundTrip(t *testing.T) {
	u32s := []uint32{0, 1, 63, 64, 127, 128, 255, 16384, math.MaxUint32}
	for _, v := range u32s {
		w := NewWriter()
		w.WriteU32(v)
		got, err := NewReader(w.Bytes()).ReadU32()
		if err != nil {
			t.Fatalf("ReadU32(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("ReadU32: got %d, want %d", got, v)
		}
	}

	s64s := []int64{0, 1, -1, 63, -64, 64, -65, math.MaxInt32, math.MinInt32, math.MaxInt64, math.MinInt64}
	for _, v := range s64s {
		w := NewWriter()
		w.WriteS64(v)
		got, err := NewReader(w.Bytes()).ReadS64()
		if err != nil {
			t.Fatalf("ReadS64(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("ReadS64: got %d, want %d", got, v)
		}
	}

	for _, v := range []int32{0, -1, 1000, -1000, math.MaxInt32, math.MinInt32} {
		w := NewWriter()
		w.WriteS32(v)
		got, err := NewReader(w.Bytes()).ReadS32()
		if err != nil || got != v {
			t.Fatalf("ReadS32(%d): got %d, %v", v, got, err)
		}
	}
}

func TestReader_Overflow(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		read func(r *Reader) error
	}{
		{"u32 six bytes", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, func(r *Reader) error { _, err := r.ReadU32(); return err }},
		{"u32 high bits", []byte{0xff, 0xff, 0xff, 0xff, 0x1f}, func(r *Reader) error { _, err := r.ReadU32(); return err }},
		{"s32 too large", []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, func(r *Reader) error { _, err := r.ReadS32(); return err }},
		{"s64 eleven bytes", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x00}, func(r *Reader) error { _, err := r.ReadS64(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read(NewReader(tt.data))
			if !errors.Is(err, ErrOverflow) {
				t.Fatalf("expected overflow, got %v", err)
			}
		})
	}
}

func TestReader_EOF(t *testing.T) {
	r := NewReader([]byte{0x80})
	if _, err := r.ReadU32(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	r = NewReader([]byte{0x02, 'a'})
	if _, err := r.ReadName(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("expected EOF for short name, got %v", err)
	}
	r = NewReader([]byte{0x01, 0xff})
	if _, err := r.ReadName(); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected UTF-8 error, got %v", err)
	}
}

func TestReader_Sub(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})
	sub, err := r.Sub(2)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Len() != 2 || r.Pos() != 2 {
		t.Fatalf("sub len %d, pos %d", sub.Len(), r.Pos())
	}
	b, _ := sub.ReadByte()
	if b != 1 {
		t.Fatalf("got %d", b)
	}
	if _, err := r.Sub(3); err == nil {
		t.Fatal("expected error for oversized sub reader")
	}
}

func TestWriter_Sized(t *testing.T) {
	w := NewWriter()
	w.WriteName("env")
	w.WriteSized([]byte{9, 9})
	want := []byte{3, 'e', 'n', 'v', 2, 9, 9}
	if string(w.Bytes()) != string(want) {
		t.Fatalf("got %v, want %v", w.Bytes(), want)
	}
}
