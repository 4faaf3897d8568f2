package buffer

import (
	"bytes"
	"testing"
)

func TestVector_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", []byte{}},
		{"one byte", []byte{0x00}},
		{"text", []byte("hello world")},
		{"binary", []byte{0xff, 0x00, 0x10, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Some(append([]byte(nil), tt.in...))
			if !v.IsSome() {
				t.Fatal("expected present vector")
			}
			got, ok := v.Consume()
			if !ok {
				t.Fatal("expected payload")
			}
			if got == nil {
				t.Fatal("present payload must be non-nil")
			}
			if !bytes.Equal(got, tt.in) {
				t.Fatalf("got %x, want %x", got, tt.in)
			}
		})
	}
}

func TestVector_NoneDistinctFromEmpty(t *testing.T) {
	none := None()
	empty := Some([]byte{})

	if !none.IsNone() || empty.IsNone() {
		t.Fatal("absent and empty must be distinguishable")
	}

	data, ok := none.Consume()
	if ok || data != nil {
		t.Fatalf("absent consume = (%v, %v)", data, ok)
	}

	data, ok = empty.Consume()
	if !ok || data == nil || len(data) != 0 {
		t.Fatalf("empty consume = (%v, %v)", data, ok)
	}
}

func TestVector_New(t *testing.T) {
	if !New(nil).IsNone() {
		t.Error("New(nil) should be absent")
	}
	v := New([]byte{})
	if !v.IsSome() {
		t.Error("New(empty) should be present")
	}
	v.Release()
}

func TestVector_DoubleConsumePanics(t *testing.T) {
	v := Some([]byte("x"))
	v.Consume()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on second consume")
		}
	}()
	v.Consume()
}

func TestVector_Outstanding(t *testing.T) {
	base := Outstanding()

	a := Some([]byte("a"))
	b := Some(nil)
	n := None()
	if got := Outstanding() - base; got != 2 {
		t.Fatalf("outstanding = %d, want 2", got)
	}

	a.Release()
	b.Release()
	n.Release()
	if got := Outstanding() - base; got != 0 {
		t.Fatalf("outstanding after release = %d, want 0", got)
	}
}

func TestFromUnmanaged(t *testing.T) {
	tests := []struct {
		name    string
		in      Unmanaged
		want    []byte
		present bool
		wantErr bool
	}{
		{
			name:    "nil flag wins over data",
			in:      Unmanaged{IsNil: true, Data: []byte("ignored"), Len: 7},
			present: false,
		},
		{
			name:    "nil flag wins over bogus length",
			in:      Unmanaged{IsNil: true, Len: 1 << 30},
			present: false,
		},
		{
			name:    "zero length is empty",
			in:      Unmanaged{Data: nil, Len: 0},
			want:    []byte{},
			present: true,
		},
		{
			name:    "prefix of backing",
			in:      Unmanaged{Data: []byte("abcdef"), Len: 3},
			want:    []byte("abc"),
			present: true,
		},
		{
			name:    "length beyond backing",
			in:      Unmanaged{Data: []byte("ab"), Len: 3},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromUnmanaged(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, ok := v.Consume()
			if ok != tt.present {
				t.Fatalf("present = %v, want %v", ok, tt.present)
			}
			if tt.present && !bytes.Equal(got, tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVector_ToUnmanaged(t *testing.T) {
	u := Some([]byte("abc")).ToUnmanaged()
	if u.IsNil || u.Len != 3 {
		t.Fatalf("unexpected raw form %+v", u)
	}
	back, err := FromUnmanaged(u)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := back.Consume()
	if string(got) != "abc" {
		t.Fatalf("got %q", got)
	}

	if !None().ToUnmanaged().IsNil {
		t.Fatal("absent vector must stay absent")
	}
}

func TestView(t *testing.T) {
	if !MakeView(nil).IsNil() {
		t.Error("nil slice should give absent view")
	}
	if _, ok := NilView().Read(); ok {
		t.Error("NilView should read as absent")
	}

	data, ok := MakeView([]byte{}).Read()
	if !ok || data == nil {
		t.Error("empty slice should give present non-nil view")
	}

	src := []byte("abc")
	data, _ = MakeView(src).Read()
	if &data[0] != &src[0] {
		t.Error("view must not copy")
	}
}

func TestOut(t *testing.T) {
	var o Out
	if o.IsSet() {
		t.Fatal("fresh slot should be unset")
	}
	if !o.Take().IsNone() {
		t.Fatal("unwritten slot should yield None")
	}

	o.Store(Some([]byte("err")))
	if !o.IsSet() {
		t.Fatal("slot should be set")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on second store")
		}
		o.Take().Release()
	}()
	o.Store(Some([]byte("again")))
}
