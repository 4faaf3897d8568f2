package types

import (
	"strings"
	"testing"
)

func TestChecksum(t *testing.T) {
	c := NewChecksum([]byte("wasm"))
	s := c.String()
	if len(s) != 64 {
		t.Fatalf("hex length = %d", len(s))
	}

	parsed, err := ParseChecksum(s)
	if err != nil {
		t.Fatal(err)
	}
	if parsed != c {
		t.Fatal("parse mismatch")
	}

	if _, err := ChecksumFromBytes([]byte{1, 2, 3}); err == nil || !strings.Contains(err.Error(), "Checksum not of length 32") {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := ParseChecksum("zz"); err == nil {
		t.Fatal("expected hex error")
	}

	b := c.Bytes()
	b[0] ^= 0xff
	if c[0] == b[0] {
		t.Fatal("Bytes must copy")
	}
}

func TestGasInfo(t *testing.T) {
	g := GasInfoWithCost(3).Add(GasInfoWithExternallyUsed(5))
	if g.Cost != 3 || g.ExternallyUsed != 5 {
		t.Fatalf("unexpected sum %+v", g)
	}
	if Free() != (GasInfo{}) {
		t.Fatal("Free should be zero")
	}

	r := GasReport{Limit: 10, Remaining: 4, UsedExternally: 1, UsedInternally: 5}
	if r.Total() != 6 {
		t.Fatalf("Total = %d", r.Total())
	}
}

func TestOrder(t *testing.T) {
	if !Ascending.Valid() || !Descending.Valid() {
		t.Fatal("known orders must be valid")
	}
	if Order(0).Valid() || Order(3).Valid() {
		t.Fatal("unknown orders must be invalid")
	}
	if Order(7).String() != "invalid" {
		t.Fatal("unexpected string")
	}
}
