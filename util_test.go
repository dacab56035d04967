package tagdb

import (
	"testing"
)

func TestInc(t *testing.T) {
	b := []byte{0x00, 0x00}
	if !inc(b) || b[0] != 0x00 || b[1] != 0x01 {
		t.Fatalf("inc = %x, wanted 0001", b)
	}
	b = []byte{0x00, 0xFF}
	if !inc(b) || b[0] != 0x01 || b[1] != 0x00 {
		t.Fatalf("inc = %x, wanted 0100", b)
	}
	if inc([]byte{0xFF, 0xFF}) {
		t.Fatalf("inc(FFFF) = true, wanted false")
	}
}
