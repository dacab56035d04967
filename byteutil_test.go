package tagdb

import (
	"bytes"
	"testing"
)

func TestBytesBuilder_Basics(t *testing.T) {
	var bb bytesBuilder
	off := bb.Grow(3)
	copy(bb.Buf[off:], []byte{1, 2, 3})
	_, _ = bb.Write([]byte{9, 8})
	_ = bb.WriteByte(7)
	if !bytes.Equal(bb.Buf, []byte{1, 2, 3, 9, 8, 7}) {
		t.Fatalf("bb.Buf = %x, wanted 010203090807", bb.Buf)
	}
	if cap(bb.Buf) < 16 {
		t.Fatalf("cap(bb.Buf) = %d, wanted >= 16", cap(bb.Buf))
	}
}

func TestIDKey_OrderMatchesNumericOrder(t *testing.T) {
	ids := []int64{1, 2, 255, 256, 65536, 1 << 40}
	for i := 1; i < len(ids); i++ {
		a, b := idKey(ids[i-1]), idKey(ids[i])
		if bytes.Compare(a, b) >= 0 {
			t.Fatalf("idKey(%d) = %x >= idKey(%d) = %x", ids[i-1], a, ids[i], b)
		}
	}
	for _, id := range ids {
		got, err := decodeIDKey(idKey(id))
		if err != nil || got != id {
			t.Fatalf("decodeIDKey(idKey(%d)) = (%d, %v), wanted (%d, nil)", id, got, err, id)
		}
	}
	if _, err := decodeIDKey([]byte{1, 2}); err == nil {
		t.Fatalf("decodeIDKey(short) err = nil, wanted error")
	}
}

func TestTagKey_RejectsLongerTags(t *testing.T) {
	prefix := tagPrefix("ab")
	if id, ok := tagKeyID(tagKey("ab", 42), prefix); !ok || id != 42 {
		t.Fatalf("tagKeyID = (%d, %v), wanted (42, true)", id, ok)
	}
	// "ab\x00x" shares the "ab\x00" prefix but is a different tag
	if _, ok := tagKeyID(tagKey("ab\x00x", 42), prefix); ok {
		t.Fatalf("tagKeyID matched a longer tag")
	}
}

func TestRowEnvelope_RoundTrip(t *testing.T) {
	in := docRow{ID: 7, Tag: "x", Value: `{"a":1}`, CTime: 10, MTime: 11}
	var out docRow
	if err := decodeRow(encodeRow(&in), &out); err != nil {
		t.Fatal(err)
	}
	in.ID = 0
	if out != in {
		t.Fatalf("decoded %+v, wanted %+v", out, in)
	}
	if err := decodeRow([]byte{0xc1}, &out); err == nil {
		t.Fatalf("decodeRow(garbage) err = nil, wanted error")
	}
}
