package tagdb

import (
	"testing"
)

func TestRawRangeCursor_BoundsPrefixAndReverse(t *testing.T) {
	s := newMemStorage()

	wtx := must(s.BeginTx(true))
	buck := must(wtx.CreateBucket("b", ""))
	mustPut(t, buck, x("10 01"), []byte("a"))
	mustPut(t, buck, x("10 02"), []byte("b"))
	mustPut(t, buck, x("10 03"), []byte("c"))
	mustPut(t, buck, x("11 01"), []byte("x"))
	ensure(wtx.Commit())

	rtx := must(s.BeginTx(false))
	defer rtx.Rollback()
	rbuck := rtx.Bucket("b", "")

	scan := func(rang RawRange) []string {
		cur := rang.newCursor(rbuck.Cursor())
		var got []string
		for cur.Next() {
			got = append(got, string(cur.Value()))
		}
		return got
	}

	deepEqual(t, scan(RawPrefix(x("10"))), []string{"a", "b", "c"})
	deepEqual(t, scan(RawPrefix(x("10")).Reversed()), []string{"c", "b", "a"})
	deepEqual(t, scan(RawRange{Lower: x("10 01")}), []string{"b", "c", "x"})
	deepEqual(t, scan(RawRange{Upper: x("10 03"), Reverse: true}), []string{"b", "a"})
	deepEqual(t, scan(RawIO(x("10 02"))), []string{"b", "c", "x"})
	deepEqual(t, scan(RawOI(x("10 02")).Reversed()), []string{"b", "a"})
	deepEqual(t, scan(RawRange{Lower: x("10 02"), Upper: x("10 03"), LowerInc: true, UpperInc: true}), []string{"b", "c"})
	deepEqual(t, scan(RawOO().Reversed()), []string{"x", "c", "b", "a"})
	deepEqual(t, scan(RawRange{Prefix: x("10"), Lower: x("10 02"), LowerInc: true}), []string{"b", "c"})
}

func TestRawRangeCursor_ReverseUpperBeyondLastKey(t *testing.T) {
	s := newMemStorage()
	wtx := must(s.BeginTx(true))
	buck := must(wtx.CreateBucket("b", "data"))
	for id := int64(1); id <= 3; id++ {
		mustPut(t, buck, idKey(id), []byte{byte('0' + id)})
	}
	ensure(wtx.Commit())

	rtx := must(s.BeginTx(false))
	defer rtx.Rollback()
	rang := RawOI(idKey(1 << 40)).Reversed()
	cur := rang.newCursor(rtx.Bucket("b", "data").Cursor())
	var got []string
	for cur.Next() {
		got = append(got, string(cur.Value()))
	}
	deepEqual(t, got, []string{"3", "2", "1"})
}

func TestRawRangeCursor_PrefixMismatchPanics(t *testing.T) {
	s := newMemStorage()
	wtx := must(s.BeginTx(true))
	buck := must(wtx.CreateBucket("b", ""))
	mustPut(t, buck, x("10"), []byte("a"))
	ensure(wtx.Commit())

	rtx := must(s.BeginTx(false))
	defer rtx.Rollback()
	rbuck := rtx.Bucket("b", "")

	assertPanics(t, func() {
		cur := (&RawRange{Prefix: x("10"), Lower: x("11"), LowerInc: true}).newCursor(rbuck.Cursor())
		_ = cur.Next()
	})
	assertPanics(t, func() {
		cur := (&RawRange{Prefix: x("10"), Upper: x("11"), UpperInc: true, Reverse: true}).newCursor(rbuck.Cursor())
		_ = cur.Next()
	})
}

func mustPut(t *testing.T, buck storageBucket, k, v []byte) {
	t.Helper()
	ensure(buck.Put(k, v))
}

func TestMemStorage_Isolation(t *testing.T) {
	s := newMemStorage()
	wtx := must(s.BeginTx(true))
	mustPut(t, must(wtx.CreateBucket("b", "data")), []byte("k"), []byte("v1"))
	ensure(wtx.Commit())

	rtx := must(s.BeginTx(false))
	defer rtx.Rollback()

	wtx = must(s.BeginTx(true))
	buck := wtx.Bucket("b", "data")
	mustPut(t, buck, []byte("k"), []byte("v2"))
	mustPut(t, buck, []byte("k2"), []byte("x"))
	deepEqual(t, string(buck.Get([]byte("k"))), "v2")

	// readers keep their snapshot
	deepEqual(t, string(rtx.Bucket("b", "data").Get([]byte("k"))), "v1")
	deepEqual(t, rtx.Bucket("b", "data").KeyCount(), 1)
	ensure(wtx.Commit())
	deepEqual(t, string(rtx.Bucket("b", "data").Get([]byte("k"))), "v1")

	rtx2 := must(s.BeginTx(false))
	defer rtx2.Rollback()
	deepEqual(t, string(rtx2.Bucket("b", "data").Get([]byte("k"))), "v2")
	deepEqual(t, rtx2.Size(), int64(len("k")+len("v2")+len("k2")+len("x")))
}

func TestMemStorage_RollbackDiscards(t *testing.T) {
	s := newMemStorage()
	wtx := must(s.BeginTx(true))
	b := must(wtx.CreateBucket("b", "data"))
	mustPut(t, b, []byte("k"), []byte("v"))
	deepEqual(t, must(b.NextSequence()), uint64(1))
	ensure(wtx.Commit())

	wtx = must(s.BeginTx(true))
	b = wtx.Bucket("b", "data")
	ensure(b.Delete([]byte("k")))
	deepEqual(t, must(b.NextSequence()), uint64(2))
	ensure(wtx.DeleteBucket("b", "data"))
	ensure(wtx.Rollback())

	wtx = must(s.BeginTx(true))
	defer wtx.Rollback()
	b = wtx.Bucket("b", "data")
	deepEqual(t, string(b.Get([]byte("k"))), "v")
	deepEqual(t, must(b.NextSequence()), uint64(2))
}

func TestMemStorage_ReadTxRejectsWrites(t *testing.T) {
	s := newMemStorage()
	wtx := must(s.BeginTx(true))
	must(wtx.CreateBucket("b", "data"))
	ensure(wtx.Commit())

	rtx := must(s.BeginTx(false))
	defer rtx.Rollback()
	if err := rtx.Bucket("b", "data").Put([]byte("k"), []byte("v")); err == nil {
		t.Fatalf("Put in a read tx succeeded")
	}
	if _, err := rtx.CreateBucket("c", ""); err == nil {
		t.Fatalf("CreateBucket in a read tx succeeded")
	}
}
