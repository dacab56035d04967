package tagdb

import (
	"errors"
	"testing"

	"github.com/andreyvit/tagdb/jsonval"
)

func TestBucketBackend_TagPrefixDoesNotLeak(t *testing.T) {
	be := newBucketBackend(newMemStorage(), EngineBolt)
	names := must(deriveTableNames("items"))
	ok(t, be.EnsureSchema(names))

	btx := must(be.Begin(true))
	ids := must(btx.DocInsert(names.Doc, []docRow{
		{Tag: "a", Value: "1"},
		{Tag: "a\x00b", Value: "2"},
		{Tag: "ab", Value: "3"},
		{Tag: "a", Value: "4"},
	}))
	deepEqual(t, ids, []int64{1, 2, 3, 4})
	ok(t, btx.Commit())

	rtx := must(be.Begin(false))
	defer rtx.Rollback()
	var got []int64
	ok(t, rtx.DocScan(names.Doc, docQuery{ByTag: true, Tag: "a"}, func(row docRow) bool {
		got = append(got, row.ID)
		return true
	}))
	deepEqual(t, got, []int64{1, 4})

	got = nil
	ok(t, rtx.DocScan(names.Doc, docQuery{ByTag: true, Tag: "a", Offset: 1, Limit: 5}, func(row docRow) bool {
		got = append(got, row.ID)
		return true
	}))
	deepEqual(t, got, []int64{4})
}

func TestBucketBackend_UpdateMovesTagIndexEntry(t *testing.T) {
	be := newBucketBackend(newMemStorage(), EngineBolt)
	names := must(deriveTableNames("items"))
	ok(t, be.EnsureSchema(names))

	btx := must(be.Begin(true))
	must(btx.DocInsert(names.Doc, []docRow{{Tag: "old", Value: "1", CTime: 7}}))
	deepEqual(t, must(btx.DocUpdate(names.Doc, docSelID(1), "new", "2", 9)), 1)
	deepEqual(t, must(btx.DocDelete(names.Doc, docSelTag("old"))), 0)

	row, found, err := btx.DocGet(names.Doc, 1)
	ok(t, err)
	deepEqual(t, found, true)
	deepEqual(t, row, docRow{ID: 1, Tag: "new", Value: "2", CTime: 7, MTime: 9})

	st := must(btx.Stats(names))
	deepEqual(t, st.TagIndexRows, 1)

	deepEqual(t, must(btx.DocDelete(names.Doc, docSelTag("new"))), 1)
	st = must(btx.Stats(names))
	deepEqual(t, st.Docs, 0)
	deepEqual(t, st.TagIndexRows, 0)
	ok(t, btx.Commit())
}

func TestBucketBackend_CorruptRowIsDataError(t *testing.T) {
	s := setup(t, engineCases[0])
	must(s.Insert(named("A")))

	bb := s.ns.file.be.(*bucketBackend)
	stx := must(bb.st.BeginTx(true))
	data := stx.Bucket(docRoot(s.ns.names.Doc), dataBucket.String())
	ensure(data.Put(idKey(1), []byte{0xc1}))
	ensure(stx.Commit())

	_, err := s.GetByID(1, jsonval.NullValue())
	isKind(t, err, ErrStorageRead)
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("** got %v, wanted a DataError", err)
	}

	_, err = s.GetAll(ScanOptions{})
	isKind(t, err, ErrStorageRead)
}

func TestBucketBackend_ClearResetsSequence(t *testing.T) {
	be := newBucketBackend(newMemStorage(), EngineBolt)
	names := must(deriveTableNames("items"))
	ok(t, be.EnsureSchema(names))

	btx := must(be.Begin(true))
	must(btx.DocInsert(names.Doc, []docRow{{Value: "1"}, {Value: "2"}}))
	ok(t, btx.DocClear(names.Doc))
	deepEqual(t, must(btx.DocInsert(names.Doc, []docRow{{Value: "3"}})), []int64{1})
	ok(t, btx.Commit())
}

func TestSQLiteBackend_QueryWindow(t *testing.T) {
	be := must(openSQLiteBackend(InMemory, &Options{Timeout: defaultTimeout}))
	defer be.Close()
	names := must(deriveTableNames("items"))
	ok(t, be.EnsureSchema(names))
	ok(t, be.EnsureSchema(names))

	btx := must(be.Begin(true))
	defer btx.Rollback()
	must(btx.DocInsert(names.Doc, []docRow{{Tag: "x", Value: "1"}, {Tag: "y", Value: "2"}, {Tag: "x", Value: "3"}}))

	scan := func(q docQuery) []string {
		var got []string
		ok(t, btx.DocScan(names.Doc, q, func(row docRow) bool {
			got = append(got, row.Value)
			return true
		}))
		return got
	}
	deepEqual(t, scan(docQuery{FromID: 2}), []string{"2", "3"})
	deepEqual(t, scan(docQuery{FromID: 3, Descending: true, Offset: 1}), []string{"2", "1"})
	deepEqual(t, scan(docQuery{ByTag: true, Tag: "x", Limit: 1}), []string{"1"})
	isempty(t, scan(docQuery{Descending: true}))

	ok(t, btx.DocClear(names.Doc))
	deepEqual(t, must(btx.DocInsert(names.Doc, []docRow{{Value: "4"}})), []int64{1})
}

func TestWindow(t *testing.T) {
	collect := func(offset, limit, n int) []int {
		w := newWindow(offset, limit)
		var got []int
		for i := range n {
			use, more := w.take()
			if use {
				got = append(got, i)
			}
			if !more {
				break
			}
		}
		return got
	}
	deepEqual(t, collect(0, 0, 3), []int{0, 1, 2})
	deepEqual(t, collect(1, 0, 3), []int{1, 2})
	deepEqual(t, collect(1, 1, 3), []int{1})
	deepEqual(t, collect(-5, 2, 3), []int{0, 1})
	isempty(t, collect(5, 1, 3))
}
