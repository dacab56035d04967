package tagdb

import (
	"bytes"
	"fmt"
)

// bucketBackend lays the namespace tables out over a sorted bucket storage.
//
// The key-value table is a root bucket "kv:<table>" with a "data" sub-bucket
// mapping key bytes to a msgpack kvRow. The document table is a root bucket
// "doc:<doc table>" whose "data" sub-bucket maps the 8-byte id to a msgpack
// docRow, and whose "tags" sub-bucket holds an empty entry per document under
// tag+0x00+id. Ids come from the data bucket's sequence. The two prefixes keep
// the key-value table "docfoo" apart from the document table of "foo".
type bucketBackend struct {
	st     storage
	engine Engine
}

func newBucketBackend(st storage, engine Engine) *bucketBackend {
	return &bucketBackend{st: st, engine: engine}
}

func (be *bucketBackend) Engine() Engine { return be.engine }

func (be *bucketBackend) EnsureSchema(names tableNames) error {
	stx, err := be.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer stx.Rollback()
	for _, b := range []struct {
		name string
		sub  bucketName
	}{
		{kvRoot(names.KV), dataBucket},
		{docRoot(names.Doc), dataBucket},
		{docRoot(names.Doc), tagsBucket},
	} {
		if _, err := stx.CreateBucket(b.name, b.sub.String()); err != nil {
			return fmt.Errorf("create %s/%s: %w", b.name, b.sub, err)
		}
	}
	return stx.Commit()
}

func (be *bucketBackend) Begin(writable bool) (backendTx, error) {
	stx, err := be.st.BeginTx(writable)
	if err != nil {
		return nil, err
	}
	return &bucketTx{stx: stx}, nil
}

func (be *bucketBackend) Close() error {
	return be.st.Close()
}

func kvRoot(tbl string) string  { return "kv:" + tbl }
func docRoot(tbl string) string { return "doc:" + tbl }

type bucketTx struct {
	stx storageTx
}

func (tx *bucketTx) Commit() error   { return tx.stx.Commit() }
func (tx *bucketTx) Rollback() error { return tx.stx.Rollback() }

func (tx *bucketTx) bucket(name string, sub bucketName) (storageBucket, error) {
	b := tx.stx.Bucket(name, sub.String())
	if b == nil {
		return nil, fmt.Errorf("bucket %s/%s: %w", name, sub, ErrBucketNotFound)
	}
	return b, nil
}

func (tx *bucketTx) resetBucket(name string, sub bucketName) error {
	if err := tx.stx.DeleteBucket(name, sub.String()); err != nil && err != ErrBucketNotFound {
		return err
	}
	_, err := tx.stx.CreateBucket(name, sub.String())
	return err
}

func (tx *bucketTx) KVGet(tbl, key string) (kvRow, bool, error) {
	b, err := tx.bucket(kvRoot(tbl), dataBucket)
	if err != nil {
		return kvRow{}, false, err
	}
	raw := b.Get([]byte(key))
	if raw == nil {
		return kvRow{}, false, nil
	}
	var row kvRow
	if err := decodeRow(raw, &row); err != nil {
		return kvRow{}, false, err
	}
	row.Key = key
	return row, true, nil
}

func (tx *bucketTx) KVKeys(tbl string) ([]string, error) {
	b, err := tx.bucket(kvRoot(tbl), dataBucket)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, b.KeyCount())
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, string(k))
	}
	return keys, nil
}

func (tx *bucketTx) KVScan(tbl string, f func(row kvRow) bool) error {
	b, err := tx.bucket(kvRoot(tbl), dataBucket)
	if err != nil {
		return err
	}
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var row kvRow
		if err := decodeRow(v, &row); err != nil {
			return err
		}
		row.Key = string(k)
		if !f(row) {
			break
		}
	}
	return nil
}

func (tx *bucketTx) KVInsert(tbl string, rows []kvRow) error {
	b, err := tx.bucket(kvRoot(tbl), dataBucket)
	if err != nil {
		return err
	}
	for i := range rows {
		row := &rows[i]
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		row.KeyID = int64(seq)
		if err := b.Put([]byte(row.Key), encodeRow(row)); err != nil {
			return fmt.Errorf("put %q: %w", row.Key, err)
		}
	}
	return nil
}

func (tx *bucketTx) KVUpdate(tbl string, rows []kvRow) error {
	b, err := tx.bucket(kvRoot(tbl), dataBucket)
	if err != nil {
		return err
	}
	for _, upd := range rows {
		k := []byte(upd.Key)
		raw := b.Get(k)
		if raw == nil {
			continue
		}
		var row kvRow
		if err := decodeRow(raw, &row); err != nil {
			return err
		}
		row.Value, row.MTime = upd.Value, upd.MTime
		if err := b.Put(k, encodeRow(&row)); err != nil {
			return fmt.Errorf("put %q: %w", upd.Key, err)
		}
	}
	return nil
}

func (tx *bucketTx) KVDelete(tbl, key string) (bool, error) {
	b, err := tx.bucket(kvRoot(tbl), dataBucket)
	if err != nil {
		return false, err
	}
	k := []byte(key)
	if b.Get(k) == nil {
		return false, nil
	}
	return true, b.Delete(k)
}

func (tx *bucketTx) KVClear(tbl string) error {
	return tx.resetBucket(kvRoot(tbl), dataBucket)
}

func (tx *bucketTx) docBuckets(tbl string) (data, tags storageBucket, err error) {
	data, err = tx.bucket(docRoot(tbl), dataBucket)
	if err != nil {
		return nil, nil, err
	}
	tags, err = tx.bucket(docRoot(tbl), tagsBucket)
	if err != nil {
		return nil, nil, err
	}
	return data, tags, nil
}

func (tx *bucketTx) DocInsert(tbl string, rows []docRow) ([]int64, error) {
	data, tags, err := tx.docBuckets(tbl)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		seq, err := data.NextSequence()
		if err != nil {
			return nil, err
		}
		row.ID = int64(seq)
		if err := putDoc(data, tags, row, false, ""); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// putDoc writes row and keeps its tag index entry in sync. For a replaced
// row, oldTag is the tag it was indexed under.
func putDoc(data, tags storageBucket, row *docRow, replaced bool, oldTag string) error {
	if err := data.Put(idKey(row.ID), encodeRow(row)); err != nil {
		return fmt.Errorf("put doc %d: %w", row.ID, err)
	}
	if replaced {
		if oldTag == row.Tag {
			return nil
		}
		if err := tags.Delete(tagKey(oldTag, row.ID)); err != nil {
			return err
		}
	}
	return tags.Put(tagKey(row.Tag, row.ID), []byte{})
}

func (tx *bucketTx) DocGet(tbl string, id int64) (docRow, bool, error) {
	data, err := tx.bucket(docRoot(tbl), dataBucket)
	if err != nil {
		return docRow{}, false, err
	}
	return getDoc(data, id)
}

func getDoc(data storageBucket, id int64) (docRow, bool, error) {
	if id <= 0 {
		return docRow{}, false, nil
	}
	raw := data.Get(idKey(id))
	if raw == nil {
		return docRow{}, false, nil
	}
	var row docRow
	if err := decodeRow(raw, &row); err != nil {
		return docRow{}, false, err
	}
	row.ID = id
	return row, true, nil
}

func (tx *bucketTx) DocScan(tbl string, q docQuery, f func(row docRow) bool) error {
	data, tags, err := tx.docBuckets(tbl)
	if err != nil {
		return err
	}
	w := newWindow(q.Offset, q.Limit)

	if q.ByTag {
		prefix := tagPrefix(q.Tag)
		rang := RawPrefix(prefix)
		cur := rang.newCursor(tags.Cursor())
		for cur.Next() {
			id, ok := tagKeyID(cur.Key(), prefix)
			if !ok {
				continue
			}
			use, more := w.take()
			if use {
				row, found, err := getDoc(data, id)
				if err != nil {
					return err
				}
				if found && !f(row) {
					return nil
				}
			}
			if !more {
				return nil
			}
		}
		return nil
	}

	var rang RawRange
	switch {
	case q.Descending && q.FromID <= 0:
		return nil
	case q.Descending:
		rang = RawOI(idKey(q.FromID)).Reversed()
	case q.FromID <= 1:
		rang = RawOO()
	default:
		rang = RawIO(idKey(q.FromID))
	}
	cur := rang.newCursor(data.Cursor())
	for cur.Next() {
		use, more := w.take()
		if use {
			id, err := decodeIDKey(cur.Key())
			if err != nil {
				return err
			}
			var row docRow
			if err := decodeRow(cur.Value(), &row); err != nil {
				return err
			}
			row.ID = id
			if !f(row) {
				return nil
			}
		}
		if !more {
			return nil
		}
	}
	return nil
}

// selectIDs resolves sel to document ids before any mutation, since bucket
// cursors must not be used across writes.
func selectIDs(data, tags storageBucket, sel docSel) ([]int64, error) {
	if !sel.ByTag {
		_, found, err := getDoc(data, sel.ID)
		if err != nil || !found {
			return nil, err
		}
		return []int64{sel.ID}, nil
	}
	prefix := tagPrefix(sel.Tag)
	var ids []int64
	c := tags.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		if id, ok := tagKeyID(k, prefix); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (tx *bucketTx) DocUpdate(tbl string, sel docSel, tag, value string, mtime int64) (int, error) {
	data, tags, err := tx.docBuckets(tbl)
	if err != nil {
		return 0, err
	}
	ids, err := selectIDs(data, tags, sel)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		row, found, err := getDoc(data, id)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, fmt.Errorf("tag index points to missing doc %d", id)
		}
		oldTag := row.Tag
		row.Tag, row.Value, row.MTime = tag, value, mtime
		if err := putDoc(data, tags, &row, true, oldTag); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (tx *bucketTx) DocDelete(tbl string, sel docSel) (int, error) {
	data, tags, err := tx.docBuckets(tbl)
	if err != nil {
		return 0, err
	}
	ids, err := selectIDs(data, tags, sel)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		row, found, err := getDoc(data, id)
		if err != nil {
			return 0, err
		}
		if !found {
			continue
		}
		if err := data.Delete(idKey(id)); err != nil {
			return 0, err
		}
		if err := tags.Delete(tagKey(row.Tag, id)); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func (tx *bucketTx) DocClear(tbl string) error {
	if err := tx.resetBucket(docRoot(tbl), dataBucket); err != nil {
		return err
	}
	return tx.resetBucket(docRoot(tbl), tagsBucket)
}

func (tx *bucketTx) DocCount(tbl string) (int, error) {
	data, err := tx.bucket(docRoot(tbl), dataBucket)
	if err != nil {
		return 0, err
	}
	return data.KeyCount(), nil
}

func (tx *bucketTx) Stats(names tableNames) (NamespaceStats, error) {
	kv, err := tx.bucket(kvRoot(names.KV), dataBucket)
	if err != nil {
		return NamespaceStats{}, err
	}
	data, tags, err := tx.docBuckets(names.Doc)
	if err != nil {
		return NamespaceStats{}, err
	}
	ks, ds, ts := kv.Stats(), data.Stats(), tags.Stats()
	return NamespaceStats{
		Keys:         ks.KeyN,
		Docs:         ds.KeyN,
		TagIndexRows: ts.KeyN,
		KVSize:       ks.LeafInuse,
		KVAlloc:      ks.TotalAlloc(),
		DocSize:      ds.LeafInuse,
		DocAlloc:     ds.TotalAlloc(),
		IndexSize:    ts.LeafInuse,
		IndexAlloc:   ts.TotalAlloc(),
		FileSize:     tx.stx.Size(),
	}, nil
}
