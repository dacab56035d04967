package tagdb

// backend is the durable engine a namespace lives in: two logical tables per
// namespace, primary key lookup, a tag index, ordered scans with limit/offset,
// and transactional commit. bucketBackend (Bolt or in-memory) and
// sqliteBackend implement it.
type backend interface {
	Engine() Engine

	// EnsureSchema idempotently creates the tables of a namespace.
	EnsureSchema(names tableNames) error

	// Begin starts a transaction. Only one writable transaction runs at a time.
	Begin(writable bool) (backendTx, error)

	Close() error
}

type backendTx interface {
	KVGet(tbl, key string) (kvRow, bool, error)
	KVKeys(tbl string) ([]string, error)
	KVScan(tbl string, f func(row kvRow) bool) error
	// KVInsert adds new rows, assigning KeyID.
	KVInsert(tbl string, rows []kvRow) error
	// KVUpdate replaces Value and MTime of existing rows, matched by Key.
	KVUpdate(tbl string, rows []kvRow) error
	KVDelete(tbl, key string) (bool, error)
	KVClear(tbl string) error

	// DocInsert adds new documents and returns their assigned ids in order.
	DocInsert(tbl string, rows []docRow) ([]int64, error)
	DocGet(tbl string, id int64) (docRow, bool, error)
	DocScan(tbl string, q docQuery, f func(row docRow) bool) error
	DocUpdate(tbl string, sel docSel, tag, value string, mtime int64) (int, error)
	DocDelete(tbl string, sel docSel) (int, error)
	// DocClear removes every document and resets the id counter.
	DocClear(tbl string) error
	DocCount(tbl string) (int, error)

	Stats(names tableNames) (NamespaceStats, error)

	Commit() error
	Rollback() error
}

// kvRow is one key-value table row. Value holds JSON text.
type kvRow struct {
	KeyID int64  `msgpack:"i"`
	Key   string `msgpack:"-"`
	Value string `msgpack:"v"`
	CTime int64  `msgpack:"c"`
	MTime int64  `msgpack:"m"`
}

// docRow is one document table row. Value holds JSON text.
type docRow struct {
	ID    int64  `msgpack:"-"`
	Tag   string `msgpack:"t"`
	Value string `msgpack:"v"`
	CTime int64  `msgpack:"c"`
	MTime int64  `msgpack:"m"`
}

// docQuery selects documents in id order.
//
// Without ByTag, an ascending scan covers ids >= FromID and a descending one
// ids <= FromID. With ByTag, rows whose tag equals Tag are returned in
// ascending id order and FromID is ignored. Offset rows are skipped first,
// then at most Limit rows are returned (0 means no limit).
type docQuery struct {
	FromID     int64
	Descending bool
	ByTag      bool
	Tag        string
	Limit      int
	Offset     int
}

// docSel picks the documents to update or delete: one id, or all with a tag.
type docSel struct {
	ID    int64
	ByTag bool
	Tag   string
}

func docSelID(id int64) docSel     { return docSel{ID: id} }
func docSelTag(tag string) docSel { return docSel{ByTag: true, Tag: tag} }

// window applies offset and limit to a stream of rows.
type window struct {
	skip, left int
	limited    bool
}

func newWindow(offset, limit int) window {
	if offset < 0 {
		offset = 0
	}
	return window{skip: offset, left: limit, limited: limit > 0}
}

// take reports whether the current row is inside the window, and whether the
// scan should continue afterwards.
func (w *window) take() (use, more bool) {
	if w.skip > 0 {
		w.skip--
		return false, true
	}
	if w.limited {
		w.left--
		return true, w.left > 0
	}
	return true, true
}
