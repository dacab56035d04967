package tagdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// sqliteBackend keeps each namespace in two SQL tables:
//
//	<name>(key_id INTEGER PRIMARY KEY, key TEXT UNIQUE, value TEXT, ctime, mtime)
//	doc<name>(id INTEGER PRIMARY KEY AUTOINCREMENT, tag TEXT, value TEXT, ctime, mtime)
//
// plus an index on doc<name>(tag). Values are JSON text.
type sqliteBackend struct {
	db *sql.DB
}

func openSQLiteBackend(path string, opt *Options) (*sqliteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection serializes transactions and keeps a :memory: database alive.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", opt.Timeout.Milliseconds()),
	}
	if path != InMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
		if opt.IsTesting {
			pragmas = append(pragmas, "PRAGMA synchronous=OFF")
		}
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return &sqliteBackend{db: db}, nil
}

func (be *sqliteBackend) Engine() Engine { return EngineSQLite }

func (be *sqliteBackend) EnsureSchema(names tableNames) error {
	kv, doc := quoteIdent(names.KV), quoteIdent(names.Doc)
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		key_id INTEGER PRIMARY KEY,
		key    TEXT UNIQUE,
		value  TEXT DEFAULT '',
		ctime  INTEGER DEFAULT 0,
		mtime  INTEGER DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS %[2]s (
		id    INTEGER PRIMARY KEY AUTOINCREMENT,
		tag   TEXT DEFAULT '',
		value TEXT DEFAULT '',
		ctime INTEGER DEFAULT 0,
		mtime INTEGER DEFAULT 0
	);`, kv, doc)
	if _, err := be.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema %v: %w", names, err)
	}

	// A key-value table named doc<x> is also the document table of namespace
	// x, so an existing table may have the other layout.
	if err := be.checkColumn(names.KV, "key"); err != nil {
		return err
	}
	if err := be.checkColumn(names.Doc, "tag"); err != nil {
		return err
	}

	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(tag)", quoteIdent(names.Doc+"_tag"), doc)
	if _, err := be.db.Exec(index); err != nil {
		return fmt.Errorf("create index %v: %w", names, err)
	}
	return nil
}

func (be *sqliteBackend) checkColumn(tbl, column string) error {
	var n int
	err := be.db.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", tbl, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", tbl, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: table %s is used by another namespace", ErrInvalidArgument, tbl)
	}
	return nil
}

func (be *sqliteBackend) Begin(writable bool) (backendTx, error) {
	stx, err := be.db.Begin()
	if err != nil {
		return nil, err
	}
	return &sqliteTx{stx: stx}, nil
}

func (be *sqliteBackend) Close() error {
	return be.db.Close()
}

// quoteIdent quotes a table name that has already passed tableNameRe.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

// sqlLimit maps "0 means no limit" onto SQLite, where a negative LIMIT is unbounded.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

type sqliteTx struct {
	stx *sql.Tx
}

func (tx *sqliteTx) Commit() error { return tx.stx.Commit() }

func (tx *sqliteTx) Rollback() error {
	err := tx.stx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

func (tx *sqliteTx) KVGet(tbl, key string) (kvRow, bool, error) {
	row := kvRow{Key: key}
	err := tx.stx.QueryRow(
		"SELECT key_id, value, ctime, mtime FROM "+quoteIdent(tbl)+" WHERE key = ?", key,
	).Scan(&row.KeyID, &row.Value, &row.CTime, &row.MTime)
	if err == sql.ErrNoRows {
		return kvRow{}, false, nil
	}
	if err != nil {
		return kvRow{}, false, fmt.Errorf("get %q: %w", key, err)
	}
	return row, true, nil
}

func (tx *sqliteTx) KVKeys(tbl string) ([]string, error) {
	rows, err := tx.stx.Query("SELECT key FROM " + quoteIdent(tbl) + " ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (tx *sqliteTx) KVScan(tbl string, f func(row kvRow) bool) error {
	rows, err := tx.stx.Query("SELECT key_id, key, value, ctime, mtime FROM " + quoteIdent(tbl) + " ORDER BY key")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var row kvRow
		if err := rows.Scan(&row.KeyID, &row.Key, &row.Value, &row.CTime, &row.MTime); err != nil {
			return err
		}
		if !f(row) {
			break
		}
	}
	return rows.Err()
}

func (tx *sqliteTx) KVInsert(tbl string, rows []kvRow) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.stx.Prepare("INSERT INTO " + quoteIdent(tbl) + " (key, value, ctime, mtime) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range rows {
		row := &rows[i]
		res, err := stmt.Exec(row.Key, row.Value, row.CTime, row.MTime)
		if err != nil {
			return fmt.Errorf("insert %q: %w", row.Key, err)
		}
		if row.KeyID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (tx *sqliteTx) KVUpdate(tbl string, rows []kvRow) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.stx.Prepare("UPDATE " + quoteIdent(tbl) + " SET value = ?, mtime = ? WHERE key = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, row := range rows {
		if _, err := stmt.Exec(row.Value, row.MTime, row.Key); err != nil {
			return fmt.Errorf("update %q: %w", row.Key, err)
		}
	}
	return nil
}

func (tx *sqliteTx) KVDelete(tbl, key string) (bool, error) {
	res, err := tx.stx.Exec("DELETE FROM "+quoteIdent(tbl)+" WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (tx *sqliteTx) KVClear(tbl string) error {
	_, err := tx.stx.Exec("DELETE FROM " + quoteIdent(tbl))
	return err
}

func (tx *sqliteTx) count(tbl string) (int, error) {
	var n int
	err := tx.stx.QueryRow("SELECT COUNT(*) FROM " + quoteIdent(tbl)).Scan(&n)
	return n, err
}

func (tx *sqliteTx) DocInsert(tbl string, rows []docRow) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	stmt, err := tx.stx.Prepare("INSERT INTO " + quoteIdent(tbl) + " (tag, value, ctime, mtime) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	ids := make([]int64, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		res, err := stmt.Exec(row.Tag, row.Value, row.CTime, row.MTime)
		if err != nil {
			return nil, fmt.Errorf("insert doc: %w", err)
		}
		if row.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, nil
}

const docColumns = "id, tag, value, ctime, mtime"

func scanDoc(sc interface{ Scan(dest ...any) error }) (docRow, error) {
	var row docRow
	err := sc.Scan(&row.ID, &row.Tag, &row.Value, &row.CTime, &row.MTime)
	return row, err
}

func (tx *sqliteTx) DocGet(tbl string, id int64) (docRow, bool, error) {
	row, err := scanDoc(tx.stx.QueryRow("SELECT "+docColumns+" FROM "+quoteIdent(tbl)+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return docRow{}, false, nil
	}
	if err != nil {
		return docRow{}, false, fmt.Errorf("get doc %d: %w", id, err)
	}
	return row, true, nil
}

func (tx *sqliteTx) DocScan(tbl string, q docQuery, f func(row docRow) bool) error {
	base := "SELECT " + docColumns + " FROM " + quoteIdent(tbl)
	var query string
	var arg any
	switch {
	case q.ByTag:
		query, arg = base+" WHERE tag = ? ORDER BY id ASC LIMIT ? OFFSET ?", q.Tag
	case q.Descending && q.FromID <= 0:
		return nil
	case q.Descending:
		query, arg = base+" WHERE id <= ? ORDER BY id DESC LIMIT ? OFFSET ?", q.FromID
	default:
		query, arg = base+" WHERE id >= ? ORDER BY id ASC LIMIT ? OFFSET ?", q.FromID
	}
	offset := max(q.Offset, 0)

	rows, err := tx.stx.Query(query, arg, sqlLimit(q.Limit), offset)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		row, err := scanDoc(rows)
		if err != nil {
			return err
		}
		if !f(row) {
			break
		}
	}
	return rows.Err()
}

func (tx *sqliteTx) DocUpdate(tbl string, sel docSel, tag, value string, mtime int64) (int, error) {
	query := "UPDATE " + quoteIdent(tbl) + " SET tag = ?, value = ?, mtime = ?"
	var res sql.Result
	var err error
	if sel.ByTag {
		res, err = tx.stx.Exec(query+" WHERE tag = ?", tag, value, mtime, sel.Tag)
	} else {
		res, err = tx.stx.Exec(query+" WHERE id = ?", tag, value, mtime, sel.ID)
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (tx *sqliteTx) DocDelete(tbl string, sel docSel) (int, error) {
	var res sql.Result
	var err error
	if sel.ByTag {
		res, err = tx.stx.Exec("DELETE FROM "+quoteIdent(tbl)+" WHERE tag = ?", sel.Tag)
	} else {
		res, err = tx.stx.Exec("DELETE FROM "+quoteIdent(tbl)+" WHERE id = ?", sel.ID)
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (tx *sqliteTx) DocClear(tbl string) error {
	if _, err := tx.stx.Exec("DELETE FROM " + quoteIdent(tbl)); err != nil {
		return err
	}
	_, err := tx.stx.Exec("DELETE FROM sqlite_sequence WHERE name = ?", tbl)
	return err
}

func (tx *sqliteTx) DocCount(tbl string) (int, error) {
	return tx.count(tbl)
}

func (tx *sqliteTx) Stats(names tableNames) (NamespaceStats, error) {
	var st NamespaceStats
	var err error
	if st.Keys, err = tx.count(names.KV); err != nil {
		return st, err
	}
	if st.Docs, err = tx.count(names.Doc); err != nil {
		return st, err
	}
	st.TagIndexRows = st.Docs

	var pageCount, pageSize int64
	if err := tx.stx.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return st, err
	}
	if err := tx.stx.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return st, err
	}
	st.FileSize = pageCount * pageSize
	return st, nil
}
