package tagdb

import (
	"fmt"
	"runtime/debug"
	"time"
)

// storeTx is one backend transaction on behalf of a Store operation. Key cache
// effects are staged here and applied only after a successful commit.
type storeTx struct {
	ns       *namespace
	btx      backendTx
	writable bool
	now      int64

	pendingKeys map[string]bool // key => present after commit
	clearedKeys bool
}

func (s *Store) read(ns *namespace, op, table string, f func(tx *storeTx) error) error {
	btx, err := ns.file.be.Begin(false)
	if err != nil {
		return classify(ErrStorageRead, op, table, err)
	}
	defer btx.Rollback()

	tx := &storeTx{ns: ns, btx: btx, now: time.Now().Unix()}
	return classify(ErrStorageRead, op, table, safelyCall(f, tx))
}

func (s *Store) write(ns *namespace, op, table string, f func(tx *storeTx) error) error {
	btx, err := ns.file.be.Begin(true)
	if err != nil {
		return classify(ErrStorageWrite, op, table, err)
	}
	defer btx.Rollback()

	tx := &storeTx{ns: ns, btx: btx, writable: true, now: time.Now().Unix()}
	if err := safelyCall(f, tx); err != nil {
		return classify(ErrStorageWrite, op, table, err)
	}
	if err := btx.Commit(); err != nil {
		return classify(ErrStorageWrite, op, table, fmt.Errorf("commit: %w", err))
	}
	tx.applyKeys()
	return nil
}

type panicked struct {
	reason interface{}
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*storeTx) error, tx *storeTx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}

func (tx *storeTx) hasKey(key string) bool {
	if present, ok := tx.pendingKeys[key]; ok {
		return present
	}
	if tx.clearedKeys {
		return false
	}
	return tx.ns.keys.has(key)
}

func (tx *storeTx) stageKey(key string, present bool) {
	if tx.pendingKeys == nil {
		tx.pendingKeys = make(map[string]bool)
	}
	tx.pendingKeys[key] = present
}

func (tx *storeTx) stageClearKeys() {
	tx.clearedKeys = true
	tx.pendingKeys = nil
}

func (tx *storeTx) applyKeys() {
	if tx.clearedKeys {
		tx.ns.keys.clear()
	}
	for k, present := range tx.pendingKeys {
		if present {
			tx.ns.keys.add(k)
		} else {
			tx.ns.keys.remove(k)
		}
	}
}

// putKeys inserts or updates rows depending on whether each key is known to
// exist. A key repeated within rows is inserted once and then updated, so the
// last value wins.
func (tx *storeTx) putKeys(rows []kvRow) error {
	var inserts, updates []kvRow
	for _, row := range rows {
		row.MTime = tx.now
		if tx.hasKey(row.Key) {
			updates = append(updates, row)
		} else {
			row.CTime = tx.now
			inserts = append(inserts, row)
			tx.stageKey(row.Key, true)
		}
	}
	tbl := tx.ns.names.KV
	if err := tx.btx.KVInsert(tbl, inserts); err != nil {
		return err
	}
	return tx.btx.KVUpdate(tbl, updates)
}
