package tagdb

import (
	"context"
	"log/slog"
	"sync"
)

// Store is a handle on one namespace: a key-value table and a document table
// that share a name inside one storage file. Stores are safe for concurrent
// use; every Store on the same (file, table) serializes on the same lock.
type Store struct {
	reg     *Registry
	opt     Options
	logger  *slog.Logger
	verbose bool

	mu sync.Mutex // guards ns, held for the duration of each operation
	ns *namespace
}

// Use switches the Store to another (file, table) namespace, releasing the
// current one. The key cache of the new namespace is rebuilt.
func (s *Store) Use(file, table string) error {
	ns, err := s.reg.acquire(file, table, &s.opt)
	if err != nil {
		return err
	}
	ns.mu.Lock()
	err = s.rebuildKeys(ns, "use")
	ns.mu.Unlock()
	if err != nil {
		s.reg.release(ns, s.logger)
		return err
	}

	s.mu.Lock()
	old := s.ns
	s.ns = ns
	s.mu.Unlock()

	if old != nil {
		if err := s.reg.release(old, s.logger); err != nil {
			s.logger.Warn("db: failed to close previous file", "file", old.key.file, "err", err)
		}
	}
	s.trace("USE", slog.String("file", ns.key.file), slog.String("table", table))
	return nil
}

// Close releases the namespace. Further operations fail with ErrNotConnected.
// Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	ns := s.ns
	s.ns = nil
	s.mu.Unlock()
	if ns == nil {
		return nil
	}
	return classify(ErrStorageWrite, "close", ns.names.KV, s.reg.release(ns, s.logger))
}

// File returns the resolved file id, or "" when closed.
func (s *Store) File() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ns == nil {
		return ""
	}
	return s.ns.key.file
}

// Table returns the namespace name, or "" when closed.
func (s *Store) Table() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ns == nil {
		return ""
	}
	return s.ns.key.table
}

func (s *Store) Engine() Engine {
	return s.opt.Engine
}

func (s *Store) with(op string, f func(ns *namespace) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.ns
	if ns == nil {
		return &StoreError{Kind: ErrNotConnected, Op: op}
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return f(ns)
}

func withNS[T any](s *Store, op string, f func(ns *namespace) (T, error)) (T, error) {
	var result T
	err := s.with(op, func(ns *namespace) error {
		var err error
		result, err = f(ns)
		return err
	})
	return result, err
}

func (s *Store) rebuildKeys(ns *namespace, op string) error {
	return s.read(ns, op, ns.names.KV, func(tx *storeTx) error {
		keys, err := tx.btx.KVKeys(ns.names.KV)
		if err != nil {
			return err
		}
		ns.keys.reset(keys)
		return nil
	})
}

func (s *Store) trace(op string, attrs ...slog.Attr) {
	if s.verbose {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "db: "+op, attrs...)
	}
}
