package tagdb

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry tracks open storage files and the namespaces on them, so that every
// Store on the same (file, table) shares one backend handle, one lock and one
// key cache.
type Registry struct {
	files      *xsync.MapOf[string, *fileHandle]
	namespaces *xsync.MapOf[nsKey, *namespace]
}

// DefaultRegistry is used by Open when Options.Registry is nil.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		files:      xsync.NewMapOf[string, *fileHandle](),
		namespaces: xsync.NewMapOf[nsKey, *namespace](),
	}
}

type fileHandle struct {
	id     string
	engine Engine
	be     backend
	refs   int
}

type nsKey struct {
	file  string
	table string
}

// namespace is one (file, table) pair. mu is held across every backend
// transaction and the key cache update that follows it.
type namespace struct {
	key   nsKey
	file  *fileHandle
	names tableNames
	refs  int

	mu   sync.Mutex
	keys keyCache
}

// Open returns a Store on the given table of a file, using opt.Registry or
// DefaultRegistry.
func Open(file, table string, opt Options) (*Store, error) {
	opt = opt.withDefaults()
	return opt.Registry.Open(file, table, opt)
}

func (r *Registry) Open(file, table string, opt Options) (*Store, error) {
	opt = opt.withDefaults()
	opt.Registry = r
	s := &Store{
		reg:     r,
		opt:     opt,
		logger:  opt.Logger,
		verbose: opt.Verbose,
	}
	if err := s.Use(file, table); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenFiles reports the number of files with live namespaces.
func (r *Registry) OpenFiles() int {
	return r.files.Size()
}

// OpenNamespaces reports the number of live (file, table) namespaces.
func (r *Registry) OpenNamespaces() int {
	return r.namespaces.Size()
}

func (r *Registry) acquire(file, table string, opt *Options) (*namespace, error) {
	const op = "open"
	names, err := deriveTableNames(table)
	if err != nil {
		return nil, storeErrf(ErrInvalidArgument, op, table, err, "")
	}
	fileID, err := resolveFileID(file)
	if err != nil {
		return nil, storeErrf(ErrInvalidArgument, op, table, err, "")
	}

	var failure error
	ns, _ := r.namespaces.Compute(nsKey{fileID, table}, func(old *namespace, loaded bool) (*namespace, bool) {
		if loaded {
			if old.file.engine != opt.Engine {
				failure = storeErrf(ErrInvalidArgument, op, table, nil, "%s is already open with engine %v", fileID, old.file.engine)
				return old, false
			}
			old.refs++
			return old, false
		}
		fh, err := r.acquireFile(fileID, opt)
		if err != nil {
			failure = err
			return nil, true
		}
		if err := fh.be.EnsureSchema(names); err != nil {
			r.releaseFile(fh, opt.Logger)
			kind := ErrStorageInit
			if errors.Is(err, ErrInvalidArgument) {
				kind = ErrInvalidArgument
			}
			failure = storeErrf(kind, op, table, err, "schema")
			return nil, true
		}
		opt.Logger.Debug("db: namespace ready", "file", fileID, "tables", names.String(), "engine", fh.engine.String())
		return &namespace{
			key:   nsKey{fileID, table},
			file:  fh,
			names: names,
			refs:  1,
		}, false
	})
	if failure != nil {
		return nil, failure
	}
	return ns, nil
}

func (r *Registry) acquireFile(fileID string, opt *Options) (*fileHandle, error) {
	var failure error
	fh, _ := r.files.Compute(fileID, func(old *fileHandle, loaded bool) (*fileHandle, bool) {
		if loaded {
			if old.engine != opt.Engine {
				failure = storeErrf(ErrInvalidArgument, "open", "", nil, "%s is already open with engine %v", fileID, old.engine)
				return old, false
			}
			old.refs++
			return old, false
		}
		be, err := openBackend(fileID, opt)
		if err != nil {
			if errors.Is(err, ErrInvalidArgument) {
				failure = storeErrf(ErrInvalidArgument, "open", "", err, "%s", fileID)
			} else {
				failure = storeErrf(ErrStorageInit, "open", "", err, "%s", fileID)
			}
			return nil, true
		}
		opt.Logger.Info("db: opened", "file", fileID, "engine", opt.Engine.String())
		return &fileHandle{id: fileID, engine: opt.Engine, be: be, refs: 1}, false
	})
	if failure != nil {
		return nil, failure
	}
	return fh, nil
}

// release drops one reference to ns, closing its file when nothing else uses it.
func (r *Registry) release(ns *namespace, logger *slog.Logger) error {
	var last bool
	r.namespaces.Compute(ns.key, func(old *namespace, loaded bool) (*namespace, bool) {
		if !loaded || old != ns {
			return old, !loaded
		}
		old.refs--
		if old.refs > 0 {
			return old, false
		}
		last = true
		return nil, true
	})
	if !last {
		return nil
	}
	return r.releaseFile(ns.file, logger)
}

func (r *Registry) releaseFile(fh *fileHandle, logger *slog.Logger) error {
	var closeErr error
	r.files.Compute(fh.id, func(old *fileHandle, loaded bool) (*fileHandle, bool) {
		if !loaded || old != fh {
			return old, !loaded
		}
		old.refs--
		if old.refs > 0 {
			return old, false
		}
		closeErr = old.be.Close()
		logger.Info("db: closed", "file", fh.id)
		return nil, true
	})
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", fh.id, closeErr)
	}
	return nil
}
