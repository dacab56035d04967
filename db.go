package tagdb

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// InMemory is the file name for a non-durable database that lives until the
// last Store using it is closed.
const InMemory = ":memory:"

// Engine selects the storage engine behind a file.
type Engine int

const (
	// EngineBolt keeps namespaces in a Bolt file, or in memory for InMemory.
	EngineBolt Engine = iota
	// EngineSQLite keeps namespaces in SQLite tables.
	EngineSQLite
)

func (e Engine) String() string {
	switch e {
	case EngineBolt:
		return "bolt"
	case EngineSQLite:
		return "sqlite"
	default:
		return fmt.Sprintf("engine(%d)", int(e))
	}
}

const defaultTimeout = 10 * time.Second

type Options struct {
	Engine Engine

	// Logger receives lifecycle events, and per-operation lines when Verbose.
	// Defaults to slog.Default().
	Logger  *slog.Logger
	Verbose bool

	// IsTesting trades durability for speed.
	IsTesting bool
	MmapSize  int
	// Timeout bounds waiting for a file lock held by another process.
	Timeout time.Duration

	// Registry tracks open files and namespaces. Defaults to DefaultRegistry.
	Registry *Registry
}

func (opt Options) withDefaults() Options {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Timeout == 0 {
		opt.Timeout = defaultTimeout
	}
	if opt.Registry == nil {
		opt.Registry = DefaultRegistry
	}
	return opt
}

// resolveFileID returns the registry key for a file: InMemory, or the cleaned
// absolute path.
func resolveFileID(file string) (string, error) {
	if file == InMemory {
		return InMemory, nil
	}
	if file == "" {
		return "", fmt.Errorf("%w: empty file name", ErrInvalidArgument)
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return filepath.Clean(abs), nil
}

func openBackend(fileID string, opt *Options) (backend, error) {
	switch opt.Engine {
	case EngineBolt:
		if fileID == InMemory {
			return newBucketBackend(newMemStorage(), EngineBolt), nil
		}
		st, err := openBoltStorage(fileID, opt)
		if err != nil {
			return nil, err
		}
		return newBucketBackend(st, EngineBolt), nil
	case EngineSQLite:
		return openSQLiteBackend(fileID, opt)
	default:
		return nil, fmt.Errorf("%w: unknown engine %v", ErrInvalidArgument, opt.Engine)
	}
}
