package tagdb

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by a Store matches exactly one of them
// under errors.Is.
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStorageInit     = errors.New("storage init failed")
	ErrStorageRead     = errors.New("storage read failed")
	ErrStorageWrite    = errors.New("storage write failed")
	ErrInvalidArgument = errors.New("invalid argument")
)

// StoreError describes a failed Store operation. It unwraps both to its Kind
// and to the underlying cause.
type StoreError struct {
	Kind  error
	Op    string
	Table string
	Key   string
	Msg   string
	Err   error
}

func storeErrf(kind error, op, table string, err error, format string, args ...any) error {
	return &StoreError{Kind: kind, Op: op, Table: table, Msg: fmt.Sprintf(format, args...), Err: err}
}

func keyErrf(kind error, op, table, key string, err error, format string, args ...any) error {
	return &StoreError{Kind: kind, Op: op, Table: table, Key: key, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *StoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func (e *StoreError) Error() string {
	var buf strings.Builder
	if e.Table != "" {
		buf.WriteString(e.Table)
		if e.Key != "" {
			buf.WriteByte('/')
			buf.WriteString(e.Key)
		}
		buf.WriteString(": ")
	}
	if e.Op != "" {
		buf.WriteString(e.Op)
		buf.WriteString(": ")
	}
	buf.WriteString(e.Kind.Error())
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// classify wraps a backend failure into a StoreError of the given kind,
// leaving errors that already carry a kind untouched.
func classify(kind error, op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Kind: kind, Op: op, Table: table, Err: err}
}

// DataError reports a stored row that cannot be decoded.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}
