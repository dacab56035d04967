package tagdb

import (
	"encoding/hex"
	"errors"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/andreyvit/tagdb/jsonval"
)

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

type engineCase struct {
	name     string
	engine   Engine
	inMemory bool
}

var engineCases = []engineCase{
	{"bolt-mem", EngineBolt, true},
	{"bolt-file", EngineBolt, false},
	{"sqlite-mem", EngineSQLite, true},
	{"sqlite-file", EngineSQLite, false},
}

func forEachEngine(t *testing.T, f func(t *testing.T, ec engineCase)) {
	for _, ec := range engineCases {
		t.Run(ec.name, func(t *testing.T) {
			f(t, ec)
		})
	}
}

func (ec engineCase) file(t testing.TB) string {
	if ec.inMemory {
		return InMemory
	}
	return filepath.Join(t.TempDir(), "test.db")
}

func (ec engineCase) options(reg *Registry) Options {
	return Options{
		Engine:    ec.engine,
		IsTesting: true,
		Verbose:   true,
		Registry:  reg,
	}
}

// setup opens a fresh namespace on its own registry.
func setup(t testing.TB, ec engineCase) *Store {
	t.Helper()
	reg := NewRegistry()
	file := ec.file(t)
	t.Logf("DB: %s (%v)", file, ec.engine)
	s := must(reg.Open(file, "test", ec.options(reg)))
	t.Cleanup(func() { s.Close() })
	return s
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func jsonEqual(t testing.TB, a, e jsonval.Value) {
	if !jsonval.Equal(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

func ok(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** unexpected error: %v", err)
	}
}

func isKind(t testing.TB, err, kind error) {
	if !errors.Is(err, kind) {
		t.Helper()
		t.Errorf("** got error %v, wanted %v", err, kind)
	}
}

func assertPanics(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	fn()
}

func x(data string) []byte {
	data = strings.ReplaceAll(data, " ", "")
	return must(hex.DecodeString(data))
}

func obj(fields ...jsonval.Field) jsonval.Value { return jsonval.Obj(fields...) }

func named(name string) jsonval.Value {
	return obj(jsonval.F("name", jsonval.Str(name)))
}

// fieldStrings extracts a string field from every document.
func fieldStrings(docs []jsonval.Value, field string) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Get(field).AsString())
	}
	return out
}

func ints(docs []jsonval.Value) []int64 {
	out := make([]int64, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.AsInt())
	}
	return out
}

func intValues(ns ...int64) []jsonval.Value {
	out := make([]jsonval.Value, 0, len(ns))
	for _, n := range ns {
		out = append(out, jsonval.Int(n))
	}
	return out
}
