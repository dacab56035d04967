package tagdb

import (
	"errors"
	"math"
	"testing"

	"github.com/andreyvit/tagdb/jsonval"
)

func TestKV_GetMissingReturnsDefault(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		jsonEqual(t, must(s.Get("missing", jsonval.Str("N/A"))), jsonval.Str("N/A"))
		jsonEqual(t, must(s.Get("missing", jsonval.NullValue())), jsonval.NullValue())
		deepEqual(t, must(s.Has("missing")), false)
	})
}

func TestKV_RoundTrip(t *testing.T) {
	values := map[string]jsonval.Value{
		"null":   jsonval.NullValue(),
		"bool":   jsonval.BoolValue(true),
		"int":    jsonval.Int(42),
		"float":  jsonval.Float(1.5),
		"str":    jsonval.Str("日本語 text"),
		"arr":    jsonval.Arr(jsonval.Int(1), jsonval.Str("two"), jsonval.NullValue()),
		"nested": jsonval.MustParse(`{"z":1,"a":{"b":[true,false]}}`),
	}
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		for k, v := range values {
			ok(t, s.Set(k, v))
		}
		for k, v := range values {
			jsonEqual(t, must(s.Get(k, jsonval.Str("default"))), v)
		}
		got := must(s.Get("nested", jsonval.NullValue()))
		deepEqual(t, got.String(), `{"z":1,"a":{"b":[true,false]}}`)
	})
}

func TestKV_SetTwiceUpdatesInPlace(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		ok(t, s.Set("color", jsonval.Str("red")))
		first, found, err := s.Info("color")
		ok(t, err)
		deepEqual(t, found, true)

		ok(t, s.Set("color", jsonval.Str("blue")))
		second, _, err := s.Info("color")
		ok(t, err)

		jsonEqual(t, second.Value, jsonval.Str("blue"))
		deepEqual(t, second.KeyID, first.KeyID)
		deepEqual(t, second.CTime, first.CTime)
		if second.MTime < second.CTime {
			t.Errorf("** mtime %d before ctime %d", second.MTime, second.CTime)
		}
		deepEqual(t, must(s.Keys(true)), []string{"color"})
		deepEqual(t, must(s.Stats()).Keys, 1)
	})
}

func TestKV_InfoMissing(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		rec, found, err := s.Info("nope")
		ok(t, err)
		deepEqual(t, found, false)
		deepEqual(t, rec.Key, "")
	})
}

func TestKV_SetManyAndSetObject(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		ok(t, s.SetMany(map[string]jsonval.Value{
			"b": jsonval.Int(2),
			"a": jsonval.Int(1),
		}))
		ok(t, s.SetObject(obj(
			jsonval.F("c", jsonval.Int(3)),
			jsonval.F("a", jsonval.Str("updated")),
		)))
		deepEqual(t, must(s.Keys(false)), []string{"a", "b", "c"})
		jsonEqual(t, must(s.Get("a", jsonval.NullValue())), jsonval.Str("updated"))
		deepEqual(t, must(s.Stats()).Keys, 3)

		ok(t, s.SetObject(obj()))
		ok(t, s.SetMany(nil))
		deepEqual(t, must(s.Keys(true)), []string{"a", "b", "c"})

		isKind(t, s.SetObject(jsonval.Str("not an object")), ErrInvalidArgument)
	})
}

func TestKV_RejectsUnencodableValue(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		err := s.Set("nan", jsonval.Float(math.NaN()))
		isKind(t, err, ErrInvalidArgument)
		var se *StoreError
		if errors.As(err, &se) && se.Key != "nan" {
			t.Errorf("** error key = %q, wanted nan", se.Key)
		}
		deepEqual(t, must(s.Has("nan")), false)
	})
}

func TestKV_RejectsEmptyKey(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		isKind(t, s.Set("", jsonval.Int(1)), ErrInvalidArgument)
		isKind(t, s.SetObject(obj(jsonval.F("a", jsonval.Int(1)), jsonval.F("", jsonval.Int(2)))), ErrInvalidArgument)
		isempty(t, must(s.Keys(true)))
	})
}

func TestKV_Delete(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		ok(t, s.Set("a", jsonval.Int(1)))
		ok(t, s.Set("b", jsonval.Int(2)))

		deepEqual(t, must(s.Delete("a")), true)
		deepEqual(t, must(s.Delete("a")), false)
		deepEqual(t, must(s.Delete("never")), false)

		deepEqual(t, must(s.Has("a")), false)
		deepEqual(t, must(s.Keys(true)), []string{"b"})

		// re-inserting a deleted key works
		ok(t, s.Set("a", jsonval.Int(10)))
		jsonEqual(t, must(s.Get("a", jsonval.NullValue())), jsonval.Int(10))
	})
}

func TestKV_ClearKeys(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		ok(t, s.SetMany(map[string]jsonval.Value{"a": jsonval.Int(1), "b": jsonval.Int(2)}))
		must(s.Insert(named("doc")))

		ok(t, s.ClearKeys())
		isempty(t, must(s.Keys(true)))
		deepEqual(t, must(s.Has("a")), false)
		deepEqual(t, must(s.CountDocs()), 1)
	})
}

func TestKV_DumpJSON(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		deepEqual(t, string(must(s.DumpJSON())), `{}`)

		ok(t, s.Set("b", jsonval.Int(1)))
		ok(t, s.Set("a", jsonval.MustParse(`{"x":true}`)))
		deepEqual(t, string(must(s.DumpJSON())), `{"a":{"x":true},"b":1}`)
	})
}

func TestKV_TagNameIsVisibleKey(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		must(s.Insert(named("apple")))
		deepEqual(t, must(s.Keys(false)), []string{TagNameKey})
		jsonEqual(t, must(s.Get(TagNameKey, jsonval.NullValue())), jsonval.Str("name"))
	})
}

func TestKV_SharedCacheAcrossStores(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		reg := NewRegistry()
		file := ec.file(t)
		s1 := must(reg.Open(file, "shared", ec.options(reg)))
		defer s1.Close()
		s2 := must(reg.Open(file, "shared", ec.options(reg)))
		defer s2.Close()

		ok(t, s1.Set("k", jsonval.Str("v")))
		deepEqual(t, must(s2.Has("k")), true)
		jsonEqual(t, must(s2.Get("k", jsonval.NullValue())), jsonval.Str("v"))

		deepEqual(t, must(s2.Delete("k")), true)
		deepEqual(t, must(s1.Has("k")), false)
	})
}

func TestKV_FailedWriteLeavesCacheUntouched(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		ok(t, s.Set("kept", jsonval.Int(1)))

		fh := s.ns.file
		orig := fh.be
		fh.be = &failingBackend{backend: orig, failInsert: true}
		err := s.Set("lost", jsonval.Int(2))
		isKind(t, err, ErrStorageWrite)
		deepEqual(t, must(s.Has("lost")), false)

		fh.be = &failingBackend{backend: orig, failClear: true}
		isKind(t, s.ClearKeys(), ErrStorageWrite)
		deepEqual(t, must(s.Has("kept")), true)

		fh.be = orig
		deepEqual(t, must(s.Keys(true)), []string{"kept"})
	})
}

func TestKV_AnsweredWithoutBackend(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		ok(t, s.Set("present", jsonval.Int(1)))

		fh := s.ns.file
		orig := fh.be
		fh.be = &failingBackend{backend: orig, failBegin: true}
		defer func() { fh.be = orig }()

		jsonEqual(t, must(s.Get("absent", jsonval.Str("def"))), jsonval.Str("def"))
		deepEqual(t, must(s.Has("present")), true)
		ok(t, s.SetMany(nil))
		ok(t, s.SetMany(map[string]jsonval.Value{}))
		ok(t, s.SetObject(obj()))
		deepEqual(t, must(s.Delete("absent")), false)

		_, err := s.Get("present", jsonval.NullValue())
		isKind(t, err, ErrStorageRead)
	})
}

var errInjected = errors.New("injected failure")

// failingBackend wraps a backend and fails selected operations.
type failingBackend struct {
	backend
	failBegin  bool
	failInsert bool
	failClear  bool
}

func (be *failingBackend) Begin(writable bool) (backendTx, error) {
	if be.failBegin {
		return nil, errInjected
	}
	btx, err := be.backend.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &failingTx{backendTx: btx, be: be}, nil
}

type failingTx struct {
	backendTx
	be *failingBackend
}

func (tx *failingTx) KVInsert(tbl string, rows []kvRow) error {
	if tx.be.failInsert {
		return errInjected
	}
	return tx.backendTx.KVInsert(tbl, rows)
}

func (tx *failingTx) KVClear(tbl string) error {
	if tx.be.failClear {
		return errInjected
	}
	return tx.backendTx.KVClear(tbl)
}
