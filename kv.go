package tagdb

import (
	"log/slog"
	"slices"

	"github.com/andreyvit/tagdb/jsonval"
)

// KeyValueRecord is a full row of the key-value table.
type KeyValueRecord struct {
	KeyID int64
	Key   string
	Value jsonval.Value
	CTime int64
	MTime int64
}

// Get returns the value stored under key, or def when the key is absent.
// Absent keys are answered from the key cache without a backend read.
func (s *Store) Get(key string, def jsonval.Value) (jsonval.Value, error) {
	return withNS(s, "get", func(ns *namespace) (jsonval.Value, error) {
		return s.get(ns, key, def)
	})
}

func (s *Store) get(ns *namespace, key string, def jsonval.Value) (jsonval.Value, error) {
	if !ns.keys.has(key) {
		return def, nil
	}
	rec, found, err := s.info(ns, "get", key)
	if err != nil || !found {
		return def, err
	}
	return rec.Value, nil
}

func (s *Store) Has(key string) (bool, error) {
	return withNS(s, "has", func(ns *namespace) (bool, error) {
		return ns.keys.has(key), nil
	})
}

// Info returns the full row for key, including its timestamps.
func (s *Store) Info(key string) (KeyValueRecord, bool, error) {
	var found bool
	rec, err := withNS(s, "info", func(ns *namespace) (KeyValueRecord, error) {
		rec, ok, err := s.info(ns, "info", key)
		found = ok
		return rec, err
	})
	return rec, found, err
}

func (s *Store) info(ns *namespace, op, key string) (KeyValueRecord, bool, error) {
	var rec KeyValueRecord
	var found bool
	err := s.read(ns, op, ns.names.KV, func(tx *storeTx) error {
		row, ok, err := tx.btx.KVGet(ns.names.KV, key)
		if err != nil || !ok {
			return err
		}
		v, err := decodeValue(row.Value)
		if err != nil {
			return err
		}
		rec = KeyValueRecord{KeyID: row.KeyID, Key: key, Value: v, CTime: row.CTime, MTime: row.MTime}
		found = true
		return nil
	})
	if err != nil {
		return KeyValueRecord{}, false, withKey(err, key)
	}
	return rec, found, nil
}

// Set stores v under key, inserting or updating as needed.
func (s *Store) Set(key string, v jsonval.Value) error {
	return s.with("set", func(ns *namespace) error {
		return s.setFields(ns, "set", []jsonval.Field{jsonval.F(key, v)})
	})
}

// SetMany stores every entry of m in one transaction, in sorted key order.
func (s *Store) SetMany(m map[string]jsonval.Value) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fields := make([]jsonval.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, jsonval.F(k, m[k]))
	}
	return s.with("set_many", func(ns *namespace) error {
		return s.setFields(ns, "set_many", fields)
	})
}

// SetObject stores every field of an object value in one transaction, in
// field order.
func (s *Store) SetObject(obj jsonval.Value) error {
	if !obj.IsObject() {
		return storeErrf(ErrInvalidArgument, "set_object", "", nil, "expected an object, got %v", obj.Kind())
	}
	return s.with("set_object", func(ns *namespace) error {
		return s.setFields(ns, "set_object", obj.Fields())
	})
}

func (s *Store) setFields(ns *namespace, op string, fields []jsonval.Field) error {
	if len(fields) == 0 {
		return nil
	}
	rows := make([]kvRow, 0, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return keyErrf(ErrInvalidArgument, op, ns.names.KV, "", nil, "empty key")
		}
		raw, err := encodeValue(f.Value)
		if err != nil {
			return keyErrf(ErrInvalidArgument, op, ns.names.KV, f.Name, err, "")
		}
		rows = append(rows, kvRow{Key: f.Name, Value: raw})
		s.trace("SET", slog.String("table", ns.names.KV), slog.String("key", f.Name), slog.String("value", raw))
	}
	return s.write(ns, op, ns.names.KV, func(tx *storeTx) error {
		return tx.putKeys(rows)
	})
}

// Delete removes key and reports whether it existed. Unknown keys cost no
// backend call.
func (s *Store) Delete(key string) (bool, error) {
	return withNS(s, "delete", func(ns *namespace) (bool, error) {
		return s.deleteKey(ns, "delete", key)
	})
}

func (s *Store) deleteKey(ns *namespace, op, key string) (bool, error) {
	if !ns.keys.has(key) {
		return false, nil
	}
	s.trace("DELETE", slog.String("table", ns.names.KV), slog.String("key", key))
	var deleted bool
	err := s.write(ns, op, ns.names.KV, func(tx *storeTx) error {
		var err error
		deleted, err = tx.btx.KVDelete(ns.names.KV, key)
		tx.stageKey(key, false)
		return err
	})
	if err != nil {
		return false, withKey(err, key)
	}
	return deleted, nil
}

// Keys returns all keys in sorted order. The key cache is rebuilt from the
// backend when forceRefresh is set or the cache is empty.
func (s *Store) Keys(forceRefresh bool) ([]string, error) {
	return withNS(s, "keys", func(ns *namespace) ([]string, error) {
		return s.keys(ns, forceRefresh)
	})
}

func (s *Store) keys(ns *namespace, forceRefresh bool) ([]string, error) {
	if forceRefresh || ns.keys.len() == 0 {
		if err := s.rebuildKeys(ns, "keys"); err != nil {
			return nil, err
		}
	}
	return ns.keys.sorted(), nil
}

// ClearKeys deletes every key-value row.
func (s *Store) ClearKeys() error {
	return s.with("clear_keys", func(ns *namespace) error {
		s.trace("CLEAR_KEYS", slog.String("table", ns.names.KV))
		return s.write(ns, "clear_keys", ns.names.KV, func(tx *storeTx) error {
			tx.stageClearKeys()
			return tx.btx.KVClear(ns.names.KV)
		})
	})
}

// DumpJSON renders the whole key-value table as one JSON object in key order.
func (s *Store) DumpJSON() ([]byte, error) {
	return withNS(s, "dump_json", func(ns *namespace) ([]byte, error) {
		keys, err := s.keys(ns, false)
		if err != nil {
			return nil, err
		}
		fields := make([]jsonval.Field, 0, len(keys))
		for _, k := range keys {
			v, err := s.get(ns, k, jsonval.NullValue())
			if err != nil {
				return nil, err
			}
			fields = append(fields, jsonval.F(k, v))
		}
		return jsonval.Obj(fields...).MarshalJSON()
	})
}

// withKey attaches key to a StoreError that lacks one.
func withKey(err error, key string) error {
	if se, ok := err.(*StoreError); ok && se.Key == "" {
		se.Key = key
	}
	return err
}
