package tagdb

import (
	"log/slog"
	"math"
	"slices"

	"github.com/andreyvit/tagdb/jsonval"
)

// DefaultRecentLimit is the window Recent uses for a non-positive limit.
const DefaultRecentLimit = 100

// DocumentRecord is a full row of the document table. Value is the document
// as stored, without an injected id.
type DocumentRecord struct {
	ID    int64
	Tag   string
	Value jsonval.Value
	CTime int64
	MTime int64
}

// ScanOptions bound GetAll. An ascending scan starts at FromID (default 1)
// and returns ids >= FromID; a descending one starts at FromID (default the
// largest id) and returns ids <= FromID. Limit 0 means all.
type ScanOptions struct {
	Limit      int
	Descending bool
	FromID     int64
}

// withID injects the document id into object documents.
func withID(v jsonval.Value, id int64) jsonval.Value {
	if v.IsObject() {
		return v.With("id", jsonval.Int(id))
	}
	return v
}

func decodeDoc(row docRow) (jsonval.Value, error) {
	v, err := decodeValue(row.Value)
	if err != nil {
		return jsonval.Value{}, err
	}
	return withID(v, row.ID), nil
}

// Insert adds a document and returns its id. The tag comes from the stored
// TagName field, or from the first field of an object, which then becomes the
// TagName.
func (s *Store) Insert(v jsonval.Value) (int64, error) {
	return s.InsertWith(v, InsertOptions{})
}

func (s *Store) InsertWith(v jsonval.Value, opt InsertOptions) (int64, error) {
	return withNS(s, "insert", func(ns *namespace) (int64, error) {
		ids, err := s.insertDocs(ns, "insert", []jsonval.Value{v}, opt, false)
		if err != nil {
			return 0, err
		}
		return ids[0], nil
	})
}

// InsertMany adds every value in one transaction, deriving each tag as Insert
// does. A TagField given in opt is stored as the new TagName.
func (s *Store) InsertMany(values []jsonval.Value, opt InsertOptions) ([]int64, error) {
	return withNS(s, "insert_many", func(ns *namespace) ([]int64, error) {
		return s.insertDocs(ns, "insert_many", values, opt, true)
	})
}

// InsertArray is InsertMany for the items of an array value.
func (s *Store) InsertArray(arr jsonval.Value, opt InsertOptions) ([]int64, error) {
	if !arr.IsArray() {
		return nil, storeErrf(ErrInvalidArgument, "insert_many", "", nil, "expected an array, got %v", arr.Kind())
	}
	return s.InsertMany(arr.Items(), opt)
}

func (s *Store) insertDocs(ns *namespace, op string, values []jsonval.Value, opt InsertOptions, persistTagField bool) ([]int64, error) {
	if len(values) == 0 {
		return nil, nil
	}
	raws := make([]string, len(values))
	for i, v := range values {
		raw, err := encodeValue(v)
		if err != nil {
			return nil, storeErrf(ErrInvalidArgument, op, ns.names.Doc, err, "document %d", i)
		}
		raws[i] = raw
	}

	var ids []int64
	err := s.write(ns, op, ns.names.Doc, func(tx *storeTx) error {
		stored, err := tx.tagName()
		if err != nil {
			return err
		}
		tagName := stored
		if persistTagField && !opt.HasTag && opt.TagField != "" {
			tagName = opt.TagField
		}

		rows := make([]docRow, len(values))
		for i, v := range values {
			tag, inferred := deriveTag(v, opt, tagName)
			if inferred != "" {
				tagName = inferred
			}
			rows[i] = docRow{Tag: tag, Value: raws[i], CTime: tx.now, MTime: tx.now}
		}
		if tagName != stored {
			s.trace("SET_TAG_NAME", slog.String("table", ns.names.KV), slog.String("name", tagName))
			if err := tx.setTagName(tagName); err != nil {
				return err
			}
		}

		ids, err = tx.btx.DocInsert(ns.names.Doc, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.trace("INSERT", slog.String("table", ns.names.Doc), slog.Any("ids", ids))
	return ids, nil
}

// GetByID returns the document with the given id, or def when there is none.
func (s *Store) GetByID(id int64, def jsonval.Value) (jsonval.Value, error) {
	return withNS(s, "get_by_id", func(ns *namespace) (jsonval.Value, error) {
		v, found, err := s.getByID(ns, id)
		if err != nil || !found {
			return def, err
		}
		return v, nil
	})
}

func (s *Store) getByID(ns *namespace, id int64) (jsonval.Value, bool, error) {
	rec, found, err := s.doc(ns, "get_by_id", id)
	if err != nil || !found {
		return jsonval.Value{}, false, err
	}
	return withID(rec.Value, id), true, nil
}

// Doc returns the full document row, including its tag and timestamps.
func (s *Store) Doc(id int64) (DocumentRecord, bool, error) {
	var found bool
	rec, err := withNS(s, "doc", func(ns *namespace) (DocumentRecord, error) {
		rec, ok, err := s.doc(ns, "doc", id)
		found = ok
		return rec, err
	})
	return rec, found, err
}

func (s *Store) doc(ns *namespace, op string, id int64) (DocumentRecord, bool, error) {
	var rec DocumentRecord
	var found bool
	err := s.read(ns, op, ns.names.Doc, func(tx *storeTx) error {
		row, ok, err := tx.btx.DocGet(ns.names.Doc, id)
		if err != nil || !ok {
			return err
		}
		v, err := decodeValue(row.Value)
		if err != nil {
			return err
		}
		rec = DocumentRecord{ID: row.ID, Tag: row.Tag, Value: v, CTime: row.CTime, MTime: row.MTime}
		found = true
		return nil
	})
	return rec, found, err
}

// GetByTag returns up to limit documents with the given tag in ascending id
// order. Limit 0 means all.
func (s *Store) GetByTag(tag string, limit int) ([]jsonval.Value, error) {
	return withNS(s, "get_by_tag", func(ns *namespace) ([]jsonval.Value, error) {
		return s.scanDocs(ns, "get_by_tag", docQuery{ByTag: true, Tag: tag, Limit: limit})
	})
}

func (s *Store) GetAll(opt ScanOptions) ([]jsonval.Value, error) {
	q := docQuery{FromID: opt.FromID, Descending: opt.Descending, Limit: opt.Limit}
	if q.FromID <= 0 {
		if q.Descending {
			q.FromID = math.MaxInt64
		} else {
			q.FromID = 1
		}
	}
	return withNS(s, "get_all", func(ns *namespace) ([]jsonval.Value, error) {
		return s.scanDocs(ns, "get_all", q)
	})
}

// Recent returns the newest limit documents after skipping the newest offset
// ones. The window is ordered oldest first when ascending, newest first
// otherwise.
func (s *Store) Recent(limit, offset int, ascending bool) ([]jsonval.Value, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	q := docQuery{FromID: math.MaxInt64, Descending: true, Limit: limit, Offset: offset}
	docs, err := withNS(s, "recent", func(ns *namespace) ([]jsonval.Value, error) {
		return s.scanDocs(ns, "recent", q)
	})
	if err != nil {
		return nil, err
	}
	if ascending {
		slices.Reverse(docs)
	}
	return docs, nil
}

func (s *Store) scanDocs(ns *namespace, op string, q docQuery) ([]jsonval.Value, error) {
	var docs []jsonval.Value
	err := s.read(ns, op, ns.names.Doc, func(tx *storeTx) error {
		var decodeErr error
		err := tx.btx.DocScan(ns.names.Doc, q, func(row docRow) bool {
			v, err := decodeDoc(row)
			if err != nil {
				decodeErr = err
				return false
			}
			docs = append(docs, v)
			return true
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	return docs, err
}

// Update overwrites the selected documents with v and returns how many were
// changed. ByID recomputes the tag from v's TagName field; ByTag keeps the
// tag. The zero Selector changes nothing.
func (s *Store) Update(sel Selector, v jsonval.Value) (int, error) {
	const op = "update"
	switch sel.kind {
	case selNone:
		return 0, nil
	case selID, selTag:
	default:
		return 0, storeErrf(ErrInvalidArgument, op, "", nil, "cannot update by %v", sel)
	}
	raw, err := encodeValue(v)
	if err != nil {
		return 0, storeErrf(ErrInvalidArgument, op, "", err, "")
	}
	return withNS(s, op, func(ns *namespace) (int, error) {
		s.trace("UPDATE", slog.String("table", ns.names.Doc), slog.String("sel", sel.String()), slog.String("value", raw))
		var n int
		err := s.write(ns, op, ns.names.Doc, func(tx *storeTx) error {
			var dsel docSel
			var tag string
			if sel.kind == selID {
				tagName, err := tx.tagName()
				if err != nil {
					return err
				}
				dsel, tag = docSelID(sel.id), updateTag(v, tagName)
			} else {
				dsel, tag = docSelTag(sel.str), sel.str
			}
			var err error
			n, err = tx.btx.DocUpdate(ns.names.Doc, dsel, tag, raw, tx.now)
			return err
		})
		return n, err
	})
}

func (s *Store) UpdateByID(id int64, v jsonval.Value) (int, error) {
	return s.Update(ByID(id), v)
}

func (s *Store) UpdateByTag(tag string, v jsonval.Value) (int, error) {
	return s.Update(ByTag(tag), v)
}

// DeleteDocs removes the selected documents and returns how many were
// removed. ByKey deletes a key-value entry instead. ByFields deletes every
// document matching the fields, one by one.
func (s *Store) DeleteDocs(sel Selector) (int, error) {
	const op = "delete"
	if sel.kind == selNone {
		return 0, storeErrf(ErrInvalidArgument, op, "", nil, "no selector given")
	}
	var match func(jsonval.Value) bool
	if sel.kind == selFields {
		var err error
		if match, err = Match(sel.fields).compile(); err != nil {
			return 0, storeErrf(ErrInvalidArgument, op, "", err, "")
		}
	}
	return withNS(s, op, func(ns *namespace) (int, error) {
		s.trace("DELETE", slog.String("table", ns.names.Doc), slog.String("sel", sel.String()))
		var dsels []docSel
		switch sel.kind {
		case selKey:
			deleted, err := s.deleteKey(ns, op, sel.str)
			if deleted {
				return 1, err
			}
			return 0, err
		case selID:
			dsels = []docSel{docSelID(sel.id)}
		case selTag:
			dsels = []docSel{docSelTag(sel.str)}
		case selFields:
			hits, err := s.find(ns, op, match, 0)
			if err != nil {
				return 0, err
			}
			if len(hits) == 0 {
				return 0, nil
			}
			for _, h := range hits {
				dsels = append(dsels, docSelID(h.id))
			}
		}
		var n int
		err := s.write(ns, op, ns.names.Doc, func(tx *storeTx) error {
			for _, dsel := range dsels {
				k, err := tx.btx.DocDelete(ns.names.Doc, dsel)
				if err != nil {
					return err
				}
				n += k
			}
			return nil
		})
		return n, err
	})
}

// GetOne returns the first document picked by sel: the document with the id,
// the first with the tag, the first matching the fields, or the key-value
// entry for ByKey.
func (s *Store) GetOne(sel Selector) (jsonval.Value, bool, error) {
	const op = "get_one"
	var match func(jsonval.Value) bool
	switch sel.kind {
	case selNone:
		return jsonval.Value{}, false, storeErrf(ErrInvalidArgument, op, "", nil, "no selector given")
	case selFields:
		var err error
		if match, err = Match(sel.fields).compile(); err != nil {
			return jsonval.Value{}, false, storeErrf(ErrInvalidArgument, op, "", err, "")
		}
	}
	var found bool
	v, err := withNS(s, op, func(ns *namespace) (jsonval.Value, error) {
		switch sel.kind {
		case selID:
			v, ok, err := s.getByID(ns, sel.id)
			found = ok
			return v, err
		case selTag:
			docs, err := s.scanDocs(ns, op, docQuery{ByTag: true, Tag: sel.str, Limit: 1})
			if err != nil || len(docs) == 0 {
				return jsonval.Value{}, err
			}
			found = true
			return docs[0], nil
		case selKey:
			if !ns.keys.has(sel.str) {
				return jsonval.Value{}, nil
			}
			rec, ok, err := s.info(ns, op, sel.str)
			found = ok
			return rec.Value, err
		default:
			hits, err := s.find(ns, op, match, 1)
			if err != nil || len(hits) == 0 {
				return jsonval.Value{}, err
			}
			found = true
			return hits[0].value, nil
		}
	})
	return v, found, err
}

type docHit struct {
	id    int64
	value jsonval.Value
}

// Find scans documents in ascending id order and returns those selected by
// filter, stopping once limit are found. Limit 0 means all.
func (s *Store) Find(filter Filter, limit int) ([]jsonval.Value, error) {
	const op = "find"
	match, err := filter.compile()
	if err != nil {
		return nil, storeErrf(ErrInvalidArgument, op, "", err, "")
	}
	return withNS(s, op, func(ns *namespace) ([]jsonval.Value, error) {
		hits, err := s.find(ns, op, match, limit)
		if err != nil {
			return nil, err
		}
		docs := make([]jsonval.Value, len(hits))
		for i, h := range hits {
			docs[i] = h.value
		}
		return docs, nil
	})
}

func (s *Store) FindOne(filter Filter) (jsonval.Value, bool, error) {
	docs, err := s.Find(filter, 1)
	if err != nil || len(docs) == 0 {
		return jsonval.Value{}, false, err
	}
	return docs[0], true, nil
}

func (s *Store) find(ns *namespace, op string, match func(jsonval.Value) bool, limit int) ([]docHit, error) {
	var hits []docHit
	err := s.read(ns, op, ns.names.Doc, func(tx *storeTx) error {
		var decodeErr error
		err := tx.btx.DocScan(ns.names.Doc, docQuery{FromID: 1}, func(row docRow) bool {
			v, err := decodeDoc(row)
			if err != nil {
				decodeErr = err
				return false
			}
			if !match(v) {
				return true
			}
			hits = append(hits, docHit{row.ID, v})
			return limit <= 0 || len(hits) < limit
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	return hits, err
}

func (s *Store) CountDocs() (int, error) {
	return withNS(s, "count_docs", func(ns *namespace) (int, error) {
		var n int
		err := s.read(ns, "count_docs", ns.names.Doc, func(tx *storeTx) error {
			var err error
			n, err = tx.btx.DocCount(ns.names.Doc)
			return err
		})
		return n, err
	})
}

// ClearDocs removes every document. The next inserted document gets id 1.
func (s *Store) ClearDocs() error {
	return s.with("clear_docs", func(ns *namespace) error {
		s.trace("CLEAR_DOCS", slog.String("table", ns.names.Doc))
		return s.write(ns, "clear_docs", ns.names.Doc, func(tx *storeTx) error {
			return tx.btx.DocClear(ns.names.Doc)
		})
	})
}

// Clear resets the namespace: every document and every key-value entry,
// including the TagName, is removed.
func (s *Store) Clear() error {
	return s.with("clear", func(ns *namespace) error {
		s.trace("CLEAR", slog.String("tables", ns.names.String()))
		return s.write(ns, "clear", ns.names.Doc, func(tx *storeTx) error {
			if err := tx.btx.DocClear(ns.names.Doc); err != nil {
				return err
			}
			tx.stageClearKeys()
			return tx.btx.KVClear(ns.names.KV)
		})
	})
}
