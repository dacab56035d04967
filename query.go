package tagdb

import (
	"fmt"
	"strconv"

	"github.com/andreyvit/tagdb/jsonval"
)

type filterKind int

const (
	filterNone filterKind = iota
	filterPredicate
	filterFields
	filterInvalid
)

// Filter selects documents for Find. Build one with Where, Match or
// MatchFields; the zero Filter is rejected.
type Filter struct {
	kind   filterKind
	pred   func(jsonval.Value) bool
	fields []jsonval.Field
	err    string
}

// Where selects documents for which pred returns true. The document passed
// to pred has its id injected when it is an object.
//
// pred runs inside the scan, with the Store locked and a read transaction
// open. It must not call into this Store or another Store on the same file.
// Such a call deadlocks on the namespace lock, or on SQLite's single
// connection.
func Where(pred func(doc jsonval.Value) bool) Filter {
	if pred == nil {
		return Filter{kind: filterInvalid, err: "nil predicate"}
	}
	return Filter{kind: filterPredicate, pred: pred}
}

// Match selects object documents whose fields deep-equal every field of obj.
// An empty object matches every document.
func Match(obj jsonval.Value) Filter {
	if !obj.IsObject() {
		return Filter{kind: filterInvalid, err: fmt.Sprintf("match wants an object, got %v", obj.Kind())}
	}
	return Filter{kind: filterFields, fields: obj.Fields()}
}

func MatchFields(fields ...jsonval.Field) Filter {
	return Match(jsonval.Obj(fields...))
}

func (f Filter) compile() (func(jsonval.Value) bool, error) {
	switch f.kind {
	case filterPredicate:
		return f.pred, nil
	case filterFields:
		return matchFields(f.fields), nil
	case filterInvalid:
		return nil, fmt.Errorf("%s", f.err)
	default:
		return nil, fmt.Errorf("no filter given")
	}
}

func matchFields(want []jsonval.Field) func(jsonval.Value) bool {
	return func(doc jsonval.Value) bool {
		if len(want) == 0 {
			return true
		}
		if !doc.IsObject() {
			return false
		}
		for _, f := range want {
			actual, ok := doc.Lookup(f.Name)
			if !ok || !jsonval.Equal(actual, f.Value) {
				return false
			}
		}
		return true
	}
}

type selectorKind int

const (
	selNone selectorKind = iota
	selID
	selTag
	selKey
	selFields
)

// Selector picks the target of Update, DeleteDocs and GetOne. Exactly one
// criterion is set by construction; the zero Selector selects nothing.
type Selector struct {
	kind   selectorKind
	id     int64
	str    string
	fields jsonval.Value
}

func ByID(id int64) Selector { return Selector{kind: selID, id: id} }

func ByTag(tag string) Selector { return Selector{kind: selTag, str: tag} }

// ByKey targets a key-value entry rather than documents.
func ByKey(key string) Selector { return Selector{kind: selKey, str: key} }

// ByFields targets the documents matching every field of obj, as Match does.
func ByFields(obj jsonval.Value) Selector { return Selector{kind: selFields, fields: obj} }

func (sel Selector) IsZero() bool { return sel.kind == selNone }

func (sel Selector) String() string {
	switch sel.kind {
	case selID:
		return "id=" + strconv.FormatInt(sel.id, 10)
	case selTag:
		return "tag=" + strconv.Quote(sel.str)
	case selKey:
		return "key=" + strconv.Quote(sel.str)
	case selFields:
		return "fields=" + sel.fields.String()
	default:
		return "none"
	}
}
