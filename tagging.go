package tagdb

import (
	"log/slog"

	"github.com/andreyvit/tagdb/jsonval"
)

const (
	// TagNameKey is the reserved key-value entry holding the TagName. It is
	// listed by Keys and DumpJSON like any other key.
	TagNameKey = "_tag"
	// DefaultTagName is the TagName of a namespace that never set one.
	DefaultTagName = "tag"
)

// InsertOptions control how a document's tag is chosen.
type InsertOptions struct {
	// Tag is used verbatim when HasTag is set, even if empty.
	Tag    string
	HasTag bool
	// TagField names the document field supplying the tag, instead of the
	// stored TagName.
	TagField string
}

func WithTag(tag string) InsertOptions { return InsertOptions{Tag: tag, HasTag: true} }

func TagFrom(field string) InsertOptions { return InsertOptions{TagField: field} }

// deriveTag picks the tag for v: the explicit tag, else the value of the tag
// field, else the first field of an object. In the last case the name of the
// first field is returned as inferred and becomes the new TagName.
func deriveTag(v jsonval.Value, opt InsertOptions, tagName string) (tag, inferred string) {
	if opt.HasTag {
		return opt.Tag, ""
	}
	field := opt.TagField
	if field == "" {
		field = tagName
	}
	if !v.IsObject() {
		return "", ""
	}
	if fv, ok := v.Lookup(field); ok {
		return tagText(fv), ""
	}
	if f, ok := v.FirstField(); ok {
		return tagText(f.Value), f.Name
	}
	return "", ""
}

// updateTag is the tag an id-based update stores: the TagName field of the
// new value, or "".
func updateTag(v jsonval.Value, tagName string) string {
	if fv, ok := v.Lookup(tagName); ok {
		return tagText(fv)
	}
	return ""
}

// tagText coerces a field value to a tag. Strings are used verbatim, other
// values as their JSON text.
func tagText(v jsonval.Value) string {
	if v.Kind() == jsonval.String {
		return v.AsString()
	}
	return v.String()
}

func (tx *storeTx) tagName() (string, error) {
	if !tx.hasKey(TagNameKey) {
		return DefaultTagName, nil
	}
	row, found, err := tx.btx.KVGet(tx.ns.names.KV, TagNameKey)
	if err != nil || !found {
		return DefaultTagName, err
	}
	v, err := decodeValue(row.Value)
	if err != nil {
		return "", err
	}
	return tagText(v), nil
}

func (tx *storeTx) setTagName(name string) error {
	raw, err := encodeValue(jsonval.Str(name))
	if err != nil {
		return err
	}
	return tx.putKeys([]kvRow{{Key: TagNameKey, Value: raw}})
}

// TagName returns the document field used to derive tags.
func (s *Store) TagName() (string, error) {
	return withNS(s, "tag_name", func(ns *namespace) (string, error) {
		var name string
		err := s.read(ns, "tag_name", ns.names.KV, func(tx *storeTx) error {
			var err error
			name, err = tx.tagName()
			return err
		})
		return name, err
	})
}

func (s *Store) SetTagName(name string) error {
	return s.with("set_tag_name", func(ns *namespace) error {
		s.trace("SET_TAG_NAME", slog.String("table", ns.names.KV), slog.String("name", name))
		return s.write(ns, "set_tag_name", ns.names.KV, func(tx *storeTx) error {
			return tx.setTagName(name)
		})
	})
}
