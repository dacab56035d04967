package tagdb

import (
	"cmp"
	"slices"

	"github.com/andreyvit/tagdb/jsonval"
)

const (
	DefaultScoreField     = "score"
	DefaultHighScoreLimit = 10
)

// InsertScore stores meta with name and score fields set, as a regular
// document. meta must be an object or null.
func (s *Store) InsertScore(score float64, name string, meta jsonval.Value, scoreField string) (int64, error) {
	if meta.IsNull() {
		meta = jsonval.Obj()
	} else if !meta.IsObject() {
		return 0, storeErrf(ErrInvalidArgument, "insert_score", "", nil, "meta must be an object, got %v", meta.Kind())
	}
	if scoreField == "" {
		scoreField = DefaultScoreField
	}
	return s.Insert(meta.With("name", jsonval.Str(name)).With(scoreField, jsonval.Float(score)))
}

// HighScores returns up to limit documents ordered by their numeric score
// field, highest first. Documents without the field count as 0; ties keep id
// order.
func (s *Store) HighScores(limit int, scoreField string) ([]jsonval.Value, error) {
	if limit <= 0 {
		limit = DefaultHighScoreLimit
	}
	if scoreField == "" {
		scoreField = DefaultScoreField
	}
	docs, err := s.GetAll(ScanOptions{})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(docs, func(a, b jsonval.Value) int {
		return cmp.Compare(b.Get(scoreField).AsFloat(), a.Get(scoreField).AsFloat())
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}
