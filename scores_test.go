package tagdb

import (
	"testing"

	"github.com/andreyvit/tagdb/jsonval"
)

func TestScores_HighScores(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		deepEqual(t, must(s.InsertScore(50, "A", jsonval.NullValue(), "")), int64(1))
		deepEqual(t, must(s.InsertScore(80, "B", jsonval.NullValue(), "")), int64(2))
		deepEqual(t, must(s.InsertScore(70, "C", obj(jsonval.F("level", jsonval.Int(3))), "")), int64(3))

		top := must(s.HighScores(2, ""))
		deepEqual(t, fieldStrings(top, "name"), []string{"B", "C"})
		deepEqual(t, top[1].Get("level").AsInt(), int64(3))
		deepEqual(t, top[0].Get("score").AsFloat(), 80.0)

		deepEqual(t, fieldStrings(must(s.HighScores(0, "")), "name"), []string{"B", "C", "A"})
		deepEqual(t, len(must(s.GetByTag("A", 0))), 1)
	})
}

func TestScores_CustomFieldAndTies(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		must(s.InsertScore(10, "A", jsonval.NullValue(), "points"))
		must(s.InsertScore(20, "B", jsonval.NullValue(), "points"))
		must(s.InsertScore(10, "C", jsonval.NullValue(), "points"))
		must(s.Insert(named("no score")))

		deepEqual(t, fieldStrings(must(s.HighScores(10, "points")), "name"), []string{"B", "A", "C", "no score"})
	})
}

func TestScores_RejectsNonObjectMeta(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ec engineCase) {
		s := setup(t, ec)
		_, err := s.InsertScore(1, "A", jsonval.Arr(), "")
		isKind(t, err, ErrInvalidArgument)
		deepEqual(t, must(s.CountDocs()), 0)
	})
}
