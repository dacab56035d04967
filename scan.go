package tagdb

import "bytes"

// RawRange defines a range of byte strings. The constructors use mnemonics:
// O means open, I means inclusive; the first letter is for the lower bound,
// the second for the upper bound. Exclusive bounds are set on the struct.
type RawRange struct {
	Prefix   []byte
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
	Reverse  bool
}

func RawOO() RawRange                    { return RawRange{} }
func RawIO(l []byte) RawRange            { return RawRange{Lower: l, LowerInc: true} }
func RawOI(u []byte) RawRange            { return RawRange{Upper: u, UpperInc: true} }
func RawPrefix(p []byte) RawRange        { return RawRange{Prefix: p} }
func (rang RawRange) Reversed() RawRange { rang.Reverse = true; return rang }

func (r *RawRange) start(bcur storageCursor) ([]byte, []byte) {
	var k, v []byte
	var skipInitial bool
	if r.Reverse {
		upper := r.Upper
		if upper != nil {
			skipInitial = !r.UpperInc
			if r.Prefix != nil && !bytes.HasPrefix(upper, r.Prefix) {
				panic("upper bound does not match prefix")
			}
		} else if r.Prefix != nil {
			upper = r.Prefix
		}
		if upper != nil {
			k, v = bcur.SeekLast(upper)
			if skipInitial && !bytes.HasPrefix(k, upper) {
				skipInitial = false
			}
		} else {
			k, v = bcur.Last()
		}
	} else {
		lower := r.Lower
		if lower != nil {
			skipInitial = !r.LowerInc
			if r.Prefix != nil && !bytes.HasPrefix(lower, r.Prefix) {
				panic("lower bound does not match prefix")
			}
		} else if r.Prefix != nil {
			lower = r.Prefix
		}
		if lower != nil {
			k, v = bcur.Seek(lower)
			if skipInitial && !bytes.HasPrefix(k, lower) {
				skipInitial = false
			}
		} else {
			k, v = bcur.First()
		}
	}
	if k != nil && r.match(k) {
		if skipInitial {
			return r.next(bcur)
		}
		return k, v
	}
	return nil, nil
}

func (r *RawRange) next(bcur storageCursor) ([]byte, []byte) {
	var k, v []byte
	if r.Reverse {
		k, v = bcur.Prev()
	} else {
		k, v = bcur.Next()
	}
	if k != nil && r.match(k) {
		return k, v
	}
	return nil, nil
}

func (r *RawRange) match(k []byte) bool {
	if r.Prefix != nil && !bytes.HasPrefix(k, r.Prefix) {
		return false
	}
	if r.Reverse {
		if lower := r.Lower; lower != nil {
			cmp := bytes.Compare(k, lower)
			if cmp == -1 || (cmp == 0 && !r.LowerInc) {
				return false
			}
		}
	} else {
		if upper := r.Upper; upper != nil {
			cmp := bytes.Compare(k, upper)
			if cmp == 1 || (cmp == 0 && !r.UpperInc) {
				return false
			}
		}
	}
	return true
}

func (rang *RawRange) newCursor(bcur storageCursor) *RawRangeCursor {
	return &RawRangeCursor{rang: *rang, bcur: bcur}
}

// RawRangeCursor walks a bucket within a RawRange.
type RawRangeCursor struct {
	rang RawRange
	bcur storageCursor
	k, v []byte
	init bool
}

func (c *RawRangeCursor) Next() bool {
	if c.init {
		c.k, c.v = c.rang.next(c.bcur)
	} else {
		c.init = true
		c.k, c.v = c.rang.start(c.bcur)
	}
	return c.k != nil
}

func (c *RawRangeCursor) Key() []byte   { return c.k }
func (c *RawRangeCursor) Value() []byte { return c.v }
