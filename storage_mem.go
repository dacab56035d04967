package tagdb

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
)

const memBucketSep = "\x00"

// memStorage is a transient copy-on-write storage. Committed buckets are
// never mutated: a write transaction clones a bucket the first time it
// touches it, and Commit swaps in the new bucket map.
type memStorage struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[string]*memBucket
	closed  bool
	writer  bool
}

// newMemStorage returns a transient in-memory storage. It backs the InMemory
// file id and lives until the last namespace on it is released.
func newMemStorage() storage {
	s := &memStorage{buckets: make(map[string]*memBucket)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("storage closed")
	}
	if writable {
		for s.writer && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, fmt.Errorf("storage closed")
		}
		s.writer = true
	}
	tx := &memTx{
		base:     s,
		writable: writable,
		buckets:  maps.Clone(s.buckets),
	}
	if writable {
		tx.owned = make(map[string]bool)
	}
	return tx, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	s.cond.Broadcast()
	return nil
}

type memTx struct {
	base     *memStorage
	writable bool
	buckets  map[string]*memBucket
	owned    map[string]bool // buckets already cloned by this tx
	closed   bool
}

func (tx *memTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

func (tx *memTx) checkOpen() {
	if tx.closed {
		panic("tx is closed")
	}
}

// mutable returns a bucket this tx may modify, cloning the committed one on
// first use.
func (tx *memTx) mutable(key string) (*memBucket, error) {
	if !tx.writable {
		return nil, fmt.Errorf("tx not writable")
	}
	b := tx.buckets[key]
	if b == nil {
		return nil, ErrBucketNotFound
	}
	if !tx.owned[key] {
		b = b.clone()
		tx.buckets[key] = b
		tx.owned[key] = true
	}
	return b, nil
}

func (tx *memTx) Bucket(name, sub string) storageBucket {
	tx.checkOpen()
	key := memBucketKey(name, sub)
	if tx.buckets[key] == nil {
		return nil
	}
	return memBucketHandle{tx: tx, key: key}
}

func (tx *memTx) CreateBucket(name, sub string) (storageBucket, error) {
	tx.checkOpen()
	if !tx.writable {
		return nil, fmt.Errorf("tx not writable")
	}
	// Nested buckets imply their root, as in Bolt.
	for _, key := range []string{memBucketKey(name, ""), memBucketKey(name, sub)} {
		if tx.buckets[key] == nil {
			tx.buckets[key] = &memBucket{}
			tx.owned[key] = true
		}
	}
	return memBucketHandle{tx: tx, key: memBucketKey(name, sub)}, nil
}

func (tx *memTx) DeleteBucket(name, sub string) error {
	tx.checkOpen()
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	if sub == "" {
		return ErrBucketNotFound
	}
	key := memBucketKey(name, sub)
	if tx.buckets[key] == nil {
		return ErrBucketNotFound
	}
	delete(tx.buckets, key)
	delete(tx.owned, key)
	return nil
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return nil
	}
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.base.closed {
		tx.closeLocked()
		return fmt.Errorf("storage closed")
	}
	tx.base.buckets = tx.buckets
	tx.closeLocked()
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

// Size is the total key and value bytes visible to the tx.
func (tx *memTx) Size() int64 {
	var n int64
	for _, b := range tx.buckets {
		n += b.bytes()
	}
	return n
}

func memBucketKey(name, sub string) string {
	return name + memBucketSep + sub
}

// memBucket holds items sorted by key. Keys and values are copied on Put
// and never modified in place, so a clone may share them.
type memBucket struct {
	items []memKV
	seq   uint64
}

func (b *memBucket) clone() *memBucket {
	return &memBucket{items: slices.Clone(b.items), seq: b.seq}
}

func (b *memBucket) bytes() int64 {
	var n int64
	for _, kv := range b.items {
		n += int64(len(kv.key) + len(kv.value))
	}
	return n
}

func (b *memBucket) find(key []byte) (idx int, ok bool) {
	i := sort.Search(len(b.items), func(i int) bool {
		return bytes.Compare(b.items[i].key, key) >= 0
	})
	return i, i < len(b.items) && bytes.Equal(b.items[i].key, key)
}

type memKV struct {
	key   []byte
	value []byte
}

// memBucketHandle resolves its bucket through the tx on every call, so it
// observes the tx's private copy once one exists.
type memBucketHandle struct {
	tx  *memTx
	key string
}

func (h memBucketHandle) current() *memBucket {
	if b := h.tx.buckets[h.key]; b != nil {
		return b
	}
	return &memBucket{}
}

func (h memBucketHandle) Get(key []byte) []byte {
	b := h.current()
	i, ok := b.find(key)
	if !ok {
		return nil
	}
	return b.items[i].value
}

func (h memBucketHandle) Put(key, value []byte) error {
	b, err := h.tx.mutable(h.key)
	if err != nil {
		return err
	}
	kv := memKV{key: slices.Clone(key), value: slices.Clone(value)}
	if i, ok := b.find(key); ok {
		b.items[i] = kv
	} else {
		b.items = slices.Insert(b.items, i, kv)
	}
	return nil
}

func (h memBucketHandle) Delete(key []byte) error {
	b, err := h.tx.mutable(h.key)
	if err != nil {
		return err
	}
	if i, ok := b.find(key); ok {
		b.items = slices.Delete(b.items, i, i+1)
	}
	return nil
}

func (h memBucketHandle) Cursor() storageCursor {
	return &memCursor{h: h, pos: -1}
}

func (h memBucketHandle) NextSequence() (uint64, error) {
	b, err := h.tx.mutable(h.key)
	if err != nil {
		return 0, err
	}
	b.seq++
	return b.seq, nil
}

func (h memBucketHandle) Stats() bucketStats {
	b := h.current()
	inuse := b.bytes()
	return bucketStats{
		KeyN:      len(b.items),
		LeafInuse: inuse,
		LeafAlloc: inuse,
	}
}

func (h memBucketHandle) KeyCount() int { return len(h.current().items) }

type memCursor struct {
	h   memBucketHandle
	pos int
}

func (c *memCursor) at(pos int) ([]byte, []byte) {
	items := c.h.current().items
	c.pos = pos
	if pos < 0 || pos >= len(items) {
		return nil, nil
	}
	return items[pos].key, items[pos].value
}

func (c *memCursor) First() ([]byte, []byte) {
	return c.at(0)
}

func (c *memCursor) Last() ([]byte, []byte) {
	n := len(c.h.current().items)
	if n == 0 {
		return c.at(0)
	}
	return c.at(n - 1)
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	i, _ := c.h.current().find(seek)
	return c.at(i)
}

func (c *memCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	limit := slices.Clone(prefix)
	if len(limit) == 0 || !inc(limit) {
		return c.Last()
	}
	i, _ := c.h.current().find(limit)
	if i == 0 {
		c.pos = 0
		return nil, nil
	}
	return c.at(i - 1)
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos < 0 {
		return c.First()
	}
	return c.at(c.pos + 1)
}

func (c *memCursor) Prev() ([]byte, []byte) {
	if c.pos <= 0 {
		c.pos = -1
		return nil, nil
	}
	return c.at(c.pos - 1)
}
