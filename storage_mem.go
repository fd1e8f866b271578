package cabinet

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"sync"
)

type memStorage struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[string]*memBucket
	closed  bool
	writer  bool
}

// newMemStorage returns a transient in-memory storage implementation
// intended for tests.
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

	// Snapshot the entire DB for transactional isolation (simplicity over
	// efficiency).
	snap := make(map[string]*memBucket, len(s.buckets))
	for k, b := range s.buckets {
		snap[k] = b.clone()
	}

	return &memTx{
		writable: writable,
		base:     s,
		buckets:  snap,
	}, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	if s.cond != nil {
		s.cond.Broadcast()
	}
	return nil
}

type memTx struct {
	base     *memStorage
	writable bool
	buckets  map[string]*memBucket
	closed   bool
}

func (tx *memTx) Writable() bool { return tx.writable }

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

func (tx *memTx) Bucket(name string) storageBucket {
	if tx.closed {
		panic("tx is closed")
	}
	b := tx.buckets[name]
	if b == nil {
		return nil
	}
	return memBucketHandle{tx: tx, b: b}
}

func (tx *memTx) CreateBucket(name string) (storageBucket, error) {
	if tx.closed {
		panic("tx is closed")
	}
	if !tx.writable {
		return nil, fmt.Errorf("cannot create bucket in read-only tx")
	}
	b := tx.buckets[name]
	if b == nil {
		b = newMemBucket()
		tx.buckets[name] = b
	}
	return memBucketHandle{tx: tx, b: b}, nil
}

func (tx *memTx) Commit() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.closed {
		return fmt.Errorf("tx already closed")
	}
	if !tx.writable {
		tx.closeLocked()
		return fmt.Errorf("cannot commit read-only tx")
	}
	if !tx.base.closed {
		tx.base.buckets = tx.buckets
	}
	tx.closeLocked()
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

type memBucket struct {
	keys   [][]byte // sorted
	values map[string][]byte
}

func newMemBucket() *memBucket {
	return &memBucket{values: make(map[string][]byte)}
}

func (b *memBucket) clone() *memBucket {
	dup := &memBucket{
		keys:   slices.Clone(b.keys),
		values: make(map[string][]byte, len(b.values)),
	}
	for k, v := range b.values {
		dup.values[k] = v
	}
	return dup
}

func (b *memBucket) search(key []byte) (int, bool) {
	i := sort.Search(len(b.keys), func(i int) bool {
		return bytes.Compare(b.keys[i], key) >= 0
	})
	return i, i < len(b.keys) && bytes.Equal(b.keys[i], key)
}

type memBucketHandle struct {
	tx *memTx
	b  *memBucket
}

func (h memBucketHandle) Get(key []byte) []byte {
	return h.b.values[string(key)]
}

func (h memBucketHandle) Put(key, value []byte) error {
	if !h.tx.writable {
		return fmt.Errorf("cannot write in read-only tx")
	}
	i, found := h.b.search(key)
	if !found {
		h.b.keys = slices.Insert(h.b.keys, i, bytes.Clone(key))
	}
	h.b.values[string(key)] = bytes.Clone(value)
	return nil
}

func (h memBucketHandle) Delete(key []byte) error {
	if !h.tx.writable {
		return fmt.Errorf("cannot delete in read-only tx")
	}
	i, found := h.b.search(key)
	if found {
		h.b.keys = slices.Delete(h.b.keys, i, i+1)
		delete(h.b.values, string(key))
	}
	return nil
}

func (h memBucketHandle) Cursor() storageCursor {
	return &memCursor{h: h, pos: -1}
}

func (h memBucketHandle) KeyCount() int { return len(h.b.keys) }

type memCursor struct {
	h   memBucketHandle
	pos int
}

func (c *memCursor) current() ([]byte, []byte) {
	if c.pos < 0 || c.pos >= len(c.h.b.keys) {
		return nil, nil
	}
	k := c.h.b.keys[c.pos]
	return k, c.h.b.values[string(k)]
}

func (c *memCursor) First() ([]byte, []byte) {
	c.pos = 0
	return c.current()
}

func (c *memCursor) Next() ([]byte, []byte) {
	c.pos++
	return c.current()
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	c.pos, _ = c.h.b.search(seek)
	return c.current()
}
