package cabinet

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrBatchCommitted is returned by batch operations attempted after
// Commit has been called.
var ErrBatchCommitted = errors.New("batch already committed")

// Batch is one atomic unit of work against the storage backend. All
// mutations pass through a Batch; effects become durable only when the
// batch function calls Commit exactly once and returns nil. Returning an
// error, panicking, or returning without Commit discards everything.
type Batch struct {
	db        *DB
	stx       storageTx
	writable  bool
	committed bool
}

// RunBatch opens one writable transaction, invokes f with the batch
// handle, and finishes the transaction: backend commit if f called
// Commit and returned nil, rollback otherwise. A panic inside f is
// recovered into an error and aborts the batch.
func (db *DB) RunBatch(f func(b *Batch) error) error {
	db.WriteCount.Add(1)
	stx, err := db.stg.BeginTx(true)
	if err != nil {
		return storageErrf("begin", err)
	}
	b := &Batch{db: db, stx: stx, writable: true}

	err = safelyCall(f, b)
	if err != nil || !b.committed {
		rbErr := stx.Rollback()
		if err == nil && rbErr != nil {
			return storageErrf("rollback", rbErr)
		}
		return err
	}
	if err := stx.Commit(); err != nil {
		return storageErrf("commit", err)
	}
	return nil
}

// RunRead opens a read-only transaction. Read batches never commit;
// Commit on them is an error.
func (db *DB) RunRead(f func(b *Batch) error) error {
	db.ReadCount.Add(1)
	stx, err := db.stg.BeginTx(false)
	if err != nil {
		return storageErrf("begin read", err)
	}
	defer stx.Rollback()
	b := &Batch{db: db, stx: stx, writable: false}
	return safelyCall(f, b)
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*Batch) error, b *Batch) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(b)
}

// Commit marks the batch for durable commit. It must be called exactly
// once; a second call fails the batch. The backend commit itself happens
// when the batch function returns nil.
func (b *Batch) Commit() error {
	if !b.writable {
		return fmt.Errorf("cannot commit a read-only batch")
	}
	if b.committed {
		return fmt.Errorf("commit called twice in one batch")
	}
	b.committed = true
	return nil
}

func (b *Batch) check(mutating bool) error {
	if b.committed {
		return ErrBatchCommitted
	}
	if mutating && !b.writable {
		return fmt.Errorf("cannot mutate in a read-only batch")
	}
	return nil
}

func (b *Batch) bucket(name string) (storageBucket, error) {
	buck := b.stx.Bucket(name)
	if buck == nil {
		return nil, storageErrf("bucket "+name, ErrBucketNotFound)
	}
	return buck, nil
}

// AddDocument inserts (or replaces) a document body under key.
func (b *Batch) AddDocument(key string, body map[string]any) error {
	if err := b.check(true); err != nil {
		return err
	}
	buck, err := b.bucket(docsBucket)
	if err != nil {
		return err
	}
	raw, err := encodeBody(body)
	if err != nil {
		return err
	}
	if err := buck.Put([]byte(key), raw); err != nil {
		return storageErrf("put document", err)
	}
	if b.db.verbose {
		b.db.logf("db: PUT doc/%s (%d bytes)", key, len(raw))
	}
	return nil
}

// DeleteDocument removes the document stored under key. Deleting an
// absent key is a no-op.
func (b *Batch) DeleteDocument(key string) error {
	if err := b.check(true); err != nil {
		return err
	}
	buck, err := b.bucket(docsBucket)
	if err != nil {
		return err
	}
	if err := buck.Delete([]byte(key)); err != nil {
		return storageErrf("delete document", err)
	}
	if b.db.verbose {
		b.db.logf("db: DEL doc/%s", key)
	}
	return nil
}

// DocumentByKey returns the parsed body stored under key, or nil if the
// key does not exist.
func (b *Batch) DocumentByKey(key string) (map[string]any, error) {
	if err := b.check(false); err != nil {
		return nil, err
	}
	buck, err := b.bucket(docsBucket)
	if err != nil {
		return nil, err
	}
	raw := buck.Get([]byte(key))
	if raw == nil {
		return nil, nil
	}
	return decodeBody(raw)
}

// DocumentKeys returns all document keys in key order.
func (b *Batch) DocumentKeys() ([]string, error) {
	if err := b.check(false); err != nil {
		return nil, err
	}
	buck, err := b.bucket(docsBucket)
	if err != nil {
		return nil, err
	}
	var keys []string
	c := buck.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, string(k))
	}
	return keys, nil
}

// CountDocuments returns the number of stored documents.
func (b *Batch) CountDocuments() (int, error) {
	if err := b.check(false); err != nil {
		return 0, err
	}
	buck, err := b.bucket(docsBucket)
	if err != nil {
		return 0, err
	}
	return buck.KeyCount(), nil
}
