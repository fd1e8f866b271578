package cabinet

import (
	"errors"
	"strings"
	"testing"
)

func TestBatchAbortsOnError(t *testing.T) {
	store := setup(t)
	db := store.DB()

	boom := errors.New("boom")
	err := db.RunBatch(func(b *Batch) error {
		if err := b.AddDocument("d1", map[string]any{"x": 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunBatch = %v, wanted boom", err)
	}
	isnilmap(t, must(store.DocumentByKey("d1")))
}

func TestBatchAbortsWithoutCommit(t *testing.T) {
	store := setup(t)
	db := store.DB()

	err := db.RunBatch(func(b *Batch) error {
		return b.AddDocument("d1", map[string]any{"x": 1})
	})
	ensureT(t, err)
	isnilmap(t, must(store.DocumentByKey("d1")))
}

func TestBatchCommitsDurably(t *testing.T) {
	store := setup(t)
	db := store.DB()

	err := db.RunBatch(func(b *Batch) error {
		if err := b.AddDocument("d1", map[string]any{"x": 1}); err != nil {
			return err
		}
		return b.Commit()
	})
	ensureT(t, err)

	body := must(store.DocumentByKey("d1"))
	if body == nil {
		t.Fatalf("committed document missing")
	}
}

func TestBatchRecoversPanics(t *testing.T) {
	store := setup(t)
	db := store.DB()

	err := db.RunBatch(func(b *Batch) error {
		ensure(b.AddDocument("d1", map[string]any{"x": 1}))
		panic("kaboom")
	})
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("RunBatch = %v, wanted recovered panic", err)
	}
	isnilmap(t, must(store.DocumentByKey("d1")))
}

func TestBatchCommitTwiceFails(t *testing.T) {
	store := setup(t)
	db := store.DB()

	err := db.RunBatch(func(b *Batch) error {
		if err := b.AddDocument("d1", map[string]any{"x": 1}); err != nil {
			return err
		}
		if err := b.Commit(); err != nil {
			return err
		}
		return b.Commit()
	})
	if err == nil {
		t.Fatalf("double commit succeeded, wanted error")
	}
	// The whole batch aborts, including the part before the first commit.
	isnilmap(t, must(store.DocumentByKey("d1")))
}

func TestBatchRejectsOperationsAfterCommit(t *testing.T) {
	store := setup(t)
	db := store.DB()

	err := db.RunBatch(func(b *Batch) error {
		if err := b.Commit(); err != nil {
			return err
		}
		err := b.AddDocument("late", map[string]any{"x": 1})
		if !errors.Is(err, ErrBatchCommitted) {
			t.Errorf("AddDocument after commit = %v, wanted ErrBatchCommitted", err)
		}
		return nil
	})
	ensureT(t, err)
	isnilmap(t, must(store.DocumentByKey("late")))
}

func TestReadBatchCannotCommitOrMutate(t *testing.T) {
	store := setup(t)
	db := store.DB()

	err := db.RunRead(func(b *Batch) error {
		if err := b.Commit(); err == nil {
			t.Errorf("Commit on read batch succeeded, wanted error")
		}
		if err := b.AddDocument("d1", map[string]any{"x": 1}); err == nil {
			t.Errorf("AddDocument on read batch succeeded, wanted error")
		}
		return nil
	})
	ensureT(t, err)
	isnilmap(t, must(store.DocumentByKey("d1")))
}

func TestBatchIsolation(t *testing.T) {
	store := setup(t)
	db := store.DB()

	must(store.AddDocument(map[string]any{"_id": "d1", "v": "old"}))

	// A batch sees its own uncommitted writes.
	err := db.RunBatch(func(b *Batch) error {
		if err := b.AddDocument("d1", map[string]any{"_id": "d1", "v": "new"}); err != nil {
			return err
		}
		body, err := b.DocumentByKey("d1")
		if err != nil {
			return err
		}
		deepEqual(t, body["v"], any("new"))
		return b.Commit()
	})
	ensureT(t, err)

	body := must(store.DocumentByKey("d1"))
	deepEqual(t, body["v"], any("new"))
}
