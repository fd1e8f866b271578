package cabinet

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"
)

func TestAddDocumentGeneratesDistinctKeys(t *testing.T) {
	store := setup(t)

	k1 := must(store.AddDocument(map[string]any{"title": "one"}))
	time.Sleep(2 * time.Millisecond)
	k2 := must(store.AddDocument(map[string]any{"title": "two"}))

	if k1 == "" || k2 == "" {
		t.Fatalf("generated keys: %q, %q; wanted non-empty", k1, k2)
	}
	if k1 == k2 {
		t.Fatalf("two successive adds generated the same key %q", k1)
	}
	if !(k1 < k2) {
		t.Errorf("generated keys not time-ordered: %q then %q", k1, k2)
	}
}

func TestAddDocumentExplicitID(t *testing.T) {
	store := setup(t)

	key := must(store.AddDocument(map[string]any{"_id": "page-1", "title": "Home"}))
	if key != "page-1" {
		t.Fatalf("AddDocument returned %q, wanted %q", key, "page-1")
	}

	body := must(store.DocumentByKey("page-1"))
	if body == nil || body["title"] != "Home" {
		t.Fatalf("DocumentByKey = %v, wanted the stored body", body)
	}
}

func TestDocumentByKeyAbsent(t *testing.T) {
	store := setup(t)
	body, err := store.DocumentByKey("nope")
	if err != nil {
		t.Fatalf("DocumentByKey(absent): %v", err)
	}
	if body != nil {
		t.Fatalf("DocumentByKey(absent) = %v, wanted nil", body)
	}
}

func TestEditDocument(t *testing.T) {
	store := setup(t)

	must(store.AddDocument(map[string]any{"_id": "d1", "title": "before"}))
	ensureT(t, store.EditDocument(map[string]any{"_id": "d1", "title": "after"}))

	body := must(store.DocumentByKey("d1"))
	if body["title"] != "after" {
		t.Fatalf("title = %v, wanted %q", body["title"], "after")
	}
}

func TestEditDocumentRequiresIdentifier(t *testing.T) {
	store := setup(t)
	must(store.AddDocument(map[string]any{"_id": "d1", "title": "keep"}))

	err := store.EditDocument(map[string]any{"title": "no id"})
	var mie *MissingIdentifierError
	if !errors.As(err, &mie) {
		t.Fatalf("EditDocument without id returned %v, wanted *MissingIdentifierError", err)
	}

	// The failed edit must not have touched anything.
	body := must(store.DocumentByKey("d1"))
	if body["title"] != "keep" {
		t.Fatalf("title = %v, wanted %q", body["title"], "keep")
	}
	deepEqual(t, must(store.CountDocuments()), 1)
}

func TestDeleteDocument(t *testing.T) {
	store := setup(t)
	must(store.AddDocument(map[string]any{"_id": "d1", "title": "x"}))

	ensureT(t, store.DeleteDocument(map[string]any{"_id": "d1"}))
	body := must(store.DocumentByKey("d1"))
	if body != nil {
		t.Fatalf("document survived delete: %v", body)
	}

	// Deleting an absent key is a no-op, not an error.
	ensureT(t, store.DeleteDocument(map[string]any{"_id": "d1"}))

	err := store.DeleteDocument(map[string]any{"title": "no id"})
	var mie *MissingIdentifierError
	if !errors.As(err, &mie) {
		t.Fatalf("DeleteDocument without id returned %v, wanted *MissingIdentifierError", err)
	}
}

func TestDocumentKeysAndCount(t *testing.T) {
	store := setup(t)
	must(store.AddDocument(map[string]any{"_id": "b"}))
	must(store.AddDocument(map[string]any{"_id": "a"}))
	must(store.AddDocument(map[string]any{"_id": "c"}))

	deepEqual(t, must(store.DocumentKeys()), []string{"a", "b", "c"})
	deepEqual(t, must(store.CountDocuments()), 3)
}

func TestBatchCounters(t *testing.T) {
	store := setup(t)
	db := store.DB()

	w0, r0 := db.WriteCount.Load(), db.ReadCount.Load()
	must(store.AddDocument(map[string]any{"_id": "d1"}))
	must(store.DocumentByKey("d1"))

	if got := db.WriteCount.Load(); got != w0+1 {
		t.Errorf("WriteCount = %d, wanted %d", got, w0+1)
	}
	if got := db.ReadCount.Load(); got != r0+1 {
		t.Errorf("ReadCount = %d, wanted %d", got, r0+1)
	}
}

// TestBackends runs a cross-backend smoke scenario so Bolt and SQLite
// get the same coverage as the in-memory backend the other tests use.
func TestBackends(t *testing.T) {
	backends := map[string]func(t testing.TB) *Store{
		"mem":    setup,
		"bolt":   setupBolt,
		"sqlite": setupSQLite,
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			store := open(t)

			key := must(store.AddDocument(map[string]any{"_id": "p1", "title": "Home", "size": 42}))
			deepEqual(t, key, "p1")
			body := must(store.DocumentByKey("p1"))
			deepEqual(t, body["title"], any("Home"))

			ensureT(t, store.AddView("pages", `from doc in docs select new { Key = doc.title, Size = (int)doc.size }`))
			deepEqual(t, must(store.ListViews()), []string{"pages"})
			prog := must(store.ViewInstance("pages"))

			err := store.DB().RunBatch(func(b *Batch) error {
				for _, rec := range prog.Apply(body) {
					if err := b.AddViewRow("pages", "p1", rec); err != nil {
						return err
					}
				}
				return b.Commit()
			})
			ensureT(t, err)

			rows := must(store.ViewRows("pages"))
			if len(rows) != 1 || len(rows[0]) != 2 {
				t.Fatalf("ViewRows = %v, wanted one two-column row", rows)
			}
			deepEqual(t, fmt.Sprint(rows[0][0]), "Home")
			deepEqual(t, fmt.Sprint(rows[0][1]), "42")

			ensureT(t, store.DeleteDocument(map[string]any{"_id": "p1"}))
			isnilmap(t, must(store.DocumentByKey("p1")))
		})
	}
}

func setup(t testing.TB) *Store {
	t.Helper()
	db := must(OpenMem(Options{IsTesting: true}))
	t.Cleanup(db.Close)
	return NewStore(db)
}

func setupBolt(t testing.TB) *Store {
	t.Helper()
	dbFile := must(os.CreateTemp("", "cabinet_test_*.db"))
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db := must(Open(dbFile.Name(), Options{IsTesting: true}))
	t.Cleanup(db.Close)
	return NewStore(db)
}

func setupSQLite(t testing.TB) *Store {
	t.Helper()
	dir := t.TempDir()
	db := must(OpenSQLite(dir+"/cabinet_test.sqlite", Options{IsTesting: true}))
	t.Cleanup(db.Close)
	return NewStore(db)
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isnilmap(t testing.TB, m map[string]any) {
	if m != nil {
		t.Helper()
		t.Errorf("** got %v, wanted nil", m)
	}
}

func ensureT(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** %v", err)
	}
}
