package cabinet

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cabinetdb/cabinet/viewql"
)

const pagesByTitleSrc = `from doc in docs select new { Key = doc.title, Value = doc.content, Size = (int)doc.size }`

func TestViewDefinitionRoundtrip(t *testing.T) {
	store := setup(t)
	ensureT(t, store.AddView("pagesByTitle", pagesByTitleSrc))

	src := must(store.ViewDefinition("pagesByTitle"))
	if src != pagesByTitleSrc {
		t.Fatalf("ViewDefinition returned %q, wanted the registered source verbatim", src)
	}
}

func TestViewSchemaDerivation(t *testing.T) {
	store := setup(t)
	ensureT(t, store.AddView("pagesByTitle", pagesByTitleSrc))

	cols := must(store.Catalog().ViewSchema("pagesByTitle"))
	deepEqual(t, cols, []viewql.Column{
		{Name: "Key", Type: viewql.TypeText},
		{Name: "Value", Type: viewql.TypeText},
		{Name: "Size", Type: viewql.TypeInteger},
	})
}

func TestAddViewDuplicate(t *testing.T) {
	store := setup(t)
	ensureT(t, store.AddView("v", pagesByTitleSrc))

	err := store.AddView("v", `from d in docs select new { Key = d.other }`)
	var dup *DuplicateViewError
	if !errors.As(err, &dup) {
		t.Fatalf("re-registering returned %v, wanted *DuplicateViewError", err)
	}

	// The original definition is untouched.
	deepEqual(t, must(store.ViewDefinition("v")), pagesByTitleSrc)
	deepEqual(t, must(store.ListViews()), []string{"v"})
}

func TestListViewsCommitOrder(t *testing.T) {
	store := setup(t)

	ensureT(t, store.AddView("charlie", pagesByTitleSrc))
	ensureT(t, store.AddView("alpha", pagesByTitleSrc))
	ensureT(t, store.AddView("bravo", pagesByTitleSrc))

	deepEqual(t, must(store.ListViews()), []string{"charlie", "alpha", "bravo"})
}

func TestAddViewCompileFailureLeavesNoState(t *testing.T) {
	store := setup(t)

	err := store.AddView("broken", `from doc in docs select new {`)
	var ce *viewql.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("AddView(bad source) returned %v, wanted *viewql.CompileError", err)
	}

	if names := must(store.ListViews()); len(names) != 0 {
		t.Fatalf("failed view appears in catalog: %v", names)
	}
	if _, err := store.ViewDefinition("broken"); err == nil {
		t.Fatalf("ViewDefinition for failed view succeeded")
	}

	// No output table either: writing to it inside a batch must fail.
	err = store.DB().RunBatch(func(b *Batch) error {
		return b.AddViewRow("broken", "k", []any{"v"})
	})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("AddViewRow into missing table = %v, wanted *NotFoundError", err)
	}
}

func TestViewLookupsNotFound(t *testing.T) {
	store := setup(t)

	var nf *NotFoundError
	if _, err := store.ViewDefinition("ghost"); !errors.As(err, &nf) {
		t.Errorf("ViewDefinition(ghost) = %v, wanted *NotFoundError", err)
	}
	if _, err := store.Catalog().ViewHash("ghost"); !errors.As(err, &nf) {
		t.Errorf("ViewHash(ghost) = %v, wanted *NotFoundError", err)
	}
	if _, err := store.Catalog().ViewArtifact("ghost"); !errors.As(err, &nf) {
		t.Errorf("ViewArtifact(ghost) = %v, wanted *NotFoundError", err)
	}
	if _, err := store.ViewInstance("ghost"); !errors.As(err, &nf) {
		t.Errorf("ViewInstance(ghost) = %v, wanted *NotFoundError", err)
	}
}

func TestViewHashMatchesArtifact(t *testing.T) {
	store := setup(t)
	ensureT(t, store.AddView("v1", pagesByTitleSrc))
	ensureT(t, store.AddView("v2", pagesByTitleSrc))

	h1 := must(store.Catalog().ViewHash("v1"))
	h2 := must(store.Catalog().ViewHash("v2"))
	if h1 != h2 {
		t.Fatalf("identical sources hashed differently: %016x vs %016x", h1, h2)
	}

	ensureT(t, store.AddView("v3", `from d in docs select new { Key = d.name }`))
	h3 := must(store.Catalog().ViewHash("v3"))
	if h3 == h1 {
		t.Fatalf("different sources share hash %016x", h3)
	}
}

func TestViewRowsFollowSchemaOrder(t *testing.T) {
	store := setup(t)
	ensureT(t, store.AddView("pagesByTitle", pagesByTitleSrc))

	must(store.AddDocument(map[string]any{"_id": "p1", "title": "Home", "content": "welcome", "size": 42}))
	body := must(store.DocumentByKey("p1"))
	prog := must(store.ViewInstance("pagesByTitle"))

	err := store.DB().RunBatch(func(b *Batch) error {
		for _, rec := range prog.Apply(body) {
			if err := b.AddViewRow("pagesByTitle", "p1", rec); err != nil {
				return err
			}
		}
		return b.Commit()
	})
	ensureT(t, err)

	rows := must(store.ViewRows("pagesByTitle"))
	if len(rows) != 1 {
		t.Fatalf("ViewRows = %v, wanted one row", rows)
	}
	deepEqual(t, fmt.Sprint(rows[0][0]), "Home")
	deepEqual(t, fmt.Sprint(rows[0][1]), "welcome")
	deepEqual(t, fmt.Sprint(rows[0][2]), "42")
}

func TestAddViewIsAtomic(t *testing.T) {
	store := setup(t)
	ensureT(t, store.AddView("v", pagesByTitleSrc))

	// A duplicate registration aborts before any writes; seq stays where
	// it was, so the next successful registration lands right after.
	_ = store.AddView("v", pagesByTitleSrc)
	ensureT(t, store.AddView("w", pagesByTitleSrc))
	deepEqual(t, must(store.ListViews()), []string{"v", "w"})
}
