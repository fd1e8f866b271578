package cabinet

import (
	"github.com/cespare/xxhash/v2"

	"github.com/cabinetdb/cabinet/viewql"
)

// Catalog is the durable registry of view definitions. Registration
// compiles the source, persists the definition together with its
// compiled artifact and content hash, and creates the view's output
// table, all in one batch.
type Catalog struct {
	db *DB
}

func newCatalog(db *DB) *Catalog {
	return &Catalog{db: db}
}

// AddView compiles source and registers it under name. Malformed source
// fails with *viewql.CompileError before anything is persisted; an
// already-registered name fails with *DuplicateViewError.
func (cat *Catalog) AddView(name, source string) error {
	prog, err := viewql.Compile(source)
	if err != nil {
		return err
	}
	artifact := prog.Artifact()

	return cat.db.RunBatch(func(b *Batch) error {
		views, err := b.bucket(viewsBucket)
		if err != nil {
			return err
		}
		if views.Get([]byte(name)) != nil {
			return &DuplicateViewError{Name: name}
		}
		rec := &viewRecord{
			Name:     name,
			Source:   source,
			Artifact: artifact,
			Hash:     xxhash.Sum64(artifact),
			Columns:  prog.Schema(),
		}
		if err := b.putViewRecord(rec); err != nil {
			return err
		}
		if err := b.CreateViewTable(name); err != nil {
			return err
		}
		return b.Commit()
	})
}

// ListViews returns view names in commit order.
func (cat *Catalog) ListViews() ([]string, error) {
	var names []string
	err := cat.db.RunRead(func(b *Batch) error {
		var err error
		names, err = b.ListViews()
		return err
	})
	return names, err
}

// ViewDefinition returns the source text registered under name,
// byte-for-byte.
func (cat *Catalog) ViewDefinition(name string) (string, error) {
	var source string
	err := cat.db.RunRead(func(b *Batch) error {
		var err error
		source, err = b.ViewDefinitionByName(name)
		return err
	})
	return source, err
}

// ViewHash returns the content hash of the view's compiled artifact.
func (cat *Catalog) ViewHash(name string) (uint64, error) {
	var hash uint64
	err := cat.db.RunRead(func(b *Batch) error {
		var err error
		hash, err = b.ViewHashByName(name)
		return err
	})
	return hash, err
}

// ViewArtifact returns the compiled artifact registered under name.
func (cat *Catalog) ViewArtifact(name string) ([]byte, error) {
	var artifact []byte
	err := cat.db.RunRead(func(b *Batch) error {
		var err error
		artifact, err = b.ViewArtifactByName(name)
		return err
	})
	return artifact, err
}

// ViewSchema returns the view's output columns in declaration order.
func (cat *Catalog) ViewSchema(name string) ([]viewql.Column, error) {
	var cols []viewql.Column
	err := cat.db.RunRead(func(b *Batch) error {
		var err error
		cols, err = b.ViewSchemaByName(name)
		return err
	})
	return cols, err
}
