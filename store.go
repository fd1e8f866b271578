package cabinet

import (
	"github.com/cabinetdb/cabinet/viewql"
)

// Store is the host-facing surface of the database: document CRUD plus
// view registration and lookup. It owns the view catalog and the
// process-wide instance cache.
type Store struct {
	db      *DB
	catalog *Catalog
	cache   *InstanceCache
}

func NewStore(db *DB) *Store {
	catalog := newCatalog(db)
	return &Store{
		db:      db,
		catalog: catalog,
		cache:   newInstanceCache(catalog),
	}
}

func (s *Store) DB() *DB { return s.db }

// Catalog returns the view catalog handle.
func (s *Store) Catalog() *Catalog { return s.catalog }

// Cache returns the view instance cache handle.
func (s *Store) Cache() *InstanceCache { return s.cache }

// AddDocument stores body and returns its key: the reserved "_id" field
// when present, else a freshly generated time-ordered identifier.
func (s *Store) AddDocument(body map[string]any) (string, error) {
	key, found := documentID(body)
	if !found {
		key = newDocumentID()
	}
	err := s.db.RunBatch(func(b *Batch) error {
		if err := b.AddDocument(key, body); err != nil {
			return err
		}
		return b.Commit()
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// EditDocument replaces the document named by body's identifier field.
// The replacement is a delete plus reinsert inside one batch, so readers
// never observe the key absent once the batch commits.
func (s *Store) EditDocument(body map[string]any) error {
	key, found := documentID(body)
	if !found {
		return &MissingIdentifierError{Op: "edit document"}
	}
	return s.db.RunBatch(func(b *Batch) error {
		if err := b.DeleteDocument(key); err != nil {
			return err
		}
		if err := b.AddDocument(key, body); err != nil {
			return err
		}
		return b.Commit()
	})
}

// DeleteDocument removes the document named by body's identifier field.
// Deleting an absent key is a no-op, not an error.
func (s *Store) DeleteDocument(body map[string]any) error {
	key, found := documentID(body)
	if !found {
		return &MissingIdentifierError{Op: "delete document"}
	}
	return s.db.RunBatch(func(b *Batch) error {
		if err := b.DeleteDocument(key); err != nil {
			return err
		}
		return b.Commit()
	})
}

// DocumentByKey returns the parsed body stored under key, or nil when
// the key does not exist.
func (s *Store) DocumentByKey(key string) (map[string]any, error) {
	var body map[string]any
	err := s.db.RunRead(func(b *Batch) error {
		var err error
		body, err = b.DocumentByKey(key)
		return err
	})
	return body, err
}

// DocumentKeys returns all document keys in key order.
func (s *Store) DocumentKeys() ([]string, error) {
	var keys []string
	err := s.db.RunRead(func(b *Batch) error {
		var err error
		keys, err = b.DocumentKeys()
		return err
	})
	return keys, err
}

// CountDocuments returns the number of stored documents.
func (s *Store) CountDocuments() (int, error) {
	var n int
	err := s.db.RunRead(func(b *Batch) error {
		var err error
		n, err = b.CountDocuments()
		return err
	})
	return n, err
}

// AddView registers a named view. See Catalog.AddView.
func (s *Store) AddView(name, source string) error {
	return s.catalog.AddView(name, source)
}

// ListViews returns view names in registration commit order.
func (s *Store) ListViews() ([]string, error) {
	return s.catalog.ListViews()
}

// ViewDefinition returns the source text a view was registered with.
func (s *Store) ViewDefinition(name string) (string, error) {
	return s.catalog.ViewDefinition(name)
}

// ViewInstance returns the shared executable transform for a view.
func (s *Store) ViewInstance(name string) (*viewql.Program, error) {
	return s.cache.GetOrLoad(name)
}

// ViewRows returns a view's output table contents in row key order.
func (s *Store) ViewRows(name string) ([][]any, error) {
	var rows [][]any
	err := s.db.RunRead(func(b *Batch) error {
		var err error
		rows, err = b.ViewRows(name)
		return err
	})
	return rows, err
}
