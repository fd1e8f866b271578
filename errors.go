package cabinet

import "fmt"

// NotFoundError reports a lookup of an unknown view name.
type NotFoundError struct {
	Kind string // "view"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %q", e.Kind, e.Name)
}

func viewNotFound(name string) error {
	return &NotFoundError{Kind: "view", Name: name}
}

// DuplicateViewError reports an AddView call for a name that is already
// registered. Definitions are immutable, so re-registration is rejected
// rather than overwriting.
type DuplicateViewError struct {
	Name string
}

func (e *DuplicateViewError) Error() string {
	return fmt.Sprintf("view already exists: %q", e.Name)
}

// MissingIdentifierError reports an edit or delete of a document body
// that carries no identifier field.
type MissingIdentifierError struct {
	Op string
}

func (e *MissingIdentifierError) Error() string {
	return fmt.Sprintf("%s: document body has no %q field", e.Op, DocumentIDField)
}

// StorageError wraps an opaque backend failure that aborted a batch.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func storageErrf(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
