/*
Package viewql compiles view source text into an executable per-document
transform plus an ordered output schema.

A view source is a single comprehension over the document collection:

	from doc in docs
	where doc.kind == "page"
	select new { Key = doc.title, Value = doc.content, Size = (int)doc.size }

The select clause names the output columns in declaration order.
A column's type defaults to text; an explicit (int) or (long) cast makes
it integer, (float) or (double) makes it real. Projected expressions are
member paths rooted at the binding, or literals. The optional where
clause filters documents, which is how a transform produces zero records
for some inputs.

Compile returns a Program whose Artifact is a reproducible serialization
of the compiled form: compiling identical source twice yields identical
artifact bytes, and Load reconstructs an equivalent Program from an
artifact without reparsing.
*/
package viewql

import "fmt"

// ColumnType is the storage type of one output column.
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeInteger ColumnType = "integer"
	TypeReal    ColumnType = "real"
)

// Column is one named, typed output column of a view.
type Column struct {
	Name string     `msgpack:"n"`
	Type ColumnType `msgpack:"t"`
}

// Record is one projected output row, column values in schema order.
type Record []any

// CompileError reports malformed view source. It is returned
// synchronously by Compile; nothing is persisted for a source that does
// not compile.
type CompileError struct {
	Off int // byte offset into the source
	Msg string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("view source: %s (at offset %d)", e.Msg, e.Off)
}

func compileErrf(off int, format string, args ...any) error {
	return &CompileError{Off: off, Msg: fmt.Sprintf(format, args...)}
}
