package cabinet

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cabinetdb/cabinet/viewql"
)

// viewRecord is the durable form of a view definition. Records are
// written once by AddView and never updated.
type viewRecord struct {
	Name     string          `msgpack:"n"`
	Source   string          `msgpack:"s"`
	Artifact []byte          `msgpack:"a"`
	Hash     uint64          `msgpack:"h"`
	Columns  []viewql.Column `msgpack:"c"`
	Seq      uint64          `msgpack:"q"`
}

func viewTableName(view string) string {
	return "view:" + view
}

func encodeViewRecord(rec *viewRecord) []byte {
	raw, err := msgpack.Marshal(rec)
	if err != nil {
		panic(fmt.Errorf("encoding view record %q: %w", rec.Name, err))
	}
	return raw
}

func decodeViewRecord(raw []byte) (*viewRecord, error) {
	var rec viewRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding view record: %w", err)
	}
	return &rec, nil
}

func (b *Batch) viewRecordByName(name string) (*viewRecord, error) {
	buck, err := b.bucket(viewsBucket)
	if err != nil {
		return nil, err
	}
	raw := buck.Get([]byte(name))
	if raw == nil {
		return nil, viewNotFound(name)
	}
	return decodeViewRecord(raw)
}

// putViewRecord inserts a definition plus its commit-order entry.
// Callers must have checked for duplicates first.
func (b *Batch) putViewRecord(rec *viewRecord) error {
	if err := b.check(true); err != nil {
		return err
	}
	views, err := b.bucket(viewsBucket)
	if err != nil {
		return err
	}
	seqs, err := b.bucket(viewSeqBucket)
	if err != nil {
		return err
	}

	// Views are never deleted, so the key count doubles as the last
	// assigned sequence number.
	rec.Seq = uint64(seqs.KeyCount()) + 1

	if err := views.Put([]byte(rec.Name), encodeViewRecord(rec)); err != nil {
		return storageErrf("put view record", err)
	}
	var seqKey [8]byte
	binary.BigEndian.PutUint64(seqKey[:], rec.Seq)
	if err := seqs.Put(seqKey[:], []byte(rec.Name)); err != nil {
		return storageErrf("put view seq", err)
	}
	if b.db.verbose {
		b.db.logf("db: PUT view/%s seq=%d hash=%016x", rec.Name, rec.Seq, rec.Hash)
	}
	return nil
}

// ListViews returns view names in the order their registrations
// committed.
func (b *Batch) ListViews() ([]string, error) {
	if err := b.check(false); err != nil {
		return nil, err
	}
	seqs, err := b.bucket(viewSeqBucket)
	if err != nil {
		return nil, err
	}
	var names []string
	c := seqs.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		names = append(names, string(v))
	}
	return names, nil
}

// ViewDefinitionByName returns the registered source text, verbatim.
func (b *Batch) ViewDefinitionByName(name string) (string, error) {
	if err := b.check(false); err != nil {
		return "", err
	}
	rec, err := b.viewRecordByName(name)
	if err != nil {
		return "", err
	}
	return rec.Source, nil
}

// ViewHashByName returns the content hash of the view's compiled
// artifact.
func (b *Batch) ViewHashByName(name string) (uint64, error) {
	if err := b.check(false); err != nil {
		return 0, err
	}
	rec, err := b.viewRecordByName(name)
	if err != nil {
		return 0, err
	}
	return rec.Hash, nil
}

// ViewArtifactByName returns the compiled artifact bytes for reload.
func (b *Batch) ViewArtifactByName(name string) ([]byte, error) {
	if err := b.check(false); err != nil {
		return nil, err
	}
	rec, err := b.viewRecordByName(name)
	if err != nil {
		return nil, err
	}
	return rec.Artifact, nil
}

// ViewSchemaByName returns the view's output columns in declaration
// order.
func (b *Batch) ViewSchemaByName(name string) ([]viewql.Column, error) {
	if err := b.check(false); err != nil {
		return nil, err
	}
	rec, err := b.viewRecordByName(name)
	if err != nil {
		return nil, err
	}
	return rec.Columns, nil
}

// CreateViewTable creates the dedicated output table for a view.
func (b *Batch) CreateViewTable(view string) error {
	if err := b.check(true); err != nil {
		return err
	}
	if _, err := b.stx.CreateBucket(viewTableName(view)); err != nil {
		return storageErrf("create view table "+view, err)
	}
	return nil
}

// AddViewRow inserts one projected record into a view's output table
// under the given row key. Column values must follow the view's schema
// order.
func (b *Batch) AddViewRow(view, key string, row []any) error {
	if err := b.check(true); err != nil {
		return err
	}
	buck := b.stx.Bucket(viewTableName(view))
	if buck == nil {
		return viewNotFound(view)
	}
	raw, err := msgpack.Marshal(row)
	if err != nil {
		return fmt.Errorf("encoding row for view %q: %w", view, err)
	}
	if err := buck.Put([]byte(key), raw); err != nil {
		return storageErrf("put view row", err)
	}
	return nil
}

// ViewRows returns a view's output table contents in row key order.
func (b *Batch) ViewRows(view string) ([][]any, error) {
	if err := b.check(false); err != nil {
		return nil, err
	}
	buck := b.stx.Bucket(viewTableName(view))
	if buck == nil {
		return nil, viewNotFound(view)
	}
	var rows [][]any
	c := buck.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var row []any
		var r bytes.Reader
		r.Reset(v)
		dec := msgpack.GetDecoder()
		dec.Reset(&r)
		err := dec.Decode(&row)
		msgpack.PutDecoder(dec)
		if err != nil {
			return nil, fmt.Errorf("decoding row %q of view %q: %w", k, view, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
