package cabinet

import (
	"bytes"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	_ "modernc.org/sqlite"
)

// sqliteStorage implements storage on a single SQLite database with one
// kv table partitioned by bucket name. Writers are serialized by an
// in-process lock; WAL mode keeps readers on their own snapshot.
type sqliteStorage struct {
	db *sql.DB
	wm sync.Mutex // held by the single writable tx
}

func openSQLiteStorage(path string) (storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=10000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS buckets (
		name TEXT PRIMARY KEY
	);
	CREATE TABLE IF NOT EXISTS kv (
		bucket TEXT NOT NULL,
		k      BLOB NOT NULL,
		v      BLOB NOT NULL,
		PRIMARY KEY (bucket, k)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteStorage{db: db}, nil
}

func (s *sqliteStorage) BeginTx(writable bool) (storageTx, error) {
	if writable {
		s.wm.Lock()
	}
	tx, err := s.db.Begin()
	if err != nil {
		if writable {
			s.wm.Unlock()
		}
		return nil, fmt.Errorf("sqlite begin: %w", err)
	}
	return &sqliteTx{base: s, tx: tx, writable: writable}, nil
}

func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	base     *sqliteStorage
	tx       *sql.Tx
	writable bool
	done     bool
}

func (tx *sqliteTx) Writable() bool { return tx.writable }

func (tx *sqliteTx) finish() {
	if tx.done {
		return
	}
	tx.done = true
	if tx.writable {
		tx.base.wm.Unlock()
	}
}

func (tx *sqliteTx) Bucket(name string) storageBucket {
	var one int
	err := tx.tx.QueryRow(`SELECT 1 FROM buckets WHERE name = ?`, name).Scan(&one)
	if err != nil {
		return nil
	}
	return sqliteBucket{tx: tx, name: name}
}

func (tx *sqliteTx) CreateBucket(name string) (storageBucket, error) {
	if !tx.writable {
		return nil, fmt.Errorf("cannot create bucket in read-only tx")
	}
	_, err := tx.tx.Exec(`INSERT OR IGNORE INTO buckets (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("create bucket %q: %w", name, err)
	}
	return sqliteBucket{tx: tx, name: name}, nil
}

func (tx *sqliteTx) Commit() error {
	if tx.done {
		return fmt.Errorf("tx already closed")
	}
	err := tx.tx.Commit()
	tx.finish()
	return err
}

func (tx *sqliteTx) Rollback() error {
	if tx.done {
		return nil
	}
	err := tx.tx.Rollback()
	tx.finish()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

type sqliteBucket struct {
	tx   *sqliteTx
	name string
}

func (b sqliteBucket) Get(key []byte) []byte {
	var v []byte
	err := b.tx.tx.QueryRow(`SELECT v FROM kv WHERE bucket = ? AND k = ?`, b.name, key).Scan(&v)
	if err != nil {
		return nil
	}
	return v
}

func (b sqliteBucket) Put(key, value []byte) error {
	if !b.tx.writable {
		return fmt.Errorf("cannot write in read-only tx")
	}
	_, err := b.tx.tx.Exec(
		`INSERT INTO kv (bucket, k, v) VALUES (?, ?, ?)
		 ON CONFLICT (bucket, k) DO UPDATE SET v = excluded.v`,
		b.name, key, value)
	return err
}

func (b sqliteBucket) Delete(key []byte) error {
	if !b.tx.writable {
		return fmt.Errorf("cannot delete in read-only tx")
	}
	_, err := b.tx.tx.Exec(`DELETE FROM kv WHERE bucket = ? AND k = ?`, b.name, key)
	return err
}

func (b sqliteBucket) KeyCount() int {
	var n int
	err := b.tx.tx.QueryRow(`SELECT COUNT(*) FROM kv WHERE bucket = ?`, b.name).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}

// Cursor materializes the bucket's rows in key order. Buckets here are
// small (catalog entries, test data); document scans over huge SQLite
// buckets would want incremental row iteration instead.
func (b sqliteBucket) Cursor() storageCursor {
	rows, err := b.tx.tx.Query(`SELECT k, v FROM kv WHERE bucket = ? ORDER BY k`, b.name)
	if err != nil {
		return &sqliteCursor{pos: -1}
	}
	defer rows.Close()
	c := &sqliteCursor{pos: -1}
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			break
		}
		c.keys = append(c.keys, k)
		c.values = append(c.values, v)
	}
	return c
}

type sqliteCursor struct {
	keys   [][]byte
	values [][]byte
	pos    int
}

func (c *sqliteCursor) current() ([]byte, []byte) {
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil, nil
	}
	return c.keys[c.pos], c.values[c.pos]
}

func (c *sqliteCursor) First() ([]byte, []byte) {
	c.pos = 0
	return c.current()
}

func (c *sqliteCursor) Next() ([]byte, []byte) {
	c.pos++
	return c.current()
}

func (c *sqliteCursor) Seek(seek []byte) ([]byte, []byte) {
	c.pos = sort.Search(len(c.keys), func(i int) bool {
		return bytes.Compare(c.keys[i], seek) >= 0
	})
	return c.current()
}
