package cabinet

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

// Core buckets. View output tables get their own buckets, named by
// viewTableName, created as views are registered.
const (
	docsBucket    = "docs"
	viewsBucket   = "views"
	viewSeqBucket = "viewseq"
)

type DB struct {
	stg     storage
	logf    func(format string, args ...any)
	verbose bool

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

type Options struct {
	Logf      func(format string, args ...any)
	Verbose   bool
	IsTesting bool
	MmapSize  int
}

// Open opens a Bolt-backed database at path.
func Open(path string, opt Options) (*DB, error) {
	bopt := &bbolt.Options{
		Timeout: 10 * time.Second,
	}
	*bopt = *bbolt.DefaultOptions
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("cabinet: %w", err)
	}
	return newDB(newBoltStorage(bdb), opt)
}

// OpenSQLite opens a SQLite-backed database at path.
func OpenSQLite(path string, opt Options) (*DB, error) {
	stg, err := openSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("cabinet: %w", err)
	}
	return newDB(stg, opt)
}

// OpenMem opens a transient in-memory database, for tests.
func OpenMem(opt Options) (*DB, error) {
	return newDB(newMemStorage(), opt)
}

func newDB(stg storage, opt Options) (*DB, error) {
	db := &DB{
		stg:     stg,
		logf:    opt.Logf,
		verbose: opt.Verbose,
	}
	if db.logf == nil {
		db.logf = func(format string, args ...any) {}
	}

	err := db.RunBatch(func(b *Batch) error {
		for _, name := range []string{docsBucket, viewsBucket, viewSeqBucket} {
			if _, err := b.stx.CreateBucket(name); err != nil {
				return storageErrf("create bucket "+name, err)
			}
		}
		return b.Commit()
	})
	if err != nil {
		stg.Close()
		return nil, fmt.Errorf("cabinet: preparing buckets: %w", err)
	}
	return db, nil
}

func (db *DB) Close() {
	err := db.stg.Close()
	if err != nil {
		panic(fmt.Errorf("cabinet: closing: %w", err))
	}
}
