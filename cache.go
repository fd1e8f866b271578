package cabinet

import (
	"sync"
	"sync/atomic"

	"github.com/cabinetdb/cabinet/viewql"
)

// InstanceCache memoizes loaded view transforms by the content hash of
// their compiled artifact, so two views with identical compiled behavior
// share one instance. Entries live for the process lifetime; there is no
// eviction.
type InstanceCache struct {
	catalog *Catalog

	mu        sync.RWMutex
	instances map[uint64]*viewql.Program

	loadMu sync.Mutex // serializes construct-on-miss
	loads  atomic.Uint64
}

func newInstanceCache(catalog *Catalog) *InstanceCache {
	return &InstanceCache{
		catalog:   catalog,
		instances: make(map[uint64]*viewql.Program),
	}
}

// GetOrLoad resolves name to a content hash and returns the shared
// transform instance for that hash, loading it from the persisted
// artifact on first access. For any hash the load happens exactly once,
// no matter how many goroutines race on first access, and every caller
// gets the same *viewql.Program.
func (c *InstanceCache) GetOrLoad(name string) (*viewql.Program, error) {
	// Name resolution happens before any cache access so an unknown
	// name fails the same way whether or not its hash is resident.
	hash, err := c.catalog.ViewHash(name)
	if err != nil {
		return nil, err
	}

	if prog := c.lookup(hash); prog != nil {
		return prog, nil
	}

	// Construction is exclusive with itself only; readers of resident
	// entries keep going through the RLock above while we load.
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if prog := c.lookup(hash); prog != nil {
		return prog, nil
	}

	artifact, err := c.catalog.ViewArtifact(name)
	if err != nil {
		return nil, err
	}
	prog, err := viewql.Load(artifact)
	if err != nil {
		return nil, err
	}
	c.loads.Add(1)

	c.mu.Lock()
	c.instances[hash] = prog
	c.mu.Unlock()
	return prog, nil
}

func (c *InstanceCache) lookup(hash uint64) *viewql.Program {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instances[hash]
}

// Loads reports how many artifact loads the cache has performed.
func (c *InstanceCache) Loads() uint64 {
	return c.loads.Load()
}
