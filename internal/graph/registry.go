package graph

import (
	"database/sql"
	"sync"
)

// sharedDB is a single physical database handle shared by every Adapter
// opened against the same path, refcounted so the handle is closed only
// once the last opener is done with it. This and the recall cache
// generation counter in internal/recall are the only two process-wide
// globals this codebase keeps.
type sharedDB struct {
	db       *sql.DB
	refcount int
}

var (
	registryMu sync.Mutex
	registry   = map[string]*sharedDB{}
)

// acquireShared returns the shared *sql.DB for path, opening it via open
// if this is the first reference, and increments its refcount.
func acquireShared(path string, open func() (*sql.DB, error)) (*sql.DB, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if entry, ok := registry[path]; ok {
		entry.refcount++
		return entry.db, nil
	}

	db, err := open()
	if err != nil {
		return nil, err
	}
	registry[path] = &sharedDB{db: db, refcount: 1}
	return db, nil
}

// releaseShared decrements path's refcount and closes the handle once it
// reaches zero, returning whether this call was the one that closed it.
func releaseShared(path string) (closed bool, err error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	entry, ok := registry[path]
	if !ok {
		return false, nil
	}
	entry.refcount--
	if entry.refcount > 0 {
		return false, nil
	}
	delete(registry, path)
	return true, entry.db.Close()
}

// refcountFor is a test/diagnostic hook reporting the current refcount
// for path, or 0 if path has no open adapters.
func refcountFor(path string) int {
	registryMu.Lock()
	defer registryMu.Unlock()
	if entry, ok := registry[path]; ok {
		return entry.refcount
	}
	return 0
}
