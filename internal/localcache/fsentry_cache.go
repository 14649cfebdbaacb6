// Package localcache gives the agent two local, best-effort stores that
// sit alongside the authoritative controller: a bolt-backed advisory mirror
// of recently-seen FsEntry metadata (to answer repeated lookups without a
// round trip), and a SQLite audit journal of chunk read/write operations.
// Neither store is authoritative; on any doubt the agent re-fetches from
// the metadata authority.
package localcache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"

	"github.com/wyvernglobal/junknas/internal/metaauth"
)

var bucketFsEntries = []byte("fsentries")

// FsEntryCache is an advisory, TTL-bounded mirror of FsEntry lookups.
type FsEntryCache struct {
	db  *bolt.DB
	ttl time.Duration
}

type cachedEntry struct {
	Entry    metaauth.FsEntry `json:"entry"`
	CachedAt int64            `json:"cached_at"`
}

// OpenFsEntryCache opens (creating if necessary) the bolt database at path.
// ttl bounds how long a cached entry is considered fresh; Get still returns
// stale entries alongside a staleness flag so callers can decide whether a
// refetch is worth the round trip.
func OpenFsEntryCache(path string, ttl time.Duration) (*FsEntryCache, error) {
	db, err := bolt.Open(filepath.Clean(path), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("localcache: open: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketFsEntries)
		return e
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("localcache: init bucket: %w", err)
	}
	return &FsEntryCache{db: db, ttl: ttl}, nil
}

// Close releases the underlying bolt database.
func (c *FsEntryCache) Close() error { return c.db.Close() }

// Put caches entry as of now.
func (c *FsEntryCache) Put(entry metaauth.FsEntry) error {
	rec := cachedEntry{Entry: entry, CachedAt: time.Now().Unix()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("localcache: marshal: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFsEntries).Put([]byte(entry.Path), data)
	})
}

// Get returns the cached entry for path, if any, and whether it is still
// within ttl of the moment it was cached.
func (c *FsEntryCache) Get(path string) (entry metaauth.FsEntry, fresh bool, found bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFsEntries).Get([]byte(path))
		if v == nil {
			return nil
		}
		var rec cachedEntry
		if e := json.Unmarshal(v, &rec); e != nil {
			return e
		}
		found = true
		entry = rec.Entry
		fresh = time.Since(time.Unix(rec.CachedAt, 0)) < c.ttl
		return nil
	})
	if err != nil {
		return metaauth.FsEntry{}, false, false, fmt.Errorf("localcache: get: %w", err)
	}
	return entry, fresh, found, nil
}

// Invalidate drops path from the cache, used after a write or delete so a
// stale mirror never outlives the change that made it stale.
func (c *FsEntryCache) Invalidate(path string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFsEntries).Delete([]byte(path))
	})
}
