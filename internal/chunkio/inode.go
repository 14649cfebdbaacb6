package chunkio

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// hashPath derives a stable 64-bit, non-cryptographic inode number from a
// path. Inode 0 is reserved by the kernel, so a zero hash is remapped to 1.
func hashPath(path string) uint64 {
	h := xxhash.Sum64String(path)
	if h == 0 {
		return 1
	}
	return h
}

// inodeCache maps paths to inode numbers and back. Two distinct paths can
// legitimately hash to the same inode; resolving ino back to a path is a
// linear scan over the candidates that have ever mapped to it, which is
// acceptable because the agent keeps its own path↔entry cache rather than
// treating ino as a primary key the way a local filesystem would.
type inodeCache struct {
	mu         sync.RWMutex
	candidates map[uint64][]string
	seen       map[string]struct{}
}

func newInodeCache() *inodeCache {
	return &inodeCache{
		candidates: make(map[uint64][]string),
		seen:       make(map[string]struct{}),
	}
}

// Ino returns the inode number for path, recording path as a candidate for
// that number so a later Resolve can find it.
func (c *inodeCache) Ino(path string) uint64 {
	ino := hashPath(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[path]; !ok {
		c.seen[path] = struct{}{}
		c.candidates[ino] = append(c.candidates[ino], path)
	}
	return ino
}

// Resolve finds a path for ino among known candidates for which exists
// returns true, in first-registered order.
func (c *inodeCache) Resolve(ino uint64, exists func(path string) bool) (string, bool) {
	c.mu.RLock()
	paths := append([]string(nil), c.candidates[ino]...)
	c.mu.RUnlock()
	for _, p := range paths {
		if exists(p) {
			return p, true
		}
	}
	return "", false
}

// Forget drops a path from the cache, e.g. after it is unlinked.
func (c *inodeCache) Forget(path string) {
	ino := hashPath(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, path)
	kept := c.candidates[ino][:0]
	for _, p := range c.candidates[ino] {
		if p != path {
			kept = append(kept, p)
		}
	}
	c.candidates[ino] = kept
}
