package localcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/wyvernglobal/junknas/internal/metaauth"
)

func openTestCache(t *testing.T, ttl time.Duration) *FsEntryCache {
	t.Helper()
	c, err := OpenFsEntryCache(filepath.Join(t.TempDir(), "fsentries.db"), ttl)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutAndGetFresh(t *testing.T) {
	c := openTestCache(t, time.Minute)
	entry := metaauth.FsEntry{Path: "/a.txt", NodeType: metaauth.File, Size: 10}
	if err := c.Put(entry); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, fresh, found, err := c.Get("/a.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || !fresh {
		t.Fatalf("expected fresh hit, found=%v fresh=%v", found, fresh)
	}
	if got.Size != 10 {
		t.Fatalf("unexpected size: %d", got.Size)
	}
}

func TestGetMissing(t *testing.T) {
	c := openTestCache(t, time.Minute)
	_, _, found, err := c.Get("/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("expected no entry for missing path")
	}
}

func TestEntryGoesStaleAfterTTL(t *testing.T) {
	c := openTestCache(t, time.Nanosecond)
	if err := c.Put(metaauth.FsEntry{Path: "/a.txt"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(time.Millisecond)
	_, fresh, found, err := c.Get("/a.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("expected entry to still be present though stale")
	}
	if fresh {
		t.Fatalf("expected entry to be stale")
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := openTestCache(t, time.Minute)
	if err := c.Put(metaauth.FsEntry{Path: "/a.txt"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Invalidate("/a.txt"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _, found, err := c.Get("/a.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("expected entry to be gone after invalidate")
	}
}
