package chunkio

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/wyvernglobal/junknas/internal/chunkstore"
	"github.com/wyvernglobal/junknas/internal/ferr"
	"github.com/wyvernglobal/junknas/internal/localcache"
	"github.com/wyvernglobal/junknas/internal/metaauth"
	"github.com/wyvernglobal/junknas/internal/placement"
)

// fakeMetaClient wraps a metaauth.Store directly, for single-node tests
// that don't need the HTTP hop.
type fakeMetaClient struct {
	store      *metaauth.Store
	selfNodeID string
	freeBytes  uint64
	meshScore  float64
}

func (f *fakeMetaClient) Lookup(path string) (metaauth.FsEntry, error) { return f.store.Lookup(path) }
func (f *fakeMetaClient) List(path string) (map[string]metaauth.FsEntry, error) {
	return f.store.List(path)
}
func (f *fakeMetaClient) Create(path string, nodeType metaauth.NodeType, mode uint32) (metaauth.FsEntry, error) {
	return f.store.Create(path, nodeType, mode)
}
func (f *fakeMetaClient) UpdateSize(path string, size uint64) error {
	return f.store.UpdateSize(path, size)
}
func (f *fakeMetaClient) UpdateChunks(path string, chunks []metaauth.ChunkMeta) error {
	return f.store.UpdateChunks(path, chunks)
}
func (f *fakeMetaClient) Delete(path string) error { return f.store.Delete(path) }
func (f *fakeMetaClient) ClusterSnapshot() (placement.ClusterState, error) {
	return placement.ClusterState{
		Nodes: []placement.NodeStatus{
			{
				NodeID:    f.selfNodeID,
				MeshScore: f.meshScore,
				Drives:    []placement.DriveStatus{{DriveID: "drive0", FreeBytes: f.freeBytes}},
			},
		},
	}, nil
}
func (f *fakeMetaClient) PeerEndpoint(nodeID string) (string, error) {
	return "", ferr.New(ferr.NotFound, "peer_endpoint", nil)
}

func newTestTranslator(t *testing.T) (*Translator, *fakeMetaClient) {
	t.Helper()
	store := metaauth.NewStore()
	chunks, err := chunkstore.Open(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("open chunkstore: %v", err)
	}
	meta := &fakeMetaClient{store: store, selfNodeID: "self", freeBytes: 1 << 30, meshScore: 0.8}
	return New(meta, chunks, nil, "self"), meta
}

func TestWriteThenReadWithinSingleChunk(t *testing.T) {
	tr, _ := newTestTranslator(t)
	n, err := tr.Write("/a.txt", 0, []byte("hello"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes written, got %d", n)
	}

	attr, err := tr.Lookup("/a.txt")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if attr.Size != 5 {
		t.Fatalf("expected size 5, got %d", attr.Size)
	}

	data, err := tr.Read("/a.txt", 0, 5)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, []byte("hello")) {
		t.Fatalf("got %q, want %q", data, "hello")
	}
}

func TestWriteAcrossChunkBoundaryExtendsFile(t *testing.T) {
	tr, _ := newTestTranslator(t)
	if _, err := tr.Write("/a.txt", 0, []byte("hello")); err != nil {
		t.Fatalf("initial write: %v", err)
	}
	if _, err := tr.Write("/a.txt", ChunkSize, []byte("x")); err != nil {
		t.Fatalf("extend write: %v", err)
	}

	attr, err := tr.Lookup("/a.txt")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if attr.Size != ChunkSize+1 {
		t.Fatalf("expected size %d, got %d", ChunkSize+1, attr.Size)
	}

	first, err := tr.Read("/a.txt", 0, 5)
	if err != nil {
		t.Fatalf("read first chunk: %v", err)
	}
	if !bytes.Equal(first, []byte("hello")) {
		t.Fatalf("expected chunk 0 preserved, got %q", first)
	}

	second, err := tr.Read("/a.txt", ChunkSize, 1)
	if err != nil {
		t.Fatalf("read second chunk: %v", err)
	}
	if !bytes.Equal(second, []byte("x")) {
		t.Fatalf("expected %q at chunk boundary, got %q", "x", second)
	}
}

func TestPartialOverwriteMergesIntoExistingChunk(t *testing.T) {
	tr, _ := newTestTranslator(t)
	if _, err := tr.Write("/a.txt", 0, []byte("0123456789")); err != nil {
		t.Fatalf("initial write: %v", err)
	}
	if _, err := tr.Write("/a.txt", 2, []byte("XY")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := tr.Read("/a.txt", 0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, []byte("01XY456789")) {
		t.Fatalf("got %q, want %q", data, "01XY456789")
	}
}

func TestLookupServesFromFsEntryCacheWhileFresh(t *testing.T) {
	tr, meta := newTestTranslator(t)
	cache, err := localcache.OpenFsEntryCache(filepath.Join(t.TempDir(), "fsentries.db"), time.Minute)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()
	tr.WithFsEntryCache(cache)

	if _, err := tr.Write("/a.txt", 0, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := tr.Lookup("/a.txt"); err != nil {
		t.Fatalf("lookup: %v", err)
	}

	if _, _, found, err := cache.Get("/a.txt"); err != nil || !found {
		t.Fatalf("expected cache populated after lookup, found=%v err=%v", found, err)
	}

	if err := meta.store.Delete("/a.txt"); err != nil {
		t.Fatalf("delete via store: %v", err)
	}

	attr, err := tr.Lookup("/a.txt")
	if err != nil {
		t.Fatalf("expected cached lookup to succeed despite authority delete, got: %v", err)
	}
	if attr.Size != 5 {
		t.Fatalf("expected cached size 5, got %d", attr.Size)
	}
}

func TestUnlinkInvalidatesFsEntryCache(t *testing.T) {
	tr, _ := newTestTranslator(t)
	cache, err := localcache.OpenFsEntryCache(filepath.Join(t.TempDir(), "fsentries.db"), time.Minute)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()
	tr.WithFsEntryCache(cache)

	if _, err := tr.Write("/a.txt", 0, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := tr.Lookup("/a.txt"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if err := tr.Unlink("/a.txt"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, _, found, err := cache.Get("/a.txt"); err != nil || found {
		t.Fatalf("expected cache entry gone after unlink, found=%v err=%v", found, err)
	}
}

func TestWriteRecordsAuditJournalEntries(t *testing.T) {
	tr, _ := newTestTranslator(t)
	journal, err := localcache.OpenAuditJournal(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer journal.Close()
	tr.WithAuditJournal(journal)

	if _, err := tr.Write("/a.txt", 0, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	recent, err := journal.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(recent))
	}
	if recent[0].Op != "write" || recent[0].Path != "/a.txt" || recent[0].Result != "ok" {
		t.Fatalf("unexpected audit entry: %+v", recent[0])
	}
}

func TestReadPastEOFReturnsEmpty(t *testing.T) {
	tr, _ := newTestTranslator(t)
	if _, err := tr.Write("/a.txt", 0, []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := tr.Read("/a.txt", 100, 10)
	if err != nil {
		t.Fatalf("read past eof: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty read past EOF, got %q", data)
	}
}

func TestReadDirectoryIsShapeError(t *testing.T) {
	tr, meta := newTestTranslator(t)
	if _, err := meta.store.Create("/dir", metaauth.Directory, 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if _, err := tr.Read("/dir", 0, 1); ferr.KindOf(err) != ferr.Shape {
		t.Fatalf("expected Shape error reading a directory, got %v", err)
	}
}

func TestUnlinkRemovesLocalChunksAndEntry(t *testing.T) {
	tr, _ := newTestTranslator(t)
	if _, err := tr.Write("/a.txt", 0, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := tr.Unlink("/a.txt"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := tr.Lookup("/a.txt"); ferr.KindOf(err) != ferr.NotFound {
		t.Fatalf("expected NotFound after unlink, got %v", err)
	}
}

func TestCreateThenLookupThenDeleteThenLookupMissing(t *testing.T) {
	tr, meta := newTestTranslator(t)
	if _, err := meta.store.Create("/a.txt", metaauth.File, 0o644); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tr.Lookup("/a.txt"); err != nil {
		t.Fatalf("lookup after create: %v", err)
	}
	if err := tr.Unlink("/a.txt"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := tr.Lookup("/a.txt"); ferr.KindOf(err) != ferr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestReadDirListsChildren(t *testing.T) {
	tr, meta := newTestTranslator(t)
	if _, err := meta.store.Create("/dir", metaauth.Directory, 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if _, err := meta.store.Create("/dir/a.txt", metaauth.File, 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	entries, err := tr.ReadDir("/dir")
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "a.txt" {
		t.Fatalf("expected [a.txt], got %v", entries)
	}
}
