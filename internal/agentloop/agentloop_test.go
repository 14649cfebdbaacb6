package agentloop

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/wyvernglobal/junknas/internal/chunkio"
	"github.com/wyvernglobal/junknas/internal/chunkstore"
	"github.com/wyvernglobal/junknas/internal/drainqueue"
	"github.com/wyvernglobal/junknas/internal/metaauth"
	"github.com/wyvernglobal/junknas/internal/natclass"
	"github.com/wyvernglobal/junknas/internal/observability"
	"github.com/wyvernglobal/junknas/internal/overlay"
)

// promauto registers metrics with the global Prometheus registry, so every
// test in this package must share one Metrics instance.
var (
	testMetricsOnce sync.Once
	testMetrics     *observability.Metrics
)

func sharedTestMetrics() *observability.Metrics {
	testMetricsOnce.Do(func() { testMetrics = observability.NewMetrics() })
	return testMetrics
}

func testLoop(t *testing.T) *Loop {
	t.Helper()
	return &Loop{
		logger:  observability.NewLogger("test", "0.0.0", os.Stdout),
		metrics: sharedTestMetrics(),
		nodeID:  "self",
	}
}

func TestProbeBurstSkipsNonHolePunchModes(t *testing.T) {
	l := testLoop(t)
	// transport is nil; a Direct-mode peer should never attempt a dial,
	// so this must return without touching the transport.
	l.probeBurst("127.0.0.1:9", natclass.Direct)
}

func TestProbeBurstSkipsWithoutTransport(t *testing.T) {
	l := testLoop(t)
	l.transport = nil
	l.probeBurst("127.0.0.1:9", natclass.HolePunch)
}

// testLoopWithMeta wires a Loop against a real metaauth.Store served over
// HTTP, since Loop.meta is a concrete *chunkio.HTTPMetadataClient rather
// than an interface a fake could stand in for.
func testLoopWithMeta(t *testing.T) (*Loop, *metaauth.Store) {
	t.Helper()
	store := metaauth.NewStore()
	srv := metaauth.NewServer(store, sharedTestMetrics(), observability.NewLogger("test", "0.0.0", os.Stdout))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	chunks, err := chunkstore.Open(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("open chunkstore: %v", err)
	}
	drain, err := drainqueue.Open(filepath.Join(t.TempDir(), "drain.db"))
	if err != nil {
		t.Fatalf("open drainqueue: %v", err)
	}
	t.Cleanup(func() { drain.Close() })

	l := &Loop{
		meta:    chunkio.NewHTTPMetadataClient(ts.URL),
		chunks:  chunks,
		drain:   drain,
		logger:  observability.NewLogger("test", "0.0.0", os.Stdout),
		metrics: sharedTestMetrics(),
		nodeID:  "self",
	}
	return l, store
}

// putOwnedFile registers a one-chunk file in store whose chunk is placed on
// self/driveID, and writes the matching bytes into chunks.
func putOwnedFile(t *testing.T, l *Loop, store *metaauth.Store, path, driveID string, data []byte) {
	t.Helper()
	if _, err := store.Create(path, metaauth.File, 0o644); err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	hash := chunkstore.HashChunk(data)
	if err := store.UpdateChunks(path, []metaauth.ChunkMeta{
		{Index: 0, NodeID: l.nodeID, DriveID: driveID, ChunkHash: hash},
	}); err != nil {
		t.Fatalf("update chunks %s: %v", path, err)
	}
	if err := l.chunks.Put(driveID, path, 0, data); err != nil {
		t.Fatalf("put local chunk %s: %v", path, err)
	}
}

func TestDrainOnShutdownEnumeratesOwnedChunksNotDrives(t *testing.T) {
	l, store := testLoopWithMeta(t)
	putOwnedFile(t, l, store, "/a.bin", "drive0", []byte("chunk a"))
	putOwnedFile(t, l, store, "/b.bin", "drive1", []byte("chunk b"))

	// A chunk owned by another node must not show up in self's drain set.
	if _, err := store.Create("/other.bin", metaauth.File, 0o644); err != nil {
		t.Fatalf("create /other.bin: %v", err)
	}
	if err := store.UpdateChunks("/other.bin", []metaauth.ChunkMeta{
		{Index: 0, NodeID: "peer", DriveID: "drive0", ChunkHash: "irrelevant"},
	}); err != nil {
		t.Fatalf("update chunks /other.bin: %v", err)
	}

	l.drainOnShutdown()

	items, err := l.drain.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 persisted owned-chunk retry items, got %d: %+v", len(items), items)
	}
	if items[0].DrainID == "" || items[0].DrainID != items[1].DrainID {
		t.Fatalf("expected both items to share one non-empty drain ID, got %+v", items)
	}
}

func TestDrainOnShutdownMigratesToLivePeerAndClearsQueue(t *testing.T) {
	l, store := testLoopWithMeta(t)
	payload := []byte("migrate me")
	putOwnedFile(t, l, store, "/movie.mkv", "drive0", payload)

	peerChunks, err := chunkstore.Open(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("open peer chunkstore: %v", err)
	}
	peerTransport, err := overlay.Bind(0)
	if err != nil {
		t.Fatalf("bind peer transport: %v", err)
	}
	defer peerTransport.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go chunkio.Serve(ctx, peerTransport, peerChunks, observability.NewLogger("test", "0.0.0", os.Stdout))

	selfTransport, err := overlay.Bind(0)
	if err != nil {
		t.Fatalf("bind self transport: %v", err)
	}
	defer selfTransport.Close()
	l.transport = selfTransport

	score := 1.0
	store.Heartbeat(metaauth.HeartbeatRequest{
		NodeID:        "peer",
		Role:          metaauth.RoleStorage,
		MeshEndpoint:  fmt.Sprintf("127.0.0.1:%d", peerTransport.Port()),
		MeshPublicKey: "peer-pubkey",
		MeshScore:     &score,
	})

	l.drainOnShutdown()

	items, err := l.drain.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected the migrated chunk to be cleared from the queue, got %+v", items)
	}

	got, err := peerChunks.Get("drive0", "/movie.mkv", 0)
	if err != nil {
		t.Fatalf("get migrated chunk from peer: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("unexpected migrated bytes: %q", got)
	}
}

