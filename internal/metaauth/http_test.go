package metaauth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/wyvernglobal/junknas/internal/observability"
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

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := observability.NewLogger("test", "0.0.0", os.Stdout)
	return NewServer(NewStore(), sharedTestMetrics(), logger)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateLookupRoundTripOverHTTP(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	rec := doJSON(t, r, http.MethodPost, "/api/fs/create", createRequest{Path: "/a.txt", NodeType: File, Mode: 0o644})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodGet, "/api/fs/lookup?path=/a.txt", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var entry FsEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.Path != "/a.txt" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestLookupMissingReturns404(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/api/fs/lookup?path=/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHeartbeatOverHTTP(t *testing.T) {
	s := newTestServer(t)
	score := 0.8
	req := HeartbeatRequest{
		NodeID: "node-1", Hostname: "node-1", Role: RoleStorage,
		MeshEndpoint: "10.0.0.1:42000", MeshPublicKey: "pub-1", MeshScore: &score,
	}
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/agents/heartbeat", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHeartbeatRateLimitedPerNode(t *testing.T) {
	s := newTestServer(t)
	req := HeartbeatRequest{NodeID: "node-hammer", Hostname: "node-hammer", Role: RoleStorage}

	var lastCode int
	for i := 0; i < heartbeatBurst+2; i++ {
		lastCode = doJSON(t, s.Router(), http.MethodPost, "/api/agents/heartbeat", req).Code
	}
	if lastCode != http.StatusServiceUnavailable {
		t.Fatalf("expected the burst to eventually be rate limited with 503, got %d", lastCode)
	}
}

func TestMeshAndNodesEndpoints(t *testing.T) {
	s := newTestServer(t)
	score := 0.5
	doJSON(t, s.Router(), http.MethodPost, "/api/agents/heartbeat", HeartbeatRequest{
		NodeID: "node-1", Hostname: "node-1", Role: RoleStorage,
		MeshEndpoint: "10.0.0.1:42000", MeshPublicKey: "pub-1", MeshScore: &score,
	})

	rec := doJSON(t, s.Router(), http.MethodGet, "/api/mesh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mesh: expected 200, got %d", rec.Code)
	}
	var mesh MeshInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &mesh); err != nil {
		t.Fatalf("decode mesh: %v", err)
	}
	if len(mesh.Peers) != 1 || mesh.Gateway != "node-1" {
		t.Fatalf("unexpected mesh info: %+v", mesh)
	}

	rec = doJSON(t, s.Router(), http.MethodGet, "/api/nodes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("nodes: expected 200, got %d", rec.Code)
	}
}
