package metaauth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wyvernglobal/junknas/internal/ferr"
	"github.com/wyvernglobal/junknas/internal/observability"
	"github.com/wyvernglobal/junknas/internal/ratelimit"
)

// heartbeatRate and heartbeatBurst bound how often a single node ID may hit
// /api/agents/heartbeat; the agent heartbeats every 5s, so 1/s sustained
// with a small burst tolerates a retry without opening the endpoint to a
// misbehaving or spoofed client hammering the controller.
const (
	heartbeatRate  = 1.0
	heartbeatBurst = 3
)

// Server exposes a Store over HTTP for agents and dashboards.
type Server struct {
	store     *Store
	metrics   *observability.Metrics
	logger    *observability.Logger
	heartbeat *ratelimit.PerKeyLimiter
}

// NewServer builds the chi router backed by store.
func NewServer(store *Store, metrics *observability.Metrics, logger *observability.Logger) *Server {
	return &Server{
		store:     store,
		metrics:   metrics,
		logger:    logger,
		heartbeat: ratelimit.NewPerKeyLimiter(heartbeatRate, heartbeatBurst),
	}
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api/fs", func(r chi.Router) {
		r.Get("/lookup", s.handleLookup)
		r.Get("/list", s.handleList)
		r.Post("/create", s.handleCreate)
		r.Post("/update-size", s.handleUpdateSize)
		r.Post("/update-chunks", s.handleUpdateChunks)
		r.Post("/delete", s.handleDelete)
	})

	r.Route("/api/agents", func(r chi.Router) {
		r.Post("/heartbeat", s.handleHeartbeat)
	})

	r.Get("/api/mesh", s.handleMesh)
	r.Post("/api/mesh/keys", s.handleUpsertKey)
	r.Get("/api/nodes", s.handleNodes)
	r.Get("/api/samba-hosts", s.handleGatewayHosts)

	return r
}

var errHeartbeatRateLimited = errors.New("heartbeat rate limit exceeded for this node")

type jsonError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	kind := ferr.KindOf(err)
	writeJSON(w, ferr.HTTPStatus(kind), jsonError{Kind: kind.String(), Message: err.Error()})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	entry, err := s.store.Lookup(path)
	if err != nil {
		s.metrics.RecordFsOperation("lookup", false)
		writeErr(w, err)
		return
	}
	s.metrics.RecordFsOperation("lookup", true)
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	entries, err := s.store.List(path)
	if err != nil {
		s.metrics.RecordFsOperation("list", false)
		writeErr(w, err)
		return
	}
	s.metrics.RecordFsOperation("list", true)
	writeJSON(w, http.StatusOK, entries)
}

type createRequest struct {
	Path     string   `json:"path"`
	NodeType NodeType `json:"node_type"`
	Mode     uint32   `json:"mode"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, ferr.New(ferr.BadRequest, "create", err))
		return
	}
	entry, err := s.store.Create(req.Path, req.NodeType, req.Mode)
	if err != nil {
		s.metrics.RecordFsOperation("create", false)
		writeErr(w, err)
		return
	}
	s.metrics.RecordFsOperation("create", true)
	s.logger.Info("fs entry created: " + req.Path)
	writeJSON(w, http.StatusOK, entry)
}

type updateSizeRequest struct {
	Path string `json:"path"`
	Size uint64 `json:"size"`
}

func (s *Server) handleUpdateSize(w http.ResponseWriter, r *http.Request) {
	var req updateSizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, ferr.New(ferr.BadRequest, "update_size", err))
		return
	}
	if err := s.store.UpdateSize(req.Path, req.Size); err != nil {
		s.metrics.RecordFsOperation("update_size", false)
		writeErr(w, err)
		return
	}
	s.metrics.RecordFsOperation("update_size", true)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type updateChunksRequest struct {
	Path   string      `json:"path"`
	Chunks []ChunkMeta `json:"chunks"`
}

func (s *Server) handleUpdateChunks(w http.ResponseWriter, r *http.Request) {
	var req updateChunksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, ferr.New(ferr.BadRequest, "update_chunks", err))
		return
	}
	if err := s.store.UpdateChunks(req.Path, req.Chunks); err != nil {
		s.metrics.RecordFsOperation("update_chunks", false)
		writeErr(w, err)
		return
	}
	s.metrics.RecordFsOperation("update_chunks", true)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type deleteRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, ferr.New(ferr.BadRequest, "delete", err))
		return
	}
	if err := s.store.Delete(req.Path); err != nil {
		s.metrics.RecordFsOperation("delete", false)
		writeErr(w, err)
		return
	}
	s.metrics.RecordFsOperation("delete", true)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, ferr.New(ferr.BadRequest, "heartbeat", err))
		return
	}
	if !s.heartbeat.Allow(req.NodeID) {
		writeErr(w, ferr.New(ferr.NetworkTransient, "heartbeat", errHeartbeatRateLimited))
		return
	}
	resp := s.store.Heartbeat(req)
	s.metrics.RecordHeartbeat(true, 0)
	s.logger.HeartbeatSent(req.NodeID, len(req.Drives), int64(resp.DesiredAllocationBytes), resp.Eject)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMesh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.MeshInfo())
}

func (s *Server) handleUpsertKey(w http.ResponseWriter, r *http.Request) {
	var entry KeyRegistryEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeErr(w, ferr.New(ferr.BadRequest, "upsert_key", err))
		return
	}
	s.store.UpsertKey(entry)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Nodes())
}

func (s *Server) handleGatewayHosts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.GatewayHosts())
}
