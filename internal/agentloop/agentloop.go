// Package agentloop runs the agent's periodic background work: heartbeats,
// mesh refresh (with a discovery probe burst for newly-seen peers), and a
// drain sequence triggered on shutdown.
package agentloop

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wyvernglobal/junknas/internal/chunkio"
	"github.com/wyvernglobal/junknas/internal/chunkstore"
	"github.com/wyvernglobal/junknas/internal/drainqueue"
	"github.com/wyvernglobal/junknas/internal/metaauth"
	"github.com/wyvernglobal/junknas/internal/natclass"
	"github.com/wyvernglobal/junknas/internal/observability"
	"github.com/wyvernglobal/junknas/internal/overlay"
)

const (
	heartbeatInterval  = 5 * time.Second
	meshInterval       = 15 * time.Second
	drainRetryInterval = 10 * time.Second
	probeBurstCount    = 3
	probeBurstGap      = 200 * time.Millisecond
)

// Loop owns the agent's periodic reporting and mesh maintenance.
type Loop struct {
	meta       *chunkio.HTTPMetadataClient
	chunks     *chunkstore.Store
	transport  *overlay.Transport
	drain      *drainqueue.Queue
	logger     *observability.Logger
	metrics    *observability.Metrics
	nodeID     string
	hostname   string
	nickname   string
	driveCount int

	public             *natclass.PublicEndpoint
	meshScore          float64
	meshAddr           string
	lastHeartbeatRTTMs float64

	heartbeatMu      sync.RWMutex
	lastHeartbeatErr error
	lastHeartbeatDur time.Duration
}

// LastHeartbeat reports the outcome of the most recent heartbeat attempt,
// for the agent's controller_reachable health check.
func (l *Loop) LastHeartbeat() (error, time.Duration) {
	l.heartbeatMu.RLock()
	defer l.heartbeatMu.RUnlock()
	return l.lastHeartbeatErr, l.lastHeartbeatDur
}

// Config carries what the loop needs at startup; it mirrors the agent's
// environment-derived settings.
type Config struct {
	NodeID       string
	Hostname     string
	Nickname     string
	ControllerURL string
	StunServer   string
	MeshPort     int
}

// New builds a Loop, discovering this node's public endpoint via STUN.
func New(cfg Config, chunks *chunkstore.Store, transport *overlay.Transport, drain *drainqueue.Queue, logger *observability.Logger, metrics *observability.Metrics) (*Loop, error) {
	meta := chunkio.NewHTTPMetadataClient(cfg.ControllerURL)

	public, err := natclass.DiscoverPublicEndpoint(cfg.StunServer, cfg.MeshPort)
	if err != nil {
		logger.Warn("STUN discovery failed, falling back to loopback: " + err.Error())
		public = &natclass.PublicEndpoint{
			PublicAddr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.MeshPort},
			NATType:    natclass.Unknown,
		}
	}

	l := &Loop{
		meta:       meta,
		chunks:     chunks,
		transport:  transport,
		drain:      drain,
		logger:     logger,
		metrics:    metrics,
		nodeID:     cfg.NodeID,
		hostname:   cfg.Hostname,
		nickname:   cfg.Nickname,
		public:     public,
		meshAddr:   public.PublicAddr.String(),
	}
	return l, nil
}

// Run blocks, driving heartbeat, mesh-refresh, and drain-retry loops until
// ctx is cancelled, then performs a best-effort drain before returning.
func (l *Loop) Run(ctx context.Context) {
	go l.heartbeatLoop(ctx)
	go l.meshLoop(ctx)
	go l.drainRetryLoop(ctx)

	<-ctx.Done()
	l.drainOnShutdown()
}

func (l *Loop) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		l.sendHeartbeat()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Loop) sendHeartbeat() {
	start := time.Now()
	reports, err := l.chunks.DiscoverDrives()
	if err != nil {
		l.logger.Error(err, "failed to discover local drives")
		return
	}
	drives := make([]metaauth.DriveState, 0, len(reports))
	for _, r := range reports {
		drives = append(drives, metaauth.DriveState{
			ID: r.ID, Path: r.Path, UsedBytes: r.UsedBytes, AllocatedBytes: r.AllocatedBytes,
		})
	}

	score := natclass.ComputeScore(l.public.NATType, l.lastHeartbeatRTTMs)
	l.meshScore = score
	req := metaauth.HeartbeatRequest{
		NodeID:       l.nodeID,
		Hostname:     l.hostname,
		Nickname:     l.nickname,
		Role:         metaauth.RoleStorage,
		Drives:       drives,
		MeshEndpoint: l.meshAddr,
		MeshScore:    &score,
		MeshNATType:  string(l.public.NATType),
	}

	resp, err := l.meta.Heartbeat(req)
	dur := time.Since(start)
	l.heartbeatMu.Lock()
	l.lastHeartbeatErr = err
	l.lastHeartbeatDur = dur
	l.heartbeatMu.Unlock()
	if err != nil {
		l.metrics.RecordHeartbeat(false, dur.Seconds())
		l.logger.Error(err, "heartbeat failed")
		return
	}
	l.metrics.RecordHeartbeat(true, dur.Seconds())
	l.lastHeartbeatRTTMs = float64(dur.Milliseconds())
	l.logger.HeartbeatSent(l.nodeID, len(drives), int64(resp.DesiredAllocationBytes), resp.Eject)

	if resp.Eject {
		l.logger.DrainStarted(l.nodeID, 0)
		if err := l.chunks.Eject(); err != nil {
			l.logger.Error(err, "eject failed")
		}
	}
}

func (l *Loop) meshLoop(ctx context.Context) {
	ticker := time.NewTicker(meshInterval)
	defer ticker.Stop()
	seen := make(map[string]bool)
	for {
		l.refreshMesh(seen)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Loop) refreshMesh(seen map[string]bool) {
	info, err := l.meta.Mesh()
	if err != nil {
		l.logger.Error(err, "mesh fetch failed")
		return
	}
	l.metrics.MeshPeersActive.Set(float64(len(info.Peers)))

	for _, peer := range info.Peers {
		if peer.NodeID == l.nodeID {
			continue
		}
		peerNAT := natclass.NATType(peer.NATType)
		mode := natclass.SelectConnectivityMode(l.public.NATType, peerNAT)

		if !seen[peer.NodeID] {
			seen[peer.NodeID] = true
			l.probeBurst(peer.Endpoint, mode)
		}
	}
}

// probeBurst sends a short burst of hole-punch probes to a newly-seen
// peer so the NAT mapping is warm before the first real chunk request
// needs it.
func (l *Loop) probeBurst(endpoint string, mode natclass.ConnectivityMode) {
	if mode != natclass.HolePunch || l.transport == nil {
		return
	}
	addr, err := net.ResolveUDPAddr("udp4", endpoint)
	if err != nil {
		return
	}
	for i := 0; i < probeBurstCount; i++ {
		succeeded := overlay.AttemptHolePunch(l.transport, addr, probeBurstGap)
		l.logger.HolePunchAttempt(endpoint, addr.String(), succeeded)
		l.metrics.RecordHolePunch(succeeded)
		if succeeded {
			return
		}
		time.Sleep(probeBurstGap)
	}
}

// ownedChunk is one chunk this node holds, found while walking the
// metadata tree for a drain sequence.
type ownedChunk struct {
	path    string
	index   uint64
	driveID string
}

// ownedChunks walks the FsEntry tree from root, breadth-first over
// repeated List calls, and collects every chunk whose ChunkMeta.NodeID is
// this node.
func (l *Loop) ownedChunks(root string) ([]ownedChunk, error) {
	var out []ownedChunk
	queue := []string{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]
		children, err := l.meta.List(dir)
		if err != nil {
			return nil, err
		}
		for name, entry := range children {
			full := childPath(dir, name)
			if entry.NodeType == metaauth.Directory {
				queue = append(queue, full)
				continue
			}
			for _, c := range entry.Chunks {
				if c.NodeID == l.nodeID {
					out = append(out, ownedChunk{path: full, index: c.Index, driveID: c.DriveID})
				}
			}
		}
	}
	return out, nil
}

func childPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return strings.TrimRight(dir, "/") + "/" + name
}

// drainOnShutdown enumerates every FsEntry in the tree whose chunks point
// at self, persists each as a pending drainqueue.Item, and attempts to
// migrate it immediately; whatever doesn't migrate is left for
// drainRetryLoop (or a restarted agent re-reading the queue) to retry.
// Per spec, a successful migration leaves ChunkMeta pointing at this node
// until the next write recomputes placement — no metadata update happens
// here.
func (l *Loop) drainOnShutdown() {
	owned, err := l.ownedChunks("/")
	if err != nil {
		l.logger.Error(err, "drain: failed to walk metadata tree")
		return
	}
	l.metrics.SetDrainInProgress(true)
	defer l.metrics.SetDrainInProgress(false)

	drainID := uuid.New().String()
	total := len(owned)
	l.logger.Info("drain sequence " + drainID + " started")
	l.logger.DrainStarted(l.nodeID, total)

	migrated := 0
	for _, c := range owned {
		item := drainqueue.Item{
			Path: c.path, Index: c.index, DriveID: c.driveID,
			DrainID: drainID, EnqueueAt: time.Now().Unix(),
		}
		if err := l.drain.Enqueue(item); err != nil {
			l.logger.Error(err, "drain: failed to persist retry item")
			continue
		}
		if l.migrateDrainItem(item) {
			migrated++
		}
	}
	l.logger.DrainProgress(l.nodeID, migrated, total-migrated)
}

// migrateDrainItem reads item's bytes from this node's local drive and
// attempts a STORE to each live peer in descending mesh-score order until
// one accepts, removing the item from the queue on success.
func (l *Loop) migrateDrainItem(item drainqueue.Item) bool {
	if l.transport == nil {
		return false
	}
	data, err := l.chunks.Get(item.DriveID, item.Path, item.Index)
	if err != nil {
		l.logger.Error(err, "drain: failed to read local chunk "+item.Path)
		return false
	}
	hash := chunkstore.HashChunk(data)

	info, err := l.meta.Mesh()
	if err != nil {
		l.logger.Error(err, "drain: failed to fetch mesh peers")
		return false
	}
	peers := append([]metaauth.MeshPeer(nil), info.Peers...)
	sort.Slice(peers, func(i, j int) bool { return peers[i].Score > peers[j].Score })

	for _, peer := range peers {
		if peer.NodeID == l.nodeID {
			continue
		}
		addr, err := net.ResolveUDPAddr("udp4", peer.Endpoint)
		if err != nil {
			continue
		}
		if err := chunkio.RemoteStore(l.transport, addr, item.Path, item.Index, item.DriveID, hash, data); err != nil {
			continue
		}
		if err := l.drain.Remove(item.Path, item.Index); err != nil {
			l.logger.Error(err, "drain: migrated chunk but failed to clear queue entry")
		}
		l.logger.Info(fmt.Sprintf("drain: migrated %s[%d] to %s", item.Path, item.Index, peer.NodeID))
		return true
	}
	return false
}

// drainRetryLoop resumes migration of items left in the queue by a prior
// drain attempt (or inherited from before a restart) until ctx is
// cancelled.
func (l *Loop) drainRetryLoop(ctx context.Context) {
	ticker := time.NewTicker(drainRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.retryPendingDrainItems()
		}
	}
}

func (l *Loop) retryPendingDrainItems() {
	items, err := l.drain.All()
	if err != nil {
		l.logger.Error(err, "drain: failed to list pending items")
		return
	}
	for _, item := range items {
		if l.migrateDrainItem(item) {
			continue
		}
		if _, err := l.drain.IncrementAttempts(item); err != nil {
			l.logger.Error(err, "drain: failed to persist retry attempt")
		}
	}
}
