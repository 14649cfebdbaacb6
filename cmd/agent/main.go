// Command agent runs one junkNAS storage (or gateway-only) node: it mounts
// the cluster filesystem over FUSE, reports its local drives and mesh
// reachability to the metadata authority every 5 seconds, and persists a
// drain-retry queue so node departure degrades gracefully.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wyvernglobal/junknas/internal/agentloop"
	"github.com/wyvernglobal/junknas/internal/chunkio"
	"github.com/wyvernglobal/junknas/internal/chunkstore"
	"github.com/wyvernglobal/junknas/internal/config"
	"github.com/wyvernglobal/junknas/internal/drainqueue"
	"github.com/wyvernglobal/junknas/internal/identity"
	"github.com/wyvernglobal/junknas/internal/localcache"
	"github.com/wyvernglobal/junknas/internal/observability"
	"github.com/wyvernglobal/junknas/internal/overlay"
)

func main() {
	nodeID := flag.String("node-id", "", "Node ID (default: hostname)")
	controllerURL := flag.String("controller-url", "", "Metadata authority base URL (overrides persisted config)")
	mountPoint := flag.String("mount", "", "FUSE mount point (overrides persisted config)")
	passphrase := flag.String("passphrase", "", "Identity keystore passphrase (empty: unencrypted, dev only)")
	observAddr := flag.String("observ-addr", "", "Observability server address (overrides persisted config)")
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "junknas-agent"
	}
	id := *nodeID
	if id == "" {
		id = hostname
	}

	logger := observability.NewLogger("junknas-agent", "1.0.0", os.Stdout)
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker("1.0.0")
	if shutdown, err := observability.InitTracing(context.Background(), "junknas-agent"); err == nil {
		defer shutdown(context.Background())
	}

	logger.Info("junkNAS agent starting...")

	cfg, err := config.LoadAgentConfig(id, hostname)
	if err != nil {
		logger.Fatal(err, "failed to load agent config")
	}
	if *controllerURL != "" {
		cfg.ControllerURL = *controllerURL
	}
	if *mountPoint != "" {
		cfg.MountPoint = *mountPoint
	}
	if *observAddr != "" {
		cfg.ObservAddr = *observAddr
	}
	if err := config.SaveAgentConfig(id, cfg); err != nil {
		logger.Warn("failed to persist agent config: " + err.Error())
	}

	node, err := identity.LoadOrCreate(id, *passphrase)
	if err != nil {
		logger.Fatal(err, "failed to load or create node identity")
	}
	logger.Info("node identity: " + node.Fingerprint())

	chunks, err := chunkstore.Open(cfg.BaseDir, cfg.DriveCount)
	if err != nil {
		logger.Fatal(err, "failed to open chunk store")
	}

	transport, err := overlay.Bind(cfg.MeshPort)
	if err != nil {
		logger.Fatal(err, "failed to bind overlay transport")
	}
	defer transport.Close()

	drain, err := drainqueue.Open(filepath.Join(filepath.Dir(cfg.BaseDir), "drain.db"))
	if err != nil {
		logger.Fatal(err, "failed to open drain queue")
	}
	defer drain.Close()

	cache, err := localcache.OpenFsEntryCache(filepath.Join(filepath.Dir(cfg.BaseDir), "fsentries.db"), 2*time.Second)
	if err != nil {
		logger.Fatal(err, "failed to open local fs entry cache")
	}
	defer cache.Close()

	journal, err := localcache.OpenAuditJournal(filepath.Join(filepath.Dir(cfg.BaseDir), "audit.db"))
	if err != nil {
		logger.Fatal(err, "failed to open audit journal")
	}
	defer journal.Close()

	meta := chunkio.NewHTTPMetadataClient(cfg.ControllerURL)
	translator := chunkio.New(meta, chunks, transport, id).
		WithFsEntryCache(cache).
		WithAuditJournal(journal)

	if err := os.MkdirAll(cfg.MountPoint, 0o755); err != nil {
		logger.Fatal(err, "failed to create mount point")
	}
	fuseServer, err := chunkio.Mount(cfg.MountPoint, translator)
	if err != nil {
		logger.Fatal(err, "failed to mount FUSE filesystem")
	}
	logger.Info("mounted junkNAS at " + cfg.MountPoint)

	loop, err := agentloop.New(agentloop.Config{
		NodeID:        id,
		Hostname:      hostname,
		Nickname:      cfg.Nickname,
		ControllerURL: cfg.ControllerURL,
		StunServer:    cfg.StunServer,
		MeshPort:      cfg.MeshPort,
	}, chunks, transport, drain, logger, metrics)
	if err != nil {
		logger.Fatal(err, "failed to start agent loop")
	}

	health.RegisterCheck("overlay_socket", observability.OverlaySocketCheck(true, fmt.Sprintf("0.0.0.0:%d", transport.Port())))
	health.RegisterCheck("keystore", observability.KeystoreCheck(node != nil))
	health.RegisterCheck("controller_reachable", func(ctx context.Context) observability.ComponentHealth {
		lastErr, latency := loop.LastHeartbeat()
		return observability.ControllerReachableCheck(lastErr, latency)(ctx)
	})
	health.RegisterCheck("local_drives", func(ctx context.Context) observability.ComponentHealth {
		reports, err := chunks.DiscoverDrives()
		if err != nil {
			return observability.ComponentHealth{Status: observability.HealthStatusUnhealthy, Message: err.Error()}
		}
		ok := 0
		for _, r := range reports {
			if _, statErr := os.Stat(r.Path); statErr == nil {
				ok++
			}
		}
		return observability.LocalDrivesCheck(ok, len(reports))(ctx)
	})

	go startObservabilityServer(cfg.ObservAddr, metrics, health, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go chunkio.Serve(ctx, transport, chunks, logger)
	go loop.Run(ctx)

	logger.Info("junkNAS agent running")
	logger.Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully...")
	cancel()
	if err := fuseServer.Unmount(); err != nil {
		logger.Error(err, "failed to unmount FUSE filesystem")
	}
	logger.Info("junkNAS agent stopped")
}

func startObservabilityServer(addr string, metrics *observability.Metrics, health *observability.HealthChecker, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", health.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server := &http.Server{Addr: addr, Handler: mux}
	logger.Info("observability server listening on " + addr + " (metrics, health, pprof)")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error(err, "observability server error")
	}
}
