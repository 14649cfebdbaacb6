// Command controller runs the junkNAS metadata authority: the single
// in-memory FsEntry tree, drive/mesh bookkeeping, and the HTTP API agents
// and dashboards talk to for lookups, heartbeats, and placement decisions.
package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/wyvernglobal/junknas/internal/config"
	"github.com/wyvernglobal/junknas/internal/metaauth"
	"github.com/wyvernglobal/junknas/internal/observability"
)

func main() {
	httpAddr := flag.String("http-addr", "", "HTTP API address (overrides persisted config)")
	observAddr := flag.String("observ-addr", "", "Observability server address (overrides persisted config)")
	flag.Parse()

	logger := observability.NewLogger("junknas-controller", "1.0.0", os.Stdout)
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker("1.0.0")
	if shutdown, err := observability.InitTracing(context.Background(), "junknas-controller"); err == nil {
		defer shutdown(context.Background())
	}

	logger.Info("junkNAS controller starting...")

	cfg, err := config.LoadControllerConfig()
	if err != nil {
		logger.Fatal(err, "failed to load controller config")
	}
	if *httpAddr != "" {
		cfg.HTTPAddress = *httpAddr
	}
	if *observAddr != "" {
		cfg.ObservAddr = *observAddr
	}
	if err := config.SaveControllerConfig(cfg); err != nil {
		logger.Warn("failed to persist controller config: " + err.Error())
	}

	store := metaauth.NewStore()
	health.RegisterCheck("metadata_store", func(ctx context.Context) observability.ComponentHealth {
		if _, err := store.Lookup("/"); err != nil {
			return observability.ComponentHealth{Status: observability.HealthStatusUnhealthy, Message: err.Error()}
		}
		return observability.ComponentHealth{Status: observability.HealthStatusOK}
	})

	server := metaauth.NewServer(store, metrics, logger)

	httpServer := &http.Server{Addr: cfg.HTTPAddress, Handler: server.Router()}
	go func() {
		logger.Info("HTTP API listening on " + cfg.HTTPAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "HTTP API server error")
		}
	}()

	go startObservabilityServer(cfg.ObservAddr, metrics, health, logger)

	logger.Info("junkNAS controller running")
	logger.Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(err, "failed to shut down HTTP API server")
	}
	logger.Info("junkNAS controller stopped, tracked " + strconv.Itoa(store.EntryCount()) + " fs entries")
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
