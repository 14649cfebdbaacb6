package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{
		logger: logger,
	}
}

// WithNode adds node_id context to logger.
func (l *Logger) WithNode(nodeID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("node_id", nodeID).Logger(),
	}
}

// WithPeer adds peer_id context to logger.
func (l *Logger) WithPeer(peerID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("peer_id", peerID).Logger(),
	}
}

// WithPath adds fs path context to logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("path", path).Logger(),
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) {
	l.logger.Fatal().Err(err).Msg(msg)
}

// HeartbeatSent logs an agent heartbeat round-trip to the controller.
func (l *Logger) HeartbeatSent(nodeID string, driveCount int, desiredBytes int64, eject bool) {
	l.logger.Debug().
		Str("node_id", nodeID).
		Int("drive_count", driveCount).
		Int64("desired_allocation_bytes", desiredBytes).
		Bool("eject", eject).
		Msg("heartbeat sent")
}

// ChunkAllocated logs a placement decision.
func (l *Logger) ChunkAllocated(path string, index int, nodeID, driveID string, rank float64) {
	l.logger.Debug().
		Str("path", path).
		Int("chunk_index", index).
		Str("node_id", nodeID).
		Str("drive_id", driveID).
		Float64("rank", rank).
		Msg("chunk allocated")
}

// NATClassified logs the result of a NAT classification pass.
func (l *Logger) NATClassified(natType string, score float64, rttMs int64) {
	l.logger.Info().
		Str("nat_type", natType).
		Float64("mesh_score", score).
		Int64("rtt_ms", rttMs).
		Msg("nat classified")
}

// HolePunchAttempt logs an outbound hole punch attempt to a peer.
func (l *Logger) HolePunchAttempt(peerID, peerAddr string, succeeded bool) {
	l.logger.Debug().
		Str("peer_id", peerID).
		Str("peer_addr", peerAddr).
		Bool("succeeded", succeeded).
		Msg("hole punch attempt")
}

// DrainStarted logs the beginning of a node drain.
func (l *Logger) DrainStarted(nodeID string, chunkCount int) {
	l.logger.Info().
		Str("node_id", nodeID).
		Int("chunk_count", chunkCount).
		Msg("drain started")
}

// DrainProgress logs drain progress.
func (l *Logger) DrainProgress(nodeID string, migrated, remaining int) {
	l.logger.Info().
		Str("node_id", nodeID).
		Int("migrated", migrated).
		Int("remaining", remaining).
		Msg("drain progress")
}

// ConnectionEstablished logs overlay connection establishment.
func (l *Logger) ConnectionEstablished(remoteAddr string, mode string) {
	l.logger.Info().
		Str("remote_addr", remoteAddr).
		Str("mode", mode).
		Msg("overlay connection established")
}

// ConnectionFailed logs overlay connection failure.
func (l *Logger) ConnectionFailed(remoteAddr string, err error) {
	l.logger.Error().
		Str("remote_addr", remoteAddr).
		Err(err).
		Msg("overlay connection failed")
}

// Helper function to get hostname.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
