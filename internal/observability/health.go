package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusOK        HealthStatus = "ok"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	LatencyMS int64        `json:"latency_ms,omitempty"`
}

// HealthCheckResponse represents the overall health check response.
type HealthCheckResponse struct {
	Status        HealthStatus               `json:"status"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Timestamp     string                     `json:"timestamp"`
	Checks        map[string]ComponentHealth `json:"checks"`
}

// HealthChecker performs health checks on system components.
type HealthChecker struct {
	version   string
	startTime time.Time
	checks    map[string]HealthCheckFunc
}

// HealthCheckFunc defines a function that checks component health.
type HealthCheckFunc func(ctx context.Context) ComponentHealth

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]HealthCheckFunc),
	}
}

// RegisterCheck registers a health check for a component.
func (hc *HealthChecker) RegisterCheck(name string, checkFunc HealthCheckFunc) {
	hc.checks[name] = checkFunc
}

// Check performs all health checks.
func (hc *HealthChecker) Check(ctx context.Context) HealthCheckResponse {
	response := HealthCheckResponse{
		Status:        HealthStatusOK,
		Version:       hc.version,
		UptimeSeconds: int64(time.Since(hc.startTime).Seconds()),
		Timestamp:     time.Now().Format(time.RFC3339),
		Checks:        make(map[string]ComponentHealth),
	}

	for name, checkFunc := range hc.checks {
		health := checkFunc(ctx)
		response.Checks[name] = health

		// Update overall status
		if health.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		} else if health.Status == HealthStatusDegraded && response.Status != HealthStatusUnhealthy {
			response.Status = HealthStatusDegraded
		}
	}

	return response
}

// Handler returns an HTTP handler for health checks.
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		response := hc.Check(ctx)

		w.Header().Set("Content-Type", "application/json")

		// Set HTTP status based on health
		switch response.Status {
		case HealthStatusOK:
			w.WriteHeader(http.StatusOK)
		case HealthStatusDegraded:
			w.WriteHeader(http.StatusOK) // Still 200 but degraded
		case HealthStatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(response)
	}
}

// Common health check functions

// OverlaySocketCheck checks that the UDP overlay socket is bound.
func OverlaySocketCheck(bound bool, addr string) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if bound {
			return ComponentHealth{
				Status:  HealthStatusOK,
				Message: fmt.Sprintf("overlay socket bound on %s", addr),
			}
		}
		return ComponentHealth{
			Status:  HealthStatusUnhealthy,
			Message: "overlay socket not bound",
		}
	}
}

// ControllerReachableCheck reports the result of the last heartbeat attempt.
func ControllerReachableCheck(lastHeartbeatErr error, lastLatency time.Duration) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if lastHeartbeatErr == nil {
			return ComponentHealth{
				Status:    HealthStatusOK,
				Message:   "last heartbeat succeeded",
				LatencyMS: lastLatency.Milliseconds(),
			}
		}
		return ComponentHealth{
			Status:  HealthStatusDegraded,
			Message: fmt.Sprintf("last heartbeat failed: %v", lastHeartbeatErr),
		}
	}
}

// KeystoreCheck checks if identity keys are loaded.
func KeystoreCheck(keysLoaded bool) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if keysLoaded {
			return ComponentHealth{
				Status:  HealthStatusOK,
				Message: "identity keys loaded",
			}
		}
		return ComponentHealth{
			Status:  HealthStatusUnhealthy,
			Message: "identity keys not loaded",
		}
	}
}

// LocalDrivesCheck checks that at least one configured drive path is statable.
func LocalDrivesCheck(drivesOK, drivesTotal int) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if drivesTotal == 0 {
			return ComponentHealth{Status: HealthStatusDegraded, Message: "no drives configured"}
		}
		if drivesOK == drivesTotal {
			return ComponentHealth{Status: HealthStatusOK, Message: fmt.Sprintf("%d/%d drives reachable", drivesOK, drivesTotal)}
		}
		if drivesOK == 0 {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: "no drives reachable"}
		}
		return ComponentHealth{Status: HealthStatusDegraded, Message: fmt.Sprintf("%d/%d drives reachable", drivesOK, drivesTotal)}
	}
}

// DiskSpaceCheck checks available disk space on a path.
func DiskSpaceCheck(freeBytes, minFreeBytes int64) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if freeBytes > minFreeBytes {
			return ComponentHealth{
				Status:  HealthStatusOK,
				Message: fmt.Sprintf("%d bytes free", freeBytes),
			}
		}
		return ComponentHealth{
			Status:  HealthStatusDegraded,
			Message: fmt.Sprintf("low disk space: %d bytes free", freeBytes),
		}
	}
}
