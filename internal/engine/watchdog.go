package engine

import (
	"time"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

// DefaultHeartbeatTimeout is how long the link may stay silent before it is
// reported unhealthy
const DefaultHeartbeatTimeout = 5 * time.Second

const (
	reasonHeartbeatLost     = "Connection lost - waiting for heartbeat"
	reasonHeartbeatRestored = "Connection restored"
)

// watchdog detects a missing heartbeat. It only reports transitions.
type watchdog struct {
	timeout time.Duration
}

// check marks the session unhealthy when no heartbeat arrived within the timeout.
// Returns nil unless the health changed.
func (w watchdog) check(s *Session, now time.Time) *telemetry.HealthEvent {
	if !s.Healthy || now.Sub(s.LastHeartbeat) <= w.timeout {
		return nil
	}

	s.Healthy = false
	return &telemetry.HealthEvent{Healthy: false, Reason: reasonHeartbeatLost, Timestamp: now}
}

// beat records a heartbeat. Returns nil unless the health changed.
func (w watchdog) beat(s *Session, now time.Time) *telemetry.HealthEvent {
	s.LastHeartbeat = now
	if s.Healthy {
		return nil
	}

	s.Healthy = true
	return &telemetry.HealthEvent{Healthy: true, Reason: reasonHeartbeatRestored, Timestamp: now}
}
