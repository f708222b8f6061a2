package engine

import (
	"time"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

// Session is the long-lived vehicle state of one engine run. It is owned by the
// ingestion goroutine and never read by anyone else; consumers only see the
// events derived from it.
type Session struct {
	Home          *telemetry.Coordinate // Home position, nil until reported
	HomeAnnounced bool                  // Home fields were attached to a delta

	CurrentWaypoint int                   // Mission item the vehicle is heading to
	TotalWaypoints  int                   // Declared mission size
	Slots           []*telemetry.Waypoint // Downloaded items, len == TotalWaypoints

	Healthy           bool      // Link health as last reported
	LastHeartbeat     time.Time // Arrival of the last heartbeat
	ReconnectAttempts int       // Consecutive transport failures

	armed  *bool // Last armed state, nil until the first autopilot heartbeat
	gpsFix int   // Last GPS fix type, -1 until reported
}

// NewSession creates the session state at engine start
func NewSession(now time.Time) *Session {
	return &Session{
		Healthy:       true,
		LastHeartbeat: now,
		gpsFix:        -1,
	}
}

// ResetSlots discards the downloaded items and allocates n empty slots
func (s *Session) ResetSlots(n int) {
	s.TotalWaypoints = n
	s.Slots = make([]*telemetry.Waypoint, n)
}

// Fill stores a waypoint in its slot. Out of range or already filled slots are
// left untouched and Fill returns false.
func (s *Session) Fill(wp telemetry.Waypoint) bool {
	if wp.Seq < 0 || wp.Seq >= len(s.Slots) || s.Slots[wp.Seq] != nil {
		return false
	}
	s.Slots[wp.Seq] = &wp
	return true
}

// Missing returns the sequence numbers of the empty slots
func (s *Session) Missing() []int {
	var missing []int
	for i, wp := range s.Slots {
		if wp == nil {
			missing = append(missing, i)
		}
	}
	return missing
}

// Complete reports whether every declared slot holds a waypoint
func (s *Session) Complete() bool {
	return len(s.Slots) == s.TotalWaypoints && len(s.Missing()) == 0
}

// Waypoints returns the downloaded items ordered by sequence. Empty slots are skipped.
func (s *Session) Waypoints() []telemetry.Waypoint {
	wps := make([]telemetry.Waypoint, 0, len(s.Slots))
	for _, wp := range s.Slots {
		if wp != nil {
			wps = append(wps, *wp)
		}
	}
	return wps
}
