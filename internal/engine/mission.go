package engine

import (
	"fmt"
	"time"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

const (
	DefaultItemRequestInterval = 50 * time.Millisecond
	DefaultItemRetryTimeout    = 3 * time.Second
	DefaultItemRetries         = 3
)

// MissionState is the state of the mission download
type MissionState int

const (
	MissionIdle MissionState = iota
	MissionAwaitingCount
	MissionFetching
	MissionComplete
)

func (s MissionState) String() string {
	switch s {
	case MissionIdle:
		return "Idle"
	case MissionAwaitingCount:
		return "AwaitingCount"
	case MissionFetching:
		return "FetchingItems"
	case MissionComplete:
		return "Complete"
	default:
		return fmt.Sprintf("MissionState(%d)", int(s))
	}
}

// missionFetcher drives the MISSION_REQUEST_LIST / MISSION_COUNT / MISSION_ITEM
// exchange. It never sends anything itself: item requests are queued and the
// engine pulls the ones that are due with next, so the loop never waits on the link.
type missionFetcher struct {
	interval     time.Duration // Pacing between item requests
	retryTimeout time.Duration // Silence after which missing items are requested again
	retries      int           // Maximum number of retry rounds

	state    MissionState
	pending  []int     // Sequence numbers still to request
	nextAt   time.Time // Earliest time the next request may go out
	activity time.Time // Last request sent or item received
	round    int
}

// requestList marks the list as requested. Pending item requests of an earlier
// download are dropped; downloaded slots stay until the new count arrives.
func (m *missionFetcher) requestList() {
	m.state = MissionAwaitingCount
	m.pending = nil
	m.round = 0
}

// onCount resets the slots to n items and queues one request per item. Returns
// the completed, empty, list when n is zero.
func (m *missionFetcher) onCount(s *Session, n int, now time.Time) *telemetry.WaypointList {
	s.ResetSlots(n)
	m.round = 0
	m.pending = nil

	if n == 0 {
		m.state = MissionComplete
		return &telemetry.WaypointList{Timestamp: now, Waypoints: []telemetry.Waypoint{}}
	}

	m.state = MissionFetching
	m.pending = make([]int, n)
	for i := range m.pending {
		m.pending[i] = i
	}
	m.nextAt = now
	m.activity = now
	return nil
}

// onItem stores a downloaded item. Returns the full ordered list when this item
// completed the mission.
func (m *missionFetcher) onItem(s *Session, wp telemetry.Waypoint, now time.Time) *telemetry.WaypointList {
	if m.state != MissionFetching || !s.Fill(wp) {
		return nil
	}
	m.activity = now

	if !s.Complete() {
		return nil
	}

	m.state = MissionComplete
	m.pending = nil
	return &telemetry.WaypointList{Timestamp: now, Waypoints: s.Waypoints()}
}

// next pops the item request that is due at now, if any
func (m *missionFetcher) next(s *Session, now time.Time) (int, bool) {
	for len(m.pending) > 0 && !now.Before(m.nextAt) {
		seq := m.pending[0]
		m.pending = m.pending[1:]

		if seq < len(s.Slots) && s.Slots[seq] != nil {
			continue // answered while queued
		}

		m.nextAt = now.Add(m.interval)
		m.activity = now
		return seq, true
	}
	return 0, false
}

// retry queues the still missing items once the download went quiet for longer
// than retryTimeout. It returns a LogEvent when a round is started or the download
// is given up.
func (m *missionFetcher) retry(s *Session, now time.Time) *telemetry.LogEvent {
	if m.state != MissionFetching || len(m.pending) > 0 || now.Sub(m.activity) < m.retryTimeout {
		return nil
	}

	missing := s.Missing()
	if m.round >= m.retries {
		m.state = MissionIdle
		return &telemetry.LogEvent{
			Severity:  telemetry.SeverityWarning,
			Text:      fmt.Sprintf("Mission download incomplete: %d of %d waypoints received", s.TotalWaypoints-len(missing), s.TotalWaypoints),
			Timestamp: now,
		}
	}

	m.round++
	m.pending = missing
	m.nextAt = now
	m.activity = now
	return &telemetry.LogEvent{
		Severity:  telemetry.SeverityDebug,
		Text:      fmt.Sprintf("Re-requesting %d missing waypoints", len(missing)),
		Timestamp: now,
	}
}

// wait returns how long the loop may block before the fetcher needs attention.
// The second value is false when nothing is scheduled.
func (m *missionFetcher) wait(now time.Time) (time.Duration, bool) {
	switch {
	case m.state != MissionFetching:
		return 0, false
	case len(m.pending) > 0:
		return max(m.nextAt.Sub(now), 0), true
	default:
		return max(m.activity.Add(m.retryTimeout).Sub(now), 0), true
	}
}
