package telemetry

import (
	"slices"

	"github.com/sasha-s/go-deadlock"
)

// Tracker consumes an event stream and keeps the merged vehicle view, the
// latest link health and the latest complete mission. It implements Provider.
type Tracker struct {
	mu        deadlock.RWMutex
	state     Telemetry
	healthy   bool
	waypoints []Waypoint
}

// NewTracker creates an empty Tracker
func NewTracker() *Tracker {
	return &Tracker{}
}

// Consume applies events until the channel is closed
func (t *Tracker) Consume(events <-chan Event) {
	for evt := range events {
		t.Apply(evt)
	}
}

// Apply merges a single event into the tracked state
func (t *Tracker) Apply(evt Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := evt.(type) {
	case *Delta:
		t.state.Merge(e)
	case *HealthEvent:
		t.healthy = e.Healthy
	case *WaypointList:
		t.waypoints = slices.Clone(e.Waypoints)
	}
}

// Get returns a copy of the merged telemetry
func (t *Tracker) Get() *Telemetry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.state.Clone()
}

// Healthy returns the link health reported by the last health event
func (t *Tracker) Healthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.healthy
}

// Waypoints returns the last complete mission, nil if none was received
func (t *Tracker) Waypoints() []Waypoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return slices.Clone(t.waypoints)
}
