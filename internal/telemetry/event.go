package telemetry

import (
	"fmt"
	"time"
)

// Delta field names
const (
	FieldLatitude         = "lat"
	FieldLongitude        = "lon"
	FieldAltitude         = "alt"
	FieldRelativeAltitude = "relative_alt"
	FieldRoll             = "roll"
	FieldPitch            = "pitch"
	FieldYaw              = "yaw"
	FieldHeading          = "heading"
	FieldGroundSpeed      = "groundspeed"
	FieldAirSpeed         = "airspeed"
	FieldClimb            = "climb"
	FieldThrottle         = "throttle"
	FieldBattery          = "battery"
	FieldMode             = "mode"
	FieldFlyingType       = "flying_type"
	FieldArmed            = "armed"
	FieldGPSFix           = "gps_fix"
	FieldSatellites       = "satellites"
	FieldWaypoint         = "waypoint"
	FieldTotalWaypoints   = "total_waypoints"
	FieldHomeLatitude     = "home_lat"
	FieldHomeLongitude    = "home_lon"
	FieldHomeAltitude     = "home_alt"
	FieldDistance         = "distance"
)

const (
	KindDelta     Kind = "telemetry"
	KindLog       Kind = "log"
	KindHealth    Kind = "health"
	KindWaypoints Kind = "waypoints"
)

// Kind identifies the type of Event
type Kind string

// Event is anything the engine publishes to subscribers: *Delta, *LogEvent,
// *HealthEvent or *WaypointList. Events are immutable once published.
type Event interface {
	Kind() Kind
	Time() time.Time
}

// Delta is a partial update of the vehicle state keyed by field name.
// Consumers merge deltas into their own view, see Telemetry.Merge.
type Delta struct {
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// NewDelta creates an empty delta stamped with t
func NewDelta(t time.Time) *Delta {
	return &Delta{Timestamp: t, Fields: make(map[string]any)}
}

func (d *Delta) Kind() Kind      { return KindDelta }
func (d *Delta) Time() time.Time { return d.Timestamp }

// Set stores the field value, replacing any previous one
func (d *Delta) Set(field string, value any) {
	d.Fields[field] = value
}

// Has reports whether every given field is present
func (d *Delta) Has(fields ...string) bool {
	for _, f := range fields {
		if _, ok := d.Fields[f]; !ok {
			return false
		}
	}
	return true
}

// Float returns a numeric field as float64
func (d *Delta) Float(field string) (float64, bool) {
	switch v := d.Fields[field].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Empty reports whether the delta carries no fields
func (d *Delta) Empty() bool {
	return len(d.Fields) == 0
}

// Clone returns a shallow copy of the delta, values are scalars
func (d *Delta) Clone() *Delta {
	c := &Delta{Timestamp: d.Timestamp, Fields: make(map[string]any, len(d.Fields))}
	for k, v := range d.Fields {
		c.Fields[k] = v
	}
	return c
}

// Severity of a LogEvent. Values 0..7 follow MAV_SEVERITY, 100 and above are
// ground-station bands.
type Severity int

const (
	SeverityEmergency Severity = 0
	SeverityAlert     Severity = 1
	SeverityCritical  Severity = 2
	SeverityError     Severity = 3
	SeverityWarning   Severity = 4
	SeverityNotice    Severity = 5
	SeverityInfo      Severity = 6
	SeverityDebug     Severity = 7

	SeverityWaypoint Severity = 100
	SeveritySystem   Severity = 101
	SeverityGPS      Severity = 102
	SeverityPosition Severity = 103
)

var severityLabels = map[Severity]string{
	SeverityEmergency: "EMERGENCY",
	SeverityAlert:     "ALERT",
	SeverityCritical:  "CRITICAL",
	SeverityError:     "ERROR",
	SeverityWarning:   "WARNING",
	SeverityNotice:    "NOTICE",
	SeverityInfo:      "INFO",
	SeverityDebug:     "DEBUG",
	SeverityWaypoint:  "WAYPOINT",
	SeveritySystem:    "SYSTEM",
	SeverityGPS:       "GPS",
	SeverityPosition:  "POSITION",
}

func (s Severity) String() string {
	if l, ok := severityLabels[s]; ok {
		return l
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// LogEvent is a severity-tagged text line, either sent by the vehicle or
// produced by the engine itself
type LogEvent struct {
	Severity  Severity  `json:"severity"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *LogEvent) Kind() Kind      { return KindLog }
func (e *LogEvent) Time() time.Time { return e.Timestamp }

// HealthEvent reports a change of link health. It is only emitted on transitions.
type HealthEvent struct {
	Healthy   bool      `json:"healthy"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *HealthEvent) Kind() Kind      { return KindHealth }
func (e *HealthEvent) Time() time.Time { return e.Timestamp }

// Coordinate is a geodetic position in degrees and meters
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// Waypoint is a single mission item downloaded from the vehicle
type Waypoint struct {
	Seq int     `json:"seq"` // Sequence index within the mission
	Lat float64 `json:"lat"` // Latitude in degrees
	Lon float64 `json:"lon"` // Longitude in degrees
	Alt float64 `json:"alt"` // Altitude in meters, frame as reported by the vehicle
}

// WaypointList is the complete mission, ordered by sequence index
type WaypointList struct {
	Timestamp time.Time  `json:"timestamp"`
	Waypoints []Waypoint `json:"waypoints"`
}

func (e *WaypointList) Kind() Kind      { return KindWaypoints }
func (e *WaypointList) Time() time.Time { return e.Timestamp }
