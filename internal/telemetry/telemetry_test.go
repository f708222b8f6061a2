package telemetry

import (
	"testing"
	"time"
)

func TestTelemetry_Merge(t *testing.T) {
	base := time.Now()

	first := NewDelta(base)
	first.Set(FieldLatitude, 47.39)
	first.Set(FieldLongitude, 8.54)
	first.Set(FieldMode, "LOITER")
	first.Set(FieldWaypoint, 2)
	first.Set(FieldArmed, true)

	second := NewDelta(base.Add(time.Second))
	second.Set(FieldLatitude, 47.40)
	second.Set(FieldHomeLatitude, 47.0)
	second.Set(FieldHomeLongitude, 8.0)
	second.Set(FieldHomeAltitude, 420.5)
	second.Set("unknown", 1)

	var tm Telemetry
	tm.Merge(first)
	tm.Merge(second)

	if tm.Latitude == nil || *tm.Latitude != 47.40 {
		t.Errorf("Expected latitude 47.40, got %v", tm.Latitude)
	}
	if tm.Longitude == nil || *tm.Longitude != 8.54 {
		t.Errorf("Expected longitude to survive the second delta, got %v", tm.Longitude)
	}
	if tm.Mode == nil || *tm.Mode != "LOITER" {
		t.Errorf("Expected mode LOITER, got %v", tm.Mode)
	}
	if tm.Waypoint == nil || *tm.Waypoint != 2 {
		t.Errorf("Expected waypoint 2, got %v", tm.Waypoint)
	}
	if tm.Armed == nil || !*tm.Armed {
		t.Errorf("Expected armed, got %v", tm.Armed)
	}
	if tm.Home == nil || tm.Home.Alt != 420.5 {
		t.Errorf("Expected home altitude 420.5, got %+v", tm.Home)
	}
	if !tm.Timestamp.Equal(base.Add(time.Second)) {
		t.Errorf("Expected timestamp of the latest delta, got %s", tm.Timestamp)
	}
	if tm.Altitude != nil {
		t.Errorf("Expected altitude to stay unknown, got %v", *tm.Altitude)
	}
}

func TestTelemetry_Clone(t *testing.T) {
	d := NewDelta(time.Now())
	d.Set(FieldBattery, 77.0)
	d.Set(FieldSatellites, 12)

	var tm Telemetry
	tm.Merge(d)

	c := tm.Clone()
	*c.Battery = 10

	if *tm.Battery != 77.0 {
		t.Errorf("Clone shares memory with the original: battery %v", *tm.Battery)
	}
	if c.Satellites == nil || *c.Satellites != 12 {
		t.Errorf("Expected 12 satellites on the clone, got %v", c.Satellites)
	}
}

func TestSeverity_String(t *testing.T) {
	testCases := []struct {
		severity Severity
		expected string
	}{
		{SeverityEmergency, "EMERGENCY"},
		{SeverityDebug, "DEBUG"},
		{SeverityWaypoint, "WAYPOINT"},
		{SeverityPosition, "POSITION"},
		{Severity(42), "UNKNOWN(42)"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if got := tc.severity.String(); got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestTracker_Apply(t *testing.T) {
	tr := NewTracker()

	events := make(chan Event, 4)
	d := NewDelta(time.Now())
	d.Set(FieldHeading, 270.0)
	events <- d
	events <- &HealthEvent{Healthy: true, Reason: "Connected"}
	events <- &WaypointList{Waypoints: []Waypoint{{Seq: 0, Lat: 1, Lon: 2, Alt: 3}}}
	events <- &LogEvent{Severity: SeverityInfo, Text: "ignored"}
	close(events)

	tr.Consume(events)

	if got := tr.Get(); got.Heading == nil || *got.Heading != 270.0 {
		t.Errorf("Expected heading 270, got %v", got.Heading)
	}
	if !tr.Healthy() {
		t.Error("Expected tracker to report a healthy link")
	}
	if wps := tr.Waypoints(); len(wps) != 1 || wps[0].Alt != 3 {
		t.Errorf("Expected one waypoint, got %+v", wps)
	}
}
