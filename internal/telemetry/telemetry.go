package telemetry

import (
	"time"
)

type Provider interface {
	Get() *Telemetry
}

// Telemetry is the merged vehicle state as seen by a consumer of the delta stream.
// Nil fields have not been reported yet.
type Telemetry struct {
	Timestamp        time.Time   `json:"timestamp"`                  // Timestamp of the latest merged delta
	Latitude         *float64    `json:"latitude,omitempty"`         // GPS latitude in degrees
	Longitude        *float64    `json:"longitude,omitempty"`        // GPS longitude in degrees
	Altitude         *float64    `json:"altitude,omitempty"`         // Altitude in meters
	RelativeAltitude *float64    `json:"relativeAltitude,omitempty"` // Altitude above home in meters
	Roll             *float64    `json:"roll,omitempty"`             // Roll angle in degrees
	Pitch            *float64    `json:"pitch,omitempty"`            // Pitch angle in degrees
	Yaw              *float64    `json:"yaw,omitempty"`              // Yaw angle in degrees
	Heading          *float64    `json:"heading,omitempty"`          // Heading in degrees
	GroundSpeed      *float64    `json:"groundSpeed,omitempty"`      // Ground speed in m/s
	AirSpeed         *float64    `json:"airSpeed,omitempty"`         // Air speed in m/s
	Climb            *float64    `json:"climb,omitempty"`            // Climb rate in m/s
	Throttle         *float64    `json:"throttle,omitempty"`         // Throttle in percent
	Battery          *float64    `json:"battery,omitempty"`          // Battery remaining in percent
	Mode             *string     `json:"mode,omitempty"`             // Flight mode name
	FlyingType       *string     `json:"flyingType,omitempty"`       // Auto, Assisted, Return or Manual
	Armed            *bool       `json:"armed,omitempty"`            // Motors armed
	GPSFix           *string     `json:"gpsFix,omitempty"`           // GPS fix description
	Satellites       *int        `json:"satellites,omitempty"`       // Visible satellites
	Waypoint         *int        `json:"waypoint,omitempty"`         // Current mission item
	TotalWaypoints   *int        `json:"totalWaypoints,omitempty"`   // Mission size
	Home             *Coordinate `json:"home,omitempty"`             // Home position
	Distance         *float64    `json:"distance,omitempty"`         // Distance from home in meters
}

// Merge applies the delta fields on top of the current state. Unknown fields and
// values of an unexpected type are ignored.
func (t *Telemetry) Merge(d *Delta) {
	if d.Timestamp.After(t.Timestamp) {
		t.Timestamp = d.Timestamp
	}

	floats := map[string]**float64{
		FieldLatitude:         &t.Latitude,
		FieldLongitude:        &t.Longitude,
		FieldAltitude:         &t.Altitude,
		FieldRelativeAltitude: &t.RelativeAltitude,
		FieldRoll:             &t.Roll,
		FieldPitch:            &t.Pitch,
		FieldYaw:              &t.Yaw,
		FieldHeading:          &t.Heading,
		FieldGroundSpeed:      &t.GroundSpeed,
		FieldAirSpeed:         &t.AirSpeed,
		FieldClimb:            &t.Climb,
		FieldThrottle:         &t.Throttle,
		FieldBattery:          &t.Battery,
		FieldDistance:         &t.Distance,
	}
	for field, dst := range floats {
		if v, ok := d.Float(field); ok {
			*dst = &v
		}
	}

	strs := map[string]**string{
		FieldMode:       &t.Mode,
		FieldFlyingType: &t.FlyingType,
		FieldGPSFix:     &t.GPSFix,
	}
	for field, dst := range strs {
		if v, ok := d.Fields[field].(string); ok {
			*dst = &v
		}
	}

	ints := map[string]**int{
		FieldSatellites:     &t.Satellites,
		FieldWaypoint:       &t.Waypoint,
		FieldTotalWaypoints: &t.TotalWaypoints,
	}
	for field, dst := range ints {
		if v, ok := d.Fields[field].(int); ok {
			*dst = &v
		}
	}

	if v, ok := d.Fields[FieldArmed].(bool); ok {
		t.Armed = &v
	}

	if d.Has(FieldHomeLatitude, FieldHomeLongitude) {
		var home Coordinate
		home.Lat, _ = d.Float(FieldHomeLatitude)
		home.Lon, _ = d.Float(FieldHomeLongitude)
		home.Alt, _ = d.Float(FieldHomeAltitude)
		t.Home = &home
	}
}

// Clone returns a deep copy of the telemetry
func (t *Telemetry) Clone() *Telemetry {
	c := &Telemetry{}
	c.Merge(t.Delta())
	c.Timestamp = t.Timestamp
	return c
}

// Delta renders the known fields of t back into a delta
func (t *Telemetry) Delta() *Delta {
	d := NewDelta(t.Timestamp)

	floats := map[string]*float64{
		FieldLatitude:         t.Latitude,
		FieldLongitude:        t.Longitude,
		FieldAltitude:         t.Altitude,
		FieldRelativeAltitude: t.RelativeAltitude,
		FieldRoll:             t.Roll,
		FieldPitch:            t.Pitch,
		FieldYaw:              t.Yaw,
		FieldHeading:          t.Heading,
		FieldGroundSpeed:      t.GroundSpeed,
		FieldAirSpeed:         t.AirSpeed,
		FieldClimb:            t.Climb,
		FieldThrottle:         t.Throttle,
		FieldBattery:          t.Battery,
		FieldDistance:         t.Distance,
	}
	for field, v := range floats {
		if v != nil {
			d.Set(field, *v)
		}
	}

	strs := map[string]*string{
		FieldMode:       t.Mode,
		FieldFlyingType: t.FlyingType,
		FieldGPSFix:     t.GPSFix,
	}
	for field, v := range strs {
		if v != nil {
			d.Set(field, *v)
		}
	}

	ints := map[string]*int{
		FieldSatellites:     t.Satellites,
		FieldWaypoint:       t.Waypoint,
		FieldTotalWaypoints: t.TotalWaypoints,
	}
	for field, v := range ints {
		if v != nil {
			d.Set(field, *v)
		}
	}

	if t.Armed != nil {
		d.Set(FieldArmed, *t.Armed)
	}

	if t.Home != nil {
		d.Set(FieldHomeLatitude, t.Home.Lat)
		d.Set(FieldHomeLongitude, t.Home.Lon)
		d.Set(FieldHomeAltitude, t.Home.Alt)
	}

	return d
}
