package engine

import (
	"math"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

// EarthRadius is the mean Earth radius in meters
const EarthRadius = 6_371_000.0

// Haversine returns the great-circle distance between a and b in meters
func Haversine(a, b telemetry.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	return EarthRadius * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PathLength is the summed great-circle length of the legs between consecutive
// waypoints in meters
func PathLength(waypoints []telemetry.Waypoint) float64 {
	var total float64
	for i := 1; i < len(waypoints); i++ {
		a, b := waypoints[i-1], waypoints[i]
		total += Haversine(telemetry.Coordinate{Lat: a.Lat, Lon: a.Lon}, telemetry.Coordinate{Lat: b.Lat, Lon: b.Lon})
	}
	return total
}

// aggregate merges session-derived quantities into a decoded delta: home
// coordinates the first time a position is reported and the distance from home
// on every position.
func aggregate(s *Session, d *telemetry.Delta) {
	if d.Has(telemetry.FieldHomeLatitude, telemetry.FieldHomeLongitude) {
		s.HomeAnnounced = true
	}

	if !d.Has(telemetry.FieldLatitude, telemetry.FieldLongitude) || s.Home == nil {
		return
	}

	if !s.HomeAnnounced {
		setHome(d, *s.Home)
		s.HomeAnnounced = true
	}

	lat, _ := d.Float(telemetry.FieldLatitude)
	lon, _ := d.Float(telemetry.FieldLongitude)
	d.Set(telemetry.FieldDistance, Haversine(*s.Home, telemetry.Coordinate{Lat: lat, Lon: lon}))
}

func setHome(d *telemetry.Delta, home telemetry.Coordinate) {
	d.Set(telemetry.FieldHomeLatitude, home.Lat)
	d.Set(telemetry.FieldHomeLongitude, home.Lon)
	d.Set(telemetry.FieldHomeAltitude, home.Alt)
}
