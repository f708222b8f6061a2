package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

// ErrMalformed is returned for a message whose fields cannot be trusted. The
// message is skipped and the session left untouched.
var ErrMalformed = errors.New("malformed message")

const (
	cellEmptyVoltage = 3.2
	cellFullVoltage  = 4.2
	packCells        = 3

	unknownVoltage    = math.MaxUint16
	unknownSatellites = math.MaxUint8

	autopilotInvalid = 8    // MAV_AUTOPILOT_INVALID
	modeFlagArmed    = 0x80 // MAV_MODE_FLAG_SAFETY_ARMED
	missionTypePlan  = 0    // MAV_MISSION_TYPE_MISSION
)

var gpsFixDescriptions = map[int]string{
	0: "No GPS",
	1: "No Fix",
	2: "2D Fix",
	3: "3D Fix",
	4: "DGPS",
	5: "RTK Float",
	6: "RTK Fixed",
}

// decoded is the outcome of a single message
type decoded struct {
	delta     *telemetry.Delta
	logs      []*telemetry.LogEvent
	waypoints *telemetry.WaypointList // set when the message completed the mission
}

func (d *decoded) log(severity telemetry.Severity, text string) {
	d.logs = append(d.logs, &telemetry.LogEvent{Severity: severity, Text: text, Timestamp: d.delta.Timestamp})
}

// decoder maps messages of the common dialect to deltas. It updates the session
// as a side effect.
type decoder struct {
	session *Session
	mission *missionFetcher
}

// decode translates msg. Unhandled message types yield an empty delta.
func (dc *decoder) decode(msg message.Message, now time.Time) (*decoded, error) {
	out := &decoded{delta: telemetry.NewDelta(now)}
	s := dc.session
	d := out.delta

	switch m := msg.(type) {
	case *common.MessageGpsRawInt:
		if err := checkPosition("GPS_RAW_INT", m.Lat, m.Lon); err != nil {
			return nil, err
		}
		d.Set(telemetry.FieldLatitude, scaleDegrees(m.Lat))
		d.Set(telemetry.FieldLongitude, scaleDegrees(m.Lon))
		d.Set(telemetry.FieldAltitude, scaleMillimeters(m.Alt))

		fix := int(m.FixType)
		desc := gpsFixDescription(fix)
		d.Set(telemetry.FieldGPSFix, desc)
		if m.SatellitesVisible != unknownSatellites {
			d.Set(telemetry.FieldSatellites, int(m.SatellitesVisible))
		}
		if fix != s.gpsFix {
			s.gpsFix = fix
			out.log(telemetry.SeverityGPS, "GPS: "+desc)
		}

	case *common.MessageGlobalPositionInt:
		if err := checkPosition("GLOBAL_POSITION_INT", m.Lat, m.Lon); err != nil {
			return nil, err
		}
		d.Set(telemetry.FieldLatitude, scaleDegrees(m.Lat))
		d.Set(telemetry.FieldLongitude, scaleDegrees(m.Lon))
		d.Set(telemetry.FieldAltitude, scaleMillimeters(m.Alt))
		d.Set(telemetry.FieldRelativeAltitude, scaleMillimeters(m.RelativeAlt))

	case *common.MessageAttitude:
		if err := checkFinite("ATTITUDE", m.Roll, m.Pitch, m.Yaw); err != nil {
			return nil, err
		}
		d.Set(telemetry.FieldRoll, degrees(m.Roll))
		d.Set(telemetry.FieldPitch, degrees(m.Pitch))
		d.Set(telemetry.FieldYaw, degrees(m.Yaw))

	case *common.MessageVfrHud:
		if err := checkFinite("VFR_HUD", m.Airspeed, m.Groundspeed, m.Alt, m.Climb); err != nil {
			return nil, err
		}
		d.Set(telemetry.FieldHeading, float64(m.Heading))
		d.Set(telemetry.FieldAltitude, float64(m.Alt))
		d.Set(telemetry.FieldGroundSpeed, float64(m.Groundspeed))
		d.Set(telemetry.FieldAirSpeed, float64(m.Airspeed))
		d.Set(telemetry.FieldClimb, float64(m.Climb))
		d.Set(telemetry.FieldThrottle, float64(m.Throttle))

	case *common.MessageSysStatus:
		if battery, ok := batteryPercent(m.BatteryRemaining, m.VoltageBattery); ok {
			d.Set(telemetry.FieldBattery, battery)
		}

	case *common.MessageHeartbeat:
		if m.Autopilot == autopilotInvalid {
			break // not a flight controller, liveness only
		}

		mode := ModeName(m.CustomMode)
		armed := m.BaseMode&modeFlagArmed != 0
		d.Set(telemetry.FieldMode, mode)
		d.Set(telemetry.FieldFlyingType, Classify(mode))
		d.Set(telemetry.FieldArmed, armed)

		if s.armed == nil || *s.armed != armed {
			s.armed = &armed
			if armed {
				out.log(telemetry.SeveritySystem, "Vehicle ARMED")
			} else {
				out.log(telemetry.SeveritySystem, "Vehicle DISARMED")
			}
		}

	case *common.MessageStatustext:
		text := strings.TrimRight(m.Text, "\x00")
		if !utf8.ValidString(text) {
			return nil, fmt.Errorf("%w: STATUSTEXT is not valid UTF-8", ErrMalformed)
		}
		out.log(telemetry.Severity(m.Severity), text)

	case *common.MessageHomePosition:
		if err := checkPosition("HOME_POSITION", m.Latitude, m.Longitude); err != nil {
			return nil, err
		}
		home := telemetry.Coordinate{
			Lat: scaleDegrees(m.Latitude),
			Lon: scaleDegrees(m.Longitude),
			Alt: scaleMillimeters(m.Altitude),
		}
		if s.Home != nil && *s.Home == home {
			break
		}

		s.Home = &home
		setHome(d, home)
		out.log(telemetry.SeverityPosition, fmt.Sprintf("Home position set: %.7f, %.7f, %.1f m", home.Lat, home.Lon, home.Alt))

	case *common.MessageMissionCount:
		if m.MissionType != missionTypePlan {
			break
		}
		out.waypoints = dc.mission.onCount(s, int(m.Count), now)
		setWaypoint(d, s)

	case *common.MessageMissionCurrent:
		s.CurrentWaypoint = int(m.Seq)
		setWaypoint(d, s)

	case *common.MessageMissionItemInt:
		if m.MissionType != missionTypePlan {
			break
		}
		if err := checkFinite("MISSION_ITEM_INT", m.Z); err != nil {
			return nil, err
		}
		out.waypoints = dc.mission.onItem(s, telemetry.Waypoint{
			Seq: int(m.Seq),
			Lat: scaleDegrees(m.X),
			Lon: scaleDegrees(m.Y),
			Alt: float64(m.Z),
		}, now)

	case *common.MessageMissionItem:
		if m.MissionType != missionTypePlan {
			break
		}
		if err := checkFinite("MISSION_ITEM", m.X, m.Y, m.Z); err != nil {
			return nil, err
		}
		out.waypoints = dc.mission.onItem(s, telemetry.Waypoint{
			Seq: int(m.Seq),
			Lat: float64(m.X),
			Lon: float64(m.Y),
			Alt: float64(m.Z),
		}, now)

	case *common.MessageMissionItemReached:
		out.log(telemetry.SeverityWaypoint, fmt.Sprintf("Waypoint #%d reached", m.Seq))
	}

	return out, nil
}

func setWaypoint(d *telemetry.Delta, s *Session) {
	d.Set(telemetry.FieldWaypoint, s.CurrentWaypoint)
	d.Set(telemetry.FieldTotalWaypoints, s.TotalWaypoints)
}

// batteryPercent prefers the autopilot's own estimate and falls back to the pack
// voltage. The second value is false when neither is reported.
func batteryPercent(remaining int8, voltage uint16) (float64, bool) {
	if remaining >= 0 {
		return float64(remaining), true
	}
	if voltage == unknownVoltage {
		return 0, false
	}

	cell := float64(voltage) / 1000 / packCells
	pct := (cell - cellEmptyVoltage) / (cellFullVoltage - cellEmptyVoltage) * 100
	return min(max(pct, 0), 100), true
}

func gpsFixDescription(fix int) string {
	if desc, ok := gpsFixDescriptions[fix]; ok {
		return desc
	}
	return fmt.Sprintf("Fix type %d", fix)
}

func scaleDegrees(v int32) float64 {
	return float64(v) / 1e7
}

func scaleMillimeters(v int32) float64 {
	return float64(v) / 1000
}

func degrees(rad float32) float64 {
	return float64(rad) * 180 / math.Pi
}

func checkPosition(name string, lat, lon int32) error {
	if math.Abs(scaleDegrees(lat)) > 90 || math.Abs(scaleDegrees(lon)) > 180 {
		return fmt.Errorf("%w: %s position %d,%d out of range", ErrMalformed, name, lat, lon)
	}
	return nil
}

func checkFinite(name string, values ...float32) error {
	for _, v := range values {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %s carries a non-finite value", ErrMalformed, name)
		}
	}
	return nil
}
