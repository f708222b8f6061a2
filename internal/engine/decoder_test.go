package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

func newTestDecoder() *decoder {
	s := NewSession(time.Now())
	return &decoder{session: s, mission: &missionFetcher{interval: DefaultItemRequestInterval}}
}

func TestModeClassification(t *testing.T) {
	testCases := []struct {
		code   uint32
		mode   string
		flying string
	}{
		{0, "STABILIZE", FlyingManual},
		{3, "AUTO", FlyingAuto},
		{4, "GUIDED", FlyingAuto},
		{5, "LOITER", FlyingAssisted},
		{6, "RTL", FlyingAuto},
		{7, "CIRCLE", FlyingAssisted},
		{16, "BRAKE", FlyingManual},
		{20, "SMART_RTL", FlyingAuto},
		{26, "AUTO_RTL", FlyingAuto},
		{27, "UNKNOWN_27", FlyingManual},
		{1000, "UNKNOWN_1000", FlyingManual},
	}

	for _, tc := range testCases {
		t.Run(tc.mode, func(t *testing.T) {
			mode := ModeName(tc.code)
			if mode != tc.mode {
				t.Fatalf("Expected mode %s, got %s", tc.mode, mode)
			}
			if got := Classify(mode); got != tc.flying {
				t.Errorf("Expected %s, got %s", tc.flying, got)
			}
		})
	}
}

func TestBatteryPercent(t *testing.T) {
	testCases := []struct {
		name      string
		remaining int8
		voltage   uint16
		expected  float64
		ok        bool
	}{
		{"reported remaining wins", 80, 9000, 80, true},
		{"zero remaining", 0, 12600, 0, true},
		{"full pack", -1, 12600, 100, true},
		{"half pack", -1, 11100, 50, true},
		{"empty pack", -1, 9600, 0, true},
		{"below empty clamps", -1, 5000, 0, true},
		{"above full clamps", -1, 13500, 100, true},
		{"nothing reported", -1, math.MaxUint16, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := batteryPercent(tc.remaining, tc.voltage)
			if ok != tc.ok {
				t.Fatalf("Expected ok=%v, got %v", tc.ok, ok)
			}
			if math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("Expected %f, got %f", tc.expected, got)
			}
		})
	}
}

func TestDecoder_VfrHud(t *testing.T) {
	dc := newTestDecoder()

	out, err := dc.decode(&common.MessageVfrHud{
		Airspeed:    12.5,
		Groundspeed: 11,
		Heading:     271,
		Throttle:    45,
		Alt:         102.5,
		Climb:       -0.5,
	}, time.Now())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	fields := []string{
		telemetry.FieldHeading,
		telemetry.FieldAltitude,
		telemetry.FieldGroundSpeed,
		telemetry.FieldAirSpeed,
		telemetry.FieldClimb,
		telemetry.FieldThrottle,
	}
	if !out.delta.Has(fields...) || len(out.delta.Fields) != len(fields) {
		t.Fatalf("Expected exactly %v, got %v", fields, out.delta.Fields)
	}
	if heading, _ := out.delta.Float(telemetry.FieldHeading); heading != 271 {
		t.Errorf("Expected heading 271, got %f", heading)
	}
}

func TestDecoder_Heartbeat(t *testing.T) {
	dc := newTestDecoder()
	now := time.Now()

	out, err := dc.decode(&common.MessageHeartbeat{Autopilot: 3, BaseMode: 0x81, CustomMode: 3}, now)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.delta.Fields[telemetry.FieldMode] != "AUTO" || out.delta.Fields[telemetry.FieldFlyingType] != FlyingAuto {
		t.Errorf("Unexpected mode fields %v", out.delta.Fields)
	}
	if out.delta.Fields[telemetry.FieldArmed] != true {
		t.Errorf("Expected armed, got %v", out.delta.Fields[telemetry.FieldArmed])
	}
	if len(out.logs) != 1 || out.logs[0].Severity != telemetry.SeveritySystem {
		t.Fatalf("Expected one system log, got %+v", out.logs)
	}

	out, _ = dc.decode(&common.MessageHeartbeat{Autopilot: 3, BaseMode: 0x81, CustomMode: 5}, now)
	if len(out.logs) != 0 {
		t.Errorf("Expected no log while armed state is unchanged, got %+v", out.logs)
	}

	out, _ = dc.decode(&common.MessageHeartbeat{Autopilot: 3, BaseMode: 0x01, CustomMode: 5}, now)
	if len(out.logs) != 1 || out.logs[0].Text != "Vehicle DISARMED" {
		t.Errorf("Expected a disarm log, got %+v", out.logs)
	}

	out, _ = dc.decode(&common.MessageHeartbeat{Autopilot: autopilotInvalid, CustomMode: 3}, now)
	if !out.delta.Empty() {
		t.Errorf("Expected heartbeats of other components to be ignored, got %v", out.delta.Fields)
	}
}

func TestDecoder_GPSFixLoggedOnChange(t *testing.T) {
	dc := newTestDecoder()
	now := time.Now()

	reports := []*common.MessageGpsRawInt{
		{FixType: 1, SatellitesVisible: 255},
		{FixType: 3, SatellitesVisible: 255},
		{FixType: 3, SatellitesVisible: 255},
		{FixType: 6, SatellitesVisible: 255},
	}

	var logs []*telemetry.LogEvent
	for _, report := range reports {
		out, err := dc.decode(report, now)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if out.delta.Has(telemetry.FieldSatellites) {
			t.Errorf("Expected unknown satellite count to be omitted")
		}
		logs = append(logs, out.logs...)
	}

	expected := []string{"GPS: No Fix", "GPS: 3D Fix", "GPS: RTK Fixed"}
	if len(logs) != len(expected) {
		t.Fatalf("Expected %d logs, got %+v", len(expected), logs)
	}
	for i, l := range logs {
		if l.Text != expected[i] || l.Severity != telemetry.SeverityGPS {
			t.Errorf("Log %d: expected %q, got %+v", i, expected[i], l)
		}
	}
}

func TestDecoder_Malformed(t *testing.T) {
	testCases := []struct {
		name string
		msg  message.Message
	}{
		{"invalid text", &common.MessageStatustext{Severity: 6, Text: "bad \xff\xfe"}},
		{"position out of range", &common.MessageGlobalPositionInt{Lat: 1_000_000_000, Lon: 0}},
		{"infinite airspeed", &common.MessageVfrHud{Airspeed: float32(math.Inf(1))}},
		{"NaN item", &common.MessageMissionItem{X: float32(math.NaN())}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dc := newTestDecoder()

			_, err := dc.decode(tc.msg, time.Now())
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecoder_IgnoresUnknownMessages(t *testing.T) {
	dc := newTestDecoder()

	out, err := dc.decode(&common.MessageRawImu{Xacc: 1}, time.Now())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !out.delta.Empty() || len(out.logs) != 0 {
		t.Errorf("Expected nothing, got %+v", out)
	}
}
