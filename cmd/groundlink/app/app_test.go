package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/groundlink/internal/events"
	"github.com/roman-kulish/groundlink/internal/storage"
	"github.com/roman-kulish/groundlink/internal/telemetry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedSource publishes a fixed list of events and stops
type scriptedSource struct {
	publisher *events.Emitter
	events    []telemetry.Event
	err       error
}

func (s *scriptedSource) Start(context.Context) (<-chan struct{}, error) {
	if s.err != nil {
		return nil, s.err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, evt := range s.events {
			_ = s.publisher.Publish(evt)
		}
	}()
	return done, nil
}

// collector records every event it consumes
type collector struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (c *collector) Consume(events <-chan telemetry.Event) {
	for evt := range events {
		c.mu.Lock()
		c.events = append(c.events, evt)
		c.mu.Unlock()
	}
}

// quitter stops reading after the first event
type quitter struct {
	got int
}

func (q *quitter) Consume(events <-chan telemetry.Event) {
	if _, ok := <-events; ok {
		q.got++
	}
}

// memoryStore is a storage.Store keeping missions in memory
type memoryStore struct {
	storage.Store

	mu       sync.Mutex
	missions []*telemetry.WaypointList
	ended    bool
	failNext bool
}

func (m *memoryStore) CreateSession(context.Context, time.Time, string, any) (int64, error) {
	return 7, nil
}

func (m *memoryStore) EndSession(_ context.Context, id int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != 7 {
		return storage.ErrSessionNotFound
	}
	m.ended = true
	return nil
}

func (m *memoryStore) StoreMission(_ context.Context, _ int64, list *telemetry.WaypointList) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext {
		m.failNext = false
		return 0, errors.New("disk full")
	}
	m.missions = append(m.missions, list)
	return int64(len(m.missions)), nil
}

func TestOrchestrator_DeliversEverything(t *testing.T) {
	emitter := events.NewEmitter()
	o := NewOrchestrator(emitter, discardLogger())

	first, second := &collector{}, &collector{}
	if err := o.AddConsumer("first", first); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := o.AddConsumer("second", second); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	source := &scriptedSource{
		publisher: emitter,
		events: []telemetry.Event{
			&telemetry.HealthEvent{Healthy: true, Reason: "Connected"},
			&telemetry.LogEvent{Severity: telemetry.SeverityInfo, Text: "hello"},
			&telemetry.WaypointList{Waypoints: []telemetry.Waypoint{{Seq: 0}}},
		},
	}

	if err := o.Run(context.Background(), source); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for name, c := range map[string]*collector{"first": first, "second": second} {
		if len(c.events) != 3 {
			t.Fatalf("%s: expected 3 events, got %d", name, len(c.events))
		}
		if c.events[0].Kind() != telemetry.KindHealth || c.events[2].Kind() != telemetry.KindWaypoints {
			t.Errorf("%s: events out of order: %v, %v", name, c.events[0].Kind(), c.events[2].Kind())
		}
	}

	if err := o.AddConsumer("late", &collector{}); err == nil {
		t.Error("Expected error subscribing after shutdown")
	}
}

func TestOrchestrator_ConsumerReturnsEarly(t *testing.T) {
	emitter := events.NewEmitter()
	o := NewOrchestrator(emitter, discardLogger())

	early, full := &quitter{}, &collector{}
	if err := o.AddConsumer("early", early); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := o.AddConsumer("full", full); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	source := &scriptedSource{publisher: emitter}
	for i := 0; i < 10; i++ {
		source.events = append(source.events, &telemetry.LogEvent{Text: "tick"})
	}

	finished := make(chan error, 1)
	go func() { finished <- o.Run(context.Background(), source) }()

	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Orchestrator did not shut down with a consumer that stopped reading")
	}

	if early.got != 1 {
		t.Errorf("Expected the early consumer to read one event, got %d", early.got)
	}
	if len(full.events) != 10 {
		t.Errorf("Expected the other consumer to get all 10 events, got %d", len(full.events))
	}
}

func TestOrchestrator_SourceFails(t *testing.T) {
	emitter := events.NewEmitter()
	o := NewOrchestrator(emitter, discardLogger())

	c := &collector{}
	if err := o.AddConsumer("collector", c); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	err := o.Run(context.Background(), &scriptedSource{err: errors.New("no link")})
	if err == nil || !strings.Contains(err.Error(), "no link") {
		t.Fatalf("Expected source error, got %v", err)
	}
	if len(c.events) != 0 {
		t.Errorf("Expected no events, got %d", len(c.events))
	}
}

func TestArchive_Consume(t *testing.T) {
	store := &memoryStore{failNext: true}
	archive, err := NewArchive(context.Background(), store, "tcp:127.0.0.1:5763", nil, discardLogger())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if archive.SessionID() != 7 {
		t.Errorf("Expected session 7, got %d", archive.SessionID())
	}

	ch := make(chan telemetry.Event, 4)
	ch <- &telemetry.WaypointList{Waypoints: []telemetry.Waypoint{{Seq: 0}}}
	ch <- &telemetry.LogEvent{Text: "not a mission"}
	ch <- &telemetry.WaypointList{Waypoints: []telemetry.Waypoint{{Seq: 0}, {Seq: 1}}}
	close(ch)

	archive.Consume(ch)

	if len(store.missions) != 1 || len(store.missions[0].Waypoints) != 2 {
		t.Errorf("Expected the second mission to be stored, got %+v", store.missions)
	}
	if !store.ended {
		t.Error("Expected the session to be ended")
	}
}

func TestConsole_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	console := NewConsole(logger)

	d := telemetry.NewDelta(time.Now())
	d.Set(telemetry.FieldMode, "AUTO")
	d.Set(telemetry.FieldFlyingType, "Auto")

	console.Log(&telemetry.LogEvent{Severity: telemetry.SeverityCritical, Text: "Battery failsafe"})
	console.Log(&telemetry.HealthEvent{Healthy: false, Reason: "Connection lost"})
	console.Log(d)
	console.Log(d.Clone()) // same mode, not repeated
	console.Log(&telemetry.WaypointList{Waypoints: []telemetry.Waypoint{
		{Seq: 0, Lat: 0, Lon: 0},
		{Seq: 1, Lat: 0, Lon: 0.01},
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	expected := [][]string{
		{"level=ERROR", "msg=\"Battery failsafe\"", "severity=CRITICAL"},
		{"level=WARN", "msg=\"link health changed\"", "healthy=false"},
		{"level=INFO", "msg=\"flight mode\"", "mode=AUTO", "type=Auto"},
		{"level=INFO", "msg=\"mission downloaded\"", "waypoints=2", "path=\"1.11 km\""},
	}
	if len(lines) != len(expected) {
		t.Fatalf("Expected %d lines, got %d:\n%s", len(expected), len(lines), buf.String())
	}
	for i, fragments := range expected {
		for _, f := range fragments {
			if !strings.Contains(lines[i], f) {
				t.Errorf("Line %d: expected %q in %s", i, f, lines[i])
			}
		}
	}
}

func TestSeverityLevel(t *testing.T) {
	testCases := []struct {
		severity telemetry.Severity
		expected slog.Level
	}{
		{telemetry.SeverityEmergency, slog.LevelError},
		{telemetry.SeverityError, slog.LevelError},
		{telemetry.SeverityWarning, slog.LevelWarn},
		{telemetry.SeverityNotice, slog.LevelInfo},
		{telemetry.SeverityInfo, slog.LevelInfo},
		{telemetry.SeverityDebug, slog.LevelDebug},
		{telemetry.SeverityWaypoint, slog.LevelInfo},
		{telemetry.SeverityPosition, slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.severity.String(), func(t *testing.T) {
			if got := severityLevel(tc.severity); got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestFormatDistance(t *testing.T) {
	testCases := []struct {
		meters   float64
		expected string
	}{
		{0, "0 m"},
		{250, "250 m"},
		{1500, "1.5 km"},
		{1111.95, "1.11 km"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if got := formatDistance(tc.meters); got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestRouter_Telemetry(t *testing.T) {
	tracker := telemetry.NewTracker()
	d := telemetry.NewDelta(time.Now())
	d.Set(telemetry.FieldLatitude, 47.5)
	d.Set(telemetry.FieldMode, "GUIDED")
	tracker.Apply(d)

	server := httptest.NewServer(newRouter(http.NotFoundHandler(), tracker))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/telemetry")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %s", ct)
	}

	var got telemetry.Telemetry
	if err = json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.Latitude == nil || *got.Latitude != 47.5 {
		t.Errorf("Expected latitude 47.5, got %v", got.Latitude)
	}
	if got.Mode == nil || *got.Mode != "GUIDED" {
		t.Errorf("Expected mode GUIDED, got %v", got.Mode)
	}
}

func TestCreateStorage(t *testing.T) {
	dir := t.TempDir() + "/nested/data"

	store, err := createStorage(&StorageConfig{Enabled: true, DataDirectory: dir})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer store.Close()

	id, err := store.CreateSession(context.Background(), time.Now(), "tcp:127.0.0.1:5763", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if id <= 0 {
		t.Errorf("Expected a positive session id, got %d", id)
	}
}
