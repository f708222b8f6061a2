package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/groundlink/internal/engine"
	"github.com/roman-kulish/groundlink/internal/telemetry"
)

// Console writes the event stream to the application log
type Console struct {
	logger *slog.Logger
	mode   string
}

// NewConsole creates a Console logging through logger
func NewConsole(logger *slog.Logger) *Console {
	return &Console{logger: logger.With(slog.String("component", "console"))}
}

// Consume logs events until the channel is closed
func (c *Console) Consume(events <-chan telemetry.Event) {
	for evt := range events {
		c.Log(evt)
	}
}

// Log writes a single event
func (c *Console) Log(evt telemetry.Event) {
	ctx := context.Background()

	switch e := evt.(type) {
	case *telemetry.LogEvent:
		c.logger.Log(ctx, severityLevel(e.Severity), e.Text, slog.String("severity", e.Severity.String()))

	case *telemetry.HealthEvent:
		level := slog.LevelInfo
		if !e.Healthy {
			level = slog.LevelWarn
		}
		c.logger.Log(ctx, level, "link health changed", slog.Bool("healthy", e.Healthy), slog.String("reason", e.Reason))

	case *telemetry.Delta:
		mode, ok := e.Fields[telemetry.FieldMode].(string)
		if !ok || mode == c.mode {
			return
		}
		c.mode = mode

		kind, _ := e.Fields[telemetry.FieldFlyingType].(string)
		c.logger.Info("flight mode", slog.String("mode", mode), slog.String("type", kind))

	case *telemetry.WaypointList:
		c.logger.Info("mission downloaded",
			slog.Int("waypoints", len(e.Waypoints)),
			slog.String("path", formatDistance(engine.PathLength(e.Waypoints))))
	}
}

// severityLevel maps MAV_SEVERITY and the ground-station bands to log levels
func severityLevel(s telemetry.Severity) slog.Level {
	switch {
	case s <= telemetry.SeverityError:
		return slog.LevelError
	case s == telemetry.SeverityWarning:
		return slog.LevelWarn
	case s == telemetry.SeverityDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func formatDistance(meters float64) string {
	value, suffix := humanize.ComputeSI(meters)
	return fmt.Sprintf("%s %sm", humanize.FtoaWithDigits(value, 2), suffix)
}
