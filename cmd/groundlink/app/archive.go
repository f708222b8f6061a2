package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/groundlink/internal/storage"
	"github.com/roman-kulish/groundlink/internal/telemetry"
)

// Archive stores every downloaded mission under a single link session
type Archive struct {
	store     storage.Store
	sessionID int64
	logger    *slog.Logger
}

// NewArchive opens a link session in store. The session is closed when the
// consumed event stream ends.
func NewArchive(ctx context.Context, store storage.Store, endpoint string, config any, logger *slog.Logger) (*Archive, error) {
	sessionID, err := store.CreateSession(ctx, time.Now().UTC(), endpoint, config)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	a := Archive{
		store:     store,
		sessionID: sessionID,
		logger:    logger.With(slog.String("component", "archive"), slog.Int64("session", sessionID)),
	}

	return &a, nil
}

// SessionID returns the archive link session
func (a *Archive) SessionID() int64 {
	return a.sessionID
}

// Consume stores waypoint lists until the channel is closed, then ends the session
func (a *Archive) Consume(events <-chan telemetry.Event) {
	ctx := context.Background()

	for evt := range events {
		list, ok := evt.(*telemetry.WaypointList)
		if !ok {
			continue
		}

		missionID, err := a.store.StoreMission(ctx, a.sessionID, list)
		if err != nil {
			a.logger.Error("storing mission", slog.Any("error", err))
			continue
		}
		a.logger.Debug("mission stored", slog.Int64("mission", missionID), slog.Int("waypoints", len(list.Waypoints)))
	}

	if err := a.store.EndSession(ctx, a.sessionID, time.Now().UTC()); err != nil {
		a.logger.Error("ending session", slog.Any("error", err))
	}
}
