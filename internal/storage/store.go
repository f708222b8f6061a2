package storage

import (
	"context"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

// Store provides an interface for archiving ground-station link sessions and the
// mission plans downloaded during them. Telemetry history is not archived.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession records the start of a link session and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - startTime: When the engine started
	//   - endpoint: Connection string of the link (e.g., "tcp:127.0.0.1:5760")
	//   - config: Optional link configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, startTime time.Time, endpoint string, config any) (sessionID int64, err error)

	// EndSession records when a link session stopped.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Unique session identifier
	//   - endTime: When the engine stopped
	//
	// Returns:
	//   - error: If the session does not exist, the update fails or context is cancelled
	EndSession(ctx context.Context, id int64, endTime time.Time) error

	// Session retrieves a specific link session by its ID.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Unique session identifier
	//
	// Returns:
	//   - session: Pointer to session data
	//   - error: If retrieval fails or context is cancelled
	Session(ctx context.Context, id int64) (session *LinkSession, err error)

	// Sessions returns all link sessions stored in the database.
	// Results are ordered by start time in ascending order.
	Sessions(ctx context.Context) (sessions []*LinkSession, err error)

	// StoreMission saves a completed mission download. The mission and all its
	// waypoints are stored in a single atomic transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session the mission was downloaded in
	//   - list: The ordered waypoint list, possibly empty
	//
	// Returns:
	//   - missionID: Unique identifier for the stored mission
	//   - error: If storage fails or context is cancelled
	StoreMission(ctx context.Context, sessionID int64, list *telemetry.WaypointList) (missionID int64, err error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}
