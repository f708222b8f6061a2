package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

// maxWaypointsPerInsert keeps a single insert at 5 bound parameters per row
// below SQLITE_MAX_VARIABLE_NUMBER, which is 999 on older builds
const maxWaypointsPerInsert = 150

// ErrSessionNotFound is returned when updating a session that does not exist
var ErrSessionNotFound = errors.New("session not found")

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a new store backed by the Sqlite database at dbPath.
// Connections are opened and the schema initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, startTime time.Time, endpoint string, config any) (sessionID int64, err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, startTime.UTC(), endpoint, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) EndSession(ctx context.Context, id int64, endTime time.Time) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, updateSessionEndSQL, endTime.UTC(), id)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}
	return nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *LinkSession, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var data sessionData
	if err = stmt.QueryRowContext(ctx, id).Scan(&data.ID, &data.StartTime, &data.EndTime, &data.Endpoint, &data.Config); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}

	return toLinkSession(&data), nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*LinkSession, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data sessionData
		if err = rows.Scan(&data.ID, &data.StartTime, &data.EndTime, &data.Endpoint, &data.Config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, toLinkSession(&data))
	}
	err = rows.Err()
	return
}

// ReadMissions creates a new SqliteMissionReader iterating over the missions
// downloaded during a session, oldest first, each with its waypoints.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - sessionID: Unique identifier of the link session to read from
//   - opts: Optional configuration parameters for the reader (WithSince, WithUntil)
//
// The returned reader must be closed after use to release database resources.
//
// Returns error if reader creation fails or session doesn't exist.
func (s *SqliteStore) ReadMissions(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SqliteMissionReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteMissionReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) StoreMission(ctx context.Context, sessionID int64, list *telemetry.WaypointList) (missionID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	result, err := tx.ExecContext(ctx, insertMissionSQL, sessionID, list.Timestamp.UTC(), len(list.Waypoints))
	if err != nil {
		return 0, fmt.Errorf("inserting mission: %w", err)
	}

	if missionID, err = result.LastInsertId(); err != nil {
		return 0, fmt.Errorf("getting mission ID: %w", err)
	}

	for batch := range slices.Chunk(list.Waypoints, maxWaypointsPerInsert) {
		if err = insertWaypoints(ctx, tx, missionID, batch); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	return missionID, nil
}

// insertWaypoints writes one multi-row insert for the batch
func insertWaypoints(ctx context.Context, tx *sql.Tx, missionID int64, batch []telemetry.Waypoint) error {
	values := make([]interface{}, 0, len(batch)*5)
	valuesPlaceholder := "(?, ?, ?, ?, ?)"

	var sb strings.Builder
	sb.WriteString(insertWaypointSQL)

	for i, wp := range batch {
		values = append(values, missionID, wp.Seq, wp.Lat, wp.Lon, wp.Alt)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	if _, err := tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting waypoints: %w", err)
	}
	return nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

var (
	_ Store         = (*SqliteStore)(nil)
	_ MissionReader = (*SqliteMissionReader)(nil)
)
