package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	defaultSince = time.Unix(0, 0).UTC()
	defaultUntil = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// MissionReader provides an iterator-based interface for reading the missions
// archived for a session
type MissionReader interface {
	// Session returns metadata about the link session this reader is accessing.
	Session() *LinkSession

	// Next advances the iterator and returns true if there is another mission
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current mission in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *Mission

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a SqliteMissionReader
type ReaderOption func(*SqliteMissionReader)

// WithSince excludes missions downloaded before t
func WithSince(t time.Time) ReaderOption {
	return func(r *SqliteMissionReader) {
		r.since = &t
	}
}

// WithUntil excludes missions downloaded after t
func WithUntil(t time.Time) ReaderOption {
	return func(r *SqliteMissionReader) {
		r.until = &t
	}
}

func newSqliteMissionReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteMissionReader, error) {
	mr := &SqliteMissionReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(mr)
	}
	if err := mr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return mr, nil
}

// SqliteMissionReader implements MissionReader for SQLite database backend.
type SqliteMissionReader struct {
	db *sql.DB

	sessionID int64
	session   *LinkSession

	since *time.Time // Optional start of time range filter
	until *time.Time // Optional end of time range filter

	current *Mission
	next    *Mission // First row of the next mission, already scanned
	rows    *sql.Rows
	err     error
}

func (mr *SqliteMissionReader) init(ctx context.Context) error {
	if mr.db == nil {
		return errors.New("database connection required")
	}
	if mr.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: mr.loadSession},
		{msg: "initializing filters", fn: mr.initFilters},
		{msg: "initializing query", fn: mr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (mr *SqliteMissionReader) loadSession(ctx context.Context) (err error) {
	stmt, err := mr.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var data sessionData
	if err = stmt.QueryRowContext(ctx, mr.sessionID).Scan(&data.ID, &data.StartTime, &data.EndTime, &data.Endpoint, &data.Config); err != nil {
		return fmt.Errorf("querying session: %w", err)
	}

	mr.session = toLinkSession(&data)
	return
}

func (mr *SqliteMissionReader) initFilters(context.Context) error {
	if mr.since == nil {
		mr.since = &defaultSince
	}
	if mr.until == nil {
		mr.until = &defaultUntil
	}
	if mr.since.After(*mr.until) {
		return fmt.Errorf("start time %s is after end time %s", mr.since, mr.until)
	}
	return nil
}

func (mr *SqliteMissionReader) initQuery(ctx context.Context) (err error) {
	stmt, err := mr.db.PrepareContext(ctx, selectMissionsSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	mr.rows, err = stmt.QueryContext(ctx, mr.sessionID, mr.since.UTC(), mr.until.UTC())
	return err
}

func (mr *SqliteMissionReader) scanRow() (*missionRowData, error) {
	var row missionRowData

	err := mr.rows.Scan(
		&row.MissionID,
		&row.DownloadedAt,
		&row.Count,
		&row.Seq,
		&row.Latitude,
		&row.Longitude,
		&row.Altitude,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning mission: %w", err)
	}
	return &row, nil
}

func (mr *SqliteMissionReader) newMission(row *missionRowData) *Mission {
	m := Mission{
		ID:           row.MissionID,
		SessionID:    mr.sessionID,
		DownloadedAt: row.DownloadedAt,
		Count:        row.Count,
	}
	if wp, ok := toWaypoint(row); ok {
		m.Waypoints = append(m.Waypoints, wp)
	}
	return &m
}

func (mr *SqliteMissionReader) Session() *LinkSession {
	return mr.session
}

func (mr *SqliteMissionReader) Next(ctx context.Context) bool {
	if mr.err != nil || mr.rows == nil {
		return false
	}

	mr.current, mr.next = mr.next, nil

	for {
		select {
		case <-ctx.Done():
			mr.err = ctx.Err()
			return false
		default:
		}

		if !mr.rows.Next() {
			return mr.current != nil
		}

		row, err := mr.scanRow()
		if err != nil {
			mr.err = err
			return false
		}

		// Rows are ordered by mission, a new ID completes the current one
		switch {
		case mr.current == nil:
			mr.current = mr.newMission(row)

		case row.MissionID != mr.current.ID:
			mr.next = mr.newMission(row)
			return true

		default:
			if wp, ok := toWaypoint(row); ok {
				mr.current.Waypoints = append(mr.current.Waypoints, wp)
			}
		}
	}
}

func (mr *SqliteMissionReader) Current() *Mission {
	return mr.current
}

func (mr *SqliteMissionReader) Error() error {
	if mr.err != nil {
		return mr.err
	}
	if mr.rows != nil {
		return mr.rows.Err()
	}
	return nil
}

func (mr *SqliteMissionReader) Close() error {
	if mr.rows != nil {
		err := mr.rows.Close()
		mr.current = nil
		mr.next = nil
		mr.rows = nil
		return err
	}
	return nil
}
