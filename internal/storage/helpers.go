package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && cErr != sql.ErrTxDone {
		*err = cErr
	}
}

// toConfigData accepts a string, a []byte or any JSON serializable value
func toConfigData(config any) (data sql.NullString, err error) {
	switch c := config.(type) {
	case nil:
		return

	case string:
		data.Valid = true
		data.String = c

	case []byte:
		data.Valid = true
		data.String = string(c)

	default:
		var p []byte
		if p, err = json.Marshal(c); err != nil {
			err = fmt.Errorf("marshaling config: %w", err)
			return
		}

		data.Valid = true
		data.String = string(p)
	}
	return
}

func toLinkSession(data *sessionData) *LinkSession {
	sess := LinkSession{
		ID:        data.ID,
		StartTime: data.StartTime,
		Endpoint:  data.Endpoint,
	}
	if data.EndTime.Valid {
		sess.EndTime = &data.EndTime.Time
	}
	if data.Config.Valid {
		sess.Config = &data.Config.String
	}
	return &sess
}

func toWaypoint(row *missionRowData) (telemetry.Waypoint, bool) {
	if !row.Seq.Valid {
		return telemetry.Waypoint{}, false // mission without items
	}
	return telemetry.Waypoint{
		Seq: int(row.Seq.Int64),
		Lat: row.Latitude.Float64,
		Lon: row.Longitude.Float64,
		Alt: row.Altitude.Float64,
	}, true
}
