package storage

import (
	"database/sql"
	"time"
)

type sessionData struct {
	ID        int64
	StartTime time.Time
	EndTime   sql.NullTime
	Endpoint  string
	Config    sql.NullString
}

type missionRowData struct {
	MissionID    int64
	DownloadedAt time.Time
	Count        int
	Seq          sql.NullInt64
	Latitude     sql.NullFloat64
	Longitude    sql.NullFloat64
	Altitude     sql.NullFloat64
}
