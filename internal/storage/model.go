package storage

import (
	"time"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

// LinkSession is one run of the ingestion engine against an endpoint
type LinkSession struct {
	ID        int64      `json:"id"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"` // nil while the session is open
	Endpoint  string     `json:"endpoint"`
	Config    *string    `json:"config,omitempty"` // JSON encoded link configuration
}

// Mission is a mission plan downloaded from the vehicle during a session
type Mission struct {
	ID           int64                `json:"id"`
	SessionID    int64                `json:"sessionId"`
	DownloadedAt time.Time            `json:"downloadedAt"`
	Count        int                  `json:"count"` // Declared number of items
	Waypoints    []telemetry.Waypoint `json:"waypoints"`
}
