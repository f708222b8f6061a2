package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_missions_session ON missions (session_id, downloaded_at);`

	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      endpoint,
                      config)
VALUES (?, ?, ?)`

	updateSessionEndSQL = `
UPDATE sessions
SET end_time = ?
WHERE
    id = ?`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    end_time,
    endpoint,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    end_time,
    endpoint,
    config
FROM sessions
ORDER BY start_time`

	insertMissionSQL = `
INSERT INTO missions (
                      session_id,
                      downloaded_at,
                      waypoints)
VALUES (?, ?, ?)`

	insertWaypointSQL = `
    INSERT INTO waypoints (
        mission_id,
        seq,
        latitude,
        longitude,
        altitude
    )
    VALUES `

	selectMissionsSQL = `
SELECT
    m.id,
    m.downloaded_at,
    m.waypoints,
    w.seq,
    w.latitude,
    w.longitude,
    w.altitude
FROM missions m
    LEFT JOIN waypoints w ON w.mission_id = m.id
WHERE
    m.session_id = ?
    AND m.downloaded_at >= ?
    AND m.downloaded_at <= ?
ORDER BY m.id, w.seq`
)
