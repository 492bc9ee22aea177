// Package history persists aircraft and sightings and serves aggregate
// queries. Grounded in plane-watch-acars-parser's internal/state/tracker.go
// (WAL-mode DSN, embedded schema string, sql.Open("sqlite", ...)) and
// internal/storage/sqlite.go (read-only aggregate query shapes), using
// modernc.org/sqlite as the pure-Go driver. The upsert path follows this
// system's literal update-then-insert-then-retry design rather than the
// ON CONFLICT pattern used elsewhere in that pack.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go1090/internal/tracker"
)

const schema = `
CREATE TABLE IF NOT EXISTS aircraft (
	icao TEXT PRIMARY KEY,
	callsign TEXT,
	first_seen DATETIME NOT NULL,
	last_seen DATETIME NOT NULL,
	sighting_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_aircraft_last_seen ON aircraft(last_seen);

CREATE TABLE IF NOT EXISTS sightings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	icao TEXT NOT NULL,
	callsign TEXT,
	latitude REAL,
	longitude REAL,
	altitude INTEGER,
	speed REAL,
	heading REAL,
	squawk TEXT,
	signal_strength REAL,
	seen_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sightings_icao ON sightings(icao);
CREATE INDEX IF NOT EXISTS idx_sightings_seen_at ON sightings(seen_at);
CREATE INDEX IF NOT EXISTS idx_sightings_icao_seen_at ON sightings(icao, seen_at);
CREATE INDEX IF NOT EXISTS idx_sightings_latlon ON sightings(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_sightings_position_seen
	ON sightings(seen_at, latitude, longitude)
	WHERE latitude IS NOT NULL AND longitude IS NOT NULL;
`

// Store is the SQLite-backed history store (§4.6).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a WAL-mode SQLite database at path and
// applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func icaoHex(addr uint32) string {
	return fmt.Sprintf("%06X", addr)
}

// SaveAircraft performs the atomic aircraft-upsert: attempt UPDATE, and
// INSERT only if no row was touched; a unique-constraint race from a
// concurrent writer is retried as an UPDATE (§4.6).
func (s *Store) SaveAircraft(addr uint32, callsign string, at time.Time) error {
	hex := icaoHex(addr)
	var cs interface{}
	if callsign != "" {
		cs = callsign
	}

	res, err := s.db.Exec(
		`UPDATE aircraft SET last_seen = ?, callsign = COALESCE(?, callsign), sighting_count = sighting_count + 1 WHERE icao = ?`,
		at, cs, hex,
	)
	if err != nil {
		return fmt.Errorf("update aircraft: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	_, err = s.db.Exec(
		`INSERT INTO aircraft (icao, callsign, first_seen, last_seen, sighting_count) VALUES (?, ?, ?, ?, 1)`,
		hex, cs, at, at,
	)
	if err == nil {
		return nil
	}

	// Another writer inserted the row between our UPDATE and INSERT;
	// retry the update once (§4.6, §5).
	_, retryErr := s.db.Exec(
		`UPDATE aircraft SET last_seen = ?, callsign = COALESCE(?, callsign), sighting_count = sighting_count + 1 WHERE icao = ?`,
		at, cs, hex,
	)
	if retryErr != nil {
		return fmt.Errorf("retry update aircraft after insert conflict: %w (insert error: %v)", retryErr, err)
	}
	return nil
}

// SaveSighting inserts a single sighting row (§4.6).
func (s *Store) SaveSighting(snap tracker.Snapshot, at time.Time) error {
	var lat, lon interface{}
	if snap.HasPosition {
		lat, lon = snap.Latitude, snap.Longitude
	}
	var alt interface{}
	if snap.HasAltitude {
		alt = snap.Altitude
	}
	var speed, heading interface{}
	if snap.HasVelocity {
		speed, heading = snap.GroundSpeed, snap.Heading
	}
	var squawk interface{}
	if snap.HasSquawk {
		squawk = snap.Squawk
	}

	_, err := s.db.Exec(
		`INSERT INTO sightings (icao, callsign, latitude, longitude, altitude, speed, heading, squawk, signal_strength, seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		icaoHex(snap.ICAO), snap.Callsign, lat, lon, alt, speed, heading, squawk, snap.SignalStrength, at,
	)
	if err != nil {
		return fmt.Errorf("insert sighting: %w", err)
	}
	return nil
}
