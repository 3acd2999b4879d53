// Package store records accepted recomputations in SQLite so calibration
// can be reviewed offline.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sweeney/als-corrector/internal/correction"
)

const schema = `
CREATE TABLE IF NOT EXISTS corrections (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	reason        TEXT NOT NULL,
	raw           REAL NOT NULL,
	aux           REAL NOT NULL,
	brightness    REAL NOT NULL,
	screen_r      REAL NOT NULL,
	screen_g      REAL NOT NULL,
	screen_b      REAL NOT NULL,
	emission      REAL NOT NULL,
	raw_corrected REAL NOT NULL,
	agc_gain      REAL NOT NULL,
	lux           REAL NOT NULL,
	forced        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS corrections_run ON corrections(run_id, id);
`

// Record is one stored recomputation.
type Record struct {
	ID           int64
	RunID        string
	CreatedAt    time.Time
	Reason       correction.Reason
	Raw          float64
	Aux          float64
	Brightness   float64
	Screen       [3]float64
	Emission     float64
	RawCorrected float64
	AGCGain      float64
	Lux          float64
	Forced       bool
}

// Store is a SQLite recorder scoped to one daemon run.
type Store struct {
	db    *sql.DB
	runID string
}

// Open opens (or creates) the database at path and starts a new run.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, runID: uuid.New().String()}, nil
}

// RunID identifies the records written by this Store.
func (s *Store) RunID() string { return s.runID }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores out if it carries a recomputation; other outcomes are
// ignored.
func (s *Store) Record(ev correction.Event, brightness float64, out correction.Outcome, now time.Time) error {
	rc := out.Recompute
	if rc == nil {
		return nil
	}
	lux := out.Value
	_, err := s.db.Exec(
		`INSERT INTO corrections (run_id, created_at, reason, raw, aux, brightness,
			screen_r, screen_g, screen_b, emission, raw_corrected, agc_gain, lux, forced)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, now.UTC().Format(time.RFC3339Nano), string(out.Reason),
		ev.Raw, ev.Aux, brightness,
		rc.Color.R, rc.Color.G, rc.Color.B,
		rc.Emission.Correction, rc.RawCorrected, rc.AGCGain, lux, rc.Forced,
	)
	if err != nil {
		return fmt.Errorf("insert correction: %w", err)
	}
	return nil
}

// Recent returns up to n records of the current run, newest first.
func (s *Store) Recent(n int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, created_at, reason, raw, aux, brightness,
			screen_r, screen_g, screen_b, emission, raw_corrected, agc_gain, lux, forced
		 FROM corrections WHERE run_id = ? ORDER BY id DESC LIMIT ?`,
		s.runID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created, reason string
		if err := rows.Scan(&r.ID, &r.RunID, &created, &reason, &r.Raw, &r.Aux, &r.Brightness,
			&r.Screen[0], &r.Screen[1], &r.Screen[2], &r.Emission, &r.RawCorrected,
			&r.AGCGain, &r.Lux, &r.Forced); err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		r.Reason = correction.Reason(reason)
		r.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
