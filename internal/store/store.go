package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite access for incident records. Incidents are the system
// of record for downstream dispatch: they are appended once per request,
// never mutated, and removed only by external administrative action.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS incidents (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        created_at TIMESTAMP,
        latitude TEXT,
        longitude TEXT,
        severity TEXT,
        details TEXT
    );`)
	return err
}

// Incident is the persisted record shape. This shape is a stable contract:
// external reporting tools read it across restarts.
type Incident struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Latitude  string    `json:"latitude"`
	Longitude string    `json:"longitude"`
	Severity  string    `json:"severity"`
	Details   string    `json:"details"`
}

// SaveIncident appends one record and returns its assigned id. The single
// INSERT is atomic with respect to concurrent appends.
func (s *Store) SaveIncident(ctx context.Context, inc *Incident) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents(created_at, latitude, longitude, severity, details) VALUES(?,?,?,?,?)`,
		inc.CreatedAt, inc.Latitude, inc.Longitude, inc.Severity, inc.Details)
	if err != nil {
		return 0, fmt.Errorf("save incident: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save incident: %w", err)
	}
	inc.ID = id
	return id, nil
}

// ListIncidents returns the most recent records for the reporting surface.
func (s *Store) ListIncidents(ctx context.Context, limit int) ([]Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, latitude, longitude, severity, details FROM incidents ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var incidents []Incident
	for rows.Next() {
		var inc Incident
		if err := rows.Scan(&inc.ID, &inc.CreatedAt, &inc.Latitude, &inc.Longitude, &inc.Severity, &inc.Details); err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}
