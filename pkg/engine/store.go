package engine

import (
	"database/sql"
	"fmt"
	"time"

	"cellenum/pkg/core"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store persists findings per run so an interrupted enumeration can be
// resumed from its deterministic offset. Findings are written in
// candidate order with their sequence number; the resume offset for a
// run is simply how many findings it already holds.
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open findings database: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			endpoint TEXT,
			started_at TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS findings (
			run_id TEXT,
			seq INTEGER,
			bucket TEXT,
			object TEXT,
			extension TEXT,
			url TEXT,
			verdict TEXT,
			status INTEGER,
			created_at TIMESTAMP,
			PRIMARY KEY (run_id, seq)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize findings schema: %w", err)
	}
	return &Store{db: db}, nil
}

// BeginRun records a new run and returns its ID.
func (s *Store) BeginRun(endpoint string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec("INSERT INTO runs (id, endpoint, started_at) VALUES (?, ?, ?)",
		id, endpoint, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id, nil
}

// SaveFinding appends one finding under the run at sequence seq.
func (s *Store) SaveFinding(runID string, seq int, f core.Finding) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO findings (run_id, seq, bucket, object, extension, url, verdict, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		runID, seq, f.Candidate.Bucket, f.Candidate.Object, f.Candidate.Extension,
		f.URL, f.Verdict.String(), f.StatusCode, f.Timestamp)
	if err != nil {
		return fmt.Errorf("save finding: %w", err)
	}
	return nil
}

// ResumeOffset returns the candidate index a resumed run should
// continue from.
func (s *Store) ResumeOffset(runID string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM findings WHERE run_id = ?", runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("query resume offset: %w", err)
	}
	return n, nil
}

// RunEndpoint returns the endpoint a run was recorded against, so a
// resume can refuse mismatched invocations.
func (s *Store) RunEndpoint(runID string) (string, error) {
	var endpoint string
	err := s.db.QueryRow("SELECT endpoint FROM runs WHERE id = ?", runID).Scan(&endpoint)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("unknown run %s", runID)
	}
	if err != nil {
		return "", fmt.Errorf("query run: %w", err)
	}
	return endpoint, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
