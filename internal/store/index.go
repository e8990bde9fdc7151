package store

import (
	"database/sql"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// RunRecord is one row of the run index.
type RunRecord struct {
	RunID   string
	Goal    string
	Status  RunStatus
	Created time.Time
}

// Index is a SQLite registry of runs across run directories, used by
// the CLI to list past work without scanning the filesystem. task.json
// stays the source of truth; the index is an acceleration structure.
type Index struct {
	DB *sql.DB
}

func NewIndex(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		goal TEXT,
		status TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`)
	if err != nil {
		return nil, err
	}

	return &Index{DB: db}, nil
}

// Record registers a newly created run.
func (ix *Index) Record(runID, goal string) error {
	_, err := ix.DB.Exec(
		`INSERT OR REPLACE INTO runs (run_id, goal, status) VALUES (?, ?, ?)`,
		runID, goal, string(StatusRunning),
	)
	return err
}

// SetStatus mirrors a run's final status into the index.
func (ix *Index) SetStatus(runID string, status RunStatus) error {
	_, err := ix.DB.Exec(`UPDATE runs SET status = ? WHERE run_id = ?`, string(status), runID)
	return err
}

// Recent returns up to limit runs, newest first.
func (ix *Index) Recent(limit int) ([]RunRecord, error) {
	rows, err := ix.DB.Query(
		`SELECT run_id, goal, status, created_at FROM runs ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var status string
		if err := rows.Scan(&rec.RunID, &rec.Goal, &status, &rec.Created); err != nil {
			return nil, err
		}
		rec.Status = RunStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (ix *Index) Close() error {
	return ix.DB.Close()
}
