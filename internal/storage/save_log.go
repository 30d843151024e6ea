package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tabledash/internal/domain"
)

// SaveLogStore implements domain.SaveLog on SQLite.
type SaveLogStore struct {
	db *DB
}

// NewSaveLogStore creates a new SaveLogStore.
func NewSaveLogStore(db *DB) *SaveLogStore {
	return &SaveLogStore{db: db}
}

var _ domain.SaveLog = (*SaveLogStore)(nil)

// StartRun inserts run with status running, assigning an ID if it has none.
func (s *SaveLogStore) StartRun(run *domain.SaveRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = domain.SaveRunning

	_, err := s.db.conn.Exec(
		`INSERT INTO save_runs (id, session_id, store, collection, started_at, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.Store, run.Collection, run.StartedAt.UTC(), run.Status,
	)
	if err != nil {
		return fmt.Errorf("start save run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run started with StartRun.
func (s *SaveLogStore) FinishRun(run *domain.SaveRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	res, err := s.db.conn.Exec(
		`UPDATE save_runs SET finished_at = ?, status = ?, rows_deleted = ?, rows_written = ?,
		 error = ?, pending_json = ? WHERE id = ?`,
		run.FinishedAt.UTC(), run.Status, run.RowsDeleted, run.RowsWritten, run.Error, run.PendingJSON, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish save run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish save run %s: %w", run.ID, domain.ErrNotFound)
	}
	return nil
}

// ListRuns returns the newest runs for h, or for every collection when h is zero.
func (s *SaveLogStore) ListRuns(h domain.Handle, limit int) ([]domain.SaveRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, session_id, store, collection, started_at, finished_at, status,
		 rows_deleted, rows_written, error, pending_json FROM save_runs`
	var args []any
	switch {
	case h.Store != "" && h.Collection != "":
		query += ` WHERE store = ? AND collection = ?`
		args = append(args, h.Store, h.Collection)
	case h.Store != "":
		query += ` WHERE store = ?`
		args = append(args, h.Store)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list save runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.SaveRun{}
	for rows.Next() {
		var r domain.SaveRun
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Store, &r.Collection, &r.StartedAt, &finished,
			&r.Status, &r.RowsDeleted, &r.RowsWritten, &r.Error, &r.PendingJSON); err != nil {
			return nil, fmt.Errorf("scan save run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
