//go:build sqlite
// +build sqlite

package scrapequeue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements the Store interface using SQLite. It provides ACID
// transactions and a single inspectable database file, at the cost of CGO.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store.
// The database file will be created if it doesn't exist.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// initSchema initializes the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS queue (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		product_name TEXT,
		product_link TEXT,
		added_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pointers (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pending_view (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		url TEXT NOT NULL,
		product_name TEXT,
		product_link TEXT,
		result BLOB,
		finished_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pending_view_job_id ON pending_view(job_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// AppendRecord appends a record to the tail of the queue.
func (s *SQLiteStore) AppendRecord(ctx context.Context, record *JobRecord) error {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	s.logger.Debug("AppendRecord", "id", record.ID, "url", record.URL)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queue (id, url, product_name, product_link, added_at)
		VALUES (?, ?, ?, ?, ?)
	`, record.ID, record.URL, record.ProductName, record.ProductLink, record.AddedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// ListRecords returns a snapshot of the queue in FIFO order.
func (s *SQLiteStore) ListRecords(ctx context.Context) ([]*JobRecord, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, product_name, product_link, added_at
		FROM queue ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue: %w", err)
	}
	defer rows.Close()

	records := make([]*JobRecord, 0)
	for rows.Next() {
		var record JobRecord
		var addedAt int64
		if err := rows.Scan(&record.ID, &record.URL, &record.ProductName, &record.ProductLink, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record.AddedAt = time.Unix(addedAt, 0)
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue: %w", err)
	}
	s.logger.Debug("ListRecords", "count", len(records))
	return records, nil
}

// RemoveRecord removes one record by ID.
func (s *SQLiteStore) RemoveRecord(ctx context.Context, id string) (bool, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return false, err
	}
	s.logger.Debug("RemoveRecord", "id", id)

	res, err := s.db.ExecContext(ctx, `DELETE FROM queue WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// PopFront removes and returns the queue head, or nil when empty.
func (s *SQLiteStore) PopFront(ctx context.Context) (*JobRecord, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	var record JobRecord
	var addedAt int64
	err = tx.QueryRowContext(ctx, `
		SELECT seq, id, url, product_name, product_link, added_at
		FROM queue ORDER BY seq ASC LIMIT 1
	`).Scan(&seq, &record.ID, &record.URL, &record.ProductName, &record.ProductLink, &addedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue head: %w", err)
	}
	record.AddedAt = time.Unix(addedAt, 0)

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE seq = ?`, seq); err != nil {
		return nil, fmt.Errorf("failed to delete queue head: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Debug("PopFront", "id", record.ID, "url", record.URL)
	return &record, nil
}

// SetActiveJob persists the active-job pointer.
func (s *SQLiteStore) SetActiveJob(ctx context.Context, jobID, url string) error {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return err
	}
	s.logger.Debug("SetActiveJob", "jobID", jobID, "url", url)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if jobID == "" && url == "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pointers WHERE key IN ('jobid', 'joburl')`); err != nil {
			return fmt.Errorf("failed to clear pointers: %w", err)
		}
		return tx.Commit()
	}

	for key, value := range map[string]string{"jobid": jobID, "joburl": url} {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pointers (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to store pointer %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// ActiveJobRef reads the active-job pointer; empty strings when unset.
func (s *SQLiteStore) ActiveJobRef(ctx context.Context) (string, string, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return "", "", err
	}

	var jobID, url string
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM pointers WHERE key IN ('jobid', 'joburl')`)
	if err != nil {
		return "", "", fmt.Errorf("failed to query pointers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return "", "", fmt.Errorf("failed to scan pointer: %w", err)
		}
		switch key {
		case "jobid":
			jobID = value
		case "joburl":
			url = value
		}
	}
	if err := rows.Err(); err != nil {
		return "", "", fmt.Errorf("failed to iterate pointers: %w", err)
	}
	return jobID, url, nil
}

// ClearActiveJob clears the active-job pointer.
func (s *SQLiteStore) ClearActiveJob(ctx context.Context) error {
	return s.SetActiveJob(ctx, "", "")
}

// PrependCompleted adds a completed entry to the head of the pending view.
func (s *SQLiteStore) PrependCompleted(ctx context.Context, entry *CompletedEntry) error {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("entry is nil")
	}
	if entry.JobID == "" {
		return fmt.Errorf("entry job ID is required")
	}
	s.logger.Debug("PrependCompleted", "jobID", entry.JobID, "url", entry.URL)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_view (job_id, url, product_name, product_link, result, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.JobID, entry.URL, entry.ProductName, entry.ProductLink, entry.Result, entry.FinishedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// ListCompleted returns the pending view, most recent first.
func (s *SQLiteStore) ListCompleted(ctx context.Context) ([]*CompletedEntry, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, url, product_name, product_link, result, finished_at
		FROM pending_view ORDER BY seq DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending view: %w", err)
	}
	defer rows.Close()

	entries := make([]*CompletedEntry, 0)
	for rows.Next() {
		var entry CompletedEntry
		var finishedAt int64
		if err := rows.Scan(&entry.JobID, &entry.URL, &entry.ProductName, &entry.ProductLink, &entry.Result, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entry.FinishedAt = time.Unix(finishedAt, 0)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending view: %w", err)
	}
	s.logger.Debug("ListCompleted", "count", len(entries))
	return entries, nil
}

// RemoveCompleted removes one pending-view entry by job ID.
func (s *SQLiteStore) RemoveCompleted(ctx context.Context, jobID string) (bool, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return false, err
	}
	s.logger.Debug("RemoveCompleted", "jobID", jobID)

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_view WHERE seq IN (
			SELECT seq FROM pending_view WHERE job_id = ? LIMIT 1
		)
	`, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}
