package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/csvanon/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "history.db"

// ErrRunNotFound is returned by GetRun when no run has the given ID.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB provides SQLite-based storage for finished runs.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging. The web server and the CLI
	// may read the history while a run is being saved.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (h *HistoryDB) createTables() error {
	schema := `
	-- One row per finished run. run_json holds the full record.
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		state TEXT NOT NULL,
		error_kind TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		run_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores run, replacing an earlier record with the same ID.
// The preview is not stored because it is a copy of the uploaded data.
func (h *HistoryDB) SaveRun(ctx context.Context, run *model.Run) error {
	stored := *run
	stored.Preview = ""

	runJSON, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	var finishedAt sql.NullString
	if !run.FinishedAt.IsZero() {
		finishedAt = sql.NullString{String: formatTimestamp(run.FinishedAt), Valid: true}
	}

	query := `
	INSERT INTO runs (id, file_name, state, error_kind, started_at, finished_at, run_json)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		state = excluded.state,
		error_kind = excluded.error_kind,
		finished_at = excluded.finished_at,
		run_json = excluded.run_json
	`

	_, err = h.db.ExecContext(ctx, query,
		run.ID,
		run.FileName,
		run.State.String(),
		string(run.ErrorKind),
		formatTimestamp(run.StartedAt),
		finishedAt,
		string(runJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID. It returns ErrRunNotFound when no such
// run was saved.
func (h *HistoryDB) GetRun(ctx context.Context, id string) (*model.Run, error) {
	query := `SELECT run_json FROM runs WHERE id = ?`

	var runJSON string
	err := h.db.QueryRowContext(ctx, query, id).Scan(&runJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run model.Run
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to parse run: %w", err)
	}

	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
// A limit of zero or less returns every run.
func (h *HistoryDB) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	query := `SELECT run_json FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*model.Run, 0)
	for rows.Next() {
		var runJSON string
		if err := rows.Scan(&runJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		var run model.Run
		if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
			continue // Skip malformed records
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// RunStats counts stored runs by final state and error kind.
type RunStats struct {
	// Total is the number of stored runs.
	Total int `json:"total"`

	// Succeeded is the number of runs that reached StateDone.
	Succeeded int `json:"succeeded"`

	// Failed counts failed runs by error kind. Failures without a kind
	// are counted under "unknown".
	Failed map[model.ErrorKind]int `json:"failed"`
}

// Stats summarizes the stored runs.
func (h *HistoryDB) Stats(ctx context.Context) (RunStats, error) {
	query := `
	SELECT state, COALESCE(error_kind, ''), COUNT(*)
	FROM runs
	GROUP BY state, error_kind
	`

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return RunStats{}, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	stats := RunStats{Failed: make(map[model.ErrorKind]int)}
	for rows.Next() {
		var state, kind string
		var n int
		if err := rows.Scan(&state, &kind, &n); err != nil {
			return RunStats{}, fmt.Errorf("failed to scan count: %w", err)
		}

		stats.Total += n
		switch state {
		case model.StateDone.String():
			stats.Succeeded += n
		case model.StateFailed.String():
			if kind == "" {
				kind = "unknown"
			}
			stats.Failed[model.ErrorKind(kind)] += n
		}
	}

	return stats, rows.Err()
}

// DeleteRunsBefore removes runs started before t and returns how many
// were removed.
func (h *HistoryDB) DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, formatTimestamp(t))
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	return res.RowsAffected()
}

// timestampLayout sorts lexically in chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTimestamp converts t to UTC text that sorts chronologically.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
