package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Diagnostic is one recorded problem from a run.
type Diagnostic struct {
	Kind      string `json:"kind"`
	Transport string `json:"transport,omitempty"`
	GID       string `json:"gid,omitempty"`
	Message   string `json:"message"`
}

// Run is one LoadScripts invocation.
type Run struct {
	ID          string       `json:"id"`
	SheetID     string       `json:"sheetId"`
	StartedAt   time.Time    `json:"startedAt"`
	FinishedAt  time.Time    `json:"finishedAt"`
	Outcome     string       `json:"outcome"`
	Transport   string       `json:"transport"`
	GID         string       `json:"gid,omitempty"`
	RowsSeen    int          `json:"rowsSeen"`
	RowsKept    int          `json:"rowsKept"`
	ScriptCount int          `json:"scriptCount"`
	SceneCount  int          `json:"sceneCount"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Duration returns the run's wall time.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists ingestion runs in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts a run, assigning an ID when empty, and returns the stored run.
func (s *Store) Record(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	var diagnostics any
	if len(run.Diagnostics) > 0 {
		data, err := json.Marshal(run.Diagnostics)
		if err != nil {
			return Run{}, fmt.Errorf("marshal diagnostics: %w", err)
		}
		diagnostics = string(data)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (
            id, sheet_id, started_at, finished_at, outcome, transport, gid,
            rows_seen, rows_kept, script_count, scene_count, diagnostics_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.SheetID,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		run.Outcome,
		run.Transport,
		nullableString(run.GID),
		run.RowsSeen,
		run.RowsKept,
		run.ScriptCount,
		run.SceneCount,
		diagnostics,
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sheet_id, started_at, finished_at, outcome, transport, gid,
            rows_seen, rows_kept, script_count, scene_count, diagnostics_json
        FROM ingest_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Prune keeps the newest keep runs and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ingest_runs WHERE id NOT IN (
            SELECT id FROM ingest_runs ORDER BY started_at DESC, rowid DESC LIMIT ?
        )`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run                 Run
		started, finished   string
		gid, diagnosticJSON sql.NullString
	)
	if err := row.Scan(
		&run.ID, &run.SheetID, &started, &finished, &run.Outcome, &run.Transport, &gid,
		&run.RowsSeen, &run.RowsKept, &run.ScriptCount, &run.SceneCount, &diagnosticJSON,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	run.GID = gid.String
	if diagnosticJSON.Valid && diagnosticJSON.String != "" {
		if err := json.Unmarshal([]byte(diagnosticJSON.String), &run.Diagnostics); err != nil {
			return Run{}, fmt.Errorf("decode diagnostics for run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// FirstSeen records at as the first-seen time of every script ID not yet
// known and returns the stored first-seen time for each ID.
func (s *Store) FirstSeen(ctx context.Context, sheetID string, ids []string, at time.Time) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin first-seen tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := at.UTC().Format(timeLayout)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO script_first_seen (script_id, sheet_id, first_seen) VALUES (?, ?, ?)`,
			id, sheetID, stamp); err != nil {
			return nil, fmt.Errorf("record first seen %s: %w", id, err)
		}
		var stored string
		if err := tx.QueryRowContext(ctx,
			`SELECT first_seen FROM script_first_seen WHERE script_id = ?`, id).Scan(&stored); err != nil {
			return nil, fmt.Errorf("read first seen %s: %w", id, err)
		}
		out[id] = parseTime(stored)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit first seen: %w", err)
	}
	return out, nil
}
