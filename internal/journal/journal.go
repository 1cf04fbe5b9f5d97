// Package journal records processing results in a local SQLite database so
// strategy behaviour can be inspected across runs.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jmylchreest/backdrop/internal/strategy"
)

// Journal is an append-only result log.
type Journal struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

// Entry is one recorded result.
type Entry struct {
	JobID        uuid.UUID
	TrackURI     string
	Strategy     string
	Contributors []string
	AccentHex    string
	FallbackMode string
	RenderTier   string
	Error        string
	ProcessingMs float64
	CreatedAt    time.Time
}

// Summary aggregates the entries of one strategy.
type Summary struct {
	Strategy  string
	Runs      int
	Failures  int
	Fallbacks int
	AvgMs     float64
	LastRun   time.Time
}

// DefaultPath returns $XDG_DATA_HOME/backdrop/journal.db.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "backdrop", "journal.db")
}

// Open opens (creating if needed) the journal at path and applies migrations.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	j := &Journal{conn: conn, path: path, now: time.Now}
	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database file.
func (j *Journal) Path() string { return j.path }

// Close closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.conn.Close()
}

const migrationV1Results = `
CREATE TABLE results (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id        TEXT NOT NULL,
	track_uri     TEXT NOT NULL DEFAULT '',
	strategy      TEXT NOT NULL,
	contributors  TEXT NOT NULL DEFAULT '[]',
	accent_hex    TEXT NOT NULL DEFAULT '',
	fallback_mode TEXT NOT NULL DEFAULT '',
	render_tier   TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	processing_ms REAL NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);
CREATE INDEX idx_results_strategy ON results(strategy);
`

const migrationV2ResultBody = `
ALTER TABLE results ADD COLUMN body TEXT NOT NULL DEFAULT '{}';
CREATE INDEX idx_results_created ON results(created_at);
`

func (j *Journal) migrate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	if err := j.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Results},
		{2, migrationV2ResultBody},
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := j.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the applied schema version.
func (j *Journal) SchemaVersion() (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var v int
	err := j.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	return v, err
}

// Record appends a result.
func (j *Journal) Record(ctx context.Context, job uuid.UUID, trackURI string, r strategy.ColorResult) error {
	contributors, err := json.Marshal(r.Metadata.Contributors)
	if err != nil {
		return fmt.Errorf("encode contributors: %w", err)
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.conn.ExecContext(ctx, `
		INSERT INTO results (job_id, track_uri, strategy, contributors, accent_hex, fallback_mode,
			render_tier, error, processing_ms, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.String(), trackURI, r.Metadata.Strategy, string(contributors), r.AccentHex,
		r.Metadata.FallbackMode, r.Metadata.RenderTier, r.Metadata.Error,
		r.Metadata.ProcessingTimeMs, j.now().UnixNano(), string(body))
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.conn.QueryContext(ctx, `
		SELECT job_id, track_uri, strategy, contributors, accent_hex, fallback_mode,
			render_tier, error, processing_ms, created_at
		FROM results ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e            Entry
			jobID        string
			contributors string
			created      int64
		)
		if err := rows.Scan(&jobID, &e.TrackURI, &e.Strategy, &contributors, &e.AccentHex,
			&e.FallbackMode, &e.RenderTier, &e.Error, &e.ProcessingMs, &created); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if e.JobID, err = uuid.Parse(jobID); err != nil {
			return nil, fmt.Errorf("parse job id %q: %w", jobID, err)
		}
		if err := json.Unmarshal([]byte(contributors), &e.Contributors); err != nil {
			return nil, fmt.Errorf("decode contributors: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summary aggregates results per primary strategy, most used first.
func (j *Journal) Summary(ctx context.Context) ([]Summary, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.conn.QueryContext(ctx, `
		SELECT strategy,
			COUNT(*),
			SUM(CASE WHEN error != '' THEN 1 ELSE 0 END),
			SUM(CASE WHEN fallback_mode != '' THEN 1 ELSE 0 END),
			AVG(processing_ms),
			MAX(created_at)
		FROM results
		GROUP BY strategy
		ORDER BY COUNT(*) DESC, strategy ASC`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s    Summary
			last int64
		)
		if err := rows.Scan(&s.Strategy, &s.Runs, &s.Failures, &s.Fallbacks, &s.AvgMs, &last); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.LastRun = time.Unix(0, last)
		out = append(out, s)
	}
	return out, rows.Err()
}
