package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const (
	defaultBusyTimeout = 5000
	schemaVersion      = 1
)

// Ranges accepted by History.Range. Anything else is treated as "24h".
var ranges = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

// ParseRange normalizes a range name and returns its window.
func ParseRange(name string) (string, time.Duration) {
	if d, ok := ranges[name]; ok {
		return name, d
	}
	return "24h", ranges["24h"]
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		profile     TEXT    NOT NULL,
		captured_ms INTEGER NOT NULL,
		format      TEXT    NOT NULL DEFAULT '',
		tokens_in   REAL,
		tokens_out  REAL,
		cost        REAL,
		payload     TEXT    NOT NULL,
		UNIQUE (profile, captured_ms)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_captured ON snapshots(captured_ms)`,
}

// History persists snapshots in SQLite.
type History struct {
	db  *sql.DB
	now func() time.Time
}

// OpenHistory opens (creating if needed) the database at path with WAL
// mode, a 5 s busy timeout, and a single connection, then migrates the
// schema.
func OpenHistory(path string) (*History, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("usage: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("usage: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("usage: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("usage: set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &History{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("usage: create schema_version: %w", err)
	}
	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("usage: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("usage: migrate: %w\nstatement: %s", err, stmt)
		}
	}
	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("usage: record schema version: %w", err)
	}
	return nil
}

// Close closes the database.
func (h *History) Close() error { return h.db.Close() }

// Record stores snap. Recording the same capture twice is a no-op.
func (h *History) Record(ctx context.Context, snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("usage: marshal snapshot: %w", err)
	}
	_, err = h.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO snapshots (profile, captured_ms, format, tokens_in, tokens_out, cost, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.Profile, snap.Timestamp.UnixMilli(), string(snap.Format),
		snap.Totals.TokensIn, snap.Totals.TokensOut, snap.Totals.Cost,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("usage: record snapshot: %w", err)
	}
	return nil
}

// Range returns the snapshots captured within the named window, oldest
// first, along with the normalized range name.
func (h *History) Range(ctx context.Context, name string) (string, []Snapshot, error) {
	name, window := ParseRange(name)
	cutoff := h.now().Add(-window).UnixMilli()

	rows, err := h.db.QueryContext(ctx, `
		SELECT payload FROM snapshots
		WHERE captured_ms >= ?
		ORDER BY captured_ms ASC, id ASC`,
		cutoff,
	)
	if err != nil {
		return name, nil, fmt.Errorf("usage: query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []Snapshot{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return name, nil, fmt.Errorf("usage: scan history: %w", err)
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			continue
		}
		entries = append(entries, snap)
	}
	if err := rows.Err(); err != nil {
		return name, nil, fmt.Errorf("usage: history rows: %w", err)
	}
	return name, entries, nil
}

// Prune deletes snapshots older than maxAge and reports how many went.
func (h *History) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := h.now().Add(-maxAge).UnixMilli()
	res, err := h.db.ExecContext(ctx, "DELETE FROM snapshots WHERE captured_ms < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("usage: prune history: %w", err)
	}
	return res.RowsAffected()
}
