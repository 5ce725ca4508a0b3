package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoHistory is returned by Latest when nothing was recorded yet.
var ErrNoHistory = errors.New("no snapshot recorded")

// HistoryEntry is one recorded snapshot.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Snapshot   Snapshot  `json:"snapshot"`
}

// HistoryStore records every snapshot in a SQLite database.
type HistoryStore struct {
	db *sql.DB
}

// OpenHistory opens the database at path and creates the schema if needed.
func OpenHistory(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	h := &HistoryStore{db: db}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

func (h *HistoryStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at TIMESTAMP NOT NULL,
		total_repos INTEGER NOT NULL,
		total_commits INTEGER NOT NULL,
		commits_estimated BOOLEAN NOT NULL DEFAULT 0,
		total_lines INTEGER NOT NULL,
		total_stars INTEGER NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_recorded ON snapshots(recorded_at DESC);
	`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Save implements Sink.
func (h *HistoryStore) Save(ctx context.Context, s Snapshot) error {
	_, err := h.Record(ctx, s)
	return err
}

// Record inserts the snapshot and returns its row id.
func (h *HistoryStore) Record(ctx context.Context, s Snapshot) (int64, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	commits, estimated := s.Commits()
	recordedAt := s.GeneratedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	res, err := h.db.ExecContext(ctx,
		`INSERT INTO snapshots (recorded_at, total_repos, total_commits, commits_estimated, total_lines, total_stars, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		recordedAt.UTC(), s.TotalRepos, commits, estimated, s.TotalLines, s.TotalStars, string(payload))
	if err != nil {
		return 0, fmt.Errorf("recording snapshot: %w", err)
	}
	return res.LastInsertId()
}

// List returns recorded snapshots, most recent first. limit <= 0 returns all of them.
func (h *HistoryStore) List(ctx context.Context, limit int) ([]HistoryEntry, error) {
	query := `SELECT id, recorded_at, payload FROM snapshots ORDER BY recorded_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var payload string
		if err := rows.Scan(&e.ID, &e.RecordedAt, &payload); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Snapshot); err != nil {
			return nil, fmt.Errorf("decoding snapshot %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Latest returns the most recent snapshot or ErrNoHistory.
func (h *HistoryStore) Latest(ctx context.Context) (HistoryEntry, error) {
	entries, err := h.List(ctx, 1)
	if err != nil {
		return HistoryEntry{}, err
	}
	if len(entries) == 0 {
		return HistoryEntry{}, ErrNoHistory
	}
	return entries[0], nil
}

// Close closes the database.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}
