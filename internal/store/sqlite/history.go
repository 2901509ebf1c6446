// Package sqlite provides a SQLite-backed history store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"

	_ "modernc.org/sqlite" // SQLite driver
)

// Entries are stored whole as JSON so that a loaded snapshot verifies
// against the same digests it was saved with. The other columns exist
// for querying the database directly.
const schema = `
CREATE TABLE IF NOT EXISTS history_agents (
	agent_id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS history_entries (
	agent_id   TEXT    NOT NULL,
	seq        INTEGER NOT NULL,
	message_id TEXT    NOT NULL,
	direction  TEXT    NOT NULL,
	outcome    TEXT    NOT NULL,
	timestamp  TEXT    NOT NULL,
	digest     TEXT    NOT NULL,
	entry      TEXT    NOT NULL,
	PRIMARY KEY (agent_id, seq)
);
CREATE INDEX IF NOT EXISTS history_entries_message ON history_entries (message_id);
`

// HistoryStore implements history.Store in a SQLite database.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens (or creates) a SQLite database at dbPath and
// ensures the schema exists. The caller is responsible for calling Close.
func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *HistoryStore) Close() error { return s.db.Close() }

// Save replaces every stored entry for agentID in one transaction. An
// empty snapshot still registers the agent.
func (s *HistoryStore) Save(ctx context.Context, agentID string, entries []history.Entry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM history_entries WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("delete entries for %s: %w", agentID, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO history_agents (agent_id) VALUES (?)`, agentID); err != nil {
		return fmt.Errorf("record agent %s: %w", agentID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO history_entries
			(agent_id, seq, message_id, direction, outcome, timestamp, digest, entry)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		data, merr := json.Marshal(e)
		if merr != nil {
			err = fmt.Errorf("marshal entry %d: %w", e.Seq, merr)
			return err
		}
		if _, err = stmt.ExecContext(ctx,
			agentID, int64(e.Seq), e.Message.ID(), string(e.Direction), string(e.Outcome),
			e.Timestamp.UTC().Format(time.RFC3339Nano), e.Digest, string(data),
		); err != nil {
			return fmt.Errorf("insert entry %d: %w", e.Seq, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the stored entries for agentID, oldest first. Returns
// history.ErrNotFound if the agent was never saved.
func (s *HistoryStore) Load(ctx context.Context, agentID string) ([]history.Entry, error) {
	var known int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history_agents WHERE agent_id = ?`, agentID,
	).Scan(&known); err != nil {
		return nil, fmt.Errorf("look up agent %s: %w", agentID, err)
	}
	if known == 0 {
		return nil, history.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM history_entries WHERE agent_id = ? ORDER BY seq`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query entries for %s: %w", agentID, err)
	}
	defer func() { _ = rows.Close() }()

	entries := []history.Entry{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		var e history.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Agents returns every saved agent id, sorted.
func (s *HistoryStore) Agents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agent_id FROM history_agents ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
