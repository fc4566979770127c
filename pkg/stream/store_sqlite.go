package stream

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed StateStore for single-node deployments
// that must survive restarts. State is stored as a JSON document with
// the key and phase lifted into columns for querying.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS streams (
	tenant_id  TEXT NOT NULL,
	stream_id  TEXT NOT NULL,
	phase      TEXT NOT NULL,
	revision   INTEGER NOT NULL,
	updated_at TEXT NOT NULL,
	state      TEXT NOT NULL,
	PRIMARY KEY (tenant_id, stream_id)
);
CREATE INDEX IF NOT EXISTS idx_streams_phase ON streams(phase);
`

// NewSQLiteStore opens (creating if needed) a stream-state database at
// path. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("stream: open sqlite: %w", err)
	}
	// Serialized access keeps the revision check race-free under the
	// single-writer model sqlite enforces anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("stream: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Get(ctx context.Context, tenantID, streamID string) (*State, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM streams WHERE tenant_id = ? AND stream_id = ?`,
		tenantID, streamID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stream: query state: %w", err)
	}
	var st State
	if err := json.Unmarshal([]byte(doc), &st); err != nil {
		return nil, fmt.Errorf("stream: decode state: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) Put(ctx context.Context, state *State, expectedRevision int64) error {
	next := state.Clone()
	next.Revision = expectedRevision + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("stream: encode state: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if expectedRevision == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO streams (tenant_id, stream_id, phase, revision, updated_at, state)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			next.TenantID, next.StreamID, string(next.Phase), next.Revision, now, string(doc))
		if err != nil {
			// A unique-key violation means the stream already exists.
			return ErrConflict
		}
		state.Revision = next.Revision
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE streams SET phase = ?, revision = ?, updated_at = ?, state = ?
		 WHERE tenant_id = ? AND stream_id = ? AND revision = ?`,
		string(next.Phase), next.Revision, now, string(doc),
		next.TenantID, next.StreamID, expectedRevision)
	if err != nil {
		return fmt.Errorf("stream: update state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("stream: update state: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	state.Revision = next.Revision
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, tenantID, streamID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM streams WHERE tenant_id = ? AND stream_id = ?`, tenantID, streamID)
	if err != nil {
		return fmt.Errorf("stream: delete state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActive(ctx context.Context) ([]*State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state FROM streams WHERE phase = ?`, string(PhaseActive))
	if err != nil {
		return nil, fmt.Errorf("stream: list active: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*State
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("stream: scan state: %w", err)
		}
		var st State
		if err := json.Unmarshal([]byte(doc), &st); err != nil {
			return nil, fmt.Errorf("stream: decode state: %w", err)
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}
