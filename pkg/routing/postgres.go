package routing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresDirectory serves target lookups from a shared routing table,
// for deployments where subsystems register themselves out of band.
//
// Expected schema:
//
//	CREATE TABLE routing_targets (
//	    subsystem    TEXT NOT NULL,
//	    lookup_key   TEXT NOT NULL,
//	    endpoint     TEXT NOT NULL,
//	    version      TEXT NOT NULL,
//	    capabilities TEXT[] NOT NULL DEFAULT '{}',
//	    metadata     JSONB NOT NULL DEFAULT '{}',
//	    PRIMARY KEY (subsystem, lookup_key)
//	);
type PostgresDirectory struct {
	db        *sql.DB
	subsystem string
}

// OpenPostgres opens a connection pool for routing directories.
func OpenPostgres(dsn string) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("routing: postgres connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// NewPostgresDirectory creates a directory scoped to one subsystem.
func NewPostgresDirectory(db *sql.DB, subsystem string) *PostgresDirectory {
	return &PostgresDirectory{db: db, subsystem: subsystem}
}

func (d *PostgresDirectory) Lookup(ctx context.Context, key string) (*Target, error) {
	var (
		t        Target
		caps     pq.StringArray
		metadata []byte
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT lookup_key, endpoint, version, capabilities, metadata
		 FROM routing_targets WHERE subsystem = $1 AND lookup_key = $2`,
		d.subsystem, key).Scan(&t.Key, &t.Endpoint, &t.Version, &caps, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTargetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("routing: postgres lookup: %w", err)
	}
	t.Subsystem = d.subsystem
	t.Capabilities = []string(caps)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("routing: decode target metadata: %w", err)
		}
	}
	return &t, nil
}
