package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// PostgresStore is a Store backed by a single snapshots table. Revision
// tokens are a per-row counter; the compare-and-bump UPDATE gives the same
// conditional-write guarantee as an object store ETag.
type PostgresStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgresStore opens a connection and ensures the snapshots table.
func NewPostgresStore(dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			key        TEXT PRIMARY KEY,
			data       BYTEA NOT NULL,
			revision   BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("ensuring snapshots table: %w", err)
	}

	return &PostgresStore{
		db:     db,
		logger: logger.With().Str("component", "postgres-store").Logger(),
	}, nil
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// Ping checks if the database connection is alive.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Get returns the object at key.
func (p *PostgresStore) Get(ctx context.Context, key string) (Object, error) {
	var data []byte
	var revision int64
	err := p.db.QueryRowContext(ctx,
		`SELECT data, revision FROM snapshots WHERE key = $1`, key,
	).Scan(&data, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return Object{}, ErrNotFound
	}
	if err != nil {
		return Object{}, fmt.Errorf("selecting %s: %w", key, err)
	}
	return Object{Data: data, Revision: strconv.FormatInt(revision, 10)}, nil
}

// Put writes data under key, guarded by the expected revision counter.
func (p *PostgresStore) Put(ctx context.Context, key string, data []byte, expectedRevision string) (string, error) {
	if expectedRevision == "" {
		res, err := p.db.ExecContext(ctx,
			`INSERT INTO snapshots (key, data, revision) VALUES ($1, $2, 1)
			 ON CONFLICT (key) DO NOTHING`,
			key, data,
		)
		if err != nil {
			return "", fmt.Errorf("inserting %s: %w", key, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return "", fmt.Errorf("inserting %s: %w", key, err)
		}
		if affected == 0 {
			return "", ErrConflict
		}
		return "1", nil
	}

	expected, err := strconv.ParseInt(expectedRevision, 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad revision token %q: %w", expectedRevision, err)
	}

	res, err := p.db.ExecContext(ctx,
		`UPDATE snapshots SET data = $2, revision = revision + 1, updated_at = now()
		 WHERE key = $1 AND revision = $3`,
		key, data, expected,
	)
	if err != nil {
		return "", fmt.Errorf("updating %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("updating %s: %w", key, err)
	}
	if affected == 0 {
		// Either the row vanished or another writer bumped the revision.
		// Both resolve the same way: re-read and retry.
		return "", ErrConflict
	}

	return strconv.FormatInt(expected+1, 10), nil
}
