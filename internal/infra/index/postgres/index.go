// Package postgres implements a Postgres-backed snapshot metadata index for
// deployments where snapshot bookkeeping must survive the node.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"agrobridge/internal/snapshot/core"
	"agrobridge/pkg/subsystem"
)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/agrobridge?sslmode=disable"
)

// Index persists snapshot metadata in a single Postgres table.
type Index struct {
	db *sql.DB
}

// Open opens a Postgres-backed index using the provided DSN (falls back to
// defaultDSN) and ensures the snapshot table exists.
func Open(ctx context.Context, dsn string) (*Index, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// Close closes the database connection.
func (i *Index) Close() error { return i.db.Close() }

func (i *Index) migrate(ctx context.Context) error {
	_, err := i.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		subsystem TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		checksum TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		schema_version INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		restore_count INT NOT NULL DEFAULT 0,
		last_restored_at TIMESTAMPTZ
	)`)
	if err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}
	_, err = i.db.ExecContext(ctx, `
	CREATE INDEX IF NOT EXISTS idx_snapshots_subsystem_created
		ON snapshots(subsystem, created_at DESC)`)
	if err != nil {
		return fmt.Errorf("create snapshots index: %w", err)
	}
	return nil
}

// Save inserts a new record; duplicate ids fail on the primary key.
func (i *Index) Save(ctx context.Context, rec core.Record) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, subsystem, type, description, checksum, size_bytes, schema_version, created_at, restore_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, string(rec.Subsystem), string(rec.Type), rec.Description,
		rec.Checksum, rec.Size, rec.SchemaVersion, rec.CreatedAt.UTC(), rec.RestoreCount)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Get returns the record for id.
func (i *Index) Get(ctx context.Context, id string) (core.Record, error) {
	rec, err := scanRecord(i.db.QueryRowContext(ctx, `
		SELECT id, subsystem, type, description, checksum, size_bytes, schema_version, created_at, restore_count, last_restored_at
		FROM snapshots WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("select snapshot: %w", err)
	}
	return rec, nil
}

// List returns records newest first, optionally filtered by subsystem.
func (i *Index) List(ctx context.Context, sub subsystem.ID) ([]core.Record, error) {
	query := `
		SELECT id, subsystem, type, description, checksum, size_bytes, schema_version, created_at, restore_count, last_restored_at
		FROM snapshots`
	args := []any{}
	if sub != "" {
		query += ` WHERE subsystem = $1`
		args = append(args, string(sub))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var recs []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Delete removes a record; reports whether it existed.
func (i *Index) Delete(ctx context.Context, id string) (bool, error) {
	res, err := i.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TouchRestore bumps restore bookkeeping for id.
func (i *Index) TouchRestore(ctx context.Context, id string, at time.Time) error {
	res, err := i.db.ExecContext(ctx, `
		UPDATE snapshots SET restore_count = restore_count + 1, last_restored_at = $1 WHERE id = $2`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (core.Record, error) {
	var (
		rec      core.Record
		sub, typ string
		restored sql.NullTime
	)
	err := s.Scan(&rec.ID, &sub, &typ, &rec.Description, &rec.Checksum, &rec.Size,
		&rec.SchemaVersion, &rec.CreatedAt, &rec.RestoreCount, &restored)
	if err != nil {
		return core.Record{}, err
	}
	rec.Subsystem = subsystem.ID(sub)
	rec.Type = core.Type(typ)
	if restored.Valid {
		at := restored.Time
		rec.LastRestoredAt = &at
	}
	return rec, nil
}
