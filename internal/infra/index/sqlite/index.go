// Package sqlite implements a SQLite-backed snapshot metadata index for
// single-node deployments that need durability without a database server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"agrobridge/internal/snapshot/core"
	"agrobridge/pkg/subsystem"
)

// Index persists snapshot metadata in a single SQLite table.
type Index struct {
	db *sqlx.DB
}

// Open opens or creates the index database at path.
func Open(path string) (*Index, error) {
	if path == "" {
		path = "agrobridge.db"
	}
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return idx, nil
}

// Close closes the database connection.
func (i *Index) Close() error { return i.db.Close() }

func (i *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		subsystem TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		checksum TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		schema_version INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		restore_count INTEGER NOT NULL DEFAULT 0,
		last_restored_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_subsystem_created
		ON snapshots(subsystem, created_at DESC);
	`
	_, err := i.db.Exec(schema)
	return err
}

type row struct {
	ID             string       `db:"id"`
	Subsystem      string       `db:"subsystem"`
	Type           string       `db:"type"`
	Description    string       `db:"description"`
	Checksum       string       `db:"checksum"`
	Size           int64        `db:"size_bytes"`
	SchemaVersion  int          `db:"schema_version"`
	CreatedAt      time.Time    `db:"created_at"`
	RestoreCount   int          `db:"restore_count"`
	LastRestoredAt sql.NullTime `db:"last_restored_at"`
}

func (r row) record() core.Record {
	rec := core.Record{
		ID:            r.ID,
		Subsystem:     subsystem.ID(r.Subsystem),
		Type:          core.Type(r.Type),
		Description:   r.Description,
		Checksum:      r.Checksum,
		Size:          r.Size,
		SchemaVersion: r.SchemaVersion,
		CreatedAt:     r.CreatedAt,
		RestoreCount:  r.RestoreCount,
	}
	if r.LastRestoredAt.Valid {
		at := r.LastRestoredAt.Time
		rec.LastRestoredAt = &at
	}
	return rec
}

// Save inserts a new record; duplicate ids fail on the primary key.
func (i *Index) Save(ctx context.Context, rec core.Record) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, subsystem, type, description, checksum, size_bytes, schema_version, created_at, restore_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Subsystem), string(rec.Type), rec.Description,
		rec.Checksum, rec.Size, rec.SchemaVersion, rec.CreatedAt.UTC(), rec.RestoreCount)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Get returns the record for id.
func (i *Index) Get(ctx context.Context, id string) (core.Record, error) {
	var r row
	err := i.db.GetContext(ctx, &r, `SELECT * FROM snapshots WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("select snapshot: %w", err)
	}
	return r.record(), nil
}

// List returns records newest first, optionally filtered by subsystem.
func (i *Index) List(ctx context.Context, sub subsystem.ID) ([]core.Record, error) {
	var rows []row
	var err error
	if sub == "" {
		err = i.db.SelectContext(ctx, &rows, `SELECT * FROM snapshots ORDER BY created_at DESC, id DESC`)
	} else {
		err = i.db.SelectContext(ctx, &rows, `SELECT * FROM snapshots WHERE subsystem = ? ORDER BY created_at DESC, id DESC`, string(sub))
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	recs := make([]core.Record, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, r.record())
	}
	return recs, nil
}

// Delete removes a record; reports whether it existed.
func (i *Index) Delete(ctx context.Context, id string) (bool, error) {
	res, err := i.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
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
		UPDATE snapshots SET restore_count = restore_count + 1, last_restored_at = ? WHERE id = ?`,
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
