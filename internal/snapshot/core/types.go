// Package core defines the snapshot metadata record and the index contract
// implemented by the durable backends.
package core

import (
	"context"
	"errors"
	"time"

	"agrobridge/pkg/subsystem"
)

// Type classifies what a snapshot captured.
type Type string

const (
	// TypeFull captures data, configuration and runtime state.
	TypeFull Type = "full"
	// TypeDataOnly captures only the data layer.
	TypeDataOnly Type = "data_only"
	// TypeConfigOnly captures only the configuration layer.
	TypeConfigOnly Type = "config_only"
)

// SchemaVersion is the current snapshot envelope format version. Every
// stored snapshot records the version it was written with so payloads stay
// loadable across schema evolutions.
const SchemaVersion = 1

// Record is the immutable metadata for one stored snapshot. Only the
// restore counters change after creation, and only through TouchRestore.
type Record struct {
	ID             string       `json:"id"`
	Subsystem      subsystem.ID `json:"subsystem"`
	Type           Type         `json:"type"`
	Description    string       `json:"description,omitempty"`
	Checksum       string       `json:"checksum"`
	Size           int64        `json:"size_bytes"`
	SchemaVersion  int          `json:"schema_version"`
	CreatedAt      time.Time    `json:"created_at"`
	RestoreCount   int          `json:"restore_count"`
	LastRestoredAt *time.Time   `json:"last_restored_at,omitempty"`
}

// Index stores snapshot metadata keyed by snapshot id.
type Index interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns records newest first; empty subsystem lists all.
	List(ctx context.Context, sub subsystem.ID) ([]Record, error)
	Delete(ctx context.Context, id string) (bool, error)
	// TouchRestore bumps the restore counter and timestamp for id.
	TouchRestore(ctx context.Context, id string, at time.Time) error
}

// ErrNotFound is returned when no record exists for a snapshot id.
var ErrNotFound = errors.New("snapshot index: record not found")
