// Package snapshot persists point-in-time captures of subsystem state.
// Payload bytes live in a blob store; metadata lives in an index. Every
// load recomputes the payload checksum before the bytes are handed to a
// caller, so a corrupted snapshot can never drive a partial restore.
package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"agrobridge/internal/blob"
	"agrobridge/internal/snapshot/core"
	"agrobridge/pkg/subsystem"
)

type (
	// Type classifies what a snapshot captured.
	Type = core.Type
	// Record is the stored metadata for one snapshot.
	Record = core.Record
	// Index stores snapshot metadata.
	Index = core.Index
)

const (
	// TypeFull captures data, configuration and runtime state.
	TypeFull = core.TypeFull
	// TypeDataOnly captures only the data layer.
	TypeDataOnly = core.TypeDataOnly
	// TypeConfigOnly captures only the configuration layer.
	TypeConfigOnly = core.TypeConfigOnly
)

// DefaultRetention is the per-subsystem snapshot cap applied when none is
// configured. Oldest snapshots beyond the cap are deleted, FIFO.
const DefaultRetention = 10

// ErrNotFound is returned when no snapshot exists for an id.
var ErrNotFound = core.ErrNotFound

// envelope is the versioned persisted form of a snapshot payload.
type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Subsystem     subsystem.ID    `json:"subsystem"`
	Type          Type            `json:"type"`
	CapturedAt    time.Time       `json:"captured_at"`
	State         json.RawMessage `json:"state"`
}

// Store writes snapshot payloads to a blob backend and metadata to an index.
type Store struct {
	blobs     blob.Store
	index     Index
	retention int
	log       *slog.Logger

	mu sync.Mutex // serializes create+prune so retention stays exact
}

// Option configures a Store.
type Option func(*Store)

// WithRetention overrides the per-subsystem snapshot cap.
func WithRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithLogger overrides the store's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// NewStore constructs a snapshot store over the given payload and metadata
// backends.
func NewStore(blobs blob.Store, index Index, opts ...Option) *Store {
	s := &Store{
		blobs:     blobs,
		index:     index,
		retention: DefaultRetention,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func payloadKey(sub subsystem.ID, id string) string {
	return fmt.Sprintf("snapshots/%s/%s", sub, id)
}

// Create serializes state into a versioned envelope, persists it, records
// metadata and enforces the retention cap. A persistence failure is a
// StorageError; callers treat it as a hard stop to migration.
func (s *Store) Create(ctx context.Context, sub subsystem.ID, state json.RawMessage, typ Type, description string) (Record, error) {
	if !sub.Valid() {
		return Record{}, fmt.Errorf("unknown subsystem %q", sub)
	}
	if typ == "" {
		typ = TypeFull
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	now := time.Now().UTC()
	env := envelope{
		SchemaVersion: core.SchemaVersion,
		Subsystem:     sub,
		Type:          typ,
		CapturedAt:    now,
		State:         state,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return Record{}, subsystem.StorageError{Op: "create", ID: id, Detail: fmt.Sprintf("encode envelope: %v", err)}
	}
	sum := sha256.Sum256(payload)
	rec := Record{
		ID:            id,
		Subsystem:     sub,
		Type:          typ,
		Description:   description,
		Checksum:      hex.EncodeToString(sum[:]),
		Size:          int64(len(payload)),
		SchemaVersion: core.SchemaVersion,
		CreatedAt:     now,
	}

	key := payloadKey(sub, id)
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"subsystem": string(sub), "type": string(typ)},
	}); err != nil {
		return Record{}, subsystem.StorageError{Op: "create", ID: id, Detail: err.Error()}
	}
	if err := s.index.Save(ctx, rec); err != nil {
		// The payload is orphaned without its metadata; best effort cleanup.
		_, _ = s.blobs.Delete(ctx, key)
		return Record{}, subsystem.StorageError{Op: "create", ID: id, Detail: err.Error()}
	}
	s.log.Debug("snapshot created", "subsystem", sub, "snapshot_id", id, "type", typ, "size", rec.Size)

	if err := s.prune(ctx, sub); err != nil {
		s.log.Warn("snapshot retention prune failed", "subsystem", sub, "error", err)
	}
	return rec, nil
}

// prune deletes the oldest snapshots beyond the retention cap.
func (s *Store) prune(ctx context.Context, sub subsystem.ID) error {
	recs, err := s.index.List(ctx, sub)
	if err != nil {
		return err
	}
	if len(recs) <= s.retention {
		return nil
	}
	for _, rec := range recs[s.retention:] {
		if _, err := s.delete(ctx, rec); err != nil {
			return err
		}
		s.log.Debug("snapshot pruned", "subsystem", sub, "snapshot_id", rec.ID)
	}
	return nil
}

// Get returns snapshot metadata for id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	return s.index.Get(ctx, id)
}

// List returns snapshot metadata newest first; empty subsystem lists all.
func (s *Store) List(ctx context.Context, sub subsystem.ID) ([]Record, error) {
	return s.index.List(ctx, sub)
}

// Load reads a snapshot payload, verifies its checksum and decodes the
// envelope. A checksum mismatch is an IntegrityError; it propagates as a
// storage failure but is logged distinctly for operators.
func (s *Store) Load(ctx context.Context, id string) (Record, json.RawMessage, error) {
	rec, err := s.index.Get(ctx, id)
	if err != nil {
		return Record{}, nil, err
	}
	key := payloadKey(rec.Subsystem, rec.ID)
	_, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return Record{}, nil, subsystem.StorageError{Op: "load", ID: id, Detail: "payload missing"}
		}
		return Record{}, nil, subsystem.StorageError{Op: "load", ID: id, Detail: err.Error()}
	}
	payload, err := io.ReadAll(rc)
	cerr := rc.Close()
	if err != nil {
		return Record{}, nil, subsystem.StorageError{Op: "load", ID: id, Detail: err.Error()}
	}
	if cerr != nil {
		return Record{}, nil, subsystem.StorageError{Op: "load", ID: id, Detail: cerr.Error()}
	}
	sum := sha256.Sum256(payload)
	actual := hex.EncodeToString(sum[:])
	if actual != rec.Checksum {
		ierr := subsystem.IntegrityError{ID: id, Expected: rec.Checksum, Actual: actual}
		s.log.Error("snapshot integrity check failed", "snapshot_id", id, "subsystem", rec.Subsystem, "expected", rec.Checksum, "actual", actual)
		return Record{}, nil, ierr
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Record{}, nil, subsystem.StorageError{Op: "load", ID: id, Detail: fmt.Sprintf("decode envelope: %v", err)}
	}
	if env.SchemaVersion > core.SchemaVersion {
		return Record{}, nil, subsystem.StorageError{Op: "load", ID: id, Detail: fmt.Sprintf("unsupported schema version %d", env.SchemaVersion)}
	}
	return rec, env.State, nil
}

// TouchRestore bumps the restore counters for id. Called by the rollback
// manager after a restoration that used this snapshot.
func (s *Store) TouchRestore(ctx context.Context, id string) error {
	return s.index.TouchRestore(ctx, id, time.Now().UTC())
}

// Delete removes a snapshot's payload and metadata; reports whether it
// existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	rec, err := s.index.Get(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.delete(ctx, rec)
}

func (s *Store) delete(ctx context.Context, rec Record) (bool, error) {
	if _, err := s.blobs.Delete(ctx, payloadKey(rec.Subsystem, rec.ID)); err != nil {
		return false, subsystem.StorageError{Op: "delete", ID: rec.ID, Detail: err.Error()}
	}
	return s.index.Delete(ctx, rec.ID)
}
