package rollback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"agrobridge/internal/snapshot"
	"agrobridge/pkg/subsystem"
)

// Manager owns the snapshot collection and the rollback operation history.
// Rollbacks for one subsystem are totally ordered; independent subsystems
// may roll back concurrently.
type Manager struct {
	store *snapshot.Store
	log   *slog.Logger

	mu       sync.RWMutex
	targets  map[subsystem.ID]subsystem.Target
	locks    map[subsystem.ID]*sync.Mutex
	history  []Operation
	triggers []AutoTrigger
}

// NewManager constructs a rollback manager over the given snapshot store
// with the built-in auto-rollback predicates registered.
func NewManager(store *snapshot.Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:    store,
		log:      log,
		targets:  make(map[subsystem.ID]subsystem.Target),
		locks:    make(map[subsystem.ID]*sync.Mutex),
		triggers: DefaultAutoTriggers(),
	}
}

// RegisterTarget installs the live instance and codec used to capture and
// restore a subsystem's state. Last write wins.
func (m *Manager) RegisterTarget(id subsystem.ID, target subsystem.Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[id] = target
}

// RegisterAutoTrigger appends an auto-rollback predicate.
func (m *Manager) RegisterAutoTrigger(t AutoTrigger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, t)
}

func (m *Manager) target(id subsystem.ID) (subsystem.Target, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	return t, ok
}

func (m *Manager) lockFor(id subsystem.ID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// CreateSnapshot captures the registered instance's state into a new full
// snapshot and returns its id. The subsystem must be registered first.
func (m *Manager) CreateSnapshot(ctx context.Context, id subsystem.ID, description string) (string, error) {
	target, ok := m.target(id)
	if !ok || !target.Codec.Defined() {
		return "", subsystem.RegistrationError{Subsystem: id, Missing: "rollback target"}
	}
	state, err := target.Codec.Extractor.Extract(ctx, target.Instance)
	if err != nil {
		return "", fmt.Errorf("extract %s state: %w", id, err)
	}
	rec, err := m.store.Create(ctx, id, state, snapshot.TypeFull, description)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Snapshots lists snapshot metadata newest first; empty subsystem lists all.
func (m *Manager) Snapshots(ctx context.Context, id subsystem.ID) ([]snapshot.Record, error) {
	return m.store.List(ctx, id)
}

// RollbackTo restores a subsystem from the named snapshot. Layers restore in
// order data, configuration, runtime; the first layer failure aborts the
// remainder and fails the whole operation. A snapshot that cannot be loaded
// (including checksum mismatch) fails before any layer is touched, leaving
// the subsystem exactly as it was.
func (m *Manager) RollbackTo(ctx context.Context, snapshotID string, level Level, trigger Trigger) subsystem.OperationResult {
	if level == "" {
		level = LevelState
	}
	if trigger == "" {
		trigger = TriggerManual
	}

	op := Operation{
		ID:         uuid.NewString(),
		SnapshotID: snapshotID,
		Trigger:    trigger,
		Level:      level,
		Status:     StatusPending,
		StartedAt:  time.Now().UTC(),
	}

	rec, state, err := m.store.Load(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, subsystem.ErrStorage) {
			var ierr subsystem.IntegrityError
			if errors.As(err, &ierr) {
				trigger = TriggerDataCorruption
				op.Trigger = trigger
			}
		}
		return m.finish(op, fmt.Sprintf("load snapshot: %v", err))
	}
	op.Subsystem = rec.Subsystem

	target, ok := m.target(rec.Subsystem)
	if !ok || !target.Codec.Defined() {
		return m.finish(op, subsystem.RegistrationError{Subsystem: rec.Subsystem, Missing: "rollback target"}.Error())
	}

	lock := m.lockFor(rec.Subsystem)
	lock.Lock()
	defer lock.Unlock()

	op.Status = StatusInProgress
	m.log.Info("rollback started", "subsystem", rec.Subsystem, "snapshot_id", snapshotID, "trigger", trigger, "level", level)

	layers, bare := splitLayers(state)
	for _, layer := range selectedLayers(level) {
		var payload json.RawMessage
		if sub, present := layers[layer]; present {
			// Restorers receive a layer-keyed object and merge the layers
			// present, so a partial restore touches nothing else.
			wrapped, err := json.Marshal(map[string]json.RawMessage{layer: sub})
			if err != nil {
				return m.finish(op, fmt.Sprintf("encode %s layer: %v", layer, err))
			}
			payload = wrapped
		} else if bare && layer == LayerData {
			// Unlayered captures restore wholesale as the data layer.
			payload = state
		} else {
			continue
		}
		if err := target.Codec.Restorer.Restore(ctx, target.Instance, payload); err != nil {
			return m.finish(op, fmt.Sprintf("restore %s layer: %v", layer, err))
		}
		op.RestoredLayers = append(op.RestoredLayers, layer)
	}

	// Minimal liveness validation: the instance must answer a basic state
	// query before the rollback is declared successful.
	if _, err := target.Codec.Extractor.Extract(ctx, target.Instance); err != nil {
		return m.finish(op, fmt.Sprintf("liveness check: %v", err))
	}

	if err := m.store.TouchRestore(ctx, snapshotID); err != nil {
		m.log.Warn("restore counter update failed", "snapshot_id", snapshotID, "error", err)
	}
	op.Status = StatusCompleted
	now := time.Now().UTC()
	op.CompletedAt = &now
	m.append(op)
	m.log.Info("rollback completed", "subsystem", rec.Subsystem, "snapshot_id", snapshotID, "layers", op.RestoredLayers)
	return subsystem.OK(fmt.Sprintf("rolled back %s to snapshot %s", rec.Subsystem, snapshotID))
}

// EmergencyRollback restores the newest snapshot for the subsystem at
// emergency level. It is a no-op failure when no snapshot exists.
func (m *Manager) EmergencyRollback(ctx context.Context, id subsystem.ID) subsystem.OperationResult {
	recs, err := m.store.List(ctx, id)
	if err != nil {
		return subsystem.Fail(fmt.Sprintf("list snapshots for %s: %v", id, err))
	}
	if len(recs) == 0 {
		m.log.Error("emergency rollback with no snapshot", "subsystem", id)
		return subsystem.Fail(fmt.Sprintf("no snapshot available for %s", id))
	}
	return m.RollbackTo(ctx, recs[0].ID, LevelEmergency, TriggerEmergency)
}

// EvaluateAutoTriggers runs every registered predicate against the stats
// and fires an emergency rollback for the first one that trips. It returns
// the tripped trigger name, if any.
func (m *Manager) EvaluateAutoTriggers(ctx context.Context, stats Stats) (string, subsystem.OperationResult) {
	m.mu.RLock()
	triggers := make([]AutoTrigger, len(m.triggers))
	copy(triggers, m.triggers)
	m.mu.RUnlock()

	for _, t := range triggers {
		if !t.Tripped(stats) {
			continue
		}
		m.log.Warn("auto-rollback trigger tripped", "trigger", t.Name, "reason", t.Reason, "subsystem", stats.Subsystem)
		return t.Name, m.EmergencyRollback(ctx, stats.Subsystem)
	}
	return "", subsystem.OK("no trigger tripped")
}

// History returns a copy of the append-only operation history.
func (m *Manager) History() []Operation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Operation, len(m.history))
	copy(out, m.history)
	return out
}

// HealthScore reports rollback health on a 0-100 scale: the operation
// success rate, 100 when snapshots exist but nothing ever rolled back, and
// a neutral 50 when no snapshots exist at all.
func (m *Manager) HealthScore(ctx context.Context) float64 {
	recs, err := m.store.List(ctx, "")
	if err != nil || len(recs) == 0 {
		return 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return 100
	}
	completed := 0
	for _, op := range m.history {
		if op.Status == StatusCompleted {
			completed++
		}
	}
	return 100 * float64(completed) / float64(len(m.history))
}

// finish fails an operation, appends it to history and converts it to the
// caller-facing result.
func (m *Manager) finish(op Operation, msg string) subsystem.OperationResult {
	op.Status = StatusFailed
	op.Error = msg
	now := time.Now().UTC()
	op.CompletedAt = &now
	m.append(op)
	m.log.Error("rollback failed", "subsystem", op.Subsystem, "snapshot_id", op.SnapshotID, "error", msg)
	return subsystem.Fail(msg)
}

func (m *Manager) append(op Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, op)
}

// splitLayers decodes a state capture into its named layers. bare reports
// that the capture has no layer structure at all.
func splitLayers(state json.RawMessage) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(state, &fields); err != nil {
		return nil, true
	}
	layers := make(map[string]json.RawMessage)
	for _, layer := range []string{LayerData, LayerConfig, LayerRuntime} {
		if payload, ok := fields[layer]; ok {
			layers[layer] = payload
		}
	}
	return layers, len(layers) == 0
}

func selectedLayers(level Level) []string {
	layers := []string{LayerData}
	if level.restoresConfig() {
		layers = append(layers, LayerConfig)
	}
	if level.restoresRuntime() {
		layers = append(layers, LayerRuntime)
	}
	return layers
}
