// Package bridge routes subsystem calls to whichever implementation is
// currently active and drives the per-subsystem migration state machine.
// All application code must resolve instances through Active; holding a
// reference to a bypassed implementation is a bug.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agrobridge/internal/adapter"
	"agrobridge/internal/validation"
	"agrobridge/pkg/subsystem"
)

// Status is a subsystem's migration routing state. Exactly one status per
// subsystem at a time; transitions happen only inside the bridge.
type Status string

const (
	// StatusLegacy routes calls to the legacy implementation.
	StatusLegacy Status = "legacy"
	// StatusMigrating marks a migration in flight.
	StatusMigrating Status = "migrating"
	// StatusPhase2 routes calls to the phase-2 implementation.
	StatusPhase2 Status = "phase2"
	// StatusError marks a subsystem whose error counter crossed its limit.
	StatusError Status = "error"
	// StatusRollback marks a state restoration in flight.
	StatusRollback Status = "rollback"
)

// DefaultMaxErrors is the per-subsystem error budget before migration is
// forcibly disabled.
const DefaultMaxErrors = 10

// Config is the per-subsystem migration configuration. The bridge is its
// single owner; other components read through accessors.
type Config struct {
	Status             Status     `json:"status"`
	ValidationEnabled  bool       `json:"validation_enabled"`
	RollbackEnabled    bool       `json:"rollback_enabled"`
	ErrorCount         int        `json:"error_count"`
	MaxErrors          int        `json:"max_errors"`
	MigrationStartedAt *time.Time `json:"migration_started_at,omitempty"`
}

// Summary is a point-in-time view of every subsystem's routing state.
type Summary struct {
	PerSubsystem map[subsystem.ID]Status `json:"per_subsystem"`
	Counts       map[Status]int          `json:"counts"`
}

// Bridge holds per-subsystem registrations and migration configs.
type Bridge struct {
	adapter   *adapter.Adapter
	validator *validation.Validator
	log       *slog.Logger

	mu      sync.RWMutex
	legacy  map[subsystem.ID]subsystem.Target
	phase2  map[subsystem.ID]subsystem.Target
	configs map[subsystem.ID]*Config
	locks   map[subsystem.ID]*sync.Mutex
}

// New constructs a bridge over the given adapter and validator.
func New(conv *adapter.Adapter, val *validation.Validator, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		adapter:   conv,
		validator: val,
		log:       log,
		legacy:    make(map[subsystem.ID]subsystem.Target),
		phase2:    make(map[subsystem.ID]subsystem.Target),
		configs:   make(map[subsystem.ID]*Config),
		locks:     make(map[subsystem.ID]*sync.Mutex),
	}
}

// RegisterLegacy installs the legacy implementation for a subsystem.
// Idempotent, last write wins; re-registering mid-migration is the caller's
// bug to avoid.
func (b *Bridge) RegisterLegacy(id subsystem.ID, target subsystem.Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.legacy[id] = target
	b.ensureConfigLocked(id)
}

// RegisterNew installs the phase-2 implementation for a subsystem.
func (b *Bridge) RegisterNew(id subsystem.ID, target subsystem.Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.phase2[id] = target
	b.ensureConfigLocked(id)
}

func (b *Bridge) ensureConfigLocked(id subsystem.ID) *Config {
	cfg, ok := b.configs[id]
	if !ok {
		cfg = &Config{Status: StatusLegacy, ValidationEnabled: true, RollbackEnabled: true, MaxErrors: DefaultMaxErrors}
		b.configs[id] = cfg
	}
	return cfg
}

func (b *Bridge) lockFor(id subsystem.ID) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[id]
	if !ok {
		l = &sync.Mutex{}
		b.locks[id] = l
	}
	return l
}

// Targets returns the registered legacy and phase-2 targets for id.
func (b *Bridge) Targets(id subsystem.ID) (legacy, phase2 subsystem.Target, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, okL := b.legacy[id]
	n, okN := b.phase2[id]
	return l, n, okL && okN
}

// EnableMigration copies legacy state into the phase-2 instance, validates
// the pair when asked, and on success flips routing to phase-2. Every
// failure leaves routing and the phase-2 instance exactly as they were
// before the attempt and increments the subsystem's error counter;
// crossing the error budget forces the ERROR status and an automatic
// DisableMigration.
func (b *Bridge) EnableMigration(ctx context.Context, id subsystem.ID, validate bool) subsystem.OperationResult {
	lock := b.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	b.mu.Lock()
	legacy, okL := b.legacy[id]
	phase2, okN := b.phase2[id]
	cfg := b.ensureConfigLocked(id)
	if !okL || !okN {
		b.mu.Unlock()
		missing := "legacy"
		if okL {
			missing = "new"
		}
		return subsystem.Fail(subsystem.RegistrationError{Subsystem: id, Missing: missing}.Error())
	}
	if !legacy.Codec.Defined() || !phase2.Codec.Defined() {
		b.mu.Unlock()
		return subsystem.Fail(subsystem.RegistrationError{Subsystem: id, Missing: "codec"}.Error())
	}
	prev := cfg.Status
	cfg.Status = StatusMigrating
	b.mu.Unlock()

	b.log.Info("migration started", "subsystem", id, "validate", validate)

	// Capture the phase-2 instance's state so a failed attempt can put it
	// back untouched.
	preCopy, err := phase2.Codec.Extractor.Extract(ctx, phase2.Instance)
	if err != nil {
		return b.fail(id, prev, fmt.Sprintf("capture phase-2 state: %v", err))
	}

	if res := b.copyState(ctx, id, legacy, phase2); !res.Success {
		b.revert(ctx, id, phase2, preCopy)
		return b.fail(id, prev, res.Message)
	}

	if validate && b.validationEnabled(id) {
		comp, err := b.validator.Validate(ctx, id, legacy, phase2)
		if err != nil {
			b.revert(ctx, id, phase2, preCopy)
			return b.fail(id, prev, fmt.Sprintf("validation error: %v", err))
		}
		if !comp.ShouldProceed() {
			b.revert(ctx, id, phase2, preCopy)
			verr := subsystem.ValidationFailureError{Subsystem: id, Critical: comp.CriticalCount(), Score: comp.Score()}
			return b.fail(id, prev, verr.Error())
		}
	}

	now := time.Now().UTC()
	b.mu.Lock()
	cfg.Status = StatusPhase2
	cfg.MigrationStartedAt = &now
	b.mu.Unlock()
	b.log.Info("migration enabled", "subsystem", id)
	return subsystem.OK(fmt.Sprintf("subsystem %s migrated to phase-2", id))
}

// copyState converts the legacy capture and applies it to the phase-2
// instance.
func (b *Bridge) copyState(ctx context.Context, id subsystem.ID, legacy, phase2 subsystem.Target) subsystem.OperationResult {
	state, err := legacy.Codec.Extractor.Extract(ctx, legacy.Instance)
	if err != nil {
		return subsystem.Fail(fmt.Sprintf("extract legacy state: %v", err))
	}
	converted, convRes := b.adapter.ToNew(id, state)
	if !convRes.Success {
		return subsystem.Fail(subsystem.ConversionError{Subsystem: id, Detail: convRes.Error}.Error())
	}
	if err := phase2.Codec.Restorer.Restore(ctx, phase2.Instance, converted); err != nil {
		return subsystem.Fail(fmt.Sprintf("apply converted state: %v", err))
	}
	return subsystem.OK("state copied")
}

// revert puts the phase-2 instance's pre-attempt state back. Best effort:
// a failed revert is logged, the attempt is already failed.
func (b *Bridge) revert(ctx context.Context, id subsystem.ID, phase2 subsystem.Target, preCopy json.RawMessage) {
	if err := phase2.Codec.Restorer.Restore(ctx, phase2.Instance, preCopy); err != nil {
		b.log.Error("revert of phase-2 state failed", "subsystem", id, "error", err)
	}
}

// fail restores the prior routing status, bumps the error counter and
// applies the error budget.
func (b *Bridge) fail(id subsystem.ID, prev Status, msg string) subsystem.OperationResult {
	b.mu.Lock()
	cfg := b.ensureConfigLocked(id)
	cfg.Status = prev
	cfg.ErrorCount++
	count, limit := cfg.ErrorCount, cfg.MaxErrors
	exceeded := count >= limit
	if exceeded {
		cfg.Status = StatusError
	}
	b.mu.Unlock()

	b.log.Warn("migration failed", "subsystem", id, "error", msg, "error_count", count)
	if exceeded {
		terr := subsystem.ThresholdExceededError{Subsystem: id, Count: count, Max: limit}
		b.log.Error("error budget exceeded, disabling migration", "subsystem", id, "count", count, "max", limit)
		b.disable(id)
		return subsystem.Fail(terr.Error())
	}
	return subsystem.Fail(msg)
}

func (b *Bridge) validationEnabled(id subsystem.ID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if cfg, ok := b.configs[id]; ok {
		return cfg.ValidationEnabled
	}
	return true
}

// DisableMigration unconditionally routes the subsystem back to its legacy
// implementation. Idempotent: disabling an already-legacy subsystem is a
// success, not an error. Routing only — restoring data is the rollback
// manager's job.
func (b *Bridge) DisableMigration(id subsystem.ID) subsystem.OperationResult {
	b.disable(id)
	b.log.Info("migration disabled", "subsystem", id)
	return subsystem.OK(fmt.Sprintf("subsystem %s routed to legacy", id))
}

func (b *Bridge) disable(id subsystem.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cfg := b.ensureConfigLocked(id)
	cfg.Status = StatusLegacy
	cfg.ErrorCount = 0
	cfg.MigrationStartedAt = nil
}

// MarkRollback flags a subsystem as mid-restoration. The controller pairs
// this with DisableMigration once the restore settles.
func (b *Bridge) MarkRollback(id subsystem.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureConfigLocked(id).Status = StatusRollback
}

// Active returns the instance that should receive calls for id: the
// phase-2 instance iff the subsystem reached PHASE2, otherwise legacy.
func (b *Bridge) Active(id subsystem.ID) any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if cfg, ok := b.configs[id]; ok && cfg.Status == StatusPhase2 {
		return b.phase2[id].Instance
	}
	return b.legacy[id].Instance
}

// Status returns the current routing status for id (legacy when unknown).
func (b *Bridge) Status(id subsystem.ID) Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if cfg, ok := b.configs[id]; ok {
		return cfg.Status
	}
	return StatusLegacy
}

// ConfigFor returns a copy of the subsystem's migration config.
func (b *Bridge) ConfigFor(id subsystem.ID) (Config, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cfg, ok := b.configs[id]
	if !ok {
		return Config{}, false
	}
	return *cfg, true
}

// ErrorCount returns the subsystem's current error counter.
func (b *Bridge) ErrorCount(id subsystem.ID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if cfg, ok := b.configs[id]; ok {
		return cfg.ErrorCount
	}
	return 0
}

// Summary reports per-subsystem status and counts by status.
func (b *Bridge) Summary() Summary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Summary{PerSubsystem: make(map[subsystem.ID]Status, len(b.configs)), Counts: make(map[Status]int)}
	for id, cfg := range b.configs {
		s.PerSubsystem[id] = cfg.Status
		s.Counts[cfg.Status]++
	}
	return s
}

// HealthScore reports routing health on a 0-100 scale. Routing to legacy
// is a valid state and costs nothing; subsystems in ERROR lose their full
// share, others lose the spent fraction of their error budget. An empty
// bridge is healthy.
func (b *Bridge) HealthScore() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.configs) == 0 {
		return 100
	}
	share := 100 / float64(len(b.configs))
	score := 100.0
	for _, cfg := range b.configs {
		switch {
		case cfg.Status == StatusError:
			score -= share
		case cfg.MaxErrors > 0:
			score -= share * float64(cfg.ErrorCount) / float64(cfg.MaxErrors)
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}
