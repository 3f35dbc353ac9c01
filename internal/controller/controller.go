// Package controller orchestrates subsystem migrations: dependency
// ordering, pre-migration snapshots, rollback on failure, progress
// tracking and the aggregate health report.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agrobridge/internal/adapter"
	"agrobridge/internal/bridge"
	"agrobridge/internal/metrics"
	"agrobridge/internal/rollback"
	"agrobridge/internal/validation"
	"agrobridge/pkg/subsystem"
)

// Phase groups subsystems that migrate together. Phases run in the order
// PhaseOrder lists them.
type Phase string

const (
	PhaseFoundation     Phase = "foundation"
	PhaseCore           Phase = "core"
	PhaseInfrastructure Phase = "infrastructure"
	PhasePersistence    Phase = "persistence"
)

// PhaseOrder is the canonical execution order for full migrations.
var PhaseOrder = []Phase{PhaseFoundation, PhaseCore, PhaseInfrastructure, PhasePersistence}

// DefaultPhases maps each phase to its subsystems in migration order.
func DefaultPhases() map[Phase][]subsystem.ID {
	return map[Phase][]subsystem.ID{
		PhaseFoundation:     {subsystem.Time},
		PhaseCore:           {subsystem.Economy, subsystem.Employee, subsystem.Crop},
		PhaseInfrastructure: {subsystem.Building},
		PhasePersistence:    {subsystem.SaveLoad},
	}
}

// DefaultPrerequisites maps each subsystem to the subsystems that must be
// on phase-2 before it may migrate.
func DefaultPrerequisites() map[subsystem.ID][]subsystem.ID {
	return map[subsystem.ID][]subsystem.ID{
		subsystem.Economy:  {subsystem.Time},
		subsystem.Employee: {subsystem.Time},
		subsystem.Crop:     {subsystem.Time},
		subsystem.Building: {subsystem.Economy},
		subsystem.SaveLoad: {subsystem.Economy, subsystem.Employee, subsystem.Crop},
	}
}

// EventKind classifies controller notifications.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventMigrated EventKind = "migrated"
	EventFailed   EventKind = "failed"
	EventRollback EventKind = "rollback"
)

// Event is delivered to registered listeners after each state change.
type Event struct {
	Subsystem subsystem.ID `json:"subsystem"`
	Kind      EventKind    `json:"kind"`
	Message   string       `json:"message"`
	At        time.Time    `json:"at"`
}

// Listener receives controller events. A panicking listener is isolated
// and never aborts the migration that triggered it.
type Listener func(Event)

// Progress summarizes how far the overall migration has advanced.
type Progress struct {
	Total        int                            `json:"total"`
	Migrated     int                            `json:"migrated"`
	Percent      float64                        `json:"percent"`
	PerSubsystem map[subsystem.ID]bridge.Status `json:"per_subsystem"`
	UpdatedAt    time.Time                      `json:"updated_at"`
}

// HealthStatus buckets an aggregate score.
type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
	HealthCritical  HealthStatus = "critical"
)

// subScoreFloor is the sub-score below which a component is flagged in
// the report.
const subScoreFloor = 70.0

// HealthReport is the aggregate health view served to dashboards. The
// field names are the wire contract consumed by external tooling.
type HealthReport struct {
	Score               float64      `json:"score"`
	Status              HealthStatus `json:"status"`
	BridgeHealth        float64      `json:"bridge_health"`
	ValidationHealth    float64      `json:"validation_health"`
	RollbackHealth      float64      `json:"rollback_health"`
	DataIntegrityHealth float64      `json:"data_integrity_health"`
	CriticalIssues      []string     `json:"critical_issues,omitempty"`
	Warnings            []string     `json:"warnings,omitempty"`
	Recommendations     []string     `json:"recommendations,omitempty"`
	GeneratedAt         time.Time    `json:"generated_at"`
}

// Controller wires the bridge, validator, adapter and rollback manager
// into one migration surface. Construct with New; the zero value is not
// usable.
type Controller struct {
	bridge    *bridge.Bridge
	manager   *rollback.Manager
	validator *validation.Validator
	adapter   *adapter.Adapter
	metrics   *metrics.Set
	log       *slog.Logger

	phases  map[Phase][]subsystem.ID
	prereqs map[subsystem.ID][]subsystem.ID

	mu        sync.RWMutex
	listeners []Listener
}

// Deps carries the controller's collaborators. All but Metrics and Log
// are required.
type Deps struct {
	Bridge    *bridge.Bridge
	Manager   *rollback.Manager
	Validator *validation.Validator
	Adapter   *adapter.Adapter
	Metrics   *metrics.Set
	Log       *slog.Logger
}

// New builds a controller with the default phase plan.
func New(d Deps) *Controller {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	return &Controller{
		bridge:    d.Bridge,
		manager:   d.Manager,
		validator: d.Validator,
		adapter:   d.Adapter,
		metrics:   d.Metrics,
		log:       d.Log,
		phases:    DefaultPhases(),
		prereqs:   DefaultPrerequisites(),
	}
}

// AddListener registers a notification callback.
func (c *Controller) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Controller) notify(ev Event) {
	c.mu.RLock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("listener panicked", "kind", ev.Kind, "subsystem", ev.Subsystem, "panic", r)
				}
			}()
			l(ev)
		}()
	}
}

// MigrateSystem migrates one subsystem to phase-2. Already-migrated
// subsystems are a no-op unless force. Unless force, unmet prerequisites
// abort before any state is touched and a failed pre-migration snapshot
// aborts as well. A failed migration with rollback enabled is restored
// from that snapshot.
func (c *Controller) MigrateSystem(ctx context.Context, id subsystem.ID, force bool) subsystem.OperationResult {
	if !id.Valid() {
		return subsystem.Fail(fmt.Sprintf("unknown subsystem %q", id))
	}
	if c.bridge.Status(id) == bridge.StatusPhase2 && !force {
		return subsystem.OK(fmt.Sprintf("subsystem %s already on phase-2", id))
	}
	if !force {
		for _, pre := range c.prereqs[id] {
			if c.bridge.Status(pre) != bridge.StatusPhase2 {
				return subsystem.Fail(fmt.Sprintf("prerequisite %s not migrated for %s", pre, id))
			}
		}
	}

	c.notify(Event{Subsystem: id, Kind: EventStarted, Message: fmt.Sprintf("migrating %s to phase-2", id), At: time.Now().UTC()})

	rollbackEnabled := true
	if cfg, ok := c.bridge.ConfigFor(id); ok {
		rollbackEnabled = cfg.RollbackEnabled
	}

	var snapID string
	if rollbackEnabled {
		sid, err := c.manager.CreateSnapshot(ctx, id, "pre-migration")
		if err != nil {
			c.log.Error("pre-migration snapshot failed", "subsystem", id, "error", err)
			if !force {
				return subsystem.Fail(fmt.Sprintf("pre-migration snapshot: %v", err))
			}
		} else {
			snapID = sid
			c.recordSnapshotSize(ctx, id)
		}
	}

	res := c.bridge.EnableMigration(ctx, id, true)
	c.metrics.RecordMigration(string(id), res.Success)
	if score, ok := c.validator.LatestScore(id); ok {
		c.metrics.SetValidationScore(string(id), score)
	}

	if !res.Success {
		if snapID != "" {
			rb := c.manager.RollbackTo(ctx, snapID, rollback.LevelState, rollback.TriggerValidationFailure)
			c.metrics.RecordRollback(string(id), rb.Success)
			if !rb.Success {
				c.log.Error("post-failure rollback failed", "subsystem", id, "error", rb.Message)
			}
		}
		c.notify(Event{Subsystem: id, Kind: EventFailed, Message: res.Message, At: time.Now().UTC()})
		return res
	}

	c.notify(Event{Subsystem: id, Kind: EventMigrated, Message: res.Message, At: time.Now().UTC()})
	return res
}

func (c *Controller) recordSnapshotSize(ctx context.Context, id subsystem.ID) {
	recs, err := c.manager.Snapshots(ctx, id)
	if err != nil || len(recs) == 0 {
		return
	}
	c.metrics.SetSnapshotBytes(string(id), recs[0].Size)
}

// BatchResult aggregates per-subsystem outcomes of a multi-subsystem
// migration run. Success requires every attempted subsystem to have
// succeeded, even under force.
type BatchResult struct {
	Success bool                                       `json:"success"`
	Message string                                     `json:"message"`
	Results map[subsystem.ID]subsystem.OperationResult `json:"results"`
}

func newBatchResult(results map[subsystem.ID]subsystem.OperationResult) BatchResult {
	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	br := BatchResult{Success: failed == 0, Results: results}
	if failed == 0 {
		br.Message = fmt.Sprintf("%d subsystem(s) migrated", len(results))
	} else {
		br.Message = fmt.Sprintf("%d of %d subsystem(s) failed", failed, len(results))
	}
	return br
}

// MigratePhase migrates every subsystem in a phase, in declared order.
// The first failure stops the phase unless force, in which case the
// remaining subsystems are still attempted.
func (c *Controller) MigratePhase(ctx context.Context, phase Phase, force bool) BatchResult {
	results := make(map[subsystem.ID]subsystem.OperationResult)
	for _, id := range c.phases[phase] {
		res := c.MigrateSystem(ctx, id, force)
		results[id] = res
		if !res.Success && !force {
			break
		}
	}
	return newBatchResult(results)
}

// MigrateAll runs every phase in order, stopping at the first failed
// phase unless force.
func (c *Controller) MigrateAll(ctx context.Context, force bool) BatchResult {
	results := make(map[subsystem.ID]subsystem.OperationResult)
	for _, phase := range PhaseOrder {
		batch := c.MigratePhase(ctx, phase, force)
		for id, res := range batch.Results {
			results[id] = res
		}
		if !batch.Success && !force {
			break
		}
	}
	return newBatchResult(results)
}

// RollbackSystem routes the subsystem back to its legacy implementation.
// Routing only, so it needs no snapshot and cannot fail for a known
// subsystem; callers wanting snapshot data restored use RestoreSystem.
func (c *Controller) RollbackSystem(ctx context.Context, id subsystem.ID) subsystem.OperationResult {
	if !id.Valid() {
		return subsystem.Fail(fmt.Sprintf("unknown subsystem %q", id))
	}
	res := c.bridge.DisableMigration(id)
	c.notify(Event{Subsystem: id, Kind: EventRollback, Message: res.Message, At: time.Now().UTC()})
	return res
}

// RestoreSystem restores the subsystem's newest snapshot through the
// rollback manager and routes it back to legacy. Routing is reset even
// when the restore fails, so the subsystem always ends on a working
// implementation.
func (c *Controller) RestoreSystem(ctx context.Context, id subsystem.ID) subsystem.OperationResult {
	if !id.Valid() {
		return subsystem.Fail(fmt.Sprintf("unknown subsystem %q", id))
	}
	c.bridge.MarkRollback(id)
	res := c.manager.EmergencyRollback(ctx, id)
	c.metrics.RecordRollback(string(id), res.Success)
	c.bridge.DisableMigration(id)
	c.notify(Event{Subsystem: id, Kind: EventRollback, Message: res.Message, At: time.Now().UTC()})
	return res
}

// EvaluateAutoTriggers feeds runtime stats to the rollback manager's
// auto triggers; a fired trigger also resets routing to legacy.
func (c *Controller) EvaluateAutoTriggers(ctx context.Context, stats rollback.Stats) (string, subsystem.OperationResult) {
	name, res := c.manager.EvaluateAutoTriggers(ctx, stats)
	if name == "" {
		return "", res
	}
	c.metrics.RecordRollback(string(stats.Subsystem), res.Success)
	c.bridge.DisableMigration(stats.Subsystem)
	c.notify(Event{Subsystem: stats.Subsystem, Kind: EventRollback, Message: res.Message, At: time.Now().UTC()})
	return name, res
}

// Progress reports the migrated fraction across all registered
// subsystems.
func (c *Controller) Progress() Progress {
	sum := c.bridge.Summary()
	p := Progress{
		Total:        len(sum.PerSubsystem),
		Migrated:     sum.Counts[bridge.StatusPhase2],
		PerSubsystem: sum.PerSubsystem,
		UpdatedAt:    time.Now().UTC(),
	}
	if p.Total > 0 {
		p.Percent = 100 * float64(p.Migrated) / float64(p.Total)
	}
	return p
}

// Summary exposes the bridge's per-subsystem routing view.
func (c *Controller) Summary() bridge.Summary {
	return c.bridge.Summary()
}

// RollbackHistory exposes the rollback manager's operation log.
func (c *Controller) RollbackHistory() []rollback.Operation {
	return c.manager.History()
}

// Health aggregates the four component sub-scores into one report. Any
// sub-score under 70 surfaces as an issue, except validation which is a
// warning because a low validation score already blocks migrations on
// its own.
func (c *Controller) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		BridgeHealth:        c.bridge.HealthScore(),
		ValidationHealth:    c.validator.HealthScore(),
		RollbackHealth:      c.manager.HealthScore(ctx),
		DataIntegrityHealth: c.adapter.SuccessRate(),
		GeneratedAt:         time.Now().UTC(),
	}
	report.Score = (report.BridgeHealth + report.ValidationHealth + report.RollbackHealth + report.DataIntegrityHealth) / 4
	report.Status = statusFor(report.Score)

	if report.BridgeHealth < subScoreFloor {
		report.CriticalIssues = append(report.CriticalIssues, "bridge health degraded")
		report.Recommendations = append(report.Recommendations, "inspect per-subsystem error counters and recent migration failures")
	}
	if report.RollbackHealth < subScoreFloor {
		report.CriticalIssues = append(report.CriticalIssues, "rollback capability degraded")
		report.Recommendations = append(report.Recommendations, "verify snapshot storage and create fresh snapshots")
	}
	if report.DataIntegrityHealth < subScoreFloor {
		report.CriticalIssues = append(report.CriticalIssues, "data conversion failures detected")
		report.Recommendations = append(report.Recommendations, "review adapter conversion errors before further migrations")
	}
	if report.ValidationHealth < subScoreFloor {
		report.Warnings = append(report.Warnings, "validation scores trending low")
		report.Recommendations = append(report.Recommendations, "review recent validation reports per subsystem")
	}

	c.metrics.SetHealthScore(report.Score)
	return report
}

func statusFor(score float64) HealthStatus {
	switch {
	case score >= 90:
		return HealthExcellent
	case score >= 75:
		return HealthGood
	case score >= 60:
		return HealthFair
	case score >= 40:
		return HealthPoor
	default:
		return HealthCritical
	}
}
