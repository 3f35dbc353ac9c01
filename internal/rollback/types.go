// Package rollback orchestrates snapshot creation and state restoration for
// migrated subsystems. It is the only owner of the snapshot store: no other
// component reads or writes snapshot payloads directly.
package rollback

import (
	"time"

	"agrobridge/pkg/subsystem"
)

// Trigger records why a rollback was initiated.
type Trigger string

const (
	// TriggerManual is an operator-initiated rollback.
	TriggerManual Trigger = "manual"
	// TriggerValidationFailure follows a blocked migration validation.
	TriggerValidationFailure Trigger = "validation_failure"
	// TriggerCriticalError follows an unrecoverable subsystem error.
	TriggerCriticalError Trigger = "critical_error"
	// TriggerPerformanceDegradation follows a tripped latency threshold.
	TriggerPerformanceDegradation Trigger = "performance_degradation"
	// TriggerDataCorruption follows an integrity check failure.
	TriggerDataCorruption Trigger = "data_corruption"
	// TriggerTimeout follows an operation deadline breach.
	TriggerTimeout Trigger = "timeout"
	// TriggerEmergency is the last-resort automatic path.
	TriggerEmergency Trigger = "emergency"
)

// Level selects which layers a rollback restores. Data is always restored;
// configuration joins at CONFIGURATION and above; runtime state joins at
// STATE and above.
type Level string

const (
	// LevelData restores only the data layer.
	LevelData Level = "data"
	// LevelConfiguration restores data and configuration.
	LevelConfiguration Level = "configuration"
	// LevelState restores data, configuration and runtime state.
	LevelState Level = "state"
	// LevelEmergency restores everything; used by automatic rollbacks.
	LevelEmergency Level = "emergency"
)

// Layer names inside a snapshot state capture.
const (
	LayerData    = "data"
	LayerConfig  = "config"
	LayerRuntime = "runtime"
)

// restoresConfig reports whether the level includes the configuration layer.
func (l Level) restoresConfig() bool {
	return l == LevelConfiguration || l == LevelState || l == LevelEmergency
}

// restoresRuntime reports whether the level includes the runtime state layer.
func (l Level) restoresRuntime() bool {
	return l == LevelState || l == LevelEmergency
}

// Status tracks a rollback operation's lifecycle.
type Status string

const (
	// StatusPending is the initial state of a queued operation.
	StatusPending Status = "pending"
	// StatusInProgress marks an operation actively restoring layers.
	StatusInProgress Status = "in_progress"
	// StatusCompleted marks a fully restored, liveness-checked operation.
	StatusCompleted Status = "completed"
	// StatusFailed marks an aborted operation.
	StatusFailed Status = "failed"
)

// Operation records one rollback attempt. Appended to the manager's history
// when finished and never mutated afterwards.
type Operation struct {
	ID             string       `json:"id"`
	SnapshotID     string       `json:"snapshot_id"`
	Subsystem      subsystem.ID `json:"subsystem"`
	Trigger        Trigger      `json:"trigger"`
	Level          Level        `json:"level"`
	Status         Status       `json:"status"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	RestoredLayers []string     `json:"restored_layers,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// Stats is the signal bundle auto-rollback predicates evaluate.
type Stats struct {
	Subsystem  subsystem.ID
	ErrorCount int
	PerfRatio  float64
}

// AutoTrigger is a registered predicate that, when tripped, forces an
// emergency rollback of the subsystem.
type AutoTrigger struct {
	Name    string
	Reason  Trigger
	Tripped func(Stats) bool
}

// Built-in auto-rollback thresholds.
const (
	autoPerfRatioLimit  = 3.0
	autoErrorCountLimit = 5
)

// DefaultAutoTriggers returns the built-in predicate set.
func DefaultAutoTriggers() []AutoTrigger {
	return []AutoTrigger{
		{
			Name:    "performance-ratio",
			Reason:  TriggerPerformanceDegradation,
			Tripped: func(s Stats) bool { return s.PerfRatio > autoPerfRatioLimit },
		},
		{
			Name:    "error-count",
			Reason:  TriggerCriticalError,
			Tripped: func(s Stats) bool { return s.ErrorCount > autoErrorCountLimit },
		},
	}
}
