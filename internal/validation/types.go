// Package validation gates migrations by comparing the legacy and phase-2
// implementations of a subsystem. Checks run per level with an enforced
// deadline; a timed-out check fails, it never silently passes.
package validation

import (
	"time"

	"agrobridge/pkg/subsystem"
)

// Level identifies one validation dimension.
type Level string

const (
	// LevelData compares converted legacy state against the phase-2 live state.
	LevelData Level = "data"
	// LevelPerformance benchmarks representative operations on both sides.
	LevelPerformance Level = "performance"
	// LevelFunctional is reserved for caller-registered behavioral checks.
	LevelFunctional Level = "functional"
	// LevelIntegration is reserved for caller-registered cross-subsystem checks.
	LevelIntegration Level = "integration"
	// LevelUX is reserved for caller-registered presentation checks.
	LevelUX Level = "ux"
)

// DefaultLevels are the levels run when a caller does not name any.
func DefaultLevels() []Level { return []Level{LevelData, LevelPerformance} }

// Severity classifies a validation issue.
type Severity string

const (
	// SeverityCritical blocks migration.
	SeverityCritical Severity = "critical"
	// SeverityWarning is reported but does not block.
	SeverityWarning Severity = "warning"
	// SeverityInfo is purely informational.
	SeverityInfo Severity = "info"
)

// Score deductions per issue severity.
const (
	criticalPenalty = 25
	warningPenalty  = 12
	infoPenalty     = 5
)

// Issue reports one validation finding.
type Issue struct {
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// Critical builds a blocking issue.
func Critical(message string, details map[string]any) Issue {
	return Issue{Severity: SeverityCritical, Message: message, Details: details}
}

// Warning builds a non-blocking issue.
func Warning(message string, details map[string]any) Issue {
	return Issue{Severity: SeverityWarning, Message: message, Details: details}
}

// Info builds an informational issue.
func Info(message string, details map[string]any) Issue {
	return Issue{Severity: SeverityInfo, Message: message, Details: details}
}

// Result is the outcome of one level's validation for one subsystem.
type Result struct {
	Subsystem subsystem.ID  `json:"subsystem"`
	Level     Level         `json:"level"`
	Passed    bool          `json:"passed"`
	Score     float64       `json:"score"`
	Issues    []Issue       `json:"issues,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// newResult scores and classifies a finished level run. Passed mirrors
// ShouldProceed: a result passes iff it carries no critical issue, however
// low the score.
func newResult(sub subsystem.ID, level Level, issues []Issue, elapsed time.Duration) Result {
	score := 100.0
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityCritical:
			score -= criticalPenalty
		case SeverityWarning:
			score -= warningPenalty
		case SeverityInfo:
			score -= infoPenalty
		}
	}
	if score < 0 {
		score = 0
	}
	res := Result{Subsystem: sub, Level: level, Score: score, Issues: issues, Elapsed: elapsed}
	res.Passed = res.ShouldProceed()
	return res
}

// CriticalCount returns the number of critical issues.
func (r Result) CriticalCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// WarningCount returns the number of warning issues.
func (r Result) WarningCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityWarning {
			n++
		}
	}
	return n
}

// ShouldProceed reports whether migration may continue past this result:
// true iff there are zero critical issues, independent of score.
func (r Result) ShouldProceed() bool {
	return r.CriticalCount() == 0
}

// Comprehensive aggregates the per-level results of one validation run.
type Comprehensive struct {
	Subsystem subsystem.ID     `json:"subsystem"`
	Results   map[Level]Result `json:"results"`
	StartedAt time.Time        `json:"started_at"`
	Elapsed   time.Duration    `json:"elapsed"`
}

// ShouldProceed reports whether every level's result proceeds.
func (c Comprehensive) ShouldProceed() bool {
	for _, res := range c.Results {
		if !res.ShouldProceed() {
			return false
		}
	}
	return true
}

// Score is the mean of the per-level scores (100 with no results).
func (c Comprehensive) Score() float64 {
	if len(c.Results) == 0 {
		return 100
	}
	total := 0.0
	for _, res := range c.Results {
		total += res.Score
	}
	return total / float64(len(c.Results))
}

// CriticalCount totals critical issues across levels.
func (c Comprehensive) CriticalCount() int {
	n := 0
	for _, res := range c.Results {
		n += res.CriticalCount()
	}
	return n
}

// WarningCount totals warning issues across levels.
func (c Comprehensive) WarningCount() int {
	n := 0
	for _, res := range c.Results {
		n += res.WarningCount()
	}
	return n
}
