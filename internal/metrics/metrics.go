// Package metrics exposes migration counters and gauges on a private
// Prometheus registry so embedding programs do not collide with the
// default one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for migration and rollback counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Set bundles every collector the framework emits.
type Set struct {
	registry *prometheus.Registry

	Migrations      *prometheus.CounterVec
	Rollbacks       *prometheus.CounterVec
	ValidationScore *prometheus.GaugeVec
	SnapshotBytes   *prometheus.GaugeVec
	HealthScore     prometheus.Gauge
}

// New builds a collector set bound to its own registry.
func New() *Set {
	s := &Set{registry: prometheus.NewRegistry()}

	s.Migrations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agrobridge",
		Name:      "migrations_total",
		Help:      "Migration attempts by subsystem and outcome.",
	}, []string{"subsystem", "outcome"})
	s.Rollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agrobridge",
		Name:      "rollbacks_total",
		Help:      "Rollback operations by subsystem and outcome.",
	}, []string{"subsystem", "outcome"})
	s.ValidationScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agrobridge",
		Name:      "validation_score",
		Help:      "Latest comprehensive validation score per subsystem.",
	}, []string{"subsystem"})
	s.SnapshotBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agrobridge",
		Name:      "snapshot_bytes",
		Help:      "Size of the most recent snapshot payload per subsystem.",
	}, []string{"subsystem"})
	s.HealthScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agrobridge",
		Name:      "health_score",
		Help:      "Overall integration health score.",
	})

	s.registry.MustRegister(s.Migrations, s.Rollbacks, s.ValidationScore, s.SnapshotBytes, s.HealthScore)
	return s
}

// Registry returns the backing registry for HTTP exposition.
func (s *Set) Registry() *prometheus.Registry {
	return s.registry
}

// RecordMigration counts an attempt for subsystem id.
func (s *Set) RecordMigration(id string, success bool) {
	s.Migrations.WithLabelValues(id, outcome(success)).Inc()
}

// RecordRollback counts a rollback for subsystem id.
func (s *Set) RecordRollback(id string, success bool) {
	s.Rollbacks.WithLabelValues(id, outcome(success)).Inc()
}

// SetValidationScore records the latest comprehensive score for id.
func (s *Set) SetValidationScore(id string, score float64) {
	s.ValidationScore.WithLabelValues(id).Set(score)
}

// SetSnapshotBytes records the most recent snapshot payload size for id.
func (s *Set) SetSnapshotBytes(id string, size int64) {
	s.SnapshotBytes.WithLabelValues(id).Set(float64(size))
}

// SetHealthScore records the overall health score.
func (s *Set) SetHealthScore(score float64) {
	s.HealthScore.Set(score)
}

func outcome(success bool) string {
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
