package controller

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"agrobridge/internal/adapter"
	"agrobridge/internal/blob"
	"agrobridge/internal/bridge"
	"agrobridge/internal/rollback"
	"agrobridge/internal/snapshot"
	"agrobridge/internal/validation"
	"agrobridge/pkg/subsystem"
)

type box struct {
	Value float64
}

func boxTarget(b *box) subsystem.Target {
	return subsystem.Target{
		Instance: b,
		Codec: subsystem.Codec{
			Extractor: subsystem.ExtractorFunc(func(_ context.Context, instance any) (json.RawMessage, error) {
				return json.Marshal(map[string]float64{"value": instance.(*box).Value})
			}),
			Restorer: subsystem.RestorerFunc(func(_ context.Context, instance any, state json.RawMessage) error {
				var fields map[string]float64
				if err := json.Unmarshal(state, &fields); err != nil {
					return err
				}
				instance.(*box).Value = fields["value"]
				return nil
			}),
		},
	}
}

func identity(state json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
	out := make(json.RawMessage, len(state))
	copy(out, state)
	return out, adapter.Converted()
}

type fixture struct {
	ctrl      *Controller
	bridge    *bridge.Bridge
	manager   *rollback.Manager
	adapter   *adapter.Adapter
	validator *validation.Validator
	legacy    map[subsystem.ID]*box
	phase2    map[subsystem.ID]*box
	events    []Event
}

func newFixture(t *testing.T, ids ...subsystem.ID) *fixture {
	t.Helper()
	a := adapter.New(nil)
	v := validation.New(a)
	b := bridge.New(a, v, nil)
	store := snapshot.NewStore(blob.NewMemory(), snapshot.NewMemoryIndex())
	m := rollback.NewManager(store, nil)

	f := &fixture{
		ctrl:   New(Deps{Bridge: b, Manager: m, Validator: v, Adapter: a}),
		bridge: b, manager: m, adapter: a, validator: v,
		legacy: make(map[subsystem.ID]*box),
		phase2: make(map[subsystem.ID]*box),
	}
	for i, id := range ids {
		a.Register(id, adapter.Converter{ToNew: identity, ToLegacy: identity})
		lb := &box{Value: float64(100 + i)}
		pb := &box{}
		f.legacy[id] = lb
		f.phase2[id] = pb
		b.RegisterLegacy(id, boxTarget(lb))
		b.RegisterNew(id, boxTarget(pb))
		m.RegisterTarget(id, boxTarget(lb))
	}
	f.ctrl.AddListener(func(ev Event) { f.events = append(f.events, ev) })
	return f
}

func (f *fixture) lastEvent(t *testing.T) Event {
	t.Helper()
	if len(f.events) == 0 {
		t.Fatalf("no events delivered")
	}
	return f.events[len(f.events)-1]
}

func TestController_MigrateSystemRejectsUnknownSubsystem(t *testing.T) {
	f := newFixture(t, subsystem.Time)
	res := f.ctrl.MigrateSystem(context.Background(), "weather", false)
	if res.Success {
		t.Fatalf("unknown subsystem must fail")
	}
}

func TestController_PrerequisitesFailClosed(t *testing.T) {
	f := newFixture(t, subsystem.Time, subsystem.Economy)
	res := f.ctrl.MigrateSystem(context.Background(), subsystem.Economy, false)
	if res.Success {
		t.Fatalf("economy must not migrate before time")
	}
	if !strings.Contains(res.Message, "prerequisite time not migrated") {
		t.Fatalf("unexpected message: %s", res.Message)
	}
	if f.bridge.Status(subsystem.Economy) != bridge.StatusLegacy {
		t.Fatalf("routing must stay legacy")
	}
}

func TestController_MigrateSystemHappyPath(t *testing.T) {
	f := newFixture(t, subsystem.Time)
	ctx := context.Background()

	res := f.ctrl.MigrateSystem(ctx, subsystem.Time, false)
	if !res.Success {
		t.Fatalf("migration failed: %s", res.Message)
	}
	if f.bridge.Status(subsystem.Time) != bridge.StatusPhase2 {
		t.Fatalf("expected phase2 routing, got %s", f.bridge.Status(subsystem.Time))
	}
	if f.phase2[subsystem.Time].Value != 100 {
		t.Fatalf("legacy state not copied: %v", f.phase2[subsystem.Time].Value)
	}
	if ev := f.lastEvent(t); ev.Kind != EventMigrated || ev.Subsystem != subsystem.Time {
		t.Fatalf("unexpected event: %+v", ev)
	}
	// A pre-migration snapshot exists for the crash path.
	recs, err := f.manager.Snapshots(ctx, subsystem.Time)
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected one snapshot, got %d (%v)", len(recs), err)
	}

	// Re-running is a no-op, not a second migration.
	res = f.ctrl.MigrateSystem(ctx, subsystem.Time, false)
	if !res.Success || !strings.Contains(res.Message, "already on phase-2") {
		t.Fatalf("expected no-op, got %+v", res)
	}
	recs, _ = f.manager.Snapshots(ctx, subsystem.Time)
	if len(recs) != 1 {
		t.Fatalf("no-op must not snapshot again, got %d", len(recs))
	}
}

func TestController_ForceBypassesPrerequisites(t *testing.T) {
	f := newFixture(t, subsystem.Time, subsystem.Economy)
	res := f.ctrl.MigrateSystem(context.Background(), subsystem.Economy, true)
	if !res.Success {
		t.Fatalf("forced migration failed: %s", res.Message)
	}
	if f.bridge.Status(subsystem.Economy) != bridge.StatusPhase2 {
		t.Fatalf("expected phase2 routing")
	}
}

func TestController_FailedMigrationRollsBack(t *testing.T) {
	f := newFixture(t, subsystem.Time)
	// Break the converter after fixture wiring so the snapshot still works.
	f.adapter.Register(subsystem.Time, adapter.Converter{
		ToNew: func(json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			return nil, adapter.Failed("schema mismatch")
		},
		ToLegacy: identity,
	})

	res := f.ctrl.MigrateSystem(context.Background(), subsystem.Time, false)
	if res.Success {
		t.Fatalf("expected migration to fail")
	}
	if ev := f.lastEvent(t); ev.Kind != EventFailed {
		t.Fatalf("expected failure event, got %+v", ev)
	}
	ops := f.ctrl.RollbackHistory()
	if len(ops) != 1 || ops[0].Status != rollback.StatusCompleted {
		t.Fatalf("expected one completed rollback, got %+v", ops)
	}
	if ops[0].Trigger != rollback.TriggerValidationFailure {
		t.Fatalf("unexpected trigger: %s", ops[0].Trigger)
	}
	if f.legacy[subsystem.Time].Value != 100 {
		t.Fatalf("legacy state must survive intact: %v", f.legacy[subsystem.Time].Value)
	}
}

func TestController_SnapshotFailureAbortsUnlessForced(t *testing.T) {
	f := newFixture(t, subsystem.Time)
	// Drop the rollback target so the pre-migration snapshot cannot be taken.
	f.manager = rollback.NewManager(snapshot.NewStore(blob.NewMemory(), snapshot.NewMemoryIndex()), nil)
	f.ctrl = New(Deps{Bridge: f.bridge, Manager: f.manager, Validator: f.validator, Adapter: f.adapter})

	res := f.ctrl.MigrateSystem(context.Background(), subsystem.Time, false)
	if res.Success || !strings.Contains(res.Message, "pre-migration snapshot") {
		t.Fatalf("expected snapshot failure to abort, got %+v", res)
	}

	res = f.ctrl.MigrateSystem(context.Background(), subsystem.Time, true)
	if !res.Success {
		t.Fatalf("force should press on without a snapshot: %s", res.Message)
	}
}

func TestController_MigrateAllFollowsPhaseOrder(t *testing.T) {
	f := newFixture(t, subsystem.All()...)
	batch := f.ctrl.MigrateAll(context.Background(), false)
	if !batch.Success {
		t.Fatalf("expected overall success: %s", batch.Message)
	}
	if len(batch.Results) != len(subsystem.All()) {
		t.Fatalf("expected results for every subsystem, got %d", len(batch.Results))
	}
	for id, res := range batch.Results {
		if !res.Success {
			t.Fatalf("subsystem %s failed: %s", id, res.Message)
		}
	}
	p := f.ctrl.Progress()
	if p.Total != 6 || p.Migrated != 6 || p.Percent != 100 {
		t.Fatalf("unexpected progress: %+v", p)
	}
}

func TestController_MigrateAllStopsAtFailedPhase(t *testing.T) {
	f := newFixture(t, subsystem.All()...)
	f.adapter.Register(subsystem.Economy, adapter.Converter{
		ToNew: func(json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			return nil, adapter.Failed("broken")
		},
		ToLegacy: identity,
	})

	batch := f.ctrl.MigrateAll(context.Background(), false)
	if batch.Success {
		t.Fatalf("overall result must fail: %s", batch.Message)
	}
	if !batch.Results[subsystem.Time].Success {
		t.Fatalf("foundation phase should succeed: %+v", batch.Results[subsystem.Time])
	}
	if batch.Results[subsystem.Economy].Success {
		t.Fatalf("economy should fail")
	}
	if _, ran := batch.Results[subsystem.Building]; ran {
		t.Fatalf("later phases must not run after a failed phase")
	}
	if _, ran := batch.Results[subsystem.SaveLoad]; ran {
		t.Fatalf("persistence phase must not run after a failed phase")
	}
}

func TestController_MigrateAllForceReportsAggregateFailure(t *testing.T) {
	f := newFixture(t, subsystem.All()...)
	f.adapter.Register(subsystem.Economy, adapter.Converter{
		ToNew: func(json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			return nil, adapter.Failed("broken")
		},
		ToLegacy: identity,
	})

	batch := f.ctrl.MigrateAll(context.Background(), true)
	if batch.Success {
		t.Fatalf("one failed subsystem must fail the whole run: %s", batch.Message)
	}
	// Force keeps going past the failure.
	if len(batch.Results) != len(subsystem.All()) {
		t.Fatalf("force should attempt every subsystem, got %d", len(batch.Results))
	}
	if !strings.Contains(batch.Message, "failed") {
		t.Fatalf("message should report the failure count: %s", batch.Message)
	}
}

func TestController_RollbackSystemIsRoutingOnly(t *testing.T) {
	f := newFixture(t, subsystem.Time)
	ctx := context.Background()
	if res := f.ctrl.MigrateSystem(ctx, subsystem.Time, false); !res.Success {
		t.Fatalf("migration failed: %s", res.Message)
	}
	f.legacy[subsystem.Time].Value = 1 // drift after the snapshot

	res := f.ctrl.RollbackSystem(ctx, subsystem.Time)
	if !res.Success {
		t.Fatalf("rollback failed: %s", res.Message)
	}
	if f.bridge.Status(subsystem.Time) != bridge.StatusLegacy {
		t.Fatalf("rollback must route back to legacy, got %s", f.bridge.Status(subsystem.Time))
	}
	// Routing only: the drifted legacy state stays as it is.
	if f.legacy[subsystem.Time].Value != 1 {
		t.Fatalf("rollback must not touch data: %v", f.legacy[subsystem.Time].Value)
	}
	if len(f.ctrl.RollbackHistory()) != 0 {
		t.Fatalf("routing rollback must not record a restore operation")
	}
	if ev := f.lastEvent(t); ev.Kind != EventRollback {
		t.Fatalf("expected rollback event, got %+v", ev)
	}
}

func TestController_RollbackWithoutSnapshotSucceeds(t *testing.T) {
	f := newFixture(t, subsystem.Crop)
	res := f.ctrl.RollbackSystem(context.Background(), subsystem.Crop)
	if !res.Success {
		t.Fatalf("routing rollback needs no snapshot: %s", res.Message)
	}
	if f.bridge.Status(subsystem.Crop) != bridge.StatusLegacy {
		t.Fatalf("routing must reset to legacy")
	}
}

func TestController_RestoreSystem(t *testing.T) {
	f := newFixture(t, subsystem.Time)
	ctx := context.Background()
	if res := f.ctrl.MigrateSystem(ctx, subsystem.Time, false); !res.Success {
		t.Fatalf("migration failed: %s", res.Message)
	}
	f.legacy[subsystem.Time].Value = 1 // drift after the snapshot

	res := f.ctrl.RestoreSystem(ctx, subsystem.Time)
	if !res.Success {
		t.Fatalf("restore failed: %s", res.Message)
	}
	if f.bridge.Status(subsystem.Time) != bridge.StatusLegacy {
		t.Fatalf("restore must route back to legacy, got %s", f.bridge.Status(subsystem.Time))
	}
	if f.legacy[subsystem.Time].Value != 100 {
		t.Fatalf("snapshot state not restored: %v", f.legacy[subsystem.Time].Value)
	}
	if ev := f.lastEvent(t); ev.Kind != EventRollback {
		t.Fatalf("expected rollback event, got %+v", ev)
	}
}

func TestController_RestoreWithoutSnapshotFails(t *testing.T) {
	f := newFixture(t, subsystem.Crop)
	res := f.ctrl.RestoreSystem(context.Background(), subsystem.Crop)
	if res.Success {
		t.Fatalf("expected failure with no snapshot")
	}
	if f.bridge.Status(subsystem.Crop) != bridge.StatusLegacy {
		t.Fatalf("routing must still reset to legacy")
	}
}

func TestController_EvaluateAutoTriggers(t *testing.T) {
	f := newFixture(t, subsystem.Time)
	ctx := context.Background()
	if res := f.ctrl.MigrateSystem(ctx, subsystem.Time, false); !res.Success {
		t.Fatalf("migration failed: %s", res.Message)
	}

	name, res := f.ctrl.EvaluateAutoTriggers(ctx, rollback.Stats{Subsystem: subsystem.Time, ErrorCount: 2})
	if name != "" || !res.Success {
		t.Fatalf("healthy stats must not trip: %s %+v", name, res)
	}
	if f.bridge.Status(subsystem.Time) != bridge.StatusPhase2 {
		t.Fatalf("routing must be untouched when nothing trips")
	}

	name, res = f.ctrl.EvaluateAutoTriggers(ctx, rollback.Stats{Subsystem: subsystem.Time, ErrorCount: 6})
	if name != "error-count" || !res.Success {
		t.Fatalf("expected error-count trigger, got %s %+v", name, res)
	}
	if f.bridge.Status(subsystem.Time) != bridge.StatusLegacy {
		t.Fatalf("tripped trigger must route back to legacy")
	}
	if ev := f.lastEvent(t); ev.Kind != EventRollback {
		t.Fatalf("expected rollback event, got %+v", ev)
	}
}

func TestController_MigrationLifecycleEvents(t *testing.T) {
	f := newFixture(t, subsystem.Time)
	if res := f.ctrl.MigrateSystem(context.Background(), subsystem.Time, false); !res.Success {
		t.Fatalf("migration failed: %s", res.Message)
	}
	if len(f.events) != 2 || f.events[0].Kind != EventStarted || f.events[1].Kind != EventMigrated {
		t.Fatalf("expected started then migrated, got %+v", f.events)
	}

	f = newFixture(t, subsystem.Time)
	f.adapter.Register(subsystem.Time, adapter.Converter{
		ToNew: func(json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			return nil, adapter.Failed("schema mismatch")
		},
		ToLegacy: identity,
	})
	if res := f.ctrl.MigrateSystem(context.Background(), subsystem.Time, false); res.Success {
		t.Fatalf("expected migration to fail")
	}
	if len(f.events) != 2 || f.events[0].Kind != EventStarted || f.events[1].Kind != EventFailed {
		t.Fatalf("expected started then failed, got %+v", f.events)
	}

	// A refused prerequisite never starts an attempt.
	f = newFixture(t, subsystem.Time, subsystem.Economy)
	if res := f.ctrl.MigrateSystem(context.Background(), subsystem.Economy, false); res.Success {
		t.Fatalf("economy must not migrate before time")
	}
	if len(f.events) != 0 {
		t.Fatalf("no events expected for a refused attempt, got %+v", f.events)
	}
}

func TestController_ListenerPanicIsIsolated(t *testing.T) {
	f := newFixture(t, subsystem.Time)
	f.ctrl.AddListener(func(Event) { panic("listener bug") })
	delivered := false
	f.ctrl.AddListener(func(Event) { delivered = true })

	res := f.ctrl.MigrateSystem(context.Background(), subsystem.Time, false)
	if !res.Success {
		t.Fatalf("listener panic must not fail the migration: %s", res.Message)
	}
	if !delivered {
		t.Fatalf("listeners after the panicking one must still run")
	}
}

func TestController_HealthHealthySystem(t *testing.T) {
	f := newFixture(t, subsystem.Time, subsystem.Economy)
	report := f.ctrl.Health(context.Background())
	// Bridge 100, validation 100, data integrity 100, rollback a neutral 50
	// because no snapshot exists yet.
	if report.Status != HealthGood || report.Score != 87.5 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.CriticalIssues) != 1 || !strings.Contains(report.CriticalIssues[0], "rollback") {
		t.Fatalf("expected the rollback sub-score flag: %+v", report.CriticalIssues)
	}
	if report.RollbackHealth != 50 || report.BridgeHealth != 100 {
		t.Fatalf("unexpected component scores: %+v", report)
	}
}

func TestController_HealthAfterMigrations(t *testing.T) {
	f := newFixture(t, subsystem.Time)
	if res := f.ctrl.MigrateSystem(context.Background(), subsystem.Time, false); !res.Success {
		t.Fatalf("migration failed: %s", res.Message)
	}
	report := f.ctrl.Health(context.Background())
	if report.Status != HealthExcellent || report.Score < 95 {
		t.Fatalf("fully healthy system expected, got %+v", report)
	}
	if len(report.CriticalIssues) != 0 || len(report.Warnings) != 0 {
		t.Fatalf("no flags expected: %+v", report)
	}
}

type fixedCheck struct {
	level validation.Level
	score float64
}

func (c fixedCheck) Level() validation.Level { return c.level }

func (c fixedCheck) Run(_ context.Context, in validation.CheckInput) (validation.Result, error) {
	return validation.Result{Subsystem: in.Subsystem, Level: c.level, Passed: true, Score: c.score}, nil
}

func TestController_HealthFlagsLowValidationAsWarning(t *testing.T) {
	f := newFixture(t, subsystem.Time)
	if res := f.ctrl.MigrateSystem(context.Background(), subsystem.Time, false); !res.Success {
		t.Fatalf("migration failed: %s", res.Message)
	}
	// Synthesize a bad validation run without touching routing.
	f.validator.RegisterCheck(fixedCheck{level: validation.LevelData, score: 20})
	if _, err := f.validator.Validate(context.Background(), subsystem.Time,
		subsystem.Target{}, subsystem.Target{}, validation.LevelData); err != nil {
		t.Fatalf("validate: %v", err)
	}
	report := f.ctrl.Health(context.Background())
	if len(report.Warnings) == 0 {
		t.Fatalf("low validation scores should warn: %+v", report)
	}
	for _, issue := range report.CriticalIssues {
		if strings.Contains(issue, "validation") {
			t.Fatalf("validation must warn, not raise an issue: %+v", report.CriticalIssues)
		}
	}
}

func TestStatusForThresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  HealthStatus
	}{
		{95, HealthExcellent}, {90, HealthExcellent},
		{82.5, HealthGood}, {75, HealthGood},
		{68, HealthFair}, {60, HealthFair},
		{50, HealthPoor}, {40, HealthPoor},
		{39.9, HealthCritical}, {0, HealthCritical},
	}
	for _, tc := range cases {
		if got := statusFor(tc.score); got != tc.want {
			t.Fatalf("statusFor(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
