package sim

import (
	"agrobridge/internal/adapter"
	"agrobridge/internal/bridge"
	"agrobridge/internal/rollback"
	"agrobridge/internal/validation"
	"agrobridge/pkg/subsystem"
)

// World holds one live instance of every subsystem in both generations.
type World struct {
	LegacyClock *LegacyClock
	Clock       *GameClock

	LegacyLedger *LegacyLedger
	Economy      *EconomyEngine

	LegacyRoster *LegacyRoster
	Workforce    *WorkforceManager

	LegacyFields *LegacyFields
	Crops        *CropSystem

	LegacyBuildings *LegacyBuildings
	Buildings       *BuildingManager

	LegacySaves *LegacySaveRegistry
	Saves       *SaveManager
}

// NewWorld constructs every subsystem at its default starting state.
func NewWorld() *World {
	return &World{
		LegacyClock:     NewLegacyClock(),
		Clock:           NewGameClock(),
		LegacyLedger:    NewLegacyLedger(),
		Economy:         NewEconomyEngine(),
		LegacyRoster:    NewLegacyRoster(),
		Workforce:       NewWorkforceManager(),
		LegacyFields:    NewLegacyFields(),
		Crops:           NewCropSystem(),
		LegacyBuildings: NewLegacyBuildings(),
		Buildings:       NewBuildingManager(),
		LegacySaves:     NewLegacySaveRegistry(),
		Saves:           NewSaveManager(),
	}
}

// LegacyTarget returns the legacy instance, codec and probes for id.
func (w *World) LegacyTarget(id subsystem.ID) (subsystem.Target, bool) {
	switch id {
	case subsystem.Time:
		return subsystem.Target{Instance: w.LegacyClock, Codec: legacyClockCodec(), Probes: []subsystem.Probe{
			{Name: "read_clock", Run: func() error { w.LegacyClock.Clock(); return nil }},
		}}, true
	case subsystem.Economy:
		return subsystem.Target{Instance: w.LegacyLedger, Codec: legacyLedgerCodec(), Probes: []subsystem.Probe{
			{Name: "read_balance", Run: func() error { w.LegacyLedger.Balance(); return nil }},
		}}, true
	case subsystem.Employee:
		return subsystem.Target{Instance: w.LegacyRoster, Codec: legacyRosterCodec(), Probes: []subsystem.Probe{
			{Name: "sum_payroll", Run: func() error { w.LegacyRoster.Payroll(); return nil }},
		}}, true
	case subsystem.Crop:
		return subsystem.Target{Instance: w.LegacyFields, Codec: legacyFieldsCodec()}, true
	case subsystem.Building:
		return subsystem.Target{Instance: w.LegacyBuildings, Codec: legacyBuildingsCodec()}, true
	case subsystem.SaveLoad:
		return subsystem.Target{Instance: w.LegacySaves, Codec: legacySaveCodec()}, true
	}
	return subsystem.Target{}, false
}

// Phase2Target returns the phase-2 instance, codec and probes for id.
func (w *World) Phase2Target(id subsystem.ID) (subsystem.Target, bool) {
	switch id {
	case subsystem.Time:
		return subsystem.Target{Instance: w.Clock, Codec: gameClockCodec(), Probes: []subsystem.Probe{
			{Name: "read_clock", Run: func() error { w.Clock.Clock(); return nil }},
		}}, true
	case subsystem.Economy:
		return subsystem.Target{Instance: w.Economy, Codec: economyEngineCodec(), Probes: []subsystem.Probe{
			{Name: "read_balance", Run: func() error { w.Economy.Balance(); return nil }},
		}}, true
	case subsystem.Employee:
		return subsystem.Target{Instance: w.Workforce, Codec: workforceCodec(), Probes: []subsystem.Probe{
			{Name: "sum_payroll", Run: func() error { w.Workforce.Payroll(); return nil }},
		}}, true
	case subsystem.Crop:
		return subsystem.Target{Instance: w.Crops, Codec: cropSystemCodec()}, true
	case subsystem.Building:
		return subsystem.Target{Instance: w.Buildings, Codec: buildingManagerCodec()}, true
	case subsystem.SaveLoad:
		return subsystem.Target{Instance: w.Saves, Codec: saveManagerCodec()}, true
	}
	return subsystem.Target{}, false
}

// FieldPolicies returns the per-subsystem comparison policies used by data
// validation. Keys address fields inside state layers.
func FieldPolicies() map[subsystem.ID]validation.FieldPolicy {
	return map[subsystem.ID]validation.FieldPolicy{
		subsystem.Time: {
			"data.total_minutes": validation.KindTimeMinutes,
			"config.time_scale":  validation.KindExact,
		},
		subsystem.Economy: {
			"data.cash":       validation.KindMoney,
			"config.tax_rate": validation.KindExact,
		},
		subsystem.Employee: {
			"data.payroll_total": validation.KindMoney,
			"data.headcount":     validation.KindExact,
		},
		subsystem.Crop: {
			"data.plot_count": validation.KindExact,
		},
		subsystem.Building: {
			"data.maintenance_budget": validation.KindMoney,
			"data.building_count":     validation.KindExact,
		},
		subsystem.SaveLoad: {
			"data.slot_count": validation.KindExact,
		},
	}
}

// Converters returns the per-subsystem conversion pairs.
func Converters() map[subsystem.ID]adapter.Converter {
	return map[subsystem.ID]adapter.Converter{
		subsystem.Time:     timeConverter(),
		subsystem.Economy:  economyConverter(),
		subsystem.Employee: employeeConverter(),
		subsystem.Crop:     cropConverter(),
		subsystem.Building: buildingConverter(),
		subsystem.SaveLoad: saveConverter(),
	}
}

// Register wires the world into the migration machinery: both generations
// on the bridge, converters and display projections on the adapter, field
// policies on the validator, and the legacy instances as rollback targets.
func (w *World) Register(b *bridge.Bridge, conv *adapter.Adapter, val *validation.Validator, mgr *rollback.Manager) {
	for id, c := range Converters() {
		conv.Register(id, c)
	}
	conv.RegisterDisplay(subsystem.Economy, economyDisplay)
	for id, policy := range FieldPolicies() {
		val.SetFieldPolicy(id, policy)
	}
	for _, id := range subsystem.All() {
		if legacy, ok := w.LegacyTarget(id); ok {
			b.RegisterLegacy(id, legacy)
			mgr.RegisterTarget(id, legacy)
		}
		if phase2, ok := w.Phase2Target(id); ok {
			b.RegisterNew(id, phase2)
		}
	}
}
