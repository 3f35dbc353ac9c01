package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"agrobridge/internal/adapter"
	"agrobridge/pkg/subsystem"
)

// LegacyBuildings tracks farm structures with a percent condition.
type LegacyBuildings struct {
	mu                sync.Mutex
	Buildings         []LegacyBuilding
	MaintenanceBudget float64
}

// LegacyBuilding is one structure in the legacy shape. Condition runs
// 0..100.
type LegacyBuilding struct {
	Type      string  `json:"type"`
	Level     int     `json:"level"`
	Condition float64 `json:"condition"`
}

// NewLegacyBuildings starts with an empty yard.
func NewLegacyBuildings() *LegacyBuildings {
	return &LegacyBuildings{MaintenanceBudget: 500}
}

// Build appends a structure at full condition.
func (b *LegacyBuildings) Build(kind string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Buildings = append(b.Buildings, LegacyBuilding{Type: kind, Level: 1, Condition: 100})
}

type buildingsData struct {
	Buildings         []LegacyBuilding `json:"buildings"`
	BuildingCount     int              `json:"building_count"`
	MaintenanceBudget float64          `json:"maintenance_budget"`
}

func legacyBuildingsCodec() subsystem.Codec {
	return codecFor(
		func(_ context.Context, b *LegacyBuildings) (json.RawMessage, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			bs := make([]LegacyBuilding, len(b.Buildings))
			copy(bs, b.Buildings)
			return packLayers(buildingsData{Buildings: bs, BuildingCount: len(bs), MaintenanceBudget: b.MaintenanceBudget}, nil, nil)
		},
		func(_ context.Context, b *LegacyBuildings, state json.RawMessage) error {
			l, err := unpackLayers(state)
			if err != nil {
				return err
			}
			if len(l.Data) == 0 {
				return nil
			}
			var data buildingsData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return fmt.Errorf("decode buildings data: %w", err)
			}
			b.mu.Lock()
			defer b.mu.Unlock()
			b.Buildings = data.Buildings
			b.MaintenanceBudget = data.MaintenanceBudget
			return nil
		},
	)
}

// BuildingManager is the phase-2 rewrite: structures with a 0..1 integrity
// that decays and is repaired against the maintenance budget.
type BuildingManager struct {
	mu                sync.Mutex
	Structures        []Structure
	MaintenanceBudget float64
}

// Structure is one phase-2 building.
type Structure struct {
	Type      string  `json:"type"`
	Level     int     `json:"level"`
	Integrity float64 `json:"integrity"`
}

// NewBuildingManager starts with an empty yard.
func NewBuildingManager() *BuildingManager {
	return &BuildingManager{MaintenanceBudget: 500}
}

// Build appends a structure at full integrity.
func (m *BuildingManager) Build(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Structures = append(m.Structures, Structure{Type: kind, Level: 1, Integrity: 1.0})
}

type structuresData struct {
	Structures        []Structure `json:"structures"`
	BuildingCount     int         `json:"building_count"`
	MaintenanceBudget float64     `json:"maintenance_budget"`
}

func buildingManagerCodec() subsystem.Codec {
	return codecFor(
		func(_ context.Context, m *BuildingManager) (json.RawMessage, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			ss := make([]Structure, len(m.Structures))
			copy(ss, m.Structures)
			return packLayers(structuresData{Structures: ss, BuildingCount: len(ss), MaintenanceBudget: m.MaintenanceBudget}, nil, nil)
		},
		func(_ context.Context, m *BuildingManager, state json.RawMessage) error {
			l, err := unpackLayers(state)
			if err != nil {
				return err
			}
			if len(l.Data) == 0 {
				return nil
			}
			var data structuresData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return fmt.Errorf("decode structures data: %w", err)
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			m.Structures = data.Structures
			m.MaintenanceBudget = data.MaintenanceBudget
			return nil
		},
	)
}

// buildingConverter rescales condition percent to the integrity fraction
// and back.
func buildingConverter() adapter.Converter {
	return adapter.Converter{
		ToNew: func(state json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			l, err := unpackLayers(state)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			var data buildingsData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return nil, adapter.Failed("decode buildings data: %v", err)
			}
			out := structuresData{
				Structures:        make([]Structure, 0, len(data.Buildings)),
				BuildingCount:     len(data.Buildings),
				MaintenanceBudget: data.MaintenanceBudget,
			}
			for _, b := range data.Buildings {
				out.Structures = append(out.Structures, Structure{Type: b.Type, Level: b.Level, Integrity: b.Condition / 100})
			}
			packed, err := repackData(l, out)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			return packed, adapter.Converted()
		},
		ToLegacy: func(state json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			l, err := unpackLayers(state)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			var data structuresData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return nil, adapter.Failed("decode structures data: %v", err)
			}
			out := buildingsData{
				Buildings:         make([]LegacyBuilding, 0, len(data.Structures)),
				BuildingCount:     len(data.Structures),
				MaintenanceBudget: data.MaintenanceBudget,
			}
			for _, s := range data.Structures {
				out.Buildings = append(out.Buildings, LegacyBuilding{Type: s.Type, Level: s.Level, Condition: s.Integrity * 100})
			}
			packed, err := repackData(l, out)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			return packed, adapter.Converted()
		},
	}
}
