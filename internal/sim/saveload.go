package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"agrobridge/internal/adapter"
	"agrobridge/pkg/subsystem"
)

// saveFormatVersion tags phase-2 save slots; legacy slots predate
// versioning and convert as version 1.
const saveFormatVersion = 2

// LegacySaveRegistry is the original save bookkeeping: slot name to the
// RFC 3339 timestamp of the last write.
type LegacySaveRegistry struct {
	mu    sync.Mutex
	Slots map[string]string
}

// NewLegacySaveRegistry starts empty.
func NewLegacySaveRegistry() *LegacySaveRegistry {
	return &LegacySaveRegistry{Slots: make(map[string]string)}
}

// Record notes a save into the named slot.
func (r *LegacySaveRegistry) Record(slot string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Slots[slot] = at.UTC().Format(time.RFC3339)
}

type saveRegistryData struct {
	Slots     map[string]string `json:"slots"`
	SlotCount int               `json:"slot_count"`
}

func legacySaveCodec() subsystem.Codec {
	return codecFor(
		func(_ context.Context, r *LegacySaveRegistry) (json.RawMessage, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			slots := make(map[string]string, len(r.Slots))
			for k, v := range r.Slots {
				slots[k] = v
			}
			return packLayers(saveRegistryData{Slots: slots, SlotCount: len(slots)}, nil, nil)
		},
		func(_ context.Context, r *LegacySaveRegistry, state json.RawMessage) error {
			l, err := unpackLayers(state)
			if err != nil {
				return err
			}
			if len(l.Data) == 0 {
				return nil
			}
			var data saveRegistryData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return fmt.Errorf("decode save registry data: %w", err)
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			r.Slots = data.Slots
			if r.Slots == nil {
				r.Slots = make(map[string]string)
			}
			return nil
		},
	)
}

// SaveManager is the phase-2 save bookkeeping: ordered, versioned slots.
type SaveManager struct {
	mu    sync.Mutex
	Slots []SaveSlot
}

// SaveSlot is one phase-2 save record.
type SaveSlot struct {
	Name    string    `json:"name"`
	SavedAt time.Time `json:"saved_at"`
	Version int       `json:"version"`
}

// NewSaveManager starts empty.
func NewSaveManager() *SaveManager { return &SaveManager{} }

// Record notes a save into the named slot, replacing an existing one.
func (m *SaveManager) Record(slot string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Slots {
		if m.Slots[i].Name == slot {
			m.Slots[i].SavedAt = at.UTC()
			m.Slots[i].Version = saveFormatVersion
			return
		}
	}
	m.Slots = append(m.Slots, SaveSlot{Name: slot, SavedAt: at.UTC(), Version: saveFormatVersion})
}

type saveManagerData struct {
	Slots     []SaveSlot `json:"slots"`
	SlotCount int        `json:"slot_count"`
}

func saveManagerCodec() subsystem.Codec {
	return codecFor(
		func(_ context.Context, m *SaveManager) (json.RawMessage, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			slots := make([]SaveSlot, len(m.Slots))
			copy(slots, m.Slots)
			return packLayers(saveManagerData{Slots: slots, SlotCount: len(slots)}, nil, nil)
		},
		func(_ context.Context, m *SaveManager, state json.RawMessage) error {
			l, err := unpackLayers(state)
			if err != nil {
				return err
			}
			if len(l.Data) == 0 {
				return nil
			}
			var data saveManagerData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return fmt.Errorf("decode save manager data: %w", err)
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			m.Slots = data.Slots
			return nil
		},
	)
}

// saveConverter upgrades legacy slots to versioned records. Unparseable
// legacy timestamps convert with a zero time and a warning instead of
// failing the whole registry.
func saveConverter() adapter.Converter {
	return adapter.Converter{
		ToNew: func(state json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			l, err := unpackLayers(state)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			var data saveRegistryData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return nil, adapter.Failed("decode save registry data: %v", err)
			}
			var warns []string
			out := saveManagerData{Slots: make([]SaveSlot, 0, len(data.Slots)), SlotCount: len(data.Slots)}
			for name, stamp := range data.Slots {
				at, err := time.Parse(time.RFC3339, stamp)
				if err != nil {
					warns = append(warns, fmt.Sprintf("slot %s has unparseable timestamp %q", name, stamp))
				}
				out.Slots = append(out.Slots, SaveSlot{Name: name, SavedAt: at, Version: 1})
			}
			sortSlots(out.Slots)
			packed, err := repackData(l, out)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			return packed, adapter.Converted(warns...)
		},
		ToLegacy: func(state json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			l, err := unpackLayers(state)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			var data saveManagerData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return nil, adapter.Failed("decode save manager data: %v", err)
			}
			out := saveRegistryData{Slots: make(map[string]string, len(data.Slots)), SlotCount: len(data.Slots)}
			for _, s := range data.Slots {
				out.Slots[s.Name] = s.SavedAt.UTC().Format(time.RFC3339)
			}
			packed, err := repackData(l, out)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			return packed, adapter.Converted()
		},
	}
}

func sortSlots(slots []SaveSlot) {
	sort.Slice(slots, func(i, j int) bool { return slots[i].Name < slots[j].Name })
}
