package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"agrobridge/internal/adapter"
	"agrobridge/pkg/subsystem"
)

// DefaultBaseWage is the monthly wage assigned during conversion when a
// legacy worker record carries no wage.
const DefaultBaseWage = 2400.0

// LegacyRoster is the original workforce list keyed by name.
type LegacyRoster struct {
	mu      sync.Mutex
	Workers []LegacyWorker
}

// LegacyWorker is one roster line in the legacy shape. Wage zero means the
// record predates wages being tracked.
type LegacyWorker struct {
	Name  string  `json:"name"`
	Wage  float64 `json:"wage"`
	Skill int     `json:"skill"`
}

// NewLegacyRoster starts empty.
func NewLegacyRoster() *LegacyRoster { return &LegacyRoster{} }

// Hire appends a worker.
func (r *LegacyRoster) Hire(w LegacyWorker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Workers = append(r.Workers, w)
}

// Payroll sums roster wages.
func (r *LegacyRoster) Payroll() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0.0
	for _, w := range r.Workers {
		total += w.Wage
	}
	return total
}

type rosterData struct {
	Workers      []LegacyWorker `json:"workers"`
	Headcount    int            `json:"headcount"`
	PayrollTotal float64        `json:"payroll_total"`
}

func legacyRosterCodec() subsystem.Codec {
	return codecFor(
		func(_ context.Context, r *LegacyRoster) (json.RawMessage, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			workers := make([]LegacyWorker, len(r.Workers))
			copy(workers, r.Workers)
			total := 0.0
			for _, w := range workers {
				total += w.Wage
			}
			return packLayers(rosterData{Workers: workers, Headcount: len(workers), PayrollTotal: total}, nil, nil)
		},
		func(_ context.Context, r *LegacyRoster, state json.RawMessage) error {
			l, err := unpackLayers(state)
			if err != nil {
				return err
			}
			if len(l.Data) == 0 {
				return nil
			}
			var data rosterData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return fmt.Errorf("decode roster data: %w", err)
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			r.Workers = data.Workers
			return nil
		},
	)
}

// WorkforceManager is the phase-2 workforce: identified employees with
// morale tracking.
type WorkforceManager struct {
	mu    sync.Mutex
	Staff []Employee
}

// Employee is one phase-2 staff record.
type Employee struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Wage   float64 `json:"wage"`
	Skill  float64 `json:"skill"`
	Morale float64 `json:"morale"`
}

// NewWorkforceManager starts empty.
func NewWorkforceManager() *WorkforceManager { return &WorkforceManager{} }

// Hire appends a staff record, minting an id when absent.
func (m *WorkforceManager) Hire(e Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.Staff = append(m.Staff, e)
}

// Payroll sums staff wages.
func (m *WorkforceManager) Payroll() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, e := range m.Staff {
		total += e.Wage
	}
	return total
}

type workforceData struct {
	Staff        []Employee `json:"staff"`
	Headcount    int        `json:"headcount"`
	PayrollTotal float64    `json:"payroll_total"`
}

func workforceCodec() subsystem.Codec {
	return codecFor(
		func(_ context.Context, m *WorkforceManager) (json.RawMessage, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			staff := make([]Employee, len(m.Staff))
			copy(staff, m.Staff)
			total := 0.0
			for _, e := range staff {
				total += e.Wage
			}
			return packLayers(workforceData{Staff: staff, Headcount: len(staff), PayrollTotal: total}, nil, nil)
		},
		func(_ context.Context, m *WorkforceManager, state json.RawMessage) error {
			l, err := unpackLayers(state)
			if err != nil {
				return err
			}
			if len(l.Data) == 0 {
				return nil
			}
			var data workforceData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return fmt.Errorf("decode workforce data: %w", err)
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			m.Staff = data.Staff
			return nil
		},
	)
}

// employeeConverter mints ids for legacy workers and fills the gaps the
// legacy records never tracked: missing wages become DefaultBaseWage,
// morale starts at full.
func employeeConverter() adapter.Converter {
	return adapter.Converter{
		ToNew: func(state json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			l, err := unpackLayers(state)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			var data rosterData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return nil, adapter.Failed("decode roster data: %v", err)
			}
			var warns []string
			out := workforceData{Staff: make([]Employee, 0, len(data.Workers))}
			for _, w := range data.Workers {
				wage := w.Wage
				if wage == 0 {
					wage = DefaultBaseWage
					warns = append(warns, fmt.Sprintf("worker %s had no wage, assigned base wage %.0f", w.Name, DefaultBaseWage))
				}
				out.Staff = append(out.Staff, Employee{
					ID:     uuid.NewString(),
					Name:   w.Name,
					Wage:   wage,
					Skill:  float64(w.Skill),
					Morale: 1.0,
				})
				out.PayrollTotal += wage
			}
			out.Headcount = len(out.Staff)
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
			var data workforceData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return nil, adapter.Failed("decode workforce data: %v", err)
			}
			var warns []string
			out := rosterData{Workers: make([]LegacyWorker, 0, len(data.Staff))}
			for _, e := range data.Staff {
				out.Workers = append(out.Workers, LegacyWorker{Name: e.Name, Wage: e.Wage, Skill: int(e.Skill)})
				out.PayrollTotal += e.Wage
			}
			if len(data.Staff) > 0 {
				warns = append(warns, "employee ids and morale dropped, legacy roster keys by name")
			}
			out.Headcount = len(out.Workers)
			packed, err := repackData(l, out)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			return packed, adapter.Converted(warns...)
		},
	}
}
