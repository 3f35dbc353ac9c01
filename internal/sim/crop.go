package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"agrobridge/internal/adapter"
	"agrobridge/pkg/subsystem"
)

// legacyMaxStage is the last growth stage in the legacy model; phase-2
// tracks growth as a 0..1 fraction instead.
const legacyMaxStage = 4

// LegacyFields is the original crop tracker: numbered plots with discrete
// growth stages.
type LegacyFields struct {
	mu    sync.Mutex
	Plots []LegacyPlot
}

// LegacyPlot is one field plot in the legacy shape.
type LegacyPlot struct {
	Crop  string  `json:"crop"`
	Stage int     `json:"stage"`
	Water float64 `json:"water"`
}

// NewLegacyFields starts empty.
func NewLegacyFields() *LegacyFields { return &LegacyFields{} }

// Plant adds a plot at stage zero.
func (f *LegacyFields) Plant(crop string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Plots = append(f.Plots, LegacyPlot{Crop: crop, Water: 1.0})
}

// Grow advances every watered plot one stage.
func (f *LegacyFields) Grow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Plots {
		if f.Plots[i].Water > 0 && f.Plots[i].Stage < legacyMaxStage {
			f.Plots[i].Stage++
		}
	}
}

type fieldsData struct {
	Plots     []LegacyPlot `json:"plots"`
	PlotCount int          `json:"plot_count"`
}

func legacyFieldsCodec() subsystem.Codec {
	return codecFor(
		func(_ context.Context, f *LegacyFields) (json.RawMessage, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			plots := make([]LegacyPlot, len(f.Plots))
			copy(plots, f.Plots)
			return packLayers(fieldsData{Plots: plots, PlotCount: len(plots)}, nil, nil)
		},
		func(_ context.Context, f *LegacyFields, state json.RawMessage) error {
			l, err := unpackLayers(state)
			if err != nil {
				return err
			}
			if len(l.Data) == 0 {
				return nil
			}
			var data fieldsData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return fmt.Errorf("decode fields data: %w", err)
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			f.Plots = data.Plots
			return nil
		},
	)
}

// CropSystem is the phase-2 rewrite: continuous growth and soil moisture.
type CropSystem struct {
	mu     sync.Mutex
	Fields []Field
}

// Field is one phase-2 crop field.
type Field struct {
	Crop     string  `json:"crop"`
	Growth   float64 `json:"growth"`
	Moisture float64 `json:"moisture"`
}

// NewCropSystem starts empty.
func NewCropSystem() *CropSystem { return &CropSystem{} }

// Plant adds a field at zero growth.
func (s *CropSystem) Plant(crop string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fields = append(s.Fields, Field{Crop: crop, Moisture: 1.0})
}

// Tick advances growth proportionally to moisture.
func (s *CropSystem) Tick(delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Fields {
		g := s.Fields[i].Growth + delta*s.Fields[i].Moisture
		if g > 1 {
			g = 1
		}
		s.Fields[i].Growth = g
	}
}

type cropData struct {
	Fields    []Field `json:"fields"`
	PlotCount int     `json:"plot_count"`
}

func cropSystemCodec() subsystem.Codec {
	return codecFor(
		func(_ context.Context, s *CropSystem) (json.RawMessage, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			fields := make([]Field, len(s.Fields))
			copy(fields, s.Fields)
			return packLayers(cropData{Fields: fields, PlotCount: len(fields)}, nil, nil)
		},
		func(_ context.Context, s *CropSystem, state json.RawMessage) error {
			l, err := unpackLayers(state)
			if err != nil {
				return err
			}
			if len(l.Data) == 0 {
				return nil
			}
			var data cropData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return fmt.Errorf("decode crop data: %w", err)
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			s.Fields = data.Fields
			return nil
		},
	)
}

// cropConverter maps discrete stages onto growth fractions and back.
// Moisture carries over from the legacy water level unchanged.
func cropConverter() adapter.Converter {
	return adapter.Converter{
		ToNew: func(state json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			l, err := unpackLayers(state)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			var data fieldsData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return nil, adapter.Failed("decode fields data: %v", err)
			}
			out := cropData{Fields: make([]Field, 0, len(data.Plots)), PlotCount: len(data.Plots)}
			for _, p := range data.Plots {
				out.Fields = append(out.Fields, Field{
					Crop:     p.Crop,
					Growth:   float64(p.Stage) / legacyMaxStage,
					Moisture: p.Water,
				})
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
			var data cropData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return nil, adapter.Failed("decode crop data: %v", err)
			}
			out := fieldsData{Plots: make([]LegacyPlot, 0, len(data.Fields)), PlotCount: len(data.Fields)}
			for _, f := range data.Fields {
				out.Plots = append(out.Plots, LegacyPlot{
					Crop:  f.Crop,
					Stage: int(f.Growth*legacyMaxStage + 0.5),
					Water: f.Moisture,
				})
			}
			packed, err := repackData(l, out)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			return packed, adapter.Converted()
		},
	}
}
