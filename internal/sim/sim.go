// Package sim holds the farm simulation subsystems in both generations:
// the legacy implementations that ship today and the phase-2 rewrites they
// migrate to. Every subsystem captures state as a layered JSON object with
// data, config and runtime sections so restores can target a single layer.
package sim

import (
	"context"
	"encoding/json"
	"fmt"

	"agrobridge/pkg/subsystem"
)

// codecFor builds a typed codec over the untyped instance plumbing. A
// wrongly typed instance is a wiring bug and surfaces as an error, not a
// panic.
func codecFor[T any](
	extract func(ctx context.Context, t *T) (json.RawMessage, error),
	restore func(ctx context.Context, t *T, state json.RawMessage) error,
) subsystem.Codec {
	return subsystem.Codec{
		Extractor: subsystem.ExtractorFunc(func(ctx context.Context, instance any) (json.RawMessage, error) {
			t, ok := instance.(*T)
			if !ok {
				return nil, fmt.Errorf("instance is %T, not %T", instance, new(T))
			}
			return extract(ctx, t)
		}),
		Restorer: subsystem.RestorerFunc(func(ctx context.Context, instance any, state json.RawMessage) error {
			t, ok := instance.(*T)
			if !ok {
				return fmt.Errorf("instance is %T, not %T", instance, new(T))
			}
			return restore(ctx, t, state)
		}),
	}
}

// layers is the wire shape of a state capture. Absent layers stay nil so a
// partial restore touches only what the payload carries.
type layers struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
	Runtime json.RawMessage `json:"runtime,omitempty"`
}

func packLayers(data, config, runtime any) (json.RawMessage, error) {
	var l layers
	var err error
	if l.Data, err = json.Marshal(data); err != nil {
		return nil, fmt.Errorf("marshal data layer: %w", err)
	}
	if config != nil {
		if l.Config, err = json.Marshal(config); err != nil {
			return nil, fmt.Errorf("marshal config layer: %w", err)
		}
	}
	if runtime != nil {
		if l.Runtime, err = json.Marshal(runtime); err != nil {
			return nil, fmt.Errorf("marshal runtime layer: %w", err)
		}
	}
	return json.Marshal(l)
}

func unpackLayers(state json.RawMessage) (layers, error) {
	var l layers
	if err := json.Unmarshal(state, &l); err != nil {
		return layers{}, fmt.Errorf("decode state layers: %w", err)
	}
	return l, nil
}

// repackData swaps the data layer of an existing capture, keeping the
// config and runtime layers as captured. Conversions rewrite domain data;
// tuning and transient flags cross generations untouched.
func repackData(l layers, data any) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data layer: %w", err)
	}
	l.Data = raw
	return json.Marshal(l)
}
