// Package builtin provides the generic transformers shipped with the
// stepflow CLI: passthrough, field selection, and an averaging ensembler.
// Model-specific transformers (vectorizers, classifiers, ...) are external
// collaborators registered by the embedding application.
package builtin

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/me/stepflow/pkg/pipeline"
)

// Register adds all builtin transformer factories to the registry.
func Register(reg *pipeline.Registry) {
	reg.Register("passthrough", func(params map[string]any) (pipeline.Transformer, error) {
		return &Passthrough{}, nil
	})
	reg.Register("select", NewSelect)
	reg.Register("average", func(params map[string]any) (pipeline.Transformer, error) {
		return &Average{}, nil
	})
}

// Passthrough returns its arguments unchanged. Useful as a junction node
// when several consumers should share one upstream bundle through the
// cache.
type Passthrough struct{}

func (t *Passthrough) Fit(ctx context.Context, args pipeline.Bundle) error { return nil }

func (t *Passthrough) Transform(ctx context.Context, args pipeline.Bundle) (pipeline.Bundle, error) {
	return args.Copy(), nil
}

func (t *Passthrough) Save(w io.Writer) error { return nil }
func (t *Passthrough) Load(r io.Reader) error { return nil }

// Select renames and projects bundle fields: each output key takes the
// value of the configured input argument.
type Select struct {
	// Fields maps output key to input argument name.
	Fields map[string]string
}

// NewSelect builds a Select from manifest params:
//
//	with:
//	  fields:
//	    X: tokens
//	    y: label
func NewSelect(params map[string]any) (pipeline.Transformer, error) {
	raw, ok := params["fields"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("select: params must contain a fields mapping")
	}
	fields := make(map[string]string, len(raw))
	for out, in := range raw {
		s, ok := in.(string)
		if !ok {
			return nil, fmt.Errorf("select: field %q must map to an argument name", out)
		}
		fields[out] = s
	}
	return &Select{Fields: fields}, nil
}

func (t *Select) Fit(ctx context.Context, args pipeline.Bundle) error { return nil }

func (t *Select) Transform(ctx context.Context, args pipeline.Bundle) (pipeline.Bundle, error) {
	out := make(pipeline.Bundle, len(t.Fields))
	for key, arg := range t.Fields {
		v, ok := args[arg]
		if !ok {
			return nil, fmt.Errorf("select: argument %q not supplied", arg)
		}
		out[key] = v
	}
	return out, nil
}

func (t *Select) Save(w io.Writer) error { return nil }
func (t *Select) Load(r io.Reader) error { return nil }

// Average is an ensembling transformer: it averages its argument vectors
// elementwise into a single "y" output. Arguments are combined in name
// order so the result is deterministic.
type Average struct{}

func (t *Average) Fit(ctx context.Context, args pipeline.Bundle) error { return nil }

func (t *Average) Transform(ctx context.Context, args pipeline.Bundle) (pipeline.Bundle, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("average: no arguments")
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	var sum []float64
	for _, name := range names {
		vec, err := toFloats(args[name])
		if err != nil {
			return nil, fmt.Errorf("average: argument %q: %w", name, err)
		}
		if sum == nil {
			sum = make([]float64, len(vec))
		}
		if len(vec) != len(sum) {
			return nil, fmt.Errorf("average: argument %q has length %d, want %d", name, len(vec), len(sum))
		}
		for i, v := range vec {
			sum[i] += v
		}
	}

	n := float64(len(names))
	for i := range sum {
		sum[i] /= n
	}
	return pipeline.Bundle{"y": sum}, nil
}

func (t *Average) Save(w io.Writer) error { return nil }
func (t *Average) Load(r io.Reader) error { return nil }

// toFloats accepts the numeric shapes that survive YAML and JSON round
// trips: []float64, []any of numbers, or a single number.
func toFloats(v any) ([]float64, error) {
	switch val := v.(type) {
	case []float64:
		return val, nil
	case []any:
		out := make([]float64, len(val))
		for i, item := range val {
			f, err := toFloat(item)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	default:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return []float64{f}, nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}
