// Package pipeline implements a DAG of named computation steps.
//
// Each step wraps one Transformer and declares which upstream steps and
// caller-supplied input bundles feed it. An Engine walks the graph
// depth-first, fitting and transforming along the way, with per-step
// policies for output persistence, persisted-output reuse, and per-run
// output caching.
package pipeline

import (
	"context"
	"io"
)

// Bundle is a named collection of values produced by one Transform call
// or supplied by the caller as raw input. Keys are producer-defined and
// consumed by name through adapters.
type Bundle map[string]any

// Transformer is the algorithm behind a step. The engine never inspects
// a transformer beyond these four operations.
//
// Fit trains internal state from named arguments. Transform produces an
// output bundle from named arguments. Save and Load serialize and restore
// the fitted state; the destination is chosen by the persistence store,
// not the transformer.
type Transformer interface {
	Fit(ctx context.Context, args Bundle) error
	Transform(ctx context.Context, args Bundle) (Bundle, error)
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// Copy returns a shallow copy of the bundle. Engine internals copy before
// handing a cached bundle to a second consumer so key-level mutation by
// one consumer does not leak into another.
func (b Bundle) Copy() Bundle {
	if b == nil {
		return nil
	}
	out := make(Bundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}
