package pipeline

import (
	"errors"
	"fmt"
)

// errNotFitted is the cause inside a TransformerError when transform mode
// reaches a step with no fitted, loaded, or persisted state.
var errNotFitted = errors.New("transformer has never been fitted and no persisted model exists")

// GraphError reports an invalid step graph: a duplicate or malformed step
// name, a reference to an unknown step, a cycle. Detected at construction,
// before any transformer is invoked.
type GraphError struct {
	Message string
}

func (e *GraphError) Error() string {
	return "graph: " + e.Message
}

func graphErrorf(format string, args ...any) *GraphError {
	return &GraphError{Message: fmt.Sprintf(format, args...)}
}

// ResolutionError reports that an adapter could not resolve a required
// transformer argument: the named source is absent from both upstream
// outputs and external bundles, or the source bundle lacks the requested
// key. Never retried.
type ResolutionError struct {
	Step   string // step whose adapter failed
	Arg    string // transformer argument being resolved
	Source string // source bundle name
	Key    string // key within the source bundle
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("step %s: resolve arg %q from %s/%s: %s",
		e.Step, e.Arg, e.Source, e.Key, e.Reason)
}

// TransformerError wraps a failure inside a transformer's fit, transform,
// save, or load, attaching the originating step name for diagnosis. The
// engine performs no retries; the error propagates to the top-level caller.
type TransformerError struct {
	Step string
	Op   string // "fit", "transform", "save", "load"
	Err  error
}

func (e *TransformerError) Error() string {
	return fmt.Sprintf("step %s: %s: %v", e.Step, e.Op, e.Err)
}

func (e *TransformerError) Unwrap() error {
	return e.Err
}
