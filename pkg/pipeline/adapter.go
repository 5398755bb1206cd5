package pipeline

import "github.com/me/stepflow/internal/exprs"

// Entry maps one transformer argument to a key inside a source bundle.
// Source names an upstream step or an external input bundle; upstream
// outputs shadow externals when both carry the name.
type Entry struct {
	// Arg is the transformer argument this entry fills.
	Arg string

	// Source is the producing step name or external bundle name.
	Source string

	// Key selects a field of the source bundle.
	Key string

	// Expr is an optional JavaScript expression applied to the extracted
	// value. It sees `self` (the extracted value) and `inputs` (all args
	// resolved so far, in entry order).
	Expr string
}

// Adapter is an ordered list of argument mappings for one step.
type Adapter []Entry

// E is shorthand for a plain extraction entry.
func E(arg, source, key string) Entry {
	return Entry{Arg: arg, Source: source, Key: key}
}

// resolve produces the transformer arguments for step from upstream
// outputs and external bundles. A nil adapter passes the single upstream
// bundle through verbatim; graph validation guarantees that case has
// exactly one upstream and no externals.
func (a Adapter) resolve(step string, needs []string, upstream map[string]Bundle, externals map[string]Bundle) (Bundle, error) {
	if a == nil {
		if len(needs) == 0 {
			return Bundle{}, nil
		}
		return upstream[needs[0]].Copy(), nil
	}

	args := make(Bundle, len(a))
	for _, e := range a {
		src, ok := upstream[e.Source]
		if !ok {
			src, ok = externals[e.Source]
		}
		if !ok {
			return nil, &ResolutionError{
				Step: step, Arg: e.Arg, Source: e.Source, Key: e.Key,
				Reason: "source not found in upstream outputs or external inputs",
			}
		}
		val, ok := src[e.Key]
		if !ok {
			return nil, &ResolutionError{
				Step: step, Arg: e.Arg, Source: e.Source, Key: e.Key,
				Reason: "key not found in source bundle",
			}
		}
		if e.Expr != "" {
			evaluated, err := exprs.Evaluate(e.Expr, val, map[string]any(args))
			if err != nil {
				return nil, &ResolutionError{
					Step: step, Arg: e.Arg, Source: e.Source, Key: e.Key,
					Reason: "expression: " + err.Error(),
				}
			}
			val = evaluated
		}
		args[e.Arg] = val
	}
	return args, nil
}

// sources returns the distinct source names the adapter references, in
// first-appearance order. Used by graph validation.
func (a Adapter) sources() []string {
	seen := make(map[string]bool, len(a))
	var out []string
	for _, e := range a {
		if !seen[e.Source] {
			seen[e.Source] = true
			out = append(out, e.Source)
		}
	}
	return out
}
