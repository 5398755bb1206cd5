package pipeline

// Policy controls persistence and caching behavior for one step.
// The zero value disables everything: the step is re-evaluated on every
// walk that reaches it and leaves nothing behind.
type Policy struct {
	// PersistModel serializes the fitted transformer to the persistence
	// store after a successful fit.
	PersistModel bool

	// PersistOutput writes the step's output bundle to the persistence
	// store after every transform.
	PersistOutput bool

	// LoadPersistedOutput short-circuits evaluation with a previously
	// persisted output bundle when one exists, skipping the transformer
	// and all upstream evaluation.
	//
	// Persisted bundles carry no fingerprint of the data they were
	// computed from. If the caller supplies different external inputs
	// without clearing the record first, the stale bundle is returned
	// unchanged. Clearing between datasets is the caller's job.
	LoadPersistedOutput bool

	// CacheOutput stores the output bundle in the per-run cache so that
	// multiple downstream consumers within one walk evaluate this step
	// at most once. Without it a step with N consumers runs N times.
	CacheOutput bool
}

// Step is a named node in the pipeline graph. Construct once, register
// with a Graph, and treat as immutable; the engine owns the transformer's
// fitted state after that.
type Step struct {
	// Name identifies the step within its graph. Must be unique and must
	// not contain path separators (it doubles as a persistence key).
	Name string

	// Transformer is the algorithm this step wraps.
	Transformer Transformer

	// Needs lists upstream step names in declared order. Evaluation of
	// siblings follows this order.
	Needs []string

	// Externals lists the caller-supplied input bundle names this step's
	// adapter may reference.
	Externals []string

	// Adapter maps transformer argument names to sources. Nil is allowed
	// for a step with exactly one upstream and no externals (the
	// upstream's bundle passes through verbatim) and for an
	// argument-less source step.
	Adapter Adapter

	Policy Policy

	// fitted tracks whether the transformer holds usable state, either
	// from a Fit call or a loaded model record. Engine-owned.
	fitted bool
}
