package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/stepflow/internal/cache"
	"github.com/me/stepflow/pkg/persist"
)

// Action labels what the engine did for one step during a walk.
type Action string

const (
	// ActionComputed means the transformer ran.
	ActionComputed Action = "computed"
	// ActionCacheHit means the run cache supplied the output.
	ActionCacheHit Action = "cache_hit"
	// ActionOutputLoaded means a persisted output record supplied the output.
	ActionOutputLoaded Action = "output_loaded"
	// ActionModelLoaded means a persisted model record was restored into
	// the transformer before transforming.
	ActionModelLoaded Action = "model_loaded"
)

// Recorder receives run and step evaluation events, typically for a run
// journal. Recorder failures are logged and do not abort the walk.
type Recorder interface {
	RunStarted(ctx context.Context, runID, mode, target string) error
	RunFinished(ctx context.Context, runID string, runErr error) error
	StepEvent(ctx context.Context, runID, step string, action Action, elapsed time.Duration) error
}

// Run identifies one logical pipeline execution. Cache records are scoped
// to a run; independent runs over different data must use distinct Run
// values or clear the cache in between.
type Run struct {
	ID string
}

// Engine evaluates a step graph. The walk is single-threaded, synchronous,
// and depth-first: a step's upstreams are fully evaluated before its own
// transformer runs, siblings in declared order. One Engine must not serve
// concurrent top-level calls against the same persistence store.
type Engine struct {
	graph  *Graph
	store  persist.Store
	cache  *cache.Store[Bundle]
	rec    Recorder
	logger *slog.Logger

	cacheSize int
}

// Option configures optional Engine dependencies.
type Option func(*Engine)

// WithStore sets the persistence store backing the steps' persist/load
// policies. Without a store those policies are inert.
func WithStore(s persist.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithRecorder sets the run journal recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.rec = r }
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCacheCapacity bounds the number of cached outputs per run.
func WithCacheCapacity(n int) Option {
	return func(e *Engine) { e.cacheSize = n }
}

// NewEngine validates the graph and returns an engine for it. Graph
// problems (duplicate names, dangling references, cycles) surface here,
// before any transformer is invoked.
func NewEngine(g *Graph, opts ...Option) (*Engine, error) {
	e := &Engine{graph: g}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "engine")
	e.cache = cache.New[Bundle](e.cacheSize)

	if err := g.Build(); err != nil {
		return nil, err
	}
	return e, nil
}

// NewRun creates a fresh run handle with a unique ID.
func (e *Engine) NewRun() *Run {
	return &Run{ID: uuid.New().String()}
}

// FitTransform evaluates target and everything upstream of it, fitting
// transformers that are not already fitted or loaded from a persisted
// model record. Returns target's output bundle.
func (e *Engine) FitTransform(ctx context.Context, run *Run, target string, externals map[string]Bundle) (Bundle, error) {
	return e.walk(ctx, run, target, externals, true)
}

// Transform evaluates target and everything upstream of it without ever
// fitting. A step with no fitted or persisted state fails with a
// TransformerError.
func (e *Engine) Transform(ctx context.Context, run *Run, target string, externals map[string]Bundle) (Bundle, error) {
	return e.walk(ctx, run, target, externals, false)
}

// ClearCache drops cached outputs for a run: all of them, or only the
// named steps. The cache never expires on its own, so drivers call this
// between independent runs over different data.
func (e *Engine) ClearCache(run *Run, steps ...string) {
	e.cache.Clear(run.ID, steps...)
}

func (e *Engine) walk(ctx context.Context, run *Run, target string, externals map[string]Bundle, fit bool) (out Bundle, err error) {
	step := e.graph.Step(target)
	if step == nil {
		return nil, graphErrorf("unknown step %q", target)
	}
	if !e.graph.built {
		if err := e.graph.Build(); err != nil {
			return nil, err
		}
	}

	mode := "transform"
	if fit {
		mode = "fit_transform"
	}
	e.recordRunStarted(ctx, run.ID, mode, target)
	defer func() { e.recordRunFinished(ctx, run.ID, err) }()

	return e.evaluate(ctx, run, step, externals, fit)
}

// evaluate runs the recursive depth-first evaluation for one step.
//
// Short-circuit order: run cache, then persisted output, then the real
// walk. Both short-circuits skip upstream evaluation entirely.
func (e *Engine) evaluate(ctx context.Context, run *Run, step *Step, externals map[string]Bundle, fit bool) (Bundle, error) {
	if step.Policy.CacheOutput {
		if out, ok := e.cache.Get(run.ID, step.Name); ok {
			e.logger.Debug("cache hit", "run", run.ID, "step", step.Name)
			e.recordStep(ctx, run.ID, step.Name, ActionCacheHit, 0)
			return out.Copy(), nil
		}
	}

	if step.Policy.LoadPersistedOutput && e.store != nil {
		ok, err := e.store.Exists(ctx, step.Name, persist.KindOutput)
		if err != nil {
			return nil, err
		}
		if ok {
			out, err := e.loadOutput(ctx, step.Name)
			if err != nil {
				return nil, err
			}
			e.logger.Debug("persisted output loaded", "step", step.Name)
			e.recordStep(ctx, run.ID, step.Name, ActionOutputLoaded, 0)
			return out, nil
		}
	}

	upstream := make(map[string]Bundle, len(step.Needs))
	for _, dep := range step.Needs {
		out, err := e.evaluate(ctx, run, e.graph.Step(dep), externals, fit)
		if err != nil {
			return nil, err
		}
		upstream[dep] = out
	}

	args, err := step.Adapter.resolve(step.Name, step.Needs, upstream, externals)
	if err != nil {
		return nil, err
	}

	if err := e.ensureFitted(ctx, run, step, args, fit); err != nil {
		return nil, err
	}

	started := time.Now()
	out, err := step.Transformer.Transform(ctx, args)
	if err != nil {
		return nil, &TransformerError{Step: step.Name, Op: "transform", Err: err}
	}
	elapsed := time.Since(started)
	e.logger.Debug("transformed", "step", step.Name, "elapsed", elapsed)

	if step.Policy.PersistOutput && e.store != nil {
		if err := e.persistOutput(ctx, step.Name, out); err != nil {
			return nil, err
		}
	}
	if step.Policy.CacheOutput {
		e.cache.Put(run.ID, step.Name, out.Copy())
	}

	e.recordStep(ctx, run.ID, step.Name, ActionComputed, elapsed)
	return out, nil
}

// ensureFitted brings the step's transformer into a fitted state: reuse
// in-process state, restore a persisted model, or (fit mode only) fit.
func (e *Engine) ensureFitted(ctx context.Context, run *Run, step *Step, args Bundle, fit bool) error {
	if step.fitted {
		return nil
	}

	if e.store != nil {
		ok, err := e.store.Exists(ctx, step.Name, persist.KindModel)
		if err != nil {
			return err
		}
		if ok {
			data, err := e.store.Get(ctx, step.Name, persist.KindModel)
			if err != nil {
				return err
			}
			if err := step.Transformer.Load(bytes.NewReader(data)); err != nil {
				return &TransformerError{Step: step.Name, Op: "load", Err: err}
			}
			step.fitted = true
			e.logger.Debug("model loaded", "step", step.Name)
			e.recordStep(ctx, run.ID, step.Name, ActionModelLoaded, 0)
			return nil
		}
	}

	if !fit {
		return &TransformerError{Step: step.Name, Op: "transform", Err: errNotFitted}
	}

	started := time.Now()
	if err := step.Transformer.Fit(ctx, args); err != nil {
		return &TransformerError{Step: step.Name, Op: "fit", Err: err}
	}
	step.fitted = true
	e.logger.Debug("fitted", "step", step.Name, "elapsed", time.Since(started))

	if step.Policy.PersistModel && e.store != nil {
		var buf bytes.Buffer
		if err := step.Transformer.Save(&buf); err != nil {
			return &TransformerError{Step: step.Name, Op: "save", Err: err}
		}
		if err := e.store.Put(ctx, step.Name, persist.KindModel, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) persistOutput(ctx context.Context, step string, out Bundle) error {
	data, err := json.Marshal(out)
	if err != nil {
		return &persist.StoreError{Op: "encode", Step: step, Kind: persist.KindOutput, Err: err}
	}
	return e.store.Put(ctx, step, persist.KindOutput, data)
}

func (e *Engine) loadOutput(ctx context.Context, step string) (Bundle, error) {
	data, err := e.store.Get(ctx, step, persist.KindOutput)
	if err != nil {
		return nil, err
	}
	var out Bundle
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &persist.StoreError{Op: "decode", Step: step, Kind: persist.KindOutput, Err: err}
	}
	return out, nil
}

func (e *Engine) recordRunStarted(ctx context.Context, runID, mode, target string) {
	if e.rec == nil {
		return
	}
	if err := e.rec.RunStarted(ctx, runID, mode, target); err != nil {
		e.logger.Warn("recorder failed", "event", "run_started", "run", runID, "error", err)
	}
}

func (e *Engine) recordRunFinished(ctx context.Context, runID string, runErr error) {
	if e.rec == nil {
		return
	}
	if err := e.rec.RunFinished(ctx, runID, runErr); err != nil {
		e.logger.Warn("recorder failed", "event", "run_finished", "run", runID, "error", err)
	}
}

func (e *Engine) recordStep(ctx context.Context, runID, step string, action Action, elapsed time.Duration) {
	if e.rec == nil {
		return
	}
	if err := e.rec.StepEvent(ctx, runID, step, action, elapsed); err != nil {
		e.logger.Warn("recorder failed", "event", "step", "run", runID, "step", step, "error", err)
	}
}
