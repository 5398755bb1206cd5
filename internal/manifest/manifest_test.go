package manifest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/me/stepflow/internal/builtin"
	"github.com/me/stepflow/pkg/pipeline"
)

const sampleManifest = `
name: email-classifier
experiment_dir: ./exp
target: ensemble
steps:
  - name: cleanup
    uses: passthrough
    externals: [input]
    adapter:
      tokens: input/tokens
    policy:
      cache_output: true
  - name: pick
    uses: select
    needs: [cleanup]
    externals: [input]
    with:
      fields:
        X: tokens
        y: label
    adapter:
      tokens: cleanup/tokens
      label:
        source: input
        key: label
  - name: ensemble
    uses: average
    needs: [pick]
    adapter:
      a: pick/X
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if m.Name != "email-classifier" || m.Target != "ensemble" {
		t.Errorf("header = %q/%q, want email-classifier/ensemble", m.Name, m.Target)
	}
	if m.ExperimentDir != "./exp" {
		t.Errorf("ExperimentDir = %q", m.ExperimentDir)
	}
	if len(m.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(m.Steps))
	}

	pick := m.Steps[1]
	if pick.Uses != "select" || len(pick.Needs) != 1 || pick.Needs[0] != "cleanup" {
		t.Errorf("pick step = %+v", pick)
	}
	if !m.Steps[0].Policy.CacheOutput {
		t.Error("cleanup cache_output not parsed")
	}
}

func TestParse_AdapterKeepsDeclaredOrder(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	adapter := m.Steps[1].Adapter
	if len(adapter) != 2 {
		t.Fatalf("got %d adapter entries, want 2", len(adapter))
	}
	// Shorthand form.
	if adapter[0].Arg != "tokens" || adapter[0].Source != "cleanup" || adapter[0].Key != "tokens" {
		t.Errorf("entry 0 = %+v", adapter[0])
	}
	// Long form.
	if adapter[1].Arg != "label" || adapter[1].Source != "input" || adapter[1].Key != "label" {
		t.Errorf("entry 1 = %+v", adapter[1])
	}
}

func TestParse_AdapterLongFormExpr(t *testing.T) {
	m, err := Parse([]byte(`
steps:
  - name: a
    uses: passthrough
    externals: [input]
    adapter:
      n:
        source: input
        key: count
        expr: "self * 2"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e := m.Steps[0].Adapter[0]
	if e.Expr != "self * 2" {
		t.Errorf("Expr = %q", e.Expr)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no steps",
			yaml:    "name: empty",
			wantErr: "no steps",
		},
		{
			name:    "unnamed step",
			yaml:    "steps:\n  - uses: passthrough",
			wantErr: "has no name",
		},
		{
			name:    "step without uses",
			yaml:    "steps:\n  - name: a",
			wantErr: "no transformer type",
		},
		{
			name:    "malformed shorthand adapter",
			yaml:    "steps:\n  - name: a\n    uses: passthrough\n    adapter:\n      X: noslash",
			wantErr: "want source/key",
		},
		{
			name:    "adapter not a mapping",
			yaml:    "steps:\n  - name: a\n    uses: passthrough\n    adapter: [X]",
			wantErr: "must be a mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_TargetDefaultsToLastStep(t *testing.T) {
	m, err := Parse([]byte("steps:\n  - name: a\n    uses: passthrough\n  - name: b\n    uses: passthrough\n    needs: [a]"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Target != "b" {
		t.Errorf("Target = %q, want b", m.Target)
	}
}

func testRegistry(t *testing.T) *pipeline.Registry {
	t.Helper()
	reg := pipeline.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	builtin.Register(reg)
	return reg
}

func TestBuildGraph(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	g, err := m.BuildGraph(testRegistry(t))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	names := g.Names()
	want := []string{"cleanup", "pick", "ensemble"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	// The built graph is runnable end to end.
	engine, err := pipeline.NewEngine(g, pipeline.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	out, err := engine.FitTransform(context.Background(), engine.NewRun(), "ensemble", map[string]pipeline.Bundle{
		"input": {"tokens": []float64{2, 4}, "label": []float64{0, 1}},
	})
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}
	if _, ok := out["y"]; !ok {
		t.Errorf("output = %v, want key y", out)
	}
}

func TestBuildGraph_UnknownTransformerType(t *testing.T) {
	m, err := Parse([]byte("steps:\n  - name: a\n    uses: does-not-exist"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := m.BuildGraph(testRegistry(t)); err == nil {
		t.Fatal("expected error for unregistered transformer type")
	}
}

func TestBuildGraph_GraphValidationRuns(t *testing.T) {
	m, err := Parse([]byte("steps:\n  - name: a\n    uses: passthrough\n    needs: [a]"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = m.BuildGraph(testRegistry(t))
	var gerr *pipeline.GraphError
	if err == nil || !errors.As(err, &gerr) {
		t.Fatalf("error = %v, want *pipeline.GraphError", err)
	}
}
