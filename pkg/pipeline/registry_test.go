package pipeline

import (
	"io"
	"log/slog"
	"testing"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))

	reg.Register("nop", func(params map[string]any) (Transformer, error) {
		return &nopTransformer{}, nil
	})

	tr, err := reg.New("nop", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr == nil {
		t.Fatal("New returned nil transformer")
	}

	if _, err := reg.New("missing", nil); err == nil {
		t.Fatal("expected error for unregistered type")
	}

	types := reg.Types()
	if len(types) != 1 || types[0] != "nop" {
		t.Errorf("Types = %v, want [nop]", types)
	}
}

func TestRegistry_ParamsReachFactory(t *testing.T) {
	reg := NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var got map[string]any
	reg.Register("capture", func(params map[string]any) (Transformer, error) {
		got = params
		return &nopTransformer{}, nil
	})

	params := map[string]any{"alpha": 0.1}
	if _, err := reg.New("capture", params); err != nil {
		t.Fatalf("New: %v", err)
	}
	if got["alpha"] != 0.1 {
		t.Errorf("factory params = %v, want alpha 0.1", got)
	}
}
