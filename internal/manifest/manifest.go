// Package manifest loads YAML pipeline definitions and turns them into
// executable step graphs using a transformer registry.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/stepflow/pkg/pipeline"
)

// Manifest is a declarative pipeline definition.
type Manifest struct {
	Name          string     `yaml:"name"`
	ExperimentDir string     `yaml:"experiment_dir"`
	Target        string     `yaml:"target"`
	Steps         []StepSpec `yaml:"steps"`
}

// StepSpec declares one step.
type StepSpec struct {
	Name      string         `yaml:"name"`
	Uses      string         `yaml:"uses"` // registered transformer type
	Needs     []string       `yaml:"needs"`
	Externals []string       `yaml:"externals"`
	Adapter   AdapterSpec    `yaml:"adapter"`
	With      map[string]any `yaml:"with"` // transformer factory params
	Policy    PolicySpec     `yaml:"policy"`
}

// PolicySpec mirrors pipeline.Policy in YAML.
type PolicySpec struct {
	PersistModel        bool `yaml:"persist_model"`
	PersistOutput       bool `yaml:"persist_output"`
	LoadPersistedOutput bool `yaml:"load_persisted_output"`
	CacheOutput         bool `yaml:"cache_output"`
}

// EntrySpec is one adapter mapping in YAML. Two forms are accepted:
//
//	X: tokens/vectors          # shorthand source/key
//	y:                         # long form, with optional expression
//	  source: input
//	  key: label
//	  expr: "self.length"
type EntrySpec struct {
	Arg    string
	Source string `yaml:"source"`
	Key    string `yaml:"key"`
	Expr   string `yaml:"expr"`
}

// AdapterSpec preserves the declared entry order, which a plain YAML map
// would lose. Order matters because an entry's expression sees the
// arguments resolved before it.
type AdapterSpec []EntrySpec

// UnmarshalYAML decodes the adapter mapping while keeping document order.
func (a *AdapterSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("adapter must be a mapping of argument to source")
	}
	entries := make([]EntrySpec, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		entry := EntrySpec{Arg: keyNode.Value}

		switch valNode.Kind {
		case yaml.ScalarNode:
			source, key, ok := strings.Cut(valNode.Value, "/")
			if !ok {
				return fmt.Errorf("adapter entry %q: want source/key, got %q", entry.Arg, valNode.Value)
			}
			entry.Source, entry.Key = source, key
		case yaml.MappingNode:
			if err := valNode.Decode(&entry); err != nil {
				return fmt.Errorf("adapter entry %q: %w", entry.Arg, err)
			}
		default:
			return fmt.Errorf("adapter entry %q: want string or mapping", entry.Arg)
		}
		entries = append(entries, entry)
	}
	*a = entries
	return nil
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Parse parses manifest YAML and checks the fields the graph build cannot.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if len(m.Steps) == 0 {
		return nil, fmt.Errorf("manifest has no steps")
	}
	for i, s := range m.Steps {
		if s.Name == "" {
			return nil, fmt.Errorf("step %d has no name", i)
		}
		if s.Uses == "" {
			return nil, fmt.Errorf("step %s has no transformer type (uses)", s.Name)
		}
	}
	if m.Target == "" {
		// Default to the last declared step.
		m.Target = m.Steps[len(m.Steps)-1].Name
	}
	return &m, nil
}

// BuildGraph instantiates every step's transformer through the registry
// and assembles the validated step graph.
func (m *Manifest) BuildGraph(reg *pipeline.Registry) (*pipeline.Graph, error) {
	g := pipeline.NewGraph()
	for _, spec := range m.Steps {
		tr, err := reg.New(spec.Uses, spec.With)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", spec.Name, err)
		}

		var adapter pipeline.Adapter
		for _, e := range spec.Adapter {
			adapter = append(adapter, pipeline.Entry{
				Arg: e.Arg, Source: e.Source, Key: e.Key, Expr: e.Expr,
			})
		}

		err = g.Add(&pipeline.Step{
			Name:        spec.Name,
			Transformer: tr,
			Needs:       spec.Needs,
			Externals:   spec.Externals,
			Adapter:     adapter,
			Policy: pipeline.Policy{
				PersistModel:        spec.Policy.PersistModel,
				PersistOutput:       spec.Policy.PersistOutput,
				LoadPersistedOutput: spec.Policy.LoadPersistedOutput,
				CacheOutput:         spec.Policy.CacheOutput,
			},
		})
		if err != nil {
			return nil, err
		}
	}
	if err := g.Build(); err != nil {
		return nil, err
	}
	return g, nil
}
