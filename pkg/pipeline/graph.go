package pipeline

import (
	"sort"
	"strings"
)

// Graph is the registry of steps forming one pipeline. Steps are indexed
// by name and referenced by name, so a step with multiple downstream
// consumers exists exactly once (the graph is a DAG, not a tree).
type Graph struct {
	steps map[string]*Step
	order []string // registration order, for deterministic validation output
	built bool
}

// NewGraph creates an empty step graph.
func NewGraph() *Graph {
	return &Graph{steps: make(map[string]*Step)}
}

// Add registers a step. Duplicate or malformed names fail immediately;
// dangling references and cycles are caught by Build.
func (g *Graph) Add(s *Step) error {
	if s.Name == "" {
		return graphErrorf("step name must not be empty")
	}
	if strings.ContainsAny(s.Name, "/\\") {
		return graphErrorf("step name %q must not contain path separators", s.Name)
	}
	if s.Transformer == nil {
		return graphErrorf("step %s has no transformer", s.Name)
	}
	if _, exists := g.steps[s.Name]; exists {
		return graphErrorf("duplicate step name %q", s.Name)
	}
	g.steps[s.Name] = s
	g.order = append(g.order, s.Name)
	g.built = false
	return nil
}

// Step returns the registered step with the given name, or nil.
func (g *Graph) Step(name string) *Step {
	return g.steps[name]
}

// Names returns all registered step names in registration order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Build validates the graph: every Needs entry and adapter source must
// resolve, pass-through steps must have exactly one upstream, and the
// graph must be acyclic. Safe to call repeatedly; the engine calls it
// before the first evaluation.
func (g *Graph) Build() error {
	for _, name := range g.order {
		s := g.steps[name]

		ext := make(map[string]bool, len(s.Externals))
		for _, e := range s.Externals {
			ext[e] = true
		}
		needs := make(map[string]bool, len(s.Needs))
		for _, dep := range s.Needs {
			if dep == name {
				return graphErrorf("step %s depends on itself", name)
			}
			if _, ok := g.steps[dep]; !ok {
				return graphErrorf("step %s needs unknown step %q", name, dep)
			}
			if needs[dep] {
				return graphErrorf("step %s lists upstream %q twice", name, dep)
			}
			needs[dep] = true
		}

		if s.Adapter == nil {
			// Allowed without an adapter: a single upstream passed
			// through verbatim, or a source step taking no arguments.
			if len(s.Needs) > 1 || len(s.Externals) != 0 {
				return graphErrorf(
					"step %s has no adapter; pass-through requires exactly one upstream and no externals",
					name)
			}
			continue
		}
		for _, src := range s.Adapter.sources() {
			if !needs[src] && !ext[src] {
				return graphErrorf(
					"step %s adapter references %q, which is neither an upstream nor a declared external",
					name, src)
			}
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return err
	}
	g.built = true
	return nil
}

// checkAcyclic runs Kahn's algorithm over the Needs edges. Any node left
// with positive in-degree sits on a cycle.
func (g *Graph) checkAcyclic() error {
	inDegree := make(map[string]int, len(g.steps))
	forward := make(map[string][]string, len(g.steps))
	for name := range g.steps {
		inDegree[name] = 0
	}
	for name, s := range g.steps {
		for _, dep := range s.Needs {
			forward[dep] = append(forward[dep], name)
			inDegree[name]++
		}
	}

	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	done := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		done++
		succ := forward[node]
		sort.Strings(succ)
		for _, s := range succ {
			inDegree[s]--
			if inDegree[s] == 0 {
				queue = append(queue, s)
			}
		}
		sort.Strings(queue)
	}

	if done != len(g.steps) {
		var cycleNodes []string
		for name, deg := range inDegree {
			if deg > 0 {
				cycleNodes = append(cycleNodes, name)
			}
		}
		sort.Strings(cycleNodes)
		return graphErrorf("cycle involving steps: %s", strings.Join(cycleNodes, ", "))
	}
	return nil
}
