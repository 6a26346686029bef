// Package dag implements DependencyGraph (spec §3/§4.6): nodes plus typed
// edges, cycle detection, and a layered execution plan with critical path.
//
// Grounded primarily on original_source/pipeline/core/dependency_graph.py (the
// richer of the two grounding sources — it already documents itself as not
// thread-safe, matching spec's note that the graph itself uses plain adjacency
// maps while thread-safety is layered on above it by the Scheduler), with Go
// idiom (mutex-free value types, explicit error returns) drawn from the
// teacher's internal/engine/dag.go and internal/plugin/dependency_graph.go.
package dag

import (
	"fmt"
	"sort"

	pipelineerrors "github.com/flowkit/pipelinectl/pkg/errors"
)

// EdgeKind classifies a DependencyEdge (spec §3).
type EdgeKind string

const (
	KindData     EdgeKind = "DATA"
	KindExplicit EdgeKind = "EXPLICIT"
	KindResource EdgeKind = "RESOURCE"
	KindTemporal EdgeKind = "TEMPORAL"
)

// Edge is a DependencyEdge, unique by (From, To, Kind).
type Edge struct {
	From     string
	To       string
	Kind     EdgeKind
	Metadata map[string]string
}

func edgeKey(from, to string, kind EdgeKind) string {
	return from + "\x00" + to + "\x00" + string(kind)
}

// Graph is the DependencyGraph: NOT safe for concurrent mutation (matching the
// original's own documented contract) — the Scheduler builds one per run,
// single-threaded, before layering and parallel execution begin.
type Graph struct {
	nodes map[string]struct{}
	succ  map[string]map[string]struct{}
	pred  map[string]map[string]struct{}
	edges map[string]Edge
}

// New constructs an empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		succ:  make(map[string]map[string]struct{}),
		pred:  make(map[string]map[string]struct{}),
		edges: make(map[string]Edge),
	}
}

// AddNode registers a node with no edges, a no-op if it already exists.
func (g *Graph) AddNode(name string) {
	if _, ok := g.nodes[name]; ok {
		return
	}
	g.nodes[name] = struct{}{}
	g.succ[name] = make(map[string]struct{})
	g.pred[name] = make(map[string]struct{})
}

// AddEdge adds the edge, creating both endpoint nodes if needed. Re-adding an
// existing (from, to, kind) triple is a no-op (edges are unique by that key).
func (g *Graph) AddEdge(e Edge) {
	g.AddNode(e.From)
	g.AddNode(e.To)
	key := edgeKey(e.From, e.To, e.Kind)
	if _, exists := g.edges[key]; exists {
		return
	}
	g.edges[key] = e
	g.succ[e.From][e.To] = struct{}{}
	g.pred[e.To][e.From] = struct{}{}
}

// HasNode reports whether name was ever added.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Predecessors returns the direct predecessors of name, sorted.
func (g *Graph) Predecessors(name string) []string {
	return sortedKeys(g.pred[name])
}

// Successors returns the direct successors of name, sorted.
func (g *Graph) Successors(name string) []string {
	return sortedKeys(g.succ[name])
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// FindCycle runs a DFS and returns one concrete cycle path (node repeated at
// both ends) if the graph has one, else nil. Grounded on
// dependency_graph.py#find_cycle.
func (g *Graph) FindCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var path []string
	var cycle []string

	names := sortedKeys(g.nodes)

	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = gray
		path = append(path, n)
		for _, next := range g.Successors(n) {
			switch color[next] {
			case white:
				if visit(next) {
					return true
				}
			case gray:
				// found the repeated node; slice path from its first
				// occurrence through the current node, then close the loop.
				idx := 0
				for i, p := range path {
					if p == next {
						idx = i
						break
					}
				}
				cycle = append(append([]string{}, path[idx:]...), next)
				return true
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	for _, n := range names {
		if color[n] == white {
			if visit(n) {
				return cycle
			}
		}
	}
	return nil
}

// TopologicalSort runs Kahn's algorithm, returning *CycleError if the graph
// isn't a DAG. Ties are broken lexicographically for determinism.
func (g *Graph) TopologicalSort() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for n := range g.nodes {
		indegree[n] = len(g.pred[n])
	}

	var queue []string
	for n, d := range indegree {
		if d == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		sort.Strings(queue)
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, next := range g.Successors(n) {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.nodes) {
		if cycle := g.FindCycle(); cycle != nil {
			return nil, pipelineerrors.NewCycleError(cycle)
		}
		return nil, pipelineerrors.NewCycleError(remaining(g.nodes, order))
	}
	return order, nil
}

func remaining(nodes map[string]struct{}, order []string) []string {
	seen := make(map[string]struct{}, len(order))
	for _, n := range order {
		seen[n] = struct{}{}
	}
	var out []string
	for n := range nodes {
		if _, ok := seen[n]; !ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks that every edge's predecessor node actually exists, raising
// *missing_dependency* in strict mode or returning warning strings in lax mode.
func (g *Graph) Validate(strict bool) ([]string, error) {
	var warnings []string
	for name := range g.nodes {
		for from := range g.pred[name] {
			if !g.HasNode(from) {
				err := pipelineerrors.NewMissingDependencyError(name, from)
				if strict {
					return nil, err
				}
				warnings = append(warnings, err.Error())
			}
		}
	}
	sort.Strings(warnings)
	return warnings, nil
}

func (g *Graph) String() string {
	return fmt.Sprintf("Graph(nodes=%d, edges=%d)", len(g.nodes), len(g.edges))
}
