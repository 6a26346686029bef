package dag

import (
	"fmt"
	"sort"
	"strings"

	pipelineerrors "github.com/flowkit/pipelinectl/pkg/errors"
)

// Layer is a set of steps with no mutual dependency, runnable in parallel.
type Layer struct {
	Index int
	Nodes []string
}

// Plan is the ExecutionPlan: a list of Layers plus a precomputed critical
// path. Supplemented with MaxParallelism/Depth/Flatten from
// original_source/pipeline/core/dependency_graph.py's ExecutionPlan dataclass
// (dropped from spec.md's distillation — see SPEC_FULL.md §3).
type Plan struct {
	Layers       []Layer
	CriticalPath []string
}

// MaxParallelism returns the size of the largest layer.
func (p Plan) MaxParallelism() int {
	max := 0
	for _, l := range p.Layers {
		if len(l.Nodes) > max {
			max = len(l.Nodes)
		}
	}
	return max
}

// Depth returns the number of layers.
func (p Plan) Depth() int { return len(p.Layers) }

// Flatten concatenates every layer's nodes in plan order.
func (p Plan) Flatten() []string {
	var out []string
	for _, l := range p.Layers {
		out = append(out, l.Nodes...)
	}
	return out
}

func (p Plan) String() string {
	var b strings.Builder
	for _, l := range p.Layers {
		fmt.Fprintf(&b, "layer %d: %s\n", l.Index, strings.Join(l.Nodes, ", "))
	}
	return b.String()
}

// BuildPlan computes layers via Kahn's algorithm (predecessors-complete
// layering, not single-node topo order) plus the critical path, grounded on
// dependency_graph.py#build_execution_plan / #_compute_critical_path.
func (g *Graph) BuildPlan() (Plan, error) {
	completed := make(map[string]struct{}, len(g.nodes))
	remainingSet := make(map[string]struct{}, len(g.nodes))
	for n := range g.nodes {
		remainingSet[n] = struct{}{}
	}

	var layers []Layer
	for len(remainingSet) > 0 {
		var current []string
		for n := range remainingSet {
			ready := true
			for from := range g.pred[n] {
				if _, done := completed[from]; !done {
					ready = false
					break
				}
			}
			if ready {
				current = append(current, n)
			}
		}
		if len(current) == 0 {
			cycle := g.FindCycle()
			if cycle == nil {
				cycle = remaining(g.nodes, flattenCompleted(completed))
			}
			return Plan{}, pipelineerrors.NewCycleError(cycle)
		}
		sort.Strings(current)
		layers = append(layers, Layer{Index: len(layers), Nodes: current})
		for _, n := range current {
			completed[n] = struct{}{}
			delete(remainingSet, n)
		}
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return Plan{}, err
	}
	critical := g.computeCriticalPath(order)

	return Plan{Layers: layers, CriticalPath: critical}, nil
}

func flattenCompleted(completed map[string]struct{}) []string {
	out := make([]string, 0, len(completed))
	for n := range completed {
		out = append(out, n)
	}
	return out
}

// computeCriticalPath runs the longest-path DP over a topological order,
// grounded on dependency_graph.py#_compute_critical_path: dist[node] starts at
// 0, relaxed forward along successors, then backtracked from the max-dist node.
func (g *Graph) computeCriticalPath(order []string) []string {
	if len(order) == 0 {
		return nil
	}
	dist := make(map[string]int, len(order))
	prev := make(map[string]string, len(order))
	for _, n := range order {
		for _, succ := range g.Successors(n) {
			if dist[n]+1 > dist[succ] {
				dist[succ] = dist[n] + 1
				prev[succ] = n
			}
		}
	}

	end := order[0]
	for _, n := range order {
		if dist[n] > dist[end] {
			end = n
		}
	}

	var path []string
	for n := end; ; {
		path = append(path, n)
		p, ok := prev[n]
		if !ok {
			break
		}
		n = p
	}
	// reverse
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
