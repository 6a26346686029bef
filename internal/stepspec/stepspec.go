// Package stepspec parses raw step definitions into StepSpecs (spec §3),
// rewrites steps.X.outputs.parameters.Y reference strings into {__ref__, hash}
// markers, computes dataset names, and auto-synthesizes undeclared outputs that
// are referenced by a later step.
//
// Grounded on original_source/pipeline/core/services/config_service.py
// (_parse_steps, _mark_references, REF_PATTERN, the reference pre-scan that
// enables output auto-synthesis) and the teacher's internal/config/types.go for
// the YAML-unmarshal-with-custom-dispatch idiom (adapted: steps here are
// generic method chains, not per-plugin typed structs).
package stepspec

import (
	"regexp"
	"sort"
	"strings"

	"github.com/flowkit/pipelinectl/internal/dag"
	"github.com/flowkit/pipelinectl/internal/fingerprint"
	"github.com/flowkit/pipelinectl/internal/value"
)

// refPattern is the exact reference syntax from spec §6:
// steps.<step>.outputs.parameters.<name>.
var refPattern = regexp.MustCompile(`^steps\.([^.]+)\.outputs\.parameters\.([^.]+)$`)

// OutputKind distinguishes dataset-kind outputs (which feed the scheduler's
// dataset tuple) from parameter-kind outputs (catalog-only, referenceable).
type OutputKind string

const (
	OutputDataset   OutputKind = "dataset"
	OutputParameter OutputKind = "parameter"
)

// Output is an OutputSpec.
type Output struct {
	Name      string
	SourceKey string
	Kind      OutputKind
}

// Step is a StepSpec.
type Step struct {
	Name       string
	Component  string
	Engine     string // "auto" = deferred resolution
	Methods    []string
	Parameters map[string]value.Value
	Outputs    []Output
	DependsOn  []string
	CacheTTL   int // seconds, 0 = no TTL
}

// DatasetName computes "<step>__<output>" with '-' replaced by '_' (spec §3).
func DatasetName(step, output string) string {
	name := step + "__" + output
	return strings.ReplaceAll(name, "-", "_")
}

// ParseRef matches the exact reference syntax; ok is false for any other
// dotted (or non-dotted) string, which must be treated as a literal (spec §6).
func ParseRef(s string) (stepName, output string, ok bool) {
	m := refPattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// MarkReferences walks raw (a plain decoded-YAML value, following the same
// string/list/map recursion as config_service.py#_mark_references /
// #_extract_refs) and rewrites any reference string into a value.Ref variant;
// everything else is lifted via value.FromAny. Per spec §9's "deep reference"
// open question, this recurses into nested lists/maps of the parameter tree
// but never descends into an Opaque payload — there are none at this stage,
// since raw parameter values come straight from YAML.
func MarkReferences(raw any) value.Value {
	switch t := raw.(type) {
	case string:
		if stepName, output, ok := ParseRef(t); ok {
			return value.MakeRef(value.Ref{Step: stepName, Output: output, Hash: fingerprint.HashReference(t)})
		}
		return value.String(t)
	case []any:
		items := make([]value.Value, 0, len(t))
		for _, item := range t {
			items = append(items, MarkReferences(item))
		}
		return value.List(items)
	case map[string]any:
		m := make(map[string]value.Value, len(t))
		for k, item := range t {
			m[k] = MarkReferences(item)
		}
		return value.Map(m)
	default:
		return value.FromAny(raw)
	}
}

// ExtractRefs recursively collects every Ref found in v (parameter-tree
// values only — see MarkReferences).
func ExtractRefs(v value.Value) []value.Ref {
	var out []value.Ref
	var walk func(value.Value)
	walk = func(v value.Value) {
		switch v.Kind() {
		case value.KindRef:
			r, _ := v.Ref()
			out = append(out, r)
		case value.KindList:
			items, _ := v.List()
			for _, item := range items {
				walk(item)
			}
		case value.KindMap:
			m, _ := v.Map()
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(m[k])
			}
		}
	}
	walk(v)
	return out
}

// AutoSynthesizeOutputs implements the invariant from spec §3: if step `name`
// declares no outputs but a later step references steps.name.outputs.parameters.Y,
// the engine synthesizes an output named Y (kind dataset) for each such Y, in
// sorted order, grounded on config_service.py's referenced_map pre-scan.
func AutoSynthesizeOutputs(referenced map[string]struct{}) []Output {
	names := make([]string, 0, len(referenced))
	for n := range referenced {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Output, 0, len(names))
	for _, n := range names {
		out = append(out, Output{Name: n, Kind: OutputDataset})
	}
	return out
}

// BuildGraph constructs the DependencyGraph from a set of parsed steps (spec
// §4.6 step 1-3): every step is a node; DATA edges come from reference usage;
// EXPLICIT edges come from depends_on.
func BuildGraph(steps []Step) *dag.Graph {
	g := dag.New()
	for _, s := range steps {
		g.AddNode(s.Name)
	}
	for _, s := range steps {
		for _, p := range s.Parameters {
			for _, ref := range ExtractRefs(p) {
				g.AddEdge(dag.Edge{
					From: ref.Step,
					To:   s.Name,
					Kind: dag.KindData,
					Metadata: map[string]string{
						"dataset": DatasetName(ref.Step, ref.Output),
					},
				})
			}
		}
		for _, dep := range s.DependsOn {
			g.AddEdge(dag.Edge{From: dep, To: s.Name, Kind: dag.KindExplicit})
		}
	}
	return g
}
