package stepspec

import (
	"fmt"

	"github.com/flowkit/pipelinectl/internal/value"
)

// RawStep is the shape one step decodes into straight from YAML (see
// internal/config for the full file schema); parsing logic here takes this
// loosely-typed form rather than a rigid struct; so the map-shaped
// outputs.parameters form (SPEC_FULL.md §6 supplement) can be detected before
// binding to either a list or a map.
type RawStep struct {
	Name       string
	Component  string
	Engine     string
	Method     any // string or []string
	Parameters map[string]any
	Outputs    any // list of maps, or map (supplemented, see SPEC_FULL.md §6)
	DependsOn  []string
	CacheTTL   int
}

// ParseSteps converts raw step definitions into Steps, pre-scanning every
// step's parameters for references to other steps' outputs (so that an output
// referenced but never declared can be auto-synthesized), mirroring
// config_service.py#_parse_steps's two-pass structure exactly.
func ParseSteps(raw []RawStep) ([]Step, error) {
	referenced := make(map[string]map[string]struct{})
	for _, rs := range raw {
		collectReferencedOutputs(rs.Parameters, referenced)
	}

	steps := make([]Step, 0, len(raw))
	for i, rs := range raw {
		name := rs.Name
		if name == "" {
			name = fmt.Sprintf("step_%d", i)
		}
		if rs.Component == "" {
			return nil, fmt.Errorf("step %q: component is required", name)
		}
		engine := rs.Engine
		if engine == "" {
			engine = "auto"
		}

		params := make(map[string]value.Value, len(rs.Parameters))
		for k, v := range rs.Parameters {
			params[k] = MarkReferences(v)
		}

		outputs := parseOutputs(rs.Outputs)
		if len(outputs) == 0 {
			if refs, ok := referenced[name]; ok {
				outputs = AutoSynthesizeOutputs(refs)
			}
		}

		steps = append(steps, Step{
			Name:       name,
			Component:  rs.Component,
			Engine:     engine,
			Methods:    toMethodList(rs.Method),
			Parameters: params,
			Outputs:    outputs,
			DependsOn:  append([]string(nil), rs.DependsOn...),
			CacheTTL:   rs.CacheTTL,
		})
	}
	return steps, nil
}

func toMethodList(m any) []string {
	switch t := m.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// parseOutputs accepts either spec.md's canonical list-of-objects shape
// ([]any of maps with name/from/kind) or the map-shaped form supplemented from
// original_source (SPEC_FULL.md §6): {name: {from: ..., kind: ...}}.
func parseOutputs(raw any) []Output {
	switch t := raw.(type) {
	case []any:
		out := make([]Output, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, outputFromMap(anyString(m["name"]), m))
		}
		return out
	case map[string]any:
		out := make([]Output, 0, len(t))
		for name, v := range t {
			m, _ := v.(map[string]any)
			out = append(out, outputFromMap(name, m))
		}
		return out
	default:
		return nil
	}
}

func outputFromMap(name string, m map[string]any) Output {
	o := Output{Name: name, Kind: OutputDataset}
	if m == nil {
		return o
	}
	if from := anyString(m["from"]); from != "" {
		o.SourceKey = from
	}
	if kind := anyString(m["kind"]); kind == string(OutputParameter) {
		o.Kind = OutputParameter
	}
	return o
}

func anyString(v any) string {
	s, _ := v.(string)
	return s
}

// collectReferencedOutputs recursively walks params the same way
// MarkReferences/ExtractRefs do, recording every (step, output) pair seen, for
// the auto-synthesis pre-scan.
func collectReferencedOutputs(params map[string]any, referenced map[string]map[string]struct{}) {
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			if step, output, ok := ParseRef(t); ok {
				bucket := referenced[step]
				if bucket == nil {
					bucket = make(map[string]struct{})
					referenced[step] = bucket
				}
				bucket[output] = struct{}{}
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			for _, item := range t {
				walk(item)
			}
		}
	}
	for _, v := range params {
		walk(v)
	}
}
