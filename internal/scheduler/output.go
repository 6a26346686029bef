package scheduler

import (
	"strings"

	"github.com/flowkit/pipelinectl/internal/stepspec"
	"github.com/flowkit/pipelinectl/internal/value"
)

// suffixes is the fixed list of trailing-name tokens stripped by the output
// inference heuristic (spec §4.9 step "c"), grounded on
// original_source/pipeline/io/io_manager.py's capture_outputs/infer_key
// suffixes list ("full", "only", "part", "data", "df", "dataset", "stats",
// "main").
var suffixes = []string{"_full", "_only", "_part", "_data", "_df", "_dataset", "_stats", "_main"}

// distributeOutputs implements spec §4.9's three return shapes. When
// strictOutputs is true (the Open Question #1 resolution, a new
// flow-level setting), the suffix-stripping step (c) is skipped entirely —
// a map return must match by explicit source_key or same-name key, or the
// output is left unmapped; this trades recall for predictability on flows
// that can't tolerate an accidental suffix-stripped match.
func distributeOutputs(result any, outputs []stepspec.Output, strictOutputs bool) map[string]value.Value {
	out := make(map[string]value.Value, len(outputs))

	switch t := result.(type) {
	case map[string]any:
		used := make(map[string]bool, len(t))
		for _, o := range outputs {
			if v, key, ok := pickFromMap(t, o, used, strictOutputs); ok {
				out[o.Name] = value.FromAny(v)
				used[key] = true
			}
		}
		// (d) fall back to the next unused key, in map iteration order
		// stabilized by sorting, for any output still unfilled; in strict
		// mode an unfilled output is left null instead.
		remainingKeys := unusedKeys(t, used)
		idx := 0
		for _, o := range outputs {
			if _, already := out[o.Name]; already {
				continue
			}
			if strictOutputs || idx >= len(remainingKeys) {
				out[o.Name] = value.Null()
				continue
			}
			out[o.Name] = value.FromAny(t[remainingKeys[idx]])
			idx++
		}

	case []any:
		if len(outputs) >= 2 {
			for i, o := range outputs {
				if i < len(t) {
					out[o.Name] = value.FromAny(t[i])
				} else {
					out[o.Name] = value.Null()
				}
			}
		} else if len(outputs) == 1 {
			out[outputs[0].Name] = value.FromAny(t)
		}

	default:
		if len(outputs) > 0 {
			out[outputs[0].Name] = value.FromAny(result)
		}
	}

	return out
}

func pickFromMap(m map[string]any, o stepspec.Output, used map[string]bool, strictOutputs bool) (any, string, bool) {
	if o.SourceKey != "" {
		if v, ok := m[o.SourceKey]; ok && !used[o.SourceKey] {
			return v, o.SourceKey, true
		}
	}
	if v, ok := m[o.Name]; ok && !used[o.Name] {
		return v, o.Name, true
	}
	if strictOutputs {
		return nil, "", false
	}
	for key, v := range m {
		if used[key] {
			continue
		}
		if strings.TrimSuffix(key, suffixSuffixOf(key)) == o.Name {
			return v, key, true
		}
	}
	return nil, "", false
}

func suffixSuffixOf(key string) string {
	for _, s := range suffixes {
		if strings.HasSuffix(key, s) {
			return s
		}
	}
	return ""
}

func unusedKeys(m map[string]any, used map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if !used[k] {
			out = append(out, k)
		}
	}
	// deterministic order for the "next unused key in input order" rule,
	// approximated with a sort since Go map order isn't insertion order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
