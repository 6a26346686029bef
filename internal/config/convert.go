package config

import "github.com/flowkit/pipelinectl/internal/stepspec"

// RawSteps converts the YAML-decoded StepDocuments into stepspec.RawSteps,
// unwrapping the `outputs.parameters` envelope (spec §6 config shape) into
// the bare list-or-map value internal/stepspec's parser expects.
func (p *Pipeline) RawSteps() []stepspec.RawStep {
	out := make([]stepspec.RawStep, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, stepspec.RawStep{
			Name:       s.Name,
			Component:  s.Component,
			Engine:     s.Engine,
			Method:     s.Method,
			Parameters: s.Parameters,
			Outputs:    unwrapOutputs(s.Outputs),
			DependsOn:  s.DependsOn,
			CacheTTL:   s.CacheTTL,
		})
	}
	return out
}

func unwrapOutputs(raw any) any {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	return m["parameters"]
}
