// Package exec implements the Executor (spec §4.7/§4.8): input-style
// validation, parameter binding against a method's declared ParameterSpecs,
// the chain-slot rule for multi-method chains, and retry handling for
// execution_error before the error surfaces to the Scheduler.
//
// Grounded on original_source/pipeline/io/io_manager.py's bind_call_params/
// resolve_inputs (binding precedence: user params, then declared inputs,
// then inputs/inputs_map collections, then chain slot, then open-kwargs
// passthrough) and orchestrator/registry/executor.py's
// _validate_input_style (the three input-style modes), adapted to Go's
// explicit ParameterSpec rather than inspect.signature introspection.
package exec

import (
	"context"
	"time"

	"github.com/flowkit/pipelinectl/internal/methodregistry"
	pipelineerrors "github.com/flowkit/pipelinectl/pkg/errors"
)

// InputStyle governs the single-vs-collection ambiguity check (spec §4.7).
type InputStyle string

const (
	StrictSingle InputStyle = "strict_single"
	AllowList    InputStyle = "allow_list"
	EnforceList  InputStyle = "enforce_list"
)

// ResolveInputStyle parses the INPUT_STYLE env value, defaulting to
// strict_single for anything unrecognized (spec §6).
func ResolveInputStyle(raw string) InputStyle {
	switch InputStyle(raw) {
	case AllowList, EnforceList:
		return InputStyle(raw)
	default:
		return StrictSingle
	}
}

// Call describes one method invocation to perform.
type Call struct {
	StepID     string
	Record     methodregistry.Record
	UserParams map[string]any
	// Inputs is the ordered map of resolved upstream artifacts, keyed by
	// declared input dataset name (spec §4.8 step 2/3).
	Inputs map[string]any
	// InputOrder fixes iteration order for the "inputs" variadic collection.
	InputOrder []string
	// ChainValue is the previous method's result in a multi-method chain;
	// nil (and First=true) for the first method.
	ChainValue any
	First      bool

	Style       InputStyle
	StrictMode  bool // STRICT_PARAMS=1 disables implicit chain-slot injection
	RetryCount  int
	RetryDelay  time.Duration
}

// Run executes one method with retries. Parameter binding and input-style
// validation run once, before the first attempt (spec §4.6 step 6, §4.8).
func Run(ctx context.Context, c Call) (any, error) {
	args, err := bind(c)
	if err != nil {
		return nil, err
	}
	if err := validateInputStyle(c, args); err != nil {
		return nil, err
	}

	attempts := c.RetryCount + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, pipelineerrors.NewExecutionError(c.StepID, ctx.Err())
			case <-time.After(c.RetryDelay):
			}
		}
		result, err := c.Record.Callable.Invoke(args)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, pipelineerrors.NewExecutionError(c.StepID, lastErr)
}

// bind implements spec §4.8's five-step binding precedence.
func bind(c Call) (map[string]any, error) {
	args := make(map[string]any, len(c.UserParams)+len(c.Inputs)+1)

	// 1. user-supplied parameters, references already resolved to values.
	for k, v := range c.UserParams {
		args[k] = v
	}

	declared := make(map[string]methodregistry.ParameterSpec, len(c.Record.Callable.Parameters()))
	for _, p := range c.Record.Callable.Parameters() {
		declared[p.Name] = p
	}

	// 2. declared input names matching a parameter name, not already bound.
	for name, v := range c.Inputs {
		if _, isParam := declared[name]; !isParam {
			continue
		}
		if _, already := args[name]; already {
			continue
		}
		args[name] = v
	}

	// 3. variadic inputs / inputs_map collections.
	if spec, ok := declared["inputs"]; ok && spec.Variadic {
		if _, already := args["inputs"]; !already {
			ordered := make([]any, 0, len(c.InputOrder))
			for _, name := range c.InputOrder {
				ordered = append(ordered, c.Inputs[name])
			}
			args["inputs"] = ordered
		}
	}
	if spec, ok := declared["inputs_map"]; ok && spec.Variadic {
		if _, already := args["inputs_map"]; !already {
			args["inputs_map"] = c.Inputs
		}
	}

	// 4. chain-slot rule (spec §4.6): only for non-first methods, and only
	// unless STRICT_PARAMS disables implicit injection.
	if !c.First && !c.StrictMode {
		if slot, ok := chainSlot(declared, args); ok {
			args[slot] = c.ChainValue
		}
	}

	// 5. drop unknown parameters unless the callable accepts an open tail.
	acceptsTail := false
	for _, p := range c.Record.Callable.Parameters() {
		if p.Name == "**" && p.Variadic {
			acceptsTail = true
		}
	}
	if acceptsTail {
		return args, nil
	}
	filtered := make(map[string]any, len(args))
	for name := range declared {
		if v, ok := args[name]; ok {
			filtered[name] = v
		}
	}
	// always keep inputs/inputs_map collections and the chain slot even if
	// not individually declared as scalar parameters; declared already
	// covers them since they're ParameterSpecs too.
	return filtered, nil
}

// chainSlot finds the single unbound required parameter to receive a chain
// result, falling back to a parameter literally named "data" (spec §4.6).
func chainSlot(declared map[string]methodregistry.ParameterSpec, bound map[string]any) (string, bool) {
	var candidates []string
	for name, spec := range declared {
		if !spec.Required {
			continue
		}
		if _, already := bound[name]; already {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	if spec, ok := declared["data"]; ok {
		if _, already := bound["data"]; !already && (spec.Required || true) {
			return "data", true
		}
	}
	return "", false
}

// validateInputStyle implements spec §4.7's three modes against the single
// positional "data"-like chain slot or first user-supplied list parameter.
func validateInputStyle(c Call, args map[string]any) error {
	switch c.Style {
	case AllowList:
		return nil
	case EnforceList:
		for _, p := range c.Record.Callable.Parameters() {
			if !p.Required {
				continue
			}
			v, ok := args[p.Name]
			if !ok {
				continue
			}
			if _, isList := v.([]any); !isList {
				return pipelineerrors.NewExecutionError(c.StepID,
					errList("enforce_list requires a list/sequence for parameter "+p.Name))
			}
			break
		}
		return nil
	default: // strict_single
		for _, p := range c.Record.Callable.Parameters() {
			if p.Kind == methodregistry.ParameterCollection || p.Variadic {
				continue
			}
			v, ok := args[p.Name]
			if !ok {
				continue
			}
			if _, isList := v.([]any); isList {
				return pipelineerrors.NewExecutionError(c.StepID,
					errList("strict_single: parameter "+p.Name+" received a list but is not annotated as a collection"))
			}
		}
		return nil
	}
}

type errList string

func (e errList) Error() string { return string(e) }
