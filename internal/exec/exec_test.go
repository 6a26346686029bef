package exec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/pipelinectl/internal/methodregistry"
)

func recordFor(params []methodregistry.ParameterSpec, fn func(map[string]any) (any, error)) methodregistry.Record {
	return methodregistry.Record{
		ComponentType: "transform",
		EngineType:    "pandas",
		MethodName:    "run",
		Callable:      methodregistry.InvocableFunc{Fn: fn, Params: params},
	}
}

func TestResolveInputStyleDefaultsToStrictSingle(t *testing.T) {
	assert.Equal(t, StrictSingle, ResolveInputStyle(""))
	assert.Equal(t, StrictSingle, ResolveInputStyle("bogus"))
	assert.Equal(t, AllowList, ResolveInputStyle("allow_list"))
	assert.Equal(t, EnforceList, ResolveInputStyle("enforce_list"))
}

func TestBindPrefersUserParamsOverInputs(t *testing.T) {
	var captured map[string]any
	rec := recordFor(
		[]methodregistry.ParameterSpec{{Name: "data", Required: true}},
		func(args map[string]any) (any, error) { captured = args; return nil, nil },
	)
	_, err := Run(context.Background(), Call{
		Record:     rec,
		UserParams: map[string]any{"data": "from-user"},
		Inputs:     map[string]any{"data": "from-input"},
		First:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "from-user", captured["data"])
}

func TestBindInjectsChainValueIntoSoleUnboundRequiredParam(t *testing.T) {
	var captured map[string]any
	rec := recordFor(
		[]methodregistry.ParameterSpec{{Name: "data", Required: true}},
		func(args map[string]any) (any, error) { captured = args; return nil, nil },
	)
	_, err := Run(context.Background(), Call{
		Record:     rec,
		ChainValue: "prior-result",
		First:      false,
	})
	require.NoError(t, err)
	assert.Equal(t, "prior-result", captured["data"])
}

func TestBindSkipsChainSlotInjectionForFirstMethod(t *testing.T) {
	var captured map[string]any
	rec := recordFor(
		[]methodregistry.ParameterSpec{{Name: "data", Required: true}},
		func(args map[string]any) (any, error) { captured = args; return nil, nil },
	)
	_, err := Run(context.Background(), Call{
		Record:     rec,
		ChainValue: "prior-result",
		First:      true,
	})
	require.NoError(t, err)
	_, bound := captured["data"]
	assert.False(t, bound)
}

func TestBindSkipsChainSlotWhenStrictModeEnabled(t *testing.T) {
	var captured map[string]any
	rec := recordFor(
		[]methodregistry.ParameterSpec{{Name: "data", Required: true}},
		func(args map[string]any) (any, error) { captured = args; return nil, nil },
	)
	_, err := Run(context.Background(), Call{
		Record:     rec,
		ChainValue: "prior-result",
		StrictMode: true,
	})
	require.NoError(t, err)
	_, bound := captured["data"]
	assert.False(t, bound)
}

func TestBindVariadicInputsCollectsInOrder(t *testing.T) {
	var captured map[string]any
	rec := recordFor(
		[]methodregistry.ParameterSpec{{Name: "inputs", Variadic: true}},
		func(args map[string]any) (any, error) { captured = args; return nil, nil },
	)
	_, err := Run(context.Background(), Call{
		Record:     rec,
		Inputs:     map[string]any{"a": 1, "b": 2},
		InputOrder: []string{"b", "a"},
		First:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{2, 1}, captured["inputs"])
}

func TestBindDropsUnknownParamsWithoutOpenTail(t *testing.T) {
	var captured map[string]any
	rec := recordFor(
		[]methodregistry.ParameterSpec{{Name: "data", Required: true}},
		func(args map[string]any) (any, error) { captured = args; return nil, nil },
	)
	_, err := Run(context.Background(), Call{
		Record:     rec,
		UserParams: map[string]any{"data": "x", "unexpected": "y"},
		First:      true,
	})
	require.NoError(t, err)
	_, hasUnexpected := captured["unexpected"]
	assert.False(t, hasUnexpected)
}

func TestRunRetriesUpToRetryCountThenSurfacesWrappedError(t *testing.T) {
	attempts := 0
	rec := recordFor(nil, func(map[string]any) (any, error) {
		attempts++
		return nil, errors.New("transient")
	})
	_, err := Run(context.Background(), Call{
		StepID:     "transform",
		Record:     rec,
		RetryCount: 2,
		RetryDelay: time.Millisecond,
		First:      true,
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRunSucceedsOnRetryAfterInitialFailure(t *testing.T) {
	attempts := 0
	rec := recordFor(nil, func(map[string]any) (any, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})
	result, err := Run(context.Background(), Call{
		Record:     rec,
		RetryCount: 2,
		RetryDelay: time.Millisecond,
		First:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestValidateInputStyleStrictSingleRejectsListForScalarParam(t *testing.T) {
	rec := recordFor([]methodregistry.ParameterSpec{{Name: "data", Required: true, Kind: methodregistry.ParameterScalar}}, nil)
	err := validateInputStyle(Call{Style: StrictSingle, Record: rec}, map[string]any{"data": []any{1, 2}})
	assert.Error(t, err)
}

func TestValidateInputStyleAllowListNeverRejects(t *testing.T) {
	rec := recordFor([]methodregistry.ParameterSpec{{Name: "data", Required: true}}, nil)
	err := validateInputStyle(Call{Style: AllowList, Record: rec}, map[string]any{"data": []any{1, 2}})
	assert.NoError(t, err)
}

func TestValidateInputStyleEnforceListRejectsScalar(t *testing.T) {
	rec := recordFor([]methodregistry.ParameterSpec{{Name: "data", Required: true}}, nil)
	err := validateInputStyle(Call{Style: EnforceList, Record: rec}, map[string]any{"data": "not-a-list"})
	assert.Error(t, err)
}
