package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/pipelinectl/internal/artifactstore"
	"github.com/flowkit/pipelinectl/internal/logger"
	"github.com/flowkit/pipelinectl/internal/methodregistry"
	"github.com/flowkit/pipelinectl/internal/metrics"
	"github.com/flowkit/pipelinectl/internal/stepspec"
	"github.com/flowkit/pipelinectl/internal/value"
)

func newTestRegistry(t *testing.T) *methodregistry.Registry {
	t.Helper()
	return methodregistry.New(methodregistry.Config{ConflictMode: methodregistry.ConflictWarn}, nil, nil)
}

func extractReadRecord(fn func(map[string]any) (any, error)) methodregistry.Record {
	return methodregistry.Record{
		ComponentType: "extract",
		EngineType:    "pandas",
		MethodName:    "read",
		Version:       "1.0.0",
		Callable: methodregistry.InvocableFunc{Fn: fn, Params: []methodregistry.ParameterSpec{
			{Name: "path"},
		}},
	}
}

func transformRunRecord(fn func(map[string]any) (any, error)) methodregistry.Record {
	return methodregistry.Record{
		ComponentType: "transform",
		EngineType:    "pandas",
		MethodName:    "run",
		Version:       "1.0.0",
		Callable: methodregistry.InvocableFunc{Fn: fn, Params: []methodregistry.ParameterSpec{
			{Name: "data", Required: true},
		}},
	}
}

func newScheduler(t *testing.T, reg *methodregistry.Registry, cfg Config) (*Scheduler, *artifactstore.Store) {
	t.Helper()
	log, err := logger.New(logger.Options{})
	require.NoError(t, err)
	store := artifactstore.New(afero.NewMemMapFs(), "/cache")
	return New(reg, store, nil, nil, metrics.New(time.Now()), log, cfg), store
}

func twoStepPipeline() []stepspec.Step {
	return []stepspec.Step{
		{
			Name:       "extract",
			Component:  "extract",
			Engine:     "pandas",
			Methods:    []string{"read"},
			Parameters: map[string]value.Value{"path": value.String("a.csv")},
			Outputs:    []stepspec.Output{{Name: "rows", Kind: stepspec.OutputDataset}},
		},
		{
			Name:      "transform",
			Component: "transform",
			Engine:    "pandas",
			Methods:   []string{"run"},
			Parameters: map[string]value.Value{
				"data": value.MakeRef(value.Ref{Step: "extract", Output: "rows"}),
			},
			Outputs:   []stepspec.Output{{Name: "result", Kind: stepspec.OutputDataset}},
			DependsOn: []string{"extract"},
		},
	}
}

func TestRunHappyPathCompletesBothSteps(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Register(extractReadRecord(func(map[string]any) (any, error) { return []any{1, 2, 3}, nil }))
	require.NoError(t, err)
	_, err = reg.Register(transformRunRecord(func(args map[string]any) (any, error) { return args["data"], nil }))
	require.NoError(t, err)

	sched, _ := newScheduler(t, reg, Config{MaxWorkers: 2})
	result, err := sched.Run(context.Background(), twoStepPipeline())
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)
	assert.Len(t, result.Steps, 2)
	for _, r := range result.Steps {
		assert.Equal(t, StatusSucceeded, r.Status)
	}
}

func TestRunSecondInvocationWithUnchangedSignatureIsCacheHit(t *testing.T) {
	reg := newTestRegistry(t)
	calls := 0
	_, err := reg.Register(extractReadRecord(func(map[string]any) (any, error) {
		calls++
		return []any{1, 2, 3}, nil
	}))
	require.NoError(t, err)
	_, err = reg.Register(transformRunRecord(func(args map[string]any) (any, error) { return args["data"], nil }))
	require.NoError(t, err)

	sched, store := newScheduler(t, reg, Config{MaxWorkers: 2})
	steps := twoStepPipeline()

	_, err = sched.Run(context.Background(), steps)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	sched2, _ := newScheduler(t, reg, Config{MaxWorkers: 2})
	sched2.Store = store // reuse the same persisted artifact store

	result, err := sched2.Run(context.Background(), steps)
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)
	for _, r := range result.Steps {
		assert.Equal(t, StatusCacheHit, r.Status)
	}
	assert.Equal(t, 1, calls) // no re-invocation
}

func TestRunHardFailsWholeFlowWhenSoftFailDisabled(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Register(extractReadRecord(func(map[string]any) (any, error) {
		return nil, errors.New("read failed")
	}))
	require.NoError(t, err)
	_, err = reg.Register(transformRunRecord(func(args map[string]any) (any, error) { return args["data"], nil }))
	require.NoError(t, err)

	sched, _ := newScheduler(t, reg, Config{MaxWorkers: 2, SoftFail: false})
	result, err := sched.Run(context.Background(), twoStepPipeline())
	require.NoError(t, err)
	assert.Equal(t, "failed", result.Status)
}

func TestRunSoftFailSkipsDependentsButCompletesWithFailures(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Register(extractReadRecord(func(map[string]any) (any, error) {
		return nil, errors.New("read failed")
	}))
	require.NoError(t, err)
	_, err = reg.Register(transformRunRecord(func(args map[string]any) (any, error) { return args["data"], nil }))
	require.NoError(t, err)

	sched, _ := newScheduler(t, reg, Config{MaxWorkers: 2, SoftFail: true})
	result, err := sched.Run(context.Background(), twoStepPipeline())
	require.NoError(t, err)
	assert.Equal(t, "completed_with_failures", result.Status)

	byName := map[string]StepResult{}
	for _, r := range result.Steps {
		byName[r.Step] = r
	}
	assert.Equal(t, StatusFailed, byName["extract"].Status)
	assert.Equal(t, StatusSkipped, byName["transform"].Status)
	assert.Equal(t, "dependency_failed", byName["transform"].Reason)
}

func TestRunSingleStepWithoutRegisteredMethodFails(t *testing.T) {
	reg := newTestRegistry(t)
	sched, _ := newScheduler(t, reg, Config{MaxWorkers: 1, SoftFail: true})
	steps := []stepspec.Step{
		{Name: "extract", Component: "extract", Engine: "pandas", Methods: []string{"read"}},
	}
	result, err := sched.Run(context.Background(), steps)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Steps[0].Status)
}
