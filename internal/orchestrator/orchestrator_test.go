package orchestrator

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/pipelinectl/internal/methodregistry"
	"github.com/flowkit/pipelinectl/internal/scheduler"
	"github.com/flowkit/pipelinectl/internal/stepspec"
)

func singleStepPipeline() []stepspec.Step {
	return []stepspec.Step{
		{
			Name:      "extract",
			Component: "extract",
			Engine:    "pandas",
			Methods:   []string{"read"},
			Outputs:   []stepspec.Output{{Name: "rows", Kind: stepspec.OutputDataset}},
		},
	}
}

func registerExtractRead(t *testing.T, o *Orchestrator) {
	t.Helper()
	_, err := o.Registry.Register(methodregistry.Record{
		ComponentType: "extract",
		EngineType:    "pandas",
		MethodName:    "read",
		Version:       "1.0.0",
		Callable: methodregistry.InvocableFunc{
			Fn: func(map[string]any) (any, error) { return []any{1, 2}, nil },
		},
	})
	require.NoError(t, err)
}

func TestNewConstructsSubsystemsWithNilSafeDefaults(t *testing.T) {
	o := New(afero.NewMemMapFs(), "/cache", "/failures", nil)
	assert.NotNil(t, o.Registry)
	assert.NotNil(t, o.Hooks)
	assert.NotNil(t, o.Chain)
	assert.NotNil(t, o.Store)
	assert.NotNil(t, o.Metrics)
	assert.NotNil(t, o.Log)
}

func TestRunRecordsStatusRetrievableByName(t *testing.T) {
	o := New(afero.NewMemMapFs(), "/cache", "/failures", nil)
	registerExtractRead(t, o)

	result, err := o.Run(context.Background(), "nightly", singleStepPipeline(), scheduler.Config{MaxWorkers: 1})
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)

	entry, ok, err := o.Status("nightly")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "completed", entry.Status)
	assert.Equal(t, 1, entry.StepCount)
	assert.Equal(t, 0, entry.FailedSteps)
}

func TestRunWithEmptyNameSkipsStatusRecording(t *testing.T) {
	o := New(afero.NewMemMapFs(), "/cache", "/failures", nil)
	registerExtractRead(t, o)

	_, err := o.Run(context.Background(), "", singleStepPipeline(), scheduler.Config{MaxWorkers: 1})
	require.NoError(t, err)

	all, err := o.AllStatuses()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStatusOnUnknownPipelineReportsNotFound(t *testing.T) {
	o := New(afero.NewMemMapFs(), "/cache", "/failures", nil)
	_, ok, err := o.Status("never-run")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllStatusesAccumulatesAcrossMultipleRuns(t *testing.T) {
	o := New(afero.NewMemMapFs(), "/cache", "/failures", nil)
	registerExtractRead(t, o)

	_, err := o.Run(context.Background(), "a", singleStepPipeline(), scheduler.Config{MaxWorkers: 1})
	require.NoError(t, err)
	_, err = o.Run(context.Background(), "b", singleStepPipeline(), scheduler.Config{MaxWorkers: 1})
	require.NoError(t, err)

	all, err := o.AllStatuses()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestClearCacheRemovesPersistedDatasets(t *testing.T) {
	o := New(afero.NewMemMapFs(), "/cache", "/failures", nil)
	registerExtractRead(t, o)

	_, err := o.Run(context.Background(), "nightly", singleStepPipeline(), scheduler.Config{MaxWorkers: 1})
	require.NoError(t, err)
	require.NoError(t, o.ClearCache())

	assert.False(t, o.Store.HasDataset("extract__rows"))
}

func TestPlanBuildsLayeredExecutionPlanWithoutRunning(t *testing.T) {
	o := New(afero.NewMemMapFs(), "/cache", "/failures", nil)
	plan, err := o.Plan(singleStepPipeline())
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Layers)
}

func TestDescribeAndListReflectRegisteredMethods(t *testing.T) {
	o := New(afero.NewMemMapFs(), "/cache", "/failures", nil)
	registerExtractRead(t, o)

	rec, ok := o.Describe("extract", "pandas", "read")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", rec.Version)

	all := o.List("", "")
	assert.Len(t, all, 1)
}

func TestDefaultSchedulerConfigReadsEnvStyleOverrides(t *testing.T) {
	getenv := func(k string) string {
		switch k {
		case "INPUT_STYLE":
			return "allow_list"
		case "STRICT_PARAMS":
			return "1"
		}
		return ""
	}
	cfg := DefaultSchedulerConfig(getenv)
	assert.True(t, cfg.StrictParams)
	assert.Equal(t, 4, cfg.MaxWorkers)
}
