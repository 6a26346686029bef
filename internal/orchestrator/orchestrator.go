// Package orchestrator implements the Orchestrator Facade (spec §2/§3
// "Ownership"): the public API a CLI or embedding program drives. It owns
// the Registry, Scheduler, HookBus, MiddlewareChain, and ArtifactStore for
// its lifetime, and composes them into LoadConfig/Plan/Run/ClearCache/
// Describe/List.
//
// Grounded on original_source/orchestrator/__init__.py's facade re-export
// shape (a thin composition root, not a god object with its own logic) and
// the teacher's internal/app wiring for how a Go composition root threads a
// shared logger/config through its owned subsystems.
package orchestrator

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/flowkit/pipelinectl/internal/artifactstore"
	"github.com/flowkit/pipelinectl/internal/config"
	"github.com/flowkit/pipelinectl/internal/dag"
	"github.com/flowkit/pipelinectl/internal/exec"
	"github.com/flowkit/pipelinectl/internal/hooks"
	"github.com/flowkit/pipelinectl/internal/logger"
	"github.com/flowkit/pipelinectl/internal/methodregistry"
	"github.com/flowkit/pipelinectl/internal/metrics"
	"github.com/flowkit/pipelinectl/internal/middleware"
	"github.com/flowkit/pipelinectl/internal/runstatus"
	"github.com/flowkit/pipelinectl/internal/scheduler"
	"github.com/flowkit/pipelinectl/internal/stepspec"
)

// Orchestrator is the composition root exclusively owning the Registry,
// Scheduler, HookBus, MiddlewareChain, and ArtifactStore (spec §3).
type Orchestrator struct {
	Registry *methodregistry.Registry
	Hooks    *hooks.Bus
	Chain    *middleware.Chain
	Store    *artifactstore.Store
	Metrics  *metrics.Recorder
	Log      *logger.Logger

	cacheRoot   string
	failuresDir string
	statusPath  string
}

// New constructs an Orchestrator with fresh, empty subsystems rooted at
// cacheRoot (spec §6's on-disk layout: cacheRoot/datasets, cacheRoot's two
// index files, and a sibling failures/ directory).
func New(fs afero.Fs, cacheRoot, failuresDir string, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Noop()
	}
	bus := hooks.New().WithLogger(log)
	return &Orchestrator{
		Registry:    methodregistry.New(methodregistry.DefaultConfig(nil), bus, log),
		Hooks:       bus,
		Chain:       middleware.New(),
		Store:       artifactstore.New(fs, cacheRoot),
		Metrics:     metrics.New(time.Now()),
		Log:         log,
		cacheRoot:   cacheRoot,
		failuresDir: failuresDir,
		statusPath:  filepath.Join(cacheRoot, "status.json"),
	}
}

// LoadConfig loads and validates a pipeline YAML file, returning its parsed
// steps.
func (o *Orchestrator) LoadConfig(fs afero.Fs, path string) (*config.Pipeline, error) {
	return config.Load(fs, path)
}

// ParseSteps converts a loaded config's raw steps into stepspec.Steps (spec
// §3/§6).
func (o *Orchestrator) ParseSteps(pipeline *config.Pipeline) ([]stepspec.Step, error) {
	return stepspec.ParseSteps(pipeline.RawSteps())
}

// BuildDAG constructs the DependencyGraph for steps without running anything;
// Plan builds on it.
func (o *Orchestrator) BuildDAG(steps []stepspec.Step) *dag.Graph {
	return stepspec.BuildGraph(steps)
}

// Plan builds the layered ExecutionPlan without executing any step.
func (o *Orchestrator) Plan(steps []stepspec.Step) (dag.Plan, error) {
	return o.BuildDAG(steps).BuildPlan()
}

// Run loads the on-disk cache, then executes the full flow per cfg, and
// records the outcome under name for later `pipelinectl status` lookups.
func (o *Orchestrator) Run(ctx context.Context, name string, steps []stepspec.Step, cfg scheduler.Config) (scheduler.RunResult, error) {
	if cfg.FailuresDir == "" {
		cfg.FailuresDir = o.failuresDir
	}
	for _, warn := range o.Store.LoadAll() {
		o.Log.Warn(warn.Error())
	}
	sched := scheduler.New(o.Registry, o.Store, o.Hooks, o.Chain, o.Metrics, o.Log, cfg)
	result, err := sched.Run(ctx, steps)
	if recErr := o.recordStatus(name, result); recErr != nil {
		o.Log.Warn(recErr.Error())
	}
	return result, err
}

// recordStatus persists result under name via the runstatus cache. A failure
// to persist is non-fatal to the run itself, matching the teacher's
// treatment of registry writes as best-effort bookkeeping.
func (o *Orchestrator) recordStatus(name string, result scheduler.RunResult) error {
	if name == "" {
		return nil
	}
	cache, err := runstatus.Open(o.statusPath)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range result.Steps {
		if r.Status == scheduler.StatusFailed {
			failed++
		}
	}
	return cache.Set(name, runstatus.Entry{
		Status:      result.Status,
		LastRun:     time.Now().UTC(),
		StepCount:   len(result.Steps),
		FailedSteps: failed,
	})
}

// Status returns the last recorded run outcome for a pipeline name, used by
// `pipelinectl status`.
func (o *Orchestrator) Status(name string) (runstatus.Entry, bool, error) {
	cache, err := runstatus.Open(o.statusPath)
	if err != nil {
		return runstatus.Entry{}, false, err
	}
	e, ok := cache.Get(name)
	return e, ok, nil
}

// AllStatuses returns every recorded pipeline's last run outcome.
func (o *Orchestrator) AllStatuses() (map[string]runstatus.Entry, error) {
	cache, err := runstatus.Open(o.statusPath)
	if err != nil {
		return nil, err
	}
	return cache.All(), nil
}

// ClearCache deletes the entire on-disk cache (spec §4.5 "clear()").
func (o *Orchestrator) ClearCache() error {
	return o.Store.Clear()
}

// Describe returns the registered MethodRecord for an exact full_key, used by
// `pipelinectl describe`.
func (o *Orchestrator) Describe(component, engine, method string) (methodregistry.Record, bool) {
	return o.Registry.Lookup(component + "::" + engine + "::" + method)
}

// List returns every registered record, optionally filtered (spec §6 CLI
// surface `list [--component][--engine]`).
func (o *Orchestrator) List(component, engine string) []methodregistry.Record {
	return o.Registry.List(component, engine)
}

// Scan registers every Invocable under module into the Registry (thin
// passthrough exposing methodregistry.Registry.Scan at the facade level).
func (o *Orchestrator) Scan(module map[string]methodregistry.Invocable, component, engine string, tags []string) int {
	return o.Registry.Scan(module, component, engine, tags, false, "")
}

// DefaultSchedulerConfig derives scheduler.Config from environment-style
// inputs (spec §6): INPUT_STYLE, STRICT_PARAMS, plus pipeline-level
// orchestration overrides layered on top by the caller.
func DefaultSchedulerConfig(getenv func(string) string) scheduler.Config {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	return scheduler.Config{
		MaxWorkers:   4,
		InputStyle:   exec.ResolveInputStyle(getenv("INPUT_STYLE")),
		StrictParams: getenv("STRICT_PARAMS") == "1",
		SoftFail:     false,
	}
}
