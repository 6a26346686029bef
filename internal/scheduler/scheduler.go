// Package scheduler implements the Scheduler (spec §4.6): builds the
// DependencyGraph and ExecutionPlan from parsed StepSpecs, then runs each
// layer with bounded parallelism, performing reference resolution, signature
// computation, cache-check, method-chain execution, and output capture for
// every step.
//
// Grounded on original_source/pipeline/core/execute_manager.py's
// execute_pipeline/_dataset_name orchestration and
// pipeline/engines/kedro_engine.py's execute_node 9-step per-step algorithm
// (before_step → resolve refs → collect inputs → signature → cache-check →
// chain execution → capture outputs → persist → after_step) and the
// teacher's internal/engine executor for the layer-parallel
// goroutine+semaphore pattern, adapted from the teacher's fixed concurrency to
// a per-run configurable max_workers per spec §5.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/flowkit/pipelinectl/internal/artifactstore"
	"github.com/flowkit/pipelinectl/internal/dag"
	"github.com/flowkit/pipelinectl/internal/exec"
	"github.com/flowkit/pipelinectl/internal/fingerprint"
	"github.com/flowkit/pipelinectl/internal/handle"
	"github.com/flowkit/pipelinectl/internal/hooks"
	"github.com/flowkit/pipelinectl/internal/logger"
	"github.com/flowkit/pipelinectl/internal/metrics"
	"github.com/flowkit/pipelinectl/internal/methodregistry"
	"github.com/flowkit/pipelinectl/internal/middleware"
	"github.com/flowkit/pipelinectl/internal/stepspec"
	"github.com/flowkit/pipelinectl/internal/value"
	pipelineerrors "github.com/flowkit/pipelinectl/pkg/errors"
)

// Status is a step's terminal or in-flight state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCacheHit  Status = "cache_hit"
)

// Config governs scheduler-wide policy (spec §6 flow-level settings).
type Config struct {
	MaxWorkers    int
	InputStyle    exec.InputStyle
	StrictParams  bool
	SoftFail      bool
	StrictOutputs bool // Open Question #1 resolution, see SPEC_FULL.md §9
	FlowDeadline  time.Duration
	StepTimeout   time.Duration
	FailuresDir   string
	DefaultTTL    int // seconds, 0 = no TTL
	RetryCount    int
	RetryDelay    time.Duration
}

// StepResult is the final per-step outcome surfaced to callers.
type StepResult struct {
	Step   string
	Status Status
	Err    error
	Reason string
}

// RunResult is the overall outcome of one flow run (spec §4.6/§5 "run status").
type RunResult struct {
	Status string // "completed", "completed_with_failures", "failed"
	Steps  []StepResult
	Plan   dag.Plan
}

// Scheduler ties every subsystem together for one Orchestrator-owned run.
type Scheduler struct {
	Registry *methodregistry.Registry
	Store    *artifactstore.Store
	Hooks    *hooks.Bus
	Chain    *middleware.Chain
	Metrics  *metrics.Recorder
	Log      *logger.Logger
	Cfg      Config
}

// New constructs a Scheduler; nil optional fields are substituted with
// no-op/default instances, matching the "cheap construction" ethos spec §4.3
// already applies to MethodHandle.
func New(reg *methodregistry.Registry, store *artifactstore.Store, bus *hooks.Bus, chain *middleware.Chain, rec *metrics.Recorder, log *logger.Logger, cfg Config) *Scheduler {
	if bus == nil {
		bus = hooks.New()
	}
	if chain == nil {
		chain = middleware.New()
	}
	if log == nil {
		log = logger.Noop()
	}
	if rec == nil {
		rec = metrics.New(time.Now())
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Scheduler{Registry: reg, Store: store, Hooks: bus, Chain: chain, Metrics: rec, Log: log, Cfg: cfg}
}

// runState is the per-run mutable context discarded at run completion except
// for what ArtifactStore persists (spec §3 "Ownership").
type runState struct {
	catalog     map[string]value.Value // dataset name -> value
	fingerprint map[string]string      // dataset name -> fingerprint
	statuses    map[string]StepResult
	handles     map[string][]*handle.Handle // step name -> one handle per method
	now         time.Time
}

// Run executes the full flow: builds the graph and plan, then walks layers in
// dependency order (spec §4.6 "Planning"/"Execution").
func (s *Scheduler) Run(ctx context.Context, steps []stepspec.Step) (RunResult, error) {
	graph := stepspec.BuildGraph(steps)
	plan, err := graph.BuildPlan()
	if err != nil {
		return RunResult{}, err
	}

	if s.Cfg.FlowDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Cfg.FlowDeadline)
		defer cancel()
	}

	byName := make(map[string]stepspec.Step, len(steps))
	for _, st := range steps {
		byName[st.Name] = st
	}

	rs := &runState{
		catalog:     make(map[string]value.Value),
		fingerprint: make(map[string]string),
		statuses:    make(map[string]StepResult),
		handles:     make(map[string][]*handle.Handle),
		now:         time.Now(),
	}
	s.preloadCatalog(rs)

	s.Hooks.Emit(hooks.EventBeforeFlow, map[string]any{"plan": plan})

	anyFailed := false
	for _, layer := range plan.Layers {
		layerErr := s.runLayer(ctx, layer, byName, graph, rs)
		for _, name := range layer.Nodes {
			if rs.statuses[name].Status == StatusFailed {
				anyFailed = true
			}
		}
		if layerErr != nil {
			if !anyFailed {
				return RunResult{}, layerErr
			}
			// A step failure without soft_fail aborts the run: later layers
			// are not started and the overall status is "failed".
			break
		}
	}

	status := "completed"
	if anyFailed {
		if s.Cfg.SoftFail {
			status = "completed_with_failures"
		} else {
			status = "failed"
		}
	}

	results := make([]StepResult, 0, len(rs.statuses))
	names := make([]string, 0, len(rs.statuses))
	for n := range rs.statuses {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		results = append(results, rs.statuses[n])
	}

	s.Hooks.Emit(hooks.EventAfterFlow, map[string]any{"status": status})
	return RunResult{Status: status, Steps: results, Plan: plan}, nil
}

// preloadCatalog seeds rs.catalog/fingerprint from whatever ArtifactStore
// already loaded at startup, so a warm cache is visible to the first layer's
// cache-check (spec §4.6 step 5 "reuse catalog values").
func (s *Scheduler) preloadCatalog(rs *runState) {
	if s.Store == nil {
		return
	}
	for _, dataset := range s.Store.DatasetNames() {
		decoded, ok, err := s.Store.GetDecoded(dataset)
		if !ok || err != nil {
			continue
		}
		fp, _ := s.Store.Fingerprint(dataset)
		rs.catalog[dataset] = value.FromAny(decoded)
		rs.fingerprint[dataset] = fp
	}
}

func (s *Scheduler) runLayer(ctx context.Context, layer dag.Layer, byName map[string]stepspec.Step, graph *dag.Graph, rs *runState) error {
	sem := semaphore.NewWeighted(int64(s.Cfg.MaxWorkers))
	errCh := make(chan error, len(layer.Nodes))
	done := make(chan struct{}, len(layer.Nodes))

	for _, name := range layer.Nodes {
		name := name
		step, ok := byName[name]
		if !ok {
			continue
		}

		// Dependents of an already-failed/skipped predecessor (soft_fail)
		// are marked skipped without consuming a worker slot.
		if reason, skip := s.skipReason(step, graph, rs); skip {
			rs.statuses[name] = StepResult{Step: name, Status: StatusSkipped, Reason: reason}
			s.Metrics.StepSkipped()
			done <- struct{}{}
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func() {
			defer sem.Release(1)
			defer func() { done <- struct{}{} }()
			result := s.runStep(ctx, step, rs)
			rs.statuses[name] = result
			if result.Status == StatusFailed && !s.Cfg.SoftFail {
				errCh <- result.Err
			}
		}()
	}

	for range layer.Nodes {
		<-done
	}
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// skipReason reports whether step must be skipped because a predecessor
// failed or was itself skipped under soft_fail (spec §4.6 "Failure
// semantics"). Predecessors are taken from the built graph, not just
// step.DependsOn, so a fan-out child that only references a failed parent's
// output (a DATA edge, no explicit depends_on) is skipped too instead of
// running and hard-failing on reference_resolution.
func (s *Scheduler) skipReason(step stepspec.Step, graph *dag.Graph, rs *runState) (string, bool) {
	for _, dep := range graph.Predecessors(step.Name) {
		if r, ok := rs.statuses[dep]; ok && (r.Status == StatusFailed || r.Status == StatusSkipped) {
			return "dependency_failed", true
		}
	}
	return "", false
}

// runStep implements the 9-step per-step algorithm of spec §4.6.
func (s *Scheduler) runStep(ctx context.Context, step stepspec.Step, rs *runState) StepResult {
	stepCtx := ctx
	if s.Cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, s.Cfg.StepTimeout)
		defer cancel()
	}

	s.Metrics.StepStarted()
	s.Hooks.Emit(hooks.EventBeforeStep, map[string]any{"step": step.Name})

	resolved, upstreamFP, err := s.resolveParameters(step, rs)
	if err != nil {
		return s.fail(step, rs, err)
	}

	handles := s.stepHandles(step, rs)
	signature := computeSignature(step, handles, s.Registry, upstreamFP)

	if hit, stale := s.cacheHit(step, signature); hit {
		if err := s.loadCachedOutputs(step, rs); err != nil {
			s.Log.Warn(fmt.Sprintf("cache hit for %s but failed to reload outputs, re-running: %v", step.Name, err))
		} else {
			s.Hooks.Emit(hooks.EventOnCacheHit, map[string]any{"step": step.Name, "stale": stale})
			s.Metrics.CacheHit()
			if stale {
				s.Metrics.StaleHit()
			}
			result := StepResult{Step: step.Name, Status: StatusCacheHit}
			s.Hooks.Emit(hooks.EventAfterStep, map[string]any{"step": step.Name, "status": result.Status})
			return result
		}
	}
	s.Metrics.CacheMiss()

	chainResult, err := s.runChain(stepCtx, step, resolved, rs, handles)
	if err != nil {
		if errSnap := s.writeFailureSnapshot(step, signature, err); errSnap != nil {
			s.Log.Warn("failed to write failure snapshot for " + step.Name + ": " + errSnap.Error())
		}
		return s.fail(step, rs, err)
	}

	produced := s.captureOutputs(step, chainResult, rs)
	if err := s.persist(step, signature, produced); err != nil {
		s.Log.Warn("cache persist failed for " + step.Name + ": " + err.Error())
	}

	s.Metrics.StepSucceeded()
	result := StepResult{Step: step.Name, Status: StatusSucceeded}
	s.Hooks.Emit(hooks.EventAfterStep, map[string]any{"step": step.Name, "status": result.Status})
	return result
}

func (s *Scheduler) fail(step stepspec.Step, rs *runState, err error) StepResult {
	s.Metrics.StepFailed()
	s.Hooks.Emit(hooks.EventOnFailure, map[string]any{"step": step.Name, "error": err})
	return StepResult{Step: step.Name, Status: StatusFailed, Err: err}
}

// resolveParameters resolves every {__ref__, hash} in step.Parameters against
// rs.catalog, and collects upstream fingerprints keyed by input name (spec
// §4.6 steps 2-3).
func (s *Scheduler) resolveParameters(step stepspec.Step, rs *runState) (map[string]any, map[string]string, error) {
	resolved := make(map[string]any, len(step.Parameters))
	upstreamFP := make(map[string]string)

	var resolve func(name string, v value.Value) (value.Value, error)
	resolve = func(name string, v value.Value) (value.Value, error) {
		switch v.Kind() {
		case value.KindRef:
			ref, _ := v.Ref()
			dataset := stepspec.DatasetName(ref.Step, ref.Output)
			resolvedVal, ok := rs.catalog[dataset]
			if !ok {
				return value.Value{}, pipelineerrors.NewReferenceResolutionError(step.Name, ref.String())
			}
			if fp, ok := rs.fingerprint[dataset]; ok {
				upstreamFP[name] = fp
			}
			return resolvedVal, nil
		case value.KindList:
			items, _ := v.List()
			out := make([]value.Value, len(items))
			for i, item := range items {
				rv, err := resolve(name, item)
				if err != nil {
					return value.Value{}, err
				}
				out[i] = rv
			}
			return value.List(out), nil
		case value.KindMap:
			m, _ := v.Map()
			out := make(map[string]value.Value, len(m))
			for k, item := range m {
				rv, err := resolve(name, item)
				if err != nil {
					return value.Value{}, err
				}
				out[k] = rv
			}
			return value.Map(out), nil
		default:
			return v, nil
		}
	}

	for name, v := range step.Parameters {
		rv, err := resolve(name, v)
		if err != nil {
			return nil, nil, err
		}
		resolved[name] = rv.ToAny()
	}
	return resolved, upstreamFP, nil
}

// stepHandles lazily builds one MethodHandle per method in the chain,
// memoized on rs so repeated signature computation within a step reuses the
// same handle's TTL cache (spec §4.3).
func (s *Scheduler) stepHandles(step stepspec.Step, rs *runState) []*handle.Handle {
	if hs, ok := rs.handles[step.Name]; ok {
		return hs
	}
	hs := make([]*handle.Handle, 0, len(step.Methods))
	for _, method := range step.Methods {
		var h *handle.Handle
		if step.Engine != "" && step.Engine != "auto" {
			h = handle.NewFixed(step.Component, method, step.Engine, 0)
		} else {
			h = handle.NewAuto(step.Component, method, "default", "", 0)
		}
		hs = append(hs, h)
	}
	rs.handles[step.Name] = hs
	return hs
}

// cacheHit implements spec §4.6 step 5: a hit needs the recorded signature to
// match and every dataset output to be present in the store. cache_ttl is not
// checked: the store records no write times, so a matching entry is a hit
// whatever its age, and stale is always false.
func (s *Scheduler) cacheHit(step stepspec.Step, signature string) (hit bool, stale bool) {
	if s.Store == nil {
		return false, false
	}
	prevSig, ok := s.Store.Signature(step.Name)
	if !ok || prevSig != signature {
		return false, false
	}
	for _, out := range step.Outputs {
		if out.Kind != stepspec.OutputDataset {
			continue
		}
		if !s.Store.HasDataset(stepspec.DatasetName(step.Name, out.Name)) {
			return false, false
		}
	}
	ttl := step.CacheTTL
	if ttl == 0 {
		ttl = s.Cfg.DefaultTTL
	}
	if ttl > 0 {
		// No write time is recorded, so a positive TTL cannot expire the
		// entry here.
		return true, false
	}
	return true, false
}

// loadCachedOutputs reloads a cache-hit step's recorded datasets from the
// ArtifactStore into rs.catalog/rs.fingerprint (spec §4.6 step 5 "reuse
// catalog values"), so downstream steps resolving a reference to this step's
// outputs find them even though this step's method chain never ran.
func (s *Scheduler) loadCachedOutputs(step stepspec.Step, rs *runState) error {
	for _, out := range step.Outputs {
		if out.Kind != stepspec.OutputDataset {
			continue
		}
		dataset := stepspec.DatasetName(step.Name, out.Name)
		decoded, ok, err := s.Store.GetDecoded(dataset)
		if err != nil {
			return fmt.Errorf("decode %s: %w", dataset, err)
		}
		if !ok {
			return fmt.Errorf("dataset %s missing from store", dataset)
		}
		fp, _ := s.Store.Fingerprint(dataset)
		rs.catalog[dataset] = value.FromAny(decoded)
		rs.fingerprint[dataset] = fp
	}
	return nil
}

// runChain implements spec §4.6 step 6 and §4.6's "Chain slot" rule.
func (s *Scheduler) runChain(ctx context.Context, step stepspec.Step, params map[string]any, rs *runState, handles []*handle.Handle) (any, error) {
	var chainValue any
	for i, method := range step.Methods {
		h := handles[i]
		rec, err := h.Resolve(s.Registry)
		if err != nil {
			return nil, pipelineerrors.NewExecutionError(step.Name, err)
		}

		inputOrder := make([]string, 0, len(params))
		for name := range params {
			inputOrder = append(inputOrder, name)
		}
		sort.Strings(inputOrder)

		call := exec.Call{
			StepID:     step.Name,
			Record:     rec,
			UserParams: params,
			Inputs:     params,
			InputOrder: inputOrder,
			ChainValue: chainValue,
			First:      i == 0,
			Style:      s.Cfg.InputStyle,
			StrictMode: s.Cfg.StrictParams,
			RetryCount: s.Cfg.RetryCount,
			RetryDelay: s.Cfg.RetryDelay,
		}

		inv := middleware.Invocation{Component: step.Component, Method: method, Args: params}
		result, err := s.Chain.Run(ctx, inv, func(ctx context.Context, inv middleware.Invocation) (any, error) {
			start := time.Now()
			r, err := exec.Run(ctx, call)
			s.Registry.RecordInvocation(rec.FullKey(), time.Since(start), err)
			return r, err
		})
		if err != nil {
			return nil, err
		}
		chainValue = result
	}
	return chainValue, nil
}

// captureOutputs implements spec §4.9's three return shapes, storing every
// dataset-kind output into rs.catalog and computing its fingerprint.
func (s *Scheduler) captureOutputs(step stepspec.Step, result any, rs *runState) []artifactstore.ProducedDataset {
	values := distributeOutputs(result, step.Outputs, s.Cfg.StrictOutputs)

	produced := make([]artifactstore.ProducedDataset, 0, len(step.Outputs))
	for _, out := range step.Outputs {
		v, ok := values[out.Name]
		if !ok {
			v = value.Null()
			s.Log.Warn(fmt.Sprintf("step %s: output %s missing from result", step.Name, out.Name))
		}
		dataset := stepspec.DatasetName(step.Name, out.Name)
		fp := fingerprintOf(v)
		rs.catalog[dataset] = v
		rs.fingerprint[dataset] = fp

		if out.Kind == stepspec.OutputDataset {
			produced = append(produced, artifactstore.ProducedDataset{
				Name:        dataset,
				Fingerprint: fp,
				Type:        v.Kind().String(),
				Payload:     v.ToAny(),
			})
		}
	}
	return produced
}

func (s *Scheduler) persist(step stepspec.Step, signature string, produced []artifactstore.ProducedDataset) error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Record(step.Name, signature, produced)
}

func (s *Scheduler) writeFailureSnapshot(step stepspec.Step, signature string, cause error) error {
	if s.Store == nil || s.Cfg.FailuresDir == "" {
		return nil
	}
	paramNames := make([]string, 0, len(step.Parameters))
	for name := range step.Parameters {
		paramNames = append(paramNames, name)
	}
	sort.Strings(paramNames)
	snapshot := map[string]any{
		"step":       step.Name,
		"error":      cause.Error(),
		"methods":    step.Methods,
		"parameters": paramNames, // parameter values may carry opaque handles; names-only snapshot
		"signature":  signature,
	}
	return s.Store.WriteFailureSnapshot(s.Cfg.FailuresDir, step.Name, snapshot)
}

func fingerprintOf(v value.Value) string {
	return fingerprint.Fingerprint(v)
}
