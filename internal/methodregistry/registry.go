package methodregistry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flowkit/pipelinectl/internal/hooks"
	"github.com/flowkit/pipelinectl/internal/logger"
	pipelineerrors "github.com/flowkit/pipelinectl/pkg/errors"
)

// ConflictMode governs register()'s behavior on a full_key collision (spec §4.1).
type ConflictMode string

const (
	ConflictWarn  ConflictMode = "warn"
	ConflictError ConflictMode = "error"
	ConflictIgnore ConflictMode = "ignore"
)

// Config mirrors the env-var-driven RegistryConfig from the original
// (orchestrator/config.py), renamed to the generic env vars spec.md names.
type Config struct {
	ConflictMode ConflictMode
	// ComponentBase names a package-like root used by discovery callers; the
	// Registry itself doesn't interpret it, it's surfaced for Scan callers.
	ComponentBase string
}

// DefaultConfig reads REGISTRY_CONFLICT / COMPONENT_BASE from the environment
// (spec §6), defaulting to "warn" and "" respectively.
func DefaultConfig(getenv func(string) string) Config {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	mode := ConflictMode(getenv("REGISTRY_CONFLICT"))
	switch mode {
	case ConflictWarn, ConflictError, ConflictIgnore:
	default:
		mode = ConflictWarn
	}
	return Config{ConflictMode: mode, ComponentBase: getenv("COMPONENT_BASE")}
}

// Registry is the thread-safe catalog of MethodRecords (spec §4.1). Grounded
// structurally on the teacher's internal/plugin/registry_new.go.
type Registry struct {
	mu     sync.RWMutex
	byFull map[string]Record
	// byComponent[component][method][engine] mirrors the original's
	// RegistryIndex.by_component for O(1) candidate lookup.
	byComponent map[string]map[string]map[string]Record

	cfg    Config
	hooks  *hooks.Bus
	log    *logger.Logger
	stats  map[string]*methodStats
}

type methodStats struct {
	Calls      int64
	Errors     int64
	TotalTime  time.Duration
	LastError  string
	LastDuration time.Duration
}

// New constructs a Registry. hookBus and log may be nil (a no-op bus / noop
// logger is substituted), matching the spec's "cheap construction" ethos for
// the objects that compose the Orchestrator Facade.
func New(cfg Config, hookBus *hooks.Bus, log *logger.Logger) *Registry {
	if hookBus == nil {
		hookBus = hooks.New()
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Registry{
		byFull:      make(map[string]Record),
		byComponent: make(map[string]map[string]map[string]Record),
		cfg:         cfg,
		hooks:       hookBus,
		log:         log,
		stats:       make(map[string]*methodStats),
	}
}

// Register inserts record, applying the configured conflict_mode on a full_key
// collision (spec §4.1). Returns false (without error) when conflict_mode is
// "ignore" and a prior record is kept.
func (r *Registry) Register(record Record) (bool, error) {
	if record.RegisteredAt.IsZero() {
		record.RegisteredAt = time.Now()
	}
	fullKey := record.FullKey()

	r.mu.Lock()
	_, exists := r.byFull[fullKey]
	if exists {
		switch r.cfg.ConflictMode {
		case ConflictError:
			r.mu.Unlock()
			return false, pipelineerrors.NewConflictError(fullKey)
		case ConflictIgnore:
			r.mu.Unlock()
			return false, nil
		default: // warn: overwrite
			r.log.Warn("overwriting existing registration for " + fullKey)
		}
	}

	r.byFull[fullKey] = record
	comp := r.byComponent[record.ComponentType]
	if comp == nil {
		comp = make(map[string]map[string]Record)
		r.byComponent[record.ComponentType] = comp
	}
	methodBucket := comp[record.MethodName]
	if methodBucket == nil {
		methodBucket = make(map[string]Record)
		comp[record.MethodName] = methodBucket
	}
	methodBucket[record.EngineType] = record
	r.mu.Unlock()

	r.hooks.Emit("after_method_registered", map[string]any{"full_key": fullKey})
	return true, nil
}

// Lookup returns the record for an exact full_key, or ok=false.
func (r *Registry) Lookup(fullKey string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byFull[fullKey]
	return rec, ok
}

// Candidates returns all registered engines for (component, method), in a
// stable, deterministic order (sorted by full_key) so repeated calls under
// concurrent registration never observe a half-built slice.
func (r *Registry) Candidates(component, method string) []Record {
	r.mu.RLock()
	bucket := r.byComponent[component][method]
	out := make([]Record, 0, len(bucket))
	for _, rec := range bucket {
		out = append(out, rec)
	}
	r.mu.RUnlock()
	return sortedCandidates(out)
}

// List returns a filtered, deterministically ordered snapshot of all records.
// Either filter may be empty to mean "any".
func (r *Registry) List(component, engine string) []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.byFull))
	for _, rec := range r.byFull {
		if component != "" && rec.ComponentType != component {
			continue
		}
		if engine != "" && rec.EngineType != engine {
			continue
		}
		out = append(out, rec)
	}
	r.mu.RUnlock()
	return sortedCandidates(out)
}

// Select applies strategy to the candidates for (component, method). It is the
// Go equivalent of orchestrator/registry/registry.py#select.
func (r *Registry) Select(component, method, strategyName, preferredEngine string) (Record, error) {
	candidates := r.Candidates(component, method)
	if len(candidates) == 0 {
		return Record{}, pipelineerrors.NewMethodNotFoundError(component, method)
	}
	strat, err := ResolveStrategy(strategyName, preferredEngine)
	if err != nil {
		return Record{}, err
	}
	return strat(candidates)
}

// Scan registers every Invocable in module (a "module-like container" of named
// callables — Go has no runtime enumeration of package members, so callers
// supply the map explicitly; see SPEC_FULL.md §4.1). Names starting with "_"
// are skipped unless includePrivate; when pattern is non-empty, only names
// containing it (substring match) are registered. Returns the count
// registered, grounded on orchestrator/registry/scanner.py#Scanner.scan.
func (r *Registry) Scan(module map[string]Invocable, component, engine string, tags []string, includePrivate bool, pattern string) int {
	names := make([]string, 0, len(module))
	for name := range module {
		names = append(names, name)
	}
	sort.Strings(names)

	count := 0
	for _, name := range names {
		if !includePrivate && strings.HasPrefix(name, "_") {
			continue
		}
		if pattern != "" && !strings.Contains(name, pattern) {
			continue
		}
		rec := Record{
			ComponentType: component,
			EngineType:    engine,
			MethodName:    name,
			Tags:          tags,
			Callable:      module[name],
			Version:       "1.0.0",
		}
		if ok, err := r.Register(rec); err == nil && ok {
			count++
		}
	}
	return count
}

// RecordInvocation updates per-method call counters (spec's MetricsRecorder,
// §2), grounded on orchestrator/registry/metrics.py#MetricsService.wrap_execute.
// Kept on Registry (rather than a separate global) since stats are naturally
// keyed by the same full_key the registry already owns.
func (r *Registry) RecordInvocation(fullKey string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stats[fullKey]
	if st == nil {
		st = &methodStats{}
		r.stats[fullKey] = st
	}
	st.Calls++
	st.TotalTime += d
	st.LastDuration = d
	if err != nil {
		st.Errors++
		st.LastError = err.Error()
	}
}

// Stats exports the aggregate counters for the describe/list CLI surface,
// supplementing spec.md per original_source/orchestrator/registry/metrics.py#export.
type Stats struct {
	Calls        int64
	Errors       int64
	SuccessRate  float64
	TotalTime    time.Duration
	LastError    string
	LastDuration time.Duration
}

func (r *Registry) Stats(fullKey string) (Stats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stats[fullKey]
	if !ok {
		return Stats{}, false
	}
	rate := 1.0
	if st.Calls > 0 {
		rate = float64(st.Calls-st.Errors) / float64(st.Calls)
	}
	return Stats{
		Calls:        st.Calls,
		Errors:       st.Errors,
		SuccessRate:  rate,
		TotalTime:    st.TotalTime,
		LastError:    st.LastError,
		LastDuration: st.LastDuration,
	}, true
}

// Refresh clears the catalog and re-runs scanners, emitting
// after_registry_refresh. Callers typically supply the same scan closures they
// used at startup.
func (r *Registry) Refresh(rescan func(*Registry)) {
	r.mu.Lock()
	r.byFull = make(map[string]Record)
	r.byComponent = make(map[string]map[string]map[string]Record)
	r.mu.Unlock()

	if rescan != nil {
		rescan(r)
	}
	r.hooks.Emit("after_registry_refresh", nil)
}
