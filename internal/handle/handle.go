// Package handle implements MethodHandle (spec §4.3): a per-step, per-method
// lazy binder that defers engine resolution until execution time and caches
// the result for a short TTL.
//
// Grounded on pipeline/core/handles/method_handle.py: fixed_engine short-circuit,
// TTL cache validity (a failed resolution still stamps resolved_at but never
// counts as a valid hit), and predict_signature's non-mutating prediction path.
package handle

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/flowkit/pipelinectl/internal/methodregistry"
)

// Mode selects how a handle resolves: policy-driven, or bound to a named
// engine.
type Mode int

const (
	ModeAuto Mode = iota
	ModeFixed
)

// resolution is the cached outcome of a successful or failed resolve attempt.
type resolution struct {
	record Record
	err    error
}

// Record is an alias of methodregistry.Record, the resolved record a handle
// caches; predict_signature formats "method@engine:version:priority" from it.
type Record = methodregistry.Record

// Handle is a MethodHandle. Construction is cheap and never touches the
// Registry (spec §4.3 "Handles are cheap").
type Handle struct {
	Component string
	Method    string
	Mode      Mode
	Fixed     string // engine name, when Mode == ModeFixed

	Strategy        string // selection strategy name for Mode == ModeAuto
	PreferredEngine string // optional, for engine_override via Strategy

	ttl time.Duration

	mu    sync.Mutex
	cache *lru.LRU[string, resolution]
}

const cacheKey = "resolved"

// New constructs a Handle. A ttl of zero or less selects the 5s default
// (spec §4.3). The HANDLE_RESOLVE_TTL environment variable is not read: the
// scheduler passes 0, so every handle it builds uses the 5s default.
func New(component, method string, mode Mode, fixedEngine string, ttl time.Duration) *Handle {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Handle{
		Component: component,
		Method:    method,
		Mode:      mode,
		Fixed:     fixedEngine,
		ttl:       ttl,
		cache:     lru.NewLRU[string, resolution](1, nil, ttl),
	}
}

// NewAuto constructs a policy-driven handle.
func NewAuto(component, method, strategy, preferredEngine string, ttl time.Duration) *Handle {
	h := New(component, method, ModeAuto, "", ttl)
	h.Strategy = strategy
	h.PreferredEngine = preferredEngine
	return h
}

// NewFixed constructs a handle bound to a specific engine.
func NewFixed(component, method, engine string, ttl time.Duration) *Handle {
	return New(component, method, ModeFixed, engine, ttl)
}

// Resolve returns the concrete Record this handle should execute against,
// reusing a cached result within TTL (spec §4.3).
func (h *Handle) Resolve(reg *methodregistry.Registry) (Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Mode == ModeFixed {
		rec, ok := reg.Lookup(h.Component + "::" + h.Fixed + "::" + h.Method)
		if ok {
			return rec, nil
		}
		// Fixed engine, but no exact full_key — fall back to a candidate
		// search scoped to that engine so registration order doesn't matter.
		return reg.Select(h.Component, h.Method, "engine_override", h.Fixed)
	}

	if cached, ok := h.cache.Get(cacheKey); ok {
		return cached.record, cached.err
	}

	rec, err := reg.Select(h.Component, h.Method, h.Strategy, h.PreferredEngine)
	h.cache.Add(cacheKey, resolution{record: rec, err: err})
	return rec, err
}

// PredictSignature returns "method@engine:version:priority" without mutating
// cache semantics beyond reuse (spec §4.3). On any resolution failure it
// returns a stable unknown marker rather than propagating the error, since
// callers use this purely to detect whether selection itself would change a
// step's signature.
func (h *Handle) PredictSignature(reg *methodregistry.Registry) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Mode == ModeFixed {
		rec, ok := reg.Lookup(h.Component + "::" + h.Fixed + "::" + h.Method)
		if ok {
			return fmt.Sprintf("%s@%s:%s:%d", h.Method, rec.EngineType, rec.Version, rec.Priority)
		}
		return fmt.Sprintf("%s@%s:unknown:0", h.Method, h.Fixed)
	}

	if cached, ok := h.cache.Get(cacheKey); ok && cached.err == nil {
		rec := cached.record
		return fmt.Sprintf("%s@%s:%s:%d", h.Method, rec.EngineType, rec.Version, rec.Priority)
	}

	rec, err := reg.Select(h.Component, h.Method, h.Strategy, h.PreferredEngine)
	if err != nil {
		return fmt.Sprintf("%s@unknown:unknown:0", h.Method)
	}
	return fmt.Sprintf("%s@%s:%s:%d", h.Method, rec.EngineType, rec.Version, rec.Priority)
}

// Invalidate clears the cache, forcing the next Resolve to re-select.
func (h *Handle) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache.Remove(cacheKey)
}

// Identity renders a short debug string, e.g. "comp.method@fixed:engine" or
// "comp.method@auto:engine" or "comp.method@unresolved".
func (h *Handle) Identity() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	base := h.Component + "." + h.Method
	if h.Mode == ModeFixed {
		return base + "@fixed:" + h.Fixed
	}
	if cached, ok := h.cache.Get(cacheKey); ok && cached.err == nil {
		return base + "@auto:" + cached.record.EngineType
	}
	return base + "@unresolved"
}
