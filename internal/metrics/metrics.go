// Package metrics implements the process-wide slice of the spec's
// MetricsRecorder (spec §2): totals across an entire run (steps executed,
// cache hits/misses, failures, wall-clock), as distinct from the per-method
// call counters that internal/methodregistry.Registry already tracks keyed by
// full_key. Splitting it this way avoids duplicating the registry's
// existing RecordInvocation/Stats bookkeeping: Registry answers "how is
// component.method.engine doing", this package answers "how is the run
// doing" — the Scheduler reports into both.
//
// No pack library provides a generic non-HTTP counter/gauge registry (the
// examples' instrumentation is all tied to an HTTP exporter), so this is
// stdlib sync/atomic, recorded as a stdlib-justified component in DESIGN.md.
// Grounded on the run-level aggregate counters of
// original_source/orchestrator/registry/metrics.py#MetricsService.summary.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Recorder accumulates run-level counters. Zero value is ready to use.
type Recorder struct {
	stepsStarted   int64
	stepsSucceeded int64
	stepsFailed    int64
	stepsSkipped   int64
	cacheHits      int64
	cacheMisses    int64
	staleHits      int64

	mu        sync.Mutex
	started   time.Time
	durations []time.Duration
}

// New constructs a Recorder, stamping the run start with now (the caller
// supplies it; this package does not call time.Now() itself).
func New(now time.Time) *Recorder {
	return &Recorder{started: now}
}

func (r *Recorder) StepStarted()   { atomic.AddInt64(&r.stepsStarted, 1) }
func (r *Recorder) StepSucceeded() { atomic.AddInt64(&r.stepsSucceeded, 1) }
func (r *Recorder) StepFailed()    { atomic.AddInt64(&r.stepsFailed, 1) }
func (r *Recorder) StepSkipped()   { atomic.AddInt64(&r.stepsSkipped, 1) }
func (r *Recorder) CacheHit()      { atomic.AddInt64(&r.cacheHits, 1) }
func (r *Recorder) CacheMiss()     { atomic.AddInt64(&r.cacheMisses, 1) }
func (r *Recorder) StaleHit()      { atomic.AddInt64(&r.staleHits, 1) }

// ObserveDuration records one step's wall-clock execution time.
func (r *Recorder) ObserveDuration(d time.Duration) {
	r.mu.Lock()
	r.durations = append(r.durations, d)
	r.mu.Unlock()
}

// Summary is the run-level snapshot (spec §2 "observability surface").
type Summary struct {
	StepsStarted   int64
	StepsSucceeded int64
	StepsFailed    int64
	StepsSkipped   int64
	CacheHits      int64
	CacheMisses    int64
	StaleHits      int64
	CacheHitRate   float64
	Elapsed        time.Duration
	MeanDuration   time.Duration
}

// Summary computes a point-in-time snapshot relative to now.
func (r *Recorder) Summary(now time.Time) Summary {
	hits := atomic.LoadInt64(&r.cacheHits)
	misses := atomic.LoadInt64(&r.cacheMisses)

	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	r.mu.Lock()
	var sum time.Duration
	for _, d := range r.durations {
		sum += d
	}
	mean := time.Duration(0)
	if n := len(r.durations); n > 0 {
		mean = sum / time.Duration(n)
	}
	r.mu.Unlock()

	return Summary{
		StepsStarted:   atomic.LoadInt64(&r.stepsStarted),
		StepsSucceeded: atomic.LoadInt64(&r.stepsSucceeded),
		StepsFailed:    atomic.LoadInt64(&r.stepsFailed),
		StepsSkipped:   atomic.LoadInt64(&r.stepsSkipped),
		CacheHits:      hits,
		CacheMisses:    misses,
		StaleHits:      atomic.LoadInt64(&r.staleHits),
		CacheHitRate:   rate,
		Elapsed:        now.Sub(r.started),
		MeanDuration:   mean,
	}
}
