// Package hooks implements the HookBus (spec §4.11): named-event broadcast with
// per-handler error isolation and per-event stats.
//
// Grounded structurally on the teacher's
// internal/infrastructure/events/logging_publisher.go (per-handler isolation,
// serial dispatch) and functionally on
// pipeline/core/services/hook_manager.py (call/error/time stats per event) plus
// orchestrator/registry/hooks.py (the two registry-only events). The union of
// both original sources yields the 8 events spec.md names.
package hooks

import (
	"fmt"
	"sync"
	"time"

	"github.com/flowkit/pipelinectl/internal/logger"
)

// Event names the 8 broadcast points spec.md §4.11 defines.
type Event string

const (
	EventBeforeFlow             Event = "before_flow"
	EventAfterFlow               Event = "after_flow"
	EventBeforeStep             Event = "before_step"
	EventAfterStep               Event = "after_step"
	EventOnCacheHit             Event = "on_cache_hit"
	EventOnFailure               Event = "on_failure"
	EventAfterMethodRegistered   Event = "after_method_registered"
	EventAfterRegistryRefresh    Event = "after_registry_refresh"
)

// Handler receives the event payload. A non-nil return is counted as an error
// and logged, but never aborts delivery to sibling handlers nor the caller of
// Emit (testable property #9, hook isolation).
type Handler func(payload any) error

// Stats tracks per-event counters, mirroring
// pipeline/core/services/hook_manager.py#get_stats.
type Stats struct {
	HandlerCount int
	CallCount    int64
	ErrorCount   int64
	TotalTime    time.Duration
}

// Bus is the thread-safe HookBus.
type Bus struct {
	mu       sync.Mutex
	handlers map[Event][]Handler
	stats    map[Event]*Stats
	log      *logger.Logger
}

// New constructs an empty Bus that logs to a no-op logger until WithLogger
// sets one.
func New() *Bus {
	return &Bus{
		handlers: make(map[Event][]Handler),
		stats:    make(map[Event]*Stats),
		log:      logger.Noop(),
	}
}

// WithLogger returns a Bus that logs swallowed handler errors through log.
func (b *Bus) WithLogger(log *logger.Logger) *Bus {
	if log == nil {
		return b
	}
	b.mu.Lock()
	b.log = log
	b.mu.Unlock()
	return b
}

// On registers handler for event. Handlers run serially in registration order.
func (b *Bus) On(event Event, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
	b.ensureStats(event).HandlerCount++
}

// Emit dispatches payload to every handler registered for event, serially, in
// registration order. A handler panic or returned error is caught, logged, and
// counted — it never aborts delivery to later handlers nor propagates to the
// caller.
func (b *Bus) Emit(event Event, payload any) {
	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers[event]...)
	stats := b.ensureStats(event)
	log := b.log
	b.mu.Unlock()

	for _, h := range handlers {
		start := time.Now()
		err := safeInvoke(h, payload)
		elapsed := time.Since(start)

		b.mu.Lock()
		stats.CallCount++
		stats.TotalTime += elapsed
		if err != nil {
			stats.ErrorCount++
		}
		b.mu.Unlock()

		if err != nil && log != nil {
			log.Warn(fmt.Sprintf("hook handler for %q failed: %v", event, err))
		}
	}
}

func safeInvoke(h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(payload)
}

func (b *Bus) ensureStats(event Event) *Stats {
	st := b.stats[event]
	if st == nil {
		st = &Stats{}
		b.stats[event] = st
	}
	return st
}

// Stats returns a snapshot of per-event counters.
func (b *Bus) Stats() map[Event]Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[Event]Stats, len(b.stats))
	for ev, st := range b.stats {
		out[ev] = *st
	}
	return out
}

// Clear removes all handlers for event, or every event when event == "".
func (b *Bus) Clear(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if event == "" {
		b.handlers = make(map[Event][]Handler)
		return
	}
	delete(b.handlers, event)
}
