package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountersAccumulateIndependently(t *testing.T) {
	r := New(time.Now())
	r.StepStarted()
	r.StepStarted()
	r.StepSucceeded()
	r.StepFailed()
	r.StepSkipped()
	r.CacheHit()
	r.CacheMiss()
	r.StaleHit()

	s := r.Summary(time.Now())
	assert.Equal(t, int64(2), s.StepsStarted)
	assert.Equal(t, int64(1), s.StepsSucceeded)
	assert.Equal(t, int64(1), s.StepsFailed)
	assert.Equal(t, int64(1), s.StepsSkipped)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(1), s.CacheMisses)
	assert.Equal(t, int64(1), s.StaleHits)
}

func TestCacheHitRateIsComputedFromHitsAndMisses(t *testing.T) {
	r := New(time.Now())
	r.CacheHit()
	r.CacheHit()
	r.CacheHit()
	r.CacheMiss()

	s := r.Summary(time.Now())
	assert.InDelta(t, 0.75, s.CacheHitRate, 0.0001)
}

func TestCacheHitRateIsZeroWithNoSamples(t *testing.T) {
	r := New(time.Now())
	s := r.Summary(time.Now())
	assert.Zero(t, s.CacheHitRate)
}

func TestSummaryElapsedReflectsStartTime(t *testing.T) {
	start := time.Now()
	r := New(start)
	later := start.Add(5 * time.Second)

	s := r.Summary(later)
	assert.Equal(t, 5*time.Second, s.Elapsed)
}

func TestObserveDurationFeedsMeanDuration(t *testing.T) {
	r := New(time.Now())
	r.ObserveDuration(1 * time.Second)
	r.ObserveDuration(3 * time.Second)

	s := r.Summary(time.Now())
	assert.Equal(t, 2*time.Second, s.MeanDuration)
}
