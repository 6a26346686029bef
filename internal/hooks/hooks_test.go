package hooks

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversToHandlersInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int
	b.On(EventBeforeStep, func(any) error { order = append(order, 1); return nil })
	b.On(EventBeforeStep, func(any) error { order = append(order, 2); return nil })

	b.Emit(EventBeforeStep, nil)
	assert.Equal(t, []int{1, 2}, order)
}

func TestEmitIsolatesHandlerErrorsFromSiblings(t *testing.T) {
	b := New()
	var secondRan bool
	b.On(EventOnFailure, func(any) error { return errors.New("boom") })
	b.On(EventOnFailure, func(any) error { secondRan = true; return nil })

	b.Emit(EventOnFailure, nil)
	assert.True(t, secondRan)

	stats := b.Stats()[EventOnFailure]
	assert.Equal(t, int64(1), stats.ErrorCount)
	assert.Equal(t, int64(2), stats.CallCount)
}

func TestEmitRecoversFromHandlerPanic(t *testing.T) {
	b := New()
	var ranAfterPanic bool
	b.On(EventAfterStep, func(any) error { panic("kaboom") })
	b.On(EventAfterStep, func(any) error { ranAfterPanic = true; return nil })

	require.NotPanics(t, func() { b.Emit(EventAfterStep, nil) })
	assert.True(t, ranAfterPanic)
	assert.Equal(t, int64(1), b.Stats()[EventAfterStep].ErrorCount)
}

func TestStatsTracksHandlerCount(t *testing.T) {
	b := New()
	b.On(EventBeforeFlow, func(any) error { return nil })
	b.On(EventBeforeFlow, func(any) error { return nil })

	assert.Equal(t, 2, b.Stats()[EventBeforeFlow].HandlerCount)
}

func TestClearRemovesHandlersForOneEvent(t *testing.T) {
	b := New()
	called := false
	b.On(EventBeforeFlow, func(any) error { called = true; return nil })
	b.Clear(EventBeforeFlow)

	b.Emit(EventBeforeFlow, nil)
	assert.False(t, called)
}

func TestClearWithEmptyEventRemovesEverything(t *testing.T) {
	b := New()
	aCalled, bCalled := false, false
	b.On(EventBeforeFlow, func(any) error { aCalled = true; return nil })
	b.On(EventAfterFlow, func(any) error { bCalled = true; return nil })
	b.Clear("")

	b.Emit(EventBeforeFlow, nil)
	b.Emit(EventAfterFlow, nil)
	assert.False(t, aCalled)
	assert.False(t, bCalled)
}

func TestEmitIsSafeForConcurrentUse(t *testing.T) {
	b := New()
	b.On(EventBeforeStep, func(any) error { return nil })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Emit(EventBeforeStep, nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), b.Stats()[EventBeforeStep].CallCount)
}
