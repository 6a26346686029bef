package handle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/pipelinectl/internal/methodregistry"
)

func newRegistryWith(records ...methodregistry.Record) *methodregistry.Registry {
	reg := methodregistry.New(methodregistry.Config{}, nil, nil)
	for _, r := range records {
		if r.Callable == nil {
			r.Callable = methodregistry.InvocableFunc{Fn: func(map[string]any) (any, error) { return nil, nil }}
		}
		_, _ = reg.Register(r)
	}
	return reg
}

func TestFixedModeResolvesExactEngine(t *testing.T) {
	reg := newRegistryWith(methodregistry.Record{ComponentType: "extract", EngineType: "pandas", MethodName: "read", Version: "1.0.0"})
	h := NewFixed("extract", "read", "pandas", time.Second)

	rec, err := h.Resolve(reg)
	require.NoError(t, err)
	assert.Equal(t, "pandas", rec.EngineType)
}

func TestAutoModeCachesResolutionWithinTTL(t *testing.T) {
	reg := newRegistryWith(
		methodregistry.Record{ComponentType: "extract", EngineType: "pandas", MethodName: "read", Version: "1.0.0", Priority: 1},
	)
	h := NewAuto("extract", "read", "default", "", time.Hour)

	first, err := h.Resolve(reg)
	require.NoError(t, err)

	// Register a higher-priority candidate; cached resolution should still win
	// until Invalidate or TTL expiry.
	_, _ = reg.Register(methodregistry.Record{ComponentType: "extract", EngineType: "spark", MethodName: "read", Version: "1.0.0", Priority: 9})
	second, err := h.Resolve(reg)
	require.NoError(t, err)
	assert.Equal(t, first.EngineType, second.EngineType)

	h.Invalidate()
	third, err := h.Resolve(reg)
	require.NoError(t, err)
	assert.Equal(t, "spark", third.EngineType)
}

func TestResolveErrorIsNotCachedAsSuccess(t *testing.T) {
	reg := methodregistry.New(methodregistry.Config{}, nil, nil)
	h := NewAuto("extract", "missing", "default", "", time.Hour)

	_, err := h.Resolve(reg)
	assert.Error(t, err)
}

func TestPredictSignatureReflectsResolvedEngine(t *testing.T) {
	reg := newRegistryWith(methodregistry.Record{ComponentType: "extract", EngineType: "pandas", MethodName: "read", Version: "1.2.0", Priority: 3})
	h := NewAuto("extract", "read", "default", "", time.Hour)

	sig := h.PredictSignature(reg)
	assert.Equal(t, "read@pandas:1.2.0:3", sig)
}

func TestPredictSignatureReturnsUnknownMarkerOnFailure(t *testing.T) {
	reg := methodregistry.New(methodregistry.Config{}, nil, nil)
	h := NewAuto("extract", "missing", "default", "", time.Hour)

	sig := h.PredictSignature(reg)
	assert.Contains(t, sig, "unknown")
}

func TestIdentityReflectsModeAndResolutionState(t *testing.T) {
	fixed := NewFixed("extract", "read", "pandas", time.Second)
	assert.Equal(t, "extract.read@fixed:pandas", fixed.Identity())

	auto := NewAuto("extract", "read", "default", "", time.Hour)
	assert.Equal(t, "extract.read@unresolved", auto.Identity())
}
