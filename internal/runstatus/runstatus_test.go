package runstatus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "status.json"))
	require.NoError(t, err)
	assert.Empty(t, c.All())
}

func TestSetPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")

	c, err := Open(path)
	require.NoError(t, err)

	entry := Entry{Status: "completed", LastRun: time.Now().UTC().Truncate(time.Second), StepCount: 3}
	require.NoError(t, c.Set("demo", entry))

	reopened, err := Open(path)
	require.NoError(t, err)

	got, ok := reopened.Get("demo")
	require.True(t, ok)
	assert.Equal(t, entry.Status, got.Status)
	assert.Equal(t, entry.StepCount, got.StepCount)
}

func TestSetOverwritesExistingEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	c, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, c.Set("demo", Entry{Status: "failed", FailedSteps: 2}))
	require.NoError(t, c.Set("demo", Entry{Status: "completed", FailedSteps: 0}))

	got, ok := c.Get("demo")
	require.True(t, ok)
	assert.Equal(t, "completed", got.Status)
	assert.Zero(t, got.FailedSteps)
}

func TestOpenRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}
