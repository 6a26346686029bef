package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/pipelinectl/internal/logger"
)

func TestClearCacheOnEmptyCacheSucceeds(t *testing.T) {
	log, err := logger.New(logger.Options{Writer: new(bytes.Buffer)})
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	cmd := newRootCmd(log)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"clear-cache", "--cache-root", filepath.Join(t.TempDir(), "cache")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "cleared")
}

func TestListWithNoRegisteredMethodsPrintsNothing(t *testing.T) {
	log, err := logger.New(logger.Options{Writer: new(bytes.Buffer)})
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	cmd := newRootCmd(log)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"list", "--cache-root", filepath.Join(t.TempDir(), "cache")})

	require.NoError(t, cmd.Execute())
	assert.Empty(t, buf.String())
}

func TestDescribeUnknownMethodReturnsError(t *testing.T) {
	log, err := logger.New(logger.Options{Writer: new(bytes.Buffer)})
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	cmd := newRootCmd(log)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"describe", "extract", "read", "--cache-root", filepath.Join(t.TempDir(), "cache")})

	err = cmd.Execute()
	assert.Error(t, err)
}

func TestStatusWithNoRecordedRunsReportsEmpty(t *testing.T) {
	log, err := logger.New(logger.Options{Writer: new(bytes.Buffer)})
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	cmd := newRootCmd(log)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"status", "--cache-root", filepath.Join(t.TempDir(), "cache")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "no recorded runs")
}

func TestStatusForUnknownPipelineReportsNoRecordedRun(t *testing.T) {
	log, err := logger.New(logger.Options{Writer: new(bytes.Buffer)})
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	cmd := newRootCmd(log)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"status", "ghost", "--cache-root", filepath.Join(t.TempDir(), "cache")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "no recorded run")
}

func TestRunWithMissingConfigFileReturnsError(t *testing.T) {
	log, err := logger.New(logger.Options{Writer: new(bytes.Buffer)})
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	cmd := newRootCmd(log)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"run", filepath.Join(t.TempDir(), "missing.yaml")})

	assert.Error(t, cmd.Execute())
}
