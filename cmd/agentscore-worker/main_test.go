package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentscore/internal/clock"
	"agentscore/internal/config"
	"agentscore/internal/jsonx"
	"agentscore/internal/lock"
	"agentscore/internal/state"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", ""))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestStatusWithoutState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	out, err := execute(t, "status", "--state", path)
	require.NoError(t, err)
	assert.Contains(t, out, "has not run yet")
}

func TestStatusReadsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	snap := state.Defaults("0xabc", time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	snap.Reputation = 61
	snap.TasksCompleted = 4
	snap.TotalRepGained = 11
	snap.TotalPayout = "2.00"
	data, err := jsonx.MarshalIndentLine(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out, err := execute(t, "status", "--state", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Agent 0xabc")
	assert.Contains(t, out, "tasks completed: 4")
	assert.Contains(t, out, "61/100")
	assert.Contains(t, out, "total payout:    2.00")
}

func TestStatusRejectsCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := execute(t, "status", "--state", path)
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "status must not quarantine the file")
}

func TestBuildAppHoldsStateLock(t *testing.T) {
	cfg := config.Defaults()
	cfg.StatePath = filepath.Join(t.TempDir(), "nested", "state.json")
	cfg.StatusAddr = ""
	cfg.MoltbookEnabled = false
	cfg.Observability.Metrics.Enabled = false

	first, err := buildApp(cfg, clock.Real())
	require.NoError(t, err)
	assert.Nil(t, first.status)
	assert.FileExists(t, cfg.StatePath+".lock")

	_, err = buildApp(cfg, clock.Real())
	require.ErrorIs(t, err, lock.ErrHeld)

	first.close()
	second, err := buildApp(cfg, clock.Real())
	require.NoError(t, err)
	second.close()
}

func TestBuildAppWiresStatusServer(t *testing.T) {
	cfg := config.Defaults()
	cfg.StatePath = filepath.Join(t.TempDir(), "state.json")
	cfg.MoltbookEnabled = false

	a, err := buildApp(cfg, clock.Real())
	require.NoError(t, err)
	defer a.close()
	assert.NotNil(t, a.status)
	assert.NotNil(t, a.controller)
}
