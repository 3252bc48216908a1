package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/entropic-void/voidsim/sim"
	"github.com/entropic-void/voidsim/sim/store"
)

const smallConfig = `
lattice: {x: 3, y: 3, z: 3}
seed: 7
coupling: {uniform: 0.05}
redistribution:
  cycles:
    - {a: 0, b: 1, c: 2, frequency: 1}
    - {a: 4, b: 9, c: 13, frequency: 2}
`

// execute runs a fresh command tree and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(smallConfig), 0o644))
	return path
}

// onlyRun returns the single run id stored under a file store directory.
func onlyRun(t *testing.T, dir string) string {
	t.Helper()
	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, des, 1)
	return des[0].Name()
}

func TestRun_PrintsReport(t *testing.T) {
	// GIVEN a small config and no store
	cfg := writeConfig(t)
	reportPath := filepath.Join(t.TempDir(), "report.yaml")

	// WHEN run for two steps
	out, err := execute(t, "run", "--config", cfg, "--dt", "0.05", "--t-end", "0.1", "--workers", "1", "--report-out", reportPath)

	// THEN the report is printed and saved
	require.NoError(t, err)
	assert.Contains(t, out, "=== Simulation Metrics ===")
	assert.Contains(t, out, "Steps                : 2\n")
	assert.Contains(t, out, "Lattice              : 3x3x3 (27 cells)")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var m sim.Metrics
	require.NoError(t, yaml.Unmarshal(data, &m))
	assert.Equal(t, int64(2), m.Steps)
	assert.Len(t, m.ModeFrequencies, 2)
}

func TestRun_CheckpointResumeInspect(t *testing.T) {
	for _, kind := range []string{"file", "sqlite"} {
		t.Run(kind, func(t *testing.T) {
			cfg := writeConfig(t)
			storePath := filepath.Join(t.TempDir(), "snapshots")
			if kind == "sqlite" {
				storePath += ".db"
			}
			storeArgs := []string{"--store", kind, "--store-path", storePath, "--workers", "1"}

			// GIVEN a run checkpointed after every step
			_, err := execute(t, append([]string{"run", "--config", cfg, "--dt", "0.05", "--t-end", "0.1", "--checkpoint-every", "1"}, storeArgs...)...)
			require.NoError(t, err)

			runID := findRunID(t, kind, storePath)

			// WHEN it is resumed to t=0.2
			out, err := execute(t, append([]string{"resume", "--run-id", runID, "--dt", "0.05", "--t-end", "0.2"}, storeArgs...)...)
			require.NoError(t, err)
			assert.Contains(t, out, "Steps                : 4\n")
			assert.Contains(t, out, "Run ID               : "+runID)

			// THEN the store lists the periodic and the final snapshots
			out, err = execute(t, append([]string{"inspect", "--run-id", runID}, storeArgs...)...)
			require.NoError(t, err)
			assert.Contains(t, out, "=== Snapshots of "+runID)
			for _, step := range []string{"\n1 ", "\n2 ", "\n4 "} {
				assert.Contains(t, out, step)
			}

			// and one snapshot can be reported on
			out, err = execute(t, append([]string{"inspect", "--run-id", runID, "--step", "2"}, storeArgs...)...)
			require.NoError(t, err)
			assert.Contains(t, out, "Steps                : 2\n")

			// and the run shows up in the run listing
			out, err = execute(t, append([]string{"inspect"}, storeArgs...)...)
			require.NoError(t, err)
			assert.Equal(t, "=== Runs ===\n"+runID+"\n", out)
		})
	}
}

// findRunID recovers the run id from the backend written by a run.
func findRunID(t *testing.T, kind, path string) string {
	t.Helper()
	if kind == "file" {
		return onlyRun(t, path)
	}
	st, err := store.Open(store.Kind(kind), path)
	require.NoError(t, err)
	defer st.Close()
	ids, err := st.Runs(t.Context())
	require.NoError(t, err)
	require.Len(t, ids, 1)
	return ids[0]
}

func TestResume_Errors(t *testing.T) {
	storePath := t.TempDir()

	_, err := execute(t, "resume", "--t-end", "1")
	assert.ErrorContains(t, err, "--run-id")

	_, err = execute(t, "resume", "--run-id", "nope", "--t-end", "1")
	assert.ErrorContains(t, err, "--store")

	_, err = execute(t, "resume", "--run-id", "nope", "--t-end", "1", "--store", "file", "--store-path", storePath)
	assert.Error(t, err)
}

func TestRootFlags_EnvironmentFallback(t *testing.T) {
	// GIVEN the store selected through the environment only
	cfg := writeConfig(t)
	storePath := t.TempDir()
	t.Setenv("VOIDSIM_STORE", "file")
	t.Setenv("VOIDSIM_STORE_PATH", storePath)

	// WHEN a run finishes
	_, err := execute(t, "run", "--config", cfg, "--dt", "0.05", "--t-end", "0.05")

	// THEN its final snapshot landed in the environment's store
	require.NoError(t, err)
	runID := onlyRun(t, storePath)
	_, err = os.Stat(filepath.Join(storePath, runID, "step-000000000001.yaml"))
	assert.NoError(t, err)
}

func TestRootFlags_Rejects(t *testing.T) {
	_, err := execute(t, "run", "--log", "loud")
	assert.ErrorContains(t, err, "invalid log level")

	_, err = execute(t, "run", "--store", "s3")
	assert.ErrorContains(t, err, "unknown store")

	t.Setenv("VOIDSIM_WORKERS", "many")
	_, err = execute(t, "run")
	assert.ErrorContains(t, err, "VOIDSIM_WORKERS")
}

func TestModes(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "modes", "--config", cfg)

	require.NoError(t, err)
	assert.Contains(t, out, "Conserves Cell Total : true")
	assert.Contains(t, out, "Mode 0   ω=1.000000")
	assert.Contains(t, out, "Mode 1   ω=2.000000")
	assert.Contains(t, out, "light/gravity")
}

func TestDominant(t *testing.T) {
	var v [sim.N]float64
	v[sim.FlatIndex(1, 2)] = -0.8
	v[sim.FlatIndex(4, 0)] = 0.6

	assert.Equal(t, "matter/weak -0.800, opposite-light/gravity +0.600", dominant(v))
}
