package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/No1412lee/il2cpp-plus/internal/report"
)

// resetFlags restores every flag to its default; cobra keeps values
// between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version dev")
	assert.Contains(t, out, "Go Version:")
}

func TestGenScanRuns(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "liveness.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
scan:
  workers: 3
database:
  type: sqlite
  path: `+filepath.Join(dir, "runs.db")+`
log:
  level: error
`), 0o644))
	heap := filepath.Join(dir, "heap.json.gz")

	out, err := execute(t, "-c", configFile, "gen", "-o", heap, "--objects", "300", "--owners", "4", "--seed", "7")
	require.NoError(t, err)
	assert.Contains(t, out, heap)

	outDir := filepath.Join(dir, "out")
	_, err = execute(t, "-c", configFile, "scan", "-s", heap, "--db", "-o", outDir, "--partition", "batched", "--top", "2")
	require.NoError(t, err)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	runID := entries[0].Name()

	data, err := os.ReadFile(filepath.Join(outDir, runID, "summary.json"))
	require.NoError(t, err)
	var s report.Summary
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, report.ModeStatics, s.Mode)
	assert.Positive(t, s.Reported)
	assert.LessOrEqual(t, s.Reported, int64(300))
	assert.Len(t, s.Classes, 2)
	require.NotNil(t, s.Pass)
	assert.Equal(t, 3, s.Pass.Workers)
	assert.Equal(t, "batched", s.Pass.Partition)

	out, err = execute(t, "-c", configFile, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "succeeded")

	out, err = execute(t, "-c", configFile, "runs", "show", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "Mode:       statics")
	assert.Contains(t, out, "Game.")

	_, err = execute(t, "-c", configFile, "runs", "show", "missing")
	assert.Error(t, err)
}

func TestScan_RootList(t *testing.T) {
	dir := t.TempDir()
	heap := filepath.Join(dir, "heap.yaml")
	require.NoError(t, os.WriteFile(heap, []byte(`
classes:
  - name: Node
    fields:
      - {name: next, kind: class, type: Node}
objects:
  - {id: 1, class: Node, refs: {next: 2}}
  - {id: 2, class: Node, refs: {next: 3}}
  - {id: 3, class: Node}
roots: [1]
`), 0o644))

	out, err := execute(t, "scan", "-s", heap, "--mode", "root", "--list", "-o", "", "--hide-system", "--app-prefix", "Game.")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, strings.Fields(out))
}

func TestScan_InvalidFlags(t *testing.T) {
	_, err := execute(t, "scan", "-s", "heap.yaml", "--partition", "striped")
	assert.Error(t, err)

	_, err = execute(t, "scan", "-s", filepath.Join(t.TempDir(), "none.yaml"), "--partition", "sharded")
	assert.Error(t, err)
}

func TestPprofFlags(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "--pprof", "--pprof-dir", dir, "--pprof-profiles", "heap,goroutine", "version")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = execute(t, "--pprof", "--pprof-mode", "socket", "version")
	assert.Error(t, err)
}
