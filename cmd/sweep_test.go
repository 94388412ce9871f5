package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sweepConfig = `
service:
  sweep_interval_seconds: 0
store:
  driver: memory
plants:
  - id: p1
    name: Solar One
    type: Solar
    capacity_mw: 40
  - id: p2
    name: Wind Two
    type: Wind
    capacity_mw: 25
`

func TestSweepCommandPrintsResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sweepConfig), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"sweep", "-c", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, Execute())

	var res struct {
		PlantsChecked int `json:"plants_checked"`
		NoActionCount int `json:"no_action_count"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 2, res.PlantsChecked)
	assert.Equal(t, 2, res.NoActionCount)
}

func TestSignalCommandRejectsUnknownConfig(t *testing.T) {
	rootCmd.SetArgs([]string{"signal", "p1", "curtailment", "-c", filepath.Join(t.TempDir(), "missing.yaml")})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	rootCmd.SilenceUsage = true
	assert.Error(t, Execute())
}
