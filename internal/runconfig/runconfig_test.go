package runconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aerugo/simcash/internal/runconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
ticks_per_day = 10
num_days = 1
rng_seed = 42
mode = "scenario"

[lsm]
enabled = true
max_cycle_length = 2
max_cycles_per_tick = 5
max_iterations = 100

[costs]
delay_cost_bps_per_tick = 1
deadline_penalty_cents = 500

[[agents]]
id = "A"
opening_balance_cents = 1000
payment_tree_file = "a.json"

[[agents]]
id = "B"
opening_balance_cents = 0
payment_tree_file = "b.json"
`

const samplePaymentTree = `{
  "type": "payment_tree",
  "root": {"is_action": true, "action": "Release"}
}`

func TestLoadConfig_ParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := runconfig.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cfg.TicksPerDay)
	require.Len(t, cfg.Agents, 2)
	assert.EqualValues(t, "A", cfg.Agents[0].ID)
	assert.True(t, cfg.LSM.Enabled)
}

func TestLoadTrees_ReadsPolicyJSON(t *testing.T) {
	dir := t.TempDir()
	treePath := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(treePath, []byte(samplePaymentTree), 0o644))

	cfg, err := runconfig.LoadConfig(writeConfigWithTree(t, dir, treePath))
	require.NoError(t, err)

	trees, err := runconfig.LoadTrees(cfg)
	require.NoError(t, err)
	require.Contains(t, trees, cfg.Agents[0].ID)
	assert.NotNil(t, trees[cfg.Agents[0].ID].Payment)
}

func writeConfigWithTree(t *testing.T, dir, treePath string) string {
	t.Helper()
	content := `
ticks_per_day = 5
num_days = 1
mode = "scenario"

[[agents]]
id = "A"
opening_balance_cents = 100
payment_tree_file = "` + treePath + `"
`
	path := filepath.Join(dir, "run2.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
