package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/warden/pkg/warden/policy"
	"github.com/jamesainslie/warden/pkg/warden/probe"
)

func sampleReport() *Report {
	return &Report{
		Snapshot: probe.Snapshot{
			TotalMemory:     4096 * 1024 * 1024,
			AvailableMemory: 2048 * 1024 * 1024,
			CPUCores:        2,
		},
		Config: policy.Config{
			Workers:        5,
			RequestTimeout: 30,
			PoolSize:       20,
			RecycleAfter:   0,
			Tier:           policy.TierOptimal,
			Viable:         true,
		},
	}
}

func format(t *testing.T, name string, r *Report) string {
	t.Helper()
	f, err := Get(name)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	return buf.String()
}

func TestRegistry(t *testing.T) {
	names := Available()
	assert.Contains(t, names, "env")
	assert.Contains(t, names, "json")
	assert.Contains(t, names, "yaml")
	assert.Contains(t, names, "pretty")

	_, err := Get("nonexistent")
	assert.Error(t, err)
}

func TestEnvFormatter(t *testing.T) {
	out := format(t, "env", sampleReport())

	assert.Contains(t, out, "WORKER_COUNT=5\n")
	assert.Contains(t, out, "WORKER_TIMEOUT=30\n")
	assert.Contains(t, out, "POOL_SIZE=20\n")
	assert.Contains(t, out, "RECYCLE_AFTER=0\n")
	assert.Contains(t, out, "CONFIG_TIER=optimal\n")
	assert.Contains(t, out, "CONFIG_VIABLE=true\n")
}

func TestJSONFormatter(t *testing.T) {
	out := format(t, "json", sampleReport())

	var decoded struct {
		Snapshot struct {
			AvailableMB int64 `json:"available_mb"`
			CPUCores    int   `json:"cpu_cores"`
		} `json:"snapshot"`
		Config struct {
			Workers int    `json:"workers"`
			Tier    string `json:"tier"`
			Viable  bool   `json:"viable"`
		} `json:"config"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))

	assert.Equal(t, int64(2048), decoded.Snapshot.AvailableMB)
	assert.Equal(t, 2, decoded.Snapshot.CPUCores)
	assert.Equal(t, 5, decoded.Config.Workers)
	assert.Equal(t, "optimal", decoded.Config.Tier)
	assert.True(t, decoded.Config.Viable)
}

func TestYAMLFormatter(t *testing.T) {
	out := format(t, "yaml", sampleReport())

	var decoded map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))

	assert.Equal(t, 5, decoded["config"]["workers"])
	assert.Equal(t, "optimal", decoded["config"]["tier"])
	assert.Equal(t, 2, decoded["snapshot"]["cpu_cores"])
}

func TestPrettyFormatter(t *testing.T) {
	out := format(t, "pretty", sampleReport())

	assert.Contains(t, out, "Workers")
	assert.Contains(t, out, "5")
	assert.Contains(t, out, "optimal")
	assert.Contains(t, out, "disabled", "zero recycle threshold renders as disabled")
}

func TestPrettyFormatter_NotViable(t *testing.T) {
	r := sampleReport()
	r.Config = policy.Config{
		Workers:        1,
		RequestTimeout: 180,
		PoolSize:       2,
		RecycleAfter:   100,
		Tier:           policy.TierNotViable,
		Viable:         false,
	}

	out := format(t, "pretty", r)
	assert.Contains(t, out, "Below minimum memory")
}

func TestPrettyFormatter_Degraded(t *testing.T) {
	r := sampleReport()
	r.Snapshot.Degraded = true

	out := format(t, "pretty", r)
	assert.Contains(t, out, "fallback")
}
