package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpster/internal/testutil"
	"github.com/dumpster/pkg/dumpster"
	"github.com/dumpster/pkg/errors"
	"github.com/dumpster/pkg/utils"
)

func TestLoad_DefaultValues(t *testing.T) {
	configFile := testutil.TempFileWithName(t, "dumpster.yaml", `
log:
  level: debug
`)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, dumpster.DefaultDumpsterCapacity, cfg.Collector.DumpsterCapacity)
	assert.Equal(t, dumpster.DefaultTruckThreshold, cfg.Collector.TruckThreshold)
	assert.Equal(t, dumpster.DefaultLiveRatio, cfg.Collector.LiveRatio)
	assert.True(t, cfg.Collector.Automatic)
	assert.False(t, cfg.Collector.Timing)
	assert.Equal(t, 8, cfg.Stress.Workers)
	assert.Equal(t, 3, cfg.Stress.Fanout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_CustomValues(t *testing.T) {
	configFile := testutil.TempFileWithName(t, "dumpster.yaml", `
collector:
  dumpster_capacity: 16
  truck_threshold: 1024
  live_ratio: 0.25
  shards: 8
  automatic: false
  timing: true
stress:
  workers: 4
  operations: 500
  nodes: 32
  fanout: 2
  seed: 42
  lock_ratio: 0.5
log:
  level: warn
  output_path: /tmp/dumpster.log
`)

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Collector.DumpsterCapacity)
	assert.Equal(t, 1024, cfg.Collector.TruckThreshold)
	assert.Equal(t, 0.25, cfg.Collector.LiveRatio)
	assert.Equal(t, 8, cfg.Collector.Shards)
	assert.False(t, cfg.Collector.Automatic)
	assert.True(t, cfg.Collector.Timing)
	assert.Equal(t, 4, cfg.Stress.Workers)
	assert.Equal(t, 500, cfg.Stress.Operations)
	assert.Equal(t, 32, cfg.Stress.Nodes)
	assert.Equal(t, 2, cfg.Stress.Fanout)
	assert.Equal(t, int64(42), cfg.Stress.Seed)
	assert.Equal(t, 0.5, cfg.Stress.LockRatio)
	assert.Equal(t, "/tmp/dumpster.log", cfg.Log.OutputPath)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DUMPSTER_COLLECTOR_SHARDS", "16")
	t.Setenv("DUMPSTER_STRESS_WORKERS", "3")

	configFile := testutil.TempFileWithName(t, "dumpster.yaml", `
stress:
  workers: 12
`)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Collector.Shards)
	assert.Equal(t, 3, cfg.Stress.Workers)
}

func TestLoad_InvalidCapacity(t *testing.T) {
	configFile := testutil.TempFileWithName(t, "dumpster.yaml", `
collector:
  dumpster_capacity: 0
`)

	_, err := Load(configFile)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Contains(t, err.Error(), "dumpster capacity must be at least 1")
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/dumpster.yaml")
	// Should not return error, use defaults
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MalformedFile(t *testing.T) {
	configFile := testutil.TempFileWithName(t, "dumpster.yaml", "collector: [unterminated")

	_, err := Load(configFile)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader("yaml", []byte(`
collector:
  live_ratio: 2
stress:
  nodes: 7
`))
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Collector.LiveRatio)
	assert.Equal(t, 7, cfg.Stress.Nodes)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"negative threshold", func(c *Config) { c.Collector.TruckThreshold = -1 }, "truck threshold"},
		{"negative ratio", func(c *Config) { c.Collector.LiveRatio = -0.1 }, "live ratio"},
		{"negative shards", func(c *Config) { c.Collector.Shards = -4 }, "shards"},
		{"no workers", func(c *Config) { c.Stress.Workers = 0 }, "stress workers"},
		{"no nodes", func(c *Config) { c.Stress.Nodes = 0 }, "stress nodes"},
		{"no fanout", func(c *Config) { c.Stress.Fanout = 0 }, "stress fanout"},
		{"lock ratio above one", func(c *Config) { c.Stress.LockRatio = 1.5 }, "lock ratio"},
		{"unknown level", func(c *Config) { c.Log.Level = "trace" }, "unsupported log level"},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidInput, errors.GetErrorCode(err))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestCollectorConfig_Options(t *testing.T) {
	cfg := Default().Collector
	cfg.DumpsterCapacity = 12
	cfg.Shards = 3
	cfg.Automatic = false
	cfg.Timing = true

	c := dumpster.NewCollector(append(cfg.Options(), dumpster.WithLogger(&utils.NullLogger{}))...)
	opts := c.Options()
	assert.Equal(t, 12, opts.DumpsterCapacity)
	assert.Equal(t, 4, opts.Shards)
	assert.True(t, opts.Timing)
	assert.Equal(t, dumpster.Manual, opts.Policy)

	cfg.Automatic = true
	cfg.TruckThreshold = 100
	cfg.LiveRatio = 1
	opts = dumpster.NewCollector(cfg.Options()...).Options()
	assert.Equal(t, dumpster.AdaptivePolicy{MinPending: 100, LiveRatio: 1}, opts.Policy)
}

func TestLogConfig_NewLogger(t *testing.T) {
	path := testutil.TempDir(t) + "/logs/dumpster.log"
	lc := LogConfig{Level: "warn", OutputPath: path}

	logger, err := lc.NewLogger()
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept %d", 1)
	assert.NotContains(t, testutil.ReadFile(t, path), "dropped")
	assert.Contains(t, testutil.ReadFile(t, path), "kept 1")

	var buf bytes.Buffer
	assert.False(t, utils.Enabled(utils.NewDefaultLogger(utils.ParseLogLevel(lc.Level), &buf), utils.LevelInfo))
}
