// Package config provides configuration management for the dumpster tools.
package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/dumpster/pkg/dumpster"
	"github.com/dumpster/pkg/errors"
	"github.com/dumpster/pkg/utils"
)

// EnvPrefix prefixes environment overrides, e.g. DUMPSTER_COLLECTOR_SHARDS.
const EnvPrefix = "DUMPSTER"

// Config holds all configuration for the application.
type Config struct {
	Collector CollectorConfig `mapstructure:"collector"`
	Stress    StressConfig    `mapstructure:"stress"`
	Log       LogConfig       `mapstructure:"log"`
}

// CollectorConfig holds cycle collector tuning.
type CollectorConfig struct {
	DumpsterCapacity int     `mapstructure:"dumpster_capacity"`
	TruckThreshold   int     `mapstructure:"truck_threshold"`
	LiveRatio        float64 `mapstructure:"live_ratio"`
	Shards           int     `mapstructure:"shards"` // 0 picks from GOMAXPROCS
	Automatic        bool    `mapstructure:"automatic"`
	Timing           bool    `mapstructure:"timing"`
}

// StressConfig holds stress harness parameters.
type StressConfig struct {
	Workers    int     `mapstructure:"workers"`
	Operations int     `mapstructure:"operations"` // per worker
	Nodes      int     `mapstructure:"nodes"`      // shared root table size
	Fanout     int     `mapstructure:"fanout"`     // max edges per node
	Seed       int64   `mapstructure:"seed"`
	LockRatio  float64 `mapstructure:"lock_ratio"` // share of nodes guarded by RWMutex instead of Mutex
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"` // empty logs to stdout
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("dumpster")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/dumpster")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			utils.GetGlobalLogger().Debug("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			utils.GetGlobalLogger().Debug("Config file %s not found, using defaults", configPath)
		} else {
			return nil, errors.Wrap(errors.CodeConfigError, "failed to read config file", err)
		}
	}

	return decode(v)
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, errors.Wrap(errors.CodeConfigError, "failed to read config", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.CodeConfigError, "failed to unmarshal config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.CodeConfigError, "config validation failed", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("collector.dumpster_capacity", dumpster.DefaultDumpsterCapacity)
	v.SetDefault("collector.truck_threshold", dumpster.DefaultTruckThreshold)
	v.SetDefault("collector.live_ratio", dumpster.DefaultLiveRatio)
	v.SetDefault("collector.shards", 0)
	v.SetDefault("collector.automatic", true)
	v.SetDefault("collector.timing", false)

	v.SetDefault("stress.workers", 8)
	v.SetDefault("stress.operations", 10000)
	v.SetDefault("stress.nodes", 64)
	v.SetDefault("stress.fanout", 3)
	v.SetDefault("stress.seed", 1)
	v.SetDefault("stress.lock_ratio", 0.25)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Collector.DumpsterCapacity < 1 {
		return errors.Newf(errors.CodeInvalidInput, "dumpster capacity must be at least 1, got %d", c.Collector.DumpsterCapacity)
	}
	if c.Collector.TruckThreshold < 0 {
		return errors.Newf(errors.CodeInvalidInput, "truck threshold must not be negative, got %d", c.Collector.TruckThreshold)
	}
	if c.Collector.LiveRatio < 0 {
		return errors.Newf(errors.CodeInvalidInput, "live ratio must not be negative, got %g", c.Collector.LiveRatio)
	}
	if c.Collector.Shards < 0 {
		return errors.Newf(errors.CodeInvalidInput, "shards must not be negative, got %d", c.Collector.Shards)
	}

	if c.Stress.Workers < 1 {
		return errors.New(errors.CodeInvalidInput, "stress workers must be at least 1")
	}
	if c.Stress.Nodes < 1 {
		return errors.New(errors.CodeInvalidInput, "stress nodes must be at least 1")
	}
	if c.Stress.Fanout < 1 {
		return errors.New(errors.CodeInvalidInput, "stress fanout must be at least 1")
	}
	if c.Stress.Operations < 0 {
		return errors.New(errors.CodeInvalidInput, "stress operations must not be negative")
	}
	if c.Stress.LockRatio < 0 || c.Stress.LockRatio > 1 {
		return errors.Newf(errors.CodeInvalidInput, "lock ratio must be within [0,1], got %g", c.Stress.LockRatio)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Newf(errors.CodeInvalidInput, "unsupported log level: %s", c.Log.Level)
	}
	return nil
}

// Options converts the collector section into collector options.
func (c *CollectorConfig) Options() []dumpster.Option {
	opts := []dumpster.Option{
		dumpster.WithDumpsterCapacity(c.DumpsterCapacity),
		dumpster.WithTruckThreshold(c.TruckThreshold),
		dumpster.WithLiveRatio(c.LiveRatio),
		dumpster.WithTiming(c.Timing),
	}
	if c.Shards > 0 {
		opts = append(opts, dumpster.WithShards(c.Shards))
	}
	if !c.Automatic {
		opts = append(opts, dumpster.WithPolicy(dumpster.Manual))
	}
	return opts
}

// NewLogger builds a logger from the log section.
func (c *LogConfig) NewLogger() (utils.Logger, error) {
	level := utils.ParseLogLevel(c.Level)
	if c.OutputPath == "" {
		return utils.NewDefaultLogger(level, os.Stdout), nil
	}
	logger, err := utils.NewFileLogger(level, c.OutputPath)
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfigError, "failed to open log file", err)
	}
	return logger, nil
}
