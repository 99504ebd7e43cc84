// Package config loads the demo binary's configuration: spf13/viper binds
// UNSHACLED_* environment variables and an optional YAML file onto a single
// struct. Nothing under internal/dag, internal/capsule, internal/priority,
// internal/modeldata or internal/task imports this package or Viper - the
// core accepts plain Go values.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// Config is the demo binary's top-level configuration.
type Config struct {
	Service    string           `mapstructure:"service"`
	HTTPAddr   string           `mapstructure:"http_addr"`
	Log        LogConfig        `mapstructure:"log"`
	Cron       CronConfig       `mapstructure:"cron"`
	Events     EventsConfig     `mapstructure:"events"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
}

// LogConfig controls telemetry.InitLogger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// CronConfig optionally registers a periodic demo task.
type CronConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Expression string `mapstructure:"expression"`
}

// EventsConfig optionally subscribes the demo task to a NATS subject.
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// ResilienceConfig configures the optional strict-mode closure failure
// policy (internal/resilience).
type ResilienceConfig struct {
	Strict      bool    `mapstructure:"strict"`
	MinSamples  int     `mapstructure:"min_samples"`
	FailureRate float64 `mapstructure:"failure_rate"`
}

// Load binds defaults, an optional YAML file at path (if non-empty and
// present), and UNSHACLED_-prefixed environment variables, in that
// precedence order (env overrides file overrides defaults).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("unshacled")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("service", "unshacledd")
	v.SetDefault("http_addr", ":8090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("cron.enabled", false)
	v.SetDefault("cron.expression", "*/30 * * * * *")
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.url", "nats://127.0.0.1:4222")
	v.SetDefault("events.subject", "unshacled.schedule")
	v.SetDefault("resilience.strict", false)
	v.SetDefault("resilience.min_samples", 5)
	v.SetDefault("resilience.failure_rate", 0.5)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			_, notFound := err.(viper.ConfigFileNotFoundError)
			if !notFound && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
