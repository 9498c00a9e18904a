// Package config aggregates every component's settings into one file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/dialogue"
	"github.com/danielpatrickdp/affect-tick/internal/logging"
	"github.com/danielpatrickdp/affect-tick/internal/memory"
	"github.com/danielpatrickdp/affect-tick/internal/oracle"
	"github.com/danielpatrickdp/affect-tick/internal/personality"
	"github.com/danielpatrickdp/affect-tick/internal/scheduler"
	"github.com/danielpatrickdp/affect-tick/internal/telemetry"
)

// #region config
// OracleConfig locates the reasoning oracle. An empty Addr runs without one;
// every decision is then a local fallback.
type OracleConfig struct {
	Addr  string             `yaml:"addr"`
	Guard oracle.GuardConfig `yaml:"guard"`
}

// Config is the full runtime configuration.
type Config struct {
	DBPath      string              `yaml:"db_path"`
	Log         logging.Config      `yaml:"log"`
	Telemetry   telemetry.Config    `yaml:"telemetry"`
	Affect      affect.Config       `yaml:"affect"`
	Personality personality.Weights `yaml:"personality"`
	Scheduler   scheduler.Config    `yaml:"scheduler"`
	Dialogue    dialogue.Config     `yaml:"dialogue"`
	Memory      memory.Config       `yaml:"memory"`
	Oracle      OracleConfig        `yaml:"oracle"`

	// Actions are capabilities the dispatcher accepts besides say, ask and observe.
	Actions []string `yaml:"actions"`
	// BroadcastContext is how many recent broadcasts accompany an oracle request.
	BroadcastContext int `yaml:"broadcast_context"`
}

// Default returns a configuration that runs without any file.
func Default() Config {
	return Config{
		DBPath:           "affect_tick.db",
		Log:              logging.DefaultConfig(),
		Telemetry:        telemetry.DefaultConfig(),
		Affect:           affect.DefaultConfig(),
		Personality:      personality.Default(),
		Scheduler:        scheduler.DefaultConfig(),
		Dialogue:         dialogue.DefaultConfig(),
		Memory:           memory.DefaultConfig(),
		Oracle:           OracleConfig{Addr: "localhost:50051", Guard: oracle.DefaultGuardConfig()},
		BroadcastContext: 5,
	}
}
// #endregion config

// #region overrides
// overrides are the settings that can come from the environment.
type overrides struct {
	DBPath       string `env:"TICK_DB"`
	OracleAddr   string `env:"ORACLE_ADDR"`
	LogLevel     string `env:"TICK_LOG_LEVEL"`
	LogJSON      *bool  `env:"TICK_LOG_JSON"`
	RulesPath    string `env:"TICK_RULES"`
	OTelEndpoint string `env:"TICK_OTEL_ENDPOINT"`
	OTelEnabled  string `env:"TICK_OTEL_ENABLED"`
}

// ApplyEnv overlays environment variables onto c.
func (c *Config) ApplyEnv() error {
	var o overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.DBPath, o.DBPath)
	set(&c.Oracle.Addr, o.OracleAddr)
	set(&c.Log.Level, o.LogLevel)
	set(&c.Dialogue.RulesPath, o.RulesPath)
	set(&c.Telemetry.Endpoint, o.OTelEndpoint)
	set(&c.Telemetry.Enabled, o.OTelEnabled)
	if o.LogJSON != nil {
		c.Log.JSON = *o.LogJSON
	}
	return nil
}
// #endregion overrides

// #region load
// Load reads path over the defaults and then applies the environment. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section and reports all failures together.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("config: db_path is empty"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	for _, v := range []interface{ Validate() error }{c.Affect, c.Personality, c.Scheduler, c.Dialogue, c.Memory} {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Oracle.Guard.Timeout <= 0 {
		errs = append(errs, errors.New("config: oracle guard timeout must be positive"))
	}
	if c.BroadcastContext < 0 {
		errs = append(errs, errors.New("config: broadcast_context negative"))
	}
	return errors.Join(errs...)
}
// #endregion load
