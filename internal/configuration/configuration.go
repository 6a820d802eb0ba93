package configuration

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig represents the complete application configuration.
type AppConfig struct {
	// Logger — logging settings.
	Logger LoggerConfig `mapstructure:"logger"`
	// Server — HTTP API settings.
	Server ServerConfig `mapstructure:"server"`
	// Weights — weight store settings.
	Weights WeightsConfig `mapstructure:"weights"`
	// Outcomes — outcome store settings.
	Outcomes OutcomesConfig `mapstructure:"outcomes"`
	// Trainer — weight fitting settings.
	Trainer TrainerConfig `mapstructure:"trainer"`
	// Scheduler — retrain loop settings.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig defines logging settings.
type LoggerConfig struct {
	// Level — log level: debug, info, warn, warning, error.
	Level string `mapstructure:"level"`
	// File — log file path; empty logs to stdout.
	File string `mapstructure:"file"`
	// MaxSizeMb — rotate the log file after this many megabytes.
	MaxSizeMb int `mapstructure:"max_size_mb"`
	// MaxBackups — rotated files to keep.
	MaxBackups int `mapstructure:"max_backups"`
}

// ServerConfig contains HTTP server parameters.
type ServerConfig struct {
	// Address — address and port the server listens on (e.g. ":8080").
	Address string `mapstructure:"address"`
}

// WeightsConfig defines the weight store.
type WeightsConfig struct {
	// Path — SQLite database file holding weight versions.
	Path string `mapstructure:"path"`
	// HistoryLimit — superseded versions retained per segment.
	HistoryLimit int `mapstructure:"history_limit"`
	// Roster — ordered agent identifiers; fixes feature order for
	// training and scoring alike.
	Roster []string `mapstructure:"roster"`
	// Defaults — hand-authored fallback weights per agent. Empty means an
	// equal share for every roster agent. Normalized at load.
	Defaults map[string]float64 `mapstructure:"defaults"`
}

// OutcomesConfig defines the outcome store the scheduler pulls from.
type OutcomesConfig struct {
	// Dsn — Postgres connection string for the outcome database.
	Dsn string `mapstructure:"dsn"`
	// LabelRules — path to the YAML file with CEL label rules. Optional
	// when the outcome table's label columns are authoritative.
	LabelRules string `mapstructure:"label_rules"`
}

// TrainerConfig defines fitting parameters.
type TrainerConfig struct {
	// MinSamples — labeled records required before a segment is fit.
	MinSamples int `mapstructure:"min_samples"`
	// LearningRate — gradient descent step size.
	LearningRate float64 `mapstructure:"learning_rate"`
	// Epochs — training passes over a segment's records.
	Epochs int `mapstructure:"epochs"`
	// L2 — ridge penalty.
	L2 float64 `mapstructure:"l2"`
}

// SchedulerConfig defines the retrain loop.
type SchedulerConfig struct {
	// Interval — time between scheduled retrain runs.
	Interval time.Duration `mapstructure:"interval"`
	// Window — recency window of outcome records per run.
	Window time.Duration `mapstructure:"window"`
	// MaxWeightDelta — gate cap on per-agent weight change for the
	// proxy-to-outcome transition.
	MaxWeightDelta float64 `mapstructure:"max_weight_delta"`
	// OverrideSampleRatio — sample multiple that lifts the delta cap.
	OverrideSampleRatio float64 `mapstructure:"override_sample_ratio"`
}

// Validate checks the correctness of the entire application configuration.
// Calls validation for each nested structure and returns the first
// detected error. Returns nil if the configuration is valid.
func (c *AppConfig) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Trainer.Validate(); err != nil {
		return err
	}
	return c.Scheduler.Validate()
}

// Validate checks the logger configuration.
func (l *LoggerConfig) Validate() error {
	if l.Level == "" {
		return errors.New("logger.level: must be specified")
	}
	valid := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !valid[strings.ToLower(l.Level)] {
		return fmt.Errorf("logger.level: unsupported level '%s'", l.Level)
	}
	return nil
}

// Validate checks the server configuration.
func (s *ServerConfig) Validate() error {
	if s.Address == "" {
		return errors.New("server.address: must be specified")
	}
	return nil
}

// Validate checks the weight store configuration.
func (w *WeightsConfig) Validate() error {
	if w.Path == "" {
		return errors.New("weights.path: must be specified")
	}
	if len(w.Roster) == 0 {
		return errors.New("weights.roster: at least one agent must be specified")
	}
	seen := make(map[string]bool, len(w.Roster))
	for _, agentID := range w.Roster {
		if agentID == "" {
			return errors.New("weights.roster: empty agent id")
		}
		if seen[agentID] {
			return fmt.Errorf("weights.roster: duplicate agent id '%s'", agentID)
		}
		seen[agentID] = true
	}
	for agentID, weight := range w.Defaults {
		if !seen[agentID] {
			return fmt.Errorf("weights.defaults: unknown agent id '%s'", agentID)
		}
		if weight < 0 {
			return fmt.Errorf("weights.defaults: negative weight for '%s'", agentID)
		}
	}
	return nil
}

// Validate checks the trainer configuration.
func (t *TrainerConfig) Validate() error {
	if t.MinSamples <= 0 {
		return errors.New("trainer.min_samples: must be positive")
	}
	if t.LearningRate <= 0 {
		return errors.New("trainer.learning_rate: must be positive")
	}
	if t.Epochs <= 0 {
		return errors.New("trainer.epochs: must be positive")
	}
	return nil
}

// Validate checks the scheduler configuration.
func (s *SchedulerConfig) Validate() error {
	if s.Interval <= 0 {
		return errors.New("scheduler.interval: must be positive")
	}
	if s.Window <= 0 {
		return errors.New("scheduler.window: must be positive")
	}
	if s.MaxWeightDelta <= 0 || s.MaxWeightDelta > 1 {
		return errors.New("scheduler.max_weight_delta: must be in (0, 1]")
	}
	return nil
}

// LoadConfig loads configuration from the specified file using Viper.
// Supports YAML format plus environment variable overrides (AutomaticEnv).
func LoadConfig(configPath string) (*AppConfig, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.max_size_mb", 100)
	viper.SetDefault("logger.max_backups", 5)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("weights.history_limit", 8)
	viper.SetDefault("trainer.min_samples", 50)
	viper.SetDefault("trainer.learning_rate", 0.5)
	viper.SetDefault("trainer.epochs", 300)
	viper.SetDefault("trainer.l2", 1e-4)
	viper.SetDefault("scheduler.interval", "168h")
	viper.SetDefault("scheduler.window", "4368h")
	viper.SetDefault("scheduler.max_weight_delta", 0.35)
	viper.SetDefault("scheduler.override_sample_ratio", 2.0)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config AppConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
