// Package config loads the externally owned engine configuration:
// storage paths, learning thresholds, guardrails, and the feature
// toggle. The engine itself never reads ambient state; everything is
// passed in through this struct.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Enabled gates the whole engine. Disabled, every check returns
	// ask_owner and the analyzer never runs.
	Enabled bool `yaml:"enabled"`

	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Learning   LearningConfig   `yaml:"learning"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type StorageConfig struct {
	DecisionLog string `yaml:"decision_log"`
	RulesStore  string `yaml:"rules_store"`
}

type LearningConfig struct {
	MinObservations         int     `yaml:"min_observations"`
	ConfidenceThreshold     float64 `yaml:"confidence_threshold"`
	MaxPatternDimensions    int     `yaml:"max_pattern_dimensions"`
	AnalysisWindowDays      int     `yaml:"analysis_window_days"`
	AnalysisTriggerInterval int     `yaml:"analysis_trigger_interval"`
}

type GuardrailsConfig struct {
	NeverAutomate          []string `yaml:"never_automate"`
	MaxActiveRules         int      `yaml:"max_active_rules"`
	MaxAutoDecisionsPerDay int      `yaml:"max_auto_decisions_per_day"`
	MaxAutoDecisionsTotal  int      `yaml:"max_auto_decisions_total"`
	ReConfirmationInterval int      `yaml:"re_confirmation_interval"`
	CooldownAfterDecline   int      `yaml:"cooldown_after_decline"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Enabled: true,
		Server:  ServerConfig{Addr: "127.0.0.1:8385"},
		Storage: StorageConfig{
			DecisionLog: "data/decisions.jsonl",
			RulesStore:  "data/rules.json",
		},
		Learning: LearningConfig{
			MinObservations:         10,
			ConfidenceThreshold:     0.80,
			MaxPatternDimensions:    3,
			AnalysisWindowDays:      30,
			AnalysisTriggerInterval: 10,
		},
		Guardrails: GuardrailsConfig{
			MaxActiveRules:         20,
			MaxAutoDecisionsPerDay: 50,
			MaxAutoDecisionsTotal:  500,
			ReConfirmationInterval: 100,
			CooldownAfterDecline:   20,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML config file over the defaults and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Storage.DecisionLog == "" {
		return fmt.Errorf("storage.decision_log is required")
	}
	if c.Storage.RulesStore == "" {
		return fmt.Errorf("storage.rules_store is required")
	}
	if c.Learning.MinObservations < 1 {
		return fmt.Errorf("learning.min_observations must be >= 1, got %d", c.Learning.MinObservations)
	}
	if c.Learning.ConfidenceThreshold < 0 || c.Learning.ConfidenceThreshold > 1 {
		return fmt.Errorf("learning.confidence_threshold must be in [0,1], got %v", c.Learning.ConfidenceThreshold)
	}
	if c.Learning.MaxPatternDimensions < 1 || c.Learning.MaxPatternDimensions > 6 {
		return fmt.Errorf("learning.max_pattern_dimensions must be in [1,6], got %d", c.Learning.MaxPatternDimensions)
	}
	if c.Learning.AnalysisWindowDays < 1 {
		return fmt.Errorf("learning.analysis_window_days must be >= 1, got %d", c.Learning.AnalysisWindowDays)
	}
	if c.Learning.AnalysisTriggerInterval < 1 {
		return fmt.Errorf("learning.analysis_trigger_interval must be >= 1, got %d", c.Learning.AnalysisTriggerInterval)
	}
	if c.Guardrails.CooldownAfterDecline < 0 {
		return fmt.Errorf("guardrails.cooldown_after_decline must be >= 0, got %d", c.Guardrails.CooldownAfterDecline)
	}
	return nil
}
