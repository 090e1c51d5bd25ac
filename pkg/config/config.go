// Package config loads the kernel constitution: floor thresholds,
// weighting penalties, routing mode, ledger and cooling paths, custom
// deny rules. The constitution document is YAML with environment
// overrides; its canonical hash is committed into every receipt.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/apexgov/core/pkg/canonicalize"
	"github.com/apexgov/core/pkg/floors"
	"github.com/apexgov/core/pkg/rules"
)

// Config is the full constitution document.
type Config struct {
	Mode            string        `yaml:"mode" json:"mode"`
	DeadlineSeconds int           `yaml:"deadline_seconds" json:"deadline_seconds"`
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	Ledger          LedgerConfig  `yaml:"ledger" json:"ledger"`
	Cooling         CoolingConfig `yaml:"cooling" json:"cooling"`
	Floors          FloorsConfig  `yaml:"floors" json:"floors"`
	Weights         WeightsConfig `yaml:"weights" json:"weights"`
	PatternsFile    string        `yaml:"patterns_file,omitempty" json:"patterns_file,omitempty"`
	Rules           []rules.Rule  `yaml:"rules,omitempty" json:"rules,omitempty"`
	Server          ServerConfig  `yaml:"server" json:"server"`
	SignerKeyID     string        `yaml:"signer_key_id" json:"signer_key_id"`
}

// LedgerConfig selects and locates the verdict ledger backend.
type LedgerConfig struct {
	Backend    string `yaml:"backend" json:"backend"` // "file" | "sqlite"
	Path       string `yaml:"path" json:"path"`
	QueueBound int    `yaml:"queue_bound" json:"queue_bound"`
}

// CoolingConfig locates the Phoenix-72 ledger.
type CoolingConfig struct {
	Path          string `yaml:"path" json:"path"`
	RetentionDays int    `yaml:"retention_days" json:"retention_days"`
}

// FloorsConfig carries the nine floor thresholds and the critical set.
type FloorsConfig struct {
	TruthThreshold float64  `yaml:"truth_threshold" json:"truth_threshold"`
	WitnessMinimum int      `yaml:"witness_minimum" json:"witness_minimum"`
	Peace2Penalty  float64  `yaml:"peace2_penalty" json:"peace2_penalty"`
	KappaMin       float64  `yaml:"kappa_min" json:"kappa_min"`
	OmegaMin       float64  `yaml:"omega_min" json:"omega_min"`
	OmegaMax       float64  `yaml:"omega_max" json:"omega_max"`
	GeniusMin      float64  `yaml:"genius_min" json:"genius_min"`
	Critical       []string `yaml:"critical" json:"critical"`
}

// WeightsConfig carries the apex pulse penalties.
type WeightsConfig struct {
	CriticalPenalty float64 `yaml:"critical_penalty" json:"critical_penalty"`
	DefaultPenalty  float64 `yaml:"default_penalty" json:"default_penalty"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Addr           string  `yaml:"addr" json:"addr"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// Default returns the built-in constitution.
func Default() *Config {
	return &Config{
		Mode:            "black_box",
		DeadlineSeconds: 30,
		LogLevel:        "INFO",
		Ledger: LedgerConfig{
			Backend:    "file",
			Path:       "data/verdicts.jsonl",
			QueueBound: 1024,
		},
		Cooling: CoolingConfig{
			Path:          "data/cooling.jsonl",
			RetentionDays: 30,
		},
		Floors: FloorsConfig{
			TruthThreshold: 0.99,
			WitnessMinimum: 3,
			Peace2Penalty:  0.25,
			KappaMin:       0.95,
			OmegaMin:       0.03,
			OmegaMax:       0.05,
			GeniusMin:      0.80,
			Critical:       []string{floors.F1Amanah, floors.F2Truth, floors.F9AntiHantu},
		},
		Weights: WeightsConfig{
			CriticalPenalty: 0.3,
			DefaultPenalty:  0.1,
		},
		Server: ServerConfig{
			Addr:           ":8787",
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		SignerKeyID: "apexgov-kernel",
	}
}

// Load reads the constitution from path (or returns the defaults when
// path is empty), applies environment overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APEXGOV_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("APEXGOV_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("APEXGOV_LEDGER_PATH"); v != "" {
		c.Ledger.Path = v
	}
	if v := os.Getenv("APEXGOV_LEDGER_BACKEND"); v != "" {
		c.Ledger.Backend = v
	}
	if v := os.Getenv("APEXGOV_COOLING_PATH"); v != "" {
		c.Cooling.Path = v
	}
	if v := os.Getenv("APEXGOV_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("APEXGOV_DEADLINE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.DeadlineSeconds = n
		}
	}
}

// AuthoritySecret reads the sovereign token secret from the environment.
// It is never part of the constitution document or its hash.
func AuthoritySecret() []byte {
	if v := os.Getenv("APEXGOV_AUTHORITY_SECRET"); v != "" {
		return []byte(v)
	}
	return nil
}

// Validate rejects constitutions that would weaken the kernel into
// nonsense: inverted bands, non-positive deadlines, unknown modes.
func (c *Config) Validate() error {
	if c.Mode != "black_box" && c.Mode != "glass_box" {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.DeadlineSeconds <= 0 {
		return fmt.Errorf("config: deadline_seconds must be positive, got %d", c.DeadlineSeconds)
	}
	if c.Ledger.Backend != "file" && c.Ledger.Backend != "sqlite" {
		return fmt.Errorf("config: unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Ledger.Path == "" {
		return fmt.Errorf("config: ledger path is required")
	}
	if c.Floors.TruthThreshold <= 0 || c.Floors.TruthThreshold > 1 {
		return fmt.Errorf("config: truth_threshold out of (0,1]: %v", c.Floors.TruthThreshold)
	}
	if c.Floors.OmegaMin >= c.Floors.OmegaMax {
		return fmt.Errorf("config: omega band inverted: [%v, %v]", c.Floors.OmegaMin, c.Floors.OmegaMax)
	}
	if c.Floors.WitnessMinimum < 1 {
		return fmt.Errorf("config: witness_minimum must be at least 1")
	}
	if c.Weights.CriticalPenalty <= 0 || c.Weights.DefaultPenalty <= 0 {
		return fmt.Errorf("config: penalties must be positive")
	}
	if len(c.Floors.Critical) == 0 {
		return fmt.Errorf("config: critical floor set is empty")
	}
	return nil
}

// Hash returns the canonical constitution hash. Two deployments with the
// same hash judge identically.
func (c *Config) Hash() (string, error) {
	return canonicalize.CanonicalHash(c)
}

// FloorConfig converts to the floor registry's threshold set.
func (c *Config) FloorConfig() floors.Config {
	return floors.Config{
		TruthThreshold: c.Floors.TruthThreshold,
		WitnessMinimum: c.Floors.WitnessMinimum,
		Peace2Penalty:  c.Floors.Peace2Penalty,
		KappaMin:       c.Floors.KappaMin,
		OmegaMin:       c.Floors.OmegaMin,
		OmegaMax:       c.Floors.OmegaMax,
		GeniusMin:      c.Floors.GeniusMin,
	}
}

// CriticalSet returns the critical floors as a lookup map.
func (c *Config) CriticalSet() map[string]bool {
	out := make(map[string]bool, len(c.Floors.Critical))
	for _, name := range c.Floors.Critical {
		out[name] = true
	}
	return out
}

// Deadline returns the judgment deadline as a duration.
func (c *Config) Deadline() time.Duration {
	return time.Duration(c.DeadlineSeconds) * time.Second
}

// CoolingRetention returns the cooling expiry horizon as a duration.
func (c *Config) CoolingRetention() time.Duration {
	return time.Duration(c.Cooling.RetentionDays) * 24 * time.Hour
}
