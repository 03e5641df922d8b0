package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration.
type Config struct {
	Engine     EngineConfig     `json:"engine" yaml:"engine"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger"`
	Schedule   ScheduleConfig   `json:"schedule" yaml:"schedule"`
	Reconcile  ReconcileConfig  `json:"reconcile" yaml:"reconcile"`
	MarketData MarketDataConfig `json:"market_data" yaml:"market_data"`
}

// EngineConfig contains the program parameters every projection runs under.
type EngineConfig struct {
	CycleRate     float64 `json:"cycle_rate" yaml:"cycle_rate"`
	CycleDays     int     `json:"cycle_days" yaml:"cycle_days"`
	MaxCycles     int     `json:"max_cycles" yaml:"max_cycles"`
	MinInvestment float64 `json:"min_investment" yaml:"min_investment"`
	MaxInvestment float64 `json:"max_investment" yaml:"max_investment"`
}

// ServerConfig contains the gateway listen parameters.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LedgerConfig contains ledger persistence parameters.
type LedgerConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

// ScheduleConfig points at the program-year calendar. An empty file means
// the built-in published calendar.
type ScheduleConfig struct {
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// ReconcileConfig contains the integrity-check schedule.
type ReconcileConfig struct {
	Cron string `json:"cron" yaml:"cron"`
}

// MarketDataConfig contains the upstream feed parameters.
type MarketDataConfig struct {
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	TTL    string `json:"ttl" yaml:"ttl"` // e.g. "5m"
}

// ParseTTL converts the TTL string to a time.Duration.
func (m MarketDataConfig) ParseTTL() (time.Duration, error) {
	if m.TTL == "" {
		return 5 * time.Minute, nil
	}
	return time.ParseDuration(m.TTL)
}

// LoadFromFile loads configuration from a file (JSON or YAML based on content).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Engine.CycleRate <= 0 || c.Engine.CycleRate >= 1 {
		return fmt.Errorf("engine.cycle_rate must be between 0 and 1")
	}
	if c.Engine.CycleDays <= 0 {
		return fmt.Errorf("engine.cycle_days must be positive")
	}
	if c.Engine.MaxCycles <= 0 {
		return fmt.Errorf("engine.max_cycles must be positive")
	}
	if c.Engine.MinInvestment <= 0 {
		return fmt.Errorf("engine.min_investment must be positive")
	}
	if c.Engine.MaxInvestment <= c.Engine.MinInvestment {
		return fmt.Errorf("engine.max_investment must be greater than engine.min_investment")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Ledger.DBPath == "" {
		return fmt.Errorf("ledger.db_path is required")
	}
	if c.Reconcile.Cron == "" {
		return fmt.Errorf("reconcile.cron is required")
	}
	if _, err := cron.ParseStandard(c.Reconcile.Cron); err != nil {
		return fmt.Errorf("reconcile.cron: %w", err)
	}
	if _, err := c.MarketData.ParseTTL(); err != nil {
		return fmt.Errorf("market_data.ttl: %w", err)
	}
	return nil
}

// Default returns a configuration with the published program parameters.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			CycleRate:     0.068,
			CycleDays:     26,
			MaxCycles:     14,
			MinInvestment: 100,
			MaxInvestment: 10_000_000,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Ledger: LedgerConfig{
			DBPath: "./cycleledger.sqlite",
		},
		Reconcile: ReconcileConfig{
			Cron: "0 3 * * *",
		},
		MarketData: MarketDataConfig{
			TTL: "5m",
		},
	}
}
