// Package config loads the daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files can write "30s" or "2h"
// instead of raw nanosecond counts.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level daemon configuration.
type Config struct {
	HTTPAddr     string   `yaml:"http_addr"`
	ScanInterval Duration `yaml:"scan_interval"`
	TeamsFile    string   `yaml:"teams_file"`

	Book struct {
		APIKey        string `yaml:"api_key"` // ODDS_API_KEY env overrides
		Sport         string `yaml:"sport"`
		OutrightSport string `yaml:"outright_sport"` // e.g. soccer_epl_winner; empty disables
	} `yaml:"book"`

	Market struct {
		Tag         string `yaml:"tag"`
		OutrightTag string `yaml:"outright_tag"` // e.g. EPL Winner; empty disables
		Futures     bool   `yaml:"futures"`
	} `yaml:"market"`

	Identity struct {
		Threshold int `yaml:"threshold"`
	} `yaml:"identity"`

	DeVig struct {
		PreferredBookmakers []string `yaml:"preferred_bookmakers"`
		MaxOutrightProb     float64  `yaml:"max_outright_prob"`
	} `yaml:"devig"`

	EV struct {
		FuturesThreshold float64 `yaml:"futures_threshold"`
		MatchThreshold   float64 `yaml:"match_threshold"`
	} `yaml:"ev"`

	Trigger struct {
		CrunchWindow      Duration `yaml:"crunch_window"`
		VolatilityPct     float64  `yaml:"volatility_pct"`
		AnalysesPerMinute float64  `yaml:"analyses_per_minute"`
	} `yaml:"trigger"`
}

// Default returns the configuration used when no file is given. Tuning
// knobs left at zero here fall back to each component's own defaults.
func Default() *Config {
	cfg := &Config{
		HTTPAddr:     ":8080",
		ScanInterval: Duration(time.Minute),
		TeamsFile:    "config/teams.yaml",
	}
	cfg.Book.Sport = "soccer_epl"
	cfg.Market.Tag = "Soccer"
	return cfg
}

// Load reads a YAML config file on top of the defaults. The ODDS_API_KEY
// environment variable overrides the file's book API key so the key stays
// out of checked-in config.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if key := os.Getenv("ODDS_API_KEY"); key != "" {
		cfg.Book.APIKey = key
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ScanInterval.Std() < time.Second {
		return fmt.Errorf("scan_interval %s too short, minimum 1s", c.ScanInterval.Std())
	}
	if c.TeamsFile == "" {
		return fmt.Errorf("teams_file is required")
	}
	if c.Identity.Threshold < 0 || c.Identity.Threshold > 100 {
		return fmt.Errorf("identity.threshold %d outside 0-100", c.Identity.Threshold)
	}
	if c.DeVig.MaxOutrightProb < 0 || c.DeVig.MaxOutrightProb > 1 {
		return fmt.Errorf("devig.max_outright_prob %v outside 0-1", c.DeVig.MaxOutrightProb)
	}
	return nil
}
