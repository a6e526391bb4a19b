// Package ops loads the keeper's runtime configuration: venue credentials,
// per-symbol engine settings, optional journal persistence and profiling.
package ops

import (
	"os"
	"time"

	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Venue     VenueConfig    `yaml:"venue"`
	Engines   []EngineConfig `yaml:"engines"`
	Journal   JournalConfig  `yaml:"journal"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	Pyroscope PyroConfig     `yaml:"pyroscope"`
}

type VenueConfig struct {
	BaseURL   string `yaml:"base_url"`
	WsURL     string `yaml:"ws_url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

type EngineConfig struct {
	Symbol               string        `yaml:"symbol"`
	TickInterval         time.Duration `yaml:"tick_interval"`
	PriceTick            float64       `yaml:"price_tick"`
	PriceTolerance       float64       `yaml:"price_tolerance"`
	LockTimeout          time.Duration `yaml:"lock_timeout"`
	MaxPriceDeviationPct float64       `yaml:"max_price_deviation_pct"`
	LossLimit            float64       `yaml:"loss_limit"`
	BalanceCooldown      time.Duration `yaml:"balance_cooldown"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Strategy  StrategyConfig  `yaml:"strategy"`
}

type RateLimitConfig struct {
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	ActionInterval time.Duration `yaml:"action_interval"`
}

type StrategyConfig struct {
	OffsetPct float64 `yaml:"offset_pct"`
	Levels    int     `yaml:"levels"`
	Quantity  float64 `yaml:"quantity"`
}

type JournalConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type PyroConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ServerURL string `yaml:"server_url"`
}

// Load reads the config file, applies environment overrides for secrets and
// validates the result.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config file")
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Secrets never need to live in the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("VENUE_API_KEY"); v != "" {
		c.Venue.APIKey = v
	}
	if v := os.Getenv("VENUE_API_SECRET"); v != "" {
		c.Venue.APISecret = v
	}
	if v := os.Getenv("JOURNAL_PASSWORD"); v != "" {
		c.Journal.Password = v
	}
}

func (c *Config) validate() error {
	if len(c.Engines) == 0 {
		return errors.New("at least one engine is required")
	}

	seen := make(map[string]struct{}, len(c.Engines))
	for i, e := range c.Engines {
		if e.Symbol == "" {
			return errors.Errorf("engines[%d]: symbol is required", i)
		}
		if _, ok := seen[e.Symbol]; ok {
			return errors.Errorf("engines[%d]: duplicate symbol %s", i, e.Symbol)
		}
		seen[e.Symbol] = struct{}{}

		if e.PriceTick <= 0 {
			return errors.Errorf("engine %s: price_tick must be positive", e.Symbol)
		}
		if e.LossLimit <= 0 {
			return errors.Errorf("engine %s: loss_limit must be positive", e.Symbol)
		}
		if e.Strategy.Quantity <= 0 {
			return errors.Errorf("engine %s: strategy.quantity must be positive", e.Symbol)
		}
		if e.Strategy.OffsetPct <= 0 {
			return errors.Errorf("engine %s: strategy.offset_pct must be positive", e.Symbol)
		}
	}

	if c.Journal.Enabled && c.Journal.Database == "" {
		return errors.New("journal.database is required when journal is enabled")
	}

	return nil
}
