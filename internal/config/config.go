package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Arbitration ArbitrationConfig `yaml:"arbitration" mapstructure:"arbitration"`
	Fetch       FetchConfig       `yaml:"fetch" mapstructure:"fetch"`
	Sources     []SourceConfig    `yaml:"sources" mapstructure:"sources"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the session store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	// RetentionDays bounds `sessions prune` when no --older-than is given.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days"`
}

// ArbitrationConfig configures the pipeline.
type ArbitrationConfig struct {
	MinQuorum int `yaml:"min_quorum" mapstructure:"min_quorum"`
	// TierTable is an optional YAML source table replacing the built-in one.
	TierTable string `yaml:"tier_table" mapstructure:"tier_table"`
}

// FetchConfig configures source fetching during enrichment.
type FetchConfig struct {
	Concurrency         int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RatePerSec          float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BreakerThreshold    int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
	UserAgent           string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// SourceConfig describes an HTTP property data source. URL may contain
// {property_id}, {address} and {mls_number} placeholders.
type SourceConfig struct {
	Name       string            `yaml:"name" mapstructure:"name"`
	URL        string            `yaml:"url" mapstructure:"url"`
	RatePerSec float64           `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Headers    map[string]string `yaml:"headers" mapstructure:"headers"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ARBITER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "arbiter.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.retention_days", 90)
	v.SetDefault("arbitration.min_quorum", 2)
	v.SetDefault("arbitration.tier_table", "")
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.rate_per_sec", 5.0)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.breaker_threshold", 5)
	v.SetDefault("fetch.breaker_cooldown_secs", 60)
	v.SetDefault("fetch.user_agent", "arbiter/1.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "run", "serve" or
// "sessions"; every problem is reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	if mode == "run" || mode == "serve" {
		if c.Arbitration.MinQuorum < 1 {
			problems = append(problems, "arbitration.min_quorum must be at least 1")
		}
		if c.Fetch.Concurrency < 1 {
			problems = append(problems, "fetch.concurrency must be at least 1")
		}
		seen := make(map[string]bool, len(c.Sources))
		for i, s := range c.Sources {
			switch {
			case s.Name == "":
				problems = append(problems, fmt.Sprintf("sources[%d].name is required", i))
			case seen[s.Name]:
				problems = append(problems, fmt.Sprintf("sources[%d].name %q is duplicated", i, s.Name))
			}
			seen[s.Name] = true
			if s.URL == "" {
				problems = append(problems, fmt.Sprintf("sources[%d].url is required", i))
			}
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, "server.port must be between 1 and 65535")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
