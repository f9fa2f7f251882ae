package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Lookup       LookupConfig       `yaml:"lookup" mapstructure:"lookup"`
	Reachability ReachabilityConfig `yaml:"reachability" mapstructure:"reachability"`
	Enrich       EnrichConfig       `yaml:"enrich" mapstructure:"enrich"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LookupConfig holds the identity-enrichment API settings. URLTemplate
// carries {token}, {module} and {cpf} placeholders.
type LookupConfig struct {
	URLTemplate string `yaml:"url_template" mapstructure:"url_template"`
	Token       string `yaml:"token" mapstructure:"token"`
	Module      string `yaml:"module" mapstructure:"module"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ReachabilityConfig holds the messaging-reachability API settings.
// Tokens is a comma-separated credential list tried in failover order.
type ReachabilityConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	Tokens      string `yaml:"tokens" mapstructure:"tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TokenList splits the comma-separated credential list.
func (c ReachabilityConfig) TokenList() []string {
	var out []string
	for _, tok := range strings.Split(c.Tokens, ",") {
		if t := strings.TrimSpace(tok); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// EnrichConfig configures the batch orchestrator.
type EnrichConfig struct {
	BatchSize     int `yaml:"batch_size" mapstructure:"batch_size"`
	RecordDelayMS int `yaml:"record_delay_ms" mapstructure:"record_delay_ms"`
	MaxErrors     int `yaml:"max_errors" mapstructure:"max_errors"`
}

// RecordDelay returns the inter-record pacing delay.
func (c EnrichConfig) RecordDelay() time.Duration {
	return time.Duration(c.RecordDelayMS) * time.Millisecond
}

// ServerConfig configures the trigger API server.
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
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enrich.db")
	v.SetDefault("lookup.module", "completa")
	v.SetDefault("lookup.timeout_secs", 30)
	v.SetDefault("reachability.timeout_secs", 30)
	v.SetDefault("enrich.batch_size", 5)
	v.SetDefault("enrich.record_delay_ms", 1500)
	v.SetDefault("enrich.max_errors", 25)
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

// ValidatePipeline checks the settings a pipeline run cannot start
// without. These abort before the run begins.
func (c *Config) ValidatePipeline() error {
	if c.Lookup.URLTemplate == "" {
		return eris.New("config: lookup.url_template is required")
	}
	if c.Lookup.Token == "" {
		return eris.New("config: lookup.token is required")
	}
	if c.Reachability.URL == "" {
		return eris.New("config: reachability.url is required")
	}
	if len(c.Reachability.TokenList()) == 0 {
		return eris.New("config: reachability.tokens is required")
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
