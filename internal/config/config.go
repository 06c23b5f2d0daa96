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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	SMTP     SMTPConfig     `yaml:"smtp" mapstructure:"smtp"`
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Capture  CaptureConfig  `yaml:"capture" mapstructure:"capture"`
	Funnel   FunnelConfig   `yaml:"funnel" mapstructure:"funnel"`
	Outreach OutreachConfig `yaml:"outreach" mapstructure:"outreach"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SMTPConfig holds email transport credentials.
type SMTPConfig struct {
	Host      string `yaml:"host" mapstructure:"host"`
	Port      int    `yaml:"port" mapstructure:"port"`
	Username  string `yaml:"username" mapstructure:"username"`
	Password  string `yaml:"password" mapstructure:"password"`
	FromEmail string `yaml:"from_email" mapstructure:"from_email"`
}

// LLMConfig holds Anthropic API settings for the AI enricher and composer.
type LLMConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxTokens     int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// CaptureConfig configures the lead capture source.
type CaptureConfig struct {
	Source   string `yaml:"source" mapstructure:"source"`
	Seed     int64  `yaml:"seed" mapstructure:"seed"`
	XLSXPath string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
}

// FunnelConfig configures run defaults.
type FunnelConfig struct {
	RecordLimit     int      `yaml:"record_limit" mapstructure:"record_limit"`
	CompositionMode string   `yaml:"composition_mode" mapstructure:"composition_mode"`
	EnrichmentMode  string   `yaml:"enrichment_mode" mapstructure:"enrichment_mode"`
	Channels        string   `yaml:"channels" mapstructure:"channels"`
	Variations      []string `yaml:"variations" mapstructure:"variations"`
	Workers         int      `yaml:"workers" mapstructure:"workers"`
}

// OutreachConfig configures delivery pacing and retries.
type OutreachConfig struct {
	DryRun         bool          `yaml:"dry_run" mapstructure:"dry_run"`
	RatePerWindow  int           `yaml:"rate_per_window" mapstructure:"rate_per_window"`
	RateWindow     time.Duration `yaml:"rate_window" mapstructure:"rate_window"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" mapstructure:"acquire_timeout"`
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseBackoff    time.Duration `yaml:"base_backoff" mapstructure:"base_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "./data/leads.db")
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.rate_per_second", 2.0)
	v.SetDefault("capture.source", "synthetic")
	v.SetDefault("capture.seed", 42)
	v.SetDefault("funnel.record_limit", 200)
	v.SetDefault("funnel.composition_mode", "template")
	v.SetDefault("funnel.enrichment_mode", "offline")
	v.SetDefault("funnel.channels", "both")
	v.SetDefault("funnel.variations", []string{"A"})
	v.SetDefault("funnel.workers", 4)
	v.SetDefault("outreach.dry_run", true)
	v.SetDefault("outreach.rate_per_window", 10)
	v.SetDefault("outreach.rate_window", time.Minute)
	v.SetDefault("outreach.max_attempts", 3)
	v.SetDefault("outreach.base_backoff", time.Second)
	v.SetDefault("outreach.max_backoff", 30*time.Second)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
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

// Validate checks the settings a subsystem needs before it starts.
func (c *Config) Validate(section string) error {
	switch section {
	case "store":
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
		}
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required")
		}
	case "smtp":
		if c.SMTP.Host == "" || c.SMTP.Username == "" {
			return eris.New("config: smtp.host and smtp.username are required for live email")
		}
	case "llm":
		if c.LLM.Key == "" {
			return eris.New("config: llm.key is required for ai mode")
		}
	case "outreach":
		if c.Outreach.RatePerWindow <= 0 {
			return eris.New("config: outreach.rate_per_window must be positive")
		}
		if c.Outreach.MaxAttempts <= 0 {
			return eris.New("config: outreach.max_attempts must be positive")
		}
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
