package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Watch      WatchConfig      `yaml:"watch" mapstructure:"watch"`
	Lock       LockConfig       `yaml:"lock" mapstructure:"lock"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates the inbox, the output roots and the entity file.
type PathsConfig struct {
	Inbox     string `yaml:"inbox" mapstructure:"inbox"`
	Processed string `yaml:"processed" mapstructure:"processed"`
	Conflicts string `yaml:"conflicts" mapstructure:"conflicts"`
	Ledgers   string `yaml:"ledgers" mapstructure:"ledgers"`
	Entities  string `yaml:"entities" mapstructure:"entities"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string  `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string  `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	Layout        bool    `yaml:"layout" mapstructure:"layout"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MistralKey    string  `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string  `yaml:"mistral_model" mapstructure:"mistral_model"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"` // mistral requests per second
}

// PipelineConfig configures the worker pool.
type PipelineConfig struct {
	Workers   int `yaml:"workers" mapstructure:"workers"`
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

// WatchConfig configures inbox watching.
type WatchConfig struct {
	SettleMs           int `yaml:"settle_ms" mapstructure:"settle_ms"`
	RescanIntervalSecs int `yaml:"rescan_interval_secs" mapstructure:"rescan_interval_secs"`
}

// LockConfig selects how same-entity work is serialized.
type LockConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"` // "local" or "redis"
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLSecs  int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// RetryConfig configures retries of busy storage and file operations.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// MonitoringConfig configures backlog checks and alert delivery.
type MonitoringConfig struct {
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	ConflictThreshold   int    `yaml:"conflict_threshold" mapstructure:"conflict_threshold"`
	InboxStallMinutes   int    `yaml:"inbox_stall_minutes" mapstructure:"inbox_stall_minutes"`
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
	v.SetEnvPrefix("GUIAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("paths.inbox", "pasta_entrada")
	v.SetDefault("paths.processed", "pasta_processados")
	v.SetDefault("paths.conflicts", "pasta_conflitos")
	v.SetDefault("paths.ledgers", "data/ledgers")
	v.SetDefault("paths.entities", "data/empresas.json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.layout", false)
	v.SetDefault("ocr.timeout_secs", 60)
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("ocr.rate_per_sec", 2.0)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_size", 256)
	v.SetDefault("watch.settle_ms", 1500)
	v.SetDefault("watch.rescan_interval_secs", 300)
	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.ttl_secs", 60)
	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.initial_backoff_ms", 50)
	v.SetDefault("retry.max_backoff_ms", 2000)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.conflict_threshold", 50)
	v.SetDefault("monitoring.inbox_stall_minutes", 30)

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

// Validate checks the settings a command needs. Mode is "watch",
// "process" or "ledger".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "watch", "process":
		if c.Paths.Inbox == "" {
			errs = append(errs, "paths.inbox is required")
		}
		if c.Paths.Processed == "" {
			errs = append(errs, "paths.processed is required")
		}
		if c.Paths.Conflicts == "" {
			errs = append(errs, "paths.conflicts is required")
		}
		if c.Paths.Entities == "" {
			errs = append(errs, "paths.entities is required")
		}
		if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 64 {
			errs = append(errs, "pipeline.workers must be between 1 and 64")
		}
		switch c.Lock.Backend {
		case "local", "":
		case "redis":
			if c.Lock.RedisURL == "" {
				errs = append(errs, "lock.redis_url is required for the redis backend")
			}
		default:
			errs = append(errs, "lock.backend must be local or redis")
		}
	case "ledger":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Paths.Ledgers == "" {
		errs = append(errs, "paths.ledgers is required")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
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
