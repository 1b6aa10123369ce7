// Package config loads process configuration from a YAML file and
// environment variables, and bootstraps the global zap logger.
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
	Store      StoreConfig               `yaml:"store" mapstructure:"store"`
	Queue      QueueConfig               `yaml:"queue" mapstructure:"queue"`
	Worker     WorkerConfig              `yaml:"worker" mapstructure:"worker"`
	Retention  RetentionConfig           `yaml:"retention" mapstructure:"retention"`
	Tracking   TrackingConfig            `yaml:"tracking" mapstructure:"tracking"`
	Providers  map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Credential CredentialConfig          `yaml:"credential" mapstructure:"credential"`
	Server     ServerConfig              `yaml:"server" mapstructure:"server"`
	Log        LogConfig                 `yaml:"log" mapstructure:"log"`
	Redis      RedisConfig               `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig configures the optional shared client that backs
// distributed rate limiting across worker processes. Addr empty means no
// shared client is built and every provider's limiter stays in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// QueueConfig configures the Temporal connection standing in for the
// spec's abstract broker.
type QueueConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"` // not read; shared rate-limit state is configured through RedisConfig
}

// WorkerConfig configures the per-process worker pool.
type WorkerConfig struct {
	Concurrency        int     `yaml:"concurrency" mapstructure:"concurrency"`
	JobDeadlineSeconds int     `yaml:"job_deadline_seconds" mapstructure:"job_deadline_seconds"`
	MaxRetries         int     `yaml:"max_retries" mapstructure:"max_retries"`
	GraceSeconds       int     `yaml:"grace_seconds" mapstructure:"grace_seconds"`
	WarmupProbesPerSec float64 `yaml:"warmup_probes_per_sec" mapstructure:"warmup_probes_per_sec"`
}

// WarmupRate returns the paced rate at which startup runs provider
// Healthchecks, defaulting to 2/s so a deployment with a dozen providers
// configured doesn't fire a dozen simultaneous probes on boot.
func (w WorkerConfig) WarmupRate() float64 {
	if w.WarmupProbesPerSec <= 0 {
		return 2
	}
	return w.WarmupProbesPerSec
}

// RetentionConfig configures the weekly cleanup planner.
type RetentionConfig struct {
	CitationsDays int `yaml:"citations_days" mapstructure:"citations_days"`
	AlertsDays    int `yaml:"alerts_days" mapstructure:"alerts_days"`
	JobsDays      int `yaml:"jobs_days" mapstructure:"jobs_days"`
}

// TrackingConfig configures the daily tracker planner and per-keyword pacing.
type TrackingConfig struct {
	IntervalHours        int    `yaml:"interval_hours" mapstructure:"interval_hours"`
	DailyRunAt           string `yaml:"daily_run_at" mapstructure:"daily_run_at"` // "HH:MM" local
	MinKeywordIntervalMs int    `yaml:"min_keyword_interval_ms" mapstructure:"min_keyword_interval_ms"`
}

// ProviderConfig holds per-provider settings loaded from
// PROVIDER_{NAME}_API_KEY / PROVIDER_{NAME}_RATE_PER_MIN. Presence of a
// non-empty APIKey is what enables the adapter; absence deregisters it.
type ProviderConfig struct {
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	RatePerMin int    `yaml:"rate_per_min" mapstructure:"rate_per_min"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
}

// CredentialConfig configures credential-at-rest encryption.
type CredentialConfig struct {
	EncryptionKey string `yaml:"encryption_key" mapstructure:"encryption_key"`
}

// ServerConfig configures the control-surface HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// JobDeadline returns the configured per-job execution deadline.
func (w WorkerConfig) JobDeadline() time.Duration {
	if w.JobDeadlineSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(w.JobDeadlineSeconds) * time.Second
}

// GraceWindow returns the configured shutdown drain grace window.
func (w WorkerConfig) GraceWindow() time.Duration {
	if w.GraceSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(w.GraceSeconds) * time.Second
}

// knownProviderEnvNames lists the PROVIDER_{NAME}_* env suffixes recognized
// at this release, matching model.RegisteredProviders.
var knownProviderEnvNames = []string{
	"GOOGLE_AI_OVERVIEW", "GEMINI", "CHATGPT", "PERPLEXITY",
	"COPILOT", "CLAUDE", "GROK", "DEEPSEEK",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("queue.namespace", "default")
	v.SetDefault("queue.task_queue", "tracking")
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.job_deadline_seconds", 60)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.grace_seconds", 30)
	v.SetDefault("retention.citations_days", 365)
	v.SetDefault("retention.alerts_days", 90)
	v.SetDefault("retention.jobs_days", 30)
	v.SetDefault("tracking.interval_hours", 24)
	v.SetDefault("tracking.daily_run_at", "02:00")
	v.SetDefault("tracking.min_keyword_interval_ms", 1000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	cfg.Providers = loadProviderConfigs(v)

	return &cfg, nil
}

// loadProviderConfigs reads PROVIDER_{NAME}_API_KEY and
// PROVIDER_{NAME}_RATE_PER_MIN for every provider name known at this
// release. A provider with no API key is simply absent from the returned
// map, which deregisters its adapter.
func loadProviderConfigs(v *viper.Viper) map[string]ProviderConfig {
	out := make(map[string]ProviderConfig)
	for _, name := range knownProviderEnvNames {
		lower := strings.ToLower(name)
		key := v.GetString("provider_" + lower + "_api_key")
		if key == "" {
			continue
		}
		out[lower] = ProviderConfig{
			APIKey:     key,
			RatePerMin: v.GetInt("provider_" + lower + "_rate_per_min"),
			BaseURL:    v.GetString("provider_" + lower + "_base_url"),
			Model:      v.GetString("provider_" + lower + "_model"),
		}
	}
	return out
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
