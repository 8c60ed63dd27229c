package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		OperatorToken   string        `mapstructure:"operator_token"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Database struct {
		URL             string        `mapstructure:"url"`
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	} `mapstructure:"database"`
	Redis struct {
		Addr            string `mapstructure:"addr"`
		Password        string `mapstructure:"password"`
		DB              int    `mapstructure:"db"`
		ActivationQueue string `mapstructure:"activation_queue"`
		EventChannel    string `mapstructure:"event_channel"`
	} `mapstructure:"redis"`
	Workflow struct {
		MaxRetries     int           `mapstructure:"max_retries"`
		AutoRetry      bool          `mapstructure:"auto_retry"`
		StaleAfter     time.Duration `mapstructure:"stale_after"`
		ReaperSchedule string        `mapstructure:"reaper_schedule"`
	} `mapstructure:"workflow"`
	Trigger struct {
		Transport    string        `mapstructure:"transport"`
		URL          string        `mapstructure:"url"`
		Timeout      time.Duration `mapstructure:"timeout"`
		RetryCount   int           `mapstructure:"retry_count"`
		InflightTTL  time.Duration `mapstructure:"inflight_ttl"`
		InflightSize int           `mapstructure:"inflight_size"`
	} `mapstructure:"trigger"`
	Notifier struct {
		Sink      string        `mapstructure:"sink"`
		URL       string        `mapstructure:"url"`
		Timeout   time.Duration `mapstructure:"timeout"`
		Workers   int           `mapstructure:"workers"`
		QueueSize int           `mapstructure:"queue_size"`
	} `mapstructure:"notifier"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Catalog struct {
		SeedFile string `mapstructure:"seed_file"`
	} `mapstructure:"catalog"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.operator_token", "")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.url", "sqlite://./stepflow.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.activation_queue", "stepflow:activations")
	v.SetDefault("redis.event_channel", "stepflow:events")

	v.SetDefault("workflow.max_retries", 3)
	v.SetDefault("workflow.auto_retry", true)
	v.SetDefault("workflow.stale_after", 0)
	v.SetDefault("workflow.reaper_schedule", "0 */1 * * * *")

	v.SetDefault("trigger.transport", "log")
	v.SetDefault("trigger.url", "")
	v.SetDefault("trigger.timeout", 10*time.Second)
	v.SetDefault("trigger.retry_count", 2)
	v.SetDefault("trigger.inflight_ttl", 30*time.Second)
	v.SetDefault("trigger.inflight_size", 1024)

	v.SetDefault("notifier.sink", "log")
	v.SetDefault("notifier.url", "")
	v.SetDefault("notifier.timeout", 5*time.Second)
	v.SetDefault("notifier.workers", 2)
	v.SetDefault("notifier.queue_size", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("catalog.seed_file", "")
}

// Load reads config.yaml from the working directory or ./config when present,
// then lets STEPFLOW_ environment variables override any key
// (server.addr -> STEPFLOW_SERVER_ADDR).
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("STEPFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	if c.Workflow.MaxRetries < 0 {
		return fmt.Errorf("workflow.max_retries must be >= 0, got %d", c.Workflow.MaxRetries)
	}
	switch c.Trigger.Transport {
	case "http":
		if c.Trigger.URL == "" {
			return errors.New("trigger.url is required for the http transport")
		}
	case "queue":
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the queue transport")
		}
	case "log":
	default:
		return fmt.Errorf("unknown trigger.transport %q", c.Trigger.Transport)
	}
	switch c.Notifier.Sink {
	case "webhook":
		if c.Notifier.URL == "" {
			return errors.New("notifier.url is required for the webhook sink")
		}
	case "log":
	default:
		return fmt.Errorf("unknown notifier.sink %q", c.Notifier.Sink)
	}
	if c.Notifier.Workers < 1 || c.Notifier.QueueSize < 1 {
		return errors.New("notifier.workers and notifier.queue_size must be positive")
	}
	return nil
}
