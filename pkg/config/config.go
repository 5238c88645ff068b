package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Client    ClientConfig    `mapstructure:"client"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// FeedConfig tunes the price simulation and the broadcast cadence.
type FeedConfig struct {
	TickIntervalMs    int     `mapstructure:"tick_interval_ms"`
	AlertThresholdPct float64 `mapstructure:"alert_threshold_pct"`
	HistoryWindowSize int     `mapstructure:"history_window_size"`
	PriceFloorFactor  float64 `mapstructure:"price_floor_factor"`
	Bias              float64 `mapstructure:"bias"`
	VolatilityFactor  float64 `mapstructure:"volatility_factor"`
	ShockProbability  float64 `mapstructure:"shock_probability"`
	ShockMinPct       float64 `mapstructure:"shock_min_pct"`
	ShockMaxPct       float64 `mapstructure:"shock_max_pct"`
	VolumeJitter      float64 `mapstructure:"volume_jitter"`
	CatalogPath       string  `mapstructure:"catalog_path"` // empty means the embedded catalog
}

func (f FeedConfig) TickInterval() time.Duration {
	return time.Duration(f.TickIntervalMs) * time.Millisecond
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type ProcessorConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
}

// ClientConfig is read by the tickerwatch CLI.
type ClientConfig struct {
	URL               string `mapstructure:"url"`
	DisconnectGraceMs int    `mapstructure:"disconnect_grace_ms"`
	ReconnectDelayMs  int    `mapstructure:"reconnect_delay_ms"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults
	setDefaults(v)

	// 3. Configure Viper to read Environment Variables ("feed.tick_interval_ms" -> "FEED_TICK_INTERVAL_MS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys so Unmarshal sees flat env vars
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.development")
	bindEnv(v,
		"feed.tick_interval_ms", "feed.alert_threshold_pct", "feed.history_window_size",
		"feed.price_floor_factor", "feed.bias", "feed.volatility_factor", "feed.shock_probability",
		"feed.shock_min_pct", "feed.shock_max_pct", "feed.volume_jitter", "feed.catalog_path",
	)
	bindEnv(v, "auth.jwt_secret", "auth.token_ttl")
	bindEnv(v, "redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.snapshot_ttl")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "processor.num_workers")
	bindEnv(v, "client.url", "client.disconnect_grace_ms", "client.reconnect_delay_ms")

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// 6. Validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)

	v.SetDefault("feed.tick_interval_ms", 3500)
	v.SetDefault("feed.alert_threshold_pct", 3.0)
	v.SetDefault("feed.history_window_size", 24)
	v.SetDefault("feed.price_floor_factor", 0.9)
	v.SetDefault("feed.bias", 0.45)
	v.SetDefault("feed.volatility_factor", 0.0035)
	v.SetDefault("feed.shock_probability", 0.02)
	v.SetDefault("feed.shock_min_pct", 3.5)
	v.SetDefault("feed.shock_max_pct", 6.0)
	v.SetDefault("feed.volume_jitter", 0.02)
	v.SetDefault("feed.catalog_path", "")

	v.SetDefault("auth.jwt_secret", "dev-jwt-secret")
	v.SetDefault("auth.token_ttl", 8*time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.snapshot_ttl", time.Hour)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "ticker_alerts")
	v.SetDefault("kafka.group_id", "ticker-alert-processor")

	v.SetDefault("processor.num_workers", 4)

	v.SetDefault("client.url", "ws://localhost:8080/ws/tickers")
	v.SetDefault("client.disconnect_grace_ms", 100)
	v.SetDefault("client.reconnect_delay_ms", 1000)
}

// Validate rejects settings the feed cannot run with.
func (c *Config) Validate() error {
	f := c.Feed
	if f.TickIntervalMs <= 0 {
		return fmt.Errorf("feed.tick_interval_ms must be positive, got %d", f.TickIntervalMs)
	}
	if f.AlertThresholdPct < 0 {
		return fmt.Errorf("feed.alert_threshold_pct cannot be negative")
	}
	if f.HistoryWindowSize <= 0 {
		return fmt.Errorf("feed.history_window_size must be positive, got %d", f.HistoryWindowSize)
	}
	if f.PriceFloorFactor <= 0 || f.PriceFloorFactor > 1 {
		return fmt.Errorf("feed.price_floor_factor must be in (0, 1], got %v", f.PriceFloorFactor)
	}
	if f.ShockProbability < 0 || f.ShockProbability > 1 {
		return fmt.Errorf("feed.shock_probability must be in [0, 1]")
	}
	if f.ShockMinPct > f.ShockMaxPct {
		return fmt.Errorf("feed.shock_min_pct (%v) exceeds feed.shock_max_pct (%v)", f.ShockMinPct, f.ShockMaxPct)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret cannot be empty")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Processor.NumWorkers <= 0 {
		return fmt.Errorf("processor.num_workers must be positive")
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
