package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Log       LogConfig         `mapstructure:"log"`
	Settings  SettingsConfig    `mapstructure:"settings"`
	Redis     RedisConfig       `mapstructure:"redis"`
	Database  DatabaseConfig    `mapstructure:"database"`
	RateLimit RateLimitConfig   `mapstructure:"rate_limit"`
	Breaker   BreakerConfig     `mapstructure:"breaker"`
	Tracing   TracingConfig     `mapstructure:"tracing"`
	HTTP      HTTPConfig        `mapstructure:"http"`
	Weather   WeatherConfig     `mapstructure:"weather"`
	Endpoints map[string]string `mapstructure:"endpoints"` // provider id -> full URL override
}

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	Env          string `mapstructure:"env"`
	CheckUpdates bool   `mapstructure:"check_updates"`
	// APIKeys, when set, are required as bearer tokens on every route but /health.
	APIKeys []string `mapstructure:"api_keys"`
	// DebugAddr serves expvar on /debug/vars when set.
	DebugAddr string `mapstructure:"debug_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SettingsConfig selects where the user's LLM settings are persisted.
type SettingsConfig struct {
	Backend string `mapstructure:"backend"` // file, redis, memory
	Path    string `mapstructure:"path"`
	Key     string `mapstructure:"key"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"` // per-client limiters unused this long are dropped
}

type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Interval    time.Duration `mapstructure:"interval"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// WeatherConfig enables the QWeather forecast section of the system preamble.
type WeatherConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Location string        `mapstructure:"location"` // QWeather city id
	Days     int           `mapstructure:"days"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type HTTPConfig struct {
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.check_updates", false)
	v.SetDefault("server.api_keys", []string{})
	v.SetDefault("server.debug_addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("settings.backend", "file")
	v.SetDefault("settings.path", "settings.json")
	v.SetDefault("settings.key", "travelAssistantConfig")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.dsn", "file:streamchat.db?cache=shared&mode=rwc&_journal_mode=WAL&_busy_timeout=5000")
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.idle_ttl", "10m")
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.interval", "60s")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "streamchat")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("http.connect_timeout", "30s")
	v.SetDefault("http.response_header_timeout", "120s")
	v.SetDefault("weather.enabled", false)
	v.SetDefault("weather.api_key", "")
	v.SetDefault("weather.base_url", "https://devapi.qweather.com/v7")
	v.SetDefault("weather.location", "101210101")
	v.SetDefault("weather.days", 7)
	v.SetDefault("weather.cache_ttl", "30m")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}
