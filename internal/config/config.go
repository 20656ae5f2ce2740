// Package config loads crmctl and crm-stub settings from defaults, an
// optional config.yml, an optional .env file and CRM_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/Sternrassler/crm-client/pkg/client"
	"github.com/Sternrassler/crm-client/pkg/collection"
	"github.com/Sternrassler/crm-client/pkg/logging"
)

// EnvPrefix prefixes every environment override, e.g. CRM_API_BASE_URL.
const EnvPrefix = "CRM"

// Config is the merged application configuration.
type Config struct {
	API   APIConfig   `mapstructure:"api"`
	List  ListConfig  `mapstructure:"list"`
	Redis RedisConfig `mapstructure:"redis"`
	Cache CacheConfig `mapstructure:"cache"`
	Log   LogConfig   `mapstructure:"log"`
	Lang  string      `mapstructure:"lang"`
	Stub  StubConfig  `mapstructure:"stub"`
}

// APIConfig describes the backend the client talks to.
type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// ListConfig tunes list controllers.
type ListConfig struct {
	PerPage  int           `mapstructure:"per_page"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// RedisConfig enables the response cache and throttle tracking when Addr is set.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// StubConfig configures the local development backend.
type StubConfig struct {
	Addr        string   `mapstructure:"addr"`
	DBDriver    string   `mapstructure:"db_driver"`
	DSN         string   `mapstructure:"dsn"`
	JWTSecret   string   `mapstructure:"jwt_secret"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	Throttle    int      `mapstructure:"throttle"`
}

var defaults = map[string]any{
	"api.base_url":      "http://localhost:8080/api",
	"api.token":         "",
	"api.timeout":       15 * time.Second,
	"api.user_agent":    "crm-client/1.0",
	"api.rate_limit":    10.0,
	"api.max_retries":   3,
	"list.per_page":     15,
	"list.debounce":     500 * time.Millisecond,
	"redis.addr":        "",
	"redis.db":          0,
	"cache.enabled":     true,
	"log.level":         "info",
	"log.pretty":        false,
	"lang":              "en",
	"stub.addr":         ":8080",
	"stub.db_driver":    "sqlite",
	"stub.dsn":          ":memory:",
	"stub.jwt_secret":   "",
	"stub.cors_origins": []string{"*"},
	"stub.throttle":     0,
}

// Load reads the configuration. configFile may be empty, in which case
// config.yml is looked up in the working directory and ./configs and its
// absence is not an error. A .env file in the working directory is loaded
// when present; variables already set in the environment win over it.
func Load(configFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
		v.SetConfigName("config")
		v.SetConfigType("yml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. The base URL itself is validated by client.New.
func (c Config) Validate() error {
	if c.List.PerPage < 1 {
		return fmt.Errorf("list.per_page must be >= 1 (got %d)", c.List.PerPage)
	}
	if c.List.Debounce < 0 {
		return fmt.Errorf("list.debounce must be >= 0 (got %s)", c.List.Debounce)
	}
	if c.API.MaxRetries < 1 {
		return fmt.Errorf("api.max_retries must be >= 1 (got %d)", c.API.MaxRetries)
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must be >= 0 (got %v)", c.API.RateLimit)
	}

	switch logging.LogLevel(strings.ToLower(c.Log.Level)) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}

	if c.Stub.Throttle < 0 {
		return fmt.Errorf("stub.throttle must be >= 0 (got %d)", c.Stub.Throttle)
	}

	switch c.Stub.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("stub.db_driver %q is not one of sqlite, mysql", c.Stub.DBDriver)
	}
	return nil
}

// ClientConfig maps the API section onto a client configuration.
// rdb may be nil.
func (c Config) ClientConfig(rdb *redis.Client) client.Config {
	cc := client.DefaultConfig(c.API.BaseURL)
	cc.Token = c.API.Token
	cc.UserAgent = c.API.UserAgent
	cc.Timeout = c.API.Timeout
	cc.RateLimit = c.API.RateLimit
	cc.MaxRetries = c.API.MaxRetries
	cc.Redis = rdb
	cc.CacheEnabled = c.Cache.Enabled
	return cc
}

// RedisClient returns a client for redis.addr, or nil when Redis is not configured.
func (c Config) RedisClient() *redis.Client {
	if c.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr: c.Redis.Addr,
		DB:   c.Redis.DB,
	})
}

// LoggingConfig maps the log section onto a logger configuration writing to w.
func (c Config) LoggingConfig(w io.Writer) logging.Config {
	return logging.Config{
		Level:  logging.ParseLevel(c.Log.Level),
		Pretty: c.Log.Pretty || logging.AutoPretty(w),
		Output: w,
	}
}

// Language returns the message language.
func (c Config) Language() language.Tag {
	return collection.ParseLanguage(c.Lang)
}
