package moviecatalog

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joeshaw/envdecode"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config configures an App. Defaults can be loaded via envdecode.
type Config struct {
	// BaseURL of the catalog service, e.g. "https://api.example.com/v1". ENV: MOVIECAT_BASE_URL
	BaseURL string `env:"MOVIECAT_BASE_URL,required"`
	// Timeout bounds each HTTP round trip. ENV: MOVIECAT_TIMEOUT
	Timeout time.Duration `env:"MOVIECAT_TIMEOUT,default=15s"`

	// StoreDir holds the encrypted session store. Empty keeps the session in
	// memory only. ENV: MOVIECAT_STORE_DIR
	StoreDir string `env:"MOVIECAT_STORE_DIR"`
	// StorePassphrase derives the store's sealing key. ENV: MOVIECAT_STORE_PASSPHRASE
	StorePassphrase string `env:"MOVIECAT_STORE_PASSPHRASE"`

	// Cache selects the query cache backend: "memory" or "redis". ENV: MOVIECAT_CACHE
	Cache string `env:"MOVIECAT_CACHE,default=memory"`
	// CacheSize caps the memory backend. ENV: MOVIECAT_CACHE_SIZE
	CacheSize int `env:"MOVIECAT_CACHE_SIZE,default=512"`
	// CacheTTL is the lifetime of cached reads. ENV: MOVIECAT_CACHE_TTL
	CacheTTL time.Duration `env:"MOVIECAT_CACHE_TTL,default=5m"`
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// CachePrefix namespaces redis keys. ENV: MOVIECAT_CACHE_PREFIX
	CachePrefix string `env:"MOVIECAT_CACHE_PREFIX,default=moviecat:query:"`

	// LogLevel is one of debug, info, warn, error. ENV: MOVIECAT_LOG_LEVEL
	LogLevel string `env:"MOVIECAT_LOG_LEVEL,default=info"`
}

// ConfigFromEnv loads a Config from the environment and validates it.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("moviecatalog: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("moviecatalog: base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("moviecatalog: invalid base url %q", c.BaseURL)
	}
	if c.StoreDir != "" && c.StorePassphrase == "" {
		return errors.New("moviecatalog: a store passphrase is required with a store dir")
	}
	switch c.Cache {
	case "", CacheMemory:
	case CacheRedis:
		if c.RedisAddr == "" {
			return errors.New("moviecatalog: redis cache needs a redis address")
		}
	default:
		return fmt.Errorf("moviecatalog: unknown cache backend %q", c.Cache)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel. Empty means info.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return lvl, fmt.Errorf("moviecatalog: invalid log level %q", c.LogLevel)
	}
	return lvl, nil
}
