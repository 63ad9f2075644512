package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override YAML values, e.g. SWETH_PORT.
const EnvPrefix = "SWETH"

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string `envconfig:"PORT"`
	LogLevel   string `envconfig:"LOG_LEVEL"`

	WeatherAPIKey     string        `ignored:"true"`
	WeatherAPIURL     string        `envconfig:"WEATHER_API_URL"`
	WeatherAPITimeout time.Duration `envconfig:"WEATHER_API_TIMEOUT"`

	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT"`
	CacheTTL        time.Duration `envconfig:"CACHE_TTL"`
	CacheBackend    string        `envconfig:"CACHE_BACKEND"` // "in_memory" or "memcached"
	CoalesceTimeout time.Duration `envconfig:"COALESCE_TIMEOUT"`

	MemcachedAddrs        string        `envconfig:"MEMCACHED_ADDRS"`
	MemcachedTimeout      time.Duration `envconfig:"MEMCACHED_TIMEOUT"`
	MemcachedMaxIdleConns int           `envconfig:"MEMCACHED_MAX_IDLE_CONNS"`

	RetryAttempts  int           `envconfig:"RETRY_ATTEMPTS"`
	RetryBaseDelay time.Duration `envconfig:"RETRY_BASE_DELAY"`
	RetryMaxDelay  time.Duration `envconfig:"RETRY_MAX_DELAY"`
	RateLimitRPS   int           `envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `envconfig:"RATE_LIMIT_BURST"`

	CircuitBreakerEnabled          bool          `envconfig:"CIRCUIT_BREAKER_ENABLED"`
	CircuitBreakerFailureThreshold int           `envconfig:"CIRCUIT_BREAKER_FAILURE_THRESHOLD"`
	CircuitBreakerSuccessThreshold int           `envconfig:"CIRCUIT_BREAKER_SUCCESS_THRESHOLD"`
	CircuitBreakerTimeout          time.Duration `envconfig:"CIRCUIT_BREAKER_TIMEOUT"`

	HistoryBackend    string `envconfig:"HISTORY_BACKEND"` // "in_memory", "file", "sqlite" or "memcached"
	HistoryPath       string `envconfig:"HISTORY_PATH"`
	HistoryKey        string `envconfig:"HISTORY_KEY"`
	HistoryMaxEntries int    `envconfig:"HISTORY_MAX_ENTRIES"`

	CityMinLength int `envconfig:"CITY_MIN_LENGTH"`
	CityMaxLength int `envconfig:"CITY_MAX_LENGTH"`
	MaxSessions   int `envconfig:"MAX_SESSIONS"`

	ShutdownTimeout               time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`
	ShutdownInFlightTimeout       time.Duration `envconfig:"SHUTDOWN_IN_FLIGHT_TIMEOUT"`
	ShutdownInFlightCheckInterval time.Duration `envconfig:"SHUTDOWN_IN_FLIGHT_CHECK_INTERVAL"`

	HealthWindow         time.Duration `envconfig:"HEALTH_WINDOW"`
	OverloadThresholdPct int           `envconfig:"OVERLOAD_THRESHOLD_PCT"`
	DegradedErrorPct     int           `envconfig:"DEGRADED_ERROR_PCT"`

	TrackedCities []string      `envconfig:"TRACKED_CITIES"`
	WarmCache     bool          `envconfig:"WARM_CACHE"`
	WarmInterval  time.Duration `envconfig:"WARM_INTERVAL"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend         string `yaml:"backend"`
		TTL             string `yaml:"ttl"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		Warm            bool   `yaml:"warm"`
		WarmInterval    string `yaml:"warm_interval"`
		Memcached       struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	History struct {
		Backend    string `yaml:"backend"`
		Path       string `yaml:"path"`
		Key        string `yaml:"key"`
		MaxEntries int    `yaml:"max_entries"`
	} `yaml:"history"`

	Validation struct {
		CityMinLength int `yaml:"city_min_length"`
		CityMaxLength int `yaml:"city_max_length"`
	} `yaml:"validation"`

	Sessions struct {
		Max int `yaml:"max"`
	} `yaml:"sessions"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		Window               string `yaml:"window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml,
// after loading a .env file into the environment if one exists. SWETH_* variables
// override file values. The API key comes from WEATHER_API_KEY or the secrets file.
// Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := fromFile(&fc)

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	if cfg.WeatherAPIKey == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			cfg.WeatherAPIKey = sec.WeatherAPIKey
		}
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env, .env, or config/secrets.yaml weather_api_key)")
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fromFile builds a Config from the parsed YAML, filling defaults for missing values.
func fromFile(fc *fileConfig) *Config {
	cfg := &Config{}

	cfg.ServerPort = orDefault(fc.Server.Port, "8080")
	cfg.LogLevel = orDefault(os.Getenv("LOG_LEVEL"), fc.Log.Level)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}

	cfg.WeatherAPIURL = orDefault(strings.TrimRight(fc.WeatherAPI.URL, "/"), "https://api.openweathermap.org/data/2.5")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 2*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.CacheBackend = orDefault(strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND"))), strings.TrimSpace(strings.ToLower(fc.Cache.Backend)))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CoalesceTimeout = parseDuration(fc.Cache.CoalesceTimeout, 5*time.Second)
	cfg.WarmCache = fc.Cache.Warm
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)

	cfg.MemcachedAddrs = orDefault(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.HistoryBackend = strings.TrimSpace(strings.ToLower(fc.History.Backend))
	if cfg.HistoryBackend == "" {
		cfg.HistoryBackend = "file"
	}
	cfg.HistoryPath = strings.TrimSpace(fc.History.Path)
	cfg.HistoryKey = orDefault(strings.TrimSpace(fc.History.Key), "searchHistory")
	cfg.HistoryMaxEntries = positiveOr(fc.History.MaxEntries, 5)

	cfg.CityMinLength = positiveOr(fc.Validation.CityMinLength, 1)
	cfg.CityMaxLength = positiveOr(fc.Validation.CityMaxLength, 100)
	cfg.MaxSessions = positiveOr(fc.Sessions.Max, 1024)

	cfg.RetryAttempts = positiveOr(fc.Reliability.RetryMaxAttempts, 3)
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 100)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 250)

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitBreakerFailureThreshold = positiveOr(cb.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = positiveOr(cb.SuccessThreshold, 1)
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.OverloadThresholdPct = positiveOr(fc.Health.OverloadThresholdPct, 80)
	cfg.DegradedErrorPct = positiveOr(fc.Health.DegradedErrorPct, 5)

	cfg.TrackedCities = fc.Metrics.TrackedCities
	return cfg
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func positiveOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// maxHistoryEntries is the upper bound on the search history length.
const maxHistoryEntries = 5

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above WeatherAPITimeout when needed.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("WEATHER_API_TIMEOUT must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.HistoryBackend {
	case "in_memory", "memcached":
	case "file", "sqlite":
		if cfg.HistoryPath == "" {
			cfg.HistoryPath = defaultHistoryPath(cfg.HistoryBackend)
		}
	default:
		return fmt.Errorf("history.backend must be in_memory, file, sqlite or memcached, got %q", cfg.HistoryBackend)
	}
	if cfg.HistoryMaxEntries <= 0 || cfg.HistoryMaxEntries > maxHistoryEntries {
		return fmt.Errorf("history.max_entries must be between 1 and %d, got %d", maxHistoryEntries, cfg.HistoryMaxEntries)
	}
	if cfg.CityMinLength > cfg.CityMaxLength {
		return fmt.Errorf("validation.city_min_length (%d) exceeds city_max_length (%d)", cfg.CityMinLength, cfg.CityMaxLength)
	}
	return nil
}

func defaultHistoryPath(backend string) string {
	if backend == "sqlite" {
		return filepath.Join("data", "history.db")
	}
	return filepath.Join("data", "history.json")
}
