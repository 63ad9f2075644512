//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/sweth/internal/cache"
	"github.com/kjstillabower/sweth/internal/client"
	"github.com/kjstillabower/sweth/internal/models"
	"github.com/kjstillabower/sweth/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org/data/2.5"
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

// SetupIntegrationService creates a cached weather service against the real API.
// Falls back to in-memory caches when memcached is requested but unreachable.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, *client.OpenWeatherClient) {
	t.Helper()
	weatherClient := SetupIntegrationClient(t, cfg)

	var currentCache cache.Cache[models.CurrentConditions] = cache.NewInMemoryCache[models.CurrentConditions]()
	var forecastCache cache.Cache[[]models.ForecastSample] = cache.NewInMemoryCache[[]models.ForecastSample]()

	if cfg.CacheBackend == "memcached" {
		mc := cache.NewMemcacheClient(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err := mc.Ping(); err == nil {
			currentCache = cache.NewMemcachedCache[models.CurrentConditions](mc, "current")
			forecastCache = cache.NewMemcachedCache[[]models.ForecastSample](mc, "forecast")
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
		}
	}

	return service.NewWeatherService(weatherClient, currentCache, forecastCache, 5*time.Minute, 10*time.Second), weatherClient
}
