package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sweth/internal/cache"
	"github.com/kjstillabower/sweth/internal/client"
	"github.com/kjstillabower/sweth/internal/models"
	"github.com/kjstillabower/sweth/internal/observability"
)

const (
	docCurrent  = "current"
	docForecast = "forecast"
)

// WeatherService serves current conditions and forecasts cache-aside over the
// upstream client. Cache failures are logged and counted, never returned.
type WeatherService struct {
	client        client.WeatherClient
	currentCache  cache.Cache[models.CurrentConditions]
	forecastCache cache.Cache[[]models.ForecastSample]
	ttl           time.Duration

	currentCalls  *requestCoalescer[models.CurrentConditions]
	forecastCalls *requestCoalescer[[]models.ForecastSample]
}

// NewWeatherService creates a WeatherService. ttl is the cache lifetime of each
// document; coalesceTimeout bounds a shared upstream fetch.
func NewWeatherService(
	c client.WeatherClient,
	currentCache cache.Cache[models.CurrentConditions],
	forecastCache cache.Cache[[]models.ForecastSample],
	ttl, coalesceTimeout time.Duration,
) *WeatherService {
	return &WeatherService{
		client:        c,
		currentCache:  currentCache,
		forecastCache: forecastCache,
		ttl:           ttl,
		currentCalls:  newRequestCoalescer[models.CurrentConditions](coalesceTimeout),
		forecastCalls: newRequestCoalescer[[]models.ForecastSample](coalesceTimeout),
	}
}

// GetCurrentConditions returns current conditions for city. Application-level
// not-found payloads are returned as-is and are not cached.
func (s *WeatherService) GetCurrentConditions(ctx context.Context, city string) (models.CurrentConditions, error) {
	return cacheAside(ctx, docCurrent, city, s.currentCache, s.currentCalls, s.ttl,
		s.client.GetCurrentConditions,
		func(c models.CurrentConditions) bool { return c.Found() })
}

// GetForecast returns the raw forecast samples for city.
func (s *WeatherService) GetForecast(ctx context.Context, city string) ([]models.ForecastSample, error) {
	return cacheAside(ctx, docForecast, city, s.forecastCache, s.forecastCalls, s.ttl,
		s.client.GetForecast,
		func(f []models.ForecastSample) bool { return len(f) > 0 })
}

// Prefetch loads both documents for city through the cache.
func (s *WeatherService) Prefetch(ctx context.Context, city string) error {
	_, curErr := s.GetCurrentConditions(ctx, city)
	_, fcErr := s.GetForecast(ctx, city)
	return errors.Join(curErr, fcErr)
}

// ValidateAPIKey checks upstream credentials. Used by the health endpoint.
func (s *WeatherService) ValidateAPIKey(ctx context.Context) error {
	return s.client.ValidateAPIKey(ctx)
}

func cacheAside[T any](
	ctx context.Context,
	doc, city string,
	c cache.Cache[T],
	calls *requestCoalescer[T],
	ttl time.Duration,
	fetch func(context.Context, string) (T, error),
	cacheable func(T) bool,
) (T, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)
	city = strings.TrimSpace(city)
	key := normalizeCity(city)

	cached, ok, err := c.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.String("doc", doc), zap.String("city", key), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(doc).Inc()
		logger.Debug("weather served", zap.String("doc", doc), zap.String("city", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return cached, nil
	}
	observability.CacheMissesTotal.WithLabelValues(doc).Inc()
	logger.Debug("cache miss, fetching upstream", zap.String("doc", doc), zap.String("city", key))

	data, shared, err := calls.GetOrDo(ctx, key, func(fctx context.Context) (T, error) {
		return fetch(fctx, city)
	})
	if shared {
		observability.CoalescedRequestsTotal.WithLabelValues(doc).Inc()
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("fetch %s for %s: %w", doc, key, err)
	}

	// Only the call that started the fetch writes the cache.
	if !shared && cacheable(data) {
		if setErr := c.Set(ctx, key, data, ttl); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			logger.Warn("cache set failed", zap.String("doc", doc), zap.String("city", key), zap.Error(setErr))
		}
	}
	logger.Debug("weather served", zap.String("doc", doc), zap.String("city", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return data, nil
}

// normalizeCity trims and lowercases a city for cache and coalescing keys. The
// upstream query keeps the caller's spelling.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
