package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sweth/internal/cache"
	"github.com/kjstillabower/sweth/internal/circuitbreaker"
	"github.com/kjstillabower/sweth/internal/client"
	"github.com/kjstillabower/sweth/internal/config"
	"github.com/kjstillabower/sweth/internal/history"
	httphandler "github.com/kjstillabower/sweth/internal/http"
	"github.com/kjstillabower/sweth/internal/kv"
	"github.com/kjstillabower/sweth/internal/lifecycle"
	"github.com/kjstillabower/sweth/internal/models"
	"github.com/kjstillabower/sweth/internal/observability"
	"github.com/kjstillabower/sweth/internal/service"
	"github.com/kjstillabower/sweth/internal/traffic"
	"github.com/kjstillabower/sweth/internal/view"
)

const breakerComponent = "weather_api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	weatherClient, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			IsFailure:        client.CountsAgainstBreaker,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.CircuitBreakerTransitionsTotal.WithLabelValues(breakerComponent, from.String(), to.String()).Inc()
				observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(float64(to))
				logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(float64(circuitbreaker.StateClosed))
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	var (
		currentCache  cache.Cache[models.CurrentConditions]
		forecastCache cache.Cache[[]models.ForecastSample]
		memcacheConn  *memcache.Client
	)
	switch cfg.CacheBackend {
	case "memcached":
		memcacheConn = cache.NewMemcacheClient(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		currentCache = cache.NewMemcachedCache[models.CurrentConditions](memcacheConn, "current")
		forecastCache = cache.NewMemcachedCache[[]models.ForecastSample](memcacheConn, "forecast")
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		currentCache = cache.NewInMemoryCache[models.CurrentConditions]()
		forecastCache = cache.NewInMemoryCache[[]models.ForecastSample]()
		logger.Info("cache backend: in_memory")
	}
	weatherService := service.NewWeatherService(weatherClient, currentCache, forecastCache, cfg.CacheTTL, cfg.CoalesceTimeout)

	store, err := openHistoryBackend(cfg)
	if err != nil {
		logger.Fatal("history backend", zap.Error(err))
	}
	logger.Info("history backend", zap.String("backend", cfg.HistoryBackend), zap.String("path", cfg.HistoryPath))

	startCtx, startCancel := context.WithTimeout(context.Background(), 5*time.Second)
	searchHistory := history.Open(startCtx, store, cfg.HistoryKey, cfg.HistoryMaxEntries, logger)
	startCancel()

	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	warmCtx, stopWarming := context.WithCancel(context.Background())
	defer stopWarming()
	if cfg.WarmCache && len(cfg.TrackedCities) > 0 {
		warmer := cache.NewCacheWarmer(weatherService, logger)
		initialCtx, initialCancel := context.WithTimeout(warmCtx, 30*time.Second)
		if err := warmer.Warm(initialCtx, cfg.TrackedCities); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		initialCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(warmCtx, cfg.TrackedCities, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	healthConfig := &httphandler.HealthConfig{
		Window:               cfg.HealthWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedErrorPct:     cfg.DegradedErrorPct,
	}
	if memcacheConn != nil {
		healthConfig.CachePing = memcacheConn.Ping
	}
	if p, ok := store.(interface{ Ping() error }); ok {
		healthConfig.HistoryPing = p.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	state := lifecycle.New()
	handler := httphandler.NewHandler(
		searchHistory,
		view.NewSessions(weatherService, cfg.MaxSessions),
		weatherService,
		healthConfig,
		state,
		traffic.NewTracker(cfg.HealthWindow),
		httphandler.CityLimits{Min: cfg.CityMinLength, Max: cfg.CityMaxLength},
		logger,
	)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	state.BeginShutdown()
	stopWarming()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := store.Close(); err != nil {
		logger.Error("history backend close", zap.Error(err))
	}
	if memcacheConn != nil {
		if err := memcacheConn.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")

	if err := observability.FlushTelemetry(logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// openHistoryBackend returns the durable key/value store selected by cfg.HistoryBackend.
func openHistoryBackend(cfg *config.Config) (kv.Store, error) {
	switch cfg.HistoryBackend {
	case "in_memory":
		return kv.NewInMemoryStore(), nil
	case "sqlite":
		return kv.NewSQLiteStore(cfg.HistoryPath)
	case "memcached":
		return kv.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns), nil
	default:
		return kv.NewFileStore(cfg.HistoryPath)
	}
}
