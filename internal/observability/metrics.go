package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap call rate by endpoint (current, forecast). Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency per request. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts for weather API. Watch for: high retries = unstable upstream.
	WeatherAPIRetriesTotal *prometheus.CounterVec

	// Forecast entries dropped at decode because dt_txt was malformed.
	ForecastSamplesRejectedTotal prometheus.Counter

	// Cache hits and misses by document type (current, forecast).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend errors by operation. Never fail a request.
	CacheErrorsTotal *prometheus.CounterVec

	// Callers that shared another caller's in-flight upstream fetch, by document type.
	CoalescedRequestsTotal *prometheus.CounterVec

	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Recorded searches (history mutations). Per-city labels use an allow-list; others go to "other".
	SearchesTotal       prometheus.Counter
	SearchesByCityTotal *prometheus.CounterVec

	// History load/save failures against the durable store. Watch for: storage outage.
	HistoryPersistErrorsTotal *prometheus.CounterVec

	// Weather views by outcome (ready, not_found, unavailable, stale).
	WeatherViewsTotal *prometheus.CounterVec

	// Fetch failures inside a weather view by fetch (current, forecast) and error category.
	WeatherFetchErrorsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state (0 closed, 1 open, 2 half_open) and transitions.
	CircuitBreakerState            *prometheus.GaugeVec
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "httpRequestsTotal", Help: "Total number of HTTP requests"},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "httpRequestsInFlight", Help: "Number of HTTP requests currently being served"},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherApiCallsTotal", Help: "Total number of OpenWeatherMap API calls"},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherApiRetriesTotal", Help: "Total number of retry attempts for weather API calls"},
		[]string{"endpoint"},
	)
	ForecastSamplesRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "forecastSamplesRejectedTotal", Help: "Forecast entries dropped for malformed timestamps"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheHitsTotal", Help: "Total number of cache hits"},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheMissesTotal", Help: "Total number of cache misses"},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheErrorsTotal", Help: "Cache backend errors by operation"},
		[]string{"operation"},
	)
	CoalescedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "coalescedRequestsTotal", Help: "Requests served by joining an in-flight upstream fetch"},
		[]string{"cacheType"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cacheWarmingTotal", Help: "Cache warming runs"},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cacheWarmingErrorsTotal", Help: "Cache warming runs with at least one failure"},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "cacheWarmingDurationSeconds", Help: "Cache warming run duration", Buckets: prometheus.DefBuckets},
	)
	SearchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "searchesTotal", Help: "Total number of recorded searches"},
	)
	SearchesByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "searchesByCityTotal", Help: "Searches by city (allow-list; others use city=other)"},
		[]string{"city"},
	)
	HistoryPersistErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "historyPersistErrorsTotal", Help: "Search history storage failures by operation"},
		[]string{"operation"},
	)
	WeatherViewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherViewsTotal", Help: "Weather views opened by outcome"},
		[]string{"status"},
	)
	WeatherFetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherFetchErrorsTotal", Help: "Weather view fetch failures by fetch and category"},
		[]string{"fetch", "category"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rateLimitDeniedTotal", Help: "Total number of requests denied by rate limiter (429)"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "circuitBreakerState", Help: "Circuit breaker state: 0 closed, 1 open, 2 half_open"},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "circuitBreakerTransitionsTotal", Help: "Circuit breaker state transitions"},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		ForecastSamplesRejectedTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CoalescedRequestsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		SearchesTotal, SearchesByCityTotal,
		HistoryPersistErrorsTotal,
		WeatherViewsTotal, WeatherFetchErrorsTotal,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
	)
}

// SetTrackedCities sets the allow-list for per-city metrics. Non-tracked cities increment "other".
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// RecordSearch records a search for the given city.
func RecordSearch(city string) {
	SearchesTotal.Inc()
	SearchesByCityTotal.WithLabelValues(MetricCityLabel(city)).Inc()
}

// MetricCityLabel returns the normalized city if tracked, otherwise "other".
func MetricCityLabel(city string) string {
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c]
	trackedCitiesMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
