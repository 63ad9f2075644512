package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sweth/internal/circuitbreaker"
	"github.com/kjstillabower/sweth/internal/models"
	"github.com/kjstillabower/sweth/internal/observability"
)

// WeatherClient fetches documents from the external weather data source.
type WeatherClient interface {
	GetCurrentConditions(ctx context.Context, city string) (models.CurrentConditions, error)
	GetForecast(ctx context.Context, city string) ([]models.ForecastSample, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

const (
	endpointCurrent  = "current"
	endpointForecast = "forecast"
)

// OpenWeatherClient talks to the OpenWeatherMap 2.5 API rooted at baseURL
// (e.g. https://api.openweathermap.org/data/2.5).
type OpenWeatherClient struct {
	apiKey         string
	baseURL        string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, baseURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

func NewOpenWeatherClientWithRetry(apiKey, baseURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}

	return &OpenWeatherClient{
		apiKey:         apiKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps every upstream attempt in cb. Nil disables it.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// statusCode decodes the "cod" field, which the API sends as a number on
// success and as a string on some failures.
type statusCode int

func (s *statusCode) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*s = statusCode(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("cod: %w", err)
	}
	if strings.TrimSpace(str) == "" {
		*s = 0
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(str))
	if err != nil {
		return fmt.Errorf("cod %q: %w", str, err)
	}
	*s = statusCode(n)
	return nil
}

type condition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type currentResponse struct {
	Cod     statusCode `json:"cod"`
	Message string     `json:"message"`
	Name    string     `json:"name"`
	Main    struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []condition `json:"weather"`
}

type forecastEntry struct {
	DtTxt string `json:"dt_txt"`
	Main  struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []condition `json:"weather"`
}

type forecastResponse struct {
	Cod  statusCode      `json:"cod"`
	List []forecastEntry `json:"list"`
}

// GetCurrentConditions fetches the current-conditions document. A decoded
// payload is returned even when its cod reports failure; callers check Found.
func (c *OpenWeatherClient) GetCurrentConditions(ctx context.Context, city string) (models.CurrentConditions, error) {
	var resp currentResponse
	if err := c.withRetry(ctx, endpointCurrent, func() error {
		resp = currentResponse{}
		return c.callAPI(ctx, endpointCurrent, "/weather", city, &resp)
	}); err != nil {
		return models.CurrentConditions{}, err
	}
	return mapCurrent(resp, city), nil
}

// GetForecast fetches the 5-day/3-hour forecast. Entries with malformed
// timestamps are dropped here so downstream code only sees valid samples.
func (c *OpenWeatherClient) GetForecast(ctx context.Context, city string) ([]models.ForecastSample, error) {
	var resp forecastResponse
	if err := c.withRetry(ctx, endpointForecast, func() error {
		resp = forecastResponse{}
		return c.callAPI(ctx, endpointForecast, "/forecast", city, &resp)
	}); err != nil {
		return nil, err
	}
	if resp.Cod != 0 && resp.Cod != http.StatusOK {
		return nil, fmt.Errorf("%w: forecast cod %d", ErrLocationNotFound, resp.Cod)
	}
	return mapForecast(ctx, resp), nil
}

func (c *OpenWeatherClient) withRetry(ctx context.Context, endpoint string, call func() error) error {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.WithLabelValues(endpoint).Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		var err error
		if c.breaker != nil {
			err = c.breaker.Call(call)
		} else {
			err = call()
		}
		if err == nil {
			return nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint, path, city string, out any) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, path, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *OpenWeatherClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") {
		return true
	}
	return false
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, path, city string) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenWeatherClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: invalid API key", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func mapCurrent(resp currentResponse, city string) models.CurrentConditions {
	out := models.CurrentConditions{
		City:        resp.Name,
		Code:        int(resp.Cod),
		Message:     resp.Message,
		Temperature: resp.Main.Temp,
		FetchedAt:   time.Now(),
	}
	if out.City == "" {
		out.City = city
	}
	if len(resp.Weather) > 0 {
		out.Condition = resp.Weather[0].Main
		out.Description = resp.Weather[0].Description
	}
	return out
}

func mapForecast(ctx context.Context, resp forecastResponse) []models.ForecastSample {
	samples := make([]models.ForecastSample, 0, len(resp.List))
	for _, e := range resp.List {
		var cond condition
		if len(e.Weather) > 0 {
			cond = e.Weather[0]
		}
		s, err := models.NewForecastSample(e.DtTxt, e.Main.Temp, cond.Main, cond.Description)
		if err != nil {
			observability.ForecastSamplesRejectedTotal.Inc()
			observability.LoggerFromContext(ctx).Debug("forecast sample rejected", zap.Error(err))
			continue
		}
		samples = append(samples, s)
	}
	return samples
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues one current-conditions request for a known city and
// reports whether the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "/weather", "London")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
	return nil
}
