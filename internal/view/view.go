// Package view assembles the weather view for a city: current conditions and a
// per-day forecast fetched concurrently, with superseded queries discarded.
package view

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sweth/internal/client"
	"github.com/kjstillabower/sweth/internal/forecast"
	"github.com/kjstillabower/sweth/internal/models"
	"github.com/kjstillabower/sweth/internal/observability"
)

// HomeRoute is the retry destination offered by not-found and unavailable views.
const HomeRoute = "/history"

const (
	msgNotFound            = "City not found"
	msgUnavailable         = "Weather data is currently unavailable"
	msgForecastUnavailable = "Forecast is currently unavailable"
)

// WeatherSource provides the two documents a view is built from.
type WeatherSource interface {
	GetCurrentConditions(ctx context.Context, city string) (models.CurrentConditions, error)
	GetForecast(ctx context.Context, city string) ([]models.ForecastSample, error)
}

// Screen is one weather destination. Each Open starts a new generation; a view
// whose generation is no longer the latest when its fetches settle is returned
// as stale without data.
type Screen struct {
	source     WeatherSource
	generation atomic.Uint64
	lastUsed   atomic.Int64
}

// NewScreen creates a Screen reading from source.
func NewScreen(source WeatherSource) *Screen {
	s := &Screen{source: source}
	s.touch()
	return s
}

func (s *Screen) touch() { s.lastUsed.Store(time.Now().UnixNano()) }

// Generation returns the generation of the most recent Open.
func (s *Screen) Generation() uint64 { return s.generation.Load() }

// Open fetches current conditions and forecast for city concurrently and renders
// the view. A failure in one fetch never aborts the other.
func (s *Screen) Open(ctx context.Context, city string) models.WeatherView {
	s.touch()
	gen := s.generation.Add(1)
	logger := observability.LoggerFromContext(ctx).With(zap.String("city", city), zap.Uint64("generation", gen))

	var (
		wg          sync.WaitGroup
		current     models.CurrentConditions
		currentErr  error
		samples     []models.ForecastSample
		forecastErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		current, currentErr = s.source.GetCurrentConditions(ctx, city)
	}()
	go func() {
		defer wg.Done()
		samples, forecastErr = s.source.GetForecast(ctx, city)
	}()
	wg.Wait()

	if latest := s.generation.Load(); latest != gen {
		logger.Debug("discarding superseded weather view", zap.Uint64("latest", latest))
		observability.WeatherViewsTotal.WithLabelValues(string(models.ViewStale)).Inc()
		return models.WeatherView{City: city, Status: models.ViewStale, Forecast: []models.ForecastDay{}, Generation: gen}
	}

	v := render(city, current, currentErr, samples, forecastErr)
	v.Generation = gen
	if currentErr != nil {
		observability.WeatherFetchErrorsTotal.WithLabelValues("current", string(client.CategorizeError(currentErr))).Inc()
		logger.Warn("current conditions fetch failed", zap.Error(currentErr))
	}
	if forecastErr != nil {
		observability.WeatherFetchErrorsTotal.WithLabelValues("forecast", string(client.CategorizeError(forecastErr))).Inc()
		logger.Warn("forecast fetch failed", zap.Error(forecastErr))
	}
	observability.WeatherViewsTotal.WithLabelValues(string(v.Status)).Inc()
	return v
}

func render(city string, current models.CurrentConditions, currentErr error, samples []models.ForecastSample, forecastErr error) models.WeatherView {
	v := models.WeatherView{City: city, Forecast: []models.ForecastDay{}}

	switch {
	case currentErr != nil && errors.Is(currentErr, client.ErrLocationNotFound):
		v.Status = models.ViewNotFound
		v.Error = msgNotFound
	case currentErr != nil:
		v.Status = models.ViewUnavailable
		v.Error = msgUnavailable
	case !current.Found():
		v.Status = models.ViewNotFound
		v.Error = msgNotFound
		if current.Message != "" {
			v.Error = fmt.Sprintf("%s: %s", msgNotFound, current.Message)
		}
	default:
		v.Status = models.ViewReady
		if current.City != "" {
			v.City = current.City
		}
		v.Temperature = FormatTemperature(current.Temperature)
		v.Condition = current.Condition
		v.Description = current.Description
	}
	if v.Status != models.ViewReady {
		v.Retry = HomeRoute
	}

	if forecastErr != nil {
		v.ForecastError = msgForecastUnavailable
		return v
	}
	for _, s := range forecast.Summarize(samples) {
		v.Forecast = append(v.Forecast, models.ForecastDay{
			Date:        s.Date,
			Weekday:     forecast.Weekday(s.Date),
			Temperature: FormatTemperature(s.Temperature),
			Condition:   s.Condition,
			Description: s.Description,
		})
	}
	return v
}

// FormatTemperature renders Celsius rounded half up toward +Inf, e.g. 18.4 -> "18°C"
// and -2.5 -> "-2°C".
func FormatTemperature(c float64) string {
	return fmt.Sprintf("%d°C", int(math.Floor(c+0.5)))
}
