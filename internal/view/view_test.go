package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kjstillabower/sweth/internal/client"
	"github.com/kjstillabower/sweth/internal/models"
)

type stubSource struct {
	current     models.CurrentConditions
	currentErr  error
	samples     []models.ForecastSample
	forecastErr error
}

func (s *stubSource) GetCurrentConditions(ctx context.Context, city string) (models.CurrentConditions, error) {
	return s.current, s.currentErr
}

func (s *stubSource) GetForecast(ctx context.Context, city string) ([]models.ForecastSample, error) {
	return s.samples, s.forecastErr
}

func mustSample(t *testing.T, ts string, temp float64, cond, desc string) models.ForecastSample {
	t.Helper()
	s, err := models.NewForecastSample(ts, temp, cond, desc)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestScreen_Open_Ready(t *testing.T) {
	src := &stubSource{
		current: models.CurrentConditions{City: "Berlin", Code: 200, Temperature: 18.4, Condition: "Clouds", Description: "overcast clouds"},
		samples: []models.ForecastSample{
			mustSample(t, "2024-06-01 15:00:00", 20.5, "Clear", "clear sky"),
			mustSample(t, "2024-06-01 18:00:00", 17, "Clear", "clear sky"),
			mustSample(t, "2024-06-02 00:00:00", -0.4, "Snow", "light snow"),
			mustSample(t, "2024-06-02 03:00:00", 1, "Snow", "snow"),
		},
	}

	v := NewScreen(src).Open(context.Background(), "berlin")

	if v.Status != models.ViewReady {
		t.Fatalf("Status = %q, want ready", v.Status)
	}
	if v.City != "Berlin" || v.Temperature != "18°C" || v.Description != "overcast clouds" || v.Condition != "Clouds" {
		t.Errorf("view = %+v", v)
	}
	if v.Retry != "" || v.Error != "" {
		t.Errorf("ready view has error/retry: %+v", v)
	}
	if len(v.Forecast) != 2 {
		t.Fatalf("len(Forecast) = %d, want 2", len(v.Forecast))
	}
	want0 := models.ForecastDay{Date: "2024-06-01", Weekday: "Saturday", Temperature: "21°C", Condition: "Clear", Description: "clear sky"}
	if v.Forecast[0] != want0 {
		t.Errorf("Forecast[0] = %+v, want %+v", v.Forecast[0], want0)
	}
	if v.Forecast[1].Temperature != "0°C" || v.Forecast[1].Weekday != "Sunday" {
		t.Errorf("Forecast[1] = %+v", v.Forecast[1])
	}
	if v.Generation != 1 {
		t.Errorf("Generation = %d, want 1", v.Generation)
	}
}

func TestScreen_Open_NotFound(t *testing.T) {
	tests := []struct {
		name string
		src  *stubSource
	}{
		{"payload cod 404", &stubSource{current: models.CurrentConditions{Code: 404, Message: "city not found"}}},
		{"missing cod", &stubSource{current: models.CurrentConditions{}}},
		{"http 404", &stubSource{currentErr: fmt.Errorf("fetch current: %w", client.ErrLocationNotFound)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewScreen(tt.src).Open(context.Background(), "Atlantis")
			if v.Status != models.ViewNotFound {
				t.Errorf("Status = %q, want not_found", v.Status)
			}
			if v.City != "Atlantis" || v.Retry != HomeRoute || v.Error == "" {
				t.Errorf("view = %+v", v)
			}
			if v.Temperature != "" {
				t.Errorf("Temperature = %q, want empty", v.Temperature)
			}
		})
	}
}

func TestScreen_Open_Unavailable(t *testing.T) {
	src := &stubSource{currentErr: client.ErrUpstreamFailure}
	v := NewScreen(src).Open(context.Background(), "Berlin")
	if v.Status != models.ViewUnavailable || v.Error != msgUnavailable || v.Retry != HomeRoute {
		t.Errorf("view = %+v", v)
	}
}

// TestScreen_Open_FetchesIndependent verifies each fetch only sets its own error.
func TestScreen_Open_FetchesIndependent(t *testing.T) {
	src := &stubSource{
		current:     models.CurrentConditions{City: "Oslo", Code: 200, Temperature: 2.5},
		forecastErr: errors.New("connection reset"),
	}
	v := NewScreen(src).Open(context.Background(), "Oslo")
	if v.Status != models.ViewReady || v.Temperature != "3°C" {
		t.Errorf("view = %+v", v)
	}
	if v.ForecastError == "" || v.Error != "" {
		t.Errorf("errors = (%q, %q)", v.Error, v.ForecastError)
	}
	if v.Forecast == nil || len(v.Forecast) != 0 {
		t.Errorf("Forecast = %#v, want empty non-nil", v.Forecast)
	}

	src = &stubSource{
		currentErr: client.ErrUpstreamFailure,
		samples:    []models.ForecastSample{mustSample(t, "2024-06-01 09:00:00", 10, "Rain", "rain")},
	}
	v = NewScreen(src).Open(context.Background(), "Oslo")
	if v.Status != models.ViewUnavailable || len(v.Forecast) != 1 || v.ForecastError != "" {
		t.Errorf("view = %+v", v)
	}
}

// gatedSource blocks the first current-conditions call until release is closed.
type gatedSource struct {
	stubSource
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (g *gatedSource) GetCurrentConditions(ctx context.Context, city string) (models.CurrentConditions, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		close(g.started)
		<-g.release
	}
	return models.CurrentConditions{City: city, Code: 200, Temperature: 10}, nil
}

func TestScreen_Open_DiscardsSupersededQuery(t *testing.T) {
	src := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	screen := NewScreen(src)

	firstCh := make(chan models.WeatherView, 1)
	go func() { firstCh <- screen.Open(context.Background(), "Paris") }()
	<-src.started

	second := screen.Open(context.Background(), "London")
	close(src.release)
	first := <-firstCh

	if first.Status != models.ViewStale || first.Temperature != "" {
		t.Errorf("first = %+v, want stale without data", first)
	}
	if second.Status != models.ViewReady || second.City != "London" {
		t.Errorf("second = %+v, want ready London", second)
	}
	if second.Generation != 2 || screen.Generation() != 2 {
		t.Errorf("generations = (%d, %d), want 2", second.Generation, screen.Generation())
	}
}

func TestFormatTemperature(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{18.4, "18°C"},
		{18.5, "19°C"},
		{-2.5, "-2°C"},
		{-2.6, "-3°C"},
		{-0.5, "0°C"},
		{-0.4, "0°C"},
		{-0.6, "-1°C"},
		{0, "0°C"},
		{30.49, "30°C"},
	}
	for _, tt := range tests {
		if got := FormatTemperature(tt.in); got != tt.want {
			t.Errorf("FormatTemperature(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
