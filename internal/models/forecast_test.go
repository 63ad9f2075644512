package models

import (
	"errors"
	"testing"
)

func TestNewForecastSample(t *testing.T) {
	s, err := NewForecastSample("2024-06-01 06:00:00", 12.3, "Rain", "light rain")
	if err != nil {
		t.Fatalf("NewForecastSample() error = %v", err)
	}
	if s.Date != "2024-06-01" || s.TimeOfDay != "06:00:00" {
		t.Errorf("split = (%q, %q), want (2024-06-01, 06:00:00)", s.Date, s.TimeOfDay)
	}
}

func TestNewForecastSample_Invalid(t *testing.T) {
	for _, ts := range []string{"", "2024-06-01", "2024-06-01T06:00:00Z", "2024-6-1 6:00:00", "2024-13-01 06:00:00", "2024-06-01 6:00:00"} {
		if _, err := NewForecastSample(ts, 0, "", ""); !errors.Is(err, ErrInvalidTimestamp) {
			t.Errorf("NewForecastSample(%q) error = %v, want ErrInvalidTimestamp", ts, err)
		}
	}
}

func TestCurrentConditions_Found(t *testing.T) {
	if !(CurrentConditions{Code: 200}).Found() {
		t.Error("Found() = false for cod 200")
	}
	for _, code := range []int{0, 404, 401} {
		if (CurrentConditions{Code: code}).Found() {
			t.Errorf("Found() = true for cod %d", code)
		}
	}
}
