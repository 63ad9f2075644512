package models

import (
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the zero-padded layout of forecast dt_txt values.
const TimestampLayout = "2006-01-02 15:04:05"

// ErrInvalidTimestamp is returned when a forecast timestamp does not match TimestampLayout.
var ErrInvalidTimestamp = errors.New("invalid forecast timestamp")

// ForecastSample is one 3-hour forecast entry. Date and TimeOfDay are the two
// halves of Timestamp, split without any timezone conversion.
type ForecastSample struct {
	Timestamp   string  `json:"timestamp"`
	Date        string  `json:"date"`
	TimeOfDay   string  `json:"timeOfDay"`
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Description string  `json:"description"`
}

// NewForecastSample validates ts and returns a sample with Date and TimeOfDay populated.
func NewForecastSample(ts string, temperature float64, condition, description string) (ForecastSample, error) {
	if len(ts) != len(TimestampLayout) {
		return ForecastSample{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
	}
	if _, err := time.Parse(TimestampLayout, ts); err != nil {
		return ForecastSample{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
	}
	return ForecastSample{
		Timestamp:   ts,
		Date:        ts[:10],
		TimeOfDay:   ts[11:],
		Temperature: temperature,
		Condition:   condition,
		Description: description,
	}, nil
}
