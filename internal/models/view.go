package models

// ViewStatus is the outcome of opening the weather view for a city.
type ViewStatus string

const (
	ViewReady       ViewStatus = "ready"
	ViewNotFound    ViewStatus = "not_found"
	ViewUnavailable ViewStatus = "unavailable"
	ViewStale       ViewStatus = "stale"
)

// WeatherView is the rendered weather destination: current conditions plus one
// forecast entry per day. Error and ForecastError are scoped to their own fetch.
type WeatherView struct {
	City          string        `json:"city"`
	Status        ViewStatus    `json:"status"`
	Temperature   string        `json:"temperature,omitempty"`
	Condition     string        `json:"condition,omitempty"`
	Description   string        `json:"description,omitempty"`
	Forecast      []ForecastDay `json:"forecast"`
	Error         string        `json:"error,omitempty"`
	ForecastError string        `json:"forecastError,omitempty"`
	Retry         string        `json:"retry,omitempty"`
	Generation    uint64        `json:"generation"`
}

// ForecastDay is the rendered representative sample for one calendar date.
type ForecastDay struct {
	Date        string `json:"date"`
	Weekday     string `json:"weekday"`
	Temperature string `json:"temperature"`
	Condition   string `json:"condition"`
	Description string `json:"description"`
}
