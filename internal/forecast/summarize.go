package forecast

import (
	"time"

	"github.com/kjstillabower/sweth/internal/models"
)

// Summarize reduces time-ordered 3-hour samples to one sample per calendar date.
// Dates keep their first-seen order. For each date the sample with the smallest
// TimeOfDay wins; equal times keep the sample seen first. Input order is trusted.
func Summarize(samples []models.ForecastSample) []models.ForecastSample {
	out := make([]models.ForecastSample, 0, len(samples)/8+1)
	index := make(map[string]int)
	for _, s := range samples {
		i, seen := index[s.Date]
		if !seen {
			index[s.Date] = len(out)
			out = append(out, s)
			continue
		}
		if s.TimeOfDay < out[i].TimeOfDay {
			out[i] = s
		}
	}
	return out
}

// Weekday returns the English weekday name for a YYYY-MM-DD date key,
// or "" if the date cannot be parsed.
func Weekday(date string) string {
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return ""
	}
	return d.Weekday().String()
}
