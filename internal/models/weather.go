package models

import "time"

// CurrentConditions is the decoded current-conditions document for one city.
// Code is the application-level status reported inside the payload (0 when absent).
type CurrentConditions struct {
	City        string    `json:"city"`
	Code        int       `json:"cod"`
	Message     string    `json:"message,omitempty"`
	Temperature float64   `json:"temperature"`
	Condition   string    `json:"condition"`
	Description string    `json:"description"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// Found reports whether the payload describes a known city.
func (c CurrentConditions) Found() bool {
	return c.Code == 200
}
