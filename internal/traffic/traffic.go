// Package traffic keeps sliding-window counts of weather request outcomes.
// The health endpoint reads them to report overload and error-rate degradation.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies one served weather request.
type Outcome int

const (
	// Success is a request answered from upstream or cache, including not-found views.
	Success Outcome = iota
	// Failure is a request whose upstream fetch failed.
	Failure
	// Denied is a request rejected by the rate limiter.
	Denied
)

// Counts are the outcomes observed within a window.
type Counts struct {
	Success int
	Failure int
	Denied  int
}

// Total returns all outcomes including denials.
func (c Counts) Total() int { return c.Success + c.Failure + c.Denied }

// FailurePct returns failures as a percentage of served (non-denied) requests, or 0 when none were served.
func (c Counts) FailurePct() float64 {
	served := c.Success + c.Failure
	if served == 0 {
		return 0
	}
	return float64(c.Failure) * 100 / float64(served)
}

type event struct {
	at      time.Time
	outcome Outcome
}

// Tracker records outcome timestamps and drops those older than its retention.
type Tracker struct {
	mu        sync.Mutex
	retention time.Duration
	events    []event
	now       func() time.Time
}

// NewTracker creates a Tracker that keeps events for retention (5m if <= 0).
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	return &Tracker{retention: retention, now: time.Now}
}

// Record appends one outcome at the current time.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, outcome: o})
	t.pruneLocked(now)
}

// Counts returns outcome counts within the trailing window.
func (t *Tracker) Counts(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	var c Counts
	for _, e := range t.events {
		if e.at.Before(cutoff) {
			continue
		}
		switch e.outcome {
		case Success:
			c.Success++
		case Failure:
			c.Failure++
		case Denied:
			c.Denied++
		}
	}
	return c
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// pruneLocked drops events older than retention. Events are appended in time order.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
