// Package lifecycle tracks process start time and the draining flag that the
// health endpoint reports during graceful shutdown.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// State is the process lifecycle. The zero value is not usable; call New.
type State struct {
	started      time.Time
	shuttingDown atomic.Bool
}

// New returns a State started now.
func New() *State {
	return &State{started: time.Now()}
}

// BeginShutdown marks the process as draining. Call when SIGTERM/SIGINT is received.
func (s *State) BeginShutdown() {
	s.shuttingDown.Store(true)
}

// ShuttingDown reports whether the process is draining and should not receive new traffic.
func (s *State) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Uptime returns time since start, truncated to seconds.
func (s *State) Uptime() time.Duration {
	return time.Since(s.started).Truncate(time.Second)
}
