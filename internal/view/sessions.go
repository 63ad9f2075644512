package view

import (
	"sync"
	"time"
)

// Sessions hands out one Screen per client session so that generations are
// compared only between queries of the same client. The least recently used
// session is evicted when maxSessions is reached.
type Sessions struct {
	mu          sync.Mutex
	source      WeatherSource
	screens     map[string]*Screen
	maxSessions int
}

// NewSessions creates a session registry. maxSessions <= 0 means 1024.
func NewSessions(source WeatherSource, maxSessions int) *Sessions {
	if maxSessions <= 0 {
		maxSessions = 1024
	}
	return &Sessions{
		source:      source,
		screens:     make(map[string]*Screen),
		maxSessions: maxSessions,
	}
}

// Screen returns the Screen for id, creating it if needed. An empty id yields a
// fresh, unregistered Screen.
func (s *Sessions) Screen(id string) *Screen {
	if id == "" {
		return NewScreen(s.source)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.screens[id]; ok {
		return sc
	}
	if len(s.screens) >= s.maxSessions {
		s.evictOldestLocked()
	}
	sc := NewScreen(s.source)
	s.screens[id] = sc
	return sc
}

// Len returns the number of registered sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.screens)
}

func (s *Sessions) evictOldestLocked() {
	var (
		oldestID string
		oldest   int64 = time.Now().UnixNano() + 1
	)
	for id, sc := range s.screens {
		if t := sc.lastUsed.Load(); t < oldest {
			oldest, oldestID = t, id
		}
	}
	delete(s.screens, oldestID)
}
