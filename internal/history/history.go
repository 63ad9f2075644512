// Package history keeps the most recent distinct city searches and persists them
// as a JSON list under a single key of a durable key/value store.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/sweth/internal/kv"
	"github.com/kjstillabower/sweth/internal/observability"
)

const (
	// DefaultMaxEntries is the history capacity.
	DefaultMaxEntries = 5
	// DefaultKey is the storage key holding the JSON-encoded list.
	DefaultKey = "searchHistory"
)

// Store is the in-memory search history backed by a kv.Store.
// Index 0 is the most recent search. Entries are unique by exact string match.
type Store struct {
	mu         sync.Mutex
	backend    kv.Store
	key        string
	maxEntries int
	entries    []string
	logger     *zap.Logger
}

// New creates an empty Store. Call Load to populate it from the backend.
// Non-positive maxEntries and empty key fall back to the defaults.
func New(backend kv.Store, key string, maxEntries int, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend:    backend,
		key:        key,
		maxEntries: maxEntries,
		entries:    []string{},
		logger:     logger,
	}
}

// Open creates a Store and loads the persisted history once.
func Open(ctx context.Context, backend kv.Store, key string, maxEntries int, logger *zap.Logger) *Store {
	s := New(backend, key, maxEntries, logger)
	s.Load(ctx)
	return s
}

// Load reads the persisted list and replaces the in-memory history with at most
// maxEntries of it. Absent, unreadable, or unparseable data yields an empty history.
func (s *Store) Load(ctx context.Context) []string {
	loaded := s.read(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = loaded
	return s.snapshotLocked()
}

func (s *Store) read(ctx context.Context) []string {
	raw, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		observability.HistoryPersistErrorsTotal.WithLabelValues("load").Inc()
		s.logger.Warn("history load failed", zap.String("key", s.key), zap.Error(err))
		return []string{}
	}
	if !ok {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		observability.HistoryPersistErrorsTotal.WithLabelValues("decode").Inc()
		s.logger.Warn("history data unparseable, starting empty", zap.String("key", s.key), zap.Error(err))
		return []string{}
	}
	if list == nil {
		return []string{}
	}
	if len(list) > s.maxEntries {
		list = list[:s.maxEntries]
	}
	return list
}

// Record moves city to the front, removes earlier exact duplicates, truncates to
// maxEntries and persists the result. The updated list is returned even when the
// durable write fails.
func (s *Store) Record(ctx context.Context, city string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]string, 0, s.maxEntries)
	next = append(next, city)
	for _, e := range s.entries {
		if len(next) == s.maxEntries {
			break
		}
		if e != city {
			next = append(next, e)
		}
	}
	s.entries = next
	observability.RecordSearch(city)

	if err := s.persistLocked(ctx); err != nil {
		observability.HistoryPersistErrorsTotal.WithLabelValues("save").Inc()
		s.logger.Warn("history save failed",
			zap.String("city", city),
			zap.String("correlationId", observability.CorrelationID(ctx)),
			zap.Error(err))
	}
	return s.snapshotLocked()
}

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.backend.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Select returns the chosen entry unchanged. Selecting never reorders the history.
func (s *Store) Select(city string) string {
	return city
}

// Entries returns a copy of the current history, most recent first.
func (s *Store) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []string {
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}
