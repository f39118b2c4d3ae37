package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/tradebot/core/logger"
)

type memoryEntry struct {
	payload []byte
	expires time.Time
}

type memoryStore[T any] struct {
	opts Options[T]

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore constructs an in-process Store for tests and development.
func NewMemoryStore[T any](opts Options[T]) Store[T] {
	return &memoryStore[T]{
		opts:    opts.normalized(),
		entries: make(map[string]memoryEntry),
	}
}

func (m *memoryStore[T]) Get(ctx context.Context, id int64) (T, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx, m.opts.key(id))
}

func (m *memoryStore[T]) Update(ctx context.Context, id int64, fn func(*T) error) (T, error) {
	key := m.opts.key(id)

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, _, err := m.load(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := fn(&cur); err != nil {
		var zero T
		return zero, err
	}
	if m.opts.empty(cur) {
		delete(m.entries, key)
		return cur, nil
	}
	payload, err := encode(cur)
	if err != nil {
		var zero T
		return zero, err
	}
	m.entries[key] = memoryEntry{payload: payload, expires: m.opts.Now().Add(m.opts.TTL)}
	return cur, nil
}

func (m *memoryStore[T]) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, m.opts.key(id))
	return nil
}

// load must be called with mu held.
func (m *memoryStore[T]) load(ctx context.Context, key string) (T, bool, error) {
	var zero T
	entry, ok := m.entries[key]
	if !ok {
		return zero, false, nil
	}
	if !m.opts.Now().Before(entry.expires) {
		delete(m.entries, key)
		logger.Debug(ctx, "session", "session.expired",
			slog.String("key", key),
		)
		return zero, false, nil
	}
	v, err := decode[T](entry.payload)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}
