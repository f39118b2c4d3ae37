package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DefaultTTL is the inactivity window after which a session disappears.
const DefaultTTL = time.Hour

// Store keeps one value per chat id with a sliding TTL refreshed on every write.
type Store[T any] interface {
	// Get returns the stored value, or the zero value and false when the key
	// is absent or expired.
	Get(ctx context.Context, id int64) (T, bool, error)
	// Update loads the current value (zero if absent), applies fn and persists
	// the result atomically. When fn returns an error nothing is written.
	// Values reported empty by Options.IsZero are deleted instead of stored.
	Update(ctx context.Context, id int64, fn func(*T) error) (T, error)
	// Delete drops the key.
	Delete(ctx context.Context, id int64) error
}

// Options configures a Store.
type Options[T any] struct {
	// Namespace prefixes every key, e.g. "user" -> "user:<id>".
	Namespace string
	TTL       time.Duration
	// IsZero reports values that should be removed rather than stored.
	IsZero func(T) bool
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

func (o Options[T]) normalized() Options[T] {
	if o.Namespace == "" {
		o.Namespace = "user"
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options[T]) key(id int64) string {
	return o.Namespace + ":" + strconv.FormatInt(id, 10)
}

func (o Options[T]) empty(v T) bool {
	return o.IsZero != nil && o.IsZero(v)
}

func encode[T any](v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("state: encode: %w", err)
	}
	return data, nil
}

func decode[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("state: decode: %w", err)
	}
	return v, nil
}
