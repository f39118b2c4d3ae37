package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/tradebot/core/logger"
)

type postgresStore[T any] struct {
	db   *sqlx.DB
	opts Options[T]
}

// NewPostgresStore returns a Store backed by the sessions table (see
// migrations). Expired rows are pruned on construction and ignored on read.
func NewPostgresStore[T any](ctx context.Context, db *sqlx.DB, opts Options[T]) (Store[T], error) {
	if db == nil {
		return nil, fmt.Errorf("state: nil db")
	}
	s := &postgresStore[T]{db: db, opts: opts.normalized()}
	if err := s.Prune(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Prune deletes rows whose TTL has elapsed.
func (s *postgresStore[T]) Prune(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, s.opts.Now().UTC())
	if err != nil {
		return fmt.Errorf("state: prune: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Info(ctx, "session", "session.prune",
			slog.Int64("count", n),
		)
	}
	return nil
}

func (s *postgresStore[T]) Get(ctx context.Context, id int64) (T, bool, error) {
	var zero T
	var payload []byte
	err := s.db.GetContext(ctx, &payload,
		`SELECT payload FROM sessions WHERE key = $1 AND expires_at > $2`,
		s.opts.key(id), s.opts.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("state: get: %w", err)
	}
	v, err := decode[T](payload)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (s *postgresStore[T]) Update(ctx context.Context, id int64, fn func(*T) error) (T, error) {
	var zero T
	key := s.opts.key(id)
	start := time.Now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("state: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Serialises writers for the key even when no row exists yet.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return zero, fmt.Errorf("state: lock: %w", err)
	}

	var payload []byte
	err = tx.GetContext(ctx, &payload,
		`SELECT payload FROM sessions WHERE key = $1 AND expires_at > $2 FOR UPDATE`,
		key, s.opts.Now().UTC())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("state: load: %w", err)
	}
	cur, err := decode[T](payload)
	if err != nil {
		return zero, err
	}

	if err := fn(&cur); err != nil {
		return zero, err
	}

	if s.opts.empty(cur) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE key = $1`, key); err != nil {
			return zero, fmt.Errorf("state: delete: %w", err)
		}
	} else {
		data, err := encode(cur)
		if err != nil {
			return zero, err
		}
		expires := s.opts.Now().Add(s.opts.TTL).UTC()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (key, payload, expires_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET
				payload = EXCLUDED.payload,
				expires_at = EXCLUDED.expires_at`,
			key, string(data), expires); err != nil {
			return zero, fmt.Errorf("state: save: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("state: commit: %w", err)
	}
	logger.Debug(ctx, "session", "session.update",
		slog.String("key", key),
		slog.Duration("duration", logger.Took(start)),
	)
	return cur, nil
}

func (s *postgresStore[T]) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = $1`, s.opts.key(id)); err != nil {
		return fmt.Errorf("state: delete: %w", err)
	}
	return nil
}
