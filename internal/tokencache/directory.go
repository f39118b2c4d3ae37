package tokencache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/internal/gateway/jupiter"
)

// DefaultTTL bounds how long token metadata is trusted.
const DefaultTTL = time.Hour

// symbolMaxLen separates symbol queries from mint addresses.
const symbolMaxLen = 10

// Searcher is the token directory.
type Searcher interface {
	SearchTokens(ctx context.Context, query string) ([]jupiter.Token, error)
}

// Directory resolves user text to tokens through the cache.
type Directory struct {
	search Searcher
	cache  *Store
	ttl    time.Duration
}

// NewDirectory wraps search; cache may be nil.
func NewDirectory(search Searcher, cache *Store, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{search: search, cache: cache, ttl: ttl}
}

// Resolve matches short queries by case-insensitive symbol and longer ones
// by exact mint. It reports false when nothing matches.
func (d *Directory) Resolve(ctx context.Context, query string) (jupiter.Token, bool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return jupiter.Token{}, false, nil
	}
	bySymbol := len(query) < symbolMaxLen
	key := "mint:" + query
	if bySymbol {
		key = "symbol:" + strings.ToLower(query)
	}

	if tok, ok := d.cached(ctx, key); ok {
		return tok, true, nil
	}

	results, err := d.search.SearchTokens(ctx, query)
	if err != nil {
		return jupiter.Token{}, false, err
	}
	for _, tok := range results {
		match := tok.ID == query
		if bySymbol {
			match = strings.EqualFold(tok.Symbol, query)
		}
		if !match {
			continue
		}
		d.store(ctx, key, tok)
		if bySymbol {
			d.store(ctx, "mint:"+tok.ID, tok)
		}
		return tok, true, nil
	}
	return jupiter.Token{}, false, nil
}

func (d *Directory) cached(ctx context.Context, key string) (jupiter.Token, bool) {
	if d.cache == nil {
		return jupiter.Token{}, false
	}
	raw, ok, err := d.cache.Get(key)
	if err != nil {
		logger.Warn(ctx, "tokencache", "cache.read",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return jupiter.Token{}, false
	}
	if !ok {
		logger.Debug(ctx, "tokencache", "cache.lookup", slog.String("cache", "miss"))
		return jupiter.Token{}, false
	}
	var tok jupiter.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return jupiter.Token{}, false
	}
	logger.Debug(ctx, "tokencache", "cache.lookup", slog.String("cache", "hit"))
	return tok, true
}

func (d *Directory) store(ctx context.Context, key string, tok jupiter.Token) {
	if d.cache == nil {
		return
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return
	}
	if err := d.cache.Set(key, raw, d.ttl); err != nil {
		logger.Warn(ctx, "tokencache", "cache.write",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
