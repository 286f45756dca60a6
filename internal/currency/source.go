package currency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// StaticSource serves a fixed rate table, typically loaded from config.
type StaticSource struct {
	rates map[string]decimal.Decimal
	base  string
}

var (
	_ service.RateSource = (*StaticSource)(nil)
	_ service.RateSource = (*CachedSource)(nil)
)

// NewStaticSource creates a source from rates relative to base. The base
// currency is given a rate of one.
func NewStaticSource(base string, rates map[string]decimal.Decimal) (*StaticSource, error) {
	base = Normalize(base)
	if base == "" {
		return nil, fmt.Errorf("%w: base currency is empty", common.ErrInvalidConfig)
	}

	table := make(map[string]decimal.Decimal, len(rates)+1)
	for code, rate := range rates {
		if !rate.IsPositive() {
			return nil, fmt.Errorf("%w: rate for %s must be positive, got %s", common.ErrInvalidConfig, code, rate)
		}
		table[Normalize(code)] = rate
	}
	table[base] = decimal.NewFromInt(1)

	return &StaticSource{rates: table, base: base}, nil
}

// Rates returns the table rebased on the requested currency.
func (s *StaticSource) Rates(_ context.Context, base string) (map[string]decimal.Decimal, error) {
	base = Normalize(base)
	baseRate, ok := s.rates[base]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrRateNotFound, base)
	}

	out := make(map[string]decimal.Decimal, len(s.rates))
	for code, rate := range s.rates {
		out[code] = rate.Div(baseRate)
	}
	out[base] = decimal.NewFromInt(1)
	return out, nil
}

type cacheEntry struct {
	fetched time.Time
	rates   map[string]decimal.Decimal
}

// CachedSource caches another source's tables per base currency for a TTL.
// Concurrent misses for the same base share one upstream call.
type CachedSource struct {
	source  service.RateSource
	now     func() time.Time
	entries map[string]cacheEntry
	group   singleflight.Group
	ttl     time.Duration
	mu      sync.RWMutex
}

// NewCachedSource wraps source with a cache. A non-positive ttl defaults to one hour.
func NewCachedSource(source service.RateSource, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedSource{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Rates returns cached rates for base, fetching them on a miss or expiry.
func (c *CachedSource) Rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	base = Normalize(base)

	c.mu.RLock()
	entry, ok := c.entries[base]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetched) < c.ttl {
		return entry.rates, nil
	}

	v, err, shared := c.group.Do(base, func() (any, error) {
		rates, err := c.source.Rates(ctx, base)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[base] = cacheEntry{rates: rates, fetched: c.now()}
		c.mu.Unlock()
		return rates, nil
	})
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "refreshed currency rates", "base", base, "shared", shared)
	rates, _ := v.(map[string]decimal.Decimal)
	return rates, nil
}

// Invalidate drops every cached table.
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
