// Package marketdata supplies spot-price context for the dashboard ticker.
// The projection engine has no dependency on it; a feed outage degrades to
// the last cached snapshot and then to hard-coded defaults, never blocking
// a projection.
package marketdata

import (
	"context"
	"log"
	"sync"
	"time"
)

// Snapshot is one observation of the upstream price feed.
type Snapshot struct {
	GoldPrice     float64            `json:"goldPrice"`
	YearlyGrowth  float64            `json:"yearlyGrowth"`
	CurrencyRates map[string]float64 `json:"currencyRates"`
	Timestamp     time.Time          `json:"timestamp"`
}

// Defaults is the snapshot served when no fetch has ever succeeded.
func Defaults() Snapshot {
	return Snapshot{
		GoldPrice:    2050.5,
		YearlyGrowth: 8.4,
		CurrencyRates: map[string]float64{
			"AED": 3.67,
			"RUB": 98.5,
		},
		Timestamp: time.Now().UTC(),
	}
}

// Cached is a value plus its cache metadata, so TTL policy is testable
// independent of where the value is stored.
type Cached struct {
	Value     Snapshot
	FetchedAt time.Time
	TTL       time.Duration
}

// Fresh reports whether the cached value is still within its TTL at now.
func (c Cached) Fresh(now time.Time) bool {
	return now.Before(c.FetchedAt.Add(c.TTL))
}

// Fetcher retrieves a live snapshot from an upstream feed.
type Fetcher interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// Service caches snapshots from a Fetcher. Zero successful fetches is fine:
// Get always returns something servable.
type Service struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time

	mu     sync.Mutex
	cached *Cached
}

// NewService wires a fetcher with a cache TTL.
func NewService(f Fetcher, ttl time.Duration) *Service {
	return &Service{fetcher: f, ttl: ttl, now: time.Now}
}

// Get returns market data, preferring a fresh cache entry, then a live
// fetch, then the stale cache, then hard-coded defaults.
//
// The lock covers only the cache itself, never the upstream call: a hung
// feed must not serialize every reader behind one fetch timeout.
func (s *Service) Get(ctx context.Context) Snapshot {
	s.mu.Lock()
	now := s.now()
	if s.cached != nil && s.cached.Fresh(now) {
		snap := s.cached.Value
		s.mu.Unlock()
		return snap
	}
	var stale *Snapshot
	if s.cached != nil {
		v := s.cached.Value
		stale = &v
	}
	s.mu.Unlock()

	snap, err := s.fetcher.Fetch(ctx)
	if err == nil {
		s.mu.Lock()
		s.cached = &Cached{Value: snap, FetchedAt: now, TTL: s.ttl}
		s.mu.Unlock()
		return snap
	}

	log.Printf("[WARN] market data fetch failed, degrading: %v", err)
	if stale != nil {
		return *stale
	}
	return Defaults()
}
