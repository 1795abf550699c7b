package retrieval

import (
	"sync"
	"time"
)

// Stats accumulates in-process retrieval outcomes. It backs the statistics
// endpoint; the Prometheus counters carry the same signals for scraping.
type Stats struct {
	mu      sync.Mutex
	hits    map[string]int64
	latency map[string]time.Duration
	misses  int64
	errors  map[string]int64
}

func NewStats() *Stats {
	return &Stats{
		hits:    make(map[string]int64),
		latency: make(map[string]time.Duration),
		errors:  make(map[string]int64),
	}
}

func (s *Stats) RecordHit(tier string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[tier]++
	s.latency[tier] += d
}

func (s *Stats) RecordMiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.misses++
}

func (s *Stats) RecordError(tier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[tier]++
}

// TierStats is the per-tier slice of a snapshot. Share is the tier's portion
// of all lookups, misses included, in percent.
type TierStats struct {
	Hits          int64   `json:"hits"`
	Share         float64 `json:"share_percent"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
}

type StatsSnapshot struct {
	Lookups   int64                `json:"lookups"`
	Misses    int64                `json:"misses"`
	MissShare float64              `json:"miss_share_percent"`
	Errors    int64                `json:"errors"`
	Tiers     map[string]TierStats `json:"tiers"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Misses: s.misses,
		Tiers:  make(map[string]TierStats, len(s.hits)),
	}
	snap.Lookups = s.misses
	for _, n := range s.hits {
		snap.Lookups += n
	}
	for _, n := range s.errors {
		snap.Errors += n
	}
	for tier, n := range s.hits {
		ts := TierStats{Hits: n}
		if snap.Lookups > 0 {
			ts.Share = float64(n) / float64(snap.Lookups) * 100
		}
		if n > 0 {
			ts.MeanLatencyMs = float64(s.latency[tier].Microseconds()) / 1000 / float64(n)
		}
		snap.Tiers[tier] = ts
	}
	if snap.Lookups > 0 {
		snap.MissShare = float64(s.misses) / float64(snap.Lookups) * 100
	}
	return snap
}
