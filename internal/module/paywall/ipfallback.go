package paywall

import (
	"strconv"
	"sync"
	"time"

	"github.com/memora-music/server/internal/utils/metrics"
)

// FallbackCounts holds attempt and hit tallies for one bucket.
type FallbackCounts struct {
	Attempts int64 `json:"attempts"`
	Hits     int64 `json:"hits"`
}

// FallbackMetrics is a point-in-time snapshot of IP fallback activity.
type FallbackMetrics struct {
	TotalAttempts int64                     `json:"totalAttempts"`
	TotalHits     int64                     `json:"totalHits"`
	ByDay         map[string]FallbackCounts `json:"byDay"`
	ByTTLDays     map[string]FallbackCounts `json:"byTtlDays"`
}

// FallbackRecorder tallies IP fallback lookups. Counters are
// observational only and never feed back into gating decisions.
type FallbackRecorder interface {
	RecordAttempt(ttlDays int)
	RecordHit(ttlDays int)
	Snapshot() FallbackMetrics
}

// memoryFallbackRecorder keeps counters in process memory and mirrors
// totals to Prometheus. Counters reset on restart.
type memoryFallbackRecorder struct {
	mu        sync.Mutex
	attempts  int64
	hits      int64
	byDay     map[string]FallbackCounts
	byTTLDays map[string]FallbackCounts
	now       func() time.Time
}

// NewFallbackRecorder creates an in-memory fallback recorder.
func NewFallbackRecorder() FallbackRecorder {
	return &memoryFallbackRecorder{
		byDay:     make(map[string]FallbackCounts),
		byTTLDays: make(map[string]FallbackCounts),
		now:       time.Now,
	}
}

func (r *memoryFallbackRecorder) RecordAttempt(ttlDays int) {
	metrics.RecordIPFallbackAttempt()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts++
	day := r.now().Format("2006-01-02")
	dayCounts := r.byDay[day]
	dayCounts.Attempts++
	r.byDay[day] = dayCounts

	ttlKey := strconv.Itoa(ttlDays)
	ttlCounts := r.byTTLDays[ttlKey]
	ttlCounts.Attempts++
	r.byTTLDays[ttlKey] = ttlCounts
}

func (r *memoryFallbackRecorder) RecordHit(ttlDays int) {
	metrics.RecordIPFallbackHit()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.hits++
	day := r.now().Format("2006-01-02")
	dayCounts := r.byDay[day]
	dayCounts.Hits++
	r.byDay[day] = dayCounts

	ttlKey := strconv.Itoa(ttlDays)
	ttlCounts := r.byTTLDays[ttlKey]
	ttlCounts.Hits++
	r.byTTLDays[ttlKey] = ttlCounts
}

func (r *memoryFallbackRecorder) Snapshot() FallbackMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	byDay := make(map[string]FallbackCounts, len(r.byDay))
	for k, v := range r.byDay {
		byDay[k] = v
	}
	byTTL := make(map[string]FallbackCounts, len(r.byTTLDays))
	for k, v := range r.byTTLDays {
		byTTL[k] = v
	}

	return FallbackMetrics{
		TotalAttempts: r.attempts,
		TotalHits:     r.hits,
		ByDay:         byDay,
		ByTTLDays:     byTTL,
	}
}
