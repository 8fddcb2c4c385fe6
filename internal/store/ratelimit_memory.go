package store

import (
	"context"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/serroba/quota-guard/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	// DefaultMaxEntries bounds the in-memory store.
	DefaultMaxEntries = 100_000

	// DefaultSweepInterval is how often expired entries are removed in the background.
	DefaultSweepInterval = 60 * time.Second

	// EmergencyThreshold is the fraction of MaxEntries above which emergency eviction runs.
	EmergencyThreshold = 0.8

	// EmergencyFraction is the share of live entries dropped by emergency eviction.
	EmergencyFraction = 0.2

	shardCount = 64
)

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]ratelimit.Entry
}

// MemoryStats reports the state of the in-memory store.
type MemoryStats struct {
	Entries            int64 `json:"entries"`
	MaxEntries         int   `json:"maxEntries"`
	Sweeps             int64 `json:"sweeps"`
	ExpiredEvictions   int64 `json:"expiredEvictions"`
	EmergencyEvictions int64 `json:"emergencyEvictions"`
}

// RateLimitMemoryStore is a bounded in-memory implementation of ratelimit.Store.
// Keys are spread over shards so increments only contend with keys in the same shard.
type RateLimitMemoryStore struct {
	shards        [shardCount]*memoryShard
	size          atomic.Int64
	maxEntries    int
	sweepInterval time.Duration
	now           func() time.Time
	logger        *zap.Logger

	evicting           atomic.Bool
	sweeps             atomic.Int64
	expiredEvictions   atomic.Int64
	emergencyEvictions atomic.Int64

	lifecycle sync.Mutex
	running   bool
	stopped   bool
	stop      chan struct{}
	done      chan struct{}
}

// MemoryOption configures a RateLimitMemoryStore.
type MemoryOption func(*RateLimitMemoryStore)

// WithMaxEntries sets the capacity above which eviction runs.
func WithMaxEntries(n int) MemoryOption {
	return func(s *RateLimitMemoryStore) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithSweepInterval sets the background sweep period.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(s *RateLimitMemoryStore) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithMemoryClock overrides the time source.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *RateLimitMemoryStore) {
		s.now = now
	}
}

// WithMemoryLogger sets the logger used for eviction reports.
func WithMemoryLogger(logger *zap.Logger) MemoryOption {
	return func(s *RateLimitMemoryStore) {
		s.logger = logger
	}
}

// NewRateLimitMemoryStore creates a new in-memory rate limit store.
// Call Start to run the background sweep.
func NewRateLimitMemoryStore(opts ...MemoryOption) *RateLimitMemoryStore {
	s := &RateLimitMemoryStore{
		maxEntries:    DefaultMaxEntries,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		logger:        zap.NewNop(),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	for i := range s.shards {
		s.shards[i] = &memoryShard{entries: make(map[string]ratelimit.Entry)}
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *RateLimitMemoryStore) shard(key string) *memoryShard {
	return s.shards[xxhash.Sum64String(key)%shardCount]
}

// Backend implements ratelimit.Backend.
func (s *RateLimitMemoryStore) Backend() string {
	return "memory"
}

func (s *RateLimitMemoryStore) Get(_ context.Context, key string) (ratelimit.Entry, bool, error) {
	sh := s.shard(key)

	sh.mu.Lock()
	entry, ok := sh.entries[key]
	sh.mu.Unlock()

	if !ok || !entry.ResetAt.After(s.now()) {
		return ratelimit.Entry{}, false, nil
	}

	return entry, true, nil
}

func (s *RateLimitMemoryStore) Increment(_ context.Context, key string, window time.Duration) (ratelimit.Entry, error) {
	now := s.now()
	sh := s.shard(key)

	sh.mu.Lock()

	entry, exists := sh.entries[key]
	if !exists || !entry.ResetAt.After(now) {
		entry = ratelimit.Entry{ResetAt: now.Add(window)}
	}

	entry.Count++
	sh.entries[key] = entry

	sh.mu.Unlock()

	if !exists && s.size.Add(1) > int64(s.maxEntries) {
		s.evictIfFull()
	}

	return entry, nil
}

func (s *RateLimitMemoryStore) Delete(_ context.Context, key string) error {
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.entries[key]; ok {
		delete(sh.entries, key)
		s.size.Add(-1)
	}

	return nil
}

func (s *RateLimitMemoryStore) Size(_ context.Context) (int64, error) {
	return s.size.Load(), nil
}

// DeleteFunc implements ratelimit.KeyDeleter.
func (s *RateLimitMemoryStore) DeleteFunc(_ context.Context, match func(key string) bool) (int, error) {
	removed := 0

	for _, sh := range s.shards {
		sh.mu.Lock()

		for key := range sh.entries {
			if match(key) {
				delete(sh.entries, key)

				removed++
			}
		}

		sh.mu.Unlock()
	}

	s.size.Add(-int64(removed))

	return removed, nil
}

// Sweep removes every expired entry and returns how many were removed.
func (s *RateLimitMemoryStore) Sweep() int {
	removed := s.removeExpired(s.now())

	s.sweeps.Add(1)
	s.expiredEvictions.Add(int64(removed))

	return removed
}

// evictIfFull runs eviction until the store is back under capacity.
// Only one goroutine evicts at a time; the others return immediately.
func (s *RateLimitMemoryStore) evictIfFull() {
	for s.size.Load() > int64(s.maxEntries) {
		if !s.evicting.CompareAndSwap(false, true) {
			return
		}

		s.evict()
		s.evicting.Store(false)
	}
}

func (s *RateLimitMemoryStore) evict() {
	now := s.now()

	expired := s.removeExpired(now)
	s.expiredEvictions.Add(int64(expired))

	threshold := int64(float64(s.maxEntries) * EmergencyThreshold)
	if s.size.Load() <= threshold {
		return
	}

	dropped := s.dropEarliest(now)
	s.emergencyEvictions.Add(int64(dropped))

	s.logger.Warn("rate limit store over capacity, evicted earliest-expiring entries",
		zap.Int("expired", expired),
		zap.Int("dropped", dropped),
		zap.Int64("size", s.size.Load()),
		zap.Int("max_entries", s.maxEntries),
	)
}

func (s *RateLimitMemoryStore) removeExpired(now time.Time) int {
	removed := 0

	for _, sh := range s.shards {
		sh.mu.Lock()

		for key, entry := range sh.entries {
			if !entry.ResetAt.After(now) {
				delete(sh.entries, key)

				removed++
			}
		}

		sh.mu.Unlock()
	}

	s.size.Add(-int64(removed))

	return removed
}

type expiringKey struct {
	key     string
	resetAt time.Time
}

// dropEarliest deletes the EmergencyFraction of entries closest to their own expiry.
func (s *RateLimitMemoryStore) dropEarliest(now time.Time) int {
	candidates := make([]expiringKey, 0, s.size.Load())

	for _, sh := range s.shards {
		sh.mu.Lock()

		for key, entry := range sh.entries {
			candidates = append(candidates, expiringKey{key: key, resetAt: entry.ResetAt})
		}

		sh.mu.Unlock()
	}

	slices.SortFunc(candidates, func(a, b expiringKey) int {
		return a.resetAt.Compare(b.resetAt)
	})

	n := int(math.Ceil(float64(len(candidates)) * EmergencyFraction))
	dropped := 0

	for _, c := range candidates[:n] {
		sh := s.shard(c.key)

		sh.mu.Lock()

		// An entry whose window rolled over since the snapshot is kept.
		if entry, ok := sh.entries[c.key]; ok && (entry.ResetAt.Equal(c.resetAt) || !entry.ResetAt.After(now)) {
			delete(sh.entries, c.key)

			dropped++
		}

		sh.mu.Unlock()
	}

	s.size.Add(-int64(dropped))

	return dropped
}

// Start launches the background sweep. It is a no-op when already running or stopped.
func (s *RateLimitMemoryStore) Start() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.running || s.stopped {
		return
	}

	s.running = true

	go s.sweepLoop()
}

func (s *RateLimitMemoryStore) sweepLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug("swept expired rate limit entries", zap.Int("removed", removed))
			}
		}
	}
}

// Shutdown stops the background sweep and waits for it to exit.
// It is safe to call more than once.
func (s *RateLimitMemoryStore) Shutdown() error {
	s.lifecycle.Lock()

	if s.stopped {
		s.lifecycle.Unlock()

		return nil
	}

	s.stopped = true
	wasRunning := s.running
	close(s.stop)
	s.lifecycle.Unlock()

	if wasRunning {
		<-s.done
	}

	return nil
}

// Stats returns a snapshot of the store counters.
func (s *RateLimitMemoryStore) Stats() MemoryStats {
	return MemoryStats{
		Entries:            s.size.Load(),
		MaxEntries:         s.maxEntries,
		Sweeps:             s.sweeps.Load(),
		ExpiredEvictions:   s.expiredEvictions.Load(),
		EmergencyEvictions: s.emergencyEvictions.Load(),
	}
}

// Compile-time checks.
var (
	_ ratelimit.Store      = (*RateLimitMemoryStore)(nil)
	_ ratelimit.KeyDeleter = (*RateLimitMemoryStore)(nil)
	_ ratelimit.Shutdowner = (*RateLimitMemoryStore)(nil)
)
