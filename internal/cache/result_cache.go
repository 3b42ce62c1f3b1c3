package cache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/config"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

const defaultShards = 32

// ComputeFunc produces the result for a cache miss. A non-nil result paired
// with an error wrapping domain.ErrPersistenceFailure is still cached.
type ComputeFunc func(ctx context.Context) (*domain.PredictionResult, error)

// Stats are cumulative counters of cache activity.
type Stats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Computations int64 `json:"computations"`
	Coalesced    int64 `json:"coalesced"`
	Degraded     int64 `json:"degraded"`
	Entries      int   `json:"entries"`
}

type entry struct {
	result    *domain.PredictionResult
	expiresAt time.Time
}

// shard owns the entries and generation counters of the entities hashed to it.
type shard struct {
	mu          sync.RWMutex
	entries     map[Key]entry
	generations map[string]uint64
}

type flightValue struct {
	result *domain.PredictionResult
	warn   error
}

// ResultCache is the in-process prediction cache. Misses on the same key are
// coalesced so that at most one computation runs per key and generation.
type ResultCache struct {
	shards          []*shard
	ttl             time.Duration
	coalesceTimeout time.Duration
	remote          RemoteStore
	flights         singleflight.Group
	epoch           atomic.Uint64
	now             func() time.Time

	hits         atomic.Int64
	misses       atomic.Int64
	computations atomic.Int64
	coalesced    atomic.Int64
	degraded     atomic.Int64
}

// NewResultCache creates the cache. remote may be nil.
func NewResultCache(cfg config.CacheConfig, remote RemoteStore) *ResultCache {
	n := cfg.Shards
	if n <= 0 {
		n = defaultShards
	}
	if remote == nil {
		remote = NewNoopRemoteStore()
	}

	c := &ResultCache{
		shards:          make([]*shard, n),
		ttl:             resultTTL(cfg),
		coalesceTimeout: time.Duration(cfg.CoalesceTimeoutSeconds) * time.Second,
		remote:          remote,
		now:             time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &shard{
			entries:     make(map[Key]entry),
			generations: make(map[string]uint64),
		}
	}
	return c
}

func (c *ResultCache) shardFor(entityID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entityID))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get returns the live entry for key.
func (c *ResultCache) Get(key Key) (*domain.PredictionResult, bool) {
	s := c.shardFor(key.EntityID)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.entries[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return e.result, true
}

// Generation returns the invalidation generation of entityID.
func (c *ResultCache) Generation(entityID string) uint64 {
	s := c.shardFor(entityID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generations[entityID] + c.epoch.Load()
}

// publish stores result unless entityID was invalidated after gen was read.
func (c *ResultCache) publish(key Key, gen uint64, result *domain.PredictionResult) bool {
	s := c.shardFor(key.EntityID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[key.EntityID]+c.epoch.Load() != gen {
		return false
	}
	s.entries[key] = entry{result: result, expiresAt: c.now().Add(c.ttl)}
	return true
}

// GetOrCompute returns the cached result for key or runs compute once for all
// concurrent callers. The computation is detached from ctx: a caller that
// gives up waiting does not stop it, and its result is still cached.
func (c *ResultCache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (*domain.PredictionResult, error) {
	if r, ok := c.Get(key); ok {
		c.hits.Add(1)
		return r, nil
	}
	c.misses.Add(1)

	gen := c.Generation(key.EntityID)
	flightKey := key.String() + "#" + strconv.FormatUint(gen, 10)
	detached := context.WithoutCancel(ctx)

	ch := c.flights.DoChan(flightKey, func() (interface{}, error) {
		if r, ok := c.Get(key); ok {
			return flightValue{result: r}, nil
		}

		if r, ok, err := c.remote.Get(detached, key); err != nil {
			log.Warn().Err(err).Str("key", key.String()).Msg("remote cache get failed")
		} else if ok {
			c.publish(key, gen, r)
			return flightValue{result: r}, nil
		}

		c.computations.Add(1)
		r, err := safeCompute(detached, compute)
		if r == nil {
			return nil, err
		}
		if err != nil {
			if !errors.Is(err, domain.ErrPersistenceFailure) {
				return nil, err
			}
			// Unsaved results are handed to the waiting callers only, so the
			// next request computes and saves again.
			return flightValue{result: r, warn: err}, nil
		}

		if c.publish(key, gen, r) {
			if serr := c.remote.Set(detached, key, r); serr != nil {
				log.Warn().Err(serr).Str("key", key.String()).Msg("remote cache set failed")
			}
		}
		return flightValue{result: r}, nil
	})

	var timeout <-chan time.Time
	if c.coalesceTimeout > 0 {
		timer := time.NewTimer(c.coalesceTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-ch:
		if res.Shared {
			c.coalesced.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		v := res.Val.(flightValue)
		return v.result, v.warn
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		c.degraded.Add(1)
		log.Warn().
			Str("key", key.String()).
			Dur("timeout", c.coalesceTimeout).
			Msg("coalesced computation timed out, computing directly")
		return safeCompute(ctx, compute)
	}
}

func safeCompute(ctx context.Context, compute ComputeFunc) (result *domain.PredictionResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fmt.Errorf("%w: panic during computation: %v", domain.ErrComputeFailure, p)
		}
	}()
	return compute(ctx)
}

// InvalidateEntity drops every cached result of entityID and makes any
// computation already in flight for it unpublishable.
func (c *ResultCache) InvalidateEntity(ctx context.Context, entityID string) error {
	s := c.shardFor(entityID)
	s.mu.Lock()
	s.generations[entityID]++
	for k := range s.entries {
		if k.EntityID == entityID {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()

	if err := c.remote.InvalidateEntity(ctx, entityID); err != nil {
		return fmt.Errorf("invalidate remote cache for %s: %w", entityID, err)
	}
	return nil
}

// InvalidateAll empties the cache.
func (c *ResultCache) InvalidateAll(ctx context.Context) error {
	c.epoch.Add(1)
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[Key]entry)
		s.mu.Unlock()
	}
	return c.remote.InvalidateAll(ctx)
}

// Purge removes expired entries and returns how many were dropped.
func (c *ResultCache) Purge() int {
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if !now.Before(e.expiresAt) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Stats returns a snapshot of the cache counters.
func (c *ResultCache) Stats() Stats {
	st := Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Computations: c.computations.Load(),
		Coalesced:    c.coalesced.Load(),
		Degraded:     c.degraded.Load(),
	}
	for _, s := range c.shards {
		s.mu.RLock()
		st.Entries += len(s.entries)
		s.mu.RUnlock()
	}
	return st
}
