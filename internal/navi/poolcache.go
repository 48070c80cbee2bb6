package navi

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
	"github.com/rs/zerolog"
)

// DefaultPoolTTL is the validity window of a pool snapshot.
const DefaultPoolTTL = 5 * time.Minute

// SnapshotStore persists the latest pool snapshot so a restarted process can
// serve symbol lookups before the first network fetch completes. Absence or
// corruption reads as a cold start; Save failures are best-effort.
type SnapshotStore interface {
	Load() (pools []Pool, fetchedAt time.Time, ok bool)
	Save(pools []Pool, fetchedAt time.Time) error
}

type fetchCall struct {
	done  chan struct{}
	pools []Pool
	err   error
}

// PoolCache is the process-wide pool snapshot: TTL'd, replaced wholesale on
// refresh, with concurrent fetches coalesced into one in-flight call. Fetch
// failures degrade to the previous (possibly stale) snapshot instead of
// failing the caller.
type PoolCache struct {
	api   LendingAPI
	store SnapshotStore
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger

	mu        sync.Mutex
	pools     []Pool
	fetchedAt time.Time
	inflight  *fetchCall

	warmOnce sync.Once
	stopAuto chan struct{}
}

type PoolCacheOption func(*PoolCache)

func WithTTL(ttl time.Duration) PoolCacheOption {
	return func(c *PoolCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithSnapshotStore(store SnapshotStore) PoolCacheOption {
	return func(c *PoolCache) { c.store = store }
}

func WithClock(now func() time.Time) PoolCacheOption {
	return func(c *PoolCache) { c.now = now }
}

func WithLogger(log zerolog.Logger) PoolCacheOption {
	return func(c *PoolCache) { c.log = log }
}

func NewPoolCache(api LendingAPI, opts ...PoolCacheOption) *PoolCache {
	c := &PoolCache{
		api: api,
		ttl: DefaultPoolTTL,
		now: time.Now,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store != nil {
		if pools, fetchedAt, ok := c.store.Load(); ok {
			c.pools = pools
			c.fetchedAt = fetchedAt
		}
	}
	return c
}

func (c *PoolCache) freshLocked() bool {
	return len(c.pools) > 0 && c.now().Sub(c.fetchedAt) < c.ttl
}

// GetAll returns the pool snapshot, fetching when the cache is empty or
// stale (or when forceRefresh is set). When a refresh fails and an older
// snapshot exists, the stale snapshot is returned instead of the error.
func (c *PoolCache) GetAll(ctx context.Context, forceRefresh bool) ([]Pool, error) {
	c.mu.Lock()
	if !forceRefresh && c.freshLocked() {
		pools := c.pools
		c.mu.Unlock()
		return pools, nil
	}
	c.mu.Unlock()

	pools, err := c.fetch(ctx)
	if err != nil {
		c.mu.Lock()
		stale := c.pools
		c.mu.Unlock()
		if len(stale) > 0 {
			c.log.Warn().Err(err).Msg("pool refresh failed, serving stale snapshot")
			return stale, nil
		}
		return nil, err
	}
	return pools, nil
}

// GetBySymbol resolves a pool by symbol, case-insensitively. A miss triggers
// one forced refresh; a miss after that refresh means the asset is unknown.
func (c *PoolCache) GetBySymbol(ctx context.Context, symbol string) (*Pool, error) {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	if upper == "" {
		return nil, agerr.New(agerr.CodeUnknownAsset, "empty asset symbol")
	}
	pools, err := c.GetAll(ctx, false)
	if err != nil {
		return nil, err
	}
	if pool := findSymbol(pools, upper); pool != nil {
		return pool, nil
	}
	pools, err = c.GetAll(ctx, true)
	if err != nil {
		return nil, err
	}
	if pool := findSymbol(pools, upper); pool != nil {
		return pool, nil
	}
	return nil, agerr.Newf(agerr.CodeUnknownAsset, "unknown asset %q", upper)
}

// GetByID resolves a pool by numeric id, falling back to a targeted fetch
// when the snapshot misses it.
func (c *PoolCache) GetByID(ctx context.Context, id int) (*Pool, error) {
	pools, err := c.GetAll(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range pools {
		if pools[i].ID == id {
			return &pools[i], nil
		}
	}
	pool, err := c.api.PoolByKey(ctx, strconv.Itoa(id))
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Invalidate drops the snapshot so the next read fetches.
func (c *PoolCache) Invalidate() {
	c.mu.Lock()
	c.pools = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// Warm proactively fills the cache from a detached goroutine. Failures are
// logged and never reach a foreground request.
func (c *PoolCache) Warm(ctx context.Context) {
	c.warmOnce.Do(func() {
		go func() {
			if _, err := c.GetAll(ctx, false); err != nil {
				c.log.Warn().Err(err).Msg("pool warm-up failed")
			}
		}()
	})
}

// StartAutoRefresh refreshes the snapshot on a fixed interval until
// StopAutoRefresh is called. A second start is a no-op.
func (c *PoolCache) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	c.mu.Lock()
	if c.stopAuto != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.stopAuto = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.fetch(ctx); err != nil {
					c.log.Warn().Err(err).Msg("pool auto-refresh failed")
				}
			}
		}
	}()
}

func (c *PoolCache) StopAutoRefresh() {
	c.mu.Lock()
	if c.stopAuto != nil {
		close(c.stopAuto)
		c.stopAuto = nil
	}
	c.mu.Unlock()
}

// fetch coalesces concurrent refreshes into a single API call; late arrivals
// wait on the call started by the first one, whose context governs it.
func (c *PoolCache) fetch(ctx context.Context) ([]Pool, error) {
	c.mu.Lock()
	if c.inflight != nil {
		call := c.inflight
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.pools, call.err
		case <-ctx.Done():
			return nil, agerr.Wrap(agerr.CodeRPC, "pool fetch cancelled", ctx.Err())
		}
	}
	call := &fetchCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	pools, err := c.api.Pools(ctx)

	c.mu.Lock()
	call.pools, call.err = pools, err
	c.inflight = nil
	var store SnapshotStore
	var fetchedAt time.Time
	if err == nil {
		c.pools = pools
		c.fetchedAt = c.now()
		store = c.store
		fetchedAt = c.fetchedAt
	}
	c.mu.Unlock()
	close(call.done)

	if store != nil {
		if saveErr := store.Save(pools, fetchedAt); saveErr != nil {
			c.log.Warn().Err(saveErr).Msg("persist pool snapshot failed")
		}
	}
	return pools, err
}

func findSymbol(pools []Pool, upper string) *Pool {
	for i := range pools {
		if strings.ToUpper(pools[i].Symbol) == upper {
			return &pools[i]
		}
	}
	return nil
}
