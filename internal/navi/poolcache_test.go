package navi

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
)

type fakeLendingAPI struct {
	mu       sync.Mutex
	pools    []Pool
	err      error
	calls    int32
	block    chan struct{}
	byKeyErr error
}

func (f *fakeLendingAPI) Pools(ctx context.Context) ([]Pool, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.pools, nil
}

func (f *fakeLendingAPI) PoolByKey(ctx context.Context, key string) (*Pool, error) {
	if f.byKeyErr != nil {
		return nil, f.byKeyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.pools {
		if strconv.Itoa(f.pools[i].ID) == key {
			p := f.pools[i]
			return &p, nil
		}
	}
	return nil, agerr.Newf(agerr.CodePoolNotFound, "no pool for %q", key)
}

func (f *fakeLendingAPI) Positions(ctx context.Context, owner string) ([]Position, error) {
	return nil, nil
}

func (f *fakeLendingAPI) setPools(pools []Pool) {
	f.mu.Lock()
	f.pools = pools
	f.mu.Unlock()
}

func (f *fakeLendingAPI) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

var testPools = []Pool{
	{ID: 0, Symbol: "SUI", CoinType: "0x2::sui::SUI", Decimals: 9, Price: "3.5"},
	{ID: 7, Symbol: "USDC", CoinType: "0xabc::usdc::USDC", Decimals: 6, Price: "1.0002"},
}

func TestGetAllCoalescesConcurrentFetches(t *testing.T) {
	api := &fakeLendingAPI{pools: testPools, block: make(chan struct{})}
	cache := NewPoolCache(api)

	var wg sync.WaitGroup
	results := make([][]Pool, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetAll(context.Background(), false)
		}(i)
	}

	// Let both goroutines reach the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(api.block)
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("GetAll[%d] failed: %v", i, errs[i])
		}
		if len(results[i]) != 2 {
			t.Fatalf("GetAll[%d] returned %d pools", i, len(results[i]))
		}
	}
	if n := atomic.LoadInt32(&api.calls); n != 1 {
		t.Fatalf("expected exactly 1 underlying fetch, got %d", n)
	}
}

func TestGetAllHonorsTTL(t *testing.T) {
	api := &fakeLendingAPI{pools: testPools}
	current := time.Unix(1_700_000_000, 0)
	cache := NewPoolCache(api, WithClock(func() time.Time { return current }))

	if _, err := cache.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if _, err := cache.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if n := atomic.LoadInt32(&api.calls); n != 1 {
		t.Fatalf("fresh cache refetched: %d calls", n)
	}

	current = current.Add(DefaultPoolTTL + time.Second)
	if _, err := cache.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if n := atomic.LoadInt32(&api.calls); n != 2 {
		t.Fatalf("stale cache not refetched: %d calls", n)
	}
}

func TestGetAllServesStaleOnFetchFailure(t *testing.T) {
	api := &fakeLendingAPI{pools: testPools}
	current := time.Unix(1_700_000_000, 0)
	cache := NewPoolCache(api, WithClock(func() time.Time { return current }))

	if _, err := cache.GetAll(context.Background(), false); err != nil {
		t.Fatalf("initial fetch: %v", err)
	}

	current = current.Add(DefaultPoolTTL + time.Minute)
	api.setErr(agerr.New(agerr.CodeRPC, "endpoint down"))

	pools, err := cache.GetAll(context.Background(), false)
	if err != nil {
		t.Fatalf("expected stale snapshot, got error: %v", err)
	}
	if len(pools) != 2 {
		t.Fatalf("expected stale pools, got %d", len(pools))
	}
}

func TestGetAllFailsWhenColdAndFetchFails(t *testing.T) {
	api := &fakeLendingAPI{err: agerr.New(agerr.CodeRPC, "endpoint down")}
	cache := NewPoolCache(api)
	if _, err := cache.GetAll(context.Background(), false); !agerr.HasCode(err, agerr.CodeRPC) {
		t.Fatalf("expected CodeRPC, got %v", err)
	}
}

func TestGetBySymbolRetriesWithForcedRefresh(t *testing.T) {
	api := &fakeLendingAPI{pools: testPools[:1]}
	cache := NewPoolCache(api)

	if _, err := cache.GetAll(context.Background(), false); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	api.setPools(testPools)

	pool, err := cache.GetBySymbol(context.Background(), "usdc")
	if err != nil {
		t.Fatalf("GetBySymbol failed: %v", err)
	}
	if pool.ID != 7 {
		t.Fatalf("resolved wrong pool: %+v", pool)
	}
	if n := atomic.LoadInt32(&api.calls); n != 2 {
		t.Fatalf("expected forced refresh, got %d calls", n)
	}
}

func TestGetBySymbolUnknownAfterRefresh(t *testing.T) {
	api := &fakeLendingAPI{pools: testPools}
	cache := NewPoolCache(api)
	_, err := cache.GetBySymbol(context.Background(), "DOGE")
	if !agerr.HasCode(err, agerr.CodeUnknownAsset) {
		t.Fatalf("expected CodeUnknownAsset, got %v", err)
	}
}

func TestGetByIDFallsBackToTargetedFetch(t *testing.T) {
	api := &fakeLendingAPI{pools: testPools[:1]}
	cache := NewPoolCache(api)

	// Prime with only SUI, then look up an id the snapshot misses; the
	// targeted fetch still won't know it.
	if _, err := cache.GetAll(context.Background(), false); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if _, err := cache.GetByID(context.Background(), 42); !agerr.HasCode(err, agerr.CodePoolNotFound) {
		t.Fatalf("expected CodePoolNotFound, got %v", err)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	api := &fakeLendingAPI{pools: testPools}
	cache := NewPoolCache(api)

	if _, err := cache.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	cache.Invalidate()
	if _, err := cache.GetAll(context.Background(), false); err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if n := atomic.LoadInt32(&api.calls); n != 2 {
		t.Fatalf("expected refetch after Invalidate, got %d calls", n)
	}
}

type memStore struct {
	pools     []Pool
	fetchedAt time.Time
	saved     int
}

func (m *memStore) Load() ([]Pool, time.Time, bool) {
	return m.pools, m.fetchedAt, len(m.pools) > 0
}

func (m *memStore) Save(pools []Pool, fetchedAt time.Time) error {
	m.pools = pools
	m.fetchedAt = fetchedAt
	m.saved++
	return nil
}

func TestSnapshotStorePrimesAndPersists(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	store := &memStore{pools: testPools, fetchedAt: current.Add(-time.Minute)}
	api := &fakeLendingAPI{pools: testPools}
	cache := NewPoolCache(api, WithSnapshotStore(store), WithClock(func() time.Time { return current }))

	// Snapshot is fresh enough: no network call needed.
	pools, err := cache.GetAll(context.Background(), false)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(pools) != 2 || atomic.LoadInt32(&api.calls) != 0 {
		t.Fatalf("expected snapshot hit without fetch, calls=%d", api.calls)
	}

	// Forced refresh rewrites the slot.
	if _, err := cache.GetAll(context.Background(), true); err != nil {
		t.Fatalf("forced GetAll: %v", err)
	}
	if store.saved != 1 {
		t.Fatalf("expected 1 snapshot save, got %d", store.saved)
	}
}
