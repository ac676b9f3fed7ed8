package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is an in-memory Backend whose operations can be forced
// to fail, standing in for an unreachable fast tier.
type fakeBackend struct {
	mu    sync.Mutex
	store map[string][]byte
	fail  bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{store: make(map[string][]byte)}
}

var errBackendDown = errors.New("backend down")

func (f *fakeBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, false, errBackendDown
	}
	v, ok := f.store[key]
	return v, ok, nil
}

func (f *fakeBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errBackendDown
	}
	f.store[key] = value
	return nil
}

func (f *fakeBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errBackendDown
	}
	delete(f.store, key)
	return nil
}

func (f *fakeBackend) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, errBackendDown
	}
	_, ok := f.store[key]
	return ok, nil
}

func (f *fakeBackend) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errBackendDown
	}
	return int64(len(f.store)), nil
}

func (f *fakeBackend) Flush(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errBackendDown
	}
	f.store = make(map[string][]byte)
	return nil
}

func newTestTiered(t *testing.T, fast Backend) *Tiered {
	t.Helper()
	tc := NewTiered(newTestSQLite(t), fast, time.Hour)
	t.Cleanup(tc.Stop)
	return tc
}

func TestTiered_DurableOnlyRoundTrip(t *testing.T) {
	ctx := context.Background()
	tc := newTestTiered(t, nil)

	if !tc.Set(ctx, "k", []byte("v"), 0) {
		t.Fatal("Set reported failure")
	}
	value, ok := tc.Get(ctx, "k")
	if !ok || string(value) != "v" {
		t.Fatalf("Get = %q, %v", value, ok)
	}

	tc.Delete(ctx, "k")
	if _, ok := tc.Get(ctx, "k"); ok {
		t.Error("key present after Delete")
	}
}

func TestTiered_FastTierHitShortCircuits(t *testing.T) {
	ctx := context.Background()
	fast := newFakeBackend()
	tc := newTestTiered(t, fast)

	tc.Set(ctx, "k", []byte("v"), time.Hour)

	if _, ok := fast.store["k"]; !ok {
		t.Fatal("positive-TTL write did not reach the fast tier")
	}

	// Poison the durable copy to prove the fast tier answered.
	tc.durable.Delete(ctx, "k")

	value, ok := tc.Get(ctx, "k")
	if !ok || string(value) != "v" {
		t.Errorf("fast tier did not serve the hit: %q, %v", value, ok)
	}
}

func TestTiered_ZeroTTLSkipsFastTier(t *testing.T) {
	ctx := context.Background()
	fast := newFakeBackend()
	tc := newTestTiered(t, fast)

	tc.Set(ctx, "pinned", []byte("v"), 0)

	if _, ok := fast.store["pinned"]; ok {
		t.Error("non-expiring entry written to the fast tier")
	}
	if _, ok := tc.Get(ctx, "pinned"); !ok {
		t.Error("non-expiring entry missing from the durable tier")
	}
}

func TestTiered_FastTierFailureDegradesToDurable(t *testing.T) {
	ctx := context.Background()
	fast := newFakeBackend()
	tc := newTestTiered(t, fast)

	fast.fail = true

	if !tc.Set(ctx, "k", []byte("v"), time.Hour) {
		t.Fatal("Set must succeed while the durable tier is healthy")
	}
	value, ok := tc.Get(ctx, "k")
	if !ok || string(value) != "v" {
		t.Errorf("durable tier did not serve the degraded read: %q, %v", value, ok)
	}
	if !tc.Exists(ctx, "k") {
		t.Error("Exists must fall through to the durable tier")
	}
}

func TestTiered_LazyExpiryWithoutSweep(t *testing.T) {
	ctx := context.Background()
	tc := newTestTiered(t, nil)

	tc.Set(ctx, "short", []byte("v"), 30*time.Second)

	if !tc.Exists(ctx, "short") {
		t.Fatal("key absent immediately after Set")
	}

	tc.durable.now = func() time.Time { return time.Now().Add(time.Minute) }

	if _, ok := tc.Get(ctx, "short"); ok {
		t.Error("expired entry served without sweep")
	}
}

func TestTiered_DeleteHitsBothTiers(t *testing.T) {
	ctx := context.Background()
	fast := newFakeBackend()
	tc := newTestTiered(t, fast)

	tc.Set(ctx, "k", []byte("v"), time.Hour)
	tc.Delete(ctx, "k")

	if _, ok := fast.store["k"]; ok {
		t.Error("fast tier entry survived Delete")
	}
	if _, ok := tc.Get(ctx, "k"); ok {
		t.Error("durable entry survived Delete")
	}
}

func TestTiered_FlushClearsBothTiers(t *testing.T) {
	ctx := context.Background()
	fast := newFakeBackend()
	tc := newTestTiered(t, fast)

	tc.Set(ctx, "a", []byte("1"), time.Hour)
	tc.Set(ctx, "b", []byte("2"), time.Hour)

	if err := tc.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(fast.store) != 0 {
		t.Errorf("fast tier entries survived Flush: %d", len(fast.store))
	}
	stats := tc.Stats(ctx)
	if stats.DurableEntries != 0 {
		t.Errorf("durable entries survived Flush: %d", stats.DurableEntries)
	}
}

func TestTiered_JSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	tc := newTestTiered(t, nil)

	type doc struct {
		Keyword string   `json:"keyword"`
		Domains []string `json:"domains"`
	}

	in := doc{Keyword: "iphone 15", Domains: []string{"amazon.com", "bestbuy.com"}}
	if !tc.SetJSON(ctx, "whitelist:iphone 15:US", in, time.Hour) {
		t.Fatal("SetJSON failed")
	}

	var out doc
	if !tc.GetJSON(ctx, "whitelist:iphone 15:US", &out) {
		t.Fatal("GetJSON missed")
	}
	if out.Keyword != in.Keyword || len(out.Domains) != 2 {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestTiered_CorruptJSONDropsEntry(t *testing.T) {
	ctx := context.Background()
	tc := newTestTiered(t, nil)

	tc.Set(ctx, "bad", []byte("{not json"), 0)

	var out map[string]any
	if tc.GetJSON(ctx, "bad", &out) {
		t.Fatal("corrupt entry decoded")
	}
	if tc.Exists(ctx, "bad") {
		t.Error("corrupt entry not dropped")
	}
}

func TestTiered_ConcurrentAccessWithSweep(t *testing.T) {
	ctx := context.Background()
	tc := newTestTiered(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			for j := 0; j < 20; j++ {
				tc.Set(ctx, key, []byte("v"), time.Hour)
				tc.Get(ctx, key)
				tc.SweepExpired(ctx)
			}
		}(i)
	}
	wg.Wait()

	stats := tc.Stats(ctx)
	if stats.DurableEntries != 8 {
		t.Errorf("durable entries = %d, want 8", stats.DurableEntries)
	}
}
