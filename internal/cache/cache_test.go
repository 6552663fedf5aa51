package cache

import (
	"testing"
	"time"
)

type fakeResult struct {
	IDs []string `json:"ids"`
}

func testCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	return New(cfg, nil)
}

func TestSetThenGetExact(t *testing.T) {
	c := testCache(t, DefaultConfig())
	ctx := map[string]string{"language": "go", "task": "refactor"}

	want := &fakeResult{IDs: []string{"n1"}}
	c.Set("find handlers", ctx, want, []string{"n1"})

	got, ok := c.Get("find handlers", ctx)
	if !ok {
		t.Fatal("exact key should always hit")
	}
	if got.(*fakeResult) != want {
		t.Error("wrong value returned")
	}
}

func TestQueryNormalization(t *testing.T) {
	c := testCache(t, DefaultConfig())
	c.Set("Find   Handlers", map[string]string{"a": "1"}, &fakeResult{}, nil)

	if _, ok := c.Get("find handlers", map[string]string{"a": "1"}); !ok {
		t.Error("normalized query should hit across case/whitespace variants")
	}
}

func TestSimilarContextHit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SimilarityThreshold = 0.8
	c := testCache(t, cfg)

	stored := map[string]string{"language": "go", "framework": "chi", "task": "debug", "file": "a.go", "branch": "main"}
	c.Set("related to auth", stored, &fakeResult{IDs: []string{"n1"}}, []string{"n1"})

	// 4 of 5 attributes shared: Jaccard 4/6 = 0.67 -> miss at 0.8.
	differing := map[string]string{"language": "go", "framework": "chi", "task": "debug", "file": "a.go", "branch": "dev"}
	if _, ok := c.Get("related to auth", differing); ok {
		t.Error("similarity 0.67 should miss at threshold 0.8")
	}

	// Drop one attribute instead: Jaccard 4/5 = 0.8 -> hit.
	subset := map[string]string{"language": "go", "framework": "chi", "task": "debug", "file": "a.go"}
	if _, ok := c.Get("related to auth", subset); !ok {
		t.Error("similarity 0.8 should hit at threshold 0.8")
	}
}

func TestSimilarContextDifferentQueryMisses(t *testing.T) {
	c := testCache(t, DefaultConfig())
	ctx := map[string]string{"language": "go"}
	c.Set("query one", ctx, &fakeResult{}, nil)

	if _, ok := c.Get("query two", ctx); ok {
		t.Error("similarity matching must be scoped to the same query")
	}
}

func TestScenarioCEvictsLRU(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 2
	c := testCache(t, cfg)

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	c.now = func() time.Time { return clock }

	c.Set("q1", map[string]string{"a": "1"}, &fakeResult{IDs: []string{"r1"}}, nil)
	clock = clock.Add(time.Second)
	c.Set("q2", map[string]string{"a": "1"}, &fakeResult{IDs: []string{"r2"}}, nil)

	// Touch q1 so q2 becomes the LRU.
	clock = clock.Add(time.Second)
	if _, ok := c.Get("q1", map[string]string{"a": "1"}); !ok {
		t.Fatal("q1 should hit")
	}

	clock = clock.Add(time.Second)
	c.Set("q3", map[string]string{"a": "1"}, &fakeResult{IDs: []string{"r3"}}, nil)

	if stats := c.GetStats(); stats.TotalEntries != 2 {
		t.Fatalf("totalEntries = %d, want 2", stats.TotalEntries)
	}
	if _, ok := c.Get("q2", map[string]string{"a": "1"}); ok {
		t.Error("q2 was LRU and should have been evicted")
	}
	if _, ok := c.Get("q1", map[string]string{"a": "1"}); !ok {
		t.Error("q1 was recently used and should survive")
	}
}

func TestTTLExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Minute
	c := testCache(t, cfg)

	clock := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Set("q", nil, &fakeResult{}, nil)
	if _, ok := c.Get("q", nil); !ok {
		t.Fatal("fresh entry should hit")
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok := c.Get("q", nil); ok {
		t.Error("expired entry should miss regardless of use")
	}
	if stats := c.GetStats(); stats.Expirations == 0 {
		t.Error("expiration not counted")
	}
}

func TestInvalidateByNodeID(t *testing.T) {
	c := testCache(t, DefaultConfig())

	c.Set("q1", nil, &fakeResult{IDs: []string{"n1", "n2"}}, []string{"n1", "n2", "src/a.go"})
	c.Set("q2", nil, &fakeResult{IDs: []string{"n3"}}, []string{"n3", "src/b.go"})

	removed := c.Invalidate([]string{"n1"})
	if removed != 1 {
		t.Fatalf("invalidated %d entries, want 1", removed)
	}
	if _, ok := c.Get("q1", nil); ok {
		t.Error("entry mentioning n1 should be gone")
	}
	if _, ok := c.Get("q2", nil); !ok {
		t.Error("unrelated entry should survive")
	}
}

func TestInvalidateByGlob(t *testing.T) {
	c := testCache(t, DefaultConfig())

	c.Set("q1", nil, &fakeResult{}, []string{"src/auth/login.ts"})
	c.Set("q2", nil, &fakeResult{}, []string{"internal/store/db.go"})

	removed := c.Invalidate([]string{"src/**"})
	if removed != 1 {
		t.Fatalf("invalidated %d entries, want 1", removed)
	}
	if _, ok := c.Get("q2", nil); !ok {
		t.Error("non-matching entry should survive")
	}
}

func TestMemoryBoundEviction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 1000
	cfg.MaxMemoryMB = 1
	c := testCache(t, cfg)

	big := make([]string, 20000)
	for i := range big {
		big[i] = "0123456789abcdef0123456789abcdef"
	}
	// Each entry is ~700KB serialized; the third must push out the first.
	c.Set("q1", nil, &fakeResult{IDs: big}, nil)
	c.Set("q2", nil, &fakeResult{IDs: big}, nil)
	c.Set("q3", nil, &fakeResult{IDs: big}, nil)

	stats := c.GetStats()
	if stats.MemoryBytes > 1024*1024 {
		t.Errorf("memory budget exceeded: %d bytes", stats.MemoryBytes)
	}
	if stats.Evictions == 0 {
		t.Error("expected evictions under memory pressure")
	}
}

func TestStatsHitRate(t *testing.T) {
	c := testCache(t, DefaultConfig())
	c.Set("q", nil, &fakeResult{}, nil)

	c.Get("q", nil)     // hit
	c.Get("other", nil) // miss

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("hits=%d misses=%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("hitRate = %v, want 0.5", stats.HitRate)
	}
}

func TestEvictExpired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Minute
	c := testCache(t, cfg)

	clock := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Set("q1", nil, &fakeResult{}, nil)
	c.Set("q2", nil, &fakeResult{}, nil)
	clock = clock.Add(2 * time.Minute)
	c.Set("q3", nil, &fakeResult{}, nil)

	if removed := c.EvictExpired(); removed != 2 {
		t.Fatalf("EvictExpired removed %d, want 2", removed)
	}
	if stats := c.GetStats(); stats.TotalEntries != 1 {
		t.Errorf("totalEntries = %d, want 1", stats.TotalEntries)
	}
}
