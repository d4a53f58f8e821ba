package pricecache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGetReturnsFreshEntry(t *testing.T) {
	c := New(5*time.Minute, 0)
	c.Set("variant:1:qty:10", int64(850))

	got, ok := c.Get("variant:1:qty:10")
	if !ok {
		t.Fatal("expected a hit")
	}
	if got.(int64) != 850 {
		t.Fatalf("got %v, want 850", got)
	}
	if _, ok := c.Get("variant:2:qty:10"); ok {
		t.Fatal("unexpected hit for different key")
	}
}

func TestGetExpiresByTTL(t *testing.T) {
	c := New(5*time.Minute, 0)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.Set("k", "v")

	c.now = func() time.Time { return base.Add(4 * time.Minute) }
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry younger than TTL must hit")
	}

	c.now = func() time.Time { return base.Add(5 * time.Minute) }
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry at TTL age must miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expired read must evict, len=%d", c.Len())
	}
}

func TestSetOverwrites(t *testing.T) {
	c := New(time.Minute, 0)
	c.Set("k", 1)
	c.Set("k", 2)
	got, _ := c.Get("k")
	if got.(int) != 2 {
		t.Fatalf("got %v, want the overwritten value", got)
	}
	if c.Len() != 1 {
		t.Fatalf("overwrite must not grow the map, len=%d", c.Len())
	}
}

func TestSweepAboveThreshold(t *testing.T) {
	c := New(time.Minute, 10)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	for i := 0; i < 11; i++ {
		c.Set(fmt.Sprintf("old:%d", i), i)
	}

	// Past the TTL and above the threshold: the next write sweeps.
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	c.Set("fresh", "v")

	if c.Len() != 1 {
		t.Fatalf("sweep must purge expired entries, len=%d", c.Len())
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Fatal("fresh entry must survive the sweep")
	}
}

func TestClear(t *testing.T) {
	c := New(time.Minute, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("clear must drop everything, len=%d", c.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute, 50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d:i%d", g, i%20)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
}
