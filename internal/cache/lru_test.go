package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[int](4, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	c.Set("summary:u1:2026-01-04", 42)
	got, ok := c.Get("summary:u1:2026-01-04")
	if !ok || got != 42 {
		t.Fatalf("Get = %d, %v; want 42, true", got, ok)
	}

	c.Set("summary:u1:2026-01-04", 43)
	got, _ = c.Get("summary:u1:2026-01-04")
	if got != 43 {
		t.Fatalf("overwrite not applied, got %d", got)
	}
	if c.Size() != 1 {
		t.Fatalf("Size = %d, want 1", c.Size())
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[int](3, time.Minute)

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	// Touch k0 so k1 is the least recently used.
	c.Get("k0")
	c.Set("k3", 3)

	if _, ok := c.Get("k1"); ok {
		t.Fatal("k1 should have been evicted")
	}
	if _, ok := c.Get("k0"); !ok {
		t.Fatal("k0 should have survived eviction")
	}
	if c.Size() != 3 {
		t.Fatalf("Size = %d, want 3", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache[string](8, 10*time.Millisecond)

	c.Set("a", "x")
	c.Set("b", "y")
	time.Sleep(25 * time.Millisecond)
	c.Set("c", "z")

	if _, ok := c.Get("a"); ok {
		t.Fatal("expired entry returned")
	}

	removed := c.CleanExpired()
	if removed != 1 {
		t.Fatalf("CleanExpired = %d, want 1 (b)", removed)
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("fresh entry dropped by sweep")
	}
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](16, time.Minute)

	c.Set("summary:u1:2026-01-04", 1)
	c.Set("summary:u1:2026-01-11", 2)
	c.Set("summary:u2:2026-01-04", 3)

	removed := c.DeletePrefix("summary:u1:")
	if removed != 2 {
		t.Fatalf("DeletePrefix = %d, want 2", removed)
	}
	if _, ok := c.Get("summary:u2:2026-01-04"); !ok {
		t.Fatal("other user's entry dropped")
	}
	if c.Size() != 1 {
		t.Fatalf("Size = %d, want 1", c.Size())
	}
}

func TestManagerSweep(t *testing.T) {
	c := NewLRUCache[int](8, 5*time.Millisecond)
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)
	m.StartCleanup(10 * time.Millisecond)
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for c.Size() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweep never removed expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
