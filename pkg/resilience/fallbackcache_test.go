package resilience

import (
	"testing"
	"time"
)

func TestFallbackCache_SetGet(t *testing.T) {
	c := NewFallbackCache(10, time.Minute)
	c.Set("a", []byte("1"))

	if got := c.Get("a"); string(got) != "1" {
		t.Errorf("Get(a) = %q, want %q", got, "1")
	}
}

func TestFallbackCache_MissIsNilNotError(t *testing.T) {
	c := NewFallbackCache(10, time.Minute)
	if got := c.Get("missing"); got != nil {
		t.Errorf("Get(missing) = %v, want nil", got)
	}
}

func TestFallbackCache_Expiry(t *testing.T) {
	c := NewFallbackCache(10, time.Millisecond)
	c.Set("a", []byte("1"))
	time.Sleep(5 * time.Millisecond)

	if got := c.Get("a"); got != nil {
		t.Errorf("Get(a) after expiry = %v, want nil", got)
	}
}

func TestFallbackCache_EvictsLRU(t *testing.T) {
	c := NewFallbackCache(2, time.Minute)
	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Get("a") // a is now most-recently-used
	c.Set("c", []byte("3"))

	if got := c.Get("b"); got != nil {
		t.Error("expected b to be evicted as least-recently-used")
	}
	if got := c.Get("a"); string(got) != "1" {
		t.Error("expected a to survive eviction")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}
