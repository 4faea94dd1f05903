package controlplane

import (
	"testing"
	"time"
)

func TestTTLCacheGetSetRoundTrip(t *testing.T) {
	c := newTTLCache[string](time.Minute)

	if _, ok := c.get("missing"); ok {
		t.Fatal("get() on empty cache returned ok = true")
	}

	c.set("k", "v")
	got, ok := c.get("k")
	if !ok || got != "v" {
		t.Fatalf("get(%q) = (%q, %v), want (%q, true)", "k", got, ok, "v")
	}
}

func TestTTLCacheExpiresEntries(t *testing.T) {
	c := newTTLCache[int](time.Minute)
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }

	c.set("k", 42)
	if _, ok := c.get("k"); !ok {
		t.Fatal("entry should be present before TTL elapses")
	}

	fakeNow = fakeNow.Add(2 * time.Minute)
	if _, ok := c.get("k"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestTTLCacheOverwriteRefreshesTTL(t *testing.T) {
	c := newTTLCache[string](time.Minute)
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }

	c.set("k", "first")
	fakeNow = fakeNow.Add(90 * time.Second)
	c.set("k", "second")

	got, ok := c.get("k")
	if !ok || got != "second" {
		t.Fatalf("get(%q) = (%q, %v), want (%q, true)", "k", got, ok, "second")
	}
}
