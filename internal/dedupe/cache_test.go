// ABOUTME: Tests for the request dedupe cache: TTL, eviction, and key scoping.

package dedupe

import (
	"fmt"
	"testing"
	"time"
)

func TestDuplicate_FirstSeenThenDuplicate(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	key := Key("sess-1", "req-1")
	if c.Duplicate(key) {
		t.Fatal("fresh key reported as duplicate")
	}
	if !c.Duplicate(key) {
		t.Fatal("repeated key not reported as duplicate")
	}
}

func TestKey_ScopedBySession(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	if c.Duplicate(Key("sess-1", "req-1")) {
		t.Fatal("fresh key reported as duplicate")
	}
	if c.Duplicate(Key("sess-2", "req-1")) {
		t.Fatal("same request ID in a different session must not collide")
	}
}

func TestDuplicate_ExpiredKeyIsFresh(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	key := Key("sess-1", "req-1")
	c.Duplicate(key)
	time.Sleep(20 * time.Millisecond)

	if c.Duplicate(key) {
		t.Fatal("expired key still reported as duplicate")
	}
}

func TestEviction_OldestFirst(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	for i := range 3 {
		c.Duplicate(Key("sess-1", fmt.Sprintf("req-%d", i)))
	}
	// Capacity reached; the next key evicts req-0.
	c.Duplicate(Key("sess-1", "req-3"))

	if c.Len() != 3 {
		t.Fatalf("len = %d, want 3", c.Len())
	}
	if c.Duplicate(Key("sess-1", "req-0")) {
		t.Error("evicted key still reported as duplicate")
	}
	if !c.Duplicate(Key("sess-1", "req-3")) {
		t.Error("retained key not reported as duplicate")
	}
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
