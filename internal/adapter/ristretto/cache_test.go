package ristretto

import (
	"context"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "typescript|file:///a.ts", []byte(`[{"message":"x"}]`), 0); err != nil {
		t.Fatal(err)
	}
	val, found, err := c.Get(ctx, "typescript|file:///a.ts")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected found after Set")
	}
	if string(val) != `[{"message":"x"}]` {
		t.Fatalf("unexpected value: %s", val)
	}
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(t)
	_, found, err := c.Get(context.Background(), "python|file:///missing.py")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected miss for nonexistent key")
	}
}

func TestOverwriteLastWriteWins(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v1"), time.Minute)
	_ = c.Set(ctx, "k", []byte("v2"), time.Minute)

	val, found, _ := c.Get(ctx, "k")
	if !found || string(val) != "v2" {
		t.Fatalf("expected v2 after overwrite, got found=%v val=%s", found, val)
	}
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Fatal("expected miss after Delete")
	}

	if err := c.Delete(ctx, "never-existed"); err != nil {
		t.Fatal("Delete of nonexistent key should not error")
	}
}
