package cache

import (
	"context"
	"testing"
	"time"
)

type group struct {
	ID      string   `json:"id"`
	Sources []string `json:"sources"`
}

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	var got []group
	ok, err := c.Get(ctx, "meta:networks", &got)
	if err != nil || ok {
		t.Fatalf("Get on empty cache = (%v, %v), want (false, nil)", ok, err)
	}

	want := []group{{ID: "ethereum", Sources: []string{"defillama", "merkl"}}}
	if err := c.Set(ctx, "meta:networks", want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ok, err = c.Get(ctx, "meta:networks", &got)
	if err != nil || !ok {
		t.Fatalf("Get after Set = (%v, %v), want (true, nil)", ok, err)
	}
	if len(got) != 1 || got[0].ID != "ethereum" || len(got[0].Sources) != 2 {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestMemoryIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	value := []group{{ID: "base"}}
	if err := c.Set(ctx, "k", value); err != nil {
		t.Fatal(err)
	}
	value[0].ID = "mutated"

	var got []group
	if _, err := c.Get(ctx, "k", &got); err != nil {
		t.Fatal(err)
	}
	if got[0].ID != "base" {
		t.Errorf("cached value changed through caller slice: %q", got[0].ID)
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory(5 * time.Minute).WithClock(func() time.Time { return now })

	if err := c.Set(ctx, "k", 1); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		advance time.Duration
		want    bool
	}{
		{"fresh", time.Minute, true},
		{"just before ttl", 5*time.Minute - time.Second, true},
		{"at ttl", 5 * time.Minute, false},
	}
	start := now
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = start.Add(tt.advance)
			var v int
			ok, err := c.Get(ctx, "k", &v)
			if err != nil {
				t.Fatal(err)
			}
			if ok != tt.want {
				t.Errorf("Get hit = %v, want %v", ok, tt.want)
			}
		})
	}
	if c.Len() != 0 {
		t.Errorf("expired slot not collected, Len = %d", c.Len())
	}
}

func TestMemoryInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)
	if c.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want default %v", c.ttl, DefaultTTL)
	}
	_ = c.Set(ctx, "k", "v")
	if err := c.Invalidate(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	var v string
	if ok, _ := c.Get(ctx, "k", &v); ok {
		t.Error("Get hit after Invalidate")
	}
}

func TestMemoryEncodeError(t *testing.T) {
	c := NewMemory(time.Minute)
	if err := c.Set(context.Background(), "k", make(chan int)); err == nil {
		t.Error("Set of unencodable value should fail")
	}
}
