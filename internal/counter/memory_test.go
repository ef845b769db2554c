package counter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMemoryStoreIncrementAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		got, ok := s.Increment(ctx, "velocity:card:abc", time.Hour)
		if !ok {
			t.Fatalf("Increment returned ok=false")
		}
		if got != i {
			t.Errorf("Increment #%d = %d, want %d", i, got, i)
		}
	}

	got, ok := s.GetInt(ctx, "velocity:card:abc")
	if !ok || got != 3 {
		t.Errorf("GetInt = (%d, %v), want (3, true)", got, ok)
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if got, ok := s.GetInt(ctx, "nope"); ok || got != 0 {
		t.Errorf("GetInt on missing key = (%d, %v), want (0, false)", got, ok)
	}
	if got, ok := s.GetDecimal(ctx, "nope"); ok || !got.IsZero() {
		t.Errorf("GetDecimal on missing key = (%s, %v), want (0, false)", got, ok)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Increment(ctx, "velocity:merchant:m1", 10*time.Minute)

	now = now.Add(9 * time.Minute)
	if got, ok := s.GetInt(ctx, "velocity:merchant:m1"); !ok || got != 1 {
		t.Errorf("GetInt before expiry = (%d, %v), want (1, true)", got, ok)
	}

	now = now.Add(2 * time.Minute)
	if got, ok := s.GetInt(ctx, "velocity:merchant:m1"); ok {
		t.Errorf("GetInt after expiry = (%d, %v), want miss", got, ok)
	}

	// A fresh increment after expiry restarts from 1, not the stale count.
	if got, _ := s.Increment(ctx, "velocity:merchant:m1", 10*time.Minute); got != 1 {
		t.Errorf("Increment after expiry = %d, want 1", got)
	}
}

func TestMemoryStoreIncrementExtendsTTL(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Increment(ctx, "k", time.Hour)
	now = now.Add(50 * time.Minute)
	s.Increment(ctx, "k", time.Hour)

	// 70 minutes after the first write, 20 after the second.
	now = now.Add(20 * time.Minute)
	if got, ok := s.GetInt(ctx, "k"); !ok || got != 2 {
		t.Errorf("GetInt = (%d, %v), want (2, true)", got, ok)
	}
}

func TestMemoryStoreAddAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sum, ok := s.AddAndGet(ctx, "amount:card:abc", decimal.NewFromInt(1200), time.Hour)
	if !ok || !sum.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("AddAndGet = (%s, %v), want (1200, true)", sum, ok)
	}

	sum, _ = s.AddAndGet(ctx, "amount:card:abc", decimal.RequireFromString("350.75"), time.Hour)
	want := decimal.RequireFromString("1550.75")
	if !sum.Equal(want) {
		t.Errorf("AddAndGet = %s, want %s", sum, want)
	}

	got, ok := s.GetDecimal(ctx, "amount:card:abc")
	if !ok || !got.Equal(want) {
		t.Errorf("GetDecimal = (%s, %v), want (%s, true)", got, ok, want)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Increment(ctx, "short", time.Minute)
	s.Increment(ctx, "long", time.Hour)

	now = now.Add(5 * time.Minute)
	s.Sweep()

	if _, ok := s.GetInt(ctx, "short"); ok {
		t.Error("expired key survived sweep")
	}
	if got, ok := s.GetInt(ctx, "long"); !ok || got != 1 {
		t.Errorf("live key after sweep = (%d, %v), want (1, true)", got, ok)
	}
}

func TestMemoryStoreConcurrentIncrement(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const goroutines = 32
	const perGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				s.Increment(ctx, "hot", time.Hour)
			}
		}()
	}
	wg.Wait()

	got, ok := s.GetInt(ctx, "hot")
	if !ok || got != goroutines*perGoroutine {
		t.Errorf("GetInt = (%d, %v), want (%d, true)", got, ok, goroutines*perGoroutine)
	}
}
