package rule

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCacheRefreshesAtMostOncePerTTL(t *testing.T) {
	fetches := 0
	cache := NewCache(func(ctx context.Context) ([]*Rule, error) {
		fetches++
		return []*Rule{testRule("r1", "s1", 1)}, nil
	}, time.Minute)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := cache.ActiveRules(ctx); err != nil {
			t.Fatalf("ActiveRules() error = %v", err)
		}
	}

	if fetches != 1 {
		t.Errorf("fetch count = %d within one TTL window, expected 1", fetches)
	}
}

func TestCacheInvalidateForcesSynchronousFetch(t *testing.T) {
	fetches := 0
	cache := NewCache(func(ctx context.Context) ([]*Rule, error) {
		fetches++
		return nil, nil
	}, time.Minute)

	ctx := context.Background()
	if _, err := cache.ActiveRules(ctx); err != nil {
		t.Fatalf("ActiveRules() error = %v", err)
	}
	cache.Invalidate()
	if _, err := cache.ActiveRules(ctx); err != nil {
		t.Fatalf("ActiveRules() error = %v", err)
	}

	if fetches != 2 {
		t.Errorf("fetch count = %d after invalidate, expected 2", fetches)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	fetches := 0
	cache := NewCache(func(ctx context.Context) ([]*Rule, error) {
		fetches++
		return nil, nil
	}, 10*time.Millisecond)

	ctx := context.Background()
	if _, err := cache.ActiveRules(ctx); err != nil {
		t.Fatalf("ActiveRules() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := cache.ActiveRules(ctx); err != nil {
		t.Fatalf("ActiveRules() error = %v", err)
	}

	if fetches != 2 {
		t.Errorf("fetch count = %d after TTL expiry, expected 2", fetches)
	}
}

func TestCacheFailSoftServesLastSnapshot(t *testing.T) {
	healthy := true
	cache := NewCache(func(ctx context.Context) ([]*Rule, error) {
		if !healthy {
			return nil, errors.New("catalog unreachable")
		}
		return []*Rule{testRule("r1", "s1", 1)}, nil
	}, time.Minute)

	ctx := context.Background()
	if _, err := cache.ActiveRules(ctx); err != nil {
		t.Fatalf("ActiveRules() error = %v", err)
	}

	healthy = false
	cache.Invalidate()
	rules, err := cache.ActiveRules(ctx)
	if err != nil {
		t.Fatalf("ActiveRules() error = %v on a failed refresh with a known-good snapshot", err)
	}
	if len(rules) != 1 || rules[0].ID != "r1" {
		t.Errorf("ActiveRules() = %v, expected the last known-good snapshot", rules)
	}
}

func TestCacheErrorsWithoutAnySnapshot(t *testing.T) {
	cache := NewCache(func(ctx context.Context) ([]*Rule, error) {
		return nil, errors.New("catalog unreachable")
	}, time.Minute)

	if _, err := cache.ActiveRules(context.Background()); err == nil {
		t.Error("ActiveRules() returned no error with no snapshot to fall back on")
	}
}
