package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/graceway/engagement-engine/pkg/event"
	"github.com/graceway/engagement-engine/pkg/identity"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestGetOrCreate_NewIdentity(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	st, err := store.GetOrCreate(ctx, identity.ForSession("sess-1"))
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if st.FunnelStage != StageVisitor {
		t.Errorf("FunnelStage = %s, expected %s", st.FunnelStage, StageVisitor)
	}
	if st.PageViews != 0 || st.SessionCount != 0 {
		t.Errorf("fresh state has non-zero counters: %+v", st)
	}
}

func TestApplyEvent_Persists(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()
	id := identity.ForSession("sess-2")

	if _, err := store.ApplyEvent(ctx, id, &event.Event{EventType: event.TypePageView, PageURL: "/home"}); err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}
	st, err := store.ApplyEvent(ctx, id, &event.Event{EventType: event.TypePageView, PageURL: "/chat"})
	if err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}

	if st.PageViews != 2 {
		t.Errorf("PageViews = %d, expected 2", st.PageViews)
	}

	// A fresh read must see the persisted record.
	reloaded, err := store.GetOrCreate(ctx, id)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if reloaded.PageViews != 2 || reloaded.LastPageURL != "/chat" {
		t.Errorf("reloaded state = %+v, persistence lost an update", reloaded)
	}
}

func TestMerge_SessionIntoAccount(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	sessID := identity.ForSession("sess-3")
	acctID := identity.ForAccount("acct-3")

	for i := 0; i < 4; i++ {
		if _, err := store.ApplyEvent(ctx, sessID, &event.Event{EventType: event.TypePageView}); err != nil {
			t.Fatalf("ApplyEvent() error = %v", err)
		}
	}
	if _, err := store.ApplyEvent(ctx, acctID, &event.Event{EventType: event.TypeSessionStart}); err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}

	merged, err := store.Merge(ctx, "sess-3", "acct-3")
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if merged.PageViews != 4 {
		t.Errorf("merged PageViews = %d, expected 4", merged.PageViews)
	}
	if merged.SessionCount != 1 {
		t.Errorf("merged SessionCount = %d, expected 1", merged.SessionCount)
	}

	// Session record must be gone.
	if client.Exists(ctx, makeStateKey(sessID)).Val() != 0 {
		t.Errorf("session state still present after merge")
	}
}

func TestMerge_NoSessionState(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	if _, err := store.ApplyEvent(ctx, identity.ForAccount("acct-4"), &event.Event{EventType: event.TypePageView}); err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}

	merged, err := store.Merge(ctx, "never-seen", "acct-4")
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if merged.PageViews != 1 {
		t.Errorf("merge without session state changed the account record: %+v", merged)
	}
}

func TestReset(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()
	id := identity.ForAccount("acct-5")

	if _, err := store.ApplyEvent(ctx, id, &event.Event{EventType: event.TypePageView}); err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}
	if err := store.Reset(ctx, id); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	st, err := store.GetOrCreate(ctx, id)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if st.PageViews != 0 {
		t.Errorf("PageViews = %d after reset, expected 0", st.PageViews)
	}
}

func TestUpgradeToSubscriber(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()
	id := identity.ForAccount("acct-6")

	st, err := store.UpgradeToSubscriber(ctx, id)
	if err != nil {
		t.Fatalf("UpgradeToSubscriber() error = %v", err)
	}
	if st.FunnelStage != StageSubscriber {
		t.Errorf("FunnelStage = %s, expected %s", st.FunnelStage, StageSubscriber)
	}

	// Upgrading an advocate must not demote them.
	if _, err := store.AdminSetStage(ctx, id, StageAdvocate); err != nil {
		t.Fatalf("AdminSetStage() error = %v", err)
	}
	st, err = store.UpgradeToSubscriber(ctx, id)
	if err != nil {
		t.Fatalf("UpgradeToSubscriber() error = %v", err)
	}
	if st.FunnelStage != StageAdvocate {
		t.Errorf("FunnelStage = %s, upgrade demoted an advocate", st.FunnelStage)
	}
}

func TestAdminSetStage_RejectsUnknownStage(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client)

	if _, err := store.AdminSetStage(context.Background(), identity.ForAccount("acct-7"), Stage("vip")); err == nil {
		t.Fatal("AdminSetStage() accepted an unknown stage")
	}
}

func TestHealthChecker(t *testing.T) {
	client, mr := setupTestRedis(t)
	hc := NewHealthChecker(client)
	ctx := context.Background()

	if !hc.IsHealthy(ctx) {
		t.Error("IsHealthy() = false against a live server")
	}

	mr.Close()
	time.Sleep(10 * time.Millisecond)
	if hc.IsHealthy(ctx) {
		t.Error("IsHealthy() = true against a closed server")
	}
}
