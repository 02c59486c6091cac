package event

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/graceway/engagement-engine/pkg/common"
	"github.com/graceway/engagement-engine/pkg/identity"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestLogAppendAndRecent(t *testing.T) {
	log := NewLog(setupTestRedis(t))
	ctx := context.Background()
	id := identity.ForSession("sess-1")

	for _, typ := range []string{TypeSessionStart, TypePageView, TypeChatStart} {
		ev := &Event{
			ID:        common.NewID(),
			Identity:  id,
			EventType: typ,
			CreatedAt: time.Now(),
		}
		if err := log.Append(ctx, ev); err != nil {
			t.Fatalf("Append(%s) error = %v", typ, err)
		}
	}

	events, err := log.Recent(ctx, id, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Recent() returned %d events, expected 3", len(events))
	}
	if events[2].EventType != TypeChatStart {
		t.Errorf("newest event = %s, expected %s", events[2].EventType, TypeChatStart)
	}
}

func TestLogMoveTo(t *testing.T) {
	log := NewLog(setupTestRedis(t))
	ctx := context.Background()
	sess := identity.ForSession("sess-2")
	acct := identity.ForAccount("acct-2")

	if err := log.Append(ctx, &Event{ID: common.NewID(), Identity: acct, EventType: TypeSessionStart, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := log.Append(ctx, &Event{ID: common.NewID(), Identity: sess, EventType: TypePageView, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := log.MoveTo(ctx, sess, acct); err != nil {
		t.Fatalf("MoveTo() error = %v", err)
	}

	acctEvents, err := log.Recent(ctx, acct, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(acctEvents) != 2 {
		t.Errorf("account log has %d events after move, expected 2", len(acctEvents))
	}

	sessEvents, err := log.Recent(ctx, sess, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(sessEvents) != 0 {
		t.Errorf("session log has %d events after move, expected 0", len(sessEvents))
	}
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"valid session event", Event{EventType: TypePageView, Identity: identity.ForSession("s")}, false},
		{"valid account event", Event{EventType: "custom", Identity: identity.ForAccount("a")}, false},
		{"missing type", Event{Identity: identity.ForSession("s")}, true},
		{"missing identity", Event{EventType: TypePageView}, true},
		{"both ids set", Event{EventType: TypePageView, Identity: identity.Identity{AccountID: "a", SessionID: "s"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
