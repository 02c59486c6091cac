package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/pkg/event"
	"github.com/graceway/engagement-engine/pkg/identity"
)

const (
	// storeDefaultTTL is how long an idle identity's state survives (180 days).
	storeDefaultTTL = 180 * 24 * time.Hour
	// storeKeyPrefix is the prefix for all engagement state keys.
	storeKeyPrefix = "engagement:state:"
)

// Store is the persistence contract for engagement state. Every mutation
// persists before returning; no in-memory copy is authoritative.
type Store interface {
	GetOrCreate(ctx context.Context, id identity.Identity) (*EngagementState, error)
	ApplyEvent(ctx context.Context, id identity.Identity, ev *event.Event) (*EngagementState, error)
	Save(ctx context.Context, id identity.Identity, st *EngagementState) error
	Merge(ctx context.Context, sessionID, accountID string) (*EngagementState, error)
	Reset(ctx context.Context, id identity.Identity) error
	UpgradeToSubscriber(ctx context.Context, id identity.Identity) (*EngagementState, error)
	AdminSetStage(ctx context.Context, id identity.Identity, stage Stage) (*EngagementState, error)
}

// RedisStore implements Store on Redis. Per-identity updates are plain
// read-modify-write: concurrent events for the same identity resolve as
// last-writer-wins, which is acceptable here because scoring is recomputed
// from counters on every event and self-corrects on the next one.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed engagement state store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func makeStateKey(id identity.Identity) string {
	return storeKeyPrefix + id.Key()
}

// InitRedisClient initializes a Redis client, retrying the initial ping with
// exponential backoff.
func InitRedisClient(ctx context.Context, addr, password string, maxRetries int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxRetries)), ctx)
	err := backoff.Retry(func() error {
		if _, err := client.Ping(ctx).Result(); err != nil {
			logrus.Warnf("Redis connection to %s failed: %v, retrying...", addr, err)
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logrus.Infof("connected to Redis at %s", addr)
	return client, nil
}

// GetOrCreate retrieves the state for an identity, returning a fresh record
// when none exists yet. The fresh record is not persisted until the first
// mutation.
func (r *RedisStore) GetOrCreate(ctx context.Context, id identity.Identity) (*EngagementState, error) {
	return r.load(ctx, id, true)
}

func (r *RedisStore) load(ctx context.Context, id identity.Identity, createMissing bool) (*EngagementState, error) {
	data, err := r.client.Get(ctx, makeStateKey(id)).Result()
	if err == redis.Nil {
		if !createMissing {
			return nil, nil
		}
		logrus.Debugf("no existing state for %s, starting fresh", id)
		return NewEngagementState(time.Now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state for %s: %w", id, err)
	}

	var st EngagementState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state for %s: %w", id, err)
	}
	st.ensureMaps()
	return &st, nil
}

// Save persists the state record.
func (r *RedisStore) Save(ctx context.Context, id identity.Identity, st *EngagementState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state for %s: %w", id, err)
	}

	if err := r.client.Set(ctx, makeStateKey(id), data, storeDefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to set state for %s: %w", id, err)
	}
	return nil
}

// ApplyEvent folds one event into the identity's state and persists the
// result.
func (r *RedisStore) ApplyEvent(ctx context.Context, id identity.Identity, ev *event.Event) (*EngagementState, error) {
	st, err := r.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}

	st.Apply(ev, time.Now())
	if err := r.Save(ctx, id, st); err != nil {
		return nil, err
	}

	logrus.Debugf("applied %s for %s: score=%d stage=%s",
		ev.EventType, id, st.EngagementScore, st.FunnelStage)
	return st, nil
}

// Merge folds an anonymous session's state into an account's state after
// login and deletes the session record. Safe to call when the session has no
// state (the account state is returned untouched).
func (r *RedisStore) Merge(ctx context.Context, sessionID, accountID string) (*EngagementState, error) {
	sessID := identity.ForSession(sessionID)
	acctID := identity.ForAccount(accountID)

	sessState, err := r.load(ctx, sessID, false)
	if err != nil {
		return nil, err
	}

	acctState, err := r.GetOrCreate(ctx, acctID)
	if err != nil {
		return nil, err
	}

	if sessState == nil {
		logrus.Debugf("merge: no session state for %s, keeping account state as-is", sessID)
		return acctState, nil
	}

	acctState.MergeFrom(sessState, time.Now())
	if err := r.Save(ctx, acctID, acctState); err != nil {
		return nil, err
	}

	if err := r.client.Del(ctx, makeStateKey(sessID)).Err(); err != nil {
		// The merged result is already durable; a dangling session record
		// only wastes a key until its TTL.
		logrus.Warnf("merge: failed to delete session state for %s: %v", sessID, err)
	}

	logrus.Infof("merged session %s into account %s: score=%d stage=%s",
		sessionID, accountID, acctState.EngagementScore, acctState.FunnelStage)
	return acctState, nil
}

// Reset wipes the state record for an identity. Admin operation.
func (r *RedisStore) Reset(ctx context.Context, id identity.Identity) error {
	if err := r.client.Del(ctx, makeStateKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to reset state for %s: %w", id, err)
	}
	logrus.Infof("reset engagement state for %s", id)
	return nil
}

// UpgradeToSubscriber is the explicit upgrade path into the subscriber
// stage. Score alone never reaches it. Already-subscribed identities keep
// their (possibly higher) stage.
func (r *RedisStore) UpgradeToSubscriber(ctx context.Context, id identity.Identity) (*EngagementState, error) {
	st, err := r.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}

	st.FunnelStage = higherStage(st.FunnelStage, StageSubscriber)
	st.LastActivityAt = time.Now()
	if err := r.Save(ctx, id, st); err != nil {
		return nil, err
	}

	logrus.Infof("upgraded %s to stage %s", id, st.FunnelStage)
	return st, nil
}

// AdminSetStage forces a funnel stage. This is the only path that can lower
// a subscriber or advocate.
func (r *RedisStore) AdminSetStage(ctx context.Context, id identity.Identity, stage Stage) (*EngagementState, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("unknown funnel stage %q", stage)
	}

	st, err := r.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}

	st.FunnelStage = stage
	if err := r.Save(ctx, id, st); err != nil {
		return nil, err
	}

	logrus.Infof("admin set stage for %s to %s", id, stage)
	return st, nil
}

var _ Store = (*RedisStore)(nil)
