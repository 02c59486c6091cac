package action

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/pkg/common"
	"github.com/graceway/engagement-engine/pkg/identity"
	"github.com/graceway/engagement-engine/pkg/metrics"
	"github.com/graceway/engagement-engine/pkg/rule"
)

const (
	actionKeyPrefix   = "engagement:action:"        // string: action id → json
	actionsByIdentity = "engagement:actions:"       // list: identity → action ids, newest first
	eventGuardPrefix  = "engagement:action:event:"  // string: event id → action id (at-most-one guard)
	pendingKey        = "engagement:actions:pending" // zset: action id scored by creation time

	ledgerDefaultTTL = 90 * 24 * time.Hour

	// DefaultExpiryAge is how old a pending action must be before the sweep
	// marks it expired.
	DefaultExpiryAge = 30 * time.Minute
)

// Ledger is the persistence contract for triggered actions.
type Ledger interface {
	Create(ctx context.Context, id identity.Identity, r *rule.Rule, eventID string) (*Action, error)
	Get(ctx context.Context, actionID string) (*Action, error)
	NextPending(ctx context.Context, id identity.Identity) (*Action, error)
	SetOutcome(ctx context.Context, actionID string, outcome Outcome) (*Action, error)
	SweepExpired(ctx context.Context, olderThan time.Duration) (int, error)
}

// RedisLedger implements Ledger on Redis.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger creates a Redis-backed action ledger.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func makeActionKey(actionID string) string {
	return actionKeyPrefix + actionID
}

func makeIdentityKey(id identity.Identity) string {
	return actionsByIdentity + id.Key()
}

// Create records a triggered action with outcome pending, snapshotting the
// rule's action configuration. The per-event guard makes creation
// idempotent: a second call for the same event returns ErrDuplicateAction.
func (l *RedisLedger) Create(ctx context.Context, id identity.Identity, r *rule.Rule, eventID string) (*Action, error) {
	now := time.Now()
	act := &Action{
		ID:              common.NewID(),
		Identity:        id,
		RuleID:          r.ID,
		ActionType:      r.ActionType,
		ActionConfig:    r.ActionConfig,
		MessageTemplate: r.MessageTemplate,
		TriggerEventID:  eventID,
		Outcome:         OutcomePending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if eventID != "" {
		reserved, err := l.client.SetNX(ctx, eventGuardPrefix+eventID, act.ID, ledgerDefaultTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to reserve event guard: %w", err)
		}
		if !reserved {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAction, eventID)
		}
	}

	if err := l.save(ctx, act); err != nil {
		return nil, err
	}

	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, makeIdentityKey(id), act.ID)
	pipe.Expire(ctx, makeIdentityKey(id), ledgerDefaultTTL)
	pipe.ZAdd(ctx, pendingKey, &redis.Z{Score: float64(now.Unix()), Member: act.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to index action %s: %w", act.ID, err)
	}

	logrus.Infof("created %s action %s for %s (rule %s)", act.ActionType, act.ID, id, r.ID)
	return act, nil
}

func (l *RedisLedger) save(ctx context.Context, act *Action) error {
	data, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("failed to marshal action %s: %w", act.ID, err)
	}
	if err := l.client.Set(ctx, makeActionKey(act.ID), data, ledgerDefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to set action %s: %w", act.ID, err)
	}
	return nil
}

// Get returns an action by id.
func (l *RedisLedger) Get(ctx context.Context, actionID string) (*Action, error) {
	data, err := l.client.Get(ctx, makeActionKey(actionID)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action %s: %w", actionID, err)
	}

	var act Action
	if err := json.Unmarshal([]byte(data), &act); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action %s: %w", actionID, err)
	}
	return &act, nil
}

// NextPending returns the most recent pending action for an identity, or
// nil when nothing is waiting.
func (l *RedisLedger) NextPending(ctx context.Context, id identity.Identity) (*Action, error) {
	ids, err := l.client.LRange(ctx, makeIdentityKey(id), 0, 49).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list actions for %s: %w", id, err)
	}

	for _, actionID := range ids {
		act, err := l.Get(ctx, actionID)
		if err != nil {
			logrus.Warnf("skipping unreadable action %s for %s: %v", actionID, id, err)
			continue
		}
		if act.Outcome == OutcomePending {
			return act, nil
		}
	}
	return nil, nil
}

// SetOutcome advances an action along the monotonic lifecycle.
func (l *RedisLedger) SetOutcome(ctx context.Context, actionID string, outcome Outcome) (*Action, error) {
	act, err := l.Get(ctx, actionID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(act.Outcome, outcome) {
		return nil, InvalidTransitionError(act.Outcome, outcome)
	}

	act.Outcome = outcome
	act.UpdatedAt = time.Now()
	if err := l.save(ctx, act); err != nil {
		return nil, err
	}

	// Leaving pending removes the action from the sweep set.
	if err := l.client.ZRem(ctx, pendingKey, actionID).Err(); err != nil {
		logrus.Warnf("failed to unindex action %s from pending set: %v", actionID, err)
	}

	metrics.ActionOutcomesTotal.WithLabelValues(string(outcome)).Inc()
	logrus.Infof("action %s outcome → %s", actionID, outcome)
	return act, nil
}

// SweepExpired transitions pending actions older than the given age to
// expired and returns how many were swept. Scheduling is the caller's
// concern; this is a single pass.
func (l *RedisLedger) SweepExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = DefaultExpiryAge
	}
	cutoff := time.Now().Add(-olderThan).Unix()

	ids, err := l.client.ZRangeByScore(ctx, pendingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan pending actions: %w", err)
	}

	swept := 0
	for _, actionID := range ids {
		if _, err := l.SetOutcome(ctx, actionID, OutcomeExpired); err != nil {
			// Raced with a delivery outcome or the row is gone; either way
			// it's no longer pending. Drop it from the sweep set and move on.
			logrus.Debugf("sweep skipped action %s: %v", actionID, err)
			l.client.ZRem(ctx, pendingKey, actionID)
			continue
		}
		swept++
	}

	if swept > 0 {
		logrus.Infof("expired %d stale pending actions", swept)
	}
	return swept, nil
}

var _ Ledger = (*RedisLedger)(nil)
