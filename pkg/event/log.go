package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/pkg/identity"
)

const (
	// logKeyPrefix is the prefix for per-identity event logs.
	logKeyPrefix = "engagement:events:"
	// logDefaultTTL keeps event history for 90 days.
	logDefaultTTL = 90 * 24 * time.Hour
	// logMaxLength caps the retained history per identity.
	logMaxLength = 5000
)

// Log is an append-only Redis event log. Entries are never updated or
// deleted individually; the per-identity list is capped and expires as a
// whole when the identity goes idle.
type Log struct {
	client *redis.Client
}

// NewLog creates a Redis-backed event log.
func NewLog(client *redis.Client) *Log {
	return &Log{client: client}
}

func makeLogKey(id identity.Identity) string {
	return logKeyPrefix + id.Key()
}

// Append records an event. The event must already carry its id and
// timestamp; Append never mutates it.
func (l *Log) Append(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := makeLogKey(ev.Identity)
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -logMaxLength, -1)
	pipe.Expire(ctx, key, logDefaultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		logrus.Errorf("failed to append event for %s: %v", ev.Identity, err)
		return fmt.Errorf("failed to append event: %w", err)
	}

	logrus.Debugf("appended %s event for %s", ev.EventType, ev.Identity)
	return nil
}

// Recent returns up to limit most recent events for an identity, newest last.
func (l *Log) Recent(ctx context.Context, id identity.Identity, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}

	raw, err := l.client.LRange(ctx, makeLogKey(id), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	events := make([]*Event, 0, len(raw))
	for _, item := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			logrus.Warnf("skipping unreadable event log entry for %s: %v", id, err)
			continue
		}
		events = append(events, &ev)
	}

	return events, nil
}

// MoveTo re-homes a session's event history onto an account during identity
// merge. Existing account history is preserved; session entries are appended
// after it.
func (l *Log) MoveTo(ctx context.Context, from, to identity.Identity) error {
	fromKey := makeLogKey(from)
	toKey := makeLogKey(to)

	entries, err := l.client.LRange(ctx, fromKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read session event log: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	args := make([]interface{}, len(entries))
	for i, e := range entries {
		args[i] = e
	}

	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, toKey, args...)
	pipe.LTrim(ctx, toKey, -logMaxLength, -1)
	pipe.Expire(ctx, toKey, logDefaultTTL)
	pipe.Del(ctx, fromKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to move event log: %w", err)
	}

	logrus.Infof("moved %d events from %s to %s", len(entries), from, to)
	return nil
}
