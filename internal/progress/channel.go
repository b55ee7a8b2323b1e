// Package progress relays run events from a worker to a stream consumer
// through a per-article Redis list.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/article-gen/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Sentinel marks the end of a channel. It is never valid JSON.
const Sentinel = "<<EOF>>"

const (
	keyPrefix = "article:progress:"

	// DefaultTTL bounds how long an abandoned channel survives in Redis
	DefaultTTL = 24 * time.Hour
)

// ErrEmpty is returned by Pop when no event is queued
var ErrEmpty = errors.New("progress channel empty")

// Key returns the list key holding the events of an article
func Key(articleID string) string {
	return keyPrefix + articleID
}

func createdKey(articleID string) string {
	return Key(articleID) + ":created"
}

// Message is one element popped from a channel
type Message struct {
	Event domain.Event
	End   bool
}

// Channel is an ordered, at-least-once event queue keyed by article id
type Channel interface {
	Push(ctx context.Context, articleID string, event domain.Event) error
	End(ctx context.Context, articleID string) error
	Pop(ctx context.Context, articleID string) (Message, error)
	Exists(ctx context.Context, articleID string) (bool, error)
	Clear(ctx context.Context, articleID string) error
}

// RedisChannel implements Channel on Redis lists
type RedisChannel struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

// NewRedisChannel creates a Redis backed channel. A non-positive ttl uses DefaultTTL.
func NewRedisChannel(rdb goredis.Cmdable, ttl time.Duration) *RedisChannel {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisChannel{rdb: rdb, ttl: ttl}
}

// Push appends event to the tail of the article's channel
func (c *RedisChannel) Push(ctx context.Context, articleID string, event domain.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return c.push(ctx, articleID, string(raw))
}

// End appends the sentinel; no event will follow it for this run
func (c *RedisChannel) End(ctx context.Context, articleID string) error {
	return c.push(ctx, articleID, Sentinel)
}

func (c *RedisChannel) push(ctx context.Context, articleID, value string) error {
	key := Key(articleID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, value)
		pipe.Expire(ctx, key, c.ttl)
		pipe.Set(ctx, createdKey(articleID), "1", c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

// Pop removes and returns the head of the channel, or ErrEmpty
func (c *RedisChannel) Pop(ctx context.Context, articleID string) (Message, error) {
	raw, err := c.rdb.LPop(ctx, Key(articleID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return Message{}, ErrEmpty
		}
		return Message{}, fmt.Errorf("failed to pop from %s: %w", Key(articleID), err)
	}

	if raw == Sentinel {
		return Message{End: true}, nil
	}

	var event domain.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return Message{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return Message{Event: event}, nil
}

// Exists reports whether anything was ever pushed for the article.
// A drained list disappears from Redis, so the creation marker is checked instead.
func (c *RedisChannel) Exists(ctx context.Context, articleID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, createdKey(articleID), Key(articleID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check channel: %w", err)
	}
	return n > 0, nil
}

// Clear drops the channel and its creation marker
func (c *RedisChannel) Clear(ctx context.Context, articleID string) error {
	if err := c.rdb.Del(ctx, Key(articleID), createdKey(articleID)).Err(); err != nil {
		return fmt.Errorf("failed to clear channel: %w", err)
	}
	return nil
}
