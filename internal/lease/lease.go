package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "article:lease:"

// ErrNotHeld is returned when a lease is taken by another holder or has expired
var ErrNotHeld = errors.New("lease not held")

var refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out per-article leases
type Locker struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

// Lease is a held lease on one article
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// NewLocker creates a Redis lease locker
func NewLocker(rdb goredis.Cmdable, ttl time.Duration) *Locker {
	return &Locker{rdb: rdb, ttl: ttl}
}

// Key returns the Redis key guarding an article
func Key(articleID string) string {
	return keyPrefix + articleID
}

// Acquire takes the lease for articleID or returns ErrNotHeld if someone else holds it
func (l *Locker) Acquire(ctx context.Context, articleID string) (*Lease, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, Key(articleID), token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !ok {
		return nil, ErrNotHeld
	}
	return &Lease{locker: l, key: Key(articleID), token: token}, nil
}

// Held reports whether any runner currently holds the lease for articleID
func (l *Locker) Held(ctx context.Context, articleID string) (bool, error) {
	n, err := l.rdb.Exists(ctx, Key(articleID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lease: %w", err)
	}
	return n > 0, nil
}

// Refresh extends the lease by the locker ttl
func (ls *Lease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, ls.locker.rdb, []string{ls.key}, ls.token, ls.locker.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh lease: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Release drops the lease if it is still ours
func (ls *Lease) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, ls.locker.rdb, []string{ls.key}, ls.token).Int(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}
