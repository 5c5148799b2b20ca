// Package lock provides short-lived named locks used to keep one terminal
// session from checking out twice at the same time.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

var ErrNotObtained = errors.New("lock not obtained")

type Lease interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// RedisLocker shares locks across API replicas.
type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	held, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return redisLease{lock: held}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (l redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// LocalLocker keeps locks in process memory. Expired entries are reclaimed
// on the next Obtain of the same key.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	now   func() time.Time
	seqNo uint64
}

type localEntry struct {
	seq     uint64
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]localEntry{}, now: time.Now}
}

func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expires) {
		return nil, ErrNotObtained
	}
	l.seqNo++
	l.held[key] = localEntry{seq: l.seqNo, expires: now.Add(ttl)}
	return &localLease{owner: l, key: key, seq: l.seqNo}, nil
}

type localLease struct {
	owner *LocalLocker
	key   string
	seq   uint64
}

func (l *localLease) Release(_ context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()

	if entry, ok := l.owner.held[l.key]; ok && entry.seq == l.seq {
		delete(l.owner.held, l.key)
	}
	return nil
}
