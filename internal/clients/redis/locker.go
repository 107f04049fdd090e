package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/rankset/internal/platform/logger"
)

// ErrNotObtained reports that another holder owns the key.
var ErrNotObtained = errors.New("lock not obtained")

// ErrLockLost reports that a lease expired or was taken over before its
// holder released it.
var ErrLockLost = errors.New("lock lost")

type Lease interface {
	// Refresh extends the lease to ttl from now.
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker hands out exclusive, expiring leases on keys.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
	Close() error
}

type redisLocker struct {
	log    *logger.Logger
	rdb    *goredis.Client
	client *redislock.Client
}

// NewLocker connects to addr. An empty addr yields a local-only locker that
// always grants the lease.
func NewLocker(log *logger.Logger, addr string) (Locker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		log.Warn("REDIS_ADDR not set; refreshes of the same typology are not serialized across processes")
		return localLocker{}, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisLocker{
		log:    log.With("service", "RedisLocker"),
		rdb:    rdb,
		client: redislock.New(rdb),
	}, nil
}

func (l *redisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain %s: %w", key, err)
	}
	l.log.Debug("Lock obtained", "key", key, "ttl", ttl.String())
	return redisLease{lock: lock, key: key}, nil
}

func (l *redisLocker) Close() error {
	return l.rdb.Close()
}

type redisLease struct {
	lock *redislock.Lock
	key  string
}

func (r redisLease) Refresh(ctx context.Context, ttl time.Duration) error {
	err := r.lock.Refresh(ctx, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("%w: %s", ErrLockLost, r.key)
	}
	if err != nil {
		return fmt.Errorf("refresh %s: %w", r.key, err)
	}
	return nil
}

func (r redisLease) Release(ctx context.Context) error {
	err := r.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return fmt.Errorf("%w: %s", ErrLockLost, r.key)
	}
	return err
}

type localLocker struct{}

func (localLocker) Obtain(context.Context, string, time.Duration) (Lease, error) {
	return localLease{}, nil
}

func (localLocker) Close() error { return nil }

type localLease struct{}

func (localLease) Refresh(context.Context, time.Duration) error { return nil }
func (localLease) Release(context.Context) error                { return nil }

// RefreshLockKey names the lock serializing refreshes of one typology.
func RefreshLockKey(entityType, typology string) string {
	return "rankset:refresh:" + entityType + ":" + typology
}
