package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"go.uber.org/zap"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

const keyPrefix = "lock:account:"

// RedisOptions tunes the per-account mutexes. Expiry is the lease length;
// held locks are extended every Expiry/2, so it only bounds how long a lock
// outlives a crashed holder.
type RedisOptions struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 50 * time.Millisecond,
	}
}

// RedisLocker serializes account access across service instances with one
// redsync mutex per account. Leases are renewed while the lock is held, so
// a settlement slower than Expiry keeps exclusive access.
type RedisLocker struct {
	rs     *redsync.Redsync
	opts   RedisOptions
	logger *zap.Logger
}

// NewRedisLocker fills zero options from DefaultRedisOptions.
func NewRedisLocker(client goredislib.UniversalClient, opts RedisOptions, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultRedisOptions().Expiry
	}
	if opts.Tries < 1 {
		opts.Tries = DefaultRedisOptions().Tries
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	ordered := Order(keys)
	held := make([]*redsync.Mutex, 0, len(ordered))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			if _, err := held[i].UnlockContext(context.Background()); err != nil {
				l.logger.Warn("release account lock", zap.String("key", held[i].Name()), zap.Error(err))
			}
		}
	}

	for _, key := range ordered {
		mutex := l.rs.NewMutex(keyPrefix+key,
			redsync.WithExpiry(l.opts.Expiry),
			redsync.WithTries(l.opts.Tries),
			redsync.WithRetryDelay(l.opts.RetryDelay),
		)
		if err := mutex.LockContext(ctx); err != nil {
			release()
			return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, key, err)
		}
		held = append(held, mutex)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(held, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			release()
		})
	}, nil
}

// keepAlive extends every held mutex at half its expiry until stop closes.
func (l *RedisLocker) keepAlive(held []*redsync.Mutex, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.opts.Expiry / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, m := range held {
				if ok, err := m.ExtendContext(context.Background()); !ok || err != nil {
					l.logger.Warn("extend account lock",
						zap.String("key", m.Name()), zap.Bool("extended", ok), zap.Error(err))
				}
			}
		}
	}
}

var _ interfaces.Locker = (*RedisLocker)(nil)
