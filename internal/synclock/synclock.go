package synclock

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// unlockScript deletes the key only when this holder still owns it, so an
// expired lock reacquired elsewhere is never released by the old holder.
const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// RedisLocker serializes work across replicas using SET NX with a TTL.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker wires a RedisLocker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire attempts to take the lock. It reports false without error when
// another holder owns the key. The returned release is safe to call after
// the TTL has expired.
func (locker *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(ctx context.Context) bool, bool, error) {
	token := uuid.NewString()
	acquired, err := locker.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	release := func(ctx context.Context) bool {
		deleted, err := locker.client.Eval(ctx, unlockScript, []string{key}, token).Int64()
		return err == nil && deleted == 1
	}
	return release, true, nil
}

// LocalLocker is an in-process Locker for single-replica deployments and
// tests.
type LocalLocker struct {
	mutex sync.Mutex
	held  map[string]string
}

// NewLocalLocker wires a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]string)}
}

// Acquire takes the in-process lock. The TTL is ignored; the lock lives
// until released.
func (locker *LocalLocker) Acquire(ctx context.Context, key string, _ time.Duration) (func(ctx context.Context) bool, bool, error) {
	token := uuid.NewString()
	locker.mutex.Lock()
	defer locker.mutex.Unlock()
	if _, taken := locker.held[key]; taken {
		return nil, false, nil
	}
	locker.held[key] = token
	release := func(ctx context.Context) bool {
		locker.mutex.Lock()
		defer locker.mutex.Unlock()
		if locker.held[key] != token {
			return false
		}
		delete(locker.held, key)
		return true
	}
	return release, true, nil
}
