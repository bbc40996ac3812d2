package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisLease implements Lease with SET NX + TTL. A random owner token and
// a Lua-checked release prevent one worker from dropping another's lease.
type redisLease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

func newRedisLease(client *redis.Client, key string, ttl time.Duration) *redisLease {
	return &redisLease{
		client: client,
		key:    "lease:" + key,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

func (l *redisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

func (l *redisLease) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Result()
	return err
}
