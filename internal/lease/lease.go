package lease

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease grants exclusive ownership of one broadcast's dispatch run.
// Instances are single-use and single-goroutine.
type Lease interface {
	// Acquire tries to take the lease. Returns true on success.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lease back if still owned.
	Release(ctx context.Context) error
}

// Factory builds a lease for a broadcast id using the best available
// backend: Redis when configured, Postgres advisory locks otherwise. The
// advisory lock is session-scoped, so a crashed worker releases it when
// its connection drops, matching the Redis TTL behaviour.
type Factory struct {
	redis *redis.Client
	db    *sql.DB
	ttl   time.Duration
}

func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) *Factory {
	return &Factory{redis: redisClient, db: db, ttl: ttl}
}

// ForBroadcast returns a fresh lease guarding the given broadcast's run.
func (f *Factory) ForBroadcast(broadcastID int) Lease {
	key := fmt.Sprintf("broadcast:dispatch:%d", broadcastID)
	if f.redis != nil {
		return newRedisLease(f.redis, key, f.ttl)
	}
	return newAdvisoryLease(f.db, key)
}

// advisoryLease implements Lease on pg_try_advisory_lock with a
// deterministic lock id derived from the key.
type advisoryLease struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

func newAdvisoryLease(db *sql.DB, key string) *advisoryLease {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &advisoryLease{db: db, lockID: int64(h.Sum64())}
}

func (l *advisoryLease) Acquire(ctx context.Context) (bool, error) {
	// Advisory locks are session-scoped: pin one connection for the
	// lifetime of the lease so Release unlocks the same session.
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *advisoryLease) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	closeErr := l.conn.Close()
	l.conn = nil
	if err != nil {
		return err
	}
	return closeErr
}
