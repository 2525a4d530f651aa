package balancelock

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditrail/internal/config"
)

const (
	keyBalanceLock = "credits:balance:lock:%s:%s:%s"

	lockTTL           = 10 * time.Second
	lockRetryInterval = 25 * time.Millisecond
	lockRetries       = 40
)

// Guard serializes ledger mutations per (org, customer, product). The
// in-process mutex always applies; when Redis is configured the guard also
// takes a distributed lock so multiple replicas stay serialized.
type Guard struct {
	keyed  *KeyedMutex
	locker *Locker
}

func NewGuard(cfg config.Config) *Guard {
	g := &Guard{keyed: NewKeyedMutex()}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: strings.TrimSpace(cfg.RedisPassword),
		})
		g.locker = NewLocker(client)
	}

	return g
}

// Acquire blocks until the caller holds the balance lock, then returns a
// release func. Release is safe to call exactly once.
func (g *Guard) Acquire(ctx context.Context, orgID, customerID, productID string) (func(), error) {
	key := fmt.Sprintf(keyBalanceLock, orgID, customerID, productID)

	g.keyed.Lock(key)

	if g.locker == nil {
		return func() { g.keyed.Unlock(key) }, nil
	}

	var token string
	for i := 0; ; i++ {
		t, ok, err := g.locker.TryLock(ctx, key, lockTTL)
		if err != nil {
			g.keyed.Unlock(key)
			return nil, err
		}
		if ok {
			token = t
			break
		}
		if i >= lockRetries {
			g.keyed.Unlock(key)
			return nil, fmt.Errorf("balance lock %s not acquired", key)
		}
		select {
		case <-ctx.Done():
			g.keyed.Unlock(key)
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = g.locker.Release(releaseCtx, key, token)
		g.keyed.Unlock(key)
	}, nil
}
