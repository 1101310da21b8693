package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

// Limiter caps invoice generations per team per minute. It is a thin wrapper
// around github.com/vnmchuo/ratelimiter.
type Limiter struct {
	store extratelimit.Limiter
}

func NewLimiter(rdb *redis.Client, perMinute int64) *Limiter {
	store := extratelimit.NewRedisStore(rdb,
		extratelimit.WithLimit(int(perMinute)),
		extratelimit.WithWindow(time.Minute),
	)
	return &Limiter{store: store}
}

func NewTestLimiter(store extratelimit.Limiter) *Limiter {
	return &Limiter{store: store}
}

func key(teamID string) string {
	return fmt.Sprintf("ratelimit:invoices:team:%s", teamID)
}

// Allow consumes one generation from the team's budget.
func (l *Limiter) Allow(ctx context.Context, teamID string) (bool, error) {
	res, err := l.store.Allow(ctx, key(teamID))
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (l *Limiter) Status(ctx context.Context, teamID string) (*extratelimit.Result, error) {
	return l.store.Status(ctx, key(teamID))
}
