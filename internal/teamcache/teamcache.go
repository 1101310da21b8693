// Package teamcache caches the api-core team list in Redis.
package teamcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vnmchuo/agentboard-billing/internal/billing"
)

const (
	teamsKey   = "billing:teams"
	DefaultTTL = 5 * time.Minute
)

type teamList []billing.Team

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (l teamList) MarshalBinary() ([]byte, error) {
	return json.Marshal([]billing.Team(l))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (l *teamList) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, (*[]billing.Team)(l))
}

// Directory wraps a billing.TeamDirectory. Teams are served from Redis when
// cached; Redis failures fall through to the wrapped directory. Costs are
// never cached.
type Directory struct {
	next   billing.TeamDirectory
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func New(next billing.TeamDirectory, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (d *Directory) Teams(ctx context.Context) ([]billing.Team, error) {
	var cached teamList
	err := d.cache.Get(ctx, teamsKey).Scan(&cached)
	if err == nil {
		return cached, nil
	} else if err != redis.Nil {
		d.logger.Warn("teamcache: redis error", zap.Error(err))
	}

	teams, err := d.next.Teams(ctx)
	if err != nil {
		return nil, err
	}

	if err := d.cache.Set(ctx, teamsKey, teamList(teams), d.ttl).Err(); err != nil {
		d.logger.Debug("teamcache: failed to store teams", zap.Error(err))
	}
	return teams, nil
}

func (d *Directory) CostByTeam(ctx context.Context) ([]billing.TeamCost, error) {
	return d.next.CostByTeam(ctx)
}
