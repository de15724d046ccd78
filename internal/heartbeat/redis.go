package heartbeat

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/l54808821/swarmpool/internal/config"
	"github.com/l54808821/swarmpool/pkg/types"
)

const keyPrefix = "swarm:heartbeat:"

// RedisRegistry keeps heartbeats in redis hashes with a TTL. Useful when
// agents should not touch the task database for liveness pings, or when the
// registry is shared between swarms. Semantics match DBRegistry.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry connects to redis and verifies the connection. Keys
// expire after ttl so dead agents eventually disappear from the registry;
// ttl should be comfortably larger than the lease timeout.
func NewRedisRegistry(cfg *config.RedisConfig, ttl time.Duration) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, types.StoreUnavailable(err)
	}
	return &RedisRegistry{client: client, ttl: ttl}, nil
}

// Close closes the redis connection.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

// Beat writes the heartbeat hash and refreshes its TTL.
func (r *RedisRegistry) Beat(ctx context.Context, agentID, currentTaskID string) error {
	if agentID == "" {
		return types.NewAppError(types.ErrCodeInvalidParameter, "agent id cannot be empty")
	}

	key := keyPrefix + agentID
	now := time.Now().UnixMilli()

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		"last_heartbeat", now,
		"current_task_id", currentTaskID,
	)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.StoreUnavailable(err)
	}
	return nil
}

// LastSeen reads the agent's heartbeat hash.
func (r *RedisRegistry) LastSeen(ctx context.Context, agentID string) (time.Time, bool, error) {
	val, err := r.client.HGet(ctx, keyPrefix+agentID, "last_heartbeat").Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, types.StoreUnavailable(err)
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// CountActive scans the heartbeat keys and counts agents seen at or after
// since. The registry holds one key per agent, so the scan stays small.
func (r *RedisRegistry) CountActive(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	cutoff := since.UnixMilli()

	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		val, err := r.client.HGet(ctx, iter.Val(), "last_heartbeat").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return 0, types.StoreUnavailable(err)
		}
		ms, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		if ms >= cutoff {
			count++
		}
	}
	if err := iter.Err(); err != nil {
		return 0, types.StoreUnavailable(err)
	}
	return count, nil
}
