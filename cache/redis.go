package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"MTCPlayer/config"
	"MTCPlayer/logger"

	"github.com/redis/go-redis/v9"
)

const (
	pingTimeout  = 5 * time.Second
	retryBackoff = 500 * time.Millisecond
)

// Keyspace prefixes every key and channel the player writes, so several
// deployments can share one Redis.
type Keyspace string

func (k Keyspace) key(format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	if k == "" {
		return s
	}
	return string(k) + ":" + s
}

// Redis is a connected client and the keyspace this deployment owns.
type Redis struct {
	*redis.Client
	Keys Keyspace
}

// ConnectRedis dials the server named in cfg and pings it, retrying
// cfg.RedisRetries more times while the server is still coming up.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*Redis, error) {
	addr := net.JoinHostPort(cfg.RedisHost, cfg.RedisPort)
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		PoolSize:    cfg.RedisPool,
		DialTimeout: pingTimeout,
	})

	var err error
	for attempt := 0; attempt <= cfg.RedisRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("redis not ready, retrying",
				logger.String("addr", addr), logger.Int("attempt", attempt), logger.ErrorField(err))
			select {
			case <-time.After(time.Duration(attempt) * retryBackoff):
			case <-ctx.Done():
				client.Close()
				return nil, ctx.Err()
			}
		}
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = client.Ping(pctx).Err()
		cancel()
		if err == nil {
			logger.Info("redis connected", logger.String("addr", addr), logger.String("keyspace", cfg.RedisPrefix))
			return &Redis{Client: client, Keys: Keyspace(cfg.RedisPrefix)}, nil
		}
	}
	client.Close()
	return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
}

// PresenceStore returns a presence store under r's keyspace.
func (r *Redis) PresenceStore() *PresenceStore {
	return NewPresenceStore(r.Client, r.Keys)
}

// PartyRelay returns a party relay under r's keyspace.
func (r *Redis) PartyRelay() *PartyRelay {
	return NewPartyRelay(r.Client, r.Keys)
}

// Check writes, reads back and deletes a key under r's keyspace.
func (r *Redis) Check(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := r.Keys.key("healthcheck")
	const want = "ok"

	if err := r.Set(ctx, key, want, time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set Redis key: %w", err)
	}
	val, err := r.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to get Redis key: %w", err)
	}
	if val != want {
		return fmt.Errorf("unexpected value from Redis: got %s", val)
	}
	if err := r.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete Redis key: %w", err)
	}
	return nil
}
