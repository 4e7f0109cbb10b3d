package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisControl.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string

	// TLS enables TLS to the Redis server when set.
	TLS *tls.Config
}

// RedisControl implements ControlChannel on Redis lists. The app pushes
// requests to the request list; the camera pushes responses and updates.
type RedisControl struct {
	client *redis.Client
	keys   redisKeys
}

type redisKeys struct {
	requests  string
	responses string
	updates   string
}

func newRedisKeys(prefix, cameraID string) redisKeys {
	if prefix == "" {
		prefix = "camhub"
	}
	base := prefix + ":" + cameraID
	return redisKeys{
		requests:  base + ":heartbeat:requests",
		responses: base + ":heartbeat:responses",
		updates:   base + ":updates",
	}
}

// NewRedisControl connects to Redis and verifies the connection.
func NewRedisControl(ctx context.Context, cfg RedisConfig, cameraID string) (*RedisControl, error) {
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: cfg.TLS,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("relay: connect redis %s: %w", cfg.Addr, err)
	}
	return &RedisControl{client: client, keys: newRedisKeys(cfg.Prefix, cameraID)}, nil
}

// NextHeartbeatRequest implements ControlChannel.
func (r *RedisControl) NextHeartbeatRequest(ctx context.Context, wait time.Duration) ([]byte, error) {
	res, err := r.client.BRPop(ctx, wait, r.keys.requests).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoRequest
	}
	if err != nil {
		return nil, fmt.Errorf("relay: pop heartbeat request: %w", err)
	}
	// BRPop returns [key, value].
	return []byte(res[1]), nil
}

// PublishHeartbeat implements ControlChannel.
func (r *RedisControl) PublishHeartbeat(ctx context.Context, data []byte) error {
	if err := r.client.LPush(ctx, r.keys.responses, data).Err(); err != nil {
		return fmt.Errorf("relay: push heartbeat: %w", err)
	}
	return nil
}

// PushUpdates implements ControlChannel.
func (r *RedisControl) PushUpdates(ctx context.Context, updates [][]byte) error {
	if len(updates) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, u := range updates {
			pipe.RPush(ctx, r.keys.updates, u)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("relay: push %d updates: %w", len(updates), err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisControl) Close() error {
	return r.client.Close()
}
