package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// RedisRecords is the default RecordStore: each collection is one redis key
// holding the whole list as JSON.
type RedisRecords struct {
	client *redis.Client
	prefix string
}

// NewRedisRecords builds a record store over an existing client. Keys are
// namespaced under prefix (default "labtrack").
func NewRedisRecords(client *redis.Client, prefix string) *RedisRecords {
	if prefix == "" {
		prefix = "labtrack"
	}
	return &RedisRecords{client: client, prefix: prefix}
}

func (r *RedisRecords) key(key string) string {
	return r.prefix + ":" + key
}

// Get decodes the list stored under key into out; a missing key leaves out
// untouched.
func (r *RedisRecords) Get(ctx context.Context, key string, out any) error {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Set replaces the list stored under key.
func (r *RedisRecords) Set(ctx context.Context, key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.key(key), raw, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
