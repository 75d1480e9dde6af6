package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTTL bounds how long durable visitor state is kept without a
	// write (30 days, matching the ledger sweep horizon).
	DefaultTTL = 30 * 24 * time.Hour

	// KeyPrefix is the prefix for all durable widget-state keys.
	KeyPrefix = "engage:durable:"
)

// RedisBucket is a Bucket backed by Redis, scoped to one visitor origin.
// Values are written with a sliding 30-day TTL so abandoned visitors age
// out on their own.
type RedisBucket struct {
	client *redis.Client
	scope  string
	ttl    time.Duration
}

// NewRedisBucket creates a bucket whose keys are namespaced under the
// given scope (typically projectID:deviceKey).
func NewRedisBucket(client *redis.Client, scope string) *RedisBucket {
	return &RedisBucket{
		client: client,
		scope:  scope,
		ttl:    DefaultTTL,
	}
}

// InitRedisClient connects to Redis with exponential-backoff retries.
func InitRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0, // use default DB
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.NewExponentialBackOff()
	err := backoff.Retry(
		func() error {
			_, err := client.Ping(ctx).Result()
			if err != nil {
				logrus.Warnf("Redis connection failed: %v, retrying...", err)
				return err
			}
			return nil
		},
		backoff.WithMaxRetries(b, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logrus.Infof("connected to Redis at %s", addr)
	return client, nil
}

func (b *RedisBucket) makeKey(key string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefix, b.scope, key)
}

// Get implements Bucket.
func (b *RedisBucket) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := b.client.Get(ctx, b.makeKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return data, true, nil
}

// Set implements Bucket.
func (b *RedisBucket) Set(ctx context.Context, key, value string) error {
	if err := b.client.Set(ctx, b.makeKey(key), value, b.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete implements Bucket.
func (b *RedisBucket) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.makeKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
