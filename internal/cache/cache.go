// Package cache implements the read-through cache-aside layer used by the
// Context Engine, built around go-redis with a self-describing
// version-byte envelope: a stored record whose version byte does not
// match the current one is treated as a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/enterprise/riskcore/configs"
)

// envelopeVersion is bumped whenever the serialized shape of a cached
// record changes; a stored byte that does not match is treated as a miss.
const envelopeVersion = byte(1)

// ErrMiss is returned for both a true cache miss and a version mismatch;
// callers fall through to the store in either case.
var ErrMiss = errors.New("cache: miss")

// Client wraps a redis.Client with the version-byte envelope. It applies
// no deadline of its own: callers bound each call through ctx and fall
// through to the store on any cache error or timeout.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new cache client.
func NewClient(cfg configs.RedisConfig) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Set serializes v with the version envelope and stores it with ttl.
func (c *Client) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	envelope := make([]byte, 0, len(payload)+1)
	envelope = append(envelope, envelopeVersion)
	envelope = append(envelope, payload...)

	return c.rdb.Set(ctx, key, envelope, ttl).Err()
}

// Get deserializes the value at key into dst. Returns ErrMiss on a true
// miss or a version mismatch (never returns a raw redis.Nil to callers).
func (c *Client) Get(ctx context.Context, key string, dst interface{}) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return err
	}

	if len(raw) < 1 || raw[0] != envelopeVersion {
		return ErrMiss
	}

	return json.Unmarshal(raw[1:], dst)
}

// Delete removes a key, used for invalidation by the Trust Updater.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// SetNX acquires a short-lived distributed lock, used to serialize
// Trust Updater writes per (payerId, receiver) across process instances.
func (c *Client) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, "1", ttl).Result()
}
