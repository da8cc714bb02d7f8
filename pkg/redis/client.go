// Package redis provides a thin wrapper around go-redis/v9 exposing the
// set and sorted-set primitives the index cache is built on: batched
// set-add with counter increments, union/intersection lookups, top-N
// counter reads, and pattern-based key invalidation.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"parasearch/pkg/config"
)

// ScoredMember is a sorted-set member together with its integer score.
type ScoredMember struct {
	Member string
	Score  int64
}

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// NewClientLazy creates a Redis client without verifying the connection.
// Useful when the backend being down at startup is tolerable and callers
// track availability themselves.
func NewClientLazy(cfg config.RedisConfig) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})}
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetAddBatch adds member to every key in setKeys and applies the given
// counter increments to the sorted set counterKey, all inside a single
// MULTI/EXEC transaction so the write is applied atomically or not at all.
func (c *Client) SetAddBatch(ctx context.Context, member string, setKeys []string, counterKey string, increments map[string]int64) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range setKeys {
			pipe.SAdd(ctx, key, member)
		}
		for word, count := range increments {
			pipe.ZIncrBy(ctx, counterKey, float64(count), word)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("executing index write transaction: %w", err)
	}
	return nil
}

// SetUnion returns the union of the given sets. Missing keys contribute
// nothing.
func (c *Client) SetUnion(ctx context.Context, keys ...string) ([]string, error) {
	return c.rdb.SUnion(ctx, keys...).Result()
}

// SetInter returns the intersection of the given sets. A missing key makes
// the result empty.
func (c *Client) SetInter(ctx context.Context, keys ...string) ([]string, error) {
	return c.rdb.SInter(ctx, keys...).Result()
}

// SetCount returns the cardinality of the given set.
func (c *Client) SetCount(ctx context.Context, key string) (int64, error) {
	return c.rdb.SCard(ctx, key).Result()
}

// CounterCard returns the number of members in the sorted-set counter.
func (c *Client) CounterCard(ctx context.Context, key string) (int64, error) {
	return c.rdb.ZCard(ctx, key).Result()
}

// CounterTop returns the n highest-scored members of the counter in
// descending score order. Redis breaks score ties in reverse lexical order;
// callers that need a different tie-break must re-sort.
func (c *Client) CounterTop(ctx context.Context, key string, n int64) ([]ScoredMember, error) {
	zs, err := c.rdb.ZRevRangeWithScores(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	members := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		members = append(members, ScoredMember{Member: member, Score: int64(z.Score)})
	}
	return members, nil
}

// CounterMembersAt returns every member whose score equals exactly the given
// value.
func (c *Client) CounterMembersAt(ctx context.Context, key string, score int64) ([]string, error) {
	s := strconv.FormatInt(score, 10)
	return c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: s, Max: s}).Result()
}

// CounterScore returns the score of a single member, or 0 when the member is
// absent.
func (c *Client) CounterScore(ctx context.Context, key string, member string) (int64, error) {
	score, err := c.rdb.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int64(score), nil
}

// Get returns the string value for the given key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Set stores a value with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Del deletes one or more keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// ScanKeys collects all keys matching the glob pattern.
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning pattern %s: %w", pattern, err)
	}
	return keys, nil
}

// DeleteByPattern scans for keys matching the glob pattern and deletes them,
// returning the number of keys removed.
func (c *Client) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	keys, err := c.ScanKeys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	var deleted int64
	for _, key := range keys {
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			return deleted, fmt.Errorf("deleting key %s: %w", key, err)
		}
		deleted++
	}
	return deleted, nil
}

// IsNilError reports whether err is a Redis nil (key-not-found) error.
func IsNilError(err error) bool {
	return err == redis.Nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
