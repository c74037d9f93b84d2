package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"catalog-service/internal/summary"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/put_summary.lua
var putSummaryScript string

const pendingMarker = "pending"

type Client struct {
	rdb       *redis.Client
	putScript *redis.Script
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:       rdb,
		putScript: redis.NewScript(putSummaryScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity, used by the readiness probe
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SummaryCache stores summaries as hashes {version, text} under prefix + product id.
type SummaryCache struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewSummaryCache returns a summary.Cache backed by Redis. The prefix scopes
// versions to one review history, so instances with separate histories must use
// different prefixes.
func (c *Client) NewSummaryCache(prefix string, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: c, prefix: prefix, ttl: ttl}
}

func (s *SummaryCache) key(productID int64) string {
	return fmt.Sprintf("%ssummary:%d", s.prefix, productID)
}

// Get implements summary.Cache
func (s *SummaryCache) Get(ctx context.Context, productID int64) (summary.Entry, bool, error) {
	vals, err := s.client.rdb.HMGet(ctx, s.key(productID), "version", "text").Result()
	if err != nil {
		return summary.Entry{}, false, fmt.Errorf("failed to read summary: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return summary.Entry{}, false, nil
	}

	versionStr, ok1 := vals[0].(string)
	text, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return summary.Entry{}, false, fmt.Errorf("unexpected summary hash layout for product %d", productID)
	}
	version, err := strconv.ParseUint(versionStr, 10, 64)
	if err != nil {
		return summary.Entry{}, false, fmt.Errorf("bad summary version %q: %w", versionStr, err)
	}
	return summary.Entry{Text: text, Version: version}, true, nil
}

// Put implements summary.Cache; an entry with a higher version is never replaced.
func (s *SummaryCache) Put(ctx context.Context, productID int64, entry summary.Entry) error {
	ttl := int64(s.ttl / time.Second)
	_, err := s.client.putScript.Run(ctx, s.client.rdb,
		[]string{s.key(productID)},
		strconv.FormatUint(entry.Version, 10), entry.Text, ttl).Result()
	if err != nil {
		return fmt.Errorf("put summary script failed: %w", err)
	}
	return nil
}

// IdempotencyStore remembers the outcome of requests carrying an idempotency key.
type IdempotencyStore struct {
	client *Client
	ttl    time.Duration
}

// NewIdempotencyStore creates an idempotency store with the given key TTL
func (c *Client) NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: c, ttl: ttl}
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// Claim reserves key. When the key was already claimed it returns the stored
// result, which is nil while the first request is still running.
func (s *IdempotencyStore) Claim(ctx context.Context, key string) ([]byte, bool, error) {
	ok, err := s.client.rdb.SetNX(ctx, idempotencyKey(key), pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if ok {
		return nil, true, nil
	}

	val, err := s.client.rdb.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; treat as in flight and let the client retry
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if string(val) == pendingMarker {
		return nil, false, nil
	}
	return val, false, nil
}

// Complete stores the result for a claimed key
func (s *IdempotencyStore) Complete(ctx context.Context, key string, result []byte) error {
	return s.client.rdb.Set(ctx, idempotencyKey(key), result, s.ttl).Err()
}

// Release drops a claim whose request failed, so a retry can run
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.rdb.Del(ctx, idempotencyKey(key)).Err()
}
