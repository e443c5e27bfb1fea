package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v8"

	"github.com/mikeydub/go-union/env"
)

type ErrKeyNotFound struct {
	Key string
}

type redisDB int

type CacheConfig struct {
	database    redisDB
	displayName string
	keyPrefix   string
}

const (
	locks        redisDB = 0
	rateLimiters redisDB = 1
	enrichment   redisDB = 2
	misc         redisDB = 3
)

// Every cache is uniquely defined by its database and key prefix. Display names are used for logging.

var (
	ReconcileLockCache     = CacheConfig{database: locks, keyPrefix: "reconcile", displayName: "reconcileLock"}
	APIRateLimitersCache   = CacheConfig{database: rateLimiters, keyPrefix: "api", displayName: "apiRateLimiters"}
	EnrichmentCache        = CacheConfig{database: enrichment, keyPrefix: "enrichment", displayName: "enrichment"}
	ReconcileThrottleCache = CacheConfig{database: misc, keyPrefix: "reconcileThrottle", displayName: "reconcileThrottle"}
)

func (c CacheConfig) DisplayName() string {
	return c.displayName
}

// WithDatabase returns a copy of the config pointing at another database, used by tests
func (c CacheConfig) WithDatabase(db int) CacheConfig {
	c.database = redisDB(db)
	return c
}

func newClient(db redisDB) *redis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	client := redis.NewClient(&redis.Options{
		Addr:     env.GetString("REDIS_URL"),
		Password: env.GetString("REDIS_PASS"),
		DB:       int(db),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		panic(err)
	}
	return client
}

// Cache represents an abstraction over a redis client
type Cache struct {
	client    *redis.Client
	keyPrefix string
	scripter  *scripter
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) Prefix() string {
	return c.keyPrefix
}

// NewCache creates a new redis cache
func NewCache(config CacheConfig) *Cache {
	return NewCacheWithClient(newClient(config.database), config)
}

// NewCacheWithClient creates a cache over an existing client
func NewCacheWithClient(client *redis.Client, config CacheConfig) *Cache {
	cache := &Cache{
		client:    client,
		keyPrefix: config.keyPrefix,
	}
	cache.scripter = &scripter{cache: cache}
	return cache
}

// Set sets a value in the redis cache
func (c *Cache) Set(pCtx context.Context, key string, value []byte, expiration time.Duration) error {
	return c.client.Set(pCtx, c.PrefixedKey(key), value, expiration).Err()
}

// SetNX sets a value in the redis cache if it doesn't already exist. Returns true if the key did not
// already exist and was set, false if the key did exist and therefore was not set.
func (c *Cache) SetNX(pCtx context.Context, key string, value []byte, expiration time.Duration) (bool, error) {
	cmd := c.client.SetNX(pCtx, c.PrefixedKey(key), value, expiration)
	if err := cmd.Err(); err != nil {
		return false, err
	}
	return cmd.Val(), nil
}

// Get gets a value from the redis cache
func (c *Cache) Get(pCtx context.Context, key string) ([]byte, error) {
	bs, err := c.client.Get(pCtx, c.PrefixedKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrKeyNotFound{Key: key}
		}
		return nil, err
	}
	return bs, nil
}

// MGet gets many values at once. Missing keys are nil in the result.
func (c *Cache) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := c.client.MGet(ctx, c.PrefixedKeys(keys)...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

func (c *Cache) Delete(pCtx context.Context, key string) error {
	return c.client.Del(pCtx, c.PrefixedKey(key)).Err()
}

// Close closes the underlying redis client
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) PrefixedKey(key string) string {
	if c.keyPrefix == "" {
		return key
	}
	return c.keyPrefix + ":" + key
}

func (c *Cache) PrefixedKeys(keys []string) []string {
	if c.keyPrefix == "" {
		return keys
	}
	prefixedKeys := make([]string, len(keys))
	for i, key := range keys {
		prefixedKeys[i] = c.keyPrefix + ":" + key
	}
	return prefixedKeys
}

func (e ErrKeyNotFound) Error() string {
	return fmt.Sprintf("key %s not found", e.Key)
}

// scripter is an implementation of the redis.Scripter interface that uses a Cache to namespace keys
type scripter struct {
	cache *Cache
}

func (s scripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return s.cache.client.Eval(ctx, script, s.cache.PrefixedKeys(keys), args...)
}

func (s scripter) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return s.cache.client.EvalSha(ctx, sha1, s.cache.PrefixedKeys(keys), args...)
}

func (s scripter) ScriptExists(ctx context.Context, scripts ...string) *redis.BoolSliceCmd {
	return s.cache.client.ScriptExists(ctx, scripts...)
}

func (s scripter) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return s.cache.client.ScriptLoad(ctx, script)
}

// NewLockClient creates a distributed lock client whose keys are namespaced by the cache
func NewLockClient(cache *Cache) *redislock.Client {
	return redislock.New(&redislockCacheClient{
		scripter: *cache.scripter,
	})
}

// redislockCacheClient is a minimal implementation of redislock.RedisClient that uses a Cache to namespace its keys.
type redislockCacheClient struct {
	scripter
}

func (r *redislockCacheClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	return r.cache.client.SetNX(ctx, r.cache.PrefixedKey(key), value, expiration)
}
