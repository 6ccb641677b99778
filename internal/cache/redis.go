package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
)

const redisKeyPrefix = "healthscore:"

// setLatestScript writes ARGV[2] unless the stored entry's order key (the
// text before the first newline) sorts after ARGV[1]. Bytes are compared
// one by one so the result does not depend on the server's collation.
var setLatestScript = redis.NewScript(`
local function after(a, b)
  local n = math.min(#a, #b)
  for i = 1, n do
    local x, y = string.byte(a, i), string.byte(b, i)
    if x ~= y then
      return x > y
    end
  end
  return #a > #b
end

local current = redis.call('GET', KEYS[1])
if current then
  local nl = string.find(current, '\n', 1, true)
  if nl and after(string.sub(current, 1, nl - 1), ARGV[1]) then
    return 0
  end
end

local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// RedisCache implements domain.Cache on Redis.
// Used as the pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return NewRedisCacheFromClient(client), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get retrieves a value from Redis; a missing key is (nil, nil).
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, redisKeyPrefix+key).Err()
}

// GetLatest returns the cached latest evaluation for an account.
func (c *RedisCache) GetLatest(ctx context.Context, accountID string) (*domain.Evaluation, error) {
	return getLatest(ctx, c.Get, accountID)
}

// SetLatest caches eval unless a newer evaluation is already cached.
// The comparison runs server side, so concurrent writers on any replica
// cannot replace a newer record with an older one.
func (c *RedisCache) SetLatest(ctx context.Context, accountID string, eval *domain.Evaluation, ttl time.Duration) error {
	_, err := c.setLatestIfNewer(ctx, accountID, eval, ttl)
	return err
}

// DeleteLatest drops the cached latest evaluation for an account.
func (c *RedisCache) DeleteLatest(ctx context.Context, accountID string) error {
	return c.Delete(ctx, latestKey(accountID))
}

func (c *RedisCache) setLatestIfNewer(ctx context.Context, accountID string, eval *domain.Evaluation, ttl time.Duration) (bool, error) {
	data, order, err := encodeLatest(accountID, eval)
	if err != nil {
		return false, err
	}
	stored, err := setLatestScript.Run(ctx, c.client,
		[]string{redisKeyPrefix + latestKey(accountID)},
		order, data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to store latest evaluation: %w", err)
	}
	return stored == 1, nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
