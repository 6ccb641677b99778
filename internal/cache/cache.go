package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
)

// New creates a cache based on configuration.
// "memory" returns an LRU cache, "redis" returns Redis (wrapped in a
// TwoPhaseCache when enabled) and "none" returns a nil cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			c, err := NewTwoPhaseCache(cfg)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
		c, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return c, nil

	case "none", "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

func latestKey(accountID string) string {
	return "latest:" + accountID
}

type byteGetter func(ctx context.Context, key string) ([]byte, error)

// A cached latest evaluation is stored as "<order>\n<json>". The order
// key sorts bytewise like (evaluationDate, ID), so a cache can compare
// records without decoding them.
func latestOrder(eval *domain.Evaluation) string {
	nanos := eval.EvaluationDate.UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	return fmt.Sprintf("%020d|%s", nanos, eval.ID)
}

func encodeLatest(accountID string, eval *domain.Evaluation) (data []byte, order string, err error) {
	if accountID == "" {
		return nil, "", fmt.Errorf("accountID is required")
	}
	if eval == nil {
		return nil, "", fmt.Errorf("evaluation is required")
	}
	body, err := json.Marshal(eval)
	if err != nil {
		return nil, "", err
	}
	order = latestOrder(eval)
	data = make([]byte, 0, len(order)+1+len(body))
	data = append(data, order...)
	data = append(data, '\n')
	data = append(data, body...)
	return data, order, nil
}

// storedOrder returns the order key of an encoded entry.
func storedOrder(data []byte) (string, bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return "", false
	}
	return string(data[:i]), true
}

func decodeLatest(data []byte) (*domain.Evaluation, error) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return nil, fmt.Errorf("malformed cached evaluation")
	}
	var eval domain.Evaluation
	if err := json.Unmarshal(data[i+1:], &eval); err != nil {
		return nil, fmt.Errorf("failed to decode cached evaluation: %w", err)
	}
	return &eval, nil
}

func getLatest(ctx context.Context, get byteGetter, accountID string) (*domain.Evaluation, error) {
	if accountID == "" {
		return nil, fmt.Errorf("accountID is required")
	}
	data, err := get(ctx, latestKey(accountID))
	if err != nil || data == nil {
		return nil, err
	}
	return decodeLatest(data)
}

// sharedStore is the L2 tier of a TwoPhaseCache.
type sharedStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
	setLatestIfNewer(ctx context.Context, accountID string, eval *domain.Evaluation, ttl time.Duration) (bool, error)
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis shared by every replica
type TwoPhaseCache struct {
	local       *LRUCache
	remote      sharedStore
	l1TTL       time.Duration
	latestL1TTL time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL, cfg.LatestLocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote sharedStore, l1TTL, latestL1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = time.Minute
	}
	if latestL1TTL <= 0 {
		latestL1TTL = 5 * time.Second
	}
	if latestL1TTL > l1TTL {
		latestL1TTL = l1TTL
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL, latestL1TTL: latestL1TTL}
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2. L1 keeps the shorter of the two TTLs.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}

// GetLatest reads L1, then L2. An L2 hit refills L1 through the same
// newest-wins comparison used by SetLatest.
func (c *TwoPhaseCache) GetLatest(ctx context.Context, accountID string) (*domain.Evaluation, error) {
	eval, err := c.local.GetLatest(ctx, accountID)
	if err != nil || eval != nil {
		return eval, err
	}

	eval, err = getLatest(ctx, c.remote.Get, accountID)
	if err != nil || eval == nil {
		return eval, err
	}
	_, _ = c.local.setLatestIfNewer(ctx, accountID, eval, c.latestL1TTL)
	return eval, nil
}

// SetLatest stores eval in L2 unless L2 holds a newer record, then mirrors
// the outcome in L1. When L2 keeps a newer record, or the write fails, the
// L1 entry is dropped so the next read goes to L2.
func (c *TwoPhaseCache) SetLatest(ctx context.Context, accountID string, eval *domain.Evaluation, ttl time.Duration) error {
	stored, err := c.remote.setLatestIfNewer(ctx, accountID, eval, ttl)
	if err != nil {
		_ = c.local.DeleteLatest(ctx, accountID)
		return err
	}
	if !stored {
		return c.local.DeleteLatest(ctx, accountID)
	}

	l1TTL := c.latestL1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	_, err = c.local.setLatestIfNewer(ctx, accountID, eval, l1TTL)
	return err
}

// DeleteLatest drops the latest evaluation from both tiers.
func (c *TwoPhaseCache) DeleteLatest(ctx context.Context, accountID string) error {
	return c.Delete(ctx, latestKey(accountID))
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
