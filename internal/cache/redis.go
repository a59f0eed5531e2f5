// Package cache keeps recent analysis results in Redis so that re-uploading
// the same ledger does not rerun detection.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rawblock/ring-engine/pkg/models"
)

// DefaultTTL applies when the caller passes a non-positive TTL
const DefaultTTL = time.Hour

// ResultCache stores analysis results keyed by a digest of the upload.
// A nil *ResultCache is valid and behaves as an always-empty cache.
type ResultCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// Connect parses a redis:// URL and verifies the server is reachable
func Connect(url, keyPrefix string, ttl time.Duration) (*ResultCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return New(client, keyPrefix, ttl), nil
}

// New wraps an existing client
func New(client *redis.Client, keyPrefix string, ttl time.Duration) *ResultCache {
	if keyPrefix == "" {
		keyPrefix = "ring-engine"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Close closes the Redis connection
func (c *ResultCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Ping reports whether Redis answers
func (c *ResultCache) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("cache not configured")
	}
	return c.client.Ping(ctx).Err()
}

// Digest fingerprints an upload. The namespace separates payload kinds
// (csv, json) and engine settings that would change the result.
func Digest(namespace string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *ResultCache) key(digest string) string {
	return c.keyPrefix + ":result:" + digest
}

// Get returns a cached result. A miss is (nil, false, nil).
func (c *ResultCache) Get(ctx context.Context, digest string) (*models.AnalysisResult, bool, error) {
	if c == nil {
		return nil, false, nil
	}

	data, err := c.client.Get(ctx, c.key(digest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry %s: %w", digest, err)
	}
	return &result, true, nil
}

// Set stores a result under digest for the configured TTL
func (c *ResultCache) Set(ctx context.Context, digest string, result *models.AnalysisResult) error {
	if c == nil || result == nil {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(digest), data, c.ttl).Err()
}
