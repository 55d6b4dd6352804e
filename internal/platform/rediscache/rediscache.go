package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/forgechat/backend/internal/platform/envutil"
	"github.com/forgechat/backend/internal/platform/logger"
)

// EmbeddingCache is a read-through cache for text embeddings. Cache misses and
// cache failures are equivalent to callers; embedding text twice is cheap
// compared to a broken request path.
type EmbeddingCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// New connects to Redis at REDIS_ADDR. A missing address is an error so the
// caller can treat the cache as an optional component.
func New(log *logger.Logger) (*EmbeddingCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	ttlSec := envutil.GetEnvAsInt("EMBEDDING_CACHE_TTL_SECONDS", 86400, log)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &EmbeddingCache{
		log: log.With("service", "EmbeddingCache"),
		rdb: rdb,
		ttl: time.Duration(ttlSec) * time.Second,
	}, nil
}

func key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embed:" + hex.EncodeToString(sum[:])
}

// Get returns the cached vector for text, or ok=false on miss or error.
func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key(text)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("Embedding cache read failed", "error", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		c.log.Warn("Embedding cache entry corrupt, dropping", "error", err)
		_ = c.rdb.Del(ctx, key(text)).Err()
		return nil, false
	}
	return vec, true
}

// Set stores the vector for text, best effort.
func (c *EmbeddingCache) Set(ctx context.Context, text string, vec []float32) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(text), raw, c.ttl).Err(); err != nil {
		c.log.Warn("Embedding cache write failed", "error", err)
	}
}

func (c *EmbeddingCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
