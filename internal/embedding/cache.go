package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultCacheSize is the number of vectors kept by the in-process cache.
// At 768 dimensions * 4 bytes that is about 3MB.
const DefaultCacheSize = 1024

// Cache stores vectors by key. Implementations treat backend failures as
// misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

// CacheKey derives a fixed-length key from the model name and normalized text.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// LRUCache is a bounded in-process cache.
type LRUCache struct {
	lru *lru.Cache[string, []float32]
}

// NewLRUCache returns an LRU with room for size entries.
func NewLRUCache(size int) *LRUCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, _ := lru.New[string, []float32](size)
	return &LRUCache{lru: c}
}

func (c *LRUCache) Get(_ context.Context, key string) ([]float32, bool) {
	return c.lru.Get(key)
}

func (c *LRUCache) Set(_ context.Context, key string, vec []float32) {
	c.lru.Add(key, vec)
}

// Len reports the number of cached vectors.
func (c *LRUCache) Len() int { return c.lru.Len() }

// RedisCache shares vectors between processes. Values are little-endian
// float32 arrays.
type RedisCache struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps rdb. A zero ttl keeps entries until evicted.
func NewRedisCache(rdb goredis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "chatpdf:emb:", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("embedding cache get failed")
		}
		return nil, false
	}
	vec, ok := decodeVector(raw)
	return vec, ok
}

func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) {
	if err := c.rdb.Set(ctx, c.prefix+key, encodeVector(vec), c.ttl).Err(); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("embedding cache set failed")
	}
}

// Tiered checks caches in order and backfills the faster tiers on a hit.
type Tiered []Cache

func (t Tiered) Get(ctx context.Context, key string) ([]float32, bool) {
	for i, c := range t {
		if vec, ok := c.Get(ctx, key); ok {
			for j := 0; j < i; j++ {
				t[j].Set(ctx, key, vec)
			}
			return vec, true
		}
	}
	return nil, false
}

func (t Tiered) Set(ctx context.Context, key string, vec []float32) {
	for _, c := range t {
		c.Set(ctx, key, vec)
	}
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, bool) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, true
}
