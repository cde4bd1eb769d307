package backends

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every Redis key, e.g. "buildcache:".
	Prefix string
	// TTL expires entries after the given age. Zero keeps them forever.
	TTL time.Duration
}

// Redis is a Backend that stores archives as Redis strings. A sorted set,
// scored by creation time in milliseconds, indexes the keys for prefix
// lookups. Archives are held in memory while they are read or written, so
// this backend is meant for small caches.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis creates a Redis backend and its client.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis backend requires an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisFromClient creates a Redis backend around an existing client.
func NewRedisFromClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (r *Redis) Stat(ctx context.Context, key string) (Entry, error) {
	score, err := r.client.ZScore(ctx, r.indexKey(), key).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("redis zscore %s: %w", key, err)
	}

	size, err := r.client.StrLen(ctx, r.blobKey(key)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("redis strlen %s: %w", key, err)
	}
	if size == 0 {
		// The blob expired but the index still names it.
		r.client.ZRem(ctx, r.indexKey(), key)
		return Entry{}, ErrNotFound
	}
	return Entry{Key: key, Size: size, Created: time.UnixMilli(int64(score))}, nil
}

func (r *Redis) List(ctx context.Context, prefix string) ([]Entry, error) {
	if r.ttl > 0 {
		cutoff := r.now().Add(-r.ttl).UnixMilli()
		if err := r.client.ZRemRangeByScore(ctx, r.indexKey(), "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
			return nil, fmt.Errorf("redis prune index: %w", err)
		}
	}

	members, err := r.client.ZRangeWithScores(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", prefix, err)
	}

	var out []Entry
	for _, z := range members {
		key, ok := z.Member.(string)
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, Entry{Key: key, Created: time.UnixMilli(int64(z.Score))})
	}
	return out, nil
}

func (r *Redis) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := r.client.Get(ctx, r.blobKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (r *Redis) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	buf := bytes.NewBuffer(make([]byte, 0, max(size, 0)))
	if _, err := io.Copy(buf, body); err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.blobKey(key), buf.Bytes(), r.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("put %s: %w", key, ErrConflict)
	}

	z := redis.Z{Score: float64(r.now().UnixMilli()), Member: key}
	if err := r.client.ZAdd(ctx, r.indexKey(), z).Err(); err != nil {
		return fmt.Errorf("redis index %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) blobKey(key string) string {
	return r.prefix + "blob:" + key
}

func (r *Redis) indexKey() string {
	return r.prefix + "index"
}
