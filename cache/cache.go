// Package cache is a Redis backed HTTP response cache for public GET endpoints.
//
// Entries are keyed by the SHA-1 of the request URI and stored zlib
// compressed and base64 encoded. Only 200 responses are cached.
package cache

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL       = time.Hour
	DefaultKeyPrefix = "sessionauth:cache:"
)

type Cache struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func New(rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{rdb: rdb, ttl: ttl, prefix: DefaultKeyPrefix, logger: logger}
}

func (c *Cache) indexKey() string {
	return c.prefix + "keys"
}

// Key returns the cache key for a request URI
func (c *Cache) Key(requestURI string) string {
	sum := sha1.Sum([]byte(requestURI))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Middleware serves cached GET responses and stores fresh 200 responses.
// Redis failures fall through to the handler.
func (c *Cache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := c.Key(r.URL.RequestURI())

		body, err := c.get(ctx, key)
		if err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "error", err)
		}

		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Cache", "MISS")
		next.ServeHTTP(rec, r)
		if rec.status != http.StatusOK {
			return
		}
		if err := c.set(ctx, key, rec.body.Bytes()); err != nil {
			c.logger.Warn("cache write failed", "error", err)
		}
	})
}

// Purge drops every cached response
func (c *Cache) Purge(ctx context.Context) error {
	keys, err := c.rdb.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("smembers cache index: %w", err)
	}
	keys = append(keys, c.indexKey())
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del cache keys: %w", err)
	}
	return nil
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, error) {
	encoded, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return decode(encoded)
}

func (c *Cache) set(ctx context.Context, key string, body []byte) error {
	encoded, err := encode(body)
	if err != nil {
		return err
	}
	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, encoded, c.ttl)
		p.SAdd(ctx, c.indexKey(), key)
		p.Expire(ctx, c.indexKey(), c.ttl)
		return nil
	})
	return err
}

func encode(body []byte) (string, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decode(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decompress cache entry: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
