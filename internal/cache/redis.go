// Package cache layers Redis in front of the relational script cache and
// provides a distributed lock so only one worker generates a script for a
// given fingerprint at a time.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/csvguard/internal/config"
	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 20,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// ScriptCache is a read-through, write-through Redis layer over another
// core.ScriptCache. Redis failures are logged and the underlying cache answers.
type ScriptCache struct {
	client redis.UniversalClient
	next   core.ScriptCache
	ttl    time.Duration
	prefix string
}

// NewScriptCache wraps next. Keys are prefix + "script:" + fingerprint.
func NewScriptCache(client redis.UniversalClient, next core.ScriptCache, ttl time.Duration, prefix string) *ScriptCache {
	return &ScriptCache{client: client, next: next, ttl: ttl, prefix: prefix}
}

func (c *ScriptCache) key(fingerprint string) string {
	return c.prefix + "script:" + fingerprint
}

// Lookup serves from Redis when possible and fills Redis on an underlying hit.
func (c *ScriptCache) Lookup(ctx context.Context, fingerprint string) (*core.Script, error) {
	key := c.key(fingerprint)

	val, err := c.client.GetEx(ctx, key, c.ttl).Result()
	switch {
	case err == nil:
		var s core.Script
		if jerr := json.Unmarshal([]byte(val), &s); jerr == nil {
			return &s, nil
		}
		slog.Warn("discarding unreadable cached script", "fingerprint", fingerprint)
	case errors.Is(err, redis.Nil):
	default:
		slog.Warn("redis lookup failed, using store", "fingerprint", fingerprint, "error", err)
	}

	s, err := c.next.Lookup(ctx, fingerprint)
	if err != nil || s == nil {
		return s, err
	}
	c.set(ctx, s)
	return s, nil
}

// Store writes through: the underlying cache first, then Redis.
func (c *ScriptCache) Store(ctx context.Context, fingerprint, body string) error {
	if err := c.next.Store(ctx, fingerprint, body); err != nil {
		return err
	}

	s, err := c.next.Lookup(ctx, fingerprint)
	if err != nil || s == nil {
		s = &core.Script{Fingerprint: fingerprint, Body: body, UpdatedAt: time.Now().UTC()}
	}
	c.set(ctx, s)
	return nil
}

func (c *ScriptCache) set(ctx context.Context, s *core.Script) {
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(s.Fingerprint), data, c.ttl).Err(); err != nil {
		slog.Warn("redis write failed", "fingerprint", s.Fingerprint, "error", err)
	}
}
