// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache stores resolved principals between requests.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/observability/logger"
)

// KeyPrefix namespaces principal entries in shared stores.
const KeyPrefix = "civicguard:principal:"

// Key returns the shared-store key for userID.
func Key(userID string) string {
	return KeyPrefix + userID
}

// MemoryCache is a process-local LRU with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, *authz.Principal]
}

// NewMemoryCache creates a local cache holding at most size principals for ttl.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryCache{lru: expirable.NewLRU[string, *authz.Principal](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, userID string) (*authz.Principal, bool) {
	return c.lru.Get(userID)
}

func (c *MemoryCache) Set(_ context.Context, p *authz.Principal) {
	if p == nil || p.ID == "" {
		return
	}
	c.lru.Add(p.ID, p)
}

func (c *MemoryCache) Invalidate(_ context.Context, userID string) {
	c.lru.Remove(userID)
}

// Len reports the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// RedisCache shares principals across server instances.
// Store errors are logged and treated as misses.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache creates a shared cache on client.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, userID string) (*authz.Principal, bool) {
	data, err := c.client.Get(ctx, Key(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "principal cache read failed", logger.UserID(userID), logger.Error(err))
		}
		return nil, false
	}
	var p authz.Principal
	if err := json.Unmarshal(data, &p); err != nil {
		slog.WarnContext(ctx, "principal cache entry corrupt", logger.UserID(userID), logger.Error(err))
		return nil, false
	}
	return &p, true
}

func (c *RedisCache) Set(ctx context.Context, p *authz.Principal) {
	if p == nil || p.ID == "" {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		slog.WarnContext(ctx, "principal cache encode failed", logger.UserID(p.ID), logger.Error(err))
		return
	}
	if err := c.client.Set(ctx, Key(p.ID), data, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "principal cache write failed", logger.UserID(p.ID), logger.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, Key(userID)).Err(); err != nil {
		slog.WarnContext(ctx, "principal cache invalidate failed", logger.UserID(userID), logger.Error(err))
	}
}

// Noop never stores anything. It backs CACHE_BACKEND=none.
type Noop struct{}

func (Noop) Get(context.Context, string) (*authz.Principal, bool) { return nil, false }
func (Noop) Set(context.Context, *authz.Principal)                {}
func (Noop) Invalidate(context.Context, string)                   {}
