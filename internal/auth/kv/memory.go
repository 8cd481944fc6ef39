package kv

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Memory is an in-process Store for single-node deployments and tests.
type Memory struct {
	cache *ttlcache.Cache[string, string]
}

func NewMemory() *Memory {
	cache := ttlcache.New[string, string]()
	go cache.Start()
	return &Memory{cache: cache}
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.cache.Set(key, value, ttl)
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	item := m.cache.Get(key)
	if item == nil {
		return "", ErrNotFound
	}
	return item.Value(), nil
}

func (m *Memory) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	_, existed := m.cache.GetOrSet(key, value, ttlcache.WithTTL[string, string](ttl))
	return !existed, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	m.cache.Stop()
	return nil
}
