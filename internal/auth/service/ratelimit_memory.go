package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const bucketShards = 32

// MemoryBucketStore keeps buckets in a sharded in-process map, one
// mutex per shard so unrelated identifiers never contend. Suitable for
// single-instance deployments; multi-instance setups want the Redis
// store so every node sees the same budget.
type MemoryBucketStore struct {
	shards [bucketShards]bucketShard
}

type bucketShard struct {
	mu      sync.Mutex
	buckets map[string]memoryBucket
	sweepAt time.Time
}

type memoryBucket struct {
	bucket  Bucket
	touched time.Time
}

func NewMemoryBucketStore() *MemoryBucketStore {
	s := &MemoryBucketStore{}
	for i := range s.shards {
		s.shards[i].buckets = make(map[string]memoryBucket)
	}
	return s
}

func (s *MemoryBucketStore) shard(key string) *bucketShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%bucketShards]
}

func (s *MemoryBucketStore) Consume(ctx context.Context, key string, p RatePolicy, now time.Time) (RateDecision, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.maybeSweep(now)

	entry := sh.buckets[key]
	next, decision := consumeBucket(entry.bucket, p, now)
	sh.buckets[key] = memoryBucket{bucket: next, touched: now}
	return decision, nil
}

func (s *MemoryBucketStore) Peek(ctx context.Context, key string, p RatePolicy, now time.Time) (int, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	return peekBucket(sh.buckets[key].bucket, p, now), nil
}

func (s *MemoryBucketStore) Reset(ctx context.Context, key string) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	delete(sh.buckets, key)
	return nil
}

// maybeSweep drops buckets idle for over an hour. Runs at most once a
// minute per shard, under the shard lock the caller already holds.
func (sh *bucketShard) maybeSweep(now time.Time) {
	if now.Sub(sh.sweepAt) < time.Minute {
		return
	}
	sh.sweepAt = now
	for key, entry := range sh.buckets {
		if now.Sub(entry.touched) > time.Hour {
			delete(sh.buckets, key)
		}
	}
}
