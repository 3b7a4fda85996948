package sync

import (
	"hash/fnv"
	"sync"
)

// shardCount is a power of two so the shard index is a mask of the key hash.
const shardCount = 64

// ShardedMutex serializes work per key without a process-wide lock. Keys that
// hash to the same shard share a mutex, which only costs throughput.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

func NewShardedMutex() *ShardedMutex {
	return &ShardedMutex{}
}

// Lock acquires the mutex guarding key. Empty keys map to shard 0.
func (m *ShardedMutex) Lock(key string) {
	m.shards[shardFor(key)].Lock()
}

func (m *ShardedMutex) Unlock(key string) {
	m.shards[shardFor(key)].Unlock()
}

// TryLock acquires the mutex guarding key without blocking.
func (m *ShardedMutex) TryLock(key string) bool {
	return m.shards[shardFor(key)].TryLock()
}

func shardFor(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key)) //nolint:errcheck // hash writes never fail
	return int(h.Sum32() & (shardCount - 1))
}
