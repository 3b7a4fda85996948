package sync

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedMutex_SameKeySerializes(t *testing.T) {
	m := NewShardedMutex()
	counter := 0

	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("user-ref-1")
			counter++
			m.Unlock("user-ref-1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, counter)
}

func TestShardedMutex_TryLock(t *testing.T) {
	m := NewShardedMutex()

	assert.True(t, m.TryLock("user-ref-1"))
	assert.False(t, m.TryLock("user-ref-1"), "held shard must not be re-acquired")
	m.Unlock("user-ref-1")
	assert.True(t, m.TryLock("user-ref-1"))
	m.Unlock("user-ref-1")
}

func TestShardFor_StableAndInRange(t *testing.T) {
	assert.Equal(t, 0, shardFor(""))
	for i := range 500 {
		key := "user-" + strconv.Itoa(i)
		shard := shardFor(key)
		assert.GreaterOrEqual(t, shard, 0)
		assert.Less(t, shard, shardCount)
		assert.Equal(t, shard, shardFor(key))
	}
}
