package tx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "piivault/pkg/domain-errors"
)

func TestInMemoryManager_RollbackReplaysCompensationsInReverse(t *testing.T) {
	m := NewInMemory()
	var order []string

	err := m.RunInTx(context.Background(), "user-1", func(ctx context.Context) error {
		OnRollback(ctx, func() { order = append(order, "first") })
		OnRollback(ctx, func() { order = append(order, "second") })
		return errors.New("audit write failed")
	})

	require.Error(t, err)
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestInMemoryManager_CommitDiscardsCompensations(t *testing.T) {
	m := NewInMemory()
	called := false

	err := m.RunInTx(context.Background(), "user-1", func(ctx context.Context) error {
		OnRollback(ctx, func() { called = true })
		return nil
	})

	require.NoError(t, err)
	assert.False(t, called)
}

func TestInMemoryManager_NestedRunJoinsOuterTransaction(t *testing.T) {
	m := NewInMemory()
	var undone []string

	err := m.RunInTx(context.Background(), "user-1", func(ctx context.Context) error {
		OnRollback(ctx, func() { undone = append(undone, "outer") })
		inner := m.RunInTx(ctx, "user-1", func(ctx context.Context) error {
			OnRollback(ctx, func() { undone = append(undone, "inner") })
			return nil
		})
		require.NoError(t, inner)
		return errors.New("fail after nested")
	})

	require.Error(t, err)
	assert.Equal(t, []string{"inner", "outer"}, undone)
}

func TestInMemoryManager_CancelledContext(t *testing.T) {
	m := NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.RunInTx(ctx, "user-1", func(context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})

	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestInMemoryManager_SerializesSameKey(t *testing.T) {
	m := NewInMemory(WithTimeout(time.Second))
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		maxSeen int
	)

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.RunInTx(context.Background(), "user-1", func(context.Context) error {
				mu.Lock()
				running++
				if running > maxSeen {
					maxSeen = running
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestOnRollback_OutsideTransactionIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		OnRollback(context.Background(), func() { panic("must not run") })
	})
}

func TestActive(t *testing.T) {
	assert.False(t, Active(context.Background()))

	m := NewInMemory()
	err := m.RunInTx(context.Background(), "user-1", func(ctx context.Context) error {
		assert.True(t, Active(ctx))
		return nil
	})
	require.NoError(t, err)
}

func TestInMemoryManager_MetricsOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	m := NewInMemory(WithMetrics(metrics))

	require.NoError(t, m.RunInTx(context.Background(), "user-1", func(context.Context) error { return nil }))
	require.Error(t, m.RunInTx(context.Background(), "user-1", func(context.Context) error {
		return errors.New("boom")
	}))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Rollbacks.WithLabelValues("memory")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
		if f.GetName() == "piivault_tx_shard_lock_wait_seconds" {
			assert.Equal(t, uint64(2), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.ElementsMatch(t, []string{"piivault_tx_shard_lock_wait_seconds", "piivault_tx_rollbacks_total"}, names)
}

func TestInMemoryManager_NilMetricsRecordsNothing(t *testing.T) {
	m := NewInMemory()
	err := m.RunInTx(context.Background(), "user-1", func(context.Context) error { return errors.New("boom") })
	require.Error(t, err)
}
