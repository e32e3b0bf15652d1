package concurrency

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParallelMap_OrderPreservedRegardlessOfCompletionOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1}

	results := ParallelMap(context.Background(), items, func(ctx context.Context, item int, index int) (int, error) {
		time.Sleep(time.Duration(item) * time.Millisecond)
		return item * 10, nil
	}, Options{Concurrency: 5})

	indices := make([]int, len(results))
	for i, r := range results {
		indices[i] = r.Index
		require.NoError(t, r.Err)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, indices)
	require.Equal(t, 50, results[0].Value)
	require.Equal(t, 10, results[4].Value)
}

func TestParallelMap_ErrorIsolation(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}
	var progressCalls int64

	results := ParallelMap(context.Background(), items, func(ctx context.Context, item, index int) (int, error) {
		if item == 2 {
			return 0, fmt.Errorf("boom at %d", item)
		}
		return item * 2, nil
	}, Options{
		Concurrency: 3,
		OnProgress: func(completed, total int) {
			atomic.AddInt64(&progressCalls, 1)
			if completed == total {
				require.Equal(t, len(items), total)
			}
		},
	})

	require.Len(t, results, 5)
	for i, r := range results {
		if i == 2 {
			require.Error(t, r.Err)
			continue
		}
		require.NoError(t, r.Err)
		require.Equal(t, i*2, r.Value)
	}
	require.Equal(t, int64(5), atomic.LoadInt64(&progressCalls))
}

func TestParallelMap_StopOnErrorHaltsNewWork(t *testing.T) {
	var started int64
	items := make([]int, 20)

	results := ParallelMap(context.Background(), items, func(ctx context.Context, item, index int) (int, error) {
		n := atomic.AddInt64(&started, 1)
		if n == 1 {
			return 0, fmt.Errorf("first item fails")
		}
		time.Sleep(5 * time.Millisecond)
		return index, nil
	}, Options{Concurrency: 1, StopOnError: true})

	require.Len(t, results, 20)
	require.Error(t, results[0].Err)
	require.Less(t, atomic.LoadInt64(&started), int64(20))
}

func TestParallelBatch_ChunksBeforeMapping(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	results := ParallelBatch(context.Background(), items, 3, func(ctx context.Context, batch []int, index int) (int, error) {
		sum := 0
		for _, v := range batch {
			sum += v
		}
		return sum, nil
	}, Options{Concurrency: 2})

	require.Len(t, results, 3)
	require.Equal(t, 6, results[0].Value)  // 1+2+3
	require.Equal(t, 15, results[1].Value) // 4+5+6
	require.Equal(t, 7, results[2].Value)  // 7
}
