package workerPool

import (
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoom_Collect(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 4, GlobalBuffer: 100})
	defer wp.Close()

	room := wp.CreateRoom(50)
	for i := 0; i < 50; i++ {
		i := i
		require.NoError(t, room.NewTaskWaitForFreeSlot(func() interface{} { return i }))
	}

	results := room.Collect()
	require.Len(t, results, 50)

	ints := make([]int, len(results))
	for i, r := range results {
		ints[i] = r.(int)
	}
	sort.Ints(ints)
	for i := range ints {
		assert.Equal(t, i, ints[i])
	}
}

func TestRoom_AsyncCollector(t *testing.T) {
	wp := NewWorkerPool(Config{GlobalBuffer: 10})
	defer wp.Close()

	// more tasks than the room buffer holds
	room := wp.CreateRoom(1)
	room.AsyncCollector()
	room.AsyncCollector()

	var ran atomic.Int64
	for i := 0; i < 200; i++ {
		require.NoError(t, room.NewTaskWaitForFreeSlot(func() interface{} {
			ran.Add(1)
			return struct{}{}
		}))
	}

	results := room.GetAsyncResults()
	assert.Len(t, results, 200)
	assert.Equal(t, int64(200), ran.Load())
}

func TestRoom_NewTaskBufferFull(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 1, GlobalBuffer: 10})
	defer wp.Close()

	block := make(chan struct{})
	room := wp.CreateRoom(1)
	require.NoError(t, room.NewTask(func() interface{} { <-block; return nil }))

	// the finished task's result fills the only room slot
	close(block)
	room.wg.Wait()
	assert.ErrorIs(t, room.NewTask(func() interface{} { return nil }), ErrRoomBufferFull)
	room.Collect()
}

func TestWorkerPool_Close(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 2})
	room := wp.CreateRoom(10)

	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		require.NoError(t, room.NewTaskWaitForFreeSlot(func() interface{} {
			ran.Add(1)
			return nil
		}))
	}

	wp.Close()
	wp.Close()
	assert.Equal(t, int64(10), ran.Load())
	assert.Len(t, room.Collect(), 10)

	assert.ErrorIs(t, room.NewTaskWaitForFreeSlot(func() interface{} { return nil }), ErrPoolClosed)
}
