// Package workerPool runs short tasks on a fixed set of goroutines. Tasks
// are grouped in rooms; a room collects the results of its own tasks.
package workerPool

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed     = errors.New("workerPool: pool is closed")
	ErrGlobalBuffer   = errors.New("workerPool: global buffer is full")
	ErrRoomBufferFull = errors.New("workerPool: room buffer is full")
)

type WorkerPool struct {
	config    Config
	taskQueue chan Task

	// guards taskQueue against sends after Close
	closeMutex sync.RWMutex
	closed     bool
	workers    sync.WaitGroup
}

type Config struct {
	WorkerCount  int // defaults to 3 workers per CPU
	GlobalBuffer int // queued tasks across all rooms, defaults to 10000
}

type Room struct {
	result               []interface{}
	resultMutex          sync.Mutex
	asyncCollectorWait   sync.WaitGroup
	asyncCollectorActive atomic.Bool
	resultChan           chan interface{}
	closeOnce            sync.Once
	wg                   sync.WaitGroup
	wp                   *WorkerPool
}

type Task struct {
	run  func() interface{}
	room *Room
}

func NewWorkerPool(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU() * 3
	}
	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 10000
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan Task, config.GlobalBuffer),
	}

	wp.workers.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.workers.Done()
	for t := range wp.taskQueue {
		t.room.resultChan <- t.run()
		t.room.wg.Done()
	}
}

// Close stops accepting tasks, lets the workers finish everything already
// queued and waits for them to exit. Calling Close twice is a no-op.
func (wp *WorkerPool) Close() {
	wp.closeMutex.Lock()
	if wp.closed {
		wp.closeMutex.Unlock()
		return
	}
	wp.closed = true
	close(wp.taskQueue)
	wp.closeMutex.Unlock()

	wp.workers.Wait()
}

// CreateRoom creates a room whose result buffer holds size results. A room
// that is drained by Collect or AsyncCollector may run more tasks than that.
func (wp *WorkerPool) CreateRoom(size int) *Room {
	if size < 1 {
		size = 1
	}
	return &Room{
		resultChan: make(chan interface{}, size),
		wp:         wp,
	}
}

// NewTaskWaitForFreeSlot queues job, blocking while the global buffer is
// full.
func (ro *Room) NewTaskWaitForFreeSlot(job func() interface{}) error {
	ro.wp.closeMutex.RLock()
	defer ro.wp.closeMutex.RUnlock()

	if ro.wp.closed {
		return ErrPoolClosed
	}

	ro.wg.Add(1)
	ro.wp.taskQueue <- Task{run: job, room: ro}
	return nil
}

// NewTask queues job or fails right away if either buffer is full.
func (ro *Room) NewTask(job func() interface{}) error {
	if len(ro.wp.taskQueue) == cap(ro.wp.taskQueue) {
		return ErrGlobalBuffer
	}
	if len(ro.resultChan) == cap(ro.resultChan) {
		return ErrRoomBufferFull
	}

	return ro.NewTaskWaitForFreeSlot(job)
}

// Collect waits for every queued task of the room and returns the results in
// completion order. No tasks may be added afterwards.
func (ro *Room) Collect() []interface{} {
	go ro.WaitAndClose()

	results := make([]interface{}, 0)
	for result := range ro.resultChan {
		results = append(results, result)
	}
	return results
}

// AsyncCollector drains results in the background, so a room can run more
// tasks than its buffer holds. Read them with GetAsyncResults.
func (ro *Room) AsyncCollector() {
	if !ro.asyncCollectorActive.CompareAndSwap(false, true) {
		return
	}

	ro.asyncCollectorWait.Add(1)
	go func() {
		defer ro.asyncCollectorWait.Done()

		ro.resultMutex.Lock()
		defer ro.resultMutex.Unlock()
		for result := range ro.resultChan {
			ro.result = append(ro.result, result)
		}
	}()
}

func (ro *Room) GetAsyncResults() []interface{} {
	go ro.WaitAndClose()
	ro.asyncCollectorWait.Wait()

	ro.resultMutex.Lock()
	defer ro.resultMutex.Unlock()
	return ro.result
}

func (ro *Room) WaitAndClose() {
	ro.wg.Wait()
	ro.closeOnce.Do(func() { close(ro.resultChan) })
}
