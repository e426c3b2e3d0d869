package merge

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/i5heu/ouroboros-locket/pkg/locket"
	"github.com/i5heu/ouroboros-locket/pkg/workerPool"
)

var ErrNoDoneCallback = errors.New("merge: done callback is nil")

type Options struct {
	// OnConflict decides scenario 4 and 5 fields. Defaults to
	// ResolveWith(UseNewer).
	OnConflict ConflictHandler
	// Pool runs the field merges. A private pool is created and closed per
	// call if nil.
	Pool *workerPool.WorkerPool
	// ScenarioOverride replaces the scenario reported to OnConflict if set.
	ScenarioOverride Scenario
}

// MergeLockets merges a and b into a new locket and passes it to done once
// every field is resolved. Fields are merged concurrently; a conflict
// handler may resolve from any goroutine and at any later time. done is
// called exactly once, from a goroutine of its own. a and b must not be
// modified until then.
func MergeLockets(a, b *locket.Locket, done func(merged *locket.Locket), opts Options) error {
	if done == nil {
		return ErrNoDoneCallback
	}

	if a == nil {
		a = locket.CreateNew()
	}
	if b == nil {
		b = locket.CreateNew()
	}

	onConflict := opts.OnConflict
	if onConflict == nil {
		onConflict = ResolveWith(UseNewer)
	}

	pool := opts.Pool
	ownsPool := pool == nil
	if ownsPool {
		pool = workerPool.NewWorkerPool(workerPool.Config{})
	}

	names := fieldNames(a, b)
	merged := locket.CreateNew()
	var mergedMutex sync.Mutex
	var pending sync.WaitGroup

	room := pool.CreateRoom(len(names))
	for _, name := range names {
		name := name
		pending.Add(1)

		resolve := resolveOnce(name, func(field *locket.Field) {
			if field != nil {
				mergedMutex.Lock()
				merged.Fields[name] = field
				mergedMutex.Unlock()
			}
			pending.Done()
		})

		err := room.NewTaskWaitForFreeSlot(func() interface{} {
			MergeFields(a.GetField(name), b.GetField(name), func(c Conflict, resolve ResolveFunc) {
				c.FieldName = name
				c.LocketA = a
				c.LocketB = b
				onConflict(c, resolve)
			}, resolve, opts.ScenarioOverride)
			return nil
		})
		if err != nil {
			pending.Done()
			go finishRoom(room, pool, ownsPool)
			return fmt.Errorf("merge: scheduling field %q: %w", name, err)
		}
	}

	go func() {
		finishRoom(room, pool, ownsPool)
		pending.Wait()
		done(merged)
	}()

	return nil
}

func finishRoom(room *workerPool.Room, pool *workerPool.WorkerPool, ownsPool bool) {
	room.Collect()
	if ownsPool {
		pool.Close()
	}
}

// Merge is MergeLockets waiting for the merged locket.
func Merge(a, b *locket.Locket, opts Options) (*locket.Locket, error) {
	result := make(chan *locket.Locket, 1)
	err := MergeLockets(a, b, func(merged *locket.Locket) {
		result <- merged
	}, opts)
	if err != nil {
		return nil, err
	}
	return <-result, nil
}

// fieldNames returns the sorted union of the non-empty fields of a and b.
func fieldNames(a, b *locket.Locket) []string {
	seen := make(map[string]bool)
	for _, l := range []*locket.Locket{a, b} {
		for name := range l.GetAllFields() {
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveOnce panics if the returned function is called a second time.
func resolveOnce(name string, resolve ResolveFunc) ResolveFunc {
	var called atomic.Bool
	return func(field *locket.Field) {
		if !called.CompareAndSwap(false, true) {
			panic(fmt.Sprintf("merge: field %q resolved twice", name))
		}
		resolve(field)
	}
}
