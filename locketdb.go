// Package locketdb persists lockets in a local badger store and merges
// incoming lockets into the stored ones.
package locketdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/i5heu/ouroboros-locket/internal/keyValStore"
	"github.com/i5heu/ouroboros-locket/pkg/binaryCoder"
	"github.com/i5heu/ouroboros-locket/pkg/envelope"
	"github.com/i5heu/ouroboros-locket/pkg/locket"
	"github.com/i5heu/ouroboros-locket/pkg/merge"
	"github.com/i5heu/ouroboros-locket/pkg/workerPool"
	"github.com/sirupsen/logrus"
)

const (
	locketPrefix = "Locket:"
	lockedPrefix = "Locked:"
)

var (
	ErrNotFound    = errors.New("locketdb: locket not found")
	ErrClosed      = errors.New("locketdb: database closed")
	ErrInvalidName = errors.New("locketdb: invalid locket name")
)

// LocketDB is the database handle. It owns the key value store, the worker
// pool used for merges and the garbage collection loop.
type LocketDB struct {
	log    *logrus.Logger
	config Config

	kv    *keyValStore.KeyValStore
	pool  *workerPool.WorkerPool
	codec *binaryCoder.Coder

	// serializes read-modify-write cycles of MergeInto
	mergeMu sync.Mutex

	stopGC    chan struct{}
	gcDone    sync.WaitGroup
	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func NewLocketDB(conf Config) (*LocketDB, error) {
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}

	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:            conf.Paths,
		MinimumFreeSpace: conf.MinimumFreeGB,
		Logger:           conf.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating KeyValStore: %w", err)
	}

	db := &LocketDB{
		log:    conf.Logger,
		config: conf,
		kv:     kv,
		pool:   workerPool.NewWorkerPool(workerPool.Config{WorkerCount: conf.WorkerCount}),
		codec:  binaryCoder.New(binaryCoder.Options{Compress: conf.Compress}),
		stopGC: make(chan struct{}),
	}

	if conf.GarbageCollectionInterval > 0 {
		db.gcDone.Add(1)
		go db.garbageCollection()
	}

	db.log.WithFields(logrus.Fields{
		"path":     conf.Paths[0],
		"compress": conf.Compress,
	}).Info("LocketDB opened")

	return db, nil
}

func (db *LocketDB) garbageCollection() {
	defer db.gcDone.Done()

	ticker := time.NewTicker(db.config.GarbageCollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-db.stopGC:
			return
		case <-ticker.C:
			start := time.Now()
			if err := db.kv.Clean(); err != nil {
				db.log.WithError(err).Error("Error during garbage collection")
				continue
			}
			reads, writes := db.kv.Stats()
			db.log.WithFields(logrus.Fields{
				"duration": time.Since(start),
				"reads":    reads,
				"writes":   writes,
			}).Debug("Garbage collection finished")
		}
	}
}

// Close stops the garbage collection, the worker pool and the store. Later
// calls return nil.
func (db *LocketDB) Close() error {
	var err error
	db.closeOnce.Do(func() {
		db.closeMu.Lock()
		db.closed = true
		db.closeMu.Unlock()

		close(db.stopGC)
		db.gcDone.Wait()
		db.pool.Close()
		err = db.kv.Close()
		db.log.Info("LocketDB closed")
	})
	return err
}

// open guards an operation against a concurrent Close. The returned func
// must be called when the operation is done.
func (db *LocketDB) open() (func(), error) {
	db.closeMu.RLock()
	if db.closed {
		db.closeMu.RUnlock()
		return nil, ErrClosed
	}
	return db.closeMu.RUnlock, nil
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	return nil
}

// SaveLocket stores l under name, replacing any stored version.
func (db *LocketDB) SaveLocket(name string, l *locket.Locket) error {
	if err := checkName(name); err != nil {
		return err
	}
	done, err := db.open()
	if err != nil {
		return err
	}
	defer done()

	return db.saveLocket(name, l)
}

func (db *LocketDB) saveLocket(name string, l *locket.Locket) error {
	encoded, err := locket.Encode(l, db.codec)
	if err != nil {
		return err
	}
	if err := db.kv.WriteBlob([]byte(locketPrefix+name), encoded); err != nil {
		db.log.WithError(err).WithField("locket", name).Error("Error saving locket")
		return err
	}

	db.log.WithFields(logrus.Fields{
		"locket": name,
		"fields": len(l.GetAllFields()),
		"size":   len(encoded),
	}).Debug("Locket saved")
	return nil
}

// LoadLocket returns ErrNotFound if nothing is stored under name.
func (db *LocketDB) LoadLocket(name string) (*locket.Locket, error) {
	done, err := db.open()
	if err != nil {
		return nil, err
	}
	defer done()

	return db.loadLocket(name)
}

func (db *LocketDB) loadLocket(name string) (*locket.Locket, error) {
	encoded, err := db.kv.ReadBlob([]byte(locketPrefix + name))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return locket.Decode(encoded, db.codec)
}

// DeleteLocket removes the plain and the locked version stored under name.
func (db *LocketDB) DeleteLocket(name string) error {
	done, err := db.open()
	if err != nil {
		return err
	}
	defer done()

	for _, key := range []string{locketPrefix + name, lockedPrefix + name} {
		if err := db.kv.Delete([]byte(key)); err != nil {
			return err
		}
	}
	db.log.WithField("locket", name).Debug("Locket deleted")
	return nil
}

// ListLockets returns the names of all plain lockets in name order.
func (db *LocketDB) ListLockets() ([]string, error) {
	done, err := db.open()
	if err != nil {
		return nil, err
	}
	defer done()

	keys, err := db.kv.KeysWithPrefix([]byte(locketPrefix))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = strings.TrimPrefix(string(key), locketPrefix)
	}
	return names, nil
}

// SaveLocked locks l for kp and stores the envelope under name. Without a
// coder in opts the database codec is used.
func (db *LocketDB) SaveLocked(name string, l *locket.Locket, kp envelope.Keypair, opts envelope.Options) error {
	if err := checkName(name); err != nil {
		return err
	}
	done, err := db.open()
	if err != nil {
		return err
	}
	defer done()

	if opts.Coder == nil {
		opts.Coder = db.codec
	}
	env, err := envelope.Lock(l, kp, opts)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("locketdb: encoding envelope: %w", err)
	}
	return db.kv.Write([]byte(lockedPrefix+name), raw)
}

// LoadLocked reads and unlocks the envelope stored under name.
func (db *LocketDB) LoadLocked(name string, kp envelope.Keypair, opts envelope.Options) (*locket.Locket, error) {
	done, err := db.open()
	if err != nil {
		return nil, err
	}
	defer done()

	raw, err := db.kv.Read([]byte(lockedPrefix + name))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", envelope.ErrCorrupted, err)
	}
	if opts.Coder == nil {
		opts.Coder = db.codec
	}
	return envelope.Unlock(&env, kp, opts)
}

// MergeInto merges incoming into the locket stored under name and stores
// the result. A missing locket is treated as empty. onConflict may be nil
// for the newest-wins default; it must resolve before MergeInto returns.
func (db *LocketDB) MergeInto(name string, incoming *locket.Locket, onConflict merge.ConflictHandler) (*locket.Locket, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	done, err := db.open()
	if err != nil {
		return nil, err
	}
	defer done()

	db.mergeMu.Lock()
	defer db.mergeMu.Unlock()

	stored, err := db.loadLocket(name)
	if errors.Is(err, ErrNotFound) {
		stored = locket.CreateNew()
	} else if err != nil {
		return nil, err
	}

	var conflicts int
	var conflictsMu sync.Mutex
	handler := onConflict
	if handler == nil {
		handler = merge.ResolveWith(merge.UseNewer)
	}

	merged, err := merge.Merge(stored, incoming, merge.Options{
		Pool: db.pool,
		OnConflict: func(c merge.Conflict, resolve merge.ResolveFunc) {
			conflictsMu.Lock()
			conflicts++
			conflictsMu.Unlock()
			db.log.WithFields(logrus.Fields{
				"locket":   name,
				"field":    c.FieldName,
				"scenario": c.Scenario.String(),
			}).Info("Merge conflict")
			handler(c, resolve)
		},
	})
	if err != nil {
		return nil, err
	}

	if err := db.saveLocket(name, merged); err != nil {
		return nil, err
	}

	db.log.WithFields(logrus.Fields{
		"locket":    name,
		"fields":    len(merged.GetAllFields()),
		"conflicts": conflicts,
	}).Info("Locket merged")
	return merged, nil
}
