// Package keyValStore is the badger backed storage of the locket database.
// Besides plain keys it stores blobs as content-defined chunks, so blobs
// sharing regions share storage.
package keyValStore

import (
	"bytes"
	"crypto/sha512"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/i5heu/ouroboros-locket/pkg/buzhashChunker"
	"github.com/sirupsen/logrus"
)

var (
	ErrKeyNotFound = errors.New("keyValStore: key not found")
	ErrBrokenBlob  = errors.New("keyValStore: broken blob")
)

const chunkHashLength = buzhashChunker.HashSize

var chunkKeyPrefix = []byte("Chunk:")

// blobManifestMeta marks manifest entries so Clean can find every
// referenced chunk.
const blobManifestMeta byte = 0x01

type StoreConfig struct {
	Paths            []string // only the first path is used for now
	MinimumFreeSpace int      // in GB
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config       StoreConfig
	log          *logrus.Logger
	badgerDB     *badger.DB
	blobMutex    sync.RWMutex // held exclusively while sweeping chunks
	readCounter  atomic.Uint64
	writeCounter atomic.Uint64
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log := config.Logger

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // 100MB per value log file
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		log.WithError(err).Error("Error opening badger")
		return nil, fmt.Errorf("error opening badger: %w", err)
	}

	if err := displayDiskUsage(log, config.Paths); err != nil {
		db.Close()
		return nil, err
	}

	return &KeyValStore{
		config:   config,
		log:      log,
		badgerDB: db,
	}, nil
}

// Stats returns the read and write operations since the last call.
func (k *KeyValStore) Stats() (reads, writes uint64) {
	return k.readCounter.Swap(0), k.writeCounter.Swap(0)
}

func (k *KeyValStore) Write(key []byte, content []byte) error {
	k.writeCounter.Add(1)

	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
	if err != nil {
		return fmt.Errorf("error writing key %q: %w", key, err)
	}
	return nil
}

// WriteBatch writes all key/value pairs in one transaction.
func (k *KeyValStore) WriteBatch(batch [][2][]byte) error {
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		for _, kv := range batch {
			k.writeCounter.Add(1)
			if err := txn.Set(kv[0], kv[1]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error writing batch: %w", err)
	}
	return nil
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	k.readCounter.Add(1)

	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading key %q: %w", key, err)
	}
	return value, nil
}

func (k *KeyValStore) Delete(key []byte) error {
	k.writeCounter.Add(1)

	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("error deleting key %q: %w", key, err)
	}
	return nil
}

func (k *KeyValStore) Exists(key []byte) (bool, error) {
	existsMap, err := k.BatchCheckKeyExistence([][]byte{key})
	if err != nil {
		return false, err
	}
	return existsMap[string(key)], nil
}

func (k *KeyValStore) BatchCheckKeyExistence(keys [][]byte) (map[string]bool, error) {
	existsMap := make(map[string]bool, len(keys))

	err := k.badgerDB.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			k.readCounter.Add(1)
			_, err := txn.Get(key)
			switch {
			case err == nil:
				existsMap[string(key)] = true
			case errors.Is(err, badger.ErrKeyNotFound):
				existsMap[string(key)] = false
			default:
				return err
			}
		}
		return nil
	})

	return existsMap, err
}

// KeysWithPrefix returns all keys starting with prefix, in key order.
func (k *KeyValStore) KeysWithPrefix(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	k.readCounter.Add(1)

	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing prefix %q: %w", prefix, err)
	}
	return keys, nil
}

func chunkKey(hash [64]byte) []byte {
	return append(append([]byte{}, chunkKeyPrefix...), hash[:]...)
}

// WriteBlob chunks data and stores every chunk not stored yet. key gets the
// manifest: the concatenated chunk hashes.
func (k *KeyValStore) WriteBlob(key []byte, data []byte) error {
	k.blobMutex.RLock()
	defer k.blobMutex.RUnlock()

	chunks, err := buzhashChunker.ChunkBytes(data)
	if err != nil {
		return err
	}

	keys := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		keys[i] = chunkKey(chunk.Hash)
	}
	existsMap, err := k.BatchCheckKeyExistence(keys)
	if err != nil {
		return fmt.Errorf("error checking chunk existence: %w", err)
	}

	wb := k.badgerDB.NewWriteBatch()
	defer wb.Cancel()

	manifest := make([]byte, 0, len(chunks)*chunkHashLength)
	written := make(map[string]bool)
	for i, chunk := range chunks {
		manifest = append(manifest, chunk.Hash[:]...)

		if existsMap[string(keys[i])] || written[string(keys[i])] {
			continue
		}
		written[string(keys[i])] = true
		k.writeCounter.Add(1)
		if err := wb.Set(keys[i], chunk.Data); err != nil {
			return fmt.Errorf("error writing chunk: %w", err)
		}
	}

	k.writeCounter.Add(1)
	if err := wb.SetEntry(badger.NewEntry(key, manifest).WithMeta(blobManifestMeta)); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("error flushing blob %q: %w", key, err)
	}

	k.log.WithFields(logrus.Fields{
		"key":       string(key),
		"size":      len(data),
		"chunks":    len(chunks),
		"newChunks": len(written),
	}).Debug("Blob written")
	return nil
}

// ReadBlob reassembles a blob written by WriteBlob and verifies every chunk.
func (k *KeyValStore) ReadBlob(key []byte) ([]byte, error) {
	k.blobMutex.RLock()
	defer k.blobMutex.RUnlock()

	manifest, err := k.Read(key)
	if err != nil {
		return nil, err
	}
	if len(manifest)%chunkHashLength != 0 {
		return nil, fmt.Errorf("%w: manifest of %q has %d bytes", ErrBrokenBlob, key, len(manifest))
	}

	var blob bytes.Buffer
	err = k.badgerDB.View(func(txn *badger.Txn) error {
		for offset := 0; offset < len(manifest); offset += chunkHashLength {
			var hash [64]byte
			copy(hash[:], manifest[offset:offset+chunkHashLength])

			k.readCounter.Add(1)
			item, err := txn.Get(chunkKey(hash))
			if err != nil {
				return fmt.Errorf("%w: chunk %x: %v", ErrBrokenBlob, hash[:8], err)
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if sha512.Sum512(data) != hash {
				return fmt.Errorf("%w: chunk %x does not match its hash", ErrBrokenBlob, hash[:8])
			}
			blob.Write(data)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob.Bytes(), nil
}

func (k *KeyValStore) Close() error {
	if err := k.Clean(); err != nil {
		k.log.WithError(err).Error("Error cleaning db before close")
	}
	return k.badgerDB.Close()
}

// Clean removes unreferenced chunks, then syncs, compacts and garbage
// collects the value log.
func (k *KeyValStore) Clean() error {
	swept, err := k.sweepChunks()
	if err != nil {
		return err
	}
	if swept > 0 {
		k.log.WithField("chunks", swept).Debug("Unreferenced chunks removed")
	}

	err = k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	err = k.badgerDB.Flatten(runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	k.log.Debug("DB Flattened")

	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}

// sweepChunks deletes every chunk that no blob manifest references anymore,
// which happens after a blob is deleted or overwritten.
func (k *KeyValStore) sweepChunks() (int, error) {
	k.blobMutex.Lock()
	defer k.blobMutex.Unlock()

	referenced := make(map[string]bool)
	var unreferenced [][]byte

	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if item.UserMeta() != blobManifestMeta {
				continue
			}
			manifest, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			for offset := 0; offset+chunkHashLength <= len(manifest); offset += chunkHashLength {
				referenced[string(manifest[offset:offset+chunkHashLength])] = true
			}
		}

		for it.Seek(chunkKeyPrefix); it.ValidForPrefix(chunkKeyPrefix); it.Next() {
			key := it.Item().Key()
			if !referenced[string(key[len(chunkKeyPrefix):])] {
				unreferenced = append(unreferenced, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error scanning chunks: %w", err)
	}
	if len(unreferenced) == 0 {
		return 0, nil
	}

	wb := k.badgerDB.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range unreferenced {
		k.writeCounter.Add(1)
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("error deleting chunk: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("error flushing chunk sweep: %w", err)
	}
	return len(unreferenced), nil
}
