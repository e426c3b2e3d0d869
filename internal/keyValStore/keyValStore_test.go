package keyValStore

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t testing.TB) *KeyValStore {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	kv, err := NewKeyValStore(StoreConfig{
		Paths:            []string{t.TempDir()},
		MinimumFreeSpace: 0,
		Logger:           logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestNewKeyValStore_BadConfig(t *testing.T) {
	_, err := NewKeyValStore(StoreConfig{})
	assert.ErrorIs(t, err, ErrNoPath)

	_, err = NewKeyValStore(StoreConfig{Paths: []string{t.TempDir() + "/missing"}})
	assert.Error(t, err)

	_, err = NewKeyValStore(StoreConfig{Paths: []string{t.TempDir()}, MinimumFreeSpace: 1 << 30})
	assert.ErrorIs(t, err, ErrNotEnoughSpace)
}

func TestWriteReadDelete(t *testing.T) {
	kv := setupStore(t)

	require.NoError(t, kv.Write([]byte("a"), []byte("value")))
	value, err := kv.Read([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	exists, err := kv.Exists([]byte("a"))
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, kv.Delete([]byte("a")))
	_, err = kv.Read([]byte("a"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	exists, err = kv.Exists([]byte("a"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriteBatchAndPrefix(t *testing.T) {
	kv := setupStore(t)

	require.NoError(t, kv.WriteBatch([][2][]byte{
		{[]byte("Locket:b"), []byte("2")},
		{[]byte("Locket:a"), []byte("1")},
		{[]byte("Other:c"), []byte("3")},
	}))

	keys, err := kv.KeysWithPrefix([]byte("Locket:"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("Locket:a"), []byte("Locket:b")}, keys)

	reads, writes := kv.Stats()
	assert.Greater(t, reads, uint64(0))
	assert.Equal(t, uint64(3), writes)
}

func TestBlob_RoundTrip(t *testing.T) {
	kv := setupStore(t)

	data := make([]byte, 1<<20)
	rand.New(rand.NewSource(7)).Read(data)

	require.NoError(t, kv.WriteBlob([]byte("blob"), data))
	out, err := kv.ReadBlob([]byte("blob"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, out))

	require.NoError(t, kv.WriteBlob([]byte("empty"), nil))
	out, err = kv.ReadBlob([]byte("empty"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBlob_SharesChunks(t *testing.T) {
	kv := setupStore(t)

	data := make([]byte, 1<<20)
	rand.New(rand.NewSource(8)).Read(data)

	require.NoError(t, kv.WriteBlob([]byte("first"), data))
	chunks, err := kv.KeysWithPrefix(chunkKeyPrefix)
	require.NoError(t, err)

	require.NoError(t, kv.WriteBlob([]byte("second"), data))
	again, err := kv.KeysWithPrefix(chunkKeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, len(chunks), len(again))
}

func TestBlob_Broken(t *testing.T) {
	kv := setupStore(t)

	require.NoError(t, kv.Write([]byte("short"), []byte("not a manifest")))
	_, err := kv.ReadBlob([]byte("short"))
	assert.ErrorIs(t, err, ErrBrokenBlob)

	require.NoError(t, kv.WriteBlob([]byte("blob"), []byte("some data")))
	chunks, err := kv.KeysWithPrefix(chunkKeyPrefix)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	require.NoError(t, kv.Write(chunks[0], []byte("tampered")))
	_, err = kv.ReadBlob([]byte("blob"))
	assert.ErrorIs(t, err, ErrBrokenBlob)

	require.NoError(t, kv.Delete(chunks[0]))
	_, err = kv.ReadBlob([]byte("blob"))
	assert.ErrorIs(t, err, ErrBrokenBlob)
}

func TestClean(t *testing.T) {
	kv := setupStore(t)
	require.NoError(t, kv.Write([]byte("a"), []byte("b")))
	assert.NoError(t, kv.Clean())
}

func TestClean_SweepsUnreferencedChunks(t *testing.T) {
	kv := setupStore(t)

	first := make([]byte, 1<<20)
	rand.New(rand.NewSource(9)).Read(first)
	second := make([]byte, 1<<20)
	rand.New(rand.NewSource(10)).Read(second)

	require.NoError(t, kv.WriteBlob([]byte("kept"), first))
	onlyKept, err := kv.KeysWithPrefix(chunkKeyPrefix)
	require.NoError(t, err)

	require.NoError(t, kv.WriteBlob([]byte("deleted"), second))
	require.NoError(t, kv.WriteBlob([]byte("overwritten"), second))
	require.NoError(t, kv.Delete([]byte("deleted")))
	require.NoError(t, kv.Clean())

	chunks, err := kv.KeysWithPrefix(chunkKeyPrefix)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), len(onlyKept), "chunks of a live blob were swept")

	require.NoError(t, kv.WriteBlob([]byte("overwritten"), []byte("small")))
	require.NoError(t, kv.Clean())

	chunks, err = kv.KeysWithPrefix(chunkKeyPrefix)
	require.NoError(t, err)
	assert.Len(t, chunks, len(onlyKept)+1)

	out, err := kv.ReadBlob([]byte("kept"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, out))
	out, err = kv.ReadBlob([]byte("overwritten"))
	require.NoError(t, err)
	assert.Equal(t, []byte("small"), out)
}
