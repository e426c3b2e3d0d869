package locketdb

import (
	"sync"
	"testing"
	"time"

	"github.com/i5heu/ouroboros-locket/pkg/envelope"
	"github.com/i5heu/ouroboros-locket/pkg/locket"
	"github.com/i5heu/ouroboros-locket/pkg/merge"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t testing.TB, conf Config) *LocketDB {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	conf.Paths = []string{t.TempDir()}
	conf.Logger = logger

	db, err := NewLocketDB(conf)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleLocket(t testing.TB, values map[string]any) *locket.Locket {
	t.Helper()
	l := locket.CreateNew()
	for name, value := range values {
		require.NoError(t, l.WriteContent(name, value, locket.WriteOptions{}))
	}
	return l
}

func TestNewLocketDB_NoPath(t *testing.T) {
	_, err := NewLocketDB(Config{})
	assert.Error(t, err)
}

func TestSaveLoadLocket(t *testing.T) {
	for _, compress := range []bool{false, true} {
		db := setupDB(t, Config{Compress: compress})

		l := sampleLocket(t, map[string]any{
			"title": "magpie",
			"tags":  []any{"bird", "black", "white"},
			"blob":  []byte("shiny"),
		})
		require.NoError(t, db.SaveLocket("birds", l))

		loaded, err := db.LoadLocket("birds")
		require.NoError(t, err)
		assert.Equal(t, l.Fields, loaded.Fields)
	}
}

func TestLoadLocket_NotFound(t *testing.T) {
	db := setupDB(t, Config{})

	_, err := db.LoadLocket("nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveLocket_EmptyName(t *testing.T) {
	db := setupDB(t, Config{})
	assert.ErrorIs(t, db.SaveLocket("", locket.CreateNew()), ErrInvalidName)
}

func TestListAndDeleteLockets(t *testing.T) {
	db := setupDB(t, Config{})

	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, db.SaveLocket(name, sampleLocket(t, map[string]any{"n": name})))
	}

	names, err := db.ListLockets()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	require.NoError(t, db.DeleteLocket("b"))
	names, err = db.ListLockets()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names)

	_, err = db.LoadLocket("b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveLoadLocked(t *testing.T) {
	db := setupDB(t, Config{})
	kp, err := envelope.GenerateBoxKeypair()
	require.NoError(t, err)

	l := sampleLocket(t, map[string]any{"secret": "nest location"})
	require.NoError(t, db.SaveLocked("hidden", l, kp.Public(), envelope.Options{}))

	loaded, err := db.LoadLocked("hidden", kp, envelope.Options{})
	require.NoError(t, err)
	assert.Equal(t, l.Fields, loaded.Fields)

	other, err := envelope.GenerateBoxKeypair()
	require.NoError(t, err)
	_, err = db.LoadLocked("hidden", other, envelope.Options{})
	assert.ErrorIs(t, err, envelope.ErrWrongKeypair)

	_, err = db.LoadLocked("missing", kp, envelope.Options{})
	assert.ErrorIs(t, err, ErrNotFound)

	names, err := db.ListLockets()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMergeInto_Missing(t *testing.T) {
	db := setupDB(t, Config{})

	incoming := sampleLocket(t, map[string]any{"a": 1})
	merged, err := db.MergeInto("fresh", incoming, nil)
	require.NoError(t, err)
	assert.Equal(t, incoming.Fields, merged.Fields)

	stored, err := db.LoadLocket("fresh")
	require.NoError(t, err)
	assert.Equal(t, merged.Fields, stored.Fields)
}

func TestMergeInto_Conflict(t *testing.T) {
	db := setupDB(t, Config{WorkerCount: 2})

	base := sampleLocket(t, map[string]any{"shared": "base", "onlyStored": true})
	require.NoError(t, db.SaveLocket("doc", base))

	stored := base.Clone()
	require.NoError(t, stored.WriteContent("shared", "stored", locket.WriteOptions{}))
	require.NoError(t, db.SaveLocket("doc", stored))

	incoming := base.Clone()
	time.Sleep(time.Millisecond)
	require.NoError(t, incoming.WriteContent("shared", "incoming", locket.WriteOptions{}))
	require.NoError(t, incoming.WriteContent("onlyIncoming", 7, locket.WriteOptions{}))

	var seen []merge.Conflict
	var mu sync.Mutex
	merged, err := db.MergeInto("doc", incoming, func(c merge.Conflict, resolve merge.ResolveFunc) {
		mu.Lock()
		seen = append(seen, c)
		mu.Unlock()
		resolve(c.B)
	})
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, "shared", seen[0].FieldName)
	assert.Equal(t, merge.Divergent, seen[0].Scenario)

	value, err := merged.ReadContent("shared", locket.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "incoming", value)
	assert.True(t, merged.HasField("onlyStored"))
	assert.True(t, merged.HasField("onlyIncoming"))

	stored2, err := db.LoadLocket("doc")
	require.NoError(t, err)
	assert.Equal(t, merged.Fields, stored2.Fields)
}

func TestClose(t *testing.T) {
	db := setupDB(t, Config{GarbageCollectionInterval: 10 * time.Millisecond})
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err := db.LoadLocket("x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, db.SaveLocket("x", locket.CreateNew()), ErrClosed)
}
