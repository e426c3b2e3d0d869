package merge

import (
	"testing"
	"time"

	"github.com/i5heu/ouroboros-locket/pkg/locket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func olderOnTopPair() (a, b *locket.Field, diff *HistoryDiff) {
	a = buildField(write{"A", 1}, write{"B", 2}, write{"C", 3}, write{"D", 4})
	b = buildField(write{"A", 10}, write{"B", 11}, write{"C", 12})
	return a, b, GetHistoryDiff(a.History, b.History)
}

func TestUseAUseB(t *testing.T) {
	a, b, diff := olderOnTopPair()

	gotA := UseA(a, b, diff)
	assert.Equal(t, a, gotA)
	assert.NotSame(t, a, gotA)
	assert.Equal(t, b, UseB(a, b, diff))
}

func TestUseOnTop(t *testing.T) {
	a, b, diff := olderOnTopPair()
	assert.Equal(t, a, UseOnTop(a, b, diff))
	assert.Equal(t, a, UseOnTop(b, a, GetHistoryDiff(b.History, a.History)))
	assert.Equal(t, b, UseOnTop(a, b, nil))
}

func TestUseNewer(t *testing.T) {
	a, b, diff := olderOnTopPair()
	assert.Equal(t, b, UseNewer(a, b, diff))
	assert.Equal(t, b, UseNewer(b, a, diff))

	tieA := buildField(write{"X", 5})
	tieB := buildField(write{"Y", 5})
	assert.Equal(t, tieA, UseNewer(tieA, tieB, nil))

	assert.Equal(t, a, UseNewer(nil, a, nil))
}

func TestUseNewerPlusTop_Restores(t *testing.T) {
	a, b, diff := olderOnTopPair()
	before := time.Now().UTC()

	field := UseNewerPlusTop(a, b, diff)
	require.Len(t, field.History, len(b.History)+1)
	assert.Equal(t, b.History, field.History[:len(b.History)])

	restored := field.History[len(field.History)-1]
	assert.Equal(t, a.History[3].Hash, restored.Hash)
	assert.False(t, restored.Date.Before(before))

	// the content follows the restored history
	assert.Equal(t, a.SerializedContent, field.SerializedContent)
	assert.Equal(t, locket.HashContent(field.SerializedContent), restored.Hash)

	// inputs are untouched
	assert.Len(t, b.History, 3)
	assert.Equal(t, base.Add(4*time.Second), a.History[3].Date)
}

func TestUseNewerPlusTop_NothingToRestore(t *testing.T) {
	a := buildField(write{"A", 1})
	b := buildField(write{"B", 2})
	assert.Equal(t, b, UseNewerPlusTop(a, b, nil))
}

func TestResolveWith(t *testing.T) {
	a, b, diff := olderOnTopPair()

	var got *locket.Field
	ResolveWith(UseA)(Conflict{A: a, B: b, Diff: diff}, func(f *locket.Field) { got = f })
	assert.Equal(t, a, got)
}
