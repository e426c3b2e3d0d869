package merge

import (
	"time"

	"github.com/i5heu/ouroboros-locket/pkg/locket"
	"github.com/i5heu/ouroboros-locket/pkg/pancake"
)

// Strategy picks the field for a conflicting pair. Strategies return deep
// copies.
type Strategy func(a, b *locket.Field, diff *HistoryDiff) *locket.Field

// ResolveWith turns a strategy into a handler resolving right away.
func ResolveWith(strategy Strategy) ConflictHandler {
	return func(c Conflict, resolve ResolveFunc) {
		resolve(strategy(c.A, c.B, c.Diff))
	}
}

func UseA(a, b *locket.Field, diff *HistoryDiff) *locket.Field {
	return a.Clone()
}

func UseB(a, b *locket.Field, diff *HistoryDiff) *locket.Field {
	return b.Clone()
}

// UseOnTop prefers the side with history since the common entry, B if
// neither or both have.
func UseOnTop(a, b *locket.Field, diff *HistoryDiff) *locket.Field {
	if diff != nil && len(diff.HistorySinceA) > 0 {
		return a.Clone()
	}
	return b.Clone()
}

// UseNewer prefers the side written last, A on a tie. This discards the on
// top changes in an older on top conflict.
func UseNewer(a, b *locket.Field, diff *HistoryDiff) *locket.Field {
	if a.IsEmpty() {
		return b.Clone()
	}
	if b.IsEmpty() {
		return a.Clone()
	}
	if !latestDate(a).Before(latestDate(b)) {
		return a.Clone()
	}
	return b.Clone()
}

// UseNewerPlusTop takes the newer side and puts the history since the common
// entry of the side on top back onto it, dated now. The content becomes the
// content of that side, so the changes of an older on top conflict are
// restored instead of discarded.
func UseNewerPlusTop(a, b *locket.Field, diff *HistoryDiff) *locket.Field {
	field := UseNewer(a, b, diff)
	if diff == nil {
		return field
	}

	toRestore, restoredFrom := diff.HistorySinceA, a
	if len(toRestore) == 0 {
		toRestore, restoredFrom = diff.HistorySinceB, b
	}
	if len(toRestore) == 0 {
		return field
	}

	now := time.Now().UTC()
	for _, entry := range toRestore {
		entry.Date = now
		field.History = append(field.History, entry)
	}
	field.SerializedContent = pancake.Clone(restoredFrom.SerializedContent)

	return field
}
