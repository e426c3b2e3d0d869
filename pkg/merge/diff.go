package merge

import (
	"github.com/i5heu/ouroboros-locket/pkg/locket"
)

// HistoryDiff describes two histories relative to their latest common
// entry. Since slices hold the entries after the common entry, Until slices
// the entries before it, both in chronological order.
type HistoryDiff struct {
	Hash          locket.Hash
	LatestCommonA locket.HistoryEntry
	LatestCommonB locket.HistoryEntry
	HistorySinceA []locket.HistoryEntry
	HistorySinceB []locket.HistoryEntry
	HistoryUntilA []locket.HistoryEntry
	HistoryUntilB []locket.HistoryEntry
}

// GetHistoryDiff finds the latest common entry of a and b and returns nil if
// there is none. The common entry is the one latest in a; if its hash occurs
// more than once in b, the latest occurrence in b is used.
func GetHistoryDiff(a, b []locket.HistoryEntry) *HistoryDiff {
	if len(b) == 0 {
		return nil
	}

	lastInB := make(map[locket.Hash]int, len(b))
	for i, entry := range b {
		lastInB[entry.Hash] = i
	}

	for i := len(a) - 1; i >= 0; i-- {
		j, found := lastInB[a[i].Hash]
		if !found {
			continue
		}
		return &HistoryDiff{
			Hash:          a[i].Hash,
			LatestCommonA: a[i],
			LatestCommonB: b[j],
			HistorySinceA: copyEntries(a[i+1:]),
			HistorySinceB: copyEntries(b[j+1:]),
			HistoryUntilA: copyEntries(a[:i]),
			HistoryUntilB: copyEntries(b[:j]),
		}
	}

	return nil
}

func copyEntries(entries []locket.HistoryEntry) []locket.HistoryEntry {
	out := make([]locket.HistoryEntry, len(entries))
	copy(out, entries)
	return out
}
