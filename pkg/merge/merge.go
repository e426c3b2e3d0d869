// Package merge reconciles two lockets field by field, using the field
// histories to find the latest common write.
//
// Every field pair falls into one of five scenarios. Scenarios 1 to 3 are
// resolved automatically; 4 and 5 are conflicts that are handed to a
// ConflictHandler, which must call its resolve function exactly once.
package merge

import (
	"fmt"
	"time"

	"github.com/i5heu/ouroboros-locket/pkg/locket"
)

type Scenario int

const (
	// NewCopy: one side has no history, the other side is copied.
	NewCopy Scenario = iota + 1
	// Sync: both latest entries are the common entry, the side with the
	// later common entry is copied.
	Sync
	// NewerOnTop: only one side moved on and it was also written last.
	NewerOnTop
	// OlderOnTop: only one side moved on, but the other side was written
	// later. The changes look like they revert the other side.
	OlderOnTop
	// Divergent: no common entry, or both sides moved on.
	Divergent
)

func (s Scenario) String() string {
	switch s {
	case NewCopy:
		return "new copy"
	case Sync:
		return "sync"
	case NewerOnTop:
		return "newer on top"
	case OlderOnTop:
		return "older on top"
	case Divergent:
		return "divergent"
	}
	return fmt.Sprintf("scenario(%d)", int(s))
}

// Conflict is everything a ConflictHandler gets to decide on. Diff is nil
// for divergent fields without any common entry. The lockets are only set
// when merging whole lockets.
type Conflict struct {
	FieldName string
	A         *locket.Field
	B         *locket.Field
	Diff      *HistoryDiff
	Scenario  Scenario
	LocketA   *locket.Locket
	LocketB   *locket.Locket
}

// Result is the outcome of classifying a field pair: either a resolved
// field or a conflict.
type Result struct {
	Scenario Scenario
	Field    *locket.Field
	Conflict *Conflict
}

// ResolveFunc hands over the field chosen for the merged locket. A nil field
// leaves the field out.
type ResolveFunc func(field *locket.Field)

// ConflictHandler decides a conflict, now or later, by calling resolve once.
type ConflictHandler func(c Conflict, resolve ResolveFunc)

// Classify sorts a field pair into its scenario. Resolved fields are deep
// copies; a and b are never modified or aliased.
func Classify(a, b *locket.Field) Result {
	if a.IsEmpty() && b.IsEmpty() {
		return Result{Scenario: NewCopy, Field: locket.NewField()}
	}
	if a.IsEmpty() {
		return Result{Scenario: NewCopy, Field: b.Clone()}
	}
	if b.IsEmpty() {
		return Result{Scenario: NewCopy, Field: a.Clone()}
	}

	diff := GetHistoryDiff(a.History, b.History)
	if diff == nil || (len(diff.HistorySinceA) > 0 && len(diff.HistorySinceB) > 0) {
		return conflict(a, b, diff, Divergent)
	}

	if len(diff.HistorySinceA) == 0 && len(diff.HistorySinceB) == 0 {
		if !diff.LatestCommonA.Date.Before(diff.LatestCommonB.Date) {
			return Result{Scenario: Sync, Field: a.Clone()}
		}
		return Result{Scenario: Sync, Field: b.Clone()}
	}

	aIsNewer := !latestDate(a).Before(latestDate(b))
	if len(diff.HistorySinceA) > 0 {
		if aIsNewer {
			return Result{Scenario: NewerOnTop, Field: a.Clone()}
		}
		return conflict(a, b, diff, OlderOnTop)
	}
	if aIsNewer {
		return conflict(a, b, diff, OlderOnTop)
	}
	return Result{Scenario: NewerOnTop, Field: b.Clone()}
}

func conflict(a, b *locket.Field, diff *HistoryDiff, scenario Scenario) Result {
	return Result{
		Scenario: scenario,
		Conflict: &Conflict{A: a, B: b, Diff: diff, Scenario: scenario},
	}
}

// MergeFields classifies a field pair and calls exactly one of onConflict
// and onResolve. A non-zero override replaces the scenario passed to
// onConflict.
func MergeFields(a, b *locket.Field, onConflict ConflictHandler, onResolve ResolveFunc, override Scenario) {
	result := Classify(a, b)
	if result.Conflict == nil {
		onResolve(result.Field)
		return
	}

	c := *result.Conflict
	if override != 0 {
		c.Scenario = override
	}
	onConflict(c, onResolve)
}

func latestDate(f *locket.Field) time.Time {
	entry, _ := f.Latest()
	return entry.Date
}
