// Package partition splits the creation-time span into windows small enough to paginate to
// completion under the search API's result ceiling.
package partition

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Partition is the half-open creation-time window [Start, End).
type Partition struct {
	Index int
	Start time.Time
	End   time.Time
}

func New(index int, start, end time.Time) Partition {
	return Partition{Index: index, Start: start.UTC(), End: end.UTC()}
}

// Empty reports a zero-width or inverted window. Nothing is fetched for it.
func (p Partition) Empty() bool {
	return !p.End.After(p.Start)
}

func (p Partition) Width() time.Duration {
	if p.Empty() {
		return 0
	}
	return p.End.Sub(p.Start)
}

// Split halves the window at its midpoint, truncated to the second. Both halves keep the
// parent's index so log lines still point at the planner offset to resume from.
func (p Partition) Split() (Partition, Partition) {
	mid := p.Start.Add(p.Width() / 2).Truncate(time.Second)
	return Partition{Index: p.Index, Start: p.Start, End: mid},
		Partition{Index: p.Index, Start: mid, End: p.End}
}

// CanSplit reports whether Split yields two non-empty halves. Windows under two seconds
// cannot be halved at second resolution.
func (p Partition) CanSplit() bool {
	left, right := p.Split()
	return !left.Empty() && !right.Empty()
}

func (p Partition) String() string {
	layout := dayLayout
	if !isMidnight(p.Start) || !isMidnight(p.End) {
		layout = time.RFC3339
	}
	return fmt.Sprintf("#%d [%s, %s)", p.Index, p.Start.Format(layout), p.End.Format(layout))
}

func isMidnight(t time.Time) bool {
	return t.Equal(t.Truncate(24 * time.Hour))
}
