package partition

import (
	"fmt"
	"iter"
	"time"
)

// Planner produces fixed-width calendar windows across [Start, End), oldest first.
type Planner struct {
	Start      time.Time
	End        time.Time
	WindowDays int
}

func NewPlanner(start, end time.Time, windowDays int) (*Planner, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("window width must be positive, got %d days", windowDays)
	}
	return &Planner{Start: start.UTC(), End: end.UTC(), WindowDays: windowDays}, nil
}

// Partitions yields the windows starting at offset. The sequence is finite and can be
// restarted from any offset, e.g. one taken from a previous run's log.
func (p *Planner) Partitions(offset int) iter.Seq[Partition] {
	return func(yield func(Partition) bool) {
		if offset < 0 {
			offset = 0
		}
		for i := offset; ; i++ {
			start := p.Start.AddDate(0, 0, i*p.WindowDays)
			if !start.Before(p.End) {
				return
			}
			end := start.AddDate(0, 0, p.WindowDays)
			if end.After(p.End) {
				end = p.End
			}
			if !yield(New(i, start, end)) {
				return
			}
		}
	}
}

// Count returns how many windows the full span produces.
func (p *Planner) Count() int {
	n := 0
	for range p.Partitions(0) {
		n++
	}
	return n
}
