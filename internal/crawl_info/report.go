// Package crawlinfo describes the progress and result of one harvest run.
package crawlinfo

import (
	"fmt"
	"time"

	"github.com/thep200/repo-harvester/internal/partition"
)

type State string

const (
	StatePlanning          State = "planning"
	StatePartitionActive   State = "partition_active"
	StatePageActive        State = "page_active"
	StatePartitionDone     State = "partition_done"
	StateAllPartitionsDone State = "all_partitions_done"
	StateTargetReached     State = "target_reached"
	StateCancelled         State = "cancelled"
	StateFailed            State = "failed"
)

// Terminal reports whether a run in state s has ended.
func (s State) Terminal() bool {
	switch s {
	case StateAllPartitionsDone, StateTargetReached, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Abandoned is a partition given up on, with enough detail to resume it by hand.
type Abandoned struct {
	Index  int       `json:"index"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Pages  int       `json:"pages"`
	Cursor string    `json:"cursor,omitempty"`
	Reason string    `json:"reason"`
}

func NewAbandoned(p partition.Partition, pages int, cursor string, err error) Abandoned {
	return Abandoned{
		Index:  p.Index,
		Start:  p.Start,
		End:    p.End,
		Pages:  pages,
		Cursor: cursor,
		Reason: err.Error(),
	}
}

type Report struct {
	State             State       `json:"state"`
	StartedAt         time.Time   `json:"started_at"`
	FinishedAt        time.Time   `json:"finished_at,omitempty"`
	Target            int         `json:"target"`
	// Persisted counts records written, inserts and refreshes of existing rows alike.
	// Records repeated within one page are counted once.
	Persisted         int         `json:"persisted"`
	Published         int         `json:"published"`
	PartitionsPlanned int         `json:"partitions_planned"`
	PartitionsDone    int         `json:"partitions_done"`
	PartitionsSplit   int         `json:"partitions_split"`
	CurrentPartition  int         `json:"current_partition"`
	PagesFetched      int         `json:"pages_fetched"`
	Retries           int         `json:"retries"`
	RateLimitWaits    int         `json:"rate_limit_waits"`
	Abandoned         []Abandoned `json:"abandoned"`
}

func NewReport(target, planned int, startedAt time.Time) *Report {
	return &Report{
		State:             StatePlanning,
		StartedAt:         startedAt,
		Target:            target,
		PartitionsPlanned: planned,
		CurrentPartition:  -1,
		Abandoned:         []Abandoned{},
	}
}

// Remaining is how many records are still needed to reach the target.
func (r *Report) Remaining() int {
	if r.Persisted >= r.Target {
		return 0
	}
	return r.Target - r.Persisted
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *Report) Clone() Report {
	c := *r
	c.Abandoned = append([]Abandoned(nil), r.Abandoned...)
	return c
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) String() string {
	return fmt.Sprintf("state=%s persisted=%d/%d partitions=%d/%d abandoned=%d pages=%d retries=%d quota_waits=%d",
		r.State, r.Persisted, r.Target, r.PartitionsDone, r.PartitionsPlanned, len(r.Abandoned),
		r.PagesFetched, r.Retries, r.RateLimitWaits)
}
