package partition

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPlanner_ContiguousOldestFirst(t *testing.T) {
	planner, err := NewPlanner(day(2024, 1, 1), day(2024, 3, 15), 30)
	require.NoError(t, err)

	parts := slices.Collect(planner.Partitions(0))
	require.Len(t, parts, 3)
	assert.Equal(t, 3, planner.Count())

	assert.Equal(t, day(2024, 1, 1), parts[0].Start)
	assert.Equal(t, day(2024, 1, 31), parts[0].End)
	assert.Equal(t, day(2024, 3, 1), parts[1].End)
	// last window is clipped to the span
	assert.Equal(t, day(2024, 3, 15), parts[2].End)

	for i := range parts {
		assert.Equal(t, i, parts[i].Index)
		assert.False(t, parts[i].Empty())
		if i > 0 {
			assert.Equal(t, parts[i-1].End, parts[i].Start, "windows must be contiguous")
		}
	}
}

func TestPlanner_RestartFromOffset(t *testing.T) {
	planner, err := NewPlanner(day(2024, 1, 1), day(2024, 12, 31), 30)
	require.NoError(t, err)

	all := slices.Collect(planner.Partitions(0))
	resumed := slices.Collect(planner.Partitions(4))

	require.Len(t, resumed, len(all)-4)
	assert.Equal(t, all[4:], resumed)

	assert.Empty(t, slices.Collect(planner.Partitions(len(all))))
	assert.Equal(t, all, slices.Collect(planner.Partitions(-3)))
}

func TestPlanner_StopsWhenConsumerStops(t *testing.T) {
	planner, err := NewPlanner(day(2000, 1, 1), day(2024, 1, 1), 1)
	require.NoError(t, err)

	n := 0
	for range planner.Partitions(0) {
		n++
		if n == 5 {
			break
		}
	}
	assert.Equal(t, 5, n)
}

func TestPlanner_ZeroOrInvertedSpan(t *testing.T) {
	for name, end := range map[string]time.Time{
		"zero width": day(2024, 1, 1),
		"inverted":   day(2023, 6, 1),
	} {
		t.Run(name, func(t *testing.T) {
			planner, err := NewPlanner(day(2024, 1, 1), end, 30)
			require.NoError(t, err)
			assert.Empty(t, slices.Collect(planner.Partitions(0)))
		})
	}
}

func TestPlanner_RejectsNonPositiveWidth(t *testing.T) {
	_, err := NewPlanner(day(2024, 1, 1), day(2025, 1, 1), 0)
	assert.Error(t, err)
}

func TestPartition_EmptyAndSplit(t *testing.T) {
	assert.True(t, New(0, day(2024, 1, 2), day(2024, 1, 1)).Empty())
	assert.True(t, New(0, day(2024, 1, 1), day(2024, 1, 1)).Empty())

	p := New(7, day(2024, 1, 1), day(2024, 1, 3))
	left, right := p.Split()
	assert.Equal(t, day(2024, 1, 2), left.End)
	assert.Equal(t, left.End, right.Start)
	assert.Equal(t, p.End, right.End)
	assert.Equal(t, 7, right.Index)

	assert.Equal(t, "#7 [2024-01-01, 2024-01-03)", p.String())
}

func TestPartition_CanSplitStopsAtOneSecond(t *testing.T) {
	start := day(2024, 1, 1)
	assert.True(t, New(0, start, start.Add(2*time.Second)).CanSplit())

	oneSecond := New(0, start, start.Add(time.Second))
	left, right := oneSecond.Split()
	assert.True(t, left.Empty())
	assert.Equal(t, oneSecond, right)
	assert.False(t, oneSecond.CanSplit())
	assert.False(t, New(0, start, start).CanSplit())
}
