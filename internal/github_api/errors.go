package githubapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/thep200/repo-harvester/internal/partition"
)

var (
	// ErrQueryRejected is returned when the response carries a GraphQL error list.
	ErrQueryRejected = errors.New("query rejected")
	// ErrMalformedResponse is returned for a body missing required fields or with wrong types.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrPartitionOverflow is returned when a partition matches more results than the
	// search can page through.
	ErrPartitionOverflow = errors.New("partition overflows result ceiling")
	// ErrCursorStalled is returned when more pages are announced without a new cursor.
	ErrCursorStalled = errors.New("cursor did not advance")
)

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// PartitionOverflowError carries the match count that exceeded the ceiling.
type PartitionOverflowError struct {
	Partition partition.Partition
	Count     int
	Limit     int
}

func (e *PartitionOverflowError) Error() string {
	return fmt.Sprintf("partition %s matches %d results, only %d reachable", e.Partition, e.Count, e.Limit)
}

func (e *PartitionOverflowError) Is(target error) bool {
	return target == ErrPartitionOverflow
}
