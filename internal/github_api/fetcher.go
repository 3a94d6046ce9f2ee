package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/thep200/repo-harvester/cfg"
	"github.com/thep200/repo-harvester/internal/limiter"
	"github.com/thep200/repo-harvester/internal/metrics"
	"github.com/thep200/repo-harvester/internal/model"
	"github.com/thep200/repo-harvester/internal/partition"
	"github.com/thep200/repo-harvester/internal/retry"
	"github.com/thep200/repo-harvester/pkg/log"
)

const rateLimitedType = "RATE_LIMITED"

// CursorState is the pagination position inside one partition. It is replaced after every
// page, never mutated.
type CursorState struct {
	Partition partition.Partition
	Token     string
	HasMore   bool
	Page      int
}

// NewCursor starts a partition. An empty partition has nothing to fetch.
func NewCursor(p partition.Partition) CursorState {
	return CursorState{Partition: p, HasMore: !p.Empty()}
}

type Page struct {
	Records        []model.Record
	Next           CursorState
	TotalCount     int
	Retries        int
	RateLimitWaits int
}

// Gate is the quota bookkeeping a Fetcher needs around each call.
type Gate interface {
	BeforeCall(ctx context.Context) error
	Observe(ctx context.Context, h http.Header)
}

type FetchOptions struct {
	Query QueryOptions
	// MaxResults is how many results the search pages through per query; 0 disables the check.
	MaxResults int
}

func FetchOptionsFromConfig(c cfg.Crawl) FetchOptions {
	return FetchOptions{
		Query:      QueryOptions{Filter: c.SearchFilter, PageSize: c.PageSize},
		MaxResults: c.MaxResults,
	}
}

type Fetcher struct {
	Logger log.Logger
	Caller *Caller
	Gate   Gate
	Policy *retry.Policy
	opts   FetchOptions
}

func NewFetcher(logger log.Logger, caller *Caller, gate Gate, policy *retry.Policy, opts FetchOptions) *Fetcher {
	return &Fetcher{
		Logger: logger,
		Caller: caller,
		Gate:   gate,
		Policy: policy,
		opts:   opts,
	}
}

// FetchPage fetches the page cur points at. Failures come back classified: errors.Is
// against ErrRetryExhausted, ErrQueryRejected, ErrMalformedResponse, ErrPartitionOverflow
// or ErrCursorStalled tells the caller what happened.
func (f *Fetcher) FetchPage(ctx context.Context, cur CursorState) (*Page, error) {
	if cur.Partition.Empty() || !cur.HasMore {
		return &Page{Next: CursorState{Partition: cur.Partition, Token: cur.Token, Page: cur.Page}}, nil
	}

	query := BuildSearchQuery(cur.Partition, cur.Token, f.opts.Query)
	start := time.Now()
	res := retry.Execute(ctx, f.Policy, func(ctx context.Context) (*Page, error) {
		return f.attempt(ctx, cur, query)
	})
	metrics.FetchDurationSeconds.Observe(time.Since(start).Seconds())

	if res.Outcome != retry.Success {
		return nil, fmt.Errorf("fetch page %d of partition %s: %w", cur.Page+1, cur.Partition, res.Err)
	}

	page := res.Value
	page.Retries = res.Retries
	page.RateLimitWaits = res.RateLimitWaits
	metrics.PagesFetchedTotal.Inc()
	return page, nil
}

func (f *Fetcher) attempt(ctx context.Context, cur CursorState, query Query) (*Page, error) {
	if err := f.Gate.BeforeCall(ctx); err != nil {
		return nil, err
	}

	resp, err := f.Caller.Post(ctx, query)
	if err != nil {
		return nil, retry.Transient(err)
	}
	f.Gate.Observe(ctx, resp.Header)

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}
	return f.parse(cur, resp.Body)
}

func classifyStatus(resp *Response) error {
	code := resp.StatusCode
	if code == http.StatusOK {
		return nil
	}

	statusErr := &StatusError{StatusCode: code, Body: model.TruncateString(strings.TrimSpace(string(resp.Body)), 200)}
	switch {
	case code == http.StatusUnauthorized:
		return retry.Permanent(fmt.Errorf("bad credential: %w", statusErr))
	case code == http.StatusTooManyRequests, code == http.StatusForbidden && quotaBlocked(resp.Header):
		return retry.RateLimited(statusErr)
	case code >= http.StatusInternalServerError:
		return retry.Transient(statusErr)
	default:
		return retry.Permanent(statusErr)
	}
}

func quotaBlocked(h http.Header) bool {
	return h.Get(limiter.HeaderRemaining) == "0" || h.Get(limiter.HeaderRetryAfter) != ""
}

func (f *Fetcher) parse(cur CursorState, body []byte) (*Page, error) {
	var env graphQLResponse
	if err := json.Unmarshal(body, &env); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, retry.Permanent(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
		}
		// a cut-off body is worth another try
		return nil, retry.Transient(fmt.Errorf("decode response: %w", err))
	}

	if len(env.Errors) > 0 {
		messages := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			if e.Type == rateLimitedType {
				return nil, retry.RateLimited(fmt.Errorf("%w: %s", ErrQueryRejected, e.Message))
			}
			messages = append(messages, e.Message)
		}
		return nil, retry.Permanent(fmt.Errorf("%w: %s", ErrQueryRejected, strings.Join(messages, "; ")))
	}

	search, err := requireSearch(env)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	total := 0
	if search.RepositoryCount != nil {
		total = *search.RepositoryCount
	}
	if cur.Page == 0 && f.opts.MaxResults > 0 && total > f.opts.MaxResults {
		return nil, retry.Permanent(&PartitionOverflowError{Partition: cur.Partition, Count: total, Limit: f.opts.MaxResults})
	}

	records := make([]model.Record, 0, len(*search.Nodes))
	for i, node := range *search.Nodes {
		rec, err := toRecord(node)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("%w: node %d: %v", ErrMalformedResponse, i, err))
		}
		records = append(records, rec)
	}

	next := CursorState{Partition: cur.Partition, Page: cur.Page + 1, HasMore: *search.PageInfo.HasNextPage, Token: cur.Token}
	if search.PageInfo.EndCursor != nil && *search.PageInfo.EndCursor != "" {
		next.Token = *search.PageInfo.EndCursor
	}
	if next.HasMore && (next.Token == "" || next.Token == cur.Token) {
		return nil, retry.Permanent(fmt.Errorf("%w: page %d of %s", ErrCursorStalled, next.Page, cur.Partition))
	}

	return &Page{Records: records, Next: next, TotalCount: total}, nil
}

func requireSearch(env graphQLResponse) (*searchResult, error) {
	switch {
	case env.Data == nil || env.Data.Search == nil:
		return nil, fmt.Errorf("%w: missing data.search", ErrMalformedResponse)
	case env.Data.Search.PageInfo == nil || env.Data.Search.PageInfo.HasNextPage == nil:
		return nil, fmt.Errorf("%w: missing pageInfo", ErrMalformedResponse)
	case env.Data.Search.Nodes == nil:
		return nil, fmt.Errorf("%w: missing nodes", ErrMalformedResponse)
	}
	return env.Data.Search, nil
}

func toRecord(node *repositoryNode) (model.Record, error) {
	switch {
	case node == nil:
		return model.Record{}, errors.New("null node")
	case node.Name == nil || *node.Name == "":
		return model.Record{}, errors.New("missing name")
	case node.Owner == nil || node.Owner.Login == nil || *node.Owner.Login == "":
		return model.Record{}, errors.New("missing owner.login")
	}

	stars := 0
	if node.StargazerCount != nil {
		stars = *node.StargazerCount
	}
	if stars < 0 {
		return model.Record{}, fmt.Errorf("negative stargazerCount %d", stars)
	}

	rec := model.Record{
		OwnerName:       *node.Owner.Login,
		EntityName:      *node.Name,
		PopularityScore: stars,
	}
	if node.CreatedAt != nil {
		created := node.CreatedAt.UTC()
		rec.CreatedAt = &created
	}
	return rec, nil
}
