// Package crawler drives a harvest run: it walks the planned partitions one at a time,
// pages through each, persists every page as soon as it arrives and stops at the target.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	crawlinfo "github.com/thep200/repo-harvester/internal/crawl_info"
	githubapi "github.com/thep200/repo-harvester/internal/github_api"
	"github.com/thep200/repo-harvester/internal/metrics"
	"github.com/thep200/repo-harvester/internal/model"
	"github.com/thep200/repo-harvester/internal/partition"
	"github.com/thep200/repo-harvester/pkg/kafka"
	"github.com/thep200/repo-harvester/pkg/log"
)

type PageFetcher interface {
	FetchPage(ctx context.Context, cur githubapi.CursorState) (*githubapi.Page, error)
}

type Store interface {
	Upsert(ctx context.Context, records []model.Record) (int, error)
}

// Publisher receives every persisted page. Optional.
type Publisher interface {
	PublishBatch(ctx context.Context, msgs []kafka.Message) error
}

type Options struct {
	Target      int
	StartOffset int
	// SplitOnOverflow halves a partition whose matches exceed the result ceiling instead of
	// abandoning it, down to MinWindow.
	SplitOnOverflow bool
	MinWindow       time.Duration
}

type Orchestrator struct {
	Logger    log.Logger
	Planner   *partition.Planner
	Fetcher   PageFetcher
	Store     Store
	Publisher Publisher
	opts      Options
	now       func() time.Time

	mu     sync.Mutex
	report *crawlinfo.Report
}

func NewOrchestrator(logger log.Logger, planner *partition.Planner, fetcher PageFetcher, store Store, publisher Publisher, opts Options) *Orchestrator {
	return &Orchestrator{
		Logger:    logger,
		Planner:   planner,
		Fetcher:   fetcher,
		Store:     store,
		Publisher: publisher,
		opts:      opts,
		now:       time.Now,
	}
}

// fatalError ends the run. Everything else only costs a partition.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Crawl runs until the target is reached, the partitions run out, ctx is cancelled or
// the store fails. Only a store failure returns an error; the report is returned in
// every case and reflects everything persisted.
func (o *Orchestrator) Crawl(ctx context.Context) (*crawlinfo.Report, error) {
	report := crawlinfo.NewReport(o.opts.Target, o.Planner.Count(), o.now())
	o.mu.Lock()
	o.report = report
	o.mu.Unlock()

	o.Logger.Info(ctx, "Starting harvest: target=%d partitions=%d offset=%d window=%dd",
		o.opts.Target, report.PartitionsPlanned, o.opts.StartOffset, o.Planner.WindowDays)

	err := o.run(ctx)

	o.update(func(r *crawlinfo.Report) {
		r.FinishedAt = o.now()
		switch {
		case err != nil:
			r.State = crawlinfo.StateFailed
		case r.Remaining() == 0:
			r.State = crawlinfo.StateTargetReached
		case ctx.Err() != nil:
			r.State = crawlinfo.StateCancelled
		default:
			r.State = crawlinfo.StateAllPartitionsDone
		}
	})

	final := o.Snapshot()
	o.logResult(ctx, &final)
	return &final, err
}

func (o *Orchestrator) run(ctx context.Context) error {
	if o.remaining() == 0 {
		return nil
	}
	for p := range o.Planner.Partitions(o.opts.StartOffset) {
		if ctx.Err() != nil {
			return nil
		}
		if err := o.crawlPartition(ctx, p); err != nil {
			return err
		}
		if o.remaining() == 0 || ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// crawlPartition works through p and whatever halves it is split into, oldest first.
func (o *Orchestrator) crawlPartition(ctx context.Context, root partition.Partition) error {
	o.update(func(r *crawlinfo.Report) {
		r.State = crawlinfo.StatePartitionActive
		r.CurrentPartition = root.Index
	})

	pending := []partition.Partition{root}
	for len(pending) > 0 {
		p := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		if p.Empty() {
			o.Logger.Debug(ctx, "Partition %s is empty, nothing to fetch", p)
			metrics.PartitionsTotal.WithLabelValues("empty").Inc()
			continue
		}

		cur, err := o.crawlWindow(ctx, p)

		var fatal *fatalError
		var overflow *githubapi.PartitionOverflowError
		switch {
		case err == nil:
		case errors.As(err, &fatal):
			return fatal.err
		case ctx.Err() != nil:
			return nil
		case errors.As(err, &overflow) && o.canSplit(p):
			left, right := p.Split()
			o.Logger.Warn(ctx, "Partition %s matches %d results (limit %d), splitting into %s and %s",
				p, overflow.Count, overflow.Limit, left, right)
			metrics.PartitionsTotal.WithLabelValues("split").Inc()
			o.update(func(r *crawlinfo.Report) { r.PartitionsSplit++ })
			pending = append(pending, right, left)
			continue
		default:
			o.abandon(ctx, cur, err)
		}

		if o.remaining() == 0 {
			break
		}
	}

	o.update(func(r *crawlinfo.Report) {
		r.State = crawlinfo.StatePartitionDone
		r.PartitionsDone++
	})
	return nil
}

// canSplit stops splitting at MinWindow, and at the one-second resolution of the search
// qualifier where a half would come out empty.
func (o *Orchestrator) canSplit(p partition.Partition) bool {
	return o.opts.SplitOnOverflow && p.Width() > o.opts.MinWindow && p.CanSplit()
}

// crawlWindow pages through p. It returns the cursor it stopped at.
func (o *Orchestrator) crawlWindow(ctx context.Context, p partition.Partition) (githubapi.CursorState, error) {
	cur := githubapi.NewCursor(p)
	// cursors handed out so far; one coming back means the pagination loops
	seen := make(map[string]struct{})
	for cur.HasMore {
		if err := ctx.Err(); err != nil {
			return cur, err
		}
		o.update(func(r *crawlinfo.Report) { r.State = crawlinfo.StatePageActive })

		page, err := o.Fetcher.FetchPage(ctx, cur)
		if err != nil {
			return cur, err
		}
		o.update(func(r *crawlinfo.Report) {
			r.PagesFetched++
			r.Retries += page.Retries
			r.RateLimitWaits += page.RateLimitWaits
		})
		if page.Retries > 0 {
			o.Logger.Info(ctx, "Page %d of %s needed %d retries", cur.Page+1, p, page.Retries)
		}

		records := page.Records
		if remaining := o.remaining(); len(records) > remaining {
			records = records[:remaining]
		}

		// a fetched page is committed even when the run is being cancelled
		n, err := o.Store.Upsert(context.WithoutCancel(ctx), records)
		if err != nil {
			return cur, &fatalError{err: fmt.Errorf("persist page %d of %s: %w", cur.Page+1, p, err)}
		}
		o.update(func(r *crawlinfo.Report) { r.Persisted += n })
		o.publish(ctx, p, records)

		o.Logger.Info(ctx, "Partition %s page %d: %d records persisted, %d remaining",
			p, cur.Page+1, n, o.remaining())

		if o.remaining() == 0 {
			return page.Next, nil
		}
		if page.Next.HasMore {
			if _, dup := seen[page.Next.Token]; dup {
				return page.Next, fmt.Errorf("%w: cursor %q of %s came back on page %d",
					githubapi.ErrCursorStalled, page.Next.Token, p, page.Next.Page)
			}
			seen[page.Next.Token] = struct{}{}
		}
		cur = page.Next
	}

	metrics.PartitionsTotal.WithLabelValues("done").Inc()
	return cur, nil
}

func (o *Orchestrator) abandon(ctx context.Context, cur githubapi.CursorState, err error) {
	o.Logger.Error(ctx, "Abandoning partition %s after %d pages (cursor %q): %v",
		cur.Partition, cur.Page, cur.Token, err)
	metrics.PartitionsTotal.WithLabelValues("abandoned").Inc()
	o.update(func(r *crawlinfo.Report) {
		r.Abandoned = append(r.Abandoned, crawlinfo.NewAbandoned(cur.Partition, cur.Page, cur.Token, err))
	})
}

func (o *Orchestrator) publish(ctx context.Context, p partition.Partition, records []model.Record) {
	if o.Publisher == nil || len(records) == 0 {
		return
	}
	observedAt := o.now()
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, kafka.Message{Key: rec.Key(), Value: model.NewRecordMessage(rec, p.Index, observedAt)})
	}
	if err := o.Publisher.PublishBatch(ctx, msgs); err != nil {
		o.Logger.Warn(ctx, "Cannot publish %d records of %s: %v", len(msgs), p, err)
		return
	}
	o.update(func(r *crawlinfo.Report) { r.Published += len(msgs) })
}

// Snapshot returns a copy of the current run's report, or a zero report before the first run.
func (o *Orchestrator) Snapshot() crawlinfo.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.report == nil {
		return crawlinfo.Report{}
	}
	return o.report.Clone()
}

func (o *Orchestrator) update(fn func(r *crawlinfo.Report)) {
	o.mu.Lock()
	fn(o.report)
	o.mu.Unlock()
}

func (o *Orchestrator) remaining() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.report.Remaining()
}

func (o *Orchestrator) logResult(ctx context.Context, r *crawlinfo.Report) {
	o.Logger.Notice(ctx, "Harvest finished in %v: %s", r.Duration().Round(time.Second), r)
	for _, a := range r.Abandoned {
		o.Logger.Warn(ctx, "Abandoned partition #%d [%s, %s) after %d pages, cursor %q: %s",
			a.Index, a.Start.Format(time.RFC3339), a.End.Format(time.RFC3339), a.Pages, a.Cursor, a.Reason)
	}
	if r.State == crawlinfo.StateCancelled {
		o.Logger.Notice(ctx, "Run interrupted; resume with --start-offset %d", max(r.CurrentPartition, 0))
	}
}
