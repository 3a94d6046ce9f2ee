package limiter

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/thep200/repo-harvester/internal/metrics"
	"github.com/thep200/repo-harvester/pkg/log"
	"golang.org/x/time/rate"
)

type Options struct {
	// LowWater is the remaining-call count under which BeforeCall sleeps until the reset.
	LowWater int
	// SafetyMargin is added to every reset timestamp.
	SafetyMargin time.Duration
	// ResetFallback is waited on a hard block whose reset time is unknown or already past.
	ResetFallback time.Duration
	// MinInterval spaces consecutive calls; zero disables pacing.
	MinInterval time.Duration
}

// QuotaStore persists QuotaState between runs.
type QuotaStore interface {
	Load(ctx context.Context) (QuotaState, bool, error)
	Save(ctx context.Context, state QuotaState, ttl time.Duration) error
}

type RateLimiter struct {
	Logger log.Logger
	opts   Options
	pacer  *rate.Limiter
	store  QuotaStore
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state QuotaState
}

func NewRateLimiter(logger log.Logger, opts Options, store QuotaStore) *RateLimiter {
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	return &RateLimiter{
		Logger: logger,
		opts:   opts,
		pacer:  rate.NewLimiter(limit, 1),
		store:  store,
		now:    time.Now,
		sleep:  Sleep,
	}
}

// Restore loads a quota persisted by an earlier run, so a run started inside a blocked
// window waits instead of spending a call to find out.
func (r *RateLimiter) Restore(ctx context.Context) {
	if r.store == nil {
		return
	}
	state, ok, err := r.store.Load(ctx)
	if err != nil {
		r.Logger.Warn(ctx, "Cannot restore quota state: %v", err)
		return
	}
	if !ok || !state.ResetAt.After(r.now()) {
		return
	}
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
	r.Logger.Info(ctx, "Restored quota state: remaining=%d reset_at=%s", state.Remaining, state.ResetAt.Format(time.RFC3339))
}

// State returns a copy of the current quota.
func (r *RateLimiter) State() QuotaState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// WaitDuration is how long BeforeCall would sleep right now for the reset. Never negative.
func (r *RateLimiter) WaitDuration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.untilReset()
}

func (r *RateLimiter) untilReset() time.Duration {
	if r.state.ResetAt.IsZero() {
		return 0
	}
	d := r.state.ResetAt.Add(r.opts.SafetyMargin).Sub(r.now())
	if d < 0 {
		return 0
	}
	return d
}

// BeforeCall blocks until the quota permits another call. An exhausted quota waits for the
// reset whatever LowWater says.
func (r *RateLimiter) BeforeCall(ctx context.Context) error {
	r.mu.Lock()
	var wait time.Duration
	if r.state.Exhausted() || (r.state.Known && r.state.Remaining < r.opts.LowWater) {
		wait = r.untilReset()
	}
	remaining := r.state.Remaining
	r.mu.Unlock()

	if wait > 0 {
		r.Logger.Warn(ctx, "Quota nearly exhausted (remaining=%d), sleeping %v until reset", remaining, wait.Round(time.Second))
		metrics.RateLimitWaitSeconds.WithLabelValues("low_water").Observe(wait.Seconds())
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
		r.forget()
	}
	return r.pacer.Wait(ctx)
}

// WaitForReset handles a hard block: it always sleeps the full reset interval, whatever
// the low-water mark says.
func (r *RateLimiter) WaitForReset(ctx context.Context) error {
	r.mu.Lock()
	wait := r.state.RetryAfter
	if wait <= 0 {
		wait = r.untilReset()
	}
	if wait <= 0 {
		wait = r.opts.ResetFallback
	}
	r.mu.Unlock()

	r.Logger.Warn(ctx, "Rate limit hit, waiting %v before retrying", wait.Round(time.Second))
	metrics.RateLimitWaitSeconds.WithLabelValues("blocked").Observe(wait.Seconds())
	if err := r.sleep(ctx, wait); err != nil {
		return err
	}
	r.forget()
	return nil
}

// Observe updates the quota from a response. Headers that are absent keep their old value.
func (r *RateLimiter) Observe(ctx context.Context, h http.Header) {
	observed, ok := parseHeaders(h, r.now())
	if !ok {
		return
	}

	r.mu.Lock()
	if observed.Known {
		r.state.Remaining = observed.Remaining
		r.state.Known = true
	}
	if !observed.ResetAt.IsZero() {
		r.state.ResetAt = observed.ResetAt
	}
	r.state.RetryAfter = observed.RetryAfter
	state := r.state
	ttl := r.untilReset()
	r.mu.Unlock()

	if state.Known {
		metrics.QuotaRemaining.Set(float64(state.Remaining))
	}
	r.Logger.Debug(ctx, "Quota remaining=%d reset_at=%s", state.Remaining, state.ResetAt.Format(time.RFC3339))

	if r.store != nil && ttl > 0 {
		if err := r.store.Save(ctx, state, ttl); err != nil {
			r.Logger.Warn(ctx, "Cannot persist quota state: %v", err)
		}
	}
}

// forget drops the quota after a reset has passed; the next response refreshes it.
func (r *RateLimiter) forget() {
	r.mu.Lock()
	r.state = QuotaState{}
	r.mu.Unlock()
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
