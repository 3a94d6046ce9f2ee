package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/thep200/repo-harvester/internal/limiter"
	"github.com/thep200/repo-harvester/internal/metrics"
	"github.com/thep200/repo-harvester/pkg/log"
)

// ErrRetryExhausted is wrapped by the error of a Result whose attempts ran out. Callers skip
// the unit of work; it is never fatal to a run.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

type Outcome int

const (
	Success Outcome = iota
	RetryExhausted
	PermanentFailure
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RetryExhausted:
		return "retry_exhausted"
	case PermanentFailure:
		return "permanent"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// RateWaiter sits out a hard quota block.
type RateWaiter interface {
	WaitForReset(ctx context.Context) error
}

type Options struct {
	// MaxAttempts bounds attempts lost to transient failures, the first one included.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Multiplier  float64
	// Jitter is the randomization factor applied to each backoff, 0 for none.
	Jitter float64
	// MaxRateLimitWaits bounds quota waits, which do not count as attempts. Zero means no bound.
	MaxRateLimitWaits int
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:       3,
		BaseBackoff:       time.Second,
		MaxBackoff:        30 * time.Second,
		Multiplier:        2,
		Jitter:            0.2,
		MaxRateLimitWaits: 5,
	}
}

type Policy struct {
	Logger log.Logger
	Waiter RateWaiter
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewPolicy(logger log.Logger, opts Options, waiter RateWaiter) *Policy {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2
	}
	return &Policy{
		Logger: logger,
		Waiter: waiter,
		opts:   opts,
		sleep:  limiter.Sleep,
	}
}

// Result is the tagged outcome of Execute.
type Result[T any] struct {
	Value          T
	Outcome        Outcome
	Attempts       int
	Retries        int
	RateLimitWaits int
	Err            error
}

func (p *Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.BaseBackoff
	b.MaxInterval = p.opts.MaxBackoff
	b.Multiplier = p.opts.Multiplier
	b.RandomizationFactor = p.opts.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Execute runs op until it succeeds, fails permanently, runs out of attempts or ctx ends.
func Execute[T any](ctx context.Context, p *Policy, op func(context.Context) (T, error)) Result[T] {
	var res Result[T]
	b := p.newBackOff()
	failures := 0

	cancelled := func(err error) Result[T] {
		res.Outcome = Cancelled
		res.Err = err
		return res
	}

	for {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}

		res.Attempts++
		value, err := op(ctx)
		if err == nil {
			res.Value = value
			res.Outcome = Success
			if res.Retries > 0 || res.RateLimitWaits > 0 {
				p.Logger.Info(ctx, "Succeeded after %d retries and %d quota waits", res.Retries, res.RateLimitWaits)
			}
			return res
		}
		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}

		class := Classify(err)
		switch class {
		case ClassPermanent:
			res.Outcome = PermanentFailure
			res.Err = err
			return res

		case ClassCancelled:
			return cancelled(err)

		case ClassRateLimited:
			res.RateLimitWaits++
			if p.opts.MaxRateLimitWaits > 0 && res.RateLimitWaits > p.opts.MaxRateLimitWaits {
				metrics.RetryExhaustedTotal.Inc()
				res.Outcome = RetryExhausted
				res.Err = fmt.Errorf("%w after %d quota waits: %w", ErrRetryExhausted, p.opts.MaxRateLimitWaits, err)
				return res
			}
			metrics.RetriesTotal.WithLabelValues(class.String()).Inc()
			var waitErr error
			if p.Waiter != nil {
				waitErr = p.Waiter.WaitForReset(ctx)
			} else {
				waitErr = p.sleep(ctx, b.NextBackOff())
			}
			if waitErr != nil {
				return cancelled(waitErr)
			}

		default:
			failures++
			if failures >= p.opts.MaxAttempts {
				metrics.RetryExhaustedTotal.Inc()
				p.Logger.Warn(ctx, "Retry attempts exhausted after %d attempts: %v", failures, err)
				res.Outcome = RetryExhausted
				res.Err = fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, failures, err)
				return res
			}

			wait := b.NextBackOff()
			res.Retries++
			metrics.RetriesTotal.WithLabelValues(class.String()).Inc()
			p.Logger.Warn(ctx, "Attempt %d/%d failed: %v, retrying in %v", failures, p.opts.MaxAttempts, err, wait)
			if err := p.sleep(ctx, wait); err != nil {
				return cancelled(err)
			}
		}
	}
}
