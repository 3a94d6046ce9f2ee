package limiter

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/repo-harvester/pkg/log"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestLimiter(opts Options, store QuotaStore) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRateLimiter(log.NopLogger{}, opts, store)
	r.now = clock.Now
	r.sleep = clock.Sleep
	return r, clock
}

func quotaHeaders(remaining int, reset time.Time) http.Header {
	h := http.Header{}
	h.Set(HeaderRemaining, strconv.Itoa(remaining))
	h.Set(HeaderReset, strconv.FormatInt(reset.Unix(), 10))
	return h
}

func TestBeforeCall_AboveLowWaterDoesNotWait(t *testing.T) {
	r, clock := newTestLimiter(Options{LowWater: 10, SafetyMargin: 5 * time.Second}, nil)
	r.Observe(context.Background(), quotaHeaders(4000, clock.now.Add(time.Hour)))

	require.NoError(t, r.BeforeCall(context.Background()))
	assert.Empty(t, clock.sleeps)
}

func TestBeforeCall_BelowLowWaterSleepsUntilResetPlusMargin(t *testing.T) {
	r, clock := newTestLimiter(Options{LowWater: 10, SafetyMargin: 5 * time.Second}, nil)
	r.Observe(context.Background(), quotaHeaders(3, clock.now.Add(90*time.Second)))

	require.NoError(t, r.BeforeCall(context.Background()))
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 95*time.Second, clock.sleeps[0])

	// the reset has passed: the next call goes straight through
	require.NoError(t, r.BeforeCall(context.Background()))
	assert.Len(t, clock.sleeps, 1)
}

func TestBeforeCall_ExhaustedQuotaWaitsEvenWithoutLowWater(t *testing.T) {
	r, clock := newTestLimiter(Options{LowWater: 0, SafetyMargin: time.Second}, nil)
	r.Observe(context.Background(), quotaHeaders(0, clock.now.Add(30*time.Second)))
	require.True(t, r.State().Exhausted())

	require.NoError(t, r.BeforeCall(context.Background()))
	assert.Equal(t, []time.Duration{31 * time.Second}, clock.sleeps)
	assert.False(t, r.State().Exhausted())
}

func TestWaitDuration_NeverNegativeAndZeroAfterReset(t *testing.T) {
	r, clock := newTestLimiter(Options{SafetyMargin: 5 * time.Second}, nil)
	assert.Zero(t, r.WaitDuration(), "unknown quota")

	reset := clock.now.Add(30 * time.Second)
	r.Observe(context.Background(), quotaHeaders(0, reset))

	for _, step := range []time.Duration{0, 10 * time.Second, 20 * time.Second, 4 * time.Second, time.Second, time.Hour} {
		clock.now = clock.now.Add(step)
		d := r.WaitDuration()
		assert.GreaterOrEqual(t, d, time.Duration(0))
		if clock.now.Before(reset.Add(5 * time.Second)) {
			assert.Positive(t, d)
		} else {
			assert.Zero(t, d)
		}
	}
}

func TestWaitForReset_IgnoresLowWater(t *testing.T) {
	// low water 0 would never trigger BeforeCall, a hard block still waits
	r, clock := newTestLimiter(Options{LowWater: 0, SafetyMargin: time.Second, ResetFallback: time.Minute}, nil)
	r.Observe(context.Background(), quotaHeaders(0, clock.now.Add(20*time.Second)))

	require.NoError(t, r.WaitForReset(context.Background()))
	assert.Equal(t, []time.Duration{21 * time.Second}, clock.sleeps)
	assert.False(t, r.State().Known)
}

func TestWaitForReset_PrefersRetryAfter(t *testing.T) {
	r, clock := newTestLimiter(Options{ResetFallback: time.Minute}, nil)
	h := http.Header{}
	h.Set(HeaderRetryAfter, "7")
	r.Observe(context.Background(), h)

	require.NoError(t, r.WaitForReset(context.Background()))
	assert.Equal(t, []time.Duration{7 * time.Second}, clock.sleeps)
}

func TestWaitForReset_FallbackWhenResetUnknownOrPast(t *testing.T) {
	r, clock := newTestLimiter(Options{ResetFallback: time.Minute}, nil)
	r.Observe(context.Background(), quotaHeaders(0, clock.now.Add(-time.Hour)))

	require.NoError(t, r.WaitForReset(context.Background()))
	assert.Equal(t, []time.Duration{time.Minute}, clock.sleeps)
}

func TestObserve_IgnoresResponsesWithoutHeaders(t *testing.T) {
	r, clock := newTestLimiter(Options{}, nil)
	r.Observe(context.Background(), quotaHeaders(42, clock.now.Add(time.Hour)))
	r.Observe(context.Background(), http.Header{})

	assert.Equal(t, 42, r.State().Remaining)
	assert.False(t, r.State().Exhausted())
}

func TestSleep_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestRedisQuotaStore_RoundTripAndRestore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisQuotaStore(client)
	ctx := context.Background()

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first, clock := newTestLimiter(Options{SafetyMargin: time.Second}, store)
	reset := clock.now.Add(10 * time.Minute).Truncate(time.Second)
	first.Observe(ctx, quotaHeaders(0, reset))

	state, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, state.Remaining)
	assert.True(t, state.ResetAt.Equal(reset))
	assert.Positive(t, mr.TTL(RedisKeyRemaining))

	second, _ := newTestLimiter(Options{SafetyMargin: time.Second}, store)
	second.now = clock.Now
	second.Restore(ctx)
	assert.True(t, second.State().Exhausted())
}
