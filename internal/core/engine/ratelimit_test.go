package engine

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	waits []time.Duration
	err   error
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return s.err
}

func (s *recordingSleeper) total() time.Duration {
	var sum time.Duration
	for _, d := range s.waits {
		sum += d
	}
	return sum
}

func headers(pairs ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

func TestEndpointLimiterDefaults(t *testing.T) {
	limiter := NewEndpointLimiter("https://pixels.example/get_size", 0)
	state := limiter.State()

	require.Equal(t, 1, state.RemainingRequests)
	require.Nil(t, state.RequestsLimit)
	require.Zero(t, state.ResetTime)
	require.Zero(t, state.CooldownTime)
	require.Zero(t, state.AntiSpamDelay)
	require.Zero(t, limiter.WaitDuration())
}

func TestEndpointLimiterWaitPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		headers http.Header
		delay   time.Duration
		want    time.Duration
		reason  WaitReason
	}{
		{
			name:    "ExhaustedWindowWaitsForReset",
			headers: headers("requests-remaining", "0", "requests-reset", "12"),
			want:    12 * time.Second,
			reason:  WaitReset,
		},
		{
			name:    "AntiSpamBeatsCooldown",
			headers: headers("retry-after", "30", "cooldown-reset", "5"),
			want:    30 * time.Second,
			reason:  WaitAntiSpam,
		},
		{
			name:    "AntiSpamBeatsReset",
			headers: headers("retry-after", "7", "requests-remaining", "0", "requests-reset", "60"),
			want:    7 * time.Second,
			reason:  WaitAntiSpam,
		},
		{
			name:    "CooldownBeatsReset",
			headers: headers("cooldown-reset", "5", "requests-remaining", "0", "requests-reset", "60"),
			want:    5 * time.Second,
			reason:  WaitCooldown,
		},
		{
			name:    "RemainingRequestsUseDefaultDelay",
			headers: headers("requests-remaining", "3", "requests-reset", "60"),
			delay:   time.Second,
			want:    time.Second,
			reason:  WaitDefault,
		},
		{
			name:    "NoHeadersUseDefaultDelay",
			headers: http.Header{},
			delay:   2 * time.Second,
			want:    2 * time.Second,
			reason:  WaitDefault,
		},
		{
			name:    "FractionalSeconds",
			headers: headers("requests-remaining", "0", "requests-reset", "1.5"),
			want:    1500 * time.Millisecond,
			reason:  WaitReset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := NewEndpointLimiter("https://pixels.example/set_pixel", tt.delay)
			limiter.UpdateFromHeaders(tt.headers)

			got, reason := limiter.State().Wait()
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.reason, reason)
			require.Equal(t, tt.want, limiter.WaitDuration())
		})
	}
}

func TestEndpointLimiterClampsNonPositiveValues(t *testing.T) {
	limiter := NewEndpointLimiter("https://pixels.example/get_pixels", 0)
	limiter.UpdateFromHeaders(headers(
		"requests-remaining", "-4",
		"requests-reset", "-10",
		"cooldown-reset", "-1.5",
		"retry-after", "-3",
		"requests-limit", "-2",
	))

	state := limiter.State()
	require.Equal(t, 0, state.RemainingRequests)
	require.Equal(t, time.Duration(0), state.ResetTime)
	require.Equal(t, time.Duration(0), state.CooldownTime)
	require.Equal(t, time.Duration(0), state.AntiSpamDelay)
	require.NotNil(t, state.RequestsLimit)
	require.Equal(t, 0, *state.RequestsLimit)
	require.Equal(t, time.Duration(0), limiter.WaitDuration())
}

func TestEndpointLimiterSaturatesHugeValues(t *testing.T) {
	limiter := NewEndpointLimiter("https://pixels.example/set_pixel", 0)
	limiter.UpdateFromHeaders(headers(
		"retry-after", "1e12",
		"cooldown-reset", "9223372036.854775807",
		"requests-reset", "1e300",
		"requests-remaining", "1e300",
		"requests-limit", "1e19",
	))

	state := limiter.State()
	maxDuration := time.Duration(math.MaxInt64)
	require.Equal(t, maxDuration, state.AntiSpamDelay)
	require.Equal(t, maxDuration, state.CooldownTime)
	require.Equal(t, maxDuration, state.ResetTime)
	require.Equal(t, math.MaxInt, state.RemainingRequests)
	require.NotNil(t, state.RequestsLimit)
	require.Equal(t, math.MaxInt, *state.RequestsLimit)
	require.Equal(t, maxDuration, limiter.WaitDuration())

	limiter.UpdateFromHeaders(headers("requests-remaining", "0", "requests-reset", "1e15"))
	require.Equal(t, maxDuration, limiter.WaitDuration())
}

func TestEndpointLimiterMissingHeadersResetToDefaults(t *testing.T) {
	limiter := NewEndpointLimiter("https://pixels.example/set_pixel", 0)
	limiter.UpdateFromHeaders(headers(
		"requests-remaining", "0",
		"requests-reset", "40",
		"cooldown-reset", "20",
		"retry-after", "10",
		"requests-limit", "5",
	))
	require.Equal(t, 10*time.Second, limiter.WaitDuration())

	limiter.UpdateFromHeaders(http.Header{})
	state := limiter.State()
	require.Equal(t, 1, state.RemainingRequests)
	require.Zero(t, state.ResetTime)
	require.Zero(t, state.CooldownTime)
	require.Zero(t, state.AntiSpamDelay)
	require.NotNil(t, state.RequestsLimit, "requests-limit is only overwritten when present")
	require.Equal(t, 5, *state.RequestsLimit)
	require.Zero(t, limiter.WaitDuration())
}

func TestEndpointLimiterUnparsableHeadersFallBack(t *testing.T) {
	limiter := NewEndpointLimiter("https://pixels.example/set_pixel", 0)
	limiter.UpdateFromHeaders(headers(
		"requests-remaining", "lots",
		"requests-reset", "soon",
		"retry-after", "NaN",
	))

	state := limiter.State()
	require.Equal(t, 1, state.RemainingRequests)
	require.Zero(t, state.ResetTime)
	require.Zero(t, state.AntiSpamDelay)
}

func TestEndpointLimiterRetryAfterHTTPDate(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewEndpointLimiter("https://pixels.example/set_pixel", 0)
	limiter.Clock = func() time.Time { return now }

	limiter.UpdateFromHeaders(headers("retry-after", now.Add(45*time.Second).Format(http.TimeFormat)))
	require.Equal(t, 45*time.Second, limiter.WaitDuration())
}

func TestEndpointLimiterLastUpdateWins(t *testing.T) {
	limiter := NewEndpointLimiter("https://pixels.example/set_pixel", time.Second)

	limiter.UpdateFromHeaders(headers("retry-after", "30"))
	limiter.UpdateFromHeaders(headers("cooldown-reset", "4"))
	require.Equal(t, 4*time.Second, limiter.WaitDuration())

	limiter.UpdateFromHeaders(headers("requests-remaining", "2"))
	require.Equal(t, time.Second, limiter.WaitDuration())
}

func TestEndpointLimiterWaitSleepsComputedDuration(t *testing.T) {
	sleeper := &recordingSleeper{}
	limiter := NewEndpointLimiter("https://pixels.example/set_pixel", 0)
	limiter.Sleep = sleeper.sleep
	limiter.UpdateFromHeaders(headers("cooldown-reset", "3"))

	require.NoError(t, limiter.Wait(context.Background(), true))
	require.Equal(t, []time.Duration{3 * time.Second}, sleeper.waits, "short waits never render progress")
}

func TestEndpointLimiterWaitWithProgress(t *testing.T) {
	sleeper := &recordingSleeper{}
	var out bytes.Buffer
	limiter := NewEndpointLimiter("https://pixels.example/set_pixel", 0)
	limiter.Sleep = sleeper.sleep
	limiter.Progress = &out
	limiter.UpdateFromHeaders(headers("requests-remaining", "0", "requests-reset", "8"))

	require.NoError(t, limiter.Wait(context.Background(), true))
	require.Len(t, sleeper.waits, progressSteps)
	require.Equal(t, 8*time.Second, sleeper.total())
}

// sealedWriter fails the test when written after seal.
type sealedWriter struct {
	t      *testing.T
	mu     sync.Mutex
	buf    bytes.Buffer
	sealed bool
}

func (w *sealedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		w.t.Errorf("progress output written after Wait returned: %q", p)
	}
	return w.buf.Write(p)
}

func (w *sealedWriter) seal() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sealed = true
}

func TestEndpointLimiterProgressFinishesBeforeWaitReturns(t *testing.T) {
	for _, sleepErr := range []error{nil, context.Canceled} {
		out := &sealedWriter{t: t}
		limiter := NewEndpointLimiter("https://pixels.example/set_pixel", 0)
		limiter.Sleep = (&recordingSleeper{err: sleepErr}).sleep
		limiter.Progress = out
		limiter.UpdateFromHeaders(headers("retry-after", "30"))

		err := limiter.Wait(context.Background(), true)
		require.ErrorIs(t, err, sleepErr)
		out.seal()

		// Give a stray render goroutine the chance to write.
		time.Sleep(150 * time.Millisecond)
	}
}

func TestEndpointLimiterWaitPropagatesCancellation(t *testing.T) {
	sleeper := &recordingSleeper{err: context.Canceled}
	limiter := NewEndpointLimiter("https://pixels.example/set_pixel", 0)
	limiter.Sleep = sleeper.sleep
	limiter.UpdateFromHeaders(headers("retry-after", "20"))

	err := limiter.Wait(context.Background(), true)
	require.True(t, errors.Is(err, context.Canceled))
	require.Len(t, sleeper.waits, 1)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, SleepContext(context.Background(), 0))
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	require.ErrorIs(t, SleepContext(ctx, 0), context.Canceled)
}

func TestRateLimiterLazyCreation(t *testing.T) {
	sleeper := &recordingSleeper{}
	limiter := &RateLimiter{
		DefaultDelay: time.Second,
		EndpointDelays: map[string]time.Duration{
			"https://pixels.example/get_pixels": 3 * time.Second,
		},
		Sleep: sleeper.sleep,
	}

	require.NoError(t, limiter.Wait(context.Background(), "https://pixels.example/set_pixel", false))
	require.NoError(t, limiter.Wait(context.Background(), "https://pixels.example/get_pixels", false))
	require.Equal(t, []time.Duration{time.Second, 3 * time.Second}, sleeper.waits)

	require.Same(t, limiter.Endpoint("https://pixels.example/set_pixel"), limiter.Endpoint("https://pixels.example/set_pixel"))
}

func TestRateLimiterKeysByExactURL(t *testing.T) {
	limiter := &RateLimiter{}

	limiter.UpdateFromHeaders("https://pixels.example/get_pixel", headers("cooldown-reset", "9"))

	require.Equal(t, 9*time.Second, limiter.Endpoint("https://pixels.example/get_pixel").WaitDuration())
	require.Zero(t, limiter.Endpoint("https://pixels.example/get_pixel/").WaitDuration())
	require.Zero(t, limiter.Endpoint("http://pixels.example/get_pixel").WaitDuration())
}

func TestRateLimiterInstancesDoNotShareState(t *testing.T) {
	first := &RateLimiter{}
	second := &RateLimiter{}

	first.UpdateFromHeaders("https://pixels.example/set_pixel", headers("retry-after", "60"))

	require.Equal(t, time.Minute, first.Endpoint("https://pixels.example/set_pixel").WaitDuration())
	require.Zero(t, second.Endpoint("https://pixels.example/set_pixel").WaitDuration())
}

func TestRateLimiterSnapshot(t *testing.T) {
	limiter := &RateLimiter{}
	limiter.UpdateFromHeaders("https://pixels.example/set_pixel", headers("requests-remaining", "0", "requests-reset", "5", "requests-limit", "2"))
	limiter.UpdateFromHeaders("https://pixels.example/get_size", http.Header{})

	snapshot := limiter.Snapshot()
	require.Len(t, snapshot, 2)
	require.Equal(t, "https://pixels.example/get_size", snapshot[0].Endpoint)
	require.Equal(t, "https://pixels.example/set_pixel", snapshot[1].Endpoint)
	require.Equal(t, 0, snapshot[1].RemainingRequests)
	require.Equal(t, 2, *snapshot[1].RequestsLimit)

	*snapshot[1].RequestsLimit = 99
	require.Equal(t, 2, *limiter.Endpoint("https://pixels.example/set_pixel").State().RequestsLimit)
}
