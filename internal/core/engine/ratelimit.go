package engine

import (
	"context"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/metrics"
)

// Response headers advertised by the canvas API.
const (
	HeaderRequestsRemaining = "Requests-Remaining"
	HeaderRequestsReset     = "Requests-Reset"
	HeaderRequestsLimit     = "Requests-Limit"
	HeaderCooldownReset     = "Cooldown-Reset"
	HeaderRetryAfter        = "Retry-After"
)

// ProgressThreshold is the shortest wait that renders a progress bar.
const ProgressThreshold = 5 * time.Second

// WaitReason names the signal that decided a wait.
type WaitReason string

const (
	WaitAntiSpam WaitReason = "anti_spam"
	WaitCooldown WaitReason = "cooldown"
	WaitReset    WaitReason = "reset"
	WaitDefault  WaitReason = "default"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// EndpointState is the rate limit belief for one endpoint, derived from the
// most recent response observed for it.
type EndpointState struct {
	Endpoint          string        `json:"endpoint"`
	RequestsLimit     *int          `json:"requests_limit,omitempty"`
	RemainingRequests int           `json:"remaining_requests"`
	ResetTime         time.Duration `json:"reset_time"`
	CooldownTime      time.Duration `json:"cooldown_time"`
	AntiSpamDelay     time.Duration `json:"anti_spam_delay"`
	DefaultDelay      time.Duration `json:"default_delay"`
	UpdatedAt         time.Time     `json:"updated_at,omitempty"`
}

// NewEndpointState returns the optimistic state of an endpoint nothing has
// been heard from yet: one request remaining and no delays.
func NewEndpointState(endpoint string, defaultDelay time.Duration) EndpointState {
	if defaultDelay < 0 {
		defaultDelay = 0
	}
	return EndpointState{
		Endpoint:          endpoint,
		RemainingRequests: 1,
		DefaultDelay:      defaultDelay,
	}
}

// Wait returns how long the next request must wait and why.
// Anti-spam beats cooldown beats an exhausted window beats default pacing.
func (s EndpointState) Wait() (time.Duration, WaitReason) {
	switch {
	case s.AntiSpamDelay != 0:
		return s.AntiSpamDelay, WaitAntiSpam
	case s.CooldownTime != 0:
		return s.CooldownTime, WaitCooldown
	case s.RemainingRequests == 0:
		return s.ResetTime, WaitReset
	default:
		return s.DefaultDelay, WaitDefault
	}
}

// applyHeaders overwrites the dynamic fields from h. Absent or unparsable
// values fall back to their defaults and anything below zero becomes zero.
func (s *EndpointState) applyHeaders(h http.Header, now time.Time) {
	remaining, ok := headerFloat(h, HeaderRequestsRemaining)
	if !ok {
		remaining = 1
	}
	s.RemainingRequests = clampCount(remaining)
	s.ResetTime = headerSeconds(h, HeaderRequestsReset)
	s.CooldownTime = headerSeconds(h, HeaderCooldownReset)
	s.AntiSpamDelay = retryAfter(h, now)

	if limit, ok := headerFloat(h, HeaderRequestsLimit); ok {
		value := clampCount(limit)
		s.RequestsLimit = &value
	}
	s.UpdatedAt = now
}

// EndpointLimiter tracks and enforces the rate limit of a single endpoint.
type EndpointLimiter struct {
	Sleep    SleepFunc
	Progress io.Writer
	Logger   *logging.Logger
	Clock    func() time.Time

	mu    sync.Mutex
	state EndpointState
}

// NewEndpointLimiter creates a limiter in the default state.
func NewEndpointLimiter(endpoint string, defaultDelay time.Duration) *EndpointLimiter {
	return &EndpointLimiter{state: NewEndpointState(endpoint, defaultDelay)}
}

// UpdateFromHeaders replaces the limiter's belief with what h advertises.
func (l *EndpointLimiter) UpdateFromHeaders(h http.Header) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.applyHeaders(h, l.now())
}

// State returns a copy of the current belief.
func (l *EndpointLimiter) State() EndpointState {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := l.state
	if state.RequestsLimit != nil {
		limit := *state.RequestsLimit
		state.RequestsLimit = &limit
	}
	return state
}

// WaitDuration is how long the next request to this endpoint must wait.
func (l *EndpointLimiter) WaitDuration() time.Duration {
	d, _ := l.State().Wait()
	return d
}

// Wait blocks for WaitDuration. Waits of ProgressThreshold or longer render
// a progress bar when showProgress is set.
func (l *EndpointLimiter) Wait(ctx context.Context, showProgress bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	state := l.State()
	d, reason := state.Wait()
	l.logWait(state, d, reason)
	metrics.RecordRateLimitWait(state.Endpoint, string(reason), d)

	sleep := l.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	if !showProgress || d < ProgressThreshold {
		return sleep(ctx, d)
	}

	out := l.Progress
	if out == nil {
		out = os.Stderr
	}
	return sleepWithProgress(ctx, out, d, waitLabel(reason), sleep)
}

func (l *EndpointLimiter) logWait(state EndpointState, d time.Duration, reason WaitReason) {
	if l.Logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("endpoint", state.Endpoint),
		zap.Duration("wait", d),
	}

	switch reason {
	case WaitAntiSpam:
		l.Logger.Warn("Sleeping, anti-spam cooldown triggered", fields...)
	case WaitCooldown:
		l.Logger.Info("Sleeping, endpoint on cooldown", fields...)
	case WaitReset:
		l.Logger.Info("Sleeping, waiting for rate limit reset", fields...)
	default:
		fields = append(fields, zap.Int("remaining", state.RemainingRequests))
		l.Logger.Debug("Sleeping default delay", fields...)
	}
}

func (l *EndpointLimiter) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}

// RateLimiter maps endpoint URLs to their limiters. Endpoints are keyed by
// the exact URL string and created on first reference.
type RateLimiter struct {
	// DefaultDelay paces endpoints that advertise no constraint.
	DefaultDelay time.Duration
	// EndpointDelays overrides DefaultDelay for specific endpoint URLs.
	EndpointDelays map[string]time.Duration

	Sleep    SleepFunc
	Progress io.Writer
	Logger   *logging.Logger
	Clock    func() time.Time

	mu        sync.Mutex
	endpoints map[string]*EndpointLimiter
}

// Endpoint returns the limiter for endpoint, creating it if needed.
func (r *RateLimiter) Endpoint(endpoint string) *EndpointLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.endpoints == nil {
		r.endpoints = make(map[string]*EndpointLimiter)
	}
	if limiter, ok := r.endpoints[endpoint]; ok {
		return limiter
	}

	delay := r.DefaultDelay
	if override, ok := r.EndpointDelays[endpoint]; ok {
		delay = override
	}

	limiter := NewEndpointLimiter(endpoint, delay)
	limiter.Sleep = r.Sleep
	limiter.Progress = r.Progress
	limiter.Logger = r.Logger
	limiter.Clock = r.Clock
	r.endpoints[endpoint] = limiter
	return limiter
}

// UpdateFromHeaders records the headers of a response from endpoint.
func (r *RateLimiter) UpdateFromHeaders(endpoint string, h http.Header) {
	r.Endpoint(endpoint).UpdateFromHeaders(h)
}

// Wait blocks until a request to endpoint may be sent.
func (r *RateLimiter) Wait(ctx context.Context, endpoint string, showProgress bool) error {
	return r.Endpoint(endpoint).Wait(ctx, showProgress)
}

// Snapshot returns the state of every known endpoint, sorted by endpoint.
func (r *RateLimiter) Snapshot() []EndpointState {
	r.mu.Lock()
	limiters := make([]*EndpointLimiter, 0, len(r.endpoints))
	for _, limiter := range r.endpoints {
		limiters = append(limiters, limiter)
	}
	r.mu.Unlock()

	out := make([]EndpointState, 0, len(limiters))
	for _, limiter := range limiters {
		out = append(out, limiter.State())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// SleepContext sleeps for d, returning early with ctx.Err() when ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func headerFloat(h http.Header, key string) (float64, bool) {
	if h == nil {
		return 0, false
	}
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func headerSeconds(h http.Header, key string) time.Duration {
	value, ok := headerFloat(h, key)
	if !ok {
		return 0
	}
	return seconds(value)
}

// retryAfter also accepts the HTTP-date form of Retry-After.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if value, ok := headerFloat(h, HeaderRetryAfter); ok {
		return seconds(value)
	}
	if h == nil {
		return 0
	}
	if at, err := http.ParseTime(h.Get(HeaderRetryAfter)); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// seconds converts a header value to a duration, saturating at the largest
// representable duration instead of wrapping negative.
func seconds(value float64) time.Duration {
	if value <= 0 {
		return 0
	}
	nanos := value * float64(time.Second)
	if nanos >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(nanos)
}

func clampCount(value float64) int {
	if value <= 0 {
		return 0
	}
	count := math.Ceil(value)
	if count >= float64(math.MaxInt) {
		return math.MaxInt
	}
	return int(count)
}
