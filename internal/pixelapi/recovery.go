package pixelapi

import (
	"errors"
	"net/http"
	"regexp"
	"sync"
)

// RecoveryHook recognizes a protocol-specific failure by status code and a
// pattern over the response detail.
type RecoveryHook struct {
	Name string
	// Status must equal the response status; zero matches any status.
	Status int
	// Pattern is matched against APIError.Detail; nil matches any body.
	Pattern *regexp.Regexp
	// Handle is called with the pattern's submatches. A nil return marks
	// the failure as recovered; a nil Handle always recovers.
	Handle func(err *APIError, match []string) error
}

func (h RecoveryHook) match(apiErr *APIError) ([]string, bool) {
	if h.Status != 0 && h.Status != apiErr.StatusCode {
		return nil, false
	}
	if h.Pattern == nil {
		return nil, true
	}
	detail, err := apiErr.Detail()
	if err != nil {
		return nil, false
	}
	match := h.Pattern.FindStringSubmatch(detail)
	return match, match != nil
}

// Recoverer holds recovery hooks, checked in registration order.
type Recoverer struct {
	mu    sync.RWMutex
	hooks []RecoveryHook
}

// Register appends a hook.
func (r *Recoverer) Register(hook RecoveryHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Matches reports whether some hook claims err.
func (r *Recoverer) Matches(err error) bool {
	_, ok := r.find(err)
	return ok
}

// Recover runs the first hook matching err. It reports whether a hook
// matched and returns the hook's result, or err itself when none matched.
func (r *Recoverer) Recover(err error) (bool, error) {
	if err == nil {
		return false, nil
	}

	found, ok := r.find(err)
	if !ok {
		return false, err
	}
	if found.hook.Handle == nil {
		return true, nil
	}
	return true, found.hook.Handle(found.apiErr, found.match)
}

type hookMatch struct {
	hook   RecoveryHook
	apiErr *APIError
	match  []string
}

func (r *Recoverer) find(err error) (hookMatch, bool) {
	if r == nil {
		return hookMatch{}, false
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return hookMatch{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, hook := range r.hooks {
		if match, ok := hook.match(apiErr); ok {
			return hookMatch{hook: hook, apiErr: apiErr, match: match}, true
		}
	}
	return hookMatch{}, false
}

// claimsRateLimit reports whether a 429 belongs to a registered protocol
// failure rather than the limiter race the executor retries.
func (r *Recoverer) claimsRateLimit(apiErr *APIError) bool {
	if r == nil || apiErr.StatusCode != http.StatusTooManyRequests {
		return false
	}
	return r.Matches(apiErr)
}
