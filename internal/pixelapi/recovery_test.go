package pixelapi

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustRegexp(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern)
}

func apiError(status int, body string) error {
	return checkResponse(http.MethodPost, "https://pixels.example/submit_task", &Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       []byte(body),
	})
}

func TestRecovererMatchesStatusAndPattern(t *testing.T) {
	var seconds string
	recoverer := &Recoverer{}
	recoverer.Register(RecoveryHook{
		Name:    "expired",
		Status:  http.StatusTooManyRequests,
		Pattern: mustRegexp(`took more than (\d+) seconds`),
		Handle: func(err *APIError, match []string) error {
			seconds = match[1]
			return nil
		},
	})

	handled, err := recoverer.Recover(apiError(http.StatusTooManyRequests, `{"detail":"You have not gotten a task yet or you took more than 120 seconds"}`))
	require.True(t, handled)
	require.NoError(t, err)
	require.Equal(t, "120", seconds)
}

func TestRecovererIgnoresOtherFailures(t *testing.T) {
	recoverer := &Recoverer{}
	recoverer.Register(RecoveryHook{Status: http.StatusConflict, Pattern: mustRegexp(`not the task you were assigned`)})

	tests := []struct {
		name string
		err  error
	}{
		{name: "WrongStatus", err: apiError(http.StatusBadRequest, `{"detail":"This is not the task you were assigned"}`)},
		{name: "WrongDetail", err: apiError(http.StatusConflict, `{"detail":"something else"}`)},
		{name: "NoDetail", err: apiError(http.StatusConflict, `{}`)},
		{name: "NotAnAPIError", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handled, err := recoverer.Recover(tt.err)
			require.False(t, handled)
			require.Equal(t, tt.err, err)
		})
	}
}

func TestRecovererFirstHookWins(t *testing.T) {
	recoverer := &Recoverer{}
	recoverer.Register(RecoveryHook{Name: "first", Status: http.StatusBadRequest, Handle: func(*APIError, []string) error {
		return errors.New("first")
	}})
	recoverer.Register(RecoveryHook{Name: "second", Status: http.StatusBadRequest})

	handled, err := recoverer.Recover(fmt.Errorf("wrapped: %w", apiError(http.StatusBadRequest, `{"detail":"x"}`)))
	require.True(t, handled)
	require.EqualError(t, err, "first")
}

func TestRecovererNil(t *testing.T) {
	var recoverer *Recoverer
	require.False(t, recoverer.Matches(apiError(http.StatusBadRequest, `{}`)))

	handled, err := (&Recoverer{}).Recover(nil)
	require.False(t, handled)
	require.NoError(t, err)
}

func TestValidationProblemField(t *testing.T) {
	require.Equal(t, "x", ValidationProblem{Location: []any{"body", "x"}}.Field())
	require.Equal(t, "pixels.3", ValidationProblem{Location: []any{"body", "pixels", float64(3)}}.Field())
	require.Equal(t, "body", ValidationProblem{Location: []any{"body"}}.Field())
}
