package pixelapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrInvalidCredential is wrapped by errors for 401 responses.
	ErrInvalidCredential = errors.New("pixelapi: invalid credential")
	// ErrRateLimited is wrapped by errors for 429 responses that were not retried.
	ErrRateLimited = errors.New("pixelapi: rate limited")
	// ErrNoDetail is returned by Detail when the body carries no detail string.
	ErrNoDetail = errors.New("pixelapi: response has no detail")
)

// Kind classifies a failed response.
type Kind int

const (
	KindHTTP Kind = iota
	KindRateLimited
	KindInvalidCredential
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindValidation:
		return "validation"
	default:
		return "http"
	}
}

// APIError is a non-200 response. It keeps the whole response so callers can
// recover from protocol-specific failures by inspecting the body.
type APIError struct {
	Kind       Kind
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindInvalidCredential:
		return fmt.Sprintf("pixelapi: %s %s: received 401, is your API token correct?", e.Method, e.URL)
	case KindRateLimited:
		return fmt.Sprintf("pixelapi: %s %s: rate limited (429)", e.Method, e.URL)
	default:
		return fmt.Sprintf("pixelapi: %s %s: received code %d", e.Method, e.URL, e.StatusCode)
	}
}

func (e *APIError) Unwrap() error {
	switch e.Kind {
	case KindInvalidCredential:
		return ErrInvalidCredential
	case KindRateLimited:
		return ErrRateLimited
	default:
		return nil
	}
}

// Detail returns the "detail" string of a JSON error body.
func (e *APIError) Detail() (string, error) {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(e.Body, &payload); err != nil {
		return "", fmt.Errorf("decode error body: %w", err)
	}
	var detail string
	if len(payload.Detail) == 0 || json.Unmarshal(payload.Detail, &detail) != nil {
		return "", ErrNoDetail
	}
	return detail, nil
}

// ValidationProblem is one entry of a 422 validation body.
type ValidationProblem struct {
	Location []any  `json:"loc"`
	Message  string `json:"msg"`
	Type     string `json:"type"`
}

// Field joins the location path, leaving out the request part it refers to.
func (p ValidationProblem) Field() string {
	parts := make([]string, 0, len(p.Location))
	for i, loc := range p.Location {
		value := fmt.Sprint(loc)
		if i == 0 && len(p.Location) > 1 {
			switch value {
			case "body", "query", "path", "header":
				continue
			}
		}
		parts = append(parts, value)
	}
	return strings.Join(parts, ".")
}

// ValidationError is a 422 response whose body describes which field was
// rejected and why.
type ValidationError struct {
	*APIError
	Field    string
	Message  string
	Problems []ValidationProblem
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pixelapi: %s %s: invalid %s: %s", e.Method, e.URL, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.APIError
}

// validationError returns nil when the body is not a recognizable validation payload.
func validationError(apiErr *APIError) *ValidationError {
	var payload struct {
		Detail []ValidationProblem `json:"detail"`
	}
	if err := json.Unmarshal(apiErr.Body, &payload); err != nil || len(payload.Detail) == 0 {
		return nil
	}

	first := payload.Detail[0]
	if first.Message == "" {
		return nil
	}

	apiErr.Kind = KindValidation
	return &ValidationError{
		APIError: apiErr,
		Field:    first.Field(),
		Message:  first.Message,
		Problems: payload.Detail,
	}
}

// checkResponse maps a response to the error taxonomy; nil means success.
func checkResponse(method, url string, resp *Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	apiErr := &APIError{
		Kind:       KindHTTP,
		Method:     method,
		URL:        url,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimited
	case http.StatusUnauthorized:
		apiErr.Kind = KindInvalidCredential
	case http.StatusUnprocessableEntity:
		if validation := validationError(apiErr); validation != nil {
			return validation
		}
	}
	return apiErr
}
