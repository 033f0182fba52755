package okx

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrStopped is returned when the caller's context ends while a request is
	// being sent or retried.
	ErrStopped = errors.New("okx: stop requested")
	// ErrMalformedResponse marks a response body that is not a JSON envelope.
	ErrMalformedResponse = errors.New("okx: malformed response")
	// ErrOrderNotFound means an order lookup returned no row.
	ErrOrderNotFound = errors.New("okx: order not found")
)

// APIError is an application-level failure reported in the envelope
// (code != "0"). It is never retried.
type APIError struct {
	Code string
	Msg  string
	Path string
	Data json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("okx api error on %s: code=%s msg=%s", e.Path, e.Code, e.Msg)
}

// IsAPIError reports whether err carries an *APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
