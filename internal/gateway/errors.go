package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoActiveConnection indicates no active connection record could be
	// resolved for the user.
	ErrNoActiveConnection = errors.New("no active connection for user")

	// ErrMalformedResponse indicates the broker replied with a body the
	// client could not interpret.
	ErrMalformedResponse = errors.New("malformed broker response")
)

// HTTPError carries the status and body of a failed broker request.
type HTTPError struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
	Method     string `json:"method"`
	URL        string `json:"url"`
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
