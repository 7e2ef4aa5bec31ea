// Package errors turns non-2xx responses from external APIs into typed errors.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MinErrorStatusCode is the lowest status treated as an error.
const MinErrorStatusCode = 400

const maxErrorBody = 64 << 10

// HTTPError is a failed HTTP exchange.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error (%d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}

// ParseHTTPError reads resp's body into an HTTPError, or returns nil for a
// success status. It understands {"error"}, {"message"} and the Telegram
// {"ok":false,"description"} shapes.
func ParseHTTPError(resp *http.Response) error {
	if resp.StatusCode < MinErrorStatusCode {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    fmt.Sprintf("failed to read error response body: %v", err),
		}
	}

	bodyStr := strings.TrimSpace(string(body))
	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       bodyStr,
		Message:    bodyStr,
	}

	var payload struct {
		Error       string `json:"error"`
		Message     string `json:"message"`
		Description string `json:"description"`
	}
	if json.Unmarshal(body, &payload) == nil {
		for _, msg := range []string{payload.Description, payload.Error, payload.Message} {
			if msg != "" {
				httpErr.Message = msg
				break
			}
		}
	}

	return httpErr
}

// StatusCode extracts the status of a wrapped HTTPError.
func StatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}
