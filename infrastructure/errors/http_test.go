package errors_test

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/errors"
)

func response(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Status:     http.StatusText(code),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		code    int
		body    string
		wantNil bool
		wantMsg string
	}{
		{name: "success", code: http.StatusOK, body: `{"ok":true}`, wantNil: true},
		{
			name:    "telegram description",
			code:    http.StatusBadRequest,
			body:    `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
			wantMsg: "Bad Request: chat not found",
		},
		{name: "error field", code: http.StatusForbidden, body: `{"error":"forbidden"}`, wantMsg: "forbidden"},
		{name: "plain body", code: http.StatusBadGateway, body: "upstream down\n", wantMsg: "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := infraerrors.ParseHTTPError(response(tt.code, tt.body))
			if tt.wantNil {
				require.NoError(t, err)
				return
			}

			var httpErr *infraerrors.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.code, httpErr.StatusCode)
			assert.Equal(t, tt.wantMsg, httpErr.Message)
		})
	}
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("send: %w", &infraerrors.HTTPError{StatusCode: http.StatusTooManyRequests})
	code, ok := infraerrors.StatusCode(wrapped)
	assert.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, code)

	_, ok = infraerrors.StatusCode(io.EOF)
	assert.False(t, ok)
}
