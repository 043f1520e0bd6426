package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPError_Classification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{name: "internal server error", status: 500, sentinel: ErrServer},
		{name: "bad gateway", status: 502, sentinel: ErrServer},
		{name: "unauthorized", status: 401, sentinel: ErrInvalidCredentials},
		{name: "forbidden", status: 403, sentinel: ErrInvalidCredentials},
		{name: "bad request", status: 400, sentinel: ErrValidation},
		{name: "conflict", status: 409, sentinel: ErrValidation},
		{name: "not found", status: 404, sentinel: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewHTTPError(tt.status, "body")
			assert.True(t, Is(err, tt.sentinel))
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "network", err: ErrNetwork, want: true},
		{name: "timeout", err: ErrTimeout, want: true},
		{name: "server 5xx", err: NewHTTPError(503, ""), want: true},
		{name: "wrapped network", err: Wrap(ErrNetwork, "dial tcp"), want: true},
		{name: "unauthorized", err: NewHTTPError(401, ""), want: false},
		{name: "validation 4xx", err: NewHTTPError(422, ""), want: false},
		{name: "invalid credentials", err: ErrInvalidCredentials, want: false},
		{name: "not authenticated", err: ErrNotAuthenticated, want: false},
		{name: "oauth cancelled", err: ErrOAuthCancelled, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "invalid credentials", Reason(NewHTTPError(401, "nope")))
	assert.Equal(t, "sign-in cancelled", Reason(ErrOAuthCancelled))
	assert.Equal(t, "network unavailable", Reason(Wrap(ErrNetwork, "dial tcp")))
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
}
