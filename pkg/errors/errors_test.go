package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", New(ErrInvalidInput, http.StatusTeapot, "x"), http.StatusTeapot},
		{"invalid", fmt.Errorf("parsing limit: %w", ErrInvalidInput), http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"source down", fmt.Errorf("loading: %w", ErrSourceUnavailable), http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	if got := Message(Invalid("limit must be positive, got %d", -1)); got != "limit must be positive, got -1" {
		t.Errorf("Message = %q", got)
	}
	if got := Message(errors.New("db password leaked")); got != "internal error" {
		t.Errorf("Message hides internals: got %q", got)
	}
	if !errors.Is(Invalid("x"), ErrInvalidInput) {
		t.Error("Invalid must wrap ErrInvalidInput")
	}
}
