package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/kjstillabower/sweth/internal/circuitbreaker"
	"github.com/kjstillabower/sweth/internal/models"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestCategorizeError(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{Offset: 3}
	refused := &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled", context.Canceled, ErrorCategoryTimeout},
		{"wrapped deadline", fmt.Errorf("request timeout: %w", context.DeadlineExceeded), ErrorCategoryTimeout},
		{"net timeout", fmt.Errorf("http request failed: %w", timeoutError{}), ErrorCategoryTimeout},
		{"connection refused", fmt.Errorf("http request failed: %w", refused), ErrorCategoryNetwork},
		{"invalid API key", fmt.Errorf("auth: %w", ErrInvalidAPIKey), ErrorCategoryInvalidAPIKey},
		{"city not found", ErrLocationNotFound, ErrorCategoryCityNotFound},
		{"rate limited", fmt.Errorf("exhausted retries: %w", ErrRateLimited), ErrorCategoryRateLimited},
		{"upstream failure", fmt.Errorf("%w: HTTP 502", ErrUpstreamFailure), ErrorCategoryUpstream5xx},
		{"json syntax", fmt.Errorf("parse response: %w", syntaxErr), ErrorCategoryParsing},
		{"bad timestamp", fmt.Errorf("entry: %w", models.ErrInvalidTimestamp), ErrorCategoryParsing},
		{"circuit open", fmt.Errorf("call: %w", circuitbreaker.ErrOpen), ErrorCategoryCircuitOpen},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCountsAgainstBreaker(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrLocationNotFound, false},
		{fmt.Errorf("x: %w", ErrInvalidAPIKey), false},
		{ErrUpstreamFailure, true},
		{context.DeadlineExceeded, true},
	}
	for _, tt := range tests {
		if got := CountsAgainstBreaker(tt.err); got != tt.want {
			t.Errorf("CountsAgainstBreaker(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
