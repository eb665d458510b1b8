package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil passes through", err: nil, want: "nil"},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: "timeout"},
		{name: "context canceled", err: context.Canceled, want: "timeout"},
		{name: "wrapped deadline", err: fmt.Errorf("calling model: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "401 status", err: errors.New("API returned 401"), want: "auth"},
		{name: "unauthorized text", err: errors.New("request unauthorized"), want: "auth"},
		{name: "invalid api key", err: errors.New("Invalid API key provided"), want: "auth"},
		{name: "429 status", err: errors.New("API returned 429"), want: "ratelimit"},
		{name: "rate limit text", err: errors.New("rate limit exceeded, retry later"), want: "ratelimit"},
		{name: "quota text", err: errors.New("you have exceeded your quota"), want: "ratelimit"},
		{name: "timeout text", err: errors.New("request timeout after 30s"), want: "timeout"},
		{name: "anything else", err: errors.New("connection reset by peer"), want: "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError("openai", tt.err)

			var kind string
			var authErr *AuthError
			var rateErr *RateLimitError
			var timeoutErr *TimeoutError
			var genericErr *GenericError
			switch {
			case got == nil:
				kind = "nil"
			case errors.As(got, &authErr):
				kind = "auth"
			case errors.As(got, &rateErr):
				kind = "ratelimit"
			case errors.As(got, &timeoutErr):
				kind = "timeout"
			case errors.As(got, &genericErr):
				kind = "generic"
			}
			if kind != tt.want {
				t.Errorf("classifyError(%v) = %s, want %s", tt.err, kind, tt.want)
			}
		})
	}
}

func TestClassifiedErrorsUnwrap(t *testing.T) {
	inner := errors.New("API returned 429")
	got := classifyError("anthropic", inner)
	if !errors.Is(got, inner) {
		t.Errorf("classified error should wrap the original")
	}
}
