package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// The engine treats every one of these as recoverable input: a failed model
// call never terminates a session.

type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

type RateLimitError struct {
	Provider string
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

type TimeoutError struct {
	Provider string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s call timed out: %v", e.Provider, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

type GenericError struct {
	Provider string
	Err      error
}

func (e *GenericError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Provider, e.Err)
}

func (e *GenericError) Unwrap() error { return e.Err }

// classifyError maps a raw provider error onto the taxonomy. Providers do
// not expose typed errors uniformly, so classification falls back to status
// text the same way for every backend.
func classifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TimeoutError{Provider: provider, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid api key") || strings.Contains(msg, "authentication"):
		return &AuthError{Provider: provider, Err: err}
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota"):
		return &RateLimitError{Provider: provider, Err: err}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return &TimeoutError{Provider: provider, Err: err}
	default:
		return &GenericError{Provider: provider, Err: err}
	}
}
