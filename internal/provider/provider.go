// Package provider defines the generative text interface consumed by the
// onboarding agent. Each adapter (openai.go, anthropic.go) converts the
// single system-prompt/user-prompt round trip into its vendor's API call.
package provider

import (
	"context"
	"errors"
)

// ErrProvider marks a failed generative call (transport, auth, quota).
// The core never retries; callers decide retry policy. Test with errors.Is.
var ErrProvider = errors.New("provider call failed")

// Provider is the unified interface for generative text backends.
type Provider interface {
	// Generate sends one blocking round trip: a system prompt plus a user
	// prompt, returning the model's text reply. Failures wrap ErrProvider.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Name returns the provider identifier, e.g. "anthropic", "openai", "deepseek".
	Name() string

	// DefaultModel returns the model used when none is configured.
	DefaultModel() string
}
