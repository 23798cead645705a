package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no provider credentials are available.
var ErrNotConfigured = errors.New("llm: provider not configured")

// Client generates a text completion for a prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// PlaceholderClient always reports a missing configuration. It keeps the
// service bootable in environments without provider credentials.
type PlaceholderClient struct{}

func (PlaceholderClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "", ErrNotConfigured
}
