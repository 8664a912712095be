// Package llm streams completions from an OpenAI-compatible provider.
package llm

import (
	"errors"
	"fmt"

	"github.com/comigor/concierge-go/internal/config"
)

// ErrNotConfigured is returned by New when no credential is set.
var ErrNotConfigured = errors.New("llm: no provider credential configured")

// New builds the provider selected by cfg.API.
func New(cfg config.LLMConfig) (Provider, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	switch cfg.API {
	case config.APIChatCompletions:
		return NewChatCompletionsClient(cfg), nil
	case config.APIResponses, "":
		return NewResponsesClient(cfg.APIKey, WithBaseURL(cfg.BaseURL))
	}
	return nil, fmt.Errorf("llm: unsupported api %q", cfg.API)
}
