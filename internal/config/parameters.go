package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/comigor/concierge-go/internal/paramstore"
)

// ParameterGetter reads a single named parameter.
// *paramstore.Client satisfies it.
type ParameterGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Parameter names looked up under Prompt.ParamPrefix.
const (
	ParamSystemPrompt      = "system_prompt"
	ParamReferenceDocument = "reference_document"
	ParamAPIKey            = "openai_api_key"
)

// WithParameters returns a copy of c with prompt text and the provider
// credential overridden from the parameter store. Missing parameters keep the
// current value.
func (c Config) WithParameters(ctx context.Context, getter ParameterGetter) (Config, error) {
	prefix := strings.TrimRight(strings.TrimSpace(c.Prompt.ParamPrefix), "/")
	if prefix == "" || getter == nil {
		return c, nil
	}

	targets := []struct {
		name string
		dst  *string
	}{
		{ParamSystemPrompt, &c.Prompt.System},
		{ParamReferenceDocument, &c.Prompt.ReferenceDocument},
		{ParamAPIKey, &c.LLM.APIKey},
	}
	for _, target := range targets {
		value, err := getter.GetParameter(ctx, prefix+"/"+target.name)
		if errors.Is(err, paramstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return c, fmt.Errorf("load parameter %s: %w", target.name, err)
		}
		*target.dst = value
	}
	return c, nil
}
